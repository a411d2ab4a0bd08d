package fakebrowser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"session-agent/internal/application/port/output"
	"session-agent/internal/domain/entity"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

const (
	rowHeight = 40.0
	boxLeft   = 20.0
	boxWidth  = 300.0
	boxHeight = 30.0
)

var _ output.BrowserContext = (*Browser)(nil)

// Browser lays every element of the document out on its own row so pointer
// coordinates map back to exactly one node.
type Browser struct {
	site     *Site
	cfg      entity.EnvironmentConfig
	viewport entity.Viewport

	doc        *goquery.Document
	currentURL string
	scrollY    float64
	cursor     entity.Point
	focused    *html.Node

	cookies []entity.Cookie
	storage map[string]string

	closed atomic.Bool
	mu     sync.Mutex
	events []string
	moves  int
}

func newBrowser(site *Site, cfg entity.EnvironmentConfig) *Browser {
	vp := cfg.Viewport
	if vp.Width == 0 || vp.Height == 0 {
		vp = entity.Viewport{Width: 1280, Height: 720}
	}
	b := &Browser{
		site:     site,
		cfg:      cfg,
		viewport: vp,
		storage:  make(map[string]string),
	}
	b.Load("<html><body></body></html>")
	b.currentURL = "about:blank"
	return b
}

func (b *Browser) Config() entity.EnvironmentConfig { return b.cfg }

func (b *Browser) restore(state *entity.SessionState) {
	b.cookies = append(b.cookies, state.Cookies...)
	for _, o := range state.Origins {
		if o.Origin != b.site.Origin {
			continue
		}
		for _, item := range o.LocalStorage {
			b.storage[item.Name] = item.Value
		}
	}
}

// Load replaces the current document, invalidating every handle into the old one.
func (b *Browser) Load(markup string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		panic(fmt.Sprintf("fakebrowser: bad markup: %v", err))
	}
	b.doc = doc
	b.scrollY = 0
	b.focused = nil
}

// Goto navigates as if the page itself redirected.
func (b *Browser) Goto(path string) {
	_ = b.Navigate(context.Background(), b.site.URL(path))
}

func (b *Browser) SetCookie(name, value string) {
	host := b.site.Origin
	if u, err := url.Parse(b.site.Origin); err == nil {
		host = u.Hostname()
	}
	for i, c := range b.cookies {
		if c.Name == name {
			b.cookies[i].Value = value
			return
		}
	}
	b.cookies = append(b.cookies, entity.Cookie{
		Name: name, Value: value, Domain: host, Path: "/", Secure: true, HTTPOnly: true, SameSite: "Lax",
	})
}

func (b *Browser) Cookie(name string) (string, bool) {
	for _, c := range b.cookies {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

func (b *Browser) SetLocalStorage(key, value string) {
	b.storage[key] = value
}

func (b *Browser) LocalStorage(key string) (string, bool) {
	v, ok := b.storage[key]
	return v, ok
}

// Value returns the typed value of the first element matching css.
func (b *Browser) Value(css string) string {
	return b.doc.Find(css).First().AttrOr("value", "")
}

func (b *Browser) Count(css string) int {
	return b.doc.Find(css).Length()
}

func (b *Browser) Path() string {
	if u, err := url.Parse(b.currentURL); err == nil {
		return u.Path
	}
	return ""
}

func (b *Browser) Append(css, markup string) {
	b.doc.Find(css).First().AppendHtml(markup)
}

// Replace swaps the first match of css for markup, as a client-side re-render does.
func (b *Browser) Replace(css, markup string) {
	b.doc.Find(css).First().ReplaceWithHtml(markup)
}

func (b *Browser) ScrollY() float64 { return b.scrollY }

func (b *Browser) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	copy(out, b.events)
	return out
}

// Moves counts every pointer position reported to the page.
func (b *Browser) Moves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.moves
}

func (b *Browser) Closed() bool { return b.closed.Load() }

func (b *Browser) record(event string) {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
}

func (b *Browser) Navigate(ctx context.Context, rawURL string) error {
	if b.closed.Load() {
		return entity.ErrContextClosed
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", entity.ErrInvalidURL, rawURL)
	}
	route, path, ok := b.site.route(rawURL)
	b.record("navigate:" + path)
	if !ok {
		b.Load("<html><body><h1>Not Found</h1></body></html>")
		b.currentURL = rawURL
		return nil
	}
	markup, err := route(b)
	if errors.Is(err, ErrNavigationTimeout) {
		return &entity.NavigationTimeoutError{URL: rawURL, Err: err}
	}
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	b.Load(markup)
	b.currentURL = rawURL
	return nil
}

func (b *Browser) CurrentURL() string { return b.currentURL }

func (b *Browser) Query(ctx context.Context, css string) ([]output.ElementHandle, error) {
	if b.closed.Load() {
		return nil, entity.ErrContextClosed
	}
	if strings.TrimSpace(css) == "" {
		return nil, entity.ErrInvalidSelector
	}
	compiled, err := cascadia.Compile(css)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", entity.ErrInvalidSelector, css, err)
	}
	var result []output.ElementHandle
	b.doc.FindMatcher(compiled).Each(func(_ int, s *goquery.Selection) {
		result = append(result, &Element{b: b, node: s.Get(0)})
	})
	return result, nil
}

func (b *Browser) HTML(ctx context.Context) (string, error) {
	if b.closed.Load() {
		return "", entity.ErrContextClosed
	}
	return goquery.OuterHtml(b.doc.Selection)
}

func (b *Browser) Screenshot(ctx context.Context) (*entity.Screenshot, error) {
	if b.closed.Load() {
		return nil, entity.ErrContextClosed
	}
	img := image.NewRGBA(image.Rect(0, 0, 16, 9))
	for x := 0; x < 16; x++ {
		img.Set(x, 4, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return &entity.Screenshot{Data: buf.Bytes(), Format: "png", Width: 16, Height: 9}, nil
}

func (b *Browser) Viewport() entity.Viewport { return b.viewport }

func (b *Browser) Input() output.InputDevice { return (*device)(b) }

func (b *Browser) ExportState(ctx context.Context) (*entity.SessionState, error) {
	if b.closed.Load() {
		return nil, entity.ErrContextClosed
	}
	state := &entity.SessionState{
		Version:   entity.SessionStateVersion,
		UserAgent: b.cfg.UserAgent,
		Cookies:   append([]entity.Cookie(nil), b.cookies...),
	}
	if len(b.storage) > 0 {
		origin := entity.OriginStorage{Origin: b.site.Origin}
		for k, v := range b.storage {
			origin.LocalStorage = append(origin.LocalStorage, entity.StorageItem{Name: k, Value: v})
		}
		state.Origins = append(state.Origins, origin)
	}
	return state, nil
}

func (b *Browser) Close() error {
	b.closed.Store(true)
	return nil
}

func (b *Browser) rowOf(n *html.Node) int {
	idx := -1
	b.doc.Find("*").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if s.Get(0) == n {
			idx = i
			return false
		}
		return true
	})
	return idx
}

func (b *Browser) nodeAtRow(row int) *html.Node {
	sel := b.doc.Find("*").Eq(row)
	if sel.Length() == 0 {
		return nil
	}
	return sel.Get(0)
}

func (b *Browser) attached(n *html.Node) bool {
	root := b.doc.Get(0)
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

func (b *Browser) click(p entity.Point) {
	docY := p.Y + b.scrollY
	row := int(docY / rowHeight)
	offset := docY - float64(row)*rowHeight
	if p.X < boxLeft || p.X > boxLeft+boxWidth || offset < 5 || offset > 5+boxHeight {
		b.record("click:miss")
		return
	}
	n := b.nodeAtRow(row)
	if n == nil {
		b.record("click:miss")
		return
	}
	sel := goquery.NewDocumentFromNode(n).Selection
	b.record("click:" + describe(sel))
	if isEditable(n) {
		b.focused = n
	}
	for _, bind := range b.site.bindings(&b.site.clicks) {
		if sel.Closest(bind.css).Length() > 0 {
			bind.action(b)
			return
		}
	}
}

func describe(s *goquery.Selection) string {
	name := goquery.NodeName(s)
	if id, ok := s.Attr("id"); ok {
		return name + "#" + id
	}
	if tid, ok := s.Attr("data-testid"); ok {
		return name + "[" + tid + "]"
	}
	return name
}

func isEditable(n *html.Node) bool {
	return n.Type == html.ElementNode && (n.Data == "input" || n.Data == "textarea")
}
