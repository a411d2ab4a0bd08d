// Package rod implements browsing contexts on Chromium through go-rod.
package rod

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"session-agent/internal/application/port/output"
	"session-agent/internal/domain/entity"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

var (
	_ output.BrowserContext = (*BrowserContext)(nil)
	_ output.ElementHandle  = (*Element)(nil)
	_ output.InputDevice    = (*inputDevice)(nil)
)

type BrowserContext struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	viewport entity.Viewport
	cfg      Config
	logger   output.LoggerPort
	// restored is the seeded localStorage, carried into exports for origins
	// the page never visits.
	restored []entity.OriginStorage

	closed    atomic.Bool
	closeOnce sync.Once
}

func (b *BrowserContext) Navigate(ctx context.Context, rawURL string) error {
	if b.closed.Load() {
		return entity.ErrContextClosed
	}
	if err := validateURL(rawURL); err != nil {
		return err
	}

	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavigationTimeout)
	defer cancel()
	page := b.page.Context(navCtx)

	err := page.Navigate(rawURL)
	if err == nil {
		err = page.WaitLoad()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return &entity.NavigationTimeoutError{URL: rawURL, Timeout: b.cfg.NavigationTimeout, Err: err}
		}
		return fmt.Errorf("navigation failed: %w", err)
	}

	// Late XHRs are common on SPA logins; a page that never idles is still usable.
	settleCtx, settleCancel := context.WithTimeout(ctx, b.cfg.SettleTimeout)
	defer settleCancel()
	_ = b.page.Context(settleCtx).WaitIdle(b.cfg.SettleTimeout)
	return nil
}

func (b *BrowserContext) CurrentURL() string {
	if b.closed.Load() {
		return ""
	}
	info, err := b.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (b *BrowserContext) Query(ctx context.Context, css string) ([]output.ElementHandle, error) {
	if b.closed.Load() {
		return nil, entity.ErrContextClosed
	}
	if strings.TrimSpace(css) == "" {
		return nil, entity.ErrInvalidSelector
	}
	els, err := b.page.Context(ctx).Elements(css)
	if err != nil {
		if isSelectorSyntaxError(err) {
			return nil, fmt.Errorf("%w: %s: %v", entity.ErrInvalidSelector, css, err)
		}
		return nil, fmt.Errorf("query %s: %w", css, err)
	}
	out := make([]output.ElementHandle, 0, len(els))
	for _, el := range els {
		out = append(out, &Element{el: el})
	}
	return out, nil
}

func (b *BrowserContext) HTML(ctx context.Context) (string, error) {
	if b.closed.Load() {
		return "", entity.ErrContextClosed
	}
	html, err := b.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("failed to get HTML: %w", err)
	}
	return html, nil
}

func (b *BrowserContext) Screenshot(ctx context.Context) (*entity.Screenshot, error) {
	if b.closed.Load() {
		return nil, entity.ErrContextClosed
	}
	data, err := b.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(80),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return &entity.Screenshot{
		Data:   data,
		Format: "jpeg",
		Width:  b.viewport.Width,
		Height: b.viewport.Height,
	}, nil
}

func (b *BrowserContext) Viewport() entity.Viewport {
	return b.viewport
}

func (b *BrowserContext) Input() output.InputDevice {
	return &inputDevice{page: b.page, closed: &b.closed}
}

// ExportState captures every cookie of the context and the localStorage of
// the current origin. Restored origins other than the current one are kept as
// they were seeded.
func (b *BrowserContext) ExportState(ctx context.Context) (*entity.SessionState, error) {
	if b.closed.Load() {
		return nil, entity.ErrContextClosed
	}
	cookies, err := b.browser.Context(ctx).GetCookies()
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	state := &entity.SessionState{
		Version: entity.SessionStateVersion,
		Cookies: fromNetworkCookies(cookies),
	}

	page := b.page.Context(ctx)
	if v, err := (proto.BrowserGetVersion{}).Call(b.browser); err == nil {
		state.UserAgent = v.UserAgent
	}
	var current []entity.OriginStorage
	if origin := originOf(b.CurrentURL()); origin != "" {
		res, err := page.Eval(storageDump)
		if err != nil {
			return nil, fmt.Errorf("read local storage: %w", err)
		}
		var pairs [][2]string
		if err := json.Unmarshal([]byte(res.Value.Str()), &pairs); err != nil {
			return nil, fmt.Errorf("decode local storage: %w", err)
		}
		items := make([]entity.StorageItem, 0, len(pairs))
		for _, p := range pairs {
			items = append(items, entity.StorageItem{Name: p[0], Value: p[1]})
		}
		current = []entity.OriginStorage{{Origin: origin, LocalStorage: items}}
	}
	state.Origins = mergeOrigins(current, b.restored)
	return state, nil
}

// mergeOrigins appends the restored origins missing from current. A live
// read always wins over the seeded copy of the same origin.
func mergeOrigins(current, restored []entity.OriginStorage) []entity.OriginStorage {
	seen := make(map[string]struct{}, len(current))
	out := make([]entity.OriginStorage, 0, len(current)+len(restored))
	for _, o := range current {
		seen[o.Origin] = struct{}{}
		out = append(out, o)
	}
	for _, o := range restored {
		if _, ok := seen[o.Origin]; ok || len(o.LocalStorage) == 0 {
			continue
		}
		seen[o.Origin] = struct{}{}
		out = append(out, o)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Close kills the browser process and removes its profile directory. It is
// safe to call more than once.
func (b *BrowserContext) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		if b.browser != nil {
			if err := b.browser.Close(); err != nil && b.logger != nil {
				b.logger.Debug("browser close returned error", "error", err)
			}
		}
		if b.launcher != nil {
			b.launcher.Kill()
			b.launcher.Cleanup()
		}
	})
	return nil
}

type Element struct {
	el *rod.Element
}

func (e *Element) Visible(ctx context.Context) (bool, error) {
	return e.el.Context(ctx).Visible()
}

func (e *Element) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil || v == nil {
		return "", false, err
	}
	return *v, true, nil
}

func (e *Element) TagName(ctx context.Context) (string, error) {
	res, err := e.el.Context(ctx).Eval(`() => this.tagName.toLowerCase()`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *Element) Box(ctx context.Context) (entity.Rect, error) {
	shape, err := e.el.Context(ctx).Shape()
	if err != nil {
		return entity.Rect{}, err
	}
	box := shape.Box()
	if box == nil {
		return entity.Rect{}, errors.New("element has no box")
	}
	return entity.Rect{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height}, nil
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	return e.el.Context(ctx).ScrollIntoView()
}

func (e *Element) Focus(ctx context.Context) error {
	return e.el.Context(ctx).Focus()
}

// inputDevice issues raw CDP input events; all pacing is done by the caller.
type inputDevice struct {
	page   *rod.Page
	closed *atomic.Bool
}

func (d *inputDevice) check() error {
	if d.closed.Load() {
		return entity.ErrContextClosed
	}
	return nil
}

func (d *inputDevice) MoveMouse(ctx context.Context, p entity.Point) error {
	if err := d.check(); err != nil {
		return err
	}
	return d.page.Context(ctx).Mouse.MoveTo(proto.Point{X: p.X, Y: p.Y})
}

func (d *inputDevice) MouseDown(ctx context.Context) error {
	if err := d.check(); err != nil {
		return err
	}
	return d.page.Context(ctx).Mouse.Down(proto.InputMouseButtonLeft, 1)
}

func (d *inputDevice) MouseUp(ctx context.Context) error {
	if err := d.check(); err != nil {
		return err
	}
	return d.page.Context(ctx).Mouse.Up(proto.InputMouseButtonLeft, 1)
}

func (d *inputDevice) Wheel(ctx context.Context, deltaX, deltaY float64) error {
	if err := d.check(); err != nil {
		return err
	}
	return d.page.Context(ctx).Mouse.Scroll(deltaX, deltaY, 1)
}

func (d *inputDevice) InsertText(ctx context.Context, text string) error {
	if err := d.check(); err != nil {
		return err
	}
	return d.page.Context(ctx).InsertText(text)
}

func (d *inputDevice) Backspace(ctx context.Context) error {
	if err := d.check(); err != nil {
		return err
	}
	return d.page.Context(ctx).Keyboard.Type(input.Backspace)
}

func (d *inputDevice) Enter(ctx context.Context) error {
	if err := d.check(); err != nil {
		return err
	}
	return d.page.Context(ctx).Keyboard.Type(input.Enter)
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https" && rawURL != "about:blank") {
		return fmt.Errorf("%w: %q", entity.ErrInvalidURL, rawURL)
	}
	return nil
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func isSelectorSyntaxError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SyntaxError") || strings.Contains(msg, "not a valid selector")
}
