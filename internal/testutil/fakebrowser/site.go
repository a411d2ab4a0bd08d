// Package fakebrowser is an in-memory BrowserContext backed by goquery, used to
// drive the login and extraction flows against scripted markup without Chromium.
package fakebrowser

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	"session-agent/internal/application/port/output"
	"session-agent/internal/domain/entity"
)

// ErrNavigationTimeout makes a route behave like a page that never finishes loading.
var ErrNavigationTimeout = errors.New("fake navigation timeout")

type Route func(b *Browser) (string, error)

type Action func(b *Browser)

type binding struct {
	css    string
	action Action
}

// Site is the server side of the simulation: routes and reactions shared by
// every browser provisioned against it.
type Site struct {
	Origin string

	mu      sync.Mutex
	routes  map[string]Route
	clicks  []binding
	enters  []binding
	scrolls []Action
	hits    map[string]int
	visited []string
}

func NewSite(origin string) *Site {
	return &Site{
		Origin: strings.TrimRight(origin, "/"),
		routes: make(map[string]Route),
		hits:   make(map[string]int),
	}
}

func (s *Site) URL(path string) string {
	return s.Origin + path
}

func (s *Site) Handle(path string, r Route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[path] = r
}

func (s *Site) Page(path, html string) {
	s.Handle(path, func(*Browser) (string, error) { return html, nil })
}

func (s *Site) OnClick(css string, a Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks = append(s.clicks, binding{css: css, action: a})
}

func (s *Site) OnEnter(css string, a Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enters = append(s.enters, binding{css: css, action: a})
}

func (s *Site) OnScroll(a Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrolls = append(s.scrolls, a)
}

// Hits reports how many times a path was navigated to.
func (s *Site) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// Visited lists every URL navigated to, query included, in order.
func (s *Site) Visited() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visited...)
}

func (s *Site) route(rawURL string) (Route, string, bool) {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits[path]++
	s.visited = append(s.visited, rawURL)
	r, ok := s.routes[path]
	return r, path, ok
}

func (s *Site) bindings(list *[]binding) []binding {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]binding, len(*list))
	copy(out, *list)
	return out
}

func (s *Site) scrollActions() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Action, len(s.scrolls))
	copy(out, s.scrolls)
	return out
}

// Provisioner hands out fresh browsers against one Site and remembers them so
// tests can assert every context was closed.
type Provisioner struct {
	Site *Site
	Err  error

	mu       sync.Mutex
	browsers []*Browser
	restored []*entity.SessionState
}

var _ output.Provisioner = (*Provisioner)(nil)

func NewProvisioner(site *Site) *Provisioner {
	return &Provisioner{Site: site}
}

func (p *Provisioner) Provision(ctx context.Context, cfg entity.EnvironmentConfig, restore *entity.SessionState) (output.BrowserContext, error) {
	if p.Err != nil {
		return nil, &entity.ProvisionError{Err: p.Err}
	}
	b := newBrowser(p.Site, cfg)
	if restore != nil {
		b.restore(restore)
	}
	p.mu.Lock()
	p.browsers = append(p.browsers, b)
	p.restored = append(p.restored, restore)
	p.mu.Unlock()
	return b, nil
}

func (p *Provisioner) Browsers() []*Browser {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Browser, len(p.browsers))
	copy(out, p.browsers)
	return out
}

// Restored returns the session passed to each Provision call, nil when none.
func (p *Provisioner) Restored() []*entity.SessionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*entity.SessionState, len(p.restored))
	copy(out, p.restored)
	return out
}

func (p *Provisioner) AllClosed() bool {
	for _, b := range p.Browsers() {
		if !b.Closed() {
			return false
		}
	}
	return true
}
