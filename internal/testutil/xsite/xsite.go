// Package xsite scripts a login flow and timeline shaped like the markup the
// default site profile targets, on top of fakebrowser.
package xsite

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"session-agent/internal/domain/entity"
	"session-agent/internal/infrastructure/siteprofile"
	"session-agent/internal/testutil/fakebrowser"
)

const (
	Origin     = "https://x.example.test"
	LoginPath  = "/i/flow/login"
	HomePath   = "/home"
	SearchPath = "/search"
	AuthCookie = "auth_token"

	timeline = `[aria-label="Timeline"]`
)

type Options struct {
	Password string

	EmailChallenge    bool
	TwoFactor         bool
	Suspicious        bool
	BrokenAfterSubmit bool
	// NoSubmitButton drops the login button so only Enter submits.
	NoSubmitButton bool
	// NoPasswordField renders the password step without any password input.
	NoPasswordField bool

	Records  int
	PageSize int
	// DuplicateOnScroll re-renders the last visible record after every scroll.
	DuplicateOnScroll bool
	// AnonymousRecord makes record 0 lack a status link.
	AnonymousRecord bool
	// LateIdentity renders record 0 without its status link and time until
	// the first scroll re-renders it in full.
	LateIdentity bool
}

type Fixture struct {
	*fakebrowser.Site
	Opts Options

	mu     sync.Mutex
	tokens map[string]bool
	logins int
	emails []string
}

func New(opts Options) *Fixture {
	if opts.Password == "" {
		opts.Password = "correct horse"
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 5
	}
	f := &Fixture{
		Site:   fakebrowser.NewSite(Origin),
		Opts:   opts,
		tokens: make(map[string]bool),
	}
	f.Page(LoginPath, usernamePage)
	f.Handle(HomePath, f.home)
	f.Handle(SearchPath, f.home)
	f.OnClick(`[data-step="next"]`, f.next)
	f.OnClick(`[data-step="email-next"]`, f.emailNext)
	f.OnClick(`[data-step="login"]`, f.submit)
	f.OnEnter(`input[name="password"]`, f.submit)
	f.OnScroll(f.scrolled)
	return f
}

// Profile is the default site profile pointed at this fixture.
func (f *Fixture) Profile() entity.SiteProfile {
	p := siteprofile.Default()
	p.LoginURL = f.URL(LoginPath)
	p.HomeURL = f.URL(HomePath)
	p.SearchURL = f.URL(SearchPath) + "?q=%s&f=live"
	return p
}

func (f *Fixture) Credentials() entity.Credentials {
	return entity.Credentials{Username: "alice", Password: f.Opts.Password, Email: "alice@example.test"}
}

func (f *Fixture) Logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *Fixture) Emails() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.emails...)
}

// RevokeAll invalidates every issued session token.
func (f *Fixture) RevokeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = make(map[string]bool)
}

func (f *Fixture) authenticated(b *fakebrowser.Browser) bool {
	tok, ok := b.Cookie(AuthCookie)
	if !ok {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[tok]
}

func (f *Fixture) home(b *fakebrowser.Browser) (string, error) {
	if !f.authenticated(b) {
		return usernamePage, nil
	}
	n := f.Opts.PageSize
	if n > f.Opts.Records {
		n = f.Opts.Records
	}
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteString(f.record(i))
	}
	return fmt.Sprintf(homePage, sb.String()), nil
}

func (f *Fixture) next(b *fakebrowser.Browser) {
	if strings.TrimSpace(b.Value(`input[name="text"]`)) == "" {
		return
	}
	if f.Opts.EmailChallenge {
		b.Load(emailPage)
		return
	}
	b.Load(f.passwordPage())
}

func (f *Fixture) emailNext(b *fakebrowser.Browser) {
	email := b.Value(`input[data-testid="ocfEnterTextTextInput"]`)
	f.mu.Lock()
	f.emails = append(f.emails, email)
	f.mu.Unlock()
	if email == "" {
		return
	}
	b.Load(f.passwordPage())
}

func (f *Fixture) submit(b *fakebrowser.Browser) {
	switch {
	case f.Opts.BrokenAfterSubmit:
		b.Load(brokenPage)
	case b.Value(`input[name="password"]`) != f.Opts.Password:
		b.Load(wrongPasswordPage)
	case f.Opts.TwoFactor:
		b.Load(twoFactorPage)
	case f.Opts.Suspicious:
		b.Load(suspiciousPage)
	default:
		f.SignIn(b)
		b.Goto(HomePath)
	}
}

// SignIn issues a fresh session token to b exactly as a successful login does.
func (f *Fixture) SignIn(b *fakebrowser.Browser) {
	f.mu.Lock()
	f.logins++
	tok := fmt.Sprintf("tok-%d", f.logins)
	f.tokens[tok] = true
	f.mu.Unlock()
	b.SetCookie(AuthCookie, tok)
	b.SetLocalStorage("session-hint", tok)
}

func (f *Fixture) scrolled(b *fakebrowser.Browser) {
	if b.Path() != HomePath || !f.authenticated(b) {
		return
	}
	if f.Opts.LateIdentity {
		b.Replace(`[data-record="0"]`, f.render(0, false))
	}
	if f.Opts.DuplicateOnScroll {
		if last := f.distinct(b); last > 0 {
			b.Append(timeline, f.record(last-1))
		}
	}
	start := f.distinct(b)
	for i := start; i < start+f.Opts.PageSize && i < f.Opts.Records; i++ {
		b.Append(timeline, f.record(i))
	}
}

// distinct counts records rendered at least once; duplicates do not advance the feed.
func (f *Fixture) distinct(b *fakebrowser.Browser) int {
	n := 0
	for i := 0; i < f.Opts.Records; i++ {
		if b.Count(fmt.Sprintf(`[data-record="%d"]`, i)) > 0 {
			n++
		}
	}
	return n
}

func (f *Fixture) record(i int) string {
	return f.render(i, f.Opts.LateIdentity && i == 0)
}

// render builds record i; loading leaves out everything but author and text.
func (f *Fixture) render(i int, loading bool) string {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(-time.Duration(i) * time.Minute).Format(time.RFC3339)
	link := fmt.Sprintf(`<a href="/author%d/status/%d"><time datetime="%s">%dm</time></a>`, i, 1000+i, ts, i)
	switch {
	case loading:
		link = ""
	case f.Opts.AnonymousRecord && i == 0:
		link = fmt.Sprintf(`<time datetime="%s">now</time>`, ts)
	}
	return fmt.Sprintf(`<article data-testid="tweet" data-record="%d">
  <div data-testid="User-Names"><span>Author %d</span><span>@author%d</span></div>
  %s
  <div data-testid="tweetText" lang="en">Post number %d</div>
</article>`, i, i, i, link, i)
}

func (f *Fixture) passwordPage() string {
	field := `<input type="password" name="password" autocomplete="current-password">`
	if f.Opts.NoPasswordField {
		field = ""
	}
	button := `<button data-testid="LoginForm_Login_Button" data-step="login"><span>Log in</span></button>`
	if f.Opts.NoSubmitButton {
		button = ""
	}
	return fmt.Sprintf(passwordPage, field, button)
}

const usernamePage = `<html><head><title>Log in to X</title></head><body>
<main>
  <h1>Sign in to X</h1>
  <div><input autocomplete="username" name="text" type="text" autocapitalize="sentences"></div>
  <div role="button" data-step="next"><span>Next</span></div>
  <div role="button"><span>Forgot password?</span></div>
</main>
</body></html>`

const emailPage = `<html><body>
<main>
  <h1>Enter your phone number or email address</h1>
  <input data-testid="ocfEnterTextTextInput" name="text" type="text">
  <button data-testid="ocfEnterTextNextButton" data-step="email-next"><span>Next</span></button>
</main>
</body></html>`

const passwordPage = `<html><body>
<main>
  <h1>Enter your password</h1>
  <input name="username" type="text" value="alice" disabled>
  %s
  %s
</main>
</body></html>`

const wrongPasswordPage = `<html><body>
<main><span>Wrong password!</span></main>
</body></html>`

const brokenPage = `<html><body>
<main><div>Something went wrong. Try reloading.</div></main>
</body></html>`

const twoFactorPage = `<html><body>
<main>
  <h1>Enter your verification code</h1>
  <input data-testid="ocfEnterTextTextInput" inputmode="numeric" name="text" type="text">
</main>
</body></html>`

const suspiciousPage = `<html><body>
<main><h1>We noticed unusual activity on your account</h1></main>
</body></html>`

const homePage = `<html><body>
<header><nav><a data-testid="AppTabBar_Home_Link" href="/home" role="link">Home</a></nav></header>
<main><section aria-label="Timeline">%s</section></main>
</body></html>`
