package rod

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"session-agent/internal/application/port/output"
	"session-agent/internal/domain/entity"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultSettleTimeout     = 2 * time.Second
	viewportJitterPX         = 40
)

var _ output.Provisioner = (*Provisioner)(nil)

type Config struct {
	// Bin is the Chromium binary; empty lets the launcher find or download one.
	Bin               string
	NavigationTimeout time.Duration
	// SettleTimeout bounds the network-idle wait after each load.
	SettleTimeout time.Duration
	SlowMotion    time.Duration
	Trace         bool
}

func DefaultConfig() Config {
	return Config{
		NavigationTimeout: defaultNavigationTimeout,
		SettleTimeout:     defaultSettleTimeout,
	}
}

// Provisioner launches one dedicated Chromium process per browsing context.
type Provisioner struct {
	cfg    Config
	logger output.LoggerPort
}

func NewProvisioner(cfg Config, logger output.LoggerPort) *Provisioner {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = defaultSettleTimeout
	}
	return &Provisioner{cfg: cfg, logger: logger}
}

// Provision starts Chromium, applies every fingerprint patch and the restored
// session before any navigation, and returns a context on about:blank.
// Any failure here is a ProvisionError.
func (p *Provisioner) Provision(ctx context.Context, env entity.EnvironmentConfig, restore *entity.SessionState) (output.BrowserContext, error) {
	l := launcher.New().
		Context(ctx).
		Headless(env.Headless).
		NoSandbox(env.NoSandbox).
		Leakless(true).
		Delete("use-mock-keychain").
		Set("disable-blink-features", "AutomationControlled")
	if p.cfg.Bin != "" {
		l = l.Bin(p.cfg.Bin)
	}
	if len(env.Languages) > 0 {
		l = l.Set("lang", env.Languages[0])
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, &entity.ProvisionError{Err: fmt.Errorf("launch browser: %w", err)}
	}

	bc := &BrowserContext{
		launcher: l,
		cfg:      p.cfg,
		logger:   p.logger,
	}
	fail := func(err error) (output.BrowserContext, error) {
		_ = bc.Close()
		return nil, &entity.ProvisionError{Err: err}
	}

	browser := rod.New().ControlURL(controlURL).Trace(p.cfg.Trace).SlowMotion(p.cfg.SlowMotion)
	if err := browser.Connect(); err != nil {
		return fail(fmt.Errorf("connect browser: %w", err))
	}
	bc.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fail(fmt.Errorf("create page: %w", err))
	}
	bc.page = page

	if err := applySuppression(page, env); err != nil {
		return fail(err)
	}

	bc.viewport = pickViewport(env)
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             bc.viewport.Width,
		Height:            bc.viewport.Height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}).Call(page); err != nil {
		return fail(fmt.Errorf("set viewport: %w", err))
	}
	if err := emulateIdentity(browser, page, env); err != nil {
		return fail(err)
	}

	if !restore.Empty() {
		if err := seedSession(browser, page, restore); err != nil {
			return fail(err)
		}
		bc.restored = restore.Origins
		p.logger.Debug("session seeded", "cookies", len(restore.Cookies), "origins", len(restore.Origins))
	}

	p.logger.Info("browser provisioned",
		"headless", env.Headless,
		"viewport", fmt.Sprintf("%dx%d", bc.viewport.Width, bc.viewport.Height),
		"restored", !restore.Empty(),
	)
	return bc, nil
}

func applySuppression(page *rod.Page, env entity.EnvironmentConfig) error {
	s := env.Suppression
	if s.StealthBundle {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			return fmt.Errorf("apply stealth bundle: %w", err)
		}
	}
	if js := patchScript(s, env.Languages, env.NoiseSeed); js != "" {
		if _, err := page.EvalOnNewDocument(js); err != nil {
			return fmt.Errorf("apply fingerprint patches: %w", err)
		}
	}
	return nil
}

func emulateIdentity(browser *rod.Browser, page *rod.Page, env entity.EnvironmentConfig) error {
	if env.UserAgent != "" || len(env.Languages) > 0 {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      userAgentOrDefault(browser, env.UserAgent),
			AcceptLanguage: strings.Join(env.Languages, ","),
		}); err != nil {
			return fmt.Errorf("set user agent: %w", err)
		}
	}
	if env.Locale != "" {
		if err := (proto.EmulationSetLocaleOverride{Locale: env.Locale}).Call(page); err != nil {
			return fmt.Errorf("set locale: %w", err)
		}
	}
	if env.Timezone != "" {
		if err := (proto.EmulationSetTimezoneOverride{TimezoneID: env.Timezone}).Call(page); err != nil {
			return fmt.Errorf("set timezone: %w", err)
		}
	}
	if g := env.Geolocation; g != nil {
		if err := (proto.BrowserGrantPermissions{
			Permissions: []proto.BrowserPermissionType{proto.BrowserPermissionTypeGeolocation},
		}).Call(browser); err != nil {
			return fmt.Errorf("grant geolocation: %w", err)
		}
		accuracy := g.Accuracy
		if accuracy <= 0 {
			accuracy = 50
		}
		if err := (proto.EmulationSetGeolocationOverride{
			Latitude:  gson.Num(g.Latitude),
			Longitude: gson.Num(g.Longitude),
			Accuracy:  gson.Num(accuracy),
		}).Call(page); err != nil {
			return fmt.Errorf("set geolocation: %w", err)
		}
	}
	return nil
}

// userAgentOrDefault keeps the browser's own UA when only languages change,
// since the override call requires a UA.
func userAgentOrDefault(browser *rod.Browser, ua string) string {
	if ua != "" {
		return ua
	}
	v, err := proto.BrowserGetVersion{}.Call(browser)
	if err != nil {
		return ""
	}
	return strings.Replace(v.UserAgent, "HeadlessChrome", "Chrome", 1)
}

func seedSession(browser *rod.Browser, page *rod.Page, state *entity.SessionState) error {
	if len(state.Cookies) > 0 {
		if err := browser.SetCookies(toCookieParams(state.Cookies)); err != nil {
			return fmt.Errorf("restore cookies: %w", err)
		}
	}
	if js := storageSeedScript(state.Origins); js != "" {
		if _, err := page.EvalOnNewDocument(js); err != nil {
			return fmt.Errorf("restore local storage: %w", err)
		}
	}
	return nil
}

func pickViewport(env entity.EnvironmentConfig) entity.Viewport {
	vp := env.Viewport
	if vp.Width <= 0 || vp.Height <= 0 {
		vp = entity.Viewport{Width: 1366, Height: 768}
	}
	if !env.ViewportJitter {
		return vp
	}
	seed := env.NoiseSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := rand.New(rand.NewSource(seed))
	vp.Width += r.Intn(2*viewportJitterPX+1) - viewportJitterPX
	vp.Height += r.Intn(2*viewportJitterPX+1) - viewportJitterPX
	return vp
}

func toCookieParams(cookies []entity.Cookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
			Priority: proto.NetworkCookiePriority(c.Priority),
		}
		if !c.Session && c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		params = append(params, p)
	}
	return params
}

func fromNetworkCookies(cookies []*proto.NetworkCookie) []entity.Cookie {
	out := make([]entity.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, entity.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			Session:  c.Session,
			SameSite: string(c.SameSite),
			Priority: string(c.Priority),
		})
	}
	return out
}
