package di

import (
	"fmt"
	"strings"
	"time"

	"session-agent/internal/application/port/input"
	"session-agent/internal/application/port/output"
	"session-agent/internal/domain/entity"
	"session-agent/internal/infrastructure/browser/rod"
	"session-agent/internal/infrastructure/diagnostics"
	"session-agent/internal/infrastructure/logger"
	"session-agent/internal/infrastructure/sessionstore"
	"session-agent/internal/infrastructure/siteprofile"
	"session-agent/internal/usecase/extraction"
	"session-agent/internal/usecase/humanize"
	"session-agent/internal/usecase/login"
	"session-agent/internal/usecase/orchestrator"
	"session-agent/internal/usecase/selector"
	"session-agent/internal/usecase/supervisor"
)

type Container struct {
	Logger  output.LoggerPort
	Profile entity.SiteProfile
	Engine  input.SessionEngine
}

type Config struct {
	RunName string

	Headless          bool
	NoSandbox         bool
	ChromeBin         string
	DelayMin          time.Duration
	DelayMax          time.Duration
	ViewportJitter    bool
	TypoChance        float64
	NavigationTimeout time.Duration
	SelectorTimeout   time.Duration
	UserAgent         string
	Locale            string
	Timezone          string
	Geolocation       *entity.Geolocation
	Seed              int64

	MaxAttempts   int
	RetryCooldown time.Duration
	Parallelism   int

	SessionDir     string
	DiagnosticsDir string
	SiteProfile    string

	LogLevel   string
	LogDir     string
	LogFile    string
	LogConsole bool
}

// ConfigFromEnv maps environment variables onto Config, keeping defaults for
// anything unset or malformed.
func ConfigFromEnv(env output.ConfigPort) Config {
	cfg := Config{
		Headless:          env.GetBool("HEADLESS", true),
		NoSandbox:         env.GetBool("NO_SANDBOX", false),
		ChromeBin:         env.Get("CHROME_BIN"),
		DelayMin:          time.Duration(env.GetInt("DELAY_MIN_MS", 800)) * time.Millisecond,
		DelayMax:          time.Duration(env.GetInt("DELAY_MAX_MS", 2500)) * time.Millisecond,
		ViewportJitter:    env.GetBool("VIEWPORT_JITTER", true),
		TypoChance:        env.GetFloat("TYPO_CHANCE", humanize.DefaultProfile().TypoChance),
		NavigationTimeout: env.GetDuration("NAV_TIMEOUT", 30*time.Second),
		SelectorTimeout:   env.GetDuration("SELECTOR_TIMEOUT", 15*time.Second),
		UserAgent:         env.Get("USER_AGENT"),
		Locale:            env.GetWithDefault("LOCALE", "en-US"),
		Timezone:          env.Get("TIMEZONE"),
		Seed:              int64(env.GetInt("RNG_SEED", 0)),
		MaxAttempts:       env.GetInt("MAX_ATTEMPTS", 3),
		RetryCooldown:     env.GetDuration("RETRY_COOLDOWN", 30*time.Second),
		Parallelism:       env.GetInt("PARALLELISM", 2),
		SessionDir:        env.GetWithDefault("SESSION_DIR", "sessions"),
		DiagnosticsDir:    env.GetWithDefault("DIAGNOSTICS_DIR", "diagnostics"),
		SiteProfile:       env.Get("SITE_PROFILE"),
		LogLevel:          env.GetWithDefault("LOG_LEVEL", "info"),
		LogDir:            env.GetWithDefault("LOG_DIR", "log"),
		LogFile:           env.Get("LOG_FILE"),
		LogConsole:        env.GetBool("LOG_CONSOLE", true),
	}
	if env.Get("GEO_LAT") != "" && env.Get("GEO_LON") != "" {
		cfg.Geolocation = &entity.Geolocation{
			Latitude:  env.GetFloat("GEO_LAT", 0),
			Longitude: env.GetFloat("GEO_LON", 0),
		}
	}
	return cfg
}

// Environment is the browsing-context description shared by every attempt.
func (c Config) Environment() entity.EnvironmentConfig {
	return entity.EnvironmentConfig{
		Headless:       c.Headless,
		NoSandbox:      c.NoSandbox,
		ViewportJitter: c.ViewportJitter,
		UserAgent:      c.UserAgent,
		Locale:         c.Locale,
		Languages:      languages(c.Locale),
		Timezone:       c.Timezone,
		Geolocation:    c.Geolocation,
		Suppression:    entity.AllSuppression(),
		NoiseSeed:      c.Seed,
	}
}

func (c Config) Humanize() humanize.Profile {
	p := humanize.DefaultProfile()
	if c.DelayMin > 0 || c.DelayMax > 0 {
		p = p.WithDelayRange(c.DelayMin, c.DelayMax)
	}
	if c.TypoChance >= 0 && c.TypoChance <= 1 {
		p.TypoChance = c.TypoChance
	}
	return p
}

func NewContainer(cfg Config) (*Container, error) {
	log, err := logger.NewLoggerAdapter(cfg.RunName, logger.Config{
		Level:   cfg.LogLevel,
		Dir:     cfg.LogDir,
		File:    cfg.LogFile,
		Console: cfg.LogConsole,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	profile, err := siteprofile.Load(cfg.SiteProfile)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to load site profile: %w", err)
	}

	store, err := sessionstore.NewFileStore(cfg.SessionDir, log)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	diag, err := diagnostics.NewFactory(cfg.DiagnosticsDir, log)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to create diagnostics: %w", err)
	}

	browserCfg := rod.DefaultConfig()
	browserCfg.Bin = cfg.ChromeBin
	if cfg.NavigationTimeout > 0 {
		browserCfg.NavigationTimeout = cfg.NavigationTimeout
	}
	provisioner := rod.NewProvisioner(browserCfg, log)

	engine := orchestrator.New(
		profile,
		provisioner,
		store,
		diag,
		selector.NewResolver(cfg.SelectorTimeout, log),
		supervisor.New(cfg.RetryCooldown, log),
		log,
		orchestrator.Config{
			Environment: cfg.Environment(),
			Humanize:    cfg.Humanize(),
			Seed:        cfg.Seed,
			MaxAttempts: cfg.MaxAttempts,
			Parallelism: cfg.Parallelism,
			Login:       login.DefaultConfig(),
			Extraction:  extraction.DefaultConfig(),
		},
	)

	log.Info("container ready",
		"site", profile.Name,
		"headless", cfg.Headless,
		"session_dir", cfg.SessionDir,
		"diagnostics_dir", cfg.DiagnosticsDir,
		"max_attempts", cfg.MaxAttempts,
	)

	return &Container{
		Logger:  log,
		Profile: profile,
		Engine:  engine,
	}, nil
}

func (c *Container) Close() {
	if c.Logger != nil {
		c.Logger.Close()
	}
}

// languages turns "de-DE" into ["de-DE", "de"].
func languages(locale string) []string {
	if locale == "" {
		return nil
	}
	out := []string{locale}
	if base, _, ok := strings.Cut(locale, "-"); ok && base != "" {
		out = append(out, base)
	}
	return out
}
