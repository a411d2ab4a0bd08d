// Package orchestrator wires provisioning, login, extraction and retries into
// one run per account.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"session-agent/internal/application/port/input"
	"session-agent/internal/application/port/output"
	"session-agent/internal/domain/entity"
	"session-agent/internal/usecase/extraction"
	"session-agent/internal/usecase/humanize"
	"session-agent/internal/usecase/login"
	"session-agent/internal/usecase/selector"
	"session-agent/internal/usecase/supervisor"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultMaxAttempts = 3

var _ input.SessionEngine = (*Engine)(nil)

type Config struct {
	Environment entity.EnvironmentConfig
	Humanize    humanize.Profile
	// Seed makes every emulator deterministic when non-zero. Attempt n uses Seed+n.
	Seed        int64
	MaxAttempts int
	// Parallelism caps concurrent accounts in RunMany; 0 means unlimited.
	Parallelism int
	Login       login.Config
	Extraction  extraction.Config
}

type Engine struct {
	profile     entity.SiteProfile
	provisioner output.Provisioner
	store       output.SessionStore
	diagnostics output.DiagnosticsFactory
	machine     *login.Machine
	supervisor  *supervisor.Supervisor
	logger      output.LoggerPort
	cfg         Config
}

func New(
	profile entity.SiteProfile,
	provisioner output.Provisioner,
	store output.SessionStore,
	diagnostics output.DiagnosticsFactory,
	resolver *selector.Resolver,
	sup *supervisor.Supervisor,
	logger output.LoggerPort,
	cfg Config,
) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	return &Engine{
		profile:     profile,
		provisioner: provisioner,
		store:       store,
		diagnostics: diagnostics,
		machine:     login.NewMachine(profile, resolver, store, logger, cfg.Login),
		supervisor:  sup,
		logger:      logger,
		cfg:         cfg,
	}
}

// Run acquires a session for one account and, once authenticated, extracts up
// to req.MaxRecords records.
func (e *Engine) Run(ctx context.Context, req entity.Request) *entity.RunReport {
	start := time.Now()
	key := accountKey(req)
	logger := e.logger.WithField("account", key)

	report := &entity.RunReport{AccountKey: key}
	if !req.Credentials.Valid() {
		report.Result = entity.Failed("invalid request: username and password are required", "")
		report.Result.Fatal = true
		logger.Error("run rejected", "reason", report.Result.Reason)
		return report
	}
	target, err := targetURL(e.profile, req)
	if err != nil {
		report.Result = entity.Failed("invalid request: "+err.Error(), "")
		report.Result.Fatal = true
		logger.Error("run rejected", "reason", report.Result.Reason)
		return report
	}
	req.TargetURL = target

	logger.Info("run started", "max_attempts", e.cfg.MaxAttempts, "max_records", req.MaxRecords)

	var mu sync.Mutex
	attempt := func(ctx context.Context, n int) (entity.AuthAttemptResult, error) {
		out := e.attempt(ctx, req, key, n)
		mu.Lock()
		defer mu.Unlock()
		report.Trail = append(report.Trail, out.trail...)
		report.Records = out.records
		return out.result, out.err
	}

	rep := e.supervisor.Run(ctx, attempt, e.cfg.MaxAttempts)
	report.Result = rep.Result
	report.Attempts = rep.Attempts
	report.Duration = time.Since(start)

	logger.Info("run finished",
		"result", report.Result.String(),
		"attempts", report.Attempts,
		"records", len(report.Records),
		"duration", report.Duration,
	)
	return report
}

// RunMany runs independent accounts concurrently, each with its own context,
// session key and diagnostics directory. Reports keep the order of reqs.
func (e *Engine) RunMany(ctx context.Context, reqs []entity.Request) []*entity.RunReport {
	reports := make([]*entity.RunReport, len(reqs))
	var g errgroup.Group
	if e.cfg.Parallelism > 0 {
		g.SetLimit(e.cfg.Parallelism)
	}
	for i, req := range reqs {
		g.Go(func() error {
			reports[i] = e.Run(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

type attemptOutcome struct {
	result  entity.AuthAttemptResult
	err     error
	records []entity.ExtractedRecord
	trail   []entity.DiagnosticsEntry
}

func (e *Engine) attempt(ctx context.Context, req entity.Request, key string, n int) (out attemptOutcome) {
	attemptID := fmt.Sprintf("%02d-%s", n, uuid.NewString()[:8])
	logger := e.logger.WithFields(map[string]any{"account": key, "attempt": attemptID})

	restore, err := e.store.Load(key)
	if err != nil {
		logger.Warn("saved session unusable, starting fresh", "error", err)
		restore = nil
	}

	browser, err := e.provisioner.Provision(ctx, e.cfg.Environment, restore)
	if err != nil {
		if !entity.IsFatal(err) {
			err = &entity.ProvisionError{Err: err}
		}
		out.err = err
		out.result = entity.Failed(err.Error(), "")
		return out
	}
	defer func() {
		if err := browser.Close(); err != nil {
			logger.Warn("close browser failed", "error", err)
		}
	}()

	recorder, err := e.diagnostics.ForAttempt(key, attemptID, browser)
	if err != nil {
		out.err = fmt.Errorf("open diagnostics: %w", err)
		out.result = entity.Failed(out.err.Error(), "")
		return out
	}
	defer func() { out.trail = recorder.Entries() }()

	var opts []humanize.Option
	if e.cfg.Seed != 0 {
		opts = append(opts, humanize.WithSeed(e.cfg.Seed+int64(n)))
	}
	emulator := humanize.New(e.cfg.Humanize, browser.Input(), browser.Viewport(), opts...)

	out.result, out.err = e.machine.Run(ctx, login.Attempt{
		AccountKey:  key,
		Credentials: req.Credentials,
		Browser:     browser,
		Emulator:    emulator,
		Diagnostics: recorder,
		Restored:    !restore.Empty(),
	})
	if out.err != nil || !out.result.IsAuthenticated() || req.MaxRecords <= 0 {
		return out
	}

	pipeline, err := extraction.NewPipeline(e.profile.RecordSchema, emulator, logger, e.cfg.Extraction)
	if err != nil {
		logger.Error("extraction unavailable", "error", err)
		return out
	}
	records, err := extraction.Collect(pipeline.Extract(ctx, browser, req.TargetURL, req.MaxRecords))
	if err != nil {
		logger.Warn("extraction stopped early", "records", len(records), "error", err)
	}
	out.records = records
	return out
}

// targetURL picks the page to extract from: the explicit target, else the
// profile's search for req.Query, else the page login lands on.
func targetURL(profile entity.SiteProfile, req entity.Request) (string, error) {
	if req.TargetURL != "" {
		return req.TargetURL, nil
	}
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return "", nil
	}
	return profile.SearchTarget(q)
}

func accountKey(req entity.Request) string {
	if k := strings.TrimSpace(req.AccountKey); k != "" {
		return k
	}
	return strings.ToLower(strings.TrimSpace(req.Credentials.Username))
}
