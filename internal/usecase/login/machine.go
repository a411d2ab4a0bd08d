// Package login drives one authentication attempt through an explicit state
// machine, recording diagnostics at every transition.
package login

import (
	"context"
	"fmt"
	"time"

	"session-agent/internal/application/port/output"
	"session-agent/internal/application/service"
	"session-agent/internal/domain/entity"
	"session-agent/internal/usecase/humanize"
	"session-agent/internal/usecase/selector"
)

type State string

const (
	StateStart               State = "start"
	StateSessionCheck        State = "session_check"
	StateNeedsLogin          State = "needs_login"
	StateUsernameEntry       State = "username_entry"
	StateNextClick           State = "next_click"
	StateEmailChallenge      State = "email_challenge"
	StatePasswordEntry       State = "password_entry"
	StateSubmitClick         State = "submit_click"
	StateVerify              State = "verify"
	StateAuthenticated       State = "authenticated"
	StateTwoFactorChallenge  State = "two_factor_challenge"
	StateSuspiciousChallenge State = "suspicious_activity_challenge"
	StateFailed              State = "failed"
)

const (
	defaultVerifyWait       = 10 * time.Second
	defaultSessionProbeWait = 5 * time.Second
)

type Config struct {
	// VerifyWait bounds how long Verify polls for any post-submit marker.
	VerifyWait time.Duration
	// SessionProbeWait bounds the landmark probe after restoring a session.
	SessionProbeWait time.Duration
	// ChallengeProbeWait bounds the optional email challenge probe.
	ChallengeProbeWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		VerifyWait:         defaultVerifyWait,
		SessionProbeWait:   defaultSessionProbeWait,
		ChallengeProbeWait: 2 * time.Second,
	}
}

type Machine struct {
	profile  entity.SiteProfile
	locators output.LocatorRegistry
	resolver *selector.Resolver
	store    output.SessionStore
	logger   output.LoggerPort
	cfg      Config
}

func NewMachine(profile entity.SiteProfile, resolver *selector.Resolver, store output.SessionStore, logger output.LoggerPort, cfg Config) *Machine {
	return &Machine{
		profile:  profile,
		locators: service.NewLocatorRegistry(profile.Locators...),
		resolver: resolver,
		store:    store,
		logger:   logger,
		cfg:      cfg,
	}
}

// Attempt bundles everything owned by a single attempt. None of it is shared
// with other attempts.
type Attempt struct {
	AccountKey  string
	Credentials entity.Credentials
	Browser     output.BrowserContext
	Emulator    *humanize.Emulator
	Diagnostics output.DiagnosticsRecorder
	// Restored is true when the context was provisioned from a saved session.
	Restored bool
}

type run struct {
	m      *Machine
	a      Attempt
	logger output.LoggerPort
	state  State
}

// Run walks the machine to a terminal state. Step-local failures (missing
// fields, navigation timeouts) come back as a failed result together with the
// error so the caller can classify it.
func (m *Machine) Run(ctx context.Context, a Attempt) (entity.AuthAttemptResult, error) {
	r := &run{m: m, a: a, logger: m.logger.WithField("account", a.AccountKey)}
	r.enter(ctx, StateStart)

	res, err := r.sessionCheck(ctx)
	if err != nil || res != nil {
		return r.finish(ctx, res, err)
	}
	res, err = r.login(ctx)
	return r.finish(ctx, res, err)
}

func (r *run) finish(ctx context.Context, res *entity.AuthAttemptResult, err error) (entity.AuthAttemptResult, error) {
	if err != nil {
		r.logger.Warn("login step failed", "state", r.state, "error", err)
		ev := r.enter(ctx, StateFailed)
		return entity.Failed(err.Error(), ev), err
	}
	return *res, nil
}

func (r *run) enter(ctx context.Context, s State) entity.EvidenceRef {
	prev := r.state
	r.state = s
	entry := r.a.Diagnostics.Record(ctx, string(s))
	r.logger.Info("login transition", "from", prev, "to", s, "evidence", entry.ID)
	return entry.ID
}

func (r *run) sessionCheck(ctx context.Context) (*entity.AuthAttemptResult, error) {
	r.enter(ctx, StateSessionCheck)
	if !r.a.Restored {
		r.enter(ctx, StateNeedsLogin)
		return nil, nil
	}

	if err := r.navigate(ctx, r.m.profile.HomeURL); err != nil {
		return nil, err
	}
	landmark, ok := r.m.locators.Get(entity.FieldLandmark)
	if ok {
		if _, found := r.m.resolver.Probe(ctx, r.a.Browser, landmark, r.m.cfg.SessionProbeWait); found {
			ev := r.enter(ctx, StateAuthenticated)
			r.logger.Info("restored session accepted")
			return r.authenticated(ctx, ev), nil
		}
	}
	r.logger.Info("restored session rejected, logging in")
	r.enter(ctx, StateNeedsLogin)
	return nil, nil
}

func (r *run) login(ctx context.Context) (*entity.AuthAttemptResult, error) {
	if err := r.navigate(ctx, r.m.profile.LoginURL); err != nil {
		return nil, err
	}

	r.enter(ctx, StateUsernameEntry)
	if err := r.typeInto(ctx, entity.FieldUsername, r.a.Credentials.Username); err != nil {
		return nil, err
	}

	r.enter(ctx, StateNextClick)
	if err := r.click(ctx, entity.FieldNextButton); err != nil {
		return nil, err
	}

	if err := r.emailChallenge(ctx); err != nil {
		return nil, err
	}

	r.enter(ctx, StatePasswordEntry)
	if err := r.typeInto(ctx, entity.FieldPassword, r.a.Credentials.Password); err != nil {
		return nil, err
	}

	r.enter(ctx, StateSubmitClick)
	if err := r.click(ctx, entity.FieldSubmitButton); err != nil {
		if !entity.IsFieldNotFound(err) {
			return nil, err
		}
		r.logger.Warn("submit button not found, pressing enter in password field", "error", err)
		if err := r.a.Emulator.PressEnter(ctx); err != nil {
			return nil, fmt.Errorf("submit: %w", err)
		}
	}

	return r.verify(ctx), nil
}

// emailChallenge handles the optional identity prompt shown between the
// username and password steps.
func (r *run) emailChallenge(ctx context.Context) error {
	loc, ok := r.m.locators.Get(entity.FieldEmailInput)
	if !ok {
		return nil
	}
	el, found := r.m.resolver.Probe(ctx, r.a.Browser, loc, r.m.cfg.ChallengeProbeWait)
	if !found {
		return nil
	}
	r.enter(ctx, StateEmailChallenge)
	value := r.a.Credentials.Email
	if value == "" {
		value = r.a.Credentials.Username
	}
	if err := r.a.Emulator.TypeText(ctx, el, value); err != nil {
		return fmt.Errorf("email challenge: %w", err)
	}
	if err := r.click(ctx, entity.FieldEmailNext); err != nil {
		if !entity.IsFieldNotFound(err) {
			return err
		}
		return r.a.Emulator.PressEnter(ctx)
	}
	return nil
}

func (r *run) verify(ctx context.Context) *entity.AuthAttemptResult {
	r.enter(ctx, StateVerify)

	fields := []entity.FieldName{entity.FieldLandmark, entity.FieldTwoFactorInput, entity.FieldSuspiciousActivity}
	locs := make([]entity.FieldLocator, len(fields))
	for i, f := range fields {
		locs[i], _ = r.m.locators.Get(f)
		locs[i].Field = f
	}

	var res entity.AuthAttemptResult
	idx, _ := r.m.resolver.ProbeAny(ctx, r.a.Browser, r.m.cfg.VerifyWait, locs...)
	switch idx {
	case 0:
		res = *r.authenticated(ctx, r.enter(ctx, StateAuthenticated))
	case 1:
		res = entity.ChallengeDetected(entity.ChallengeTwoFactor, r.enter(ctx, StateTwoFactorChallenge))
	case 2:
		res = entity.ChallengeDetected(entity.ChallengeSuspiciousActivity, r.enter(ctx, StateSuspiciousChallenge))
	default:
		res = entity.Failed(entity.ReasonUnrecognizedState, r.enter(ctx, StateFailed))
	}
	r.logger.Info("login verified", "result", res.String())
	return &res
}

// authenticated persists the session. A failed save does not undo the login;
// the next attempt simply logs in again.
func (r *run) authenticated(ctx context.Context, ev entity.EvidenceRef) *entity.AuthAttemptResult {
	session, err := r.m.store.Save(ctx, r.a.Browser, r.a.AccountKey)
	if err != nil {
		r.logger.Error("save session failed", "error", err)
	}
	res := entity.Authenticated(session, ev)
	return &res
}

func (r *run) navigate(ctx context.Context, url string) error {
	if err := r.a.Browser.Navigate(ctx, url); err != nil {
		return err
	}
	return r.a.Emulator.Delay(ctx)
}

func (r *run) resolve(ctx context.Context, field entity.FieldName) (output.ElementHandle, error) {
	loc, ok := r.m.locators.Get(field)
	if !ok {
		return nil, &entity.FieldNotFoundError{Field: field}
	}
	return r.m.resolver.Resolve(ctx, r.a.Browser, loc)
}

func (r *run) typeInto(ctx context.Context, field entity.FieldName, text string) error {
	el, err := r.resolve(ctx, field)
	if err != nil {
		return err
	}
	if err := r.a.Emulator.TypeText(ctx, el, text); err != nil {
		return fmt.Errorf("type %s: %w", field, err)
	}
	return nil
}

func (r *run) click(ctx context.Context, field entity.FieldName) error {
	el, err := r.resolve(ctx, field)
	if err != nil {
		return err
	}
	if err := r.a.Emulator.Click(ctx, el); err != nil {
		return fmt.Errorf("click %s: %w", field, err)
	}
	return nil
}
