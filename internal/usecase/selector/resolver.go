// Package selector turns semantic field locators into live element handles.
package selector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"session-agent/internal/application/port/output"
	"session-agent/internal/domain/entity"
)

const defaultPollInterval = 250 * time.Millisecond

// roleSelectors maps ARIA roles to the elements that carry them implicitly.
var roleSelectors = map[string]string{
	"button":  `button, [role="button"], input[type="submit"], input[type="button"]`,
	"link":    `a[href], [role="link"]`,
	"textbox": `input:not([type]), input[type="text"], input[type="email"], input[type="tel"], input[type="password"], textarea, [role="textbox"]`,
	"heading": `h1, h2, h3, h4, h5, h6, [role="heading"]`,
}

type Resolver struct {
	timeout time.Duration
	poll    time.Duration
	logger  output.LoggerPort
}

type Option func(*Resolver)

func WithPollInterval(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.poll = d
		}
	}
}

// NewResolver builds a resolver that keeps retrying a locator for up to
// timeout. A zero timeout means a single pass.
func NewResolver(timeout time.Duration, logger output.LoggerPort, opts ...Option) *Resolver {
	r := &Resolver{timeout: timeout, poll: defaultPollInterval, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Timeout() time.Duration {
	return r.timeout
}

// Resolve returns the single visible element chosen by the first strategy that
// yields exactly one, or a FieldNotFoundError listing what every strategy saw.
func (r *Resolver) Resolve(ctx context.Context, browser output.BrowserContext, loc entity.FieldLocator) (output.ElementHandle, error) {
	if len(loc.Strategies) == 0 {
		return nil, &entity.FieldNotFoundError{Field: loc.Field}
	}
	deadline := time.Now().Add(r.timeout)
	for {
		el, attempts, err := r.round(ctx, browser, loc)
		if err != nil {
			return nil, err
		}
		if el != nil {
			return el, nil
		}
		if !time.Now().Before(deadline) {
			r.logger.Debug("field not found", "field", loc.Field, "attempts", summarize(attempts))
			return nil, &entity.FieldNotFoundError{Field: loc.Field, Attempts: attempts}
		}
		if err := r.wait(ctx, deadline); err != nil {
			return nil, &entity.FieldNotFoundError{Field: loc.Field, Attempts: attempts}
		}
	}
}

// Probe looks for an optional marker without failing. It polls up to wait.
func (r *Resolver) Probe(ctx context.Context, browser output.BrowserContext, loc entity.FieldLocator, wait time.Duration) (output.ElementHandle, bool) {
	idx, el := r.ProbeAny(ctx, browser, wait, loc)
	return el, idx >= 0
}

// ProbeAny polls several markers together and returns the index of the first
// locator, in declared order, that resolved in the earliest round; -1 if none
// did within wait.
func (r *Resolver) ProbeAny(ctx context.Context, browser output.BrowserContext, wait time.Duration, locs ...entity.FieldLocator) (int, output.ElementHandle) {
	deadline := time.Now().Add(wait)
	for {
		for i, loc := range locs {
			el, _, err := r.round(ctx, browser, loc)
			if err != nil {
				return -1, nil
			}
			if el != nil {
				return i, el
			}
		}
		if !time.Now().Before(deadline) {
			return -1, nil
		}
		if err := r.wait(ctx, deadline); err != nil {
			return -1, nil
		}
	}
}

func (r *Resolver) wait(ctx context.Context, deadline time.Time) error {
	d := r.poll
	if remaining := time.Until(deadline); remaining < d {
		d = remaining
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// round tries every strategy once. Only a closed context is reported as an error;
// everything else is folded into the attempt outcomes.
func (r *Resolver) round(ctx context.Context, browser output.BrowserContext, loc entity.FieldLocator) (output.ElementHandle, []entity.StrategyAttempt, error) {
	attempts := make([]entity.StrategyAttempt, 0, len(loc.Strategies))
	for _, s := range loc.Strategies {
		visible, err := r.candidates(ctx, browser, s)
		if errors.Is(err, entity.ErrContextClosed) {
			return nil, attempts, err
		}
		if err != nil {
			r.logger.Debug("strategy invalid", "field", loc.Field, "strategy", s.String(), "error", err)
			attempts = append(attempts, entity.StrategyAttempt{Strategy: s, Outcome: entity.OutcomeInvalid})
			continue
		}

		attempt := entity.StrategyAttempt{Strategy: s, Visible: len(visible)}
		var chosen output.ElementHandle
		switch {
		case s.Kind == entity.StrategyPositional:
			if s.Index >= 0 && s.Index < len(visible) {
				chosen = visible[s.Index]
			}
			if chosen == nil {
				attempt.Outcome = entity.OutcomeNoMatch
			}
		case len(visible) == 1:
			chosen = visible[0]
		case len(visible) > 1:
			attempt.Outcome = entity.OutcomeAmbiguous
		default:
			attempt.Outcome = entity.OutcomeNoMatch
		}
		if chosen != nil {
			attempt.Outcome = entity.OutcomeMatched
			attempts = append(attempts, attempt)
			r.logger.Debug("field resolved", "field", loc.Field, "strategy", s.String())
			return chosen, attempts, nil
		}
		attempts = append(attempts, attempt)
	}
	return nil, attempts, nil
}

func (r *Resolver) candidates(ctx context.Context, browser output.BrowserContext, s entity.Strategy) ([]output.ElementHandle, error) {
	css, err := strategyCSS(s)
	if err != nil {
		return nil, err
	}
	handles, err := browser.Query(ctx, css)
	if err != nil {
		return nil, err
	}

	visible := make([]output.ElementHandle, 0, len(handles))
	for _, h := range handles {
		ok, err := h.Visible(ctx)
		if errors.Is(err, entity.ErrContextClosed) {
			return nil, err
		}
		if err != nil || !ok {
			continue
		}
		if s.Kind == entity.StrategyRoleText && !textMatches(ctx, h, s.Text) {
			continue
		}
		visible = append(visible, h)
	}
	return visible, nil
}

func strategyCSS(s entity.Strategy) (string, error) {
	switch s.Kind {
	case entity.StrategyAttribute, entity.StrategyPositional:
		if strings.TrimSpace(s.CSS) == "" {
			return "", fmt.Errorf("%w: empty css", entity.ErrInvalidSelector)
		}
		return s.CSS, nil
	case entity.StrategyRoleText:
		role := strings.ToLower(strings.TrimSpace(s.Role))
		if role == "" {
			return "", fmt.Errorf("%w: empty role", entity.ErrInvalidSelector)
		}
		if css, ok := roleSelectors[role]; ok {
			return css, nil
		}
		return fmt.Sprintf(`[role=%q]`, role), nil
	default:
		return "", fmt.Errorf("%w: unknown strategy kind %q", entity.ErrInvalidSelector, s.Kind)
	}
}

// textMatches is a case-insensitive substring match against the element's
// text, falling back to aria-label and the value of submit inputs.
func textMatches(ctx context.Context, h output.ElementHandle, pattern string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return true
	}
	if text, err := h.Text(ctx); err == nil && strings.Contains(strings.ToLower(text), pattern) {
		return true
	}
	for _, attr := range []string{"aria-label", "value"} {
		if v, ok, err := h.Attribute(ctx, attr); err == nil && ok && strings.Contains(strings.ToLower(v), pattern) {
			return true
		}
	}
	return false
}

func summarize(attempts []entity.StrategyAttempt) []string {
	out := make([]string, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, fmt.Sprintf("%s=%s(%d)", a.Strategy, a.Outcome, a.Visible))
	}
	return out
}
