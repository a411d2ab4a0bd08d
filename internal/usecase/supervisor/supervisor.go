// Package supervisor bounds and paces login attempts for one account.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"session-agent/internal/application/port/output"
	"session-agent/internal/domain/entity"

	"github.com/cenkalti/backoff/v4"
)

const defaultCooldown = 30 * time.Second

// AttemptFunc runs one full attempt. attempt is 1-based.
type AttemptFunc func(ctx context.Context, attempt int) (entity.AuthAttemptResult, error)

type Report struct {
	Result   entity.AuthAttemptResult
	Attempts int
	// Err is the error behind the final result, if any.
	Err error
}

type Supervisor struct {
	logger         output.LoggerPort
	backoffFactory func() backoff.BackOff
}

type Option func(*Supervisor)

// WithBackOffFactory replaces the cooldown schedule.
func WithBackOffFactory(f func() backoff.BackOff) Option {
	return func(s *Supervisor) {
		s.backoffFactory = f
	}
}

// New returns a supervisor whose cooldowns grow exponentially from cooldown.
func New(cooldown time.Duration, logger output.LoggerPort, opts ...Option) *Supervisor {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	s := &Supervisor{
		logger: logger,
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = cooldown
			b.MaxInterval = 8 * cooldown
			b.MaxElapsedTime = 0
			b.Reset()
			return b
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var errRetry = errors.New("attempt failed")

// Run calls fn until it authenticates, hits a challenge, fails fatally, or
// maxAttempts attempts have been made. Only failed results are retried, and
// nothing fn raises, panics included, escapes as anything but a Report.
func (s *Supervisor) Run(ctx context.Context, fn AttemptFunc, maxAttempts int) Report {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var rep Report
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		rep.Attempts++
		logger := s.logger.WithField("attempt", rep.Attempts)
		logger.Info("attempt started", "max_attempts", maxAttempts)

		res, err := s.call(ctx, fn, rep.Attempts)
		rep.Result, rep.Err = res, err

		switch {
		case entity.IsFatal(err):
			logger.Error("attempt failed fatally", "error", err)
			return backoff.Permanent(err)
		case res.IsAuthenticated(), res.IsChallenge():
			logger.Info("attempt finished", "result", res.String())
			return nil
		case entity.IsStepLocal(err):
			logger.Warn("attempt failed", "result", res.String(), "step_error", err)
			return errRetry
		case err != nil:
			logger.Error("attempt failed unexpectedly", "result", res.String(), "error", err)
			return errRetry
		default:
			logger.Warn("attempt failed", "result", res.String())
			return errRetry
		}
	}
	notify := func(_ error, wait time.Duration) {
		s.logger.Info("cooling down before next attempt", "wait", wait, "next_attempt", rep.Attempts+1)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.backoffFactory(), uint64(maxAttempts-1)), ctx)
	_ = backoff.RetryNotify(operation, b, notify)

	if rep.Result.IsFailed() && entity.IsFatal(rep.Err) {
		rep.Result.Fatal = true
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !rep.Result.IsAuthenticated() && !rep.Result.IsChallenge() {
		if rep.Result.Outcome == "" {
			rep.Result = entity.Failed("cancelled: "+ctxErr.Error(), "")
		}
		rep.Err = ctxErr
	}
	s.logger.Info("supervisor finished", "attempts", rep.Attempts, "result", rep.Result.String())
	return rep
}

// call runs fn and turns a panic or a bare error into a failed result.
func (s *Supervisor) call(ctx context.Context, fn AttemptFunc, attempt int) (res entity.AuthAttemptResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("attempt panicked: %v", r)
			res = entity.Failed(err.Error(), "")
			s.logger.Error("attempt panicked", "panic", r)
		}
	}()
	res, err = fn(ctx, attempt)
	if err != nil && res.Outcome == "" {
		res = entity.Failed(err.Error(), "")
	}
	return res, err
}
