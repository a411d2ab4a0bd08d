package output

import (
	"context"

	"session-agent/internal/domain/entity"
)

type DiagnosticsRecorder interface {
	Record(ctx context.Context, label string) entity.DiagnosticsEntry
	Entries() []entity.DiagnosticsEntry
}

// DiagnosticsFactory opens an attempt-scoped recorder bound to one context.
type DiagnosticsFactory interface {
	ForAttempt(accountKey, attemptID string, browser BrowserContext) (DiagnosticsRecorder, error)
}
