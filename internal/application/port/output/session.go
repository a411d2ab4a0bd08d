package output

import (
	"context"

	"session-agent/internal/domain/entity"
)

type SessionStore interface {
	Save(ctx context.Context, browser BrowserContext, accountKey string) (*entity.SessionState, error)
	Load(accountKey string) (*entity.SessionState, error)
}
