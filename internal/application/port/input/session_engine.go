package input

import (
	"context"

	"session-agent/internal/domain/entity"
)

// SessionEngine is the surface the outer CLI/API layer calls into.
type SessionEngine interface {
	Run(ctx context.Context, req entity.Request) *entity.RunReport
	RunMany(ctx context.Context, reqs []entity.Request) []*entity.RunReport
}
