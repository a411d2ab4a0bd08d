package output

import (
	"context"

	"session-agent/internal/domain/entity"
)

// BrowserContext is one isolated browsing environment owned by a single attempt.
// Calls against one context must never be issued concurrently.
type BrowserContext interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL() string
	Query(ctx context.Context, css string) ([]ElementHandle, error)
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) (*entity.Screenshot, error)
	Viewport() entity.Viewport
	Input() InputDevice
	ExportState(ctx context.Context) (*entity.SessionState, error)
	Close() error
}

type ElementHandle interface {
	Visible(ctx context.Context) (bool, error)
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)
	TagName(ctx context.Context) (string, error)
	Box(ctx context.Context) (entity.Rect, error)
	ScrollIntoView(ctx context.Context) error
	Focus(ctx context.Context) error
}

// InputDevice is the raw pointer and keyboard surface. Only the behavior
// emulator may drive it.
type InputDevice interface {
	MoveMouse(ctx context.Context, p entity.Point) error
	MouseDown(ctx context.Context) error
	MouseUp(ctx context.Context) error
	Wheel(ctx context.Context, deltaX, deltaY float64) error
	InsertText(ctx context.Context, text string) error
	Backspace(ctx context.Context) error
	Enter(ctx context.Context) error
}

type Provisioner interface {
	Provision(ctx context.Context, cfg entity.EnvironmentConfig, restore *entity.SessionState) (BrowserContext, error)
}
