package humanize

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"session-agent/internal/application/port/output"
	"session-agent/internal/domain/entity"
)

// Sleeper suspends for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Emulator mediates every pointer and keyboard action of one attempt.
// It is not safe for concurrent use, matching the one-actor model of a context.
type Emulator struct {
	profile   Profile
	rng       *rand.Rand
	device    output.InputDevice
	viewport  entity.Viewport
	sleep     Sleeper
	cursor    entity.Point
	hasCursor bool
}

type Option func(*Emulator)

func WithSleeper(s Sleeper) Option {
	return func(e *Emulator) {
		if s != nil {
			e.sleep = s
		}
	}
}

func WithSeed(seed int64) Option {
	return func(e *Emulator) {
		e.rng = rand.New(rand.NewSource(seed))
	}
}

func New(profile Profile, device output.InputDevice, viewport entity.Viewport, opts ...Option) *Emulator {
	e := &Emulator{
		profile:  profile,
		device:   device,
		viewport: normalizeViewport(viewport),
		sleep:    SleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return e
}

func (e *Emulator) Profile() Profile {
	return e.profile
}

// Delay sleeps for a duration drawn uniformly from the profile's delay range.
func (e *Emulator) Delay(ctx context.Context) error {
	return e.sleepBetween(ctx, e.profile.MinDelay, e.profile.MaxDelay)
}

// MovePointer travels along a curved multi-step path into a random sub-region of target.
func (e *Emulator) MovePointer(ctx context.Context, target entity.Rect) error {
	if target.Empty() {
		return fmt.Errorf("move pointer: empty target region")
	}
	end := e.pickTargetPoint(target)
	start := e.currentOrSeedCursor(end)

	path := e.buildPath(start, end)
	for i, p := range path {
		if err := e.device.MoveMouse(ctx, p); err != nil {
			return fmt.Errorf("move pointer: %w", err)
		}
		if i < len(path)-1 {
			if err := e.sleepBetween(ctx, e.profile.MouseStepMin, e.profile.MouseStepMax); err != nil {
				return err
			}
		}
	}
	e.cursor = end
	e.hasCursor = true
	return nil
}

func (e *Emulator) Click(ctx context.Context, el output.ElementHandle) error {
	if err := el.ScrollIntoView(ctx); err != nil {
		return fmt.Errorf("click: scroll into view: %w", err)
	}
	box, err := el.Box(ctx)
	if err != nil {
		return fmt.Errorf("click: element box: %w", err)
	}
	if err := e.MovePointer(ctx, box); err != nil {
		return err
	}
	if err := e.sleepBetween(ctx, e.profile.ClickDwellMin, e.profile.ClickDwellMax); err != nil {
		return err
	}
	if err := e.device.MouseDown(ctx); err != nil {
		return fmt.Errorf("click: mouse down: %w", err)
	}
	if err := e.sleepBetween(ctx, e.profile.ClickHoldMin, e.profile.ClickHoldMax); err != nil {
		return err
	}
	if err := e.device.MouseUp(ctx); err != nil {
		return fmt.Errorf("click: mouse up: %w", err)
	}
	return e.Delay(ctx)
}

// TypeText clicks the field and types text one rune at a time, occasionally
// hitting an adjacent key first and correcting it.
func (e *Emulator) TypeText(ctx context.Context, el output.ElementHandle, text string) error {
	if err := e.Click(ctx, el); err != nil {
		return err
	}
	if err := el.Focus(ctx); err != nil {
		return fmt.Errorf("type: focus: %w", err)
	}

	for _, ks := range e.planKeystrokes(text) {
		var err error
		if ks.backspace {
			err = e.device.Backspace(ctx)
		} else {
			err = e.device.InsertText(ctx, string(ks.r))
		}
		if err != nil {
			return fmt.Errorf("type: %w", err)
		}
		if err := e.sleep(ctx, ks.delay); err != nil {
			return err
		}
	}
	return e.Delay(ctx)
}

func (e *Emulator) PressEnter(ctx context.Context) error {
	if err := e.sleepBetween(ctx, e.profile.ClickDwellMin, e.profile.ClickDwellMax); err != nil {
		return err
	}
	if err := e.device.Enter(ctx); err != nil {
		return fmt.Errorf("press enter: %w", err)
	}
	return e.Delay(ctx)
}

func (e *Emulator) sleepBetween(ctx context.Context, lo, hi time.Duration) error {
	return e.sleep(ctx, e.randomDuration(lo, hi))
}

func (e *Emulator) randomDuration(lo, hi time.Duration) time.Duration {
	if hi < lo {
		lo, hi = hi, lo
	}
	if hi == lo {
		return lo
	}
	return lo + time.Duration(e.rng.Int63n(int64(hi-lo)+1))
}

func (e *Emulator) randomInt(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	if lo == hi {
		return lo
	}
	return lo + e.rng.Intn(hi-lo+1)
}

func (e *Emulator) randomFloat(lo, hi float64) float64 {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + e.rng.Float64()*(hi-lo)
}

func (e *Emulator) chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return e.rng.Float64() < p
}
