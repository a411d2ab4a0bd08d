package humanize

import (
	"context"
	"fmt"
	"math"

	"session-agent/internal/domain/entity"
)

type Direction string

const (
	Down Direction = "down"
	Up   Direction = "up"
)

// Scroll moves the page by roughly amount pixels as several wheel bursts with
// pauses, and sometimes scrolls back a little and forward again.
func (e *Emulator) Scroll(ctx context.Context, dir Direction, amount int) error {
	sign := 1.0
	switch dir {
	case Down, "":
	case Up:
		sign = -1
	default:
		return fmt.Errorf("scroll: unknown direction %q", dir)
	}
	if amount <= 0 {
		return nil
	}
	if err := e.ensureCursor(ctx); err != nil {
		return err
	}

	remaining := amount
	for remaining > 0 {
		burst := e.profile.ScrollBurstPX
		if burst <= 0 || burst > remaining {
			burst = remaining
		}
		events := e.randomInt(e.profile.ScrollBurstEventsMin, e.profile.ScrollBurstEventsMax)
		for _, delta := range planBurstDeltas(events, burst, e.randomFloat) {
			if err := e.device.Wheel(ctx, 0, sign*float64(delta)); err != nil {
				return fmt.Errorf("scroll: %w", err)
			}
			if err := e.sleepBetween(ctx, e.profile.ScrollEventDelayMin, e.profile.ScrollEventDelayMax); err != nil {
				return err
			}
		}
		remaining -= burst
		if remaining > 0 {
			if err := e.sleepBetween(ctx, e.profile.ScrollBurstPauseMin, e.profile.ScrollBurstPauseMax); err != nil {
				return err
			}
		}
	}

	if e.chance(e.profile.ReversalChance) {
		back := float64(e.randomInt(e.profile.ReversalMinPX, e.profile.ReversalMaxPX))
		if err := e.device.Wheel(ctx, 0, -sign*back); err != nil {
			return fmt.Errorf("scroll reversal: %w", err)
		}
		if err := e.sleepBetween(ctx, e.profile.ScrollBurstPauseMin, e.profile.ScrollBurstPauseMax); err != nil {
			return err
		}
		if err := e.device.Wheel(ctx, 0, sign*back); err != nil {
			return fmt.Errorf("scroll reversal: %w", err)
		}
	}
	return nil
}

func (e *Emulator) ensureCursor(ctx context.Context) error {
	if e.hasCursor {
		return nil
	}
	w, h := float64(e.viewport.Width), float64(e.viewport.Height)
	p := e.clamp(entity.Point{
		X: w*0.5 + e.randomFloat(-w*0.08, w*0.08),
		Y: h*0.58 + e.randomFloat(-h*0.1, h*0.1),
	})
	if err := e.device.MoveMouse(ctx, p); err != nil {
		return fmt.Errorf("seed cursor: %w", err)
	}
	e.cursor = p
	e.hasCursor = true
	return nil
}

// pickTargetPoint chooses a point in the central 60% of the target box.
func (e *Emulator) pickTargetPoint(r entity.Rect) entity.Point {
	return e.clamp(entity.Point{
		X: r.X + r.Width*e.randomFloat(0.2, 0.8),
		Y: r.Y + r.Height*e.randomFloat(0.2, 0.8),
	})
}

func (e *Emulator) currentOrSeedCursor(target entity.Point) entity.Point {
	if e.hasCursor {
		return e.clamp(e.cursor)
	}
	offset := func(lo, hi float64) float64 {
		v := e.randomFloat(lo, hi)
		if e.chance(0.5) {
			return -v
		}
		return v
	}
	return e.clamp(entity.Point{X: target.X + offset(40, 180), Y: target.Y + offset(30, 140)})
}

func (e *Emulator) buildPath(start, end entity.Point) []entity.Point {
	dx, dy := end.X-start.X, end.Y-start.Y
	length := math.Hypot(dx, dy)
	steps := int(math.Round(length/9.5)) + e.randomInt(-2, 3)
	steps = clampInt(steps, e.profile.MouseMinSteps, e.profile.MouseMaxSteps)
	if steps < 2 {
		steps = 2
	}
	if length < 0.001 {
		return []entity.Point{start, end}
	}

	perpX, perpY := -dy/length, dx/length
	curve := length * e.randomFloat(0.07, 0.19)
	if e.chance(0.5) {
		curve = -curve
	}
	c1 := entity.Point{X: start.X + dx*0.33 + perpX*curve, Y: start.Y + dy*0.33 + perpY*curve}
	c2 := entity.Point{
		X: start.X + dx*0.66 - perpX*curve*e.randomFloat(0.55, 1.05),
		Y: start.Y + dy*0.66 - perpY*curve*e.randomFloat(0.55, 1.05),
	}

	path := make([]entity.Point, 0, steps+1)
	for i := 0; i <= steps; i++ {
		p := bezier(start, c1, c2, end, float64(i)/float64(steps))
		if i > 0 && i < steps {
			j := e.profile.MouseJitterPX
			p.X += e.randomFloat(-j, j)
			p.Y += e.randomFloat(-j, j)
		}
		path = append(path, e.clamp(p))
	}
	path[0] = start
	path[len(path)-1] = end
	return path
}

func (e *Emulator) clamp(p entity.Point) entity.Point {
	return entity.Point{
		X: math.Min(math.Max(p.X, 1), float64(e.viewport.Width)-1),
		Y: math.Min(math.Max(p.Y, 1), float64(e.viewport.Height)-1),
	}
}

// planBurstDeltas splits total into n positive deltas, larger in the middle of the burst.
func planBurstDeltas(n, total int, randomFloat func(lo, hi float64) float64) []int {
	if total <= 0 {
		return nil
	}
	if n <= 1 {
		return []int{total}
	}
	if n > total {
		n = total
	}

	weights := make([]float64, n)
	sum := 0.0
	for i := range weights {
		t := float64(i) / float64(n-1)
		w := (0.45 + 0.95*(1-math.Abs(2*t-1))) * randomFloat(0.85, 1.15)
		weights[i] = w
		sum += w
	}

	deltas := make([]int, n)
	assigned := 0
	for i, w := range weights {
		d := int(math.Round(float64(total) * w / sum))
		if d < 1 {
			d = 1
		}
		deltas[i] = d
		assigned += d
	}
	for i := 0; assigned != total; i = (i + 1) % n {
		if assigned < total {
			deltas[i]++
			assigned++
		} else if deltas[i] > 1 {
			deltas[i]--
			assigned--
		}
	}
	return deltas
}

func bezier(p0, p1, p2, p3 entity.Point, t float64) entity.Point {
	mt := 1 - t
	a, b, c, d := mt*mt*mt, 3*mt*mt*t, 3*mt*t*t, t*t*t
	return entity.Point{
		X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
		Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
	}
}

func normalizeViewport(v entity.Viewport) entity.Viewport {
	if v.Width < 64 {
		v.Width = 1280
	}
	if v.Height < 64 {
		v.Height = 720
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
