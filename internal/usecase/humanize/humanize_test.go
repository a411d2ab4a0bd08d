package humanize

import (
	"context"
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	"session-agent/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDevice struct {
	moves  []entity.Point
	wheels []float64
	downs  int
	ups    int
	enters int
	buffer string
	keys   []string
	fail   error
}

func (d *recordingDevice) MoveMouse(_ context.Context, p entity.Point) error {
	if d.fail != nil {
		return d.fail
	}
	d.moves = append(d.moves, p)
	return nil
}

func (d *recordingDevice) MouseDown(context.Context) error { d.downs++; return d.fail }
func (d *recordingDevice) MouseUp(context.Context) error   { d.ups++; return d.fail }

func (d *recordingDevice) Wheel(_ context.Context, _, dy float64) error {
	d.wheels = append(d.wheels, dy)
	return d.fail
}

func (d *recordingDevice) InsertText(_ context.Context, text string) error {
	d.buffer += text
	d.keys = append(d.keys, text)
	return d.fail
}

func (d *recordingDevice) Backspace(context.Context) error {
	if d.buffer != "" {
		_, size := utf8.DecodeLastRuneInString(d.buffer)
		d.buffer = d.buffer[:len(d.buffer)-size]
	}
	d.keys = append(d.keys, "<bs>")
	return d.fail
}

func (d *recordingDevice) Enter(context.Context) error { d.enters++; return d.fail }

type stubElement struct {
	box      entity.Rect
	scrolled bool
	focused  bool
}

func (e *stubElement) Visible(context.Context) (bool, error)  { return true, nil }
func (e *stubElement) Text(context.Context) (string, error)   { return "", nil }
func (e *stubElement) TagName(context.Context) (string, error) { return "input", nil }
func (e *stubElement) Attribute(context.Context, string) (string, bool, error) {
	return "", false, nil
}
func (e *stubElement) Box(context.Context) (entity.Rect, error) { return e.box, nil }
func (e *stubElement) ScrollIntoView(context.Context) error    { e.scrolled = true; return nil }
func (e *stubElement) Focus(context.Context) error             { e.focused = true; return nil }

type sleepLog struct {
	total time.Duration
	calls []time.Duration
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	s.total += d
	return ctx.Err()
}

func newTestEmulator(p Profile, seed int64) (*Emulator, *recordingDevice, *sleepLog) {
	dev := &recordingDevice{}
	sl := &sleepLog{}
	e := New(p, dev, entity.Viewport{Width: 1280, Height: 720}, WithSeed(seed), WithSleeper(sl.sleep))
	return e, dev, sl
}

func TestDelay_StaysWithinConfiguredRange(t *testing.T) {
	p := DefaultProfile().WithDelayRange(200*time.Millisecond, 500*time.Millisecond)
	e, _, sl := newTestEmulator(p, 1)

	for i := 0; i < 200; i++ {
		require.NoError(t, e.Delay(context.Background()))
	}
	require.Len(t, sl.calls, 200)
	distinct := map[time.Duration]struct{}{}
	for _, d := range sl.calls {
		assert.GreaterOrEqual(t, d, 200*time.Millisecond)
		assert.LessOrEqual(t, d, 500*time.Millisecond)
		distinct[d] = struct{}{}
	}
	assert.Greater(t, len(distinct), 50, "delays should vary")
}

func TestWithDelayRange_SwapsReversedBounds(t *testing.T) {
	p := DefaultProfile().WithDelayRange(3*time.Second, time.Second)
	assert.Equal(t, time.Second, p.MinDelay)
	assert.Equal(t, 3*time.Second, p.MaxDelay)
}

func TestDelay_DefaultProfileRange(t *testing.T) {
	e, _, sl := newTestEmulator(DefaultProfile(), 2)
	require.NoError(t, e.Delay(context.Background()))
	assert.GreaterOrEqual(t, sl.calls[0], 800*time.Millisecond)
	assert.LessOrEqual(t, sl.calls[0], 2500*time.Millisecond)
}

func TestDelay_CancelledContext(t *testing.T) {
	e, _, _ := newTestEmulator(DefaultProfile(), 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Delay(ctx), context.Canceled)
}

func TestSleepContext_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go cancel()
	start := time.Now()
	err := SleepContext(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestMovePointer_CurvedPathEndsInsideTarget(t *testing.T) {
	e, dev, _ := newTestEmulator(Instant(), 4)
	target := entity.Rect{X: 600, Y: 400, Width: 120, Height: 40}

	require.NoError(t, e.MovePointer(context.Background(), target))

	require.Greater(t, len(dev.moves), 2, "a pointer move must be more than a teleport")
	last := dev.moves[len(dev.moves)-1]
	assert.GreaterOrEqual(t, last.X, target.X)
	assert.LessOrEqual(t, last.X, target.X+target.Width)
	assert.GreaterOrEqual(t, last.Y, target.Y)
	assert.LessOrEqual(t, last.Y, target.Y+target.Height)

	for _, p := range dev.moves {
		assert.GreaterOrEqual(t, p.X, 0.0)
		assert.LessOrEqual(t, p.X, 1280.0)
		assert.GreaterOrEqual(t, p.Y, 0.0)
		assert.LessOrEqual(t, p.Y, 720.0)
	}
}

func TestMovePointer_NotAStraightLine(t *testing.T) {
	e, dev, _ := newTestEmulator(Instant(), 5)
	require.NoError(t, e.MovePointer(context.Background(), entity.Rect{X: 100, Y: 100, Width: 10, Height: 10}))
	firstLen := len(dev.moves)
	require.NoError(t, e.MovePointer(context.Background(), entity.Rect{X: 1000, Y: 600, Width: 10, Height: 10}))

	second := dev.moves[firstLen:]
	require.Greater(t, len(second), 3)
	start, end := second[0], second[len(second)-1]
	maxDeviation := 0.0
	for _, p := range second[1 : len(second)-1] {
		// distance from the straight chord
		num := (end.Y-start.Y)*p.X - (end.X-start.X)*p.Y + end.X*start.Y - end.Y*start.X
		if num < 0 {
			num = -num
		}
		den := (end.Y-start.Y)*(end.Y-start.Y) + (end.X-start.X)*(end.X-start.X)
		d := num * num / den
		if d > maxDeviation {
			maxDeviation = d
		}
	}
	assert.Greater(t, maxDeviation, 4.0)
}

func TestMovePointer_EmptyTarget(t *testing.T) {
	e, dev, _ := newTestEmulator(Instant(), 6)
	assert.Error(t, e.MovePointer(context.Background(), entity.Rect{X: 10, Y: 10}))
	assert.Empty(t, dev.moves)
}

func TestMovePointer_SameSeedSamePath(t *testing.T) {
	target := entity.Rect{X: 300, Y: 300, Width: 80, Height: 30}
	a, devA, _ := newTestEmulator(Instant(), 42)
	b, devB, _ := newTestEmulator(Instant(), 42)
	require.NoError(t, a.MovePointer(context.Background(), target))
	require.NoError(t, b.MovePointer(context.Background(), target))
	assert.Equal(t, devA.moves, devB.moves)
}

func TestClick_ScrollsMovesAndPresses(t *testing.T) {
	e, dev, sl := newTestEmulator(DefaultProfile(), 7)
	el := &stubElement{box: entity.Rect{X: 50, Y: 50, Width: 100, Height: 30}}

	require.NoError(t, e.Click(context.Background(), el))

	assert.True(t, el.scrolled)
	assert.Equal(t, 1, dev.downs)
	assert.Equal(t, 1, dev.ups)
	assert.NotEmpty(t, dev.moves)
	assert.GreaterOrEqual(t, sl.total, 800*time.Millisecond, "click ends with an inter-action delay")
}

func TestClick_DeviceErrorPropagates(t *testing.T) {
	e, dev, _ := newTestEmulator(Instant(), 8)
	boom := errors.New("boom")
	dev.fail = boom
	err := e.Click(context.Background(), &stubElement{box: entity.Rect{X: 1, Y: 1, Width: 10, Height: 10}})
	assert.ErrorIs(t, err, boom)
}

func TestTypeText_ResultMatchesIntendedText(t *testing.T) {
	texts := []string{"alice", "Sup3r-Secret!", "hello world", "ünïcödé", "", "QwErTy"}
	for seed := int64(0); seed < 25; seed++ {
		for _, chanceP := range []float64{0, 0.3, 1} {
			p := Instant()
			p.TypoChance = chanceP
			for _, text := range texts {
				e, dev, _ := newTestEmulator(p, seed)
				el := &stubElement{box: entity.Rect{X: 10, Y: 10, Width: 100, Height: 20}}
				require.NoError(t, e.TypeText(context.Background(), el, text))
				assert.Equal(t, text, dev.buffer, "seed=%d chance=%v", seed, chanceP)
				assert.True(t, el.focused)
			}
		}
	}
}

func TestTypeText_TyposAreCorrected(t *testing.T) {
	p := Instant()
	p.TypoChance = 1
	e, dev, _ := newTestEmulator(p, 9)

	require.NoError(t, e.TypeText(context.Background(), &stubElement{box: entity.Rect{Width: 10, Height: 10}}, "abc"))

	assert.Equal(t, "abc", dev.buffer)
	assert.Len(t, dev.keys, 9, "each letter is a wrong key, a backspace, then the right key")
	assert.Equal(t, "<bs>", dev.keys[1])
}

func TestTypeText_NoTyposWhenChanceZero(t *testing.T) {
	p := Instant()
	p.TypoChance = 0
	e, dev, _ := newTestEmulator(p, 10)

	require.NoError(t, e.TypeText(context.Background(), &stubElement{box: entity.Rect{Width: 10, Height: 10}}, "password"))

	assert.Equal(t, []string{"p", "a", "s", "s", "w", "o", "r", "d"}, dev.keys)
}

func TestTypeText_PerKeyDelays(t *testing.T) {
	p := DefaultProfile()
	p.TypoChance = 0
	e, _, sl := newTestEmulator(p, 11)

	require.NoError(t, e.TypeText(context.Background(), &stubElement{box: entity.Rect{Width: 10, Height: 10}}, "abcdef"))

	keyDelays := 0
	for _, d := range sl.calls {
		if d >= p.KeyDelayMin && d <= p.KeyDelayMax {
			keyDelays++
		}
	}
	assert.GreaterOrEqual(t, keyDelays, 6)
}

func TestPressEnter(t *testing.T) {
	e, dev, _ := newTestEmulator(Instant(), 12)
	require.NoError(t, e.PressEnter(context.Background()))
	assert.Equal(t, 1, dev.enters)
}

func TestScroll_DeltasSumToAmount(t *testing.T) {
	p := Instant()
	p.ReversalChance = 0
	for seed := int64(0); seed < 20; seed++ {
		e, dev, _ := newTestEmulator(p, seed)
		require.NoError(t, e.Scroll(context.Background(), Down, 1000))

		sum := 0.0
		for _, dy := range dev.wheels {
			assert.Greater(t, dy, 0.0)
			sum += dy
		}
		assert.Equal(t, 1000.0, sum)
		assert.Greater(t, len(dev.wheels), 3, "scroll must be split into bursts")
	}
}

func TestScroll_ReversalNetsOut(t *testing.T) {
	p := Instant()
	p.ReversalChance = 1
	e, dev, _ := newTestEmulator(p, 13)

	require.NoError(t, e.Scroll(context.Background(), Up, 500))

	sum := 0.0
	sawOpposite := false
	for _, dy := range dev.wheels {
		if dy > 0 {
			sawOpposite = true
		}
		sum += dy
	}
	assert.True(t, sawOpposite)
	assert.Equal(t, -500.0, sum)
}

func TestScroll_InvalidDirection(t *testing.T) {
	e, _, _ := newTestEmulator(Instant(), 14)
	assert.Error(t, e.Scroll(context.Background(), Direction("sideways"), 100))
}

func TestScroll_ZeroAmountIsNoop(t *testing.T) {
	e, dev, _ := newTestEmulator(Instant(), 15)
	require.NoError(t, e.Scroll(context.Background(), Down, 0))
	assert.Empty(t, dev.wheels)
	assert.Empty(t, dev.moves)
}

func TestPlanBurstDeltas(t *testing.T) {
	one := func(lo, hi float64) float64 { return (lo + hi) / 2 }
	cases := []struct{ n, total int }{{1, 100}, {5, 320}, {7, 3}, {4, 1}, {6, 999}}
	for _, tc := range cases {
		deltas := planBurstDeltas(tc.n, tc.total, one)
		sum := 0
		for _, d := range deltas {
			assert.GreaterOrEqual(t, d, 1)
			sum += d
		}
		assert.Equal(t, tc.total, sum, "n=%d total=%d", tc.n, tc.total)
	}
	assert.Nil(t, planBurstDeltas(3, 0, one))
}

func TestAdjacentKey(t *testing.T) {
	first := func(lo, _ int) int { return lo }

	r, ok := adjacentKey('a', first)
	require.True(t, ok)
	assert.Equal(t, 'q', r)

	r, ok = adjacentKey('A', first)
	require.True(t, ok)
	assert.Equal(t, 'Q', r)

	_, ok = adjacentKey('7', first)
	assert.False(t, ok)
}

func TestNew_NormalizesTinyViewport(t *testing.T) {
	e := New(Instant(), &recordingDevice{}, entity.Viewport{}, WithSeed(1))
	assert.Equal(t, entity.Viewport{Width: 1280, Height: 720}, e.viewport)
}
