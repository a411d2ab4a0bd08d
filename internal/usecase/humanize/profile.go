package humanize

import "time"

// Profile declares every statistical parameter of the emulator. Nothing random
// happens at call sites; it is all drawn from these ranges.
type Profile struct {
	MinDelay time.Duration
	MaxDelay time.Duration

	KeyDelayMin      time.Duration
	KeyDelayMax      time.Duration
	PunctuationPause time.Duration
	TypoChance       float64
	TypoFixMin       time.Duration
	TypoFixMax       time.Duration

	MouseMinSteps int
	MouseMaxSteps int
	MouseStepMin  time.Duration
	MouseStepMax  time.Duration
	MouseJitterPX float64
	ClickDwellMin time.Duration
	ClickDwellMax time.Duration
	ClickHoldMin  time.Duration
	ClickHoldMax  time.Duration

	ScrollBurstEventsMin int
	ScrollBurstEventsMax int
	ScrollBurstPX        int
	ScrollEventDelayMin  time.Duration
	ScrollEventDelayMax  time.Duration
	ScrollBurstPauseMin  time.Duration
	ScrollBurstPauseMax  time.Duration
	ReversalChance       float64
	ReversalMinPX        int
	ReversalMaxPX        int
}

func DefaultProfile() Profile {
	return Profile{
		MinDelay: 800 * time.Millisecond,
		MaxDelay: 2500 * time.Millisecond,

		KeyDelayMin:      50 * time.Millisecond,
		KeyDelayMax:      200 * time.Millisecond,
		PunctuationPause: 120 * time.Millisecond,
		TypoChance:       0.03,
		TypoFixMin:       80 * time.Millisecond,
		TypoFixMax:       260 * time.Millisecond,

		MouseMinSteps: 12,
		MouseMaxSteps: 48,
		MouseStepMin:  6 * time.Millisecond,
		MouseStepMax:  18 * time.Millisecond,
		MouseJitterPX: 1.4,
		ClickDwellMin: 45 * time.Millisecond,
		ClickDwellMax: 160 * time.Millisecond,
		ClickHoldMin:  30 * time.Millisecond,
		ClickHoldMax:  110 * time.Millisecond,

		ScrollBurstEventsMin: 3,
		ScrollBurstEventsMax: 7,
		ScrollBurstPX:        320,
		ScrollEventDelayMin:  12 * time.Millisecond,
		ScrollEventDelayMax:  40 * time.Millisecond,
		ScrollBurstPauseMin:  180 * time.Millisecond,
		ScrollBurstPauseMax:  600 * time.Millisecond,
		ReversalChance:       0.12,
		ReversalMinPX:        40,
		ReversalMaxPX:        180,
	}
}

// WithDelayRange overrides the inter-action delay bounds, swapping them if given in reverse.
func (p Profile) WithDelayRange(minDelay, maxDelay time.Duration) Profile {
	if maxDelay < minDelay {
		minDelay, maxDelay = maxDelay, minDelay
	}
	p.MinDelay = minDelay
	p.MaxDelay = maxDelay
	return p
}

// Instant is a profile with every duration zeroed, used by tests and dry runs.
func Instant() Profile {
	p := DefaultProfile()
	p.MinDelay, p.MaxDelay = 0, 0
	p.KeyDelayMin, p.KeyDelayMax, p.PunctuationPause = 0, 0, 0
	p.TypoFixMin, p.TypoFixMax = 0, 0
	p.MouseStepMin, p.MouseStepMax = 0, 0
	p.ClickDwellMin, p.ClickDwellMax = 0, 0
	p.ClickHoldMin, p.ClickHoldMax = 0, 0
	p.ScrollEventDelayMin, p.ScrollEventDelayMax = 0, 0
	p.ScrollBurstPauseMin, p.ScrollBurstPauseMax = 0, 0
	return p
}
