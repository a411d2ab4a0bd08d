package selector

import (
	"context"
	"errors"
	"testing"
	"time"

	"session-agent/internal/domain/entity"
	"session-agent/internal/infrastructure/logger"
	"session-agent/internal/testutil/fakebrowser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadPage(t *testing.T, markup string) *fakebrowser.Browser {
	t.Helper()
	ctx := context.Background()
	site := fakebrowser.NewSite("https://app.example.test")
	site.Page("/", markup)
	bc, err := fakebrowser.NewProvisioner(site).Provision(ctx, entity.EnvironmentConfig{}, nil)
	require.NoError(t, err)
	b := bc.(*fakebrowser.Browser)
	require.NoError(t, b.Navigate(ctx, site.URL("/")))
	return b
}

func newResolver(timeout time.Duration) *Resolver {
	return NewResolver(timeout, logger.NewNop(), WithPollInterval(5*time.Millisecond))
}

func attrOf(t *testing.T, el interface {
	Attribute(context.Context, string) (string, bool, error)
}, name string) string {
	t.Helper()
	v, _, err := el.Attribute(context.Background(), name)
	require.NoError(t, err)
	return v
}

var usernameLocator = entity.FieldLocator{
	Field: entity.FieldUsername,
	Strategies: []entity.Strategy{
		entity.AttributeStrategy(`input[autocomplete="username"]`),
		entity.AttributeStrategy(`input[name="text"]`),
		entity.AttributeStrategy(`input[type="text"]`),
	},
}

func TestResolve_FirstStrategyWins(t *testing.T) {
	b := loadPage(t, `<form>
		<input id="a" autocomplete="username" name="text" type="text">
		<input id="b" type="text">
	</form>`)

	el, err := newResolver(0).Resolve(context.Background(), b, usernameLocator)
	require.NoError(t, err)
	assert.Equal(t, "a", attrOf(t, el, "id"))
}

func TestResolve_FallsBackWhenEarlierStrategiesMiss(t *testing.T) {
	cases := map[string]string{
		"autocomplete only": `<input id="x" autocomplete="username">`,
		"name only":         `<input id="x" name="text">`,
		"type only":         `<div><input id="x" type="text"></div>`,
	}
	for name, markup := range cases {
		t.Run(name, func(t *testing.T) {
			b := loadPage(t, markup)
			el, err := newResolver(0).Resolve(context.Background(), b, usernameLocator)
			require.NoError(t, err)
			assert.Equal(t, "x", attrOf(t, el, "id"))
		})
	}
}

func TestResolve_AmbiguousStrategyIsSkipped(t *testing.T) {
	b := loadPage(t, `<div>
		<input id="one" name="text">
		<input id="two" name="text">
		<input id="three" type="text" autocomplete="off">
	</div>`)
	loc := entity.FieldLocator{
		Field: entity.FieldUsername,
		Strategies: []entity.Strategy{
			entity.AttributeStrategy(`input[name="text"]`),
			entity.AttributeStrategy(`input[autocomplete="off"]`),
		},
	}

	el, err := newResolver(0).Resolve(context.Background(), b, loc)
	require.NoError(t, err)
	assert.Equal(t, "three", attrOf(t, el, "id"))
}

func TestResolve_HiddenElementsAreNotCandidates(t *testing.T) {
	b := loadPage(t, `<div>
		<input id="ghost" type="password" style="display: none">
		<div hidden><input id="ghost2" type="password"></div>
		<input id="real" type="password">
	</div>`)
	loc := entity.FieldLocator{
		Field:      entity.FieldPassword,
		Strategies: []entity.Strategy{entity.AttributeStrategy(`input[type="password"]`)},
	}

	el, err := newResolver(0).Resolve(context.Background(), b, loc)
	require.NoError(t, err)
	assert.Equal(t, "real", attrOf(t, el, "id"))
}

func TestResolve_RoleText(t *testing.T) {
	b := loadPage(t, `<div>
		<div role="button" id="back">Back</div>
		<div role="button" id="next"><span>Next</span></div>
		<a href="/forgot">Forgot password?</a>
	</div>`)
	loc := entity.FieldLocator{
		Field:      entity.FieldNextButton,
		Strategies: []entity.Strategy{entity.RoleTextStrategy("button", "next")},
	}

	el, err := newResolver(0).Resolve(context.Background(), b, loc)
	require.NoError(t, err)
	assert.Equal(t, "next", attrOf(t, el, "id"))
}

func TestResolve_RoleTextMatchesAriaLabel(t *testing.T) {
	b := loadPage(t, `<button id="go" aria-label="Log in"><svg></svg></button>`)
	loc := entity.FieldLocator{
		Field:      entity.FieldSubmitButton,
		Strategies: []entity.Strategy{entity.RoleTextStrategy("button", "log in")},
	}

	el, err := newResolver(0).Resolve(context.Background(), b, loc)
	require.NoError(t, err)
	assert.Equal(t, "go", attrOf(t, el, "id"))
}

func TestResolve_Positional(t *testing.T) {
	b := loadPage(t, `<div>
		<button id="b0">A</button>
		<button id="bh" hidden>H</button>
		<button id="b1">B</button>
	</div>`)
	loc := entity.FieldLocator{
		Field:      entity.FieldSubmitButton,
		Strategies: []entity.Strategy{entity.PositionalStrategy("button", 1)},
	}

	el, err := newResolver(0).Resolve(context.Background(), b, loc)
	require.NoError(t, err)
	assert.Equal(t, "b1", attrOf(t, el, "id"), "index counts visible matches only")
}

func TestResolve_NotFoundReportsEveryStrategy(t *testing.T) {
	b := loadPage(t, `<div><input name="text"><input name="text"></div>`)
	loc := entity.FieldLocator{
		Field: entity.FieldUsername,
		Strategies: []entity.Strategy{
			entity.AttributeStrategy(`input[autocomplete="username"]`),
			entity.AttributeStrategy(`input[name="text"]`),
			entity.AttributeStrategy(`input[[`),
			entity.PositionalStrategy("input", 5),
		},
	}

	_, err := newResolver(0).Resolve(context.Background(), b, loc)
	require.Error(t, err)
	var fnf *entity.FieldNotFoundError
	require.True(t, errors.As(err, &fnf))
	assert.Equal(t, entity.FieldUsername, fnf.Field)
	require.Len(t, fnf.Attempts, 4)
	assert.Equal(t, entity.OutcomeNoMatch, fnf.Attempts[0].Outcome)
	assert.Equal(t, entity.OutcomeAmbiguous, fnf.Attempts[1].Outcome)
	assert.Equal(t, 2, fnf.Attempts[1].Visible)
	assert.Equal(t, entity.OutcomeInvalid, fnf.Attempts[2].Outcome)
	assert.Equal(t, entity.OutcomeNoMatch, fnf.Attempts[3].Outcome)
	assert.True(t, entity.IsStepLocal(err))
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestResolve_EmptyLocator(t *testing.T) {
	b := loadPage(t, `<p>x</p>`)
	_, err := newResolver(0).Resolve(context.Background(), b, entity.FieldLocator{Field: entity.FieldLandmark})
	assert.True(t, entity.IsFieldNotFound(err))
}

func TestResolve_WaitsUntilTimeout(t *testing.T) {
	b := loadPage(t, `<p>nothing</p>`)
	start := time.Now()
	_, err := newResolver(60*time.Millisecond).Resolve(context.Background(), b, usernameLocator)
	assert.True(t, entity.IsFieldNotFound(err))
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestResolve_CancelledContextStopsWaiting(t *testing.T) {
	b := loadPage(t, `<p>nothing</p>`)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := newResolver(time.Minute).Resolve(ctx, b, usernameLocator)
	assert.True(t, entity.IsFieldNotFound(err))
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestResolve_ClosedBrowser(t *testing.T) {
	b := loadPage(t, `<input autocomplete="username">`)
	require.NoError(t, b.Close())
	_, err := newResolver(time.Second).Resolve(context.Background(), b, usernameLocator)
	assert.ErrorIs(t, err, entity.ErrContextClosed)
}

func TestProbe(t *testing.T) {
	b := loadPage(t, `<nav data-testid="AppTabBar_Home_Link">Home</nav>`)
	r := newResolver(0)
	landmark := entity.FieldLocator{
		Field:      entity.FieldLandmark,
		Strategies: []entity.Strategy{entity.AttributeStrategy(`[data-testid="AppTabBar_Home_Link"]`)},
	}
	twoFactor := entity.FieldLocator{
		Field:      entity.FieldTwoFactorInput,
		Strategies: []entity.Strategy{entity.AttributeStrategy(`input[inputmode="numeric"]`)},
	}

	el, ok := r.Probe(context.Background(), b, landmark, 0)
	assert.True(t, ok)
	assert.NotNil(t, el)

	_, ok = r.Probe(context.Background(), b, twoFactor, 10*time.Millisecond)
	assert.False(t, ok)

	idx, _ := r.ProbeAny(context.Background(), b, 0, twoFactor, landmark)
	assert.Equal(t, 1, idx)
}

func TestStrategyCSS(t *testing.T) {
	css, err := strategyCSS(entity.RoleTextStrategy("Button", "x"))
	require.NoError(t, err)
	assert.Contains(t, css, `[role="button"]`)

	css, err = strategyCSS(entity.RoleTextStrategy("dialog", ""))
	require.NoError(t, err)
	assert.Equal(t, `[role="dialog"]`, css)

	_, err = strategyCSS(entity.Strategy{Kind: "xpath", CSS: "//a"})
	assert.ErrorIs(t, err, entity.ErrInvalidSelector)

	_, err = strategyCSS(entity.AttributeStrategy(" "))
	assert.ErrorIs(t, err, entity.ErrInvalidSelector)
}
