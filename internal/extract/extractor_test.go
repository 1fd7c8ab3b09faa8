package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/adscope/internal/browser/scripts"
	"github.com/xkilldash9x/adscope/internal/browser/session"
)

func TestRun_FallsThroughToMinimal(t *testing.T) {
	long := strings.Repeat("lorem", 1000)
	page := newScriptedPage().
		on(scripts.StructuredHTML, ok("<p>Loading</p>")).
		on(scripts.MainText, ok("Loading...")).
		on(scripts.OuterHTML, ok("<html><body><div id=app></div></body></html>")).
		on(scripts.IframeText, ok("Advertisement")).
		on(scripts.TextNodes, ok(long))

	x := New(testExtractConfig(), zaptest.NewLogger(t))
	res, err := x.Run(context.Background(), page)
	require.NoError(t, err)

	assert.Equal(t, StrategyMinimal, res.Strategy)
	assert.Len(t, res.Content, 5000)
	require.Len(t, res.Attempts, 5)
	for _, a := range res.Attempts[:4] {
		assert.False(t, a.Success, a.Strategy)
		assert.Equal(t, 3, a.Tries, "short content is retried: %s", a.Strategy)
		assert.Less(t, a.Length, 100)
	}
	last := res.Attempts[4]
	assert.True(t, last.Success)
	assert.Equal(t, StrategyMinimal, last.Strategy)
	assert.Equal(t, 1, last.Tries)
	assert.Equal(t, 5000, last.Length)
}

func TestRun_FirstStrategyWins(t *testing.T) {
	body := "<h1>Guide</h1><p>" + strings.Repeat("Useful sentence about the topic. ", 10) + "</p>"
	page := newScriptedPage().on(scripts.StructuredHTML, ok(body))

	res, err := New(testExtractConfig(), nil).Run(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, StrategyStructured, res.Strategy)
	assert.True(t, strings.HasPrefix(res.Content, "# Guide"))
	assert.Len(t, res.Attempts, 1)
	assert.Zero(t, page.calls[scripts.MainText])
}

func TestRun_ShortContentRecoversOnRetry(t *testing.T) {
	page := newScriptedPage().
		on(scripts.StructuredHTML, fail(&session.EvaluationError{Message: "boom"})).
		on(scripts.MainText, ok("tiny"), ok(strings.Repeat("x", 150)))

	res, err := New(testExtractConfig(), nil).Run(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, StrategyMainText, res.Strategy)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, 1, res.Attempts[0].Tries, "script exceptions are not retried")
	assert.Contains(t, res.Attempts[0].Error, "boom")
	assert.Equal(t, 2, res.Attempts[1].Tries)
}

func TestRun_Exhausted(t *testing.T) {
	page := newScriptedPage().
		on(scripts.MainText, ok("a little text")).
		on(scripts.TextNodes, ok("a little more text here"))

	res, err := New(testExtractConfig(), nil).Run(context.Background(), page)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, "a little more text here", res.Content, "longest partial content is kept")
	assert.Empty(t, res.Strategy)
	assert.Len(t, res.Attempts, 5)
}

func TestRun_RecoversLostConnection(t *testing.T) {
	lost := fmt.Errorf("evaluate: %w", session.ErrConnectionLost)
	dead := newScriptedPage().on(scripts.StructuredHTML, fail(lost))
	fresh := newScriptedPage().on(scripts.StructuredHTML, ok("<p>"+strings.Repeat("Fresh content. ", 20)+"</p>"))

	recoveries := 0
	x := New(testExtractConfig(), nil, WithRecovery(func(context.Context) (Evaluator, error) {
		recoveries++
		return fresh, nil
	}))
	res, err := x.Run(context.Background(), dead)
	require.NoError(t, err)

	assert.Equal(t, 1, recoveries)
	assert.Equal(t, 1, dead.calls[scripts.StructuredHTML], "connection loss is not retried on the dead session")
	assert.Equal(t, StrategyStructured, res.Strategy)
	require.Len(t, res.Attempts, 2)
	assert.False(t, res.Attempts[0].Success)
	assert.True(t, res.Attempts[1].Success)
}

func TestRun_LostConnectionWithoutRecovery(t *testing.T) {
	page := newScriptedPage().on(scripts.StructuredHTML, fail(session.ErrConnectionLost))

	_, err := New(testExtractConfig(), nil).Run(context.Background(), page)
	assert.ErrorIs(t, err, session.ErrConnectionLost)
}

func TestRun_RecoveryFailure(t *testing.T) {
	page := newScriptedPage().on(scripts.StructuredHTML, fail(session.ErrConnectionLost))
	relaunch := errors.New("relaunch failed")

	x := New(testExtractConfig(), nil, WithRecovery(func(context.Context) (Evaluator, error) {
		return nil, relaunch
	}))
	_, err := x.Run(context.Background(), page)
	assert.ErrorIs(t, err, relaunch)
}

func TestRun_CustomStrategies(t *testing.T) {
	calls := 0
	x := New(testExtractConfig(), nil, WithStrategies(Strategy{
		Name: "fixed",
		Extract: func(context.Context, Evaluator) (string, error) {
			calls++
			return strings.Repeat("y", 120), nil
		},
	}))
	res, err := x.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "fixed", res.Strategy)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 100, x.MinLength())
}

func TestRetry(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		var seen []int
		v, err := Retry(context.Background(), p, func(_ context.Context, attempt int) (int, error) {
			seen = append(seen, attempt)
			if attempt < 3 {
				return 0, errors.New("transient")
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Equal(t, []int{1, 2, 3}, seen)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		_, err := Retry(context.Background(), p, func(context.Context, int) (string, error) {
			calls++
			return "", errors.New("always")
		})
		assert.EqualError(t, err, "always")
		assert.Equal(t, 4, calls)
	})

	t.Run("permanent stops immediately", func(t *testing.T) {
		calls := 0
		stop := errors.New("stop")
		_, err := Retry(context.Background(), p, func(context.Context, int) (string, error) {
			calls++
			return "", Permanent(stop)
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}
		_, err := Retry(ctx, slow, func(context.Context, int) (string, error) {
			cancel()
			return "", errors.New("transient")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("zero attempts still tries once", func(t *testing.T) {
		calls := 0
		_, _ = Retry(context.Background(), RetryPolicy{}, func(context.Context, int) (string, error) {
			calls++
			return "", errors.New("x")
		})
		assert.Equal(t, 1, calls)
	})
}
