package humanoid

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/adscope/internal/browser/session"
)

func tallPage(height float64) *fakePage {
	return &fakePage{viewportWidth: 1280, viewportHeight: 1000, scrollHeight: height}
}

func TestScrollBy_StepsAddUpToDistance(t *testing.T) {
	cfg := testConfig()
	cfg.ReadingPauseProbability = 0
	exec := newMockExecutor(tallPage(5000))
	h := newTestHumanoid(t, cfg, exec)

	offset, err := h.ScrollBy(context.Background(), 700)
	require.NoError(t, err)
	assert.InDelta(t, 700, offset, 1e-6)

	wheels := exec.mouseEvents(session.MouseWheel)
	assert.GreaterOrEqual(t, len(wheels), cfg.ScrollMinSteps)
	assert.LessOrEqual(t, len(wheels), cfg.ScrollMaxSteps)

	var total float64
	for _, w := range wheels {
		total += w.DeltaY
		assert.Equal(t, 640.0, w.X, "pointer parked at viewport center")
	}
	assert.InDelta(t, 700, total, 1e-6)
	assert.Len(t, exec.sleeps, len(wheels)-1)
}

func TestScrollBy_FallsBackToScript(t *testing.T) {
	cfg := testConfig()
	cfg.ReadingPauseProbability = 0
	page := tallPage(5000)
	page.ignoreWheel = true
	exec := newMockExecutor(page)
	h := newTestHumanoid(t, cfg, exec)

	offset, err := h.ScrollBy(context.Background(), 700)
	require.NoError(t, err)
	assert.Equal(t, 700.0, offset)

	last := exec.expressions[len(exec.expressions)-1]
	assert.True(t, isCall(last, "scroll_by"))
}

func TestScrollBy_ReadingPause(t *testing.T) {
	cfg := testConfig()
	cfg.ReadingPauseProbability = 1
	cfg.ScrollMinSteps, cfg.ScrollMaxSteps = 3, 3
	exec := newMockExecutor(tallPage(5000))
	h := newTestHumanoid(t, cfg, exec)

	_, err := h.ScrollBy(context.Background(), 500)
	require.NoError(t, err)
	require.Len(t, exec.sleeps, 3, "two between steps and one reading pause")
	assert.GreaterOrEqual(t, exec.sleeps[2].Milliseconds(), int64(cfg.ReadingPauseMinMs))
}

func scanOpts(maxLevels int) ScrollOptions {
	return ScrollOptions{MaxLevels: maxLevels, ViewportFraction: 0.7}
}

func TestScrollAndCapture_StopsAtBottom(t *testing.T) {
	exec := newMockExecutor(tallPage(3000))
	h := newTestHumanoid(t, testConfig(), exec)

	var offsets []float64
	summary, err := h.ScrollAndCapture(context.Background(), func(_ context.Context, level int, offset float64) error {
		assert.Equal(t, len(offsets), level)
		offsets = append(offsets, offset)
		return nil
	}, scanOpts(20))
	require.NoError(t, err)

	require.Len(t, offsets, 4)
	assert.InDelta(t, 0, offsets[0], 1e-6)
	assert.InDelta(t, 700, offsets[1], 1e-6)
	assert.InDelta(t, 1400, offsets[2], 1e-6)
	assert.InDelta(t, 2000, offsets[3], 1e-6)
	assert.Equal(t, 4, summary.Levels)
	assert.True(t, summary.ReachedBottom)
	assert.False(t, summary.HitCeiling)
	assert.Equal(t, []float64{0, 0, 0}, summary.HeightGrowth)
}

func TestScrollAndCapture_InfinitePageHitsCeiling(t *testing.T) {
	page := tallPage(2000)
	page.growth, page.maxHeight = 1000, 100000
	exec := newMockExecutor(page)
	h := newTestHumanoid(t, testConfig(), exec)

	levels := 0
	summary, err := h.ScrollAndCapture(context.Background(), func(context.Context, int, float64) error {
		levels++
		return nil
	}, scanOpts(QuickMaxLevels))
	require.NoError(t, err)

	assert.Equal(t, QuickMaxLevels, levels)
	assert.Equal(t, QuickMaxLevels, summary.Levels)
	assert.True(t, summary.HitCeiling)
	assert.Greater(t, summary.FinalHeight, summary.InitialHeight)
	require.Len(t, summary.HeightGrowth, QuickMaxLevels-1)
	for _, g := range summary.HeightGrowth {
		assert.Positive(t, g)
	}
}

func TestScrollAndCapture_StalledPage(t *testing.T) {
	page := tallPage(5000)
	page.frozen = true
	exec := newMockExecutor(page)
	h := newTestHumanoid(t, testConfig(), exec)

	summary, err := h.ScrollAndCapture(context.Background(), func(context.Context, int, float64) error { return nil }, scanOpts(20))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Levels)
	assert.True(t, summary.Stalled)
}

func TestScrollAndCapture_CaptureErrorAborts(t *testing.T) {
	exec := newMockExecutor(tallPage(10000))
	h := newTestHumanoid(t, testConfig(), exec)

	boom := errors.New("capture failed")
	summary, err := h.ScrollAndCapture(context.Background(), func(_ context.Context, level int, _ float64) error {
		if level == 2 {
			return boom
		}
		return nil
	}, scanOpts(20))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, summary.Levels)
}

func TestScanOptions(t *testing.T) {
	cfg := testConfig()
	full := ScanOptions(cfg, DefaultMaxLevels, false)
	quick := ScanOptions(cfg, QuickMaxLevels, true)

	assert.Equal(t, DefaultMaxLevels, full.MaxLevels)
	assert.Equal(t, int64(cfg.SettleMinMs), full.SettleMin.Milliseconds())
	assert.Equal(t, int64(cfg.QuickSettleMaxMs), quick.SettleMax.Milliseconds())
	assert.Less(t, quick.SettleMax.Milliseconds(), full.SettleMax.Milliseconds())
}

func TestIdleBrowse(t *testing.T) {
	exec := newMockExecutor(nil)
	h := newTestHumanoid(t, testConfig(), exec)

	require.NoError(t, h.IdleBrowse(context.Background(), 3e9))

	moves := exec.mouseEvents(session.MouseMoved)
	require.NotEmpty(t, moves)
	for _, ev := range moves {
		assert.GreaterOrEqual(t, ev.X, -10.0)
		assert.LessOrEqual(t, ev.X, 1290.0)
	}

	var slept int64
	for _, d := range exec.sleeps {
		slept += d.Milliseconds()
	}
	assert.GreaterOrEqual(t, slept, int64(2900))
}
