package humanoid

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/adscope/internal/browser/scripts"
	"github.com/xkilldash9x/adscope/internal/browser/session"
	"github.com/xkilldash9x/adscope/internal/config"
)

// Scan ceilings.
const (
	DefaultMaxLevels = 20
	QuickMaxLevels   = 6
)

// PageMetrics is the page_metrics script result.
type PageMetrics struct {
	ScrollY        float64 `json:"scrollY"`
	ViewportWidth  float64 `json:"viewportWidth"`
	ViewportHeight float64 `json:"viewportHeight"`
	ScrollHeight   float64 `json:"scrollHeight"`
}

// AtBottom reports whether the viewport already shows the end of the page.
func (m PageMetrics) AtBottom() bool {
	return m.ScrollY+m.ViewportHeight >= m.ScrollHeight
}

// Metrics measures the scroll offset, viewport and page height.
func (h *Humanoid) Metrics(ctx context.Context) (PageMetrics, error) {
	expr, err := scripts.Call(scripts.PageMetrics)
	if err != nil {
		return PageMetrics{}, err
	}
	var m PageMetrics
	if err := h.executor.Evaluate(ctx, expr, &m); err != nil {
		return PageMetrics{}, fmt.Errorf("humanoid: page metrics: %w", err)
	}
	return m, nil
}

// ScrollBy scrolls vertically by distance pixels with a few uneven wheel
// steps and returns the new offset. The final step absorbs the accumulated
// variance so the steps add up to distance.
func (h *Humanoid) ScrollBy(ctx context.Context, distance float64) (float64, error) {
	before, err := h.Metrics(ctx)
	if err != nil {
		return 0, err
	}
	if distance == 0 {
		return before.ScrollY, nil
	}

	// Wheel events go where the pointer is; park it in the viewport if it is not.
	pos := h.Position()
	if pos.X <= 0 || pos.Y <= 0 || pos.X >= before.ViewportWidth || pos.Y >= before.ViewportHeight {
		pos = Vector2D{X: before.ViewportWidth / 2, Y: before.ViewportHeight / 2}
		h.setPosition(pos)
	}

	minSteps, maxSteps := h.cfg.ScrollMinSteps, h.cfg.ScrollMaxSteps
	if minSteps < 1 {
		minSteps = 1
	}
	if maxSteps < minSteps {
		maxSteps = minSteps
	}
	steps := minSteps + h.intn(maxSteps-minSteps+1)

	base := distance / float64(steps)
	var sent float64
	for i := 0; i < steps; i++ {
		delta := distance - sent
		if i < steps-1 {
			delta = base * (1 + h.cfg.ScrollStepVariance*(2*h.float()-1))
		}
		sent += delta

		err := h.executor.DispatchMouseEvent(ctx, session.MouseEvent{
			Type:   session.MouseWheel,
			X:      pos.X,
			Y:      pos.Y,
			DeltaY: delta,
		})
		if err != nil {
			return before.ScrollY, fmt.Errorf("humanoid: wheel: %w", err)
		}
		if i < steps-1 {
			if err := h.pause(ctx, h.between(h.cfg.ScrollStepMinMs, h.cfg.ScrollStepMaxMs)); err != nil {
				return before.ScrollY, err
			}
		}
	}

	after, err := h.Metrics(ctx)
	if err != nil {
		return before.ScrollY, err
	}
	offset := after.ScrollY
	if offset == before.ScrollY && !before.AtBottom() {
		h.logger.Debug("Wheel did not move the page, falling back to window.scrollBy.",
			zap.Float64("distance", distance))
		offset, err = h.scrollByScript(ctx, distance)
		if err != nil {
			return before.ScrollY, err
		}
	}

	if h.chance(h.cfg.ReadingPauseProbability) {
		if err := h.pause(ctx, h.between(h.cfg.ReadingPauseMinMs, h.cfg.ReadingPauseMaxMs)); err != nil {
			return offset, err
		}
	}
	return offset, nil
}

func (h *Humanoid) scrollByScript(ctx context.Context, distance float64) (float64, error) {
	expr, err := scripts.Call(scripts.ScrollBy, distance)
	if err != nil {
		return 0, err
	}
	var offset float64
	if err := h.executor.Evaluate(ctx, expr, &offset); err != nil {
		return 0, fmt.Errorf("humanoid: scroll fallback: %w", err)
	}
	return offset, nil
}

// CaptureFunc observes the page at one scroll stop. Returning an error
// aborts the scan.
type CaptureFunc func(ctx context.Context, level int, offset float64) error

// ScrollOptions bound one scroll-and-capture pass.
type ScrollOptions struct {
	MaxLevels        int
	ViewportFraction float64
	SettleMin        time.Duration
	SettleMax        time.Duration
}

// ScanOptions derives scan bounds from configuration. Quick scans use the
// short settle range.
func ScanOptions(cfg config.HumanoidConfig, maxLevels int, quick bool) ScrollOptions {
	opts := ScrollOptions{
		MaxLevels:        maxLevels,
		ViewportFraction: cfg.ViewportFraction,
		SettleMin:        time.Duration(cfg.SettleMinMs) * time.Millisecond,
		SettleMax:        time.Duration(cfg.SettleMaxMs) * time.Millisecond,
	}
	if quick {
		opts.SettleMin = time.Duration(cfg.QuickSettleMinMs) * time.Millisecond
		opts.SettleMax = time.Duration(cfg.QuickSettleMaxMs) * time.Millisecond
	}
	return opts
}

// ScrollSummary describes how a scan ended.
type ScrollSummary struct {
	Levels        int
	FinalOffset   float64
	InitialHeight float64
	FinalHeight   float64
	// HeightGrowth holds the page height change after each scroll step.
	HeightGrowth  []float64
	ReachedBottom bool
	Stalled       bool
	HitCeiling    bool
}

// ScrollAndCapture captures the current stop, then scrolls by a fraction of
// the viewport and lets the page settle, until the bottom is visible, the
// offset stops advancing or MaxLevels stops have been captured.
func (h *Humanoid) ScrollAndCapture(ctx context.Context, capture CaptureFunc, opts ScrollOptions) (ScrollSummary, error) {
	if opts.MaxLevels <= 0 {
		opts.MaxLevels = DefaultMaxLevels
	}
	if opts.ViewportFraction <= 0 || opts.ViewportFraction > 1 {
		opts.ViewportFraction = 0.7
	}

	var summary ScrollSummary
	m, err := h.Metrics(ctx)
	if err != nil {
		return summary, err
	}
	summary.InitialHeight = m.ScrollHeight
	offset := m.ScrollY

	for level := 0; level < opts.MaxLevels; level++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := capture(ctx, level, offset); err != nil {
			return summary, err
		}
		summary.Levels = level + 1

		if m.AtBottom() {
			summary.ReachedBottom = true
			break
		}
		if level == opts.MaxLevels-1 {
			summary.HitCeiling = true
			break
		}

		if _, err := h.ScrollBy(ctx, math.Round(m.ViewportHeight*opts.ViewportFraction)); err != nil {
			return summary, err
		}
		if err := h.pause(ctx, h.settle(opts)); err != nil {
			return summary, err
		}

		next, err := h.Metrics(ctx)
		if err != nil {
			return summary, err
		}
		summary.HeightGrowth = append(summary.HeightGrowth, next.ScrollHeight-m.ScrollHeight)
		if next.ScrollY <= offset {
			summary.Stalled = true
			m = next
			break
		}
		offset = next.ScrollY
		m = next
	}

	summary.FinalOffset = offset
	summary.FinalHeight = m.ScrollHeight
	h.logger.Debug("Scroll scan finished.",
		zap.Int("levels", summary.Levels),
		zap.Float64("final_offset", summary.FinalOffset),
		zap.Float64("height_growth", summary.FinalHeight-summary.InitialHeight),
		zap.Bool("reached_bottom", summary.ReachedBottom),
		zap.Bool("stalled", summary.Stalled),
		zap.Bool("hit_ceiling", summary.HitCeiling))
	return summary, nil
}

func (h *Humanoid) settle(opts ScrollOptions) time.Duration {
	minMs := int(opts.SettleMin / time.Millisecond)
	maxMs := int(opts.SettleMax / time.Millisecond)
	return h.between(minMs, maxMs)
}
