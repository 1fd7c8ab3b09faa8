// Package heatmap measures how ad-heavy a page is screen by screen. It drives
// a scroll-and-capture scan and, at every stop, counts the visible ad-like
// elements and samples layout shift.
package heatmap

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/adscope/internal/browser/scripts"
	"github.com/xkilldash9x/adscope/internal/browser/session"
	"github.com/xkilldash9x/adscope/internal/config"
	"github.com/xkilldash9x/adscope/internal/humanoid"
)

// Scroller runs the scroll-and-capture protocol. *humanoid.Humanoid
// satisfies it.
type Scroller interface {
	ScrollAndCapture(ctx context.Context, capture humanoid.CaptureFunc, opts humanoid.ScrollOptions) (humanoid.ScrollSummary, error)
}

// Evaluator runs page scripts.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, out interface{}) error
}

// Hook is invoked after every captured level.
type Hook func(ctx context.Context, level Level)

var _ Scroller = (*humanoid.Humanoid)(nil)

// Engine runs heatmap scans. It holds no per-scan state and may be reused.
type Engine struct {
	logger     *zap.Logger
	signatures Signatures
	shiftMs    int64
}

// detectResult mirrors the detect_ads script's return value.
type detectResult struct {
	ViewportWidth  float64     `json:"viewportWidth"`
	ViewportHeight float64     `json:"viewportHeight"`
	ScrollY        float64     `json:"scrollY"`
	ScrollHeight   float64     `json:"scrollHeight"`
	Detections     []Detection `json:"detections"`
}

// New builds an engine with the default signature library, tuned by cfg.
func New(cfg config.HeatmapConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	sig := DefaultSignatures()
	if cfg.MinAdSize > 0 {
		sig.MinSize = cfg.MinAdSize
	}
	if cfg.MaxElements > 0 {
		sig.MaxElements = cfg.MaxElements
	}
	window := cfg.LayoutShiftWindow
	if window <= 0 {
		window = time.Second
	}
	return &Engine{
		logger:     logger.Named("heatmap"),
		signatures: sig,
		shiftMs:    window.Milliseconds(),
	}
}

// Run scans the page and aggregates the captured levels. On error the report
// covers the levels captured so far.
func (e *Engine) Run(ctx context.Context, scroller Scroller, ev Evaluator, opts humanoid.ScrollOptions, hook Hook) (Report, error) {
	var levels []Level
	capture := func(ctx context.Context, index int, offset float64) error {
		level, err := e.capture(ctx, ev, index, offset)
		if err != nil {
			return err
		}
		levels = append(levels, level)
		e.logger.Debug("Captured heatmap level.",
			zap.Int("level", level.Index),
			zap.Float64("offset", level.ScrollOffset),
			zap.Int("ads", level.AdCount),
			zap.Float64("density", level.Density),
			zap.Float64("cls", level.CLS))
		if hook != nil {
			hook(ctx, level)
		}
		return nil
	}

	summary, err := scroller.ScrollAndCapture(ctx, capture, opts)
	report := Analyze(levels)
	report.Scroll = ScrollStats{
		ReachedBottom: summary.ReachedBottom,
		HitCeiling:    summary.HitCeiling,
		Stalled:       summary.Stalled,
		PageGrowth:    summary.FinalHeight - summary.InitialHeight,
	}
	if err != nil {
		return report, fmt.Errorf("heatmap: scan: %w", err)
	}

	e.logger.Info("Heatmap complete.",
		zap.Int("levels", len(report.Levels)),
		zap.Int("total_ads", report.TotalAdsDetected),
		zap.Float64("avg_density", report.AvgAdDensity),
		zap.Float64("avg_cls", report.AvgCLS),
		zap.Bool("infinite_ads", report.InfiniteAdsPattern),
		zap.Bool("scroll_trap", report.ScrollTrapDetected),
		zap.Int("score", report.HeatmapScore))
	return report, nil
}

// capture queries one stop. Script exceptions degrade the level instead of
// failing the scan; transport errors abort it.
func (e *Engine) capture(ctx context.Context, ev Evaluator, index int, offset float64) (Level, error) {
	level := Level{Index: index, ScrollOffset: offset}

	detected, err := e.detect(ctx, ev)
	if err != nil {
		if !isScriptError(err) {
			return level, err
		}
		e.logger.Warn("Ad detection failed at level.", zap.Int("level", index), zap.Error(err))
		level.Error = err.Error()
	} else {
		level.ViewportWidth = detected.ViewportWidth
		level.ViewportHeight = detected.ViewportHeight
		level.PageHeight = detected.ScrollHeight
		level.Detections = clip(dedupe(detected.Detections), detected.ViewportWidth, detected.ViewportHeight)
		level.AdCount = len(level.Detections)
		for _, d := range level.Detections {
			level.AdArea += d.Width * d.Height
		}
		if vp := detected.ViewportWidth * detected.ViewportHeight; vp > 0 {
			level.Density = round4(math.Min(1, level.AdArea/vp))
		}
	}

	cls, err := e.layoutShift(ctx, ev)
	if err != nil {
		if !isScriptError(err) {
			return level, err
		}
		e.logger.Warn("Layout shift sampling failed.", zap.Int("level", index), zap.Error(err))
	}
	level.CLS = cls
	return level, nil
}

func (e *Engine) detect(ctx context.Context, ev Evaluator) (detectResult, error) {
	var out detectResult
	expr, err := scripts.Call(scripts.DetectAds, e.signatures)
	if err != nil {
		return out, err
	}
	if err := ev.Evaluate(ctx, expr, &out); err != nil {
		return out, fmt.Errorf("heatmap: detect ads: %w", err)
	}
	return out, nil
}

func (e *Engine) layoutShift(ctx context.Context, ev Evaluator) (float64, error) {
	var cls float64
	expr, err := scripts.Call(scripts.LayoutShift, e.shiftMs)
	if err != nil {
		return 0, err
	}
	if err := ev.Evaluate(ctx, expr, &cls); err != nil {
		return 0, fmt.Errorf("heatmap: layout shift: %w", err)
	}
	if cls < 0 || math.IsNaN(cls) {
		cls = 0
	}
	return cls, nil
}

func isScriptError(err error) bool {
	var evalErr *session.EvaluationError
	return errors.As(err, &evalErr)
}

type geometryKey struct{ x, y, w, h int64 }

// dedupe drops detections whose rounded geometry was already seen, which
// happens when a slot container and its creative iframe coincide.
func dedupe(in []Detection) []Detection {
	seen := make(map[geometryKey]struct{}, len(in))
	out := make([]Detection, 0, len(in))
	for _, d := range in {
		k := geometryKey{
			x: int64(math.Round(d.X)),
			y: int64(math.Round(d.Y)),
			w: int64(math.Round(d.Width)),
			h: int64(math.Round(d.Height)),
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, d)
	}
	return out
}

// clip trims each detection to the viewport and drops those left without
// area. Geometry and density therefore always describe one screen.
func clip(in []Detection, vw, vh float64) []Detection {
	if vw <= 0 || vh <= 0 {
		return in[:0]
	}
	out := in[:0]
	for _, d := range in {
		x0, y0 := math.Max(d.X, 0), math.Max(d.Y, 0)
		x1, y1 := math.Min(d.X+d.Width, vw), math.Min(d.Y+d.Height, vh)
		if x1 <= x0 || y1 <= y0 {
			continue
		}
		d.X, d.Y, d.Width, d.Height = x0, y0, x1-x0, y1-y0
		d.InViewport = true
		out = append(out, d)
	}
	return out
}
