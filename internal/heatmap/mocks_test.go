package heatmap

import (
	"context"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/adscope/internal/browser/scripts"
	"github.com/xkilldash9x/adscope/internal/humanoid"
)

// fakeScroller captures one level per offset.
type fakeScroller struct {
	offsets []float64
	summary humanoid.ScrollSummary
	opts    humanoid.ScrollOptions
}

func (f *fakeScroller) ScrollAndCapture(ctx context.Context, capture humanoid.CaptureFunc, opts humanoid.ScrollOptions) (humanoid.ScrollSummary, error) {
	f.opts = opts
	summary := f.summary
	summary.Levels = 0
	for i, off := range f.offsets {
		if err := capture(ctx, i, off); err != nil {
			return summary, err
		}
		summary.Levels = i + 1
	}
	return summary, nil
}

// fakePage answers detect_ads and layout_shift calls from per-level scripts.
type fakePage struct {
	levels      []detectResult
	shifts      []float64
	detectErrs  map[int]error
	shiftErrs   map[int]error
	detectCalls int
	shiftCalls  int
	expressions []string
}

func (f *fakePage) Evaluate(_ context.Context, expression string, out interface{}) error {
	f.expressions = append(f.expressions, expression)
	var result interface{}
	switch {
	case isCall(expression, scripts.DetectAds):
		i := f.detectCalls
		f.detectCalls++
		if err := f.detectErrs[i]; err != nil {
			return err
		}
		if i < len(f.levels) {
			result = f.levels[i]
		} else {
			result = detectResult{ViewportWidth: 1000, ViewportHeight: 1000}
		}
	case isCall(expression, scripts.LayoutShift):
		i := f.shiftCalls
		f.shiftCalls++
		if err := f.shiftErrs[i]; err != nil {
			return err
		}
		v := 0.0
		if i < len(f.shifts) {
			v = f.shifts[i]
		}
		result = v
	default:
		return nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func isCall(expression, unit string) bool {
	u, err := scripts.Get(unit)
	return err == nil && strings.Contains(expression, u.Source)
}

// grid lays out n 250x250 ads on a 1000x1000 viewport, four per row.
func grid(n int, aboveFold bool) detectResult {
	r := detectResult{ViewportWidth: 1000, ViewportHeight: 1000, ScrollHeight: 8000}
	for i := 0; i < n; i++ {
		r.Detections = append(r.Detections, Detection{
			SelectorClass: "ad-slot",
			X:             float64(i%4) * 250,
			Y:             float64(i/4) * 250,
			Width:         250,
			Height:        250,
			InViewport:    true,
			AboveFold:     aboveFold,
		})
	}
	return r
}

func offsets(n int, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) * step
	}
	return out
}

func levelsWithCounts(counts ...int) []Level {
	out := make([]Level, len(counts))
	for i, c := range counts {
		out[i] = Level{Index: i, ScrollOffset: float64(i) * 700, AdCount: c}
	}
	return out
}
