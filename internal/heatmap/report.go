package heatmap

import "math"

// Pattern names reported by Report.Patterns.
const (
	PatternInfiniteAds     = "infinite-ads"
	PatternScrollTrap      = "scroll-trap"
	PatternHighLayoutShift = "high-layout-shift"
	PatternHighAboveFold   = "high-above-fold-ads"
)

// Detection is one visible ad-like element at one level, in viewport
// coordinates.
type Detection struct {
	SelectorClass string  `json:"selectorClass"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Width         float64 `json:"width"`
	Height        float64 `json:"height"`
	InViewport    bool    `json:"inViewport"`
	AboveFold     bool    `json:"aboveFold"`
	IsIframe      bool    `json:"isIframe"`
	KnownAdSource bool    `json:"knownAdSource"`
}

// Level is the aggregate of one scroll stop.
type Level struct {
	Index          int         `json:"index"`
	ScrollOffset   float64     `json:"scrollOffset"`
	ViewportWidth  float64     `json:"viewportWidth"`
	ViewportHeight float64     `json:"viewportHeight"`
	PageHeight     float64     `json:"pageHeight"`
	AdCount        int         `json:"adCount"`
	AdArea         float64     `json:"adArea"`
	Density        float64     `json:"density"`
	CLS            float64     `json:"cls"`
	Detections     []Detection `json:"detections,omitempty"`
	// Error is set when the page query for this level failed.
	Error string `json:"error,omitempty"`
}

// Distribution counts ads across thirds of the scanned scroll range.
type Distribution struct {
	Top    int `json:"top"`
	Middle int `json:"middle"`
	Bottom int `json:"bottom"`
}

// ScrollStats records how the scan ended.
type ScrollStats struct {
	ReachedBottom bool    `json:"reachedBottom"`
	HitCeiling    bool    `json:"hitCeiling"`
	Stalled       bool    `json:"stalled"`
	PageGrowth    float64 `json:"pageGrowth"`
}

// Report is the result of one heatmap run.
type Report struct {
	Levels []Level `json:"levels"`
	// TotalAdsDetected sums per-level counts; an ad visible at two stops
	// counts twice.
	TotalAdsDetected   int          `json:"totalAdsDetected"`
	AvgAdDensity       float64      `json:"avgAdDensity"`
	AvgCLS             float64      `json:"avgCLS"`
	AboveFoldAds       int          `json:"aboveFoldAds"`
	Distribution       Distribution `json:"distribution"`
	GrowthRatio        float64      `json:"growthRatio"`
	InfiniteAdsPattern bool         `json:"infiniteAdsPattern"`
	ScrollTrapDetected bool         `json:"scrollTrapDetected"`
	HeatmapScore       int          `json:"heatmapScore"`
	Breakdown          Breakdown    `json:"scoreBreakdown"`
	Scroll             ScrollStats  `json:"scroll"`
}

// Analyze aggregates a level sequence into a report.
func Analyze(levels []Level) Report {
	r := Report{Levels: levels}
	if r.Levels == nil {
		r.Levels = []Level{}
	}
	if len(levels) == 0 {
		return r
	}

	counts := make([]int, len(levels))
	var densitySum, clsSum float64
	for i, l := range levels {
		counts[i] = l.AdCount
		r.TotalAdsDetected += l.AdCount
		densitySum += l.Density
		clsSum += l.CLS
	}
	n := float64(len(levels))
	r.AvgAdDensity = round4(densitySum / n)
	r.AvgCLS = round4(clsSum / n)

	for _, d := range levels[0].Detections {
		if d.AboveFold {
			r.AboveFoldAds++
		}
	}
	r.Distribution = distribute(levels)
	r.GrowthRatio = round4(growthRatio(counts))
	r.InfiniteAdsPattern = infiniteAds(counts)
	r.ScrollTrapDetected = r.AvgAdDensity > scrollTrapDensity

	r.HeatmapScore, r.Breakdown = Score(ScoreInputs{
		AvgDensity:   r.AvgAdDensity,
		AvgCLS:       r.AvgCLS,
		AboveFoldAds: r.AboveFoldAds,
		GrowthRatio:  r.GrowthRatio,
	})
	return r
}

// Patterns lists the named patterns the report exhibits.
func (r Report) Patterns() []string {
	var out []string
	if r.InfiniteAdsPattern {
		out = append(out, PatternInfiniteAds)
	}
	if r.ScrollTrapDetected {
		out = append(out, PatternScrollTrap)
	}
	if r.AvgCLS > highLayoutShift {
		out = append(out, PatternHighLayoutShift)
	}
	if r.AboveFoldAds > highAboveFoldCount {
		out = append(out, PatternHighAboveFold)
	}
	return out
}

// distribute places each level's ads in the third of the scanned offset
// range its offset falls into.
func distribute(levels []Level) Distribution {
	lo, hi := levels[0].ScrollOffset, levels[0].ScrollOffset
	for _, l := range levels[1:] {
		lo = math.Min(lo, l.ScrollOffset)
		hi = math.Max(hi, l.ScrollOffset)
	}

	var d Distribution
	for _, l := range levels {
		pos := 0.0
		if hi > lo {
			pos = (l.ScrollOffset - lo) / (hi - lo)
		}
		switch {
		case pos < 1.0/3:
			d.Top += l.AdCount
		case pos < 2.0/3:
			d.Middle += l.AdCount
		default:
			d.Bottom += l.AdCount
		}
	}
	return d
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
