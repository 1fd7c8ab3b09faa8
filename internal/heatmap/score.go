package heatmap

import "math"

// Score caps and the input values at which each cap is reached.
const (
	densityPoints     = 30.0
	densitySaturation = 0.40

	clsPoints     = 25.0
	clsSaturation = 0.25

	aboveFoldPerAd = 5.0
	aboveFoldCap   = 20.0

	growthPoints     = 25.0
	growthSaturation = 1.5

	infiniteAdsRatio   = 0.8
	scrollTrapDensity  = 0.25
	highLayoutShift    = 0.1
	highAboveFoldCount = 3
)

// ScoreInputs are the aggregates the heatmap score is computed from.
type ScoreInputs struct {
	AvgDensity   float64
	AvgCLS       float64
	AboveFoldAds int
	GrowthRatio  float64
}

// Breakdown is the contribution of each input.
type Breakdown struct {
	Density   float64 `json:"density"`
	CLS       float64 `json:"cls"`
	AboveFold float64 `json:"aboveFold"`
	Growth    float64 `json:"growth"`
}

// Score returns the 0-100 heatmap score and its breakdown. Every
// contribution rises linearly up to its cap.
func Score(in ScoreInputs) (int, Breakdown) {
	b := Breakdown{
		Density:   linear(in.AvgDensity, densitySaturation, densityPoints),
		CLS:       linear(in.AvgCLS, clsSaturation, clsPoints),
		AboveFold: math.Min(float64(in.AboveFoldAds)*aboveFoldPerAd, aboveFoldCap),
		Growth:    linear(in.GrowthRatio-1, growthSaturation-1, growthPoints),
	}
	if b.AboveFold < 0 {
		b.AboveFold = 0
	}
	total := math.Round(b.Density + b.CLS + b.AboveFold + b.Growth)
	return int(math.Max(0, math.Min(100, total))), b
}

func linear(v, saturation, points float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= saturation {
		return points
	}
	return v / saturation * points
}

// growthRatio compares the ad count of the second half of the levels with
// the first. A first half without ads and a second half with some reports
// the saturation ratio.
func growthRatio(counts []int) float64 {
	if len(counts) < 2 {
		return 0
	}
	mid := len(counts) / 2
	first, second := sum(counts[:mid]), sum(counts[mid:])
	switch {
	case first == 0 && second == 0:
		return 0
	case first == 0:
		return growthSaturation
	}
	return float64(second) / float64(first)
}

// infiniteAds compares the final three levels pairwise: each must keep at
// least 80% of the previous level's ads and the last must have some.
func infiniteAds(counts []int) bool {
	n := len(counts)
	if n < 3 {
		return false
	}
	a, b, c := float64(counts[n-3]), float64(counts[n-2]), float64(counts[n-1])
	return c > 0 && b >= infiniteAdsRatio*a && c >= infiniteAdsRatio*b
}

func sum(v []int) int {
	total := 0
	for _, x := range v {
		total += x
	}
	return total
}
