package crawler

import (
	"math"
	"time"

	"github.com/xkilldash9x/adscope/internal/browser/stealth"
	"github.com/xkilldash9x/adscope/internal/extract"
	"github.com/xkilldash9x/adscope/internal/heatmap"
	"github.com/xkilldash9x/adscope/internal/traffic"
)

// State is a step of the crawl state machine.
type State string

const (
	StateLaunching         State = "Launching"
	StatePatched           State = "Patched"
	StateNavigating        State = "Navigating"
	StateStabilizing       State = "Stabilizing"
	StateBaselineExtracted State = "BaselineExtracted"
	StateScrolling         State = "Scrolling"
	StateFinalExtraction   State = "FinalExtraction"
	StateScored            State = "Scored"
	StateDone              State = "Done"
	StateFailed            State = "Failed"
)

// Transition is one entry of the state trace.
type Transition struct {
	State     State     `json:"state"`
	At        time.Time `json:"at"`
	ElapsedMs int64     `json:"elapsedMs"`
	Note      string    `json:"note,omitempty"`
}

// RiskLevel buckets the combined score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

const (
	heatmapWeight = 0.6
	networkWeight = 0.4

	highRiskScore   = 60
	mediumRiskScore = 30

	PatternThinContent = "thin-content"
)

// MFAIndicators is the verdict of a crawl.
type MFAIndicators struct {
	HeatmapScore       int       `json:"heatmapScore"`
	NetworkScore       int       `json:"networkScore"`
	CombinedScore      int       `json:"combinedScore"`
	RiskLevel          RiskLevel `json:"riskLevel"`
	SuspiciousPatterns []string  `json:"suspiciousPatterns"`
}

// Result is everything one crawl produced. It is built by Crawl and not
// modified afterwards.
type Result struct {
	CrawlID    string    `json:"crawlId"`
	URL        string    `json:"url"`
	FinalURL   string    `json:"finalUrl,omitempty"`
	Depth      string    `json:"depth"`
	Success    bool      `json:"success"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	DurationMs int64     `json:"durationMs"`
	Navigated  bool      `json:"navigated"`
	FinalState State     `json:"finalState"`

	Content            string            `json:"content"`
	ContentLength      int               `json:"contentLength"`
	ContentSource      string            `json:"contentSource,omitempty"`
	ExtractionStrategy string            `json:"extractionStrategy,omitempty"`
	ExtractionFailed   bool              `json:"extractionFailed"`
	ExtractionAttempts []extract.Attempt `json:"extractionAttempts,omitempty"`

	NetworkAnalysis traffic.NetworkAnalysis `json:"networkAnalysis"`
	AdHeatmap       heatmap.Report          `json:"adHeatmap"`
	MFAIndicators   MFAIndicators           `json:"mfaIndicators"`

	Overlays   *stealth.OverlayReport `json:"overlays,omitempty"`
	Recoveries int                    `json:"recoveries"`
	Error      string                 `json:"error,omitempty"`
	StateTrace []Transition           `json:"stateTrace"`
	Screenshot []byte                 `json:"screenshot,omitempty"`
}

// Indicators combines the heatmap and network verdicts. Content shorter than
// minContent is flagged as thin.
func Indicators(hm heatmap.Report, na traffic.NetworkAnalysis, contentLength, minContent int) MFAIndicators {
	combined := int(math.Round(heatmapWeight*float64(hm.HeatmapScore) + networkWeight*float64(na.NetworkRiskScore)))

	patterns := append([]string{}, hm.Patterns()...)
	patterns = append(patterns, na.Patterns()...)
	if contentLength < minContent {
		patterns = append(patterns, PatternThinContent)
	}

	return MFAIndicators{
		HeatmapScore:       hm.HeatmapScore,
		NetworkScore:       na.NetworkRiskScore,
		CombinedScore:      combined,
		RiskLevel:          riskLevel(combined),
		SuspiciousPatterns: patterns,
	}
}

func riskLevel(score int) RiskLevel {
	switch {
	case score >= highRiskScore:
		return RiskHigh
	case score >= mediumRiskScore:
		return RiskMedium
	default:
		return RiskLow
	}
}
