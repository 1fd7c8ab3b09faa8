package stealth

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/adscope/internal/browser/scripts"
)

// Evaluator runs an expression in the page and decodes its JSON result.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, out interface{}) error
}

// OverlayOptions tunes consent clicking and overlay removal.
type OverlayOptions struct {
	ConsentSelectors []string `json:"consentSelectors"`
	AcceptPhrases    []string `json:"acceptPhrases"`
	// KeepPatterns protect site chrome whose id or class matches.
	KeepPatterns []string `json:"keepPatterns"`
	MinCoverage  float64  `json:"minCoverage"`
}

// OverlayReport counts what RemoveOverlays changed.
type OverlayReport struct {
	Clicked        int  `json:"clicked"`
	Removed        int  `json:"removed"`
	ScrollRestored bool `json:"scrollRestored"`
}

// DefaultOverlayOptions covers the common consent platforms.
func DefaultOverlayOptions() OverlayOptions {
	return OverlayOptions{
		ConsentSelectors: []string{
			"#onetrust-accept-btn-handler",
			"#didomi-notice-agree-button",
			".fc-cta-consent",
			"#truste-consent-button",
			".qc-cmp2-summary-buttons button[mode='primary']",
			"#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll",
			"[data-testid='uc-accept-all-button']",
			".sp_choice_type_11",
			".cc-allow",
			"#L2AGLb",
		},
		AcceptPhrases: []string{
			"accept all", "accept", "accept cookies", "i agree", "agree",
			"allow all", "got it", "ok", "i accept", "continue",
		},
		KeepPatterns: []string{"header", "navbar", "menu", "player"},
		MinCoverage:  0.5,
	}
}

// RemoveOverlays clicks consent prompts and strips viewport-covering
// overlays. It is best effort: a failure leaves the page as it was.
func RemoveOverlays(ctx context.Context, ev Evaluator, opts OverlayOptions) (OverlayReport, error) {
	if opts.MinCoverage <= 0 {
		opts.MinCoverage = 0.5
	}
	expr, err := scripts.Call(scripts.RemoveOverlays, opts)
	if err != nil {
		return OverlayReport{}, err
	}
	var report OverlayReport
	if err := ev.Evaluate(ctx, expr, &report); err != nil {
		return OverlayReport{}, fmt.Errorf("stealth: remove overlays: %w", err)
	}
	return report, nil
}
