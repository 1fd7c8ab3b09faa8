package humanoid

import (
	"context"
	"fmt"
	"unicode"
)

// Type sends text one rune at a time to the focused element. Inter-key delays
// are Gaussian; after a word boundary there is occasionally a longer pause.
func (h *Humanoid) Type(ctx context.Context, text string) error {
	runes := []rune(text)
	for i, r := range runes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.executor.SendKeys(ctx, string(r)); err != nil {
			return fmt.Errorf("humanoid: type: %w", err)
		}
		if i == len(runes)-1 {
			break
		}

		delay := h.gaussianMs(h.cfg.KeyDelayMeanMs, h.cfg.KeyDelayStdDevMs, h.cfg.KeyDelayMinMs)
		if isWordBoundary(r) && h.chance(h.cfg.ThinkPauseProbability) {
			delay += h.between(h.cfg.ThinkPauseMinMs, h.cfg.ThinkPauseMaxMs)
		}
		if err := h.pause(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

func isWordBoundary(r rune) bool {
	return unicode.IsSpace(r) || r == '.' || r == ',' || r == ';' || r == '!' || r == '?'
}
