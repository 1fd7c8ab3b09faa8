package humanoid

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	driftRadiusPx = 40.0
	driftPauseMin = 300
	driftPauseMax = 1200
)

// IdleBrowse simulates a reader resting on the page for roughly d: the
// pointer drifts a little between pauses. The time budget counts only the
// simulated pauses, so a fast executor finishes immediately.
func (h *Humanoid) IdleBrowse(ctx context.Context, d time.Duration) error {
	width, height := 1280.0, 720.0
	if m, err := h.Metrics(ctx); err == nil && m.ViewportWidth > 0 && m.ViewportHeight > 0 {
		width, height = m.ViewportWidth, m.ViewportHeight
	} else if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.logger.Debug("Idle browse without page metrics.", zap.Error(err))
	}

	var spent time.Duration
	drifts := 0
	for spent < d {
		if err := ctx.Err(); err != nil {
			return err
		}
		from := h.Position()
		if from.X <= 0 && from.Y <= 0 {
			from = Vector2D{X: width / 2, Y: height / 2}
		}
		target := from.Add(Vector2D{
			X: (h.float()*2 - 1) * driftRadiusPx,
			Y: (h.float()*2 - 1) * driftRadiusPx,
		}).Clamp(width-1, height-1)

		moved, err := h.moveTo(ctx, target)
		spent += moved
		if err != nil {
			return err
		}
		drifts++

		rest := h.between(driftPauseMin, driftPauseMax)
		if remaining := d - spent; rest > remaining {
			rest = remaining
		}
		if err := h.pause(ctx, rest); err != nil {
			return err
		}
		spent += max(rest, time.Millisecond)
	}

	h.logger.Debug("Idle browse finished.", zap.Duration("duration", d), zap.Int("drifts", drifts))
	return nil
}
