package humanoid

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/adscope/internal/browser/session"
)

// easeInOutCubic maps t in [0,1] onto a slow-fast-slow progression.
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	f := -2*t + 2
	return 1 - f*f*f/2
}

// stepCount grows with distance between the configured bounds.
func (h *Humanoid) stepCount(dist float64) int {
	stepPx := h.cfg.MoveStepPx
	if stepPx <= 0 {
		stepPx = 18
	}
	steps := int(math.Ceil(dist / stepPx))
	if steps < h.cfg.MoveMinSteps {
		steps = h.cfg.MoveMinSteps
	}
	if h.cfg.MoveMaxSteps > 0 && steps > h.cfg.MoveMaxSteps {
		steps = h.cfg.MoveMaxSteps
	}
	if steps < 1 {
		steps = 1
	}
	return steps
}

// path plans the intermediate points from start to end. The jitter envelope
// is sin(pi*t), so the first and last points carry no noise and the final
// point is exactly end.
func (h *Humanoid) path(start, end Vector2D) []Vector2D {
	steps := h.stepCount(start.Dist(end))

	h.mu.Lock()
	t0 := h.noiseTime
	h.noiseTime += 1.0
	noiseX, noiseY := h.noiseX, h.noiseY
	h.mu.Unlock()

	points := make([]Vector2D, steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		p := start.Lerp(end, easeInOutCubic(t))
		if i < steps {
			envelope := h.cfg.JitterAmplitudePx * math.Sin(math.Pi*t)
			p = p.Add(Vector2D{
				X: noiseX.Noise1D(t0+t) * envelope,
				Y: noiseY.Noise1D(t0+t) * envelope,
			})
		} else {
			p = end
		}
		points[i-1] = p
	}
	return points
}

// MoveTo glides the pointer to (x, y).
func (h *Humanoid) MoveTo(ctx context.Context, x, y float64) error {
	_, err := h.moveTo(ctx, Vector2D{X: x, Y: y})
	return err
}

// moveTo returns the time spent pausing between steps.
func (h *Humanoid) moveTo(ctx context.Context, target Vector2D) (time.Duration, error) {
	start := h.Position()
	points := h.path(start, target)

	var spent time.Duration
	for i, p := range points {
		if err := ctx.Err(); err != nil {
			return spent, err
		}
		err := h.executor.DispatchMouseEvent(ctx, session.MouseEvent{
			Type:   session.MouseMoved,
			X:      p.X,
			Y:      p.Y,
			Button: session.ButtonNone,
		})
		if err != nil {
			return spent, fmt.Errorf("humanoid: move: %w", err)
		}
		h.setPosition(p)

		if i < len(points)-1 {
			stepMs := h.cfg.MoveStepMs
			d := h.between(stepMs*7/10, stepMs*13/10)
			if err := h.pause(ctx, d); err != nil {
				return spent, err
			}
			spent += d
		}
	}

	h.logger.Debug("Pointer moved.",
		zap.Float64("from_x", start.X), zap.Float64("from_y", start.Y),
		zap.Float64("to_x", target.X), zap.Float64("to_y", target.Y),
		zap.Int("steps", len(points)))
	return spent, nil
}
