package humanoid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/xkilldash9x/adscope/internal/browser/scripts"
	"github.com/xkilldash9x/adscope/internal/browser/session"
)

// ErrElementNotFound is returned when a selector matches nothing clickable.
var ErrElementNotFound = errors.New("humanoid: element not found")

// releaseTimeout bounds the cleanup release after a failed hold.
const releaseTimeout = 2 * time.Second

// Click moves to (x, y) and performs a left click with randomized pre-click,
// hold and post-click delays.
func (h *Humanoid) Click(ctx context.Context, x, y float64) error {
	if _, err := h.moveTo(ctx, Vector2D{X: x, Y: y}); err != nil {
		return err
	}
	if err := h.pause(ctx, h.between(h.cfg.ClickPreMinMs, h.cfg.ClickPreMaxMs)); err != nil {
		return err
	}

	pos := h.Position()
	press := session.MouseEvent{
		Type:       session.MousePressed,
		X:          pos.X,
		Y:          pos.Y,
		Button:     session.ButtonLeft,
		Buttons:    1,
		ClickCount: 1,
	}
	if err := h.executor.DispatchMouseEvent(ctx, press); err != nil {
		return fmt.Errorf("humanoid: press: %w", err)
	}

	release := press
	release.Type = session.MouseReleased
	release.Buttons = 0

	if err := h.pause(ctx, h.between(h.cfg.ClickHoldMinMs, h.cfg.ClickHoldMaxMs)); err != nil {
		// Never leave the button down on the page.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		_ = h.executor.DispatchMouseEvent(cleanupCtx, release)
		return err
	}
	if err := h.executor.DispatchMouseEvent(ctx, release); err != nil {
		return fmt.Errorf("humanoid: release: %w", err)
	}
	return h.pause(ctx, h.between(h.cfg.ClickPostMinMs, h.cfg.ClickPostMaxMs))
}

// elementBox is the element_center script result.
type elementBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ClickElement clicks a point near the center of the first element matching
// selector.
func (h *Humanoid) ClickElement(ctx context.Context, selector string) error {
	expr, err := scripts.Call(scripts.ElementCenter, selector)
	if err != nil {
		return err
	}
	var box *elementBox
	if err := h.executor.Evaluate(ctx, expr, &box); err != nil {
		return fmt.Errorf("humanoid: locate %q: %w", selector, err)
	}
	if box == nil || box.Width < 1 || box.Height < 1 {
		return fmt.Errorf("%w: %q", ErrElementNotFound, selector)
	}
	target := h.aimPoint(*box)
	return h.Click(ctx, target.X, target.Y)
}

// aimPoint picks a point near the center, inside the element's inner area.
func (h *Humanoid) aimPoint(box elementBox) Vector2D {
	h.mu.Lock()
	dx := h.rng.NormFloat64() * box.Width * 0.9 / 6
	dy := h.rng.NormFloat64() * box.Height * 0.9 / 6
	h.mu.Unlock()

	halfW := math.Max(0, box.Width/2-1)
	halfH := math.Max(0, box.Height/2-1)
	return Vector2D{
		X: box.X + math.Max(-halfW, math.Min(halfW, dx)),
		Y: box.Y + math.Max(-halfH, math.Min(halfH, dy)),
	}
}
