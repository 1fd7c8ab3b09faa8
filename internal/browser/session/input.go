// internal/browser/session/input.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

// MouseEventType mirrors the protocol's mouse event types.
type MouseEventType string

const (
	MouseMoved    MouseEventType = "mouseMoved"
	MousePressed  MouseEventType = "mousePressed"
	MouseReleased MouseEventType = "mouseReleased"
	MouseWheel    MouseEventType = "mouseWheel"
)

// MouseButton mirrors the protocol's button names.
type MouseButton string

const (
	ButtonNone  MouseButton = "none"
	ButtonLeft  MouseButton = "left"
	ButtonRight MouseButton = "right"
)

// MouseEvent is one synthetic pointer event in viewport coordinates.
type MouseEvent struct {
	Type       MouseEventType
	X, Y       float64
	Button     MouseButton
	Buttons    int64
	ClickCount int64
	DeltaX     float64
	DeltaY     float64
}

// Sleep pauses for d or until ctx ends.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DispatchMouseEvent sends a single mouse event to the page.
func (s *Session) DispatchMouseEvent(ctx context.Context, ev MouseEvent) error {
	p := input.DispatchMouseEvent(input.MouseType(ev.Type), ev.X, ev.Y)
	if ev.Button != "" {
		p = p.WithButton(input.MouseButton(ev.Button))
	}
	if ev.Buttons != 0 {
		p = p.WithButtons(ev.Buttons)
	}
	if ev.ClickCount > 0 {
		p = p.WithClickCount(ev.ClickCount)
	}
	if ev.Type == MouseWheel {
		p = p.WithDeltaX(ev.DeltaX).WithDeltaY(ev.DeltaY)
	}

	opCtx, cancel := withOperationTimeout(ctx, s.opts.OperationTimeout)
	defer cancel()
	if err := s.runActions(opCtx, p); err != nil {
		return fmt.Errorf("session: dispatch %s: %w", ev.Type, err)
	}
	return nil
}

// SendKeys types keys as key events, one keystroke per rune.
func (s *Session) SendKeys(ctx context.Context, keys string) error {
	opCtx, cancel := withOperationTimeout(ctx, s.opts.OperationTimeout)
	defer cancel()
	if err := s.runActions(opCtx, chromedp.KeyEvent(keys)); err != nil {
		return fmt.Errorf("session: send keys: %w", err)
	}
	return nil
}
