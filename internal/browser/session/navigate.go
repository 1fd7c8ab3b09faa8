// internal/browser/session/navigate.go
package session

import (
	"context"
	"errors"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const idleCheckFrequency = 100 * time.Millisecond

// Navigate loads url and returns true as soon as the page fires load,
// DOMContentLoaded or frame-stopped-loading. Timeouts and failed navigations
// return false with a nil error; only a lost connection is an error.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) (bool, error) {
	if _, err := s.tab(); err != nil {
		return false, err
	}

	signals, release := s.lifecycle.wait()
	defer release()

	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.runActions(navCtx, chromedp.Navigate(url))
	}()

	start := time.Now()
	select {
	case event := <-signals:
		s.logger.Debug("Navigation reached page lifecycle event.",
			zap.String("url", url),
			zap.String("event", event),
			zap.Duration("elapsed", time.Since(start)))
		return true, nil

	case err := <-done:
		if err == nil {
			return true, nil
		}
		if errors.Is(err, ErrConnectionLost) || errors.Is(err, ErrClosed) {
			return false, err
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		s.logger.Warn("Navigation failed.", zap.String("url", url), zap.Error(err))
		return false, nil

	case <-navCtx.Done():
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if !s.Alive() {
			return false, ErrConnectionLost
		}
		s.logger.Warn("Navigation timed out.", zap.String("url", url), zap.Duration("timeout", timeout))
		return false, nil
	}
}

// WaitForNetworkIdle reports whether no request started or finished for
// idleWindow before timeout elapsed.
func (s *Session) WaitForNetworkIdle(ctx context.Context, timeout, idleWindow time.Duration) bool {
	if s.events == nil {
		return false
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(idleCheckFrequency)
	defer ticker.Stop()

	for {
		if s.events.idleFor(time.Now()) >= idleWindow {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-ticker.C:
		}
	}
}
