// internal/browser/session/context_utils.go
package session

import (
	"context"
	"time"
)

// CombineContext returns a context that carries the values of tabCtx (the CDP
// target chromedp needs) and is cancelled when either tabCtx or opCtx ends.
// When opCtx is the one that ended, context.Cause on the result reports why,
// so an operation deadline stays distinguishable from a dropped tab.
func CombineContext(tabCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancelCause(tabCtx)
	stop := context.AfterFunc(opCtx, func() {
		cancel(context.Cause(opCtx))
	})
	return combined, func() {
		stop()
		cancel(context.Canceled)
	}
}

// withOperationTimeout bounds opCtx by d unless d is zero.
func withOperationTimeout(opCtx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(opCtx)
	}
	return context.WithTimeout(opCtx, d)
}

// Detach returns a context that keeps the values of ctx but not its
// cancellation, for cleanup that has to run after the caller gave up.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
