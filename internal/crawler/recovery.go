package crawler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/adscope/internal/browser/session"
	"github.com/xkilldash9x/adscope/internal/extract"
)

// withRecovery runs step and, if it lost the connection, recovers and runs it
// once more.
func (r *run) withRecovery(ctx context.Context, what string, step func(context.Context) error) error {
	err := step(ctx)
	if err == nil || !errors.Is(err, session.ErrConnectionLost) {
		return err
	}
	r.logger.Warn("Connection lost.", zap.String("step", what), zap.Error(err))
	if rerr := r.recover(ctx); rerr != nil {
		return fmt.Errorf("crawler: %s: %w", what, rerr)
	}
	return step(ctx)
}

// recover restores a usable browser. It pings first, then reconnects to the
// same process, and relaunches only when the process is gone. Injected
// scripts are bound to a protocol session, so both paths patch again. A
// relaunch also re-subscribes the feed, marks a reload for the classifier and
// reloads the page if one had been loaded; a failed first navigation is left
// to the retried step.
func (r *run) recover(ctx context.Context) error {
	limit := r.cfg.Crawl().MaxRecoveryAttempts
	if r.recoveries >= limit {
		return fmt.Errorf("recovery limit of %d reached: %w", limit, session.ErrConnectionLost)
	}
	r.recoveries++
	r.result.Recoveries = r.recoveries

	b := r.current()
	if b == nil {
		return errNoBrowser
	}
	if err := b.Ping(ctx); err == nil {
		r.logger.Info("Connection answered ping; continuing.")
		return nil
	}

	err := b.Reconnect(ctx)
	if err == nil {
		r.logger.Info("Reconnected to browser.", zap.Int("recovery", r.recoveries))
		return r.patch(ctx)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.logger.Warn("Reconnect failed; relaunching browser.", zap.Error(err))

	r.detach()
	nb, err := r.c.launcher.Launch(ctx, r.launchOptions())
	if err != nil {
		return fmt.Errorf("relaunch: %w", err)
	}
	r.attach(nb)
	if err := r.patch(ctx); err != nil {
		return err
	}
	r.classifier.MarkReload()
	if !r.loaded {
		r.logger.Info("Browser relaunched.", zap.Int("recovery", r.recoveries))
		return nil
	}

	nc := r.cfg.Network()
	ok, err := nb.Navigate(ctx, r.result.URL, nc.NavigationTimeout)
	if err != nil {
		return fmt.Errorf("re-navigate: %w", err)
	}
	if !ok {
		r.logger.Warn("Navigation after relaunch did not complete; proceeding.")
	}
	nb.WaitForNetworkIdle(ctx, nc.IdleTimeout, nc.IdleWindow)
	r.logger.Info("Browser relaunched.", zap.Int("recovery", r.recoveries))
	return nil
}

// recoverEvaluator adapts recover for the extractor.
func (r *run) recoverEvaluator(ctx context.Context) (extract.Evaluator, error) {
	if err := r.recover(ctx); err != nil {
		return nil, err
	}
	return r.current(), nil
}
