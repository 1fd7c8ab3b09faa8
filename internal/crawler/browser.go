package crawler

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/adscope/internal/browser/session"
	"github.com/xkilldash9x/adscope/internal/config"
	"github.com/xkilldash9x/adscope/internal/humanoid"
)

// Browser is the session surface one crawl drives.
type Browser interface {
	humanoid.Executor

	Run(ctx context.Context, actions ...chromedp.Action) error
	Navigate(ctx context.Context, url string, timeout time.Duration) (bool, error)
	WaitForNetworkIdle(ctx context.Context, timeout, idleWindow time.Duration) bool
	Screenshot(ctx context.Context) ([]byte, error)
	ResponseBody(ctx context.Context, requestID string) ([]byte, error)
	Subscribe(ch chan<- session.NetworkEvent) (unsubscribe func())
	Ping(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Close() error
}

var _ Browser = (*session.Session)(nil)

// LaunchOptions are the per-crawl launch overrides.
type LaunchOptions struct {
	BlockResources bool
	BlockImages    bool
}

// Launcher starts a browser for a crawl. It is called again on relaunch.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, opts LaunchOptions) (Browser, error)

// Launch calls f.
func (f LauncherFunc) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	return f(ctx, opts)
}

// SessionLauncher launches real browser sessions configured from cfg.
func SessionLauncher(cfg config.Interface, logger *zap.Logger) Launcher {
	base := session.OptionsFromConfig(cfg)
	return LauncherFunc(func(ctx context.Context, lo LaunchOptions) (Browser, error) {
		opts := base
		opts.ExtraArgs = append([]string(nil), base.ExtraArgs...)
		opts.BlockResources = lo.BlockResources
		opts.BlockImages = lo.BlockImages
		s, err := session.Launch(ctx, opts, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}
