// Package crawler runs one MFA detection crawl: it launches and patches a
// browser, loads the page, scans it while scrolling, extracts its content and
// scores what it saw. Crawl always returns a result.
package crawler

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/adscope/internal/browser/session"
	"github.com/xkilldash9x/adscope/internal/config"
	"github.com/xkilldash9x/adscope/internal/heatmap"
	"github.com/xkilldash9x/adscope/internal/observability"
	"github.com/xkilldash9x/adscope/internal/traffic"
)

// Scan depths.
const (
	DepthFull  = "full"
	DepthQuick = "quick"
)

// Options are the per-crawl switches.
type Options struct {
	Depth             string
	SimulateIdle      bool
	BlockResources    bool
	CaptureScreenshot bool
}

// OptionsFromConfig returns the configured crawl defaults.
func OptionsFromConfig(cfg config.Interface) Options {
	return Options{
		Depth:             cfg.Crawl().Depth,
		SimulateIdle:      cfg.Crawl().SimulateIdle,
		BlockResources:    cfg.Network().BlockResources,
		CaptureScreenshot: cfg.Crawl().CaptureScreenshot,
	}
}

func (o Options) quick() bool { return o.Depth == DepthQuick }

// Crawler runs crawls. It holds no per-crawl state; each Crawl owns its own
// browser and classifier.
type Crawler struct {
	cfg      config.Interface
	logger   *zap.Logger
	launcher Launcher
	heatmap  *heatmap.Engine
	now      func() time.Time
}

// New creates a crawler. A nil launcher launches real browser sessions.
func New(cfg config.Interface, logger *zap.Logger, launcher Launcher) *Crawler {
	if logger == nil {
		logger = observability.GetLogger()
	}
	logger = logger.Named("crawler")
	if launcher == nil {
		launcher = SessionLauncher(cfg, logger)
	}
	return &Crawler{
		cfg:      cfg,
		logger:   logger,
		launcher: launcher,
		heatmap:  heatmap.New(cfg.Heatmap(), logger),
		now:      time.Now,
	}
}

// Crawl runs the whole pipeline against url. It never returns nil and never
// panics: failures, including panics, are reported in the result.
func (c *Crawler) Crawl(ctx context.Context, url string, opts Options) (res *Result) {
	opts.Depth = strings.ToLower(strings.TrimSpace(opts.Depth))
	switch opts.Depth {
	case DepthFull, DepthQuick:
	case "":
		opts.Depth = DepthFull
	default:
		c.logger.Warn("Unknown crawl depth; using full.", zap.String("depth", opts.Depth))
		opts.Depth = DepthFull
	}

	id := uuid.NewString()
	logger := observability.ForCrawl(c.logger, id, url)
	r := &run{
		c:      c,
		cfg:    c.cfg,
		opts:   opts,
		logger: logger,
		start:  c.now(),
		result: &Result{
			CrawlID:    id,
			URL:        url,
			Depth:      opts.Depth,
			StateTrace: []Transition{},
			AdHeatmap:  heatmap.Analyze(nil),
		},
	}
	r.result.StartedAt = r.start
	r.events = make(chan session.NetworkEvent, max(c.cfg.Network().EventBuffer, 1))
	r.classifier = traffic.New(logger, traffic.Options{
		Bodies:             r,
		VASTFetchPerSecond: c.cfg.Network().VASTFetchPerSecond,
	})
	res = r.result

	if timeout := c.cfg.Crawl().Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			logger.Error("Crawl panicked.",
				zap.Any("panic", p),
				zap.String("stack", string(debug.Stack())))
			r.fail(fmt.Errorf("crawler: panic: %v", p))
		}
		r.close()
	}()

	logger.Info("Crawl started.", zap.String("depth", opts.Depth))
	if err := r.execute(ctx); err != nil {
		r.fail(err)
	}
	return res
}

// execute runs the state machine up to Done. Errors it returns end the crawl
// as Failed; everything else degrades and proceeds.
func (r *run) execute(ctx context.Context) error {
	r.transition(StateLaunching, "")
	r.startFeed(ctx)

	b, err := r.c.launcher.Launch(ctx, r.launchOptions())
	if err != nil {
		return fmt.Errorf("crawler: launch: %w", err)
	}
	r.attach(b)
	if err := r.patch(ctx); err != nil {
		return err
	}
	r.transition(StatePatched, "")

	r.transition(StateNavigating, "")
	if err := r.withRecovery(ctx, "navigate", r.navigate); err != nil {
		return err
	}

	r.transition(StateStabilizing, "")
	if err := r.withRecovery(ctx, "stabilize", r.stabilize); err != nil {
		return err
	}

	if err := r.withRecovery(ctx, "baseline extraction", r.baseline); err != nil {
		return err
	}
	r.transition(StateBaselineExtracted, "")

	r.transition(StateScrolling, "")
	if err := r.scan(ctx); err != nil {
		return err
	}

	r.transition(StateFinalExtraction, "")
	if err := r.extractFinal(ctx); err != nil {
		return err
	}
	if r.opts.CaptureScreenshot {
		r.screenshot(ctx)
	}

	r.score()
	ind := r.result.MFAIndicators
	r.transition(StateScored, fmt.Sprintf("combined=%d risk=%s", ind.CombinedScore, ind.RiskLevel))
	r.result.Success = true
	r.transition(StateDone, "")
	return nil
}

func (r *run) launchOptions() LaunchOptions {
	return LaunchOptions{
		BlockResources: r.opts.BlockResources,
		BlockImages:    r.opts.BlockResources && r.opts.quick(),
	}
}

// transition appends to the state trace.
func (r *run) transition(state State, note string) {
	now := r.c.now()
	r.result.StateTrace = append(r.result.StateTrace, Transition{
		State:     state,
		At:        now,
		ElapsedMs: now.Sub(r.start).Milliseconds(),
		Note:      note,
	})
	r.result.FinalState = state

	fields := []zap.Field{zap.String("state", string(state))}
	if note != "" {
		fields = append(fields, zap.String("note", note))
	}
	if state == StateFailed {
		r.logger.Warn("Crawl state changed.", fields...)
		return
	}
	r.logger.Info("Crawl state changed.", fields...)
}

func (r *run) fail(err error) {
	r.result.Success = false
	r.result.Error = err.Error()
	r.transition(StateFailed, err.Error())
}

// close scores whatever was gathered if the crawl did not get that far, then
// releases the browser and the classifier.
func (r *run) close() {
	if !r.scored {
		r.score()
	}
	r.detach()
	r.classifier.Reset()

	finished := r.c.now()
	r.result.FinishedAt = finished
	r.result.DurationMs = finished.Sub(r.start).Milliseconds()

	r.logger.Info("Crawl finished.",
		zap.Bool("success", r.result.Success),
		zap.String("final_state", string(r.result.FinalState)),
		zap.Int("combined_score", r.result.MFAIndicators.CombinedScore),
		zap.String("risk_level", string(r.result.MFAIndicators.RiskLevel)),
		zap.Int64("duration_ms", r.result.DurationMs))
}
