package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/adscope/internal/browser/scripts"
	"github.com/xkilldash9x/adscope/internal/browser/session"
	"github.com/xkilldash9x/adscope/internal/browser/stealth"
	"github.com/xkilldash9x/adscope/internal/config"
	"github.com/xkilldash9x/adscope/internal/extract"
	"github.com/xkilldash9x/adscope/internal/heatmap"
	"github.com/xkilldash9x/adscope/internal/humanoid"
	"github.com/xkilldash9x/adscope/internal/traffic"
)

var errNoBrowser = errors.New("crawler: no browser attached")

// run is the state of one crawl. Apart from the classifier's body fetches,
// which arrive on the feed goroutine, it is used by one goroutine only.
type run struct {
	c      *Crawler
	cfg    config.Interface
	opts   Options
	logger *zap.Logger
	start  time.Time
	result *Result

	classifier *traffic.Classifier
	events     chan session.NetworkEvent
	feed       *errgroup.Group
	feedOnce   sync.Once

	// mu guards browser and unsubscribe.
	mu          sync.Mutex
	browser     Browser
	unsubscribe func()

	human      *humanoid.Humanoid
	candidates []extract.Candidate
	recoveries int
	// loaded is set once a navigation has returned; a relaunch reloads the
	// page only then.
	loaded     bool
	scored     bool
}

// startFeed runs the classifier for the rest of the crawl.
func (r *run) startFeed(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.classifier.Run(gctx, r.events)
	})
	r.feed = g
}

// stopFeed detaches the feed and waits until every delivered event has been
// recorded.
func (r *run) stopFeed() {
	r.feedOnce.Do(func() {
		r.mu.Lock()
		if r.unsubscribe != nil {
			r.unsubscribe()
			r.unsubscribe = nil
		}
		r.mu.Unlock()

		close(r.events)
		if r.feed == nil {
			return
		}
		if err := r.feed.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			r.logger.Warn("Traffic feed stopped with error.", zap.Error(err))
		}
	})
}

// attach makes b the crawl's browser and feeds its events to the classifier.
func (r *run) attach(b Browser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.browser = b
	r.unsubscribe = b.Subscribe(r.events)
	r.human = humanoid.New(r.cfg.Humanoid(), r.logger, b)
}

// detach unsubscribes and closes the current browser, if any.
func (r *run) detach() {
	r.mu.Lock()
	b, unsubscribe := r.browser, r.unsubscribe
	r.browser, r.unsubscribe = nil, nil
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if b == nil {
		return
	}
	if err := b.Close(); err != nil {
		r.logger.Warn("Browser closed with errors.", zap.Error(err))
	}
}

func (r *run) current() Browser {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.browser
}

// ResponseBody serves the classifier's VAST fetches from whichever browser
// is attached.
func (r *run) ResponseBody(ctx context.Context, requestID string) ([]byte, error) {
	b := r.current()
	if b == nil {
		return nil, errNoBrowser
	}
	return b.ResponseBody(ctx, requestID)
}

var _ traffic.BodySource = (*run)(nil)

// patch installs the fingerprint profile on the current target.
func (r *run) patch(ctx context.Context) error {
	sc := r.cfg.Stealth()
	if !sc.Enabled {
		return nil
	}
	profile := stealth.ProfileFromConfig(sc.Profile)
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("crawler: fingerprint profile: %w", err)
	}
	action := stealth.Apply(profile, r.logger, stealth.WithExtraEvasions(sc.ExtraEvasions))
	if err := r.current().Run(ctx, action); err != nil {
		return fmt.Errorf("crawler: apply stealth: %w", err)
	}
	return nil
}

// navigate loads the target URL. A timeout is not an error.
func (r *run) navigate(ctx context.Context) error {
	ok, err := r.current().Navigate(ctx, r.result.URL, r.cfg.Network().NavigationTimeout)
	if err != nil {
		return fmt.Errorf("crawler: navigate: %w", err)
	}
	r.loaded = true
	r.result.Navigated = ok
	if !ok {
		r.logger.Warn("Navigation did not complete; proceeding with the current document.")
	}
	return nil
}

// stabilize waits for network and DOM quiet, then prepares the page. Every
// wait is bounded and a timeout only means proceeding.
func (r *run) stabilize(ctx context.Context) error {
	b := r.current()
	nc := r.cfg.Network()

	if !b.WaitForNetworkIdle(ctx, nc.IdleTimeout, nc.IdleWindow) {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.logger.Debug("Network did not go idle; proceeding.", zap.Duration("timeout", nc.IdleTimeout))
	}

	if err := r.domQuiet(ctx, b, nc); err != nil {
		return err
	}

	var location string
	if err := evaluateUnit(ctx, b, scripts.Location, &location); err == nil {
		r.result.FinalURL = location
	} else if errors.Is(err, session.ErrConnectionLost) {
		return err
	}

	if r.cfg.Stealth().RemoveOverlays {
		report, err := stealth.RemoveOverlays(ctx, b, stealth.DefaultOverlayOptions())
		switch {
		case err == nil:
			r.result.Overlays = &report
		case errors.Is(err, session.ErrConnectionLost):
			return err
		default:
			r.logger.Debug("Overlay removal failed.", zap.Error(err))
		}
	}

	if r.opts.SimulateIdle {
		if err := r.human.IdleBrowse(ctx, r.cfg.Crawl().IdleDuration); err != nil {
			if ctx.Err() != nil || errors.Is(err, session.ErrConnectionLost) {
				return err
			}
			r.logger.Debug("Idle browsing stopped early.", zap.Error(err))
		}
	}
	return nil
}

func (r *run) domQuiet(ctx context.Context, b Browser, nc config.NetworkConfig) error {
	if nc.DOMQuietTimeout <= 0 {
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, nc.DOMQuietTimeout+time.Second)
	defer cancel()

	var quiet bool
	err := evaluateUnit(waitCtx, b, scripts.DOMQuiet, &quiet, nc.DOMQuietWindow.Milliseconds(), nc.DOMQuietTimeout.Milliseconds())
	switch {
	case errors.Is(err, session.ErrConnectionLost):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		r.logger.Debug("DOM quiet wait failed; proceeding.", zap.Error(err))
	case !quiet:
		r.logger.Debug("DOM kept mutating; proceeding.", zap.Duration("timeout", nc.DOMQuietTimeout))
	}
	return nil
}

// baseline snapshots the main text before any scrolling.
func (r *run) baseline(ctx context.Context) error {
	text, err := extract.MainText(ctx, r.current())
	if err != nil {
		if errors.Is(err, session.ErrConnectionLost) || ctx.Err() != nil {
			return err
		}
		r.logger.Debug("Baseline extraction failed.", zap.Error(err))
		return nil
	}
	r.addCandidate(extract.Candidate{Phase: extract.PhaseBaseline, Content: text})
	return nil
}

// scan runs the heatmap. A lost connection keeps the levels captured so far.
func (r *run) scan(ctx context.Context) error {
	hc := r.cfg.Heatmap()
	if !hc.Enabled {
		return nil
	}
	maxLevels := hc.FullMaxLevels
	if r.opts.quick() {
		maxLevels = hc.QuickMaxLevels
	}
	opts := humanoid.ScanOptions(r.cfg.Humanoid(), maxLevels, r.opts.quick())

	b := r.current()
	report, err := r.c.heatmap.Run(ctx, r.human, b, opts, r.snapshot(b))
	r.result.AdHeatmap = report
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, session.ErrConnectionLost):
		r.logger.Warn("Connection lost during scan; keeping partial heatmap.",
			zap.Int("levels", len(report.Levels)))
		if rerr := r.recover(ctx); rerr != nil {
			return fmt.Errorf("crawler: scan: %w", rerr)
		}
		return nil
	default:
		r.logger.Warn("Heatmap scan ended early.", zap.Int("levels", len(report.Levels)), zap.Error(err))
		return nil
	}
}

// snapshot returns the hook that captures progressive content at each level.
func (r *run) snapshot(b Browser) heatmap.Hook {
	return func(ctx context.Context, level heatmap.Level) {
		text, err := extract.MainText(ctx, b)
		if err != nil {
			r.logger.Debug("Progressive snapshot failed.", zap.Int("level", level.Index), zap.Error(err))
			return
		}
		r.addCandidate(extract.Candidate{Phase: extract.PhaseProgressive, Level: level.Index, Content: text})
	}
}

// extractFinal runs the strategy chain. Exhaustion is recorded, not fatal.
func (r *run) extractFinal(ctx context.Context) error {
	x := extract.New(r.cfg.Extract(), r.logger, extract.WithRecovery(r.recoverEvaluator))
	res, err := x.Run(ctx, r.current())
	r.result.ExtractionAttempts = res.Attempts
	r.result.ExtractionStrategy = res.Strategy

	switch {
	case err == nil:
		r.addCandidate(extract.Candidate{Phase: extract.PhaseFinal, Strategy: res.Strategy, Content: res.Content})
		return nil
	case errors.Is(err, extract.ErrExhausted):
		r.result.ExtractionFailed = true
		r.addCandidate(extract.Candidate{Phase: extract.PhaseFinal, Content: res.Content})
		return nil
	default:
		r.result.ExtractionFailed = true
		return fmt.Errorf("crawler: final extraction: %w", err)
	}
}

func (r *run) screenshot(ctx context.Context) {
	img, err := r.current().Screenshot(ctx)
	if err != nil {
		r.logger.Warn("Screenshot failed.", zap.Error(err))
		return
	}
	r.result.Screenshot = img
}

func (r *run) addCandidate(c extract.Candidate) {
	if c.Content == "" {
		return
	}
	r.candidates = append(r.candidates, c)
}

// score picks the content and combines the verdicts. The feed is stopped
// first so the network analysis covers every delivered event.
func (r *run) score() {
	r.scored = true
	r.stopFeed()

	analysis := r.classifier.Analysis()
	r.result.NetworkAnalysis = analysis

	if best, ok := extract.SelectBest(r.candidates); ok {
		r.result.Content = best.Content
		r.result.ContentSource = best.Source()
	}
	r.result.ContentLength = utf8.RuneCountInString(r.result.Content)

	r.result.MFAIndicators = Indicators(r.result.AdHeatmap, analysis, r.result.ContentLength, r.cfg.Extract().MinContentLength)
}

func evaluateUnit(ctx context.Context, ev extract.Evaluator, unit string, out interface{}, args ...interface{}) error {
	expr, err := scripts.Call(unit, args...)
	if err != nil {
		return err
	}
	if err := ev.Evaluate(ctx, expr, out); err != nil {
		return fmt.Errorf("crawler: %s: %w", unit, err)
	}
	return nil
}
