// Package stealth makes the automated browser present a consistent, ordinary
// identity: protocol-level overrides plus a bundle of page patches installed
// before any document script runs.
package stealth

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	rodstealth "github.com/go-rod/stealth"
	"go.uber.org/zap"

	"github.com/xkilldash9x/adscope/internal/browser/scripts"
)

// patchOrder is the fixed bundle order. The automation unit must stay first.
var patchOrder = []string{
	scripts.PatchAutomation,
	scripts.PatchNavigator,
	scripts.PatchUAData,
	scripts.PatchVisibility,
	scripts.PatchCanvas,
	scripts.PatchWebGL,
	scripts.PatchPlugins,
	scripts.PatchGlobals,
}

// Option adjusts Apply.
type Option func(*applyOptions)

type applyOptions struct {
	extraEvasions bool
}

// WithExtraEvasions adds the puppeteer-extra evasion bundle right after the
// automation unit.
func WithExtraEvasions(enabled bool) Option {
	return func(o *applyOptions) { o.extraEvasions = enabled }
}

// Apply returns the actions that install the profile on the current target.
// It has to run before the first navigation; installed scripts only affect
// documents created afterwards.
func Apply(p Profile, logger *zap.Logger, opts ...Option) chromedp.Action {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("stealth")

	var o applyOptions
	for _, opt := range opts {
		opt(&o)
	}

	return chromedp.ActionFunc(func(ctx context.Context) error {
		source, err := bundle(p, o)
		if err != nil {
			return err
		}
		logger.Debug("Applying fingerprint profile.",
			zap.String("user_agent", p.UserAgent),
			zap.String("platform", p.Platform),
			zap.String("timezone", p.Timezone),
			zap.Bool("extra_evasions", o.extraEvasions),
			zap.Int("bundle_bytes", len(source)))

		if err := overrides(p).Do(ctx); err != nil {
			return err
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(source).Do(ctx); err != nil {
			return fmt.Errorf("stealth: inject patch bundle: %w", err)
		}
		return nil
	})
}

// overrides are the protocol-level half of the profile.
func overrides(p Profile) chromedp.Tasks {
	tasks := chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			err := emulation.SetUserAgentOverride(p.UserAgent).
				WithPlatform(p.Platform).
				WithAcceptLanguage(acceptLanguage(p.Languages)).
				WithUserAgentMetadata(userAgentMetadata(p)).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("stealth: user agent override: %w", err)
			}
			return nil
		}),
	}
	if p.Timezone != "" {
		tasks = append(tasks, wrap("timezone override", emulation.SetTimezoneOverride(p.Timezone)))
	}
	if p.Locale != "" {
		tasks = append(tasks, wrap("locale override", emulation.SetLocaleOverride().WithLocale(p.Locale)))
	}
	if p.ScreenWidth > 0 && p.ScreenHeight > 0 {
		// Zero width and height keep the window's own viewport.
		tasks = append(tasks, wrap("device metrics override",
			emulation.SetDeviceMetricsOverride(0, 0, 1, false).
				WithScreenWidth(int64(p.ScreenWidth)).
				WithScreenHeight(int64(p.ScreenHeight))))
	}
	if p.MaxTouchPoints > 0 {
		tasks = append(tasks, wrap("touch emulation",
			emulation.SetTouchEmulationEnabled(true).WithMaxTouchPoints(int64(p.MaxTouchPoints))))
	}
	return tasks
}

func wrap(what string, action chromedp.Action) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := action.Do(ctx); err != nil {
			return fmt.Errorf("stealth: %s: %w", what, err)
		}
		return nil
	})
}

func userAgentMetadata(p Profile) *emulation.UserAgentMetadata {
	toCDP := func(in []Brand) []*emulation.UserAgentBrandVersion {
		out := make([]*emulation.UserAgentBrandVersion, len(in))
		for i, b := range in {
			out[i] = &emulation.UserAgentBrandVersion{Brand: b.Brand, Version: b.Version}
		}
		return out
	}
	return &emulation.UserAgentMetadata{
		Brands:          toCDP(p.Brands),
		FullVersionList: toCDP(p.fullVersionList()),
		Platform:        p.UAPlatform,
		PlatformVersion: p.UAPlatformVersion,
		Architecture:    p.Architecture,
		Bitness:         p.Bitness,
		Mobile:          false,
	}
}

// acceptLanguage renders the header value Chrome sends for a language list,
// e.g. "en-US,en;q=0.9".
func acceptLanguage(languages []string) string {
	parts := make([]string, 0, len(languages))
	q := 10
	for i, lang := range languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		if q > 1 {
			q--
		}
		parts = append(parts, lang+";q=0."+strconv.Itoa(q))
	}
	return strings.Join(parts, ",")
}

// bundle concatenates every patch invocation in order. Each one is guarded so
// a throwing patch leaves the rest in place.
func bundle(p Profile, o applyOptions) (string, error) {
	args := p.payload()

	var sb strings.Builder
	for _, name := range patchOrder {
		call, err := scripts.Call(name, args)
		if err != nil {
			return "", fmt.Errorf("stealth: build %s patch: %w", name, err)
		}
		sb.WriteString(scripts.Guarded(call))
		if name == scripts.PatchAutomation && o.extraEvasions {
			sb.WriteString(scripts.Guarded(rodstealth.JS))
		}
	}
	return sb.String(), nil
}
