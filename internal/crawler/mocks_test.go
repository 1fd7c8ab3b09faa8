package crawler

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/adscope/internal/browser/scripts"
	"github.com/xkilldash9x/adscope/internal/browser/session"
	"github.com/xkilldash9x/adscope/internal/config"
	"github.com/xkilldash9x/adscope/internal/heatmap"
)

const viewport = 1000.0

// detectReply mirrors the detect_ads script result.
type detectReply struct {
	ViewportWidth  float64             `json:"viewportWidth"`
	ViewportHeight float64             `json:"viewportHeight"`
	ScrollY        float64             `json:"scrollY"`
	ScrollHeight   float64             `json:"scrollHeight"`
	Detections     []heatmap.Detection `json:"detections"`
}

// fakeBrowser models a 1000x1000 viewport over a page of pageHeight pixels.
// Wheel events move the scroll offset; every script unit gets a canned reply.
type fakeBrowser struct {
	mu sync.Mutex

	pageHeight float64
	scrollY    float64
	adCounts   []int
	texts      map[string]string
	// failures are consumed one per call of the unit.
	failures map[string][]error

	navigateOK    bool
	navigateErr   error
	navigatePanic bool
	events        []session.NetworkEvent
	pingErr       error
	reconnectErr  error
	screenshot    []byte

	sub          chan<- session.NetworkEvent
	detectCalls  int
	calls        map[string]int
	runs         int
	navigations  int
	reconnects   int
	closed       int
	unsubscribed bool
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		pageHeight: viewport,
		navigateOK: true,
		texts:      make(map[string]string),
		failures:   make(map[string][]error),
		calls:      make(map[string]int),
	}
}

func (b *fakeBrowser) withText(unit, text string) *fakeBrowser {
	b.texts[unit] = text
	return b
}

func (b *fakeBrowser) failNext(unit string, errs ...error) *fakeBrowser {
	b.failures[unit] = append(b.failures[unit], errs...)
	return b
}

func (b *fakeBrowser) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func (b *fakeBrowser) DispatchMouseEvent(_ context.Context, ev session.MouseEvent) error {
	if ev.Type != session.MouseWheel {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scrollBy(ev.DeltaY)
	return nil
}

func (b *fakeBrowser) scrollBy(dy float64) {
	b.scrollY = math.Max(0, math.Min(b.scrollY+dy, b.pageHeight-viewport))
}

func (b *fakeBrowser) SendKeys(context.Context, string) error { return nil }

func (b *fakeBrowser) Evaluate(_ context.Context, expression string, out interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	unit := unitOf(expression)
	b.calls[unit]++
	if queue := b.failures[unit]; len(queue) > 0 {
		b.failures[unit] = queue[1:]
		if queue[0] != nil {
			return queue[0]
		}
	}

	var reply interface{}
	switch unit {
	case scripts.PageMetrics:
		reply = map[string]float64{
			"scrollY":        math.Round(b.scrollY),
			"viewportWidth":  viewport,
			"viewportHeight": viewport,
			"scrollHeight":   b.pageHeight,
		}
	case scripts.ScrollBy:
		var dy float64
		if _, err := fmt.Sscanf(expression[strings.LastIndex(expression, "(")+1:], "%g", &dy); err == nil {
			b.scrollBy(dy)
		}
		reply = math.Round(b.scrollY)
	case scripts.DetectAds:
		reply = b.detect()
	case scripts.LayoutShift:
		reply = 0.0
	case scripts.DOMQuiet:
		reply = true
	case scripts.Location:
		reply = "https://example.test/article"
	case scripts.RemoveOverlays:
		reply = map[string]interface{}{"clicked": 1, "removed": 0, "scrollRestored": true}
	case scripts.MainText, scripts.StructuredHTML, scripts.OuterHTML, scripts.IframeText, scripts.TextNodes:
		reply = b.texts[unit]
	default:
		return nil
	}

	raw, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// detect lays out the level's ads as 250x250 tiles, four per row.
func (b *fakeBrowser) detect() detectReply {
	r := detectReply{ViewportWidth: viewport, ViewportHeight: viewport, ScrollY: b.scrollY, ScrollHeight: b.pageHeight}
	n := 0
	if len(b.adCounts) > 0 {
		n = b.adCounts[min(b.detectCalls, len(b.adCounts)-1)]
	}
	b.detectCalls++
	for i := 0; i < n; i++ {
		r.Detections = append(r.Detections, heatmap.Detection{
			SelectorClass: "ad-slot",
			X:             float64(i%4) * 250,
			Y:             float64(i/4) * 250,
			Width:         250,
			Height:        250,
			InViewport:    true,
		})
	}
	return r
}

func (b *fakeBrowser) Run(context.Context, ...chromedp.Action) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runs++
	return nil
}

func (b *fakeBrowser) Navigate(_ context.Context, _ string, _ time.Duration) (bool, error) {
	b.mu.Lock()
	b.navigations++
	if b.navigatePanic {
		b.mu.Unlock()
		panic("renderer exploded")
	}
	if err := b.navigateErr; err != nil {
		b.navigateErr = nil
		b.mu.Unlock()
		return false, err
	}
	events, sub := b.events, b.sub
	ok := b.navigateOK
	b.mu.Unlock()

	if sub != nil {
		for _, ev := range events {
			sub <- ev
		}
	}
	return ok, nil
}

func (b *fakeBrowser) WaitForNetworkIdle(context.Context, time.Duration, time.Duration) bool {
	return true
}

func (b *fakeBrowser) Screenshot(context.Context) ([]byte, error) {
	if b.screenshot == nil {
		return nil, fmt.Errorf("screenshot unavailable")
	}
	return b.screenshot, nil
}

func (b *fakeBrowser) ResponseBody(context.Context, string) ([]byte, error) {
	return nil, fmt.Errorf("no body")
}

func (b *fakeBrowser) Subscribe(ch chan<- session.NetworkEvent) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sub = ch
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.sub = nil
		b.unsubscribed = true
	}
}

func (b *fakeBrowser) Ping(context.Context) error { return b.pingErr }

func (b *fakeBrowser) Reconnect(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reconnects++
	return b.reconnectErr
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return nil
}

func unitOf(expression string) string {
	for _, name := range scripts.Names() {
		u, _ := scripts.Get(name)
		if strings.Contains(expression, u.Source) {
			return name
		}
	}
	return ""
}

// fakeLauncher hands out browsers in order.
type fakeLauncher struct {
	mu       sync.Mutex
	browsers []*fakeBrowser
	err      error
	opts     []LaunchOptions
}

func (l *fakeLauncher) Launch(_ context.Context, opts LaunchOptions) (Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opts = append(l.opts, opts)
	if l.err != nil {
		return nil, l.err
	}
	if len(l.browsers) == 0 {
		return nil, &session.LaunchError{Stage: "start", Err: fmt.Errorf("no browser left")}
	}
	b := l.browsers[0]
	l.browsers = l.browsers[1:]
	return b, nil
}

func (l *fakeLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.opts)
}

// testConfig is the default configuration with fast extraction retries.
func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.ExtractCfg.InitialBackoff = time.Millisecond
	cfg.ExtractCfg.MaxBackoff = 2 * time.Millisecond
	cfg.ExtractCfg.AttemptTimeout = time.Second
	cfg.CrawlCfg.Timeout = 30 * time.Second
	return cfg
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func request(id, url string, offset time.Duration) session.NetworkEvent {
	return session.NetworkEvent{
		Kind:      session.RequestStarted,
		RequestID: id,
		URL:       url,
		Method:    "GET",
		Timestamp: epoch.Add(offset),
	}
}

// article is markdown-free prose long enough to pass every length check.
func article() string {
	return strings.Repeat("This paragraph explains the topic in plain words for the reader. ", 12)
}
