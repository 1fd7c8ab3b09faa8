package humanoid

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/adscope/internal/browser/scripts"
	"github.com/xkilldash9x/adscope/internal/browser/session"
	"github.com/xkilldash9x/adscope/internal/config"
)

// fakePage is a scrollable document with optional growth on every scroll.
type fakePage struct {
	scrollY        float64
	viewportWidth  float64
	viewportHeight float64
	scrollHeight   float64
	// growth is added to scrollHeight each time the offset advances, up to maxHeight.
	growth    float64
	maxHeight float64
	// ignoreWheel makes wheel events no-ops, like a page that swallows them.
	ignoreWheel bool
	// frozen makes every scroll a no-op.
	frozen bool
	// element is returned for element_center; nil means no match.
	element *elementBox
}

func (p *fakePage) scrollTo(y float64) {
	if p.frozen {
		return
	}
	limit := math.Max(0, p.scrollHeight-p.viewportHeight)
	y = math.Max(0, math.Min(limit, y))
	if y > p.scrollY && p.growth > 0 {
		p.scrollHeight = math.Min(p.maxHeight, p.scrollHeight+p.growth)
	}
	p.scrollY = y
}

// mockExecutor implements Executor against a fakePage and records every call.
type mockExecutor struct {
	mu             sync.Mutex
	page           *fakePage
	events         []session.MouseEvent
	keys           []string
	sleeps         []time.Duration
	expressions    []string
	evaluateErr    error
	sleepErrOnCall int
	sleepErr       error
}

func newMockExecutor(page *fakePage) *mockExecutor {
	if page == nil {
		page = &fakePage{viewportWidth: 1280, viewportHeight: 720, scrollHeight: 720}
	}
	return &mockExecutor{page: page}
}

func (m *mockExecutor) Sleep(ctx context.Context, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sleeps = append(m.sleeps, d)
	if m.sleepErrOnCall > 0 && len(m.sleeps) == m.sleepErrOnCall {
		return m.sleepErr
	}
	return ctx.Err()
}

func (m *mockExecutor) DispatchMouseEvent(ctx context.Context, ev session.MouseEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	if ev.Type == session.MouseWheel && !m.page.ignoreWheel {
		m.page.scrollTo(m.page.scrollY + ev.DeltaY)
	}
	return nil
}

func (m *mockExecutor) SendKeys(ctx context.Context, keys string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, keys)
	return nil
}

func (m *mockExecutor) Evaluate(ctx context.Context, expression string, out interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expressions = append(m.expressions, expression)
	if m.evaluateErr != nil {
		return m.evaluateErr
	}

	var result interface{}
	switch {
	case isCall(expression, scripts.PageMetrics):
		result = PageMetrics{
			ScrollY:        m.page.scrollY,
			ViewportWidth:  m.page.viewportWidth,
			ViewportHeight: m.page.viewportHeight,
			ScrollHeight:   m.page.scrollHeight,
		}
	case isCall(expression, scripts.ScrollBy):
		dy, err := lastArgument(expression)
		if err != nil {
			return err
		}
		m.page.scrollTo(m.page.scrollY + dy)
		result = m.page.scrollY
	case isCall(expression, scripts.ElementCenter):
		result = m.page.element
	default:
		return errors.New("mockExecutor: unexpected expression")
	}

	b, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (m *mockExecutor) mouseEvents(kind session.MouseEventType) []session.MouseEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []session.MouseEvent
	for _, ev := range m.events {
		if ev.Type == kind {
			out = append(out, ev)
		}
	}
	return out
}

func isCall(expression, unit string) bool {
	u, err := scripts.Get(unit)
	return err == nil && strings.Contains(expression, u.Source)
}

// lastArgument parses the single numeric argument of an invocation.
func lastArgument(expression string) (float64, error) {
	i := strings.LastIndex(expression, ")(")
	if i < 0 {
		return 0, errors.New("mockExecutor: no argument list")
	}
	return strconv.ParseFloat(strings.TrimSuffix(expression[i+2:], ")"), 64)
}

// testConfig is the default humanoid config with a fixed seed.
func testConfig() config.HumanoidConfig {
	cfg := config.DefaultHumanoidConfig()
	cfg.Seed = 42
	return cfg
}

func newTestHumanoid(t *testing.T, cfg config.HumanoidConfig, exec *mockExecutor) *Humanoid {
	t.Helper()
	return New(cfg, zaptest.NewLogger(t), exec)
}
