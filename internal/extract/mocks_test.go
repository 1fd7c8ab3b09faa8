package extract

import (
	"context"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/adscope/internal/browser/scripts"
	"github.com/xkilldash9x/adscope/internal/config"
)

// reply is one scripted answer.
type reply struct {
	value string
	err   error
}

// scriptedPage answers each registry unit from its own queue. The last reply
// of a queue repeats once the queue is drained.
type scriptedPage struct {
	mu      sync.Mutex
	replies map[string][]reply
	calls   map[string]int
}

func newScriptedPage() *scriptedPage {
	return &scriptedPage{replies: make(map[string][]reply), calls: make(map[string]int)}
}

func (p *scriptedPage) on(unit string, replies ...reply) *scriptedPage {
	p.replies[unit] = replies
	return p
}

func (p *scriptedPage) Evaluate(_ context.Context, expression string, out interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	unit := unitOf(expression)
	n := p.calls[unit]
	p.calls[unit]++

	queue := p.replies[unit]
	if len(queue) == 0 {
		return nil
	}
	if n >= len(queue) {
		n = len(queue) - 1
	}
	r := queue[n]
	if r.err != nil {
		return r.err
	}
	b, err := json.Marshal(r.value)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
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

func testExtractConfig() config.ExtractConfig {
	return config.ExtractConfig{
		MinContentLength: 100,
		MaxAttempts:      3,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       2 * time.Millisecond,
		AttemptTimeout:   time.Second,
	}
}

func ok(v string) reply { return reply{value: v} }

func fail(err error) reply { return reply{err: err} }
