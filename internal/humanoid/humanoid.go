// Package humanoid issues synthetic pointer, keyboard and scroll input with
// human-like timing, and drives the scroll-and-capture loop used by the
// heatmap engine.
package humanoid

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/adscope/internal/browser/session"
	"github.com/xkilldash9x/adscope/internal/config"
)

// Executor is the slice of the browser session the simulator needs.
type Executor interface {
	Sleep(ctx context.Context, d time.Duration) error
	DispatchMouseEvent(ctx context.Context, ev session.MouseEvent) error
	SendKeys(ctx context.Context, keys string) error
	Evaluate(ctx context.Context, expression string, out interface{}) error
}

var _ Executor = (*session.Session)(nil)

// Humanoid holds the pointer state and random sources for one session.
type Humanoid struct {
	// mu guards every field below it. It is never held across executor calls.
	mu         sync.Mutex
	cfg        config.HumanoidConfig
	logger     *zap.Logger
	executor   Executor
	currentPos Vector2D
	noiseTime  float64
	rng        *rand.Rand
	noiseX     *perlin.Perlin
	noiseY     *perlin.Perlin
}

// New creates a simulator. A zero cfg.Seed seeds from the clock.
func New(cfg config.HumanoidConfig, logger *zap.Logger, executor Executor) *Humanoid {
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	// Standard Perlin noise parameters.
	alpha, beta, n := 2.0, 2.0, int32(3)

	return &Humanoid{
		cfg:      cfg,
		logger:   logger.Named("humanoid"),
		executor: executor,
		rng:      rand.New(rand.NewSource(seed)),
		noiseX:   perlin.NewPerlin(alpha, beta, n, seed),
		noiseY:   perlin.NewPerlin(alpha, beta, n, seed+1),
	}
}

// Position is the last pointer position dispatched.
func (h *Humanoid) Position() Vector2D {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentPos
}

func (h *Humanoid) setPosition(p Vector2D) {
	h.mu.Lock()
	h.currentPos = p
	h.mu.Unlock()
}

// between returns a uniform duration in [minMs, maxMs].
func (h *Humanoid) between(minMs, maxMs int) time.Duration {
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	h.mu.Lock()
	n := h.rng.Intn(maxMs - minMs + 1)
	h.mu.Unlock()
	return time.Duration(minMs+n) * time.Millisecond
}

func (h *Humanoid) chance(p float64) bool {
	if p <= 0 {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Float64() < p
}

func (h *Humanoid) float() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Float64()
}

func (h *Humanoid) intn(n int) int {
	if n <= 0 {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Intn(n)
}

// gaussianMs draws from N(mean, stdDev) milliseconds, floored at minMs.
func (h *Humanoid) gaussianMs(mean, stdDev, minMs float64) time.Duration {
	h.mu.Lock()
	v := mean + h.rng.NormFloat64()*stdDev
	h.mu.Unlock()
	v = math.Max(v, minMs)
	return time.Duration(v * float64(time.Millisecond))
}

// pause sleeps through the executor so tests can observe every delay.
func (h *Humanoid) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return h.executor.Sleep(ctx, d)
}
