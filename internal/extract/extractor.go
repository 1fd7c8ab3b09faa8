// Package extract pulls readable content out of a loaded page through an
// ordered chain of strategies, retrying each with exponential backoff, and
// ranks content candidates gathered over a crawl.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xkilldash9x/adscope/internal/browser/session"
	"github.com/xkilldash9x/adscope/internal/config"
)

// ErrExhausted means no strategy produced enough content.
var ErrExhausted = errors.New("extract: every strategy returned insufficient content")

var errTooShort = errors.New("content below minimum length")

// RecoverFunc restores a lost connection and returns the evaluator to
// continue with, which may be a new session.
type RecoverFunc func(ctx context.Context) (Evaluator, error)

// Attempt records how one strategy fared.
type Attempt struct {
	Strategy   string `json:"strategy"`
	Tries      int    `json:"tries"`
	Length     int    `json:"length"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// Result is the outcome of a final extraction. Content holds the longest text
// seen when no strategy succeeded.
type Result struct {
	Content  string    `json:"content"`
	Strategy string    `json:"strategy,omitempty"`
	Attempts []Attempt `json:"attempts"`
}

// Extractor runs the strategy chain.
type Extractor struct {
	logger         *zap.Logger
	minLength      int
	policy         RetryPolicy
	attemptTimeout time.Duration
	strategies     []Strategy
	recover        RecoverFunc
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithStrategies replaces the default chain.
func WithStrategies(s ...Strategy) Option {
	return func(x *Extractor) { x.strategies = s }
}

// WithRecovery installs the connection-loss handler.
func WithRecovery(fn RecoverFunc) Option {
	return func(x *Extractor) { x.recover = fn }
}

// New builds an extractor from cfg.
func New(cfg config.ExtractConfig, logger *zap.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	x := &Extractor{
		logger:    logger.Named("extract"),
		minLength: cfg.MinContentLength,
		policy: RetryPolicy{
			MaxAttempts:    cfg.MaxAttempts,
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     cfg.MaxBackoff,
		},
		attemptTimeout: cfg.AttemptTimeout,
		strategies:     DefaultStrategies(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// MinLength is the shortest content, in characters, accepted as a success.
func (x *Extractor) MinLength() int { return x.minLength }

// Run tries each strategy in order and stops at the first that returns at
// least MinLength characters. A lost connection is recovered once per
// strategy when a RecoverFunc is installed. It returns ErrExhausted when
// every strategy came up short.
func (x *Extractor) Run(ctx context.Context, ev Evaluator) (Result, error) {
	res := Result{Attempts: make([]Attempt, 0, len(x.strategies))}

	for _, s := range x.strategies {
		recovered := false
		for {
			start := time.Now()
			text, tries, err := x.try(ctx, ev, s)
			att := Attempt{
				Strategy:   s.Name,
				Tries:      tries,
				Length:     utf8.RuneCountInString(text),
				Success:    err == nil,
				DurationMs: time.Since(start).Milliseconds(),
			}
			if err != nil {
				att.Error = err.Error()
			}
			res.Attempts = append(res.Attempts, att)
			if att.Length > utf8.RuneCountInString(res.Content) {
				res.Content = text
			}

			if err == nil {
				res.Content, res.Strategy = text, s.Name
				x.logger.Info("Content extracted.",
					zap.String("strategy", s.Name),
					zap.Int("tries", tries),
					zap.Int("length", att.Length))
				return res, nil
			}
			x.logger.Debug("Extraction strategy fell short.",
				zap.String("strategy", s.Name),
				zap.Int("tries", tries),
				zap.Int("length", att.Length),
				zap.Error(err))

			if errors.Is(err, session.ErrConnectionLost) {
				if x.recover == nil || recovered {
					return res, err
				}
				recovered = true
				next, rerr := x.recover(ctx)
				if rerr != nil {
					return res, fmt.Errorf("extract: recover after %s: %w", s.Name, rerr)
				}
				ev = next
				continue
			}
			if cerr := ctx.Err(); cerr != nil {
				return res, cerr
			}
			break
		}
	}

	x.logger.Warn("All extraction strategies exhausted.",
		zap.Int("strategies", len(x.strategies)),
		zap.Int("best_length", utf8.RuneCountInString(res.Content)))
	return res, ErrExhausted
}

// try runs one strategy under the retry policy. Short content is retried;
// script exceptions and connection loss are not.
func (x *Extractor) try(ctx context.Context, ev Evaluator, s Strategy) (string, int, error) {
	tries := 0
	longest := ""
	text, err := Retry(ctx, x.policy, func(ctx context.Context, attempt int) (string, error) {
		tries = attempt
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if x.attemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, x.attemptTimeout)
		}
		defer cancel()

		text, err := s.Extract(attemptCtx, ev)
		text = strings.TrimSpace(text)
		if utf8.RuneCountInString(text) > utf8.RuneCountInString(longest) {
			longest = text
		}
		var evalErr *session.EvaluationError
		switch {
		case errors.Is(err, session.ErrConnectionLost), errors.As(err, &evalErr):
			return text, Permanent(err)
		case err != nil:
			return text, err
		case utf8.RuneCountInString(text) < x.minLength:
			return text, fmt.Errorf("%w: %d < %d", errTooShort, utf8.RuneCountInString(text), x.minLength)
		}
		return text, nil
	})
	if err == nil {
		return text, tries, nil
	}
	return longest, tries, err
}
