// Package limiter provides per-model token-bucket rate limiting and concurrency caps for generator calls.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"sitebuilder/pkg/config"
)

// ErrRateLimit is returned when a reservation cannot be satisfied before the context ends.
var ErrRateLimit = errors.New("rate limit exceeded")

// Limiter manages rate limiting across multiple models. Models are created lazily with the
// configured defaults.
type Limiter struct {
	models map[string]*ModelLimiter
	limits config.RateLimitConfig
	now    func() time.Time
	mu     sync.Mutex
}

// ModelLimiter enforces token and concurrency limits for one model.
//
//nolint:govet // Struct layout optimization not critical for this use case
type ModelLimiter struct {
	name               string
	sem                *semaphore.Weighted
	mu                 sync.Mutex
	lastRefill         time.Time
	currentTokens      float64
	maxTokensPerMinute int
	now                func() time.Time
}

// New creates a limiter using limits for every model.
func New(limits config.RateLimitConfig) *Limiter {
	if limits.MaxConcurrency <= 0 {
		limits.MaxConcurrency = 1
	}
	return &Limiter{
		models: make(map[string]*ModelLimiter),
		limits: limits,
		now:    time.Now,
	}
}

func (l *Limiter) model(name string) *ModelLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	ml, ok := l.models[name]
	if !ok {
		ml = &ModelLimiter{
			name:               name,
			sem:                semaphore.NewWeighted(int64(l.limits.MaxConcurrency)),
			maxTokensPerMinute: l.limits.TokensPerMinute,
			currentTokens:      float64(l.limits.TokensPerMinute), // Start with full bucket
			lastRefill:         l.now(),
			now:                l.now,
		}
		l.models[name] = ml
	}
	return ml
}

// Acquire blocks until a concurrency slot and the requested tokens are available for model.
// The returned release func frees the concurrency slot; tokens are consumed.
func (l *Limiter) Acquire(ctx context.Context, model string, tokens int) (func(), error) {
	ml := l.model(model)

	if err := ml.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: waiting for %s slot: %w", ErrRateLimit, model, err)
	}
	release := func() { ml.sem.Release(1) }

	if err := ml.reserve(ctx, tokens); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

// reserve waits for the bucket to hold tokens, then consumes them.
func (ml *ModelLimiter) reserve(ctx context.Context, tokens int) error {
	if ml.maxTokensPerMinute <= 0 {
		return nil
	}
	if tokens > ml.maxTokensPerMinute {
		tokens = ml.maxTokensPerMinute
	}

	for {
		wait := ml.tryReserve(tokens)
		if wait == 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %s needs %d tokens: %w", ErrRateLimit, ml.name, tokens, ctx.Err())
		case <-timer.C:
		}
	}
}

// tryReserve consumes tokens and returns 0, or returns how long until enough tokens refill.
func (ml *ModelLimiter) tryReserve(tokens int) time.Duration {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.refillTokens()
	if ml.currentTokens >= float64(tokens) {
		ml.currentTokens -= float64(tokens)
		return 0
	}

	perSecond := float64(ml.maxTokensPerMinute) / 60.0
	deficit := float64(tokens) - ml.currentTokens
	wait := time.Duration(deficit / perSecond * float64(time.Second))
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

func (ml *ModelLimiter) refillTokens() {
	now := ml.now()
	elapsed := now.Sub(ml.lastRefill)
	if elapsed <= 0 {
		return
	}
	ml.lastRefill = now

	ml.currentTokens += elapsed.Minutes() * float64(ml.maxTokensPerMinute)
	if ml.currentTokens > float64(ml.maxTokensPerMinute) {
		ml.currentTokens = float64(ml.maxTokensPerMinute)
	}
}

// Available returns the tokens currently in model's bucket.
func (l *Limiter) Available(model string) int {
	ml := l.model(model)
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.refillTokens()
	return int(ml.currentTokens)
}
