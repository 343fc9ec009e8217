package genclient

import (
	"context"
	"fmt"
	"math"
	"time"

	"sitebuilder/pkg/config"
	"sitebuilder/pkg/faults"
	"sitebuilder/pkg/logx"
)

// RetryPolicy configures WithRetry.
type RetryPolicy struct {
	MaxAttempts   int           // Including the initial attempt
	InitialDelay  time.Duration // Delay before the first retry
	MaxDelay      time.Duration // Cap between retries
	BackoffFactor float64       // Multiplier for exponential backoff
}

// PolicyFromConfig converts the generator retry section.
func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.BackoffFactor,
	}
}

// Delay computes the wait before the given attempt (attempt 1 never waits).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := time.Duration(float64(p.InitialDelay) * math.Pow(factor, float64(attempt-2)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// WithRetry retries network faults only. Malformed output, authentication and API errors are
// returned immediately; retrying them is the caller's decision.
func WithRetry(policy RetryPolicy) Middleware {
	logger := logx.NewLogger("genclient")
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	return func(next Client) Client {
		return Func(func(ctx context.Context, prompt, system string) (string, error) {
			var lastErr error

			for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
				if delay := policy.Delay(attempt); delay > 0 {
					select {
					case <-ctx.Done():
						return "", fmt.Errorf("retry cancelled after %d attempts: %w", attempt-1, lastErr)
					case <-time.After(delay):
					}
				}

				text, err := next.Generate(ctx, prompt, system)
				if err == nil {
					return text, nil
				}
				lastErr = err

				if !faults.IsRetryable(err) {
					break
				}
				if attempt < policy.MaxAttempts {
					logger.Warn("🔁 %s generation attempt %d/%d failed, retrying: %v",
						AgentFrom(ctx), attempt, policy.MaxAttempts, err)
				}
			}
			return "", lastErr
		})
	}
}
