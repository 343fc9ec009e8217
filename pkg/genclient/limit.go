package genclient

import (
	"context"

	"sitebuilder/pkg/faults"
	"sitebuilder/pkg/limiter"
	"sitebuilder/pkg/metrics"
)

// WithLimiter reserves a concurrency slot and the prompt's token estimate before each call.
// A reservation that cannot be satisfied before ctx ends is reported as a network fault.
func WithLimiter(l *limiter.Limiter, model string) Middleware {
	return func(next Client) Client {
		return Func(func(ctx context.Context, prompt, system string) (string, error) {
			release, err := l.Acquire(ctx, model, metrics.CountTokens(system+"\n"+prompt))
			if err != nil {
				return "", faults.Network(err, "generator capacity unavailable")
			}
			defer release()
			return next.Generate(ctx, prompt, system)
		})
	}
}
