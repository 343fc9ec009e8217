package genclient

import (
	"context"
	"time"

	"sitebuilder/pkg/faults"
	"sitebuilder/pkg/logx"
	"sitebuilder/pkg/metrics"
)

// WithMetrics records latency, approximate token usage and outcome of every call.
func WithMetrics(recorder metrics.Recorder, model string) Middleware {
	logger := logx.NewLogger("genclient")

	return func(next Client) Client {
		return Func(func(ctx context.Context, prompt, system string) (string, error) {
			start := time.Now()
			text, err := next.Generate(ctx, prompt, system)
			duration := time.Since(start)

			var promptTokens, completionTokens int
			if err == nil {
				promptTokens = metrics.CountTokens(system + "\n" + prompt)
				completionTokens = metrics.CountTokens(text)
			}

			agent := AgentFrom(ctx)
			recorder.ObserveGeneration(model, agent, promptTokens, completionTokens,
				err == nil, faults.Label(err), duration)

			logx.Debug(ctx, "genclient", "model=%s agent=%s tokens=%d+%d duration=%dms err=%v",
				model, agent, promptTokens, completionTokens, duration.Milliseconds(), err)
			if err != nil {
				logger.Warn("generation failed: model=%s agent=%s duration=%dms: %v",
					model, agent, duration.Milliseconds(), err)
			}

			return text, err //nolint:wrapcheck // Middleware passes errors through unchanged
		})
	}
}
