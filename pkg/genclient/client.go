// Package genclient wraps a text generator behind one prompt-to-text call and extracts the single
// structured payload a caller expects from free-form output.
//
// Implementations are chosen once, at construction time (see New): a provider-backed client or the
// deterministic Mock. Middleware (retry, metrics, rate limiting) is layered with Chain.
package genclient

import (
	"context"
)

// Client is the generation capability used by every agent.
type Client interface {
	// Generate sends prompt (plus optional system instructions) and returns the raw text.
	// Transport/provider faults are classified (faults.TypeNetwork, faults.TypeAuthentication,
	// faults.TypeAPI); no retries happen here.
	Generate(ctx context.Context, prompt, system string) (string, error)
}

// Func adapts a plain function to the Client interface.
type Func func(ctx context.Context, prompt, system string) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, prompt, system string) (string, error) {
	return f(ctx, prompt, system)
}

// Middleware wraps a Client with additional behavior.
type Middleware func(next Client) Client

// Chain composes middlewares around base. Earlier middlewares are outermost:
//
//	Chain(c, mw1, mw2) == mw1(mw2(c))
func Chain(base Client, middlewares ...Middleware) Client {
	client := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		client = middlewares[i](client)
	}
	return client
}

// TaskMarker prefixes the line naming the task in every agent prompt, e.g. "### TASK: planning".
// The mock generator and the metrics middleware key off it.
const TaskMarker = "### TASK: "

type agentKey struct{}

// WithAgent labels ctx with the calling agent's name for metrics and logs.
func WithAgent(ctx context.Context, agent string) context.Context {
	return context.WithValue(ctx, agentKey{}, agent)
}

// AgentFrom returns the agent label stored by WithAgent, or "unknown".
func AgentFrom(ctx context.Context) string {
	if agent, ok := ctx.Value(agentKey{}).(string); ok && agent != "" {
		return agent
	}
	return "unknown"
}
