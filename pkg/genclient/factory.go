package genclient

import (
	"context"
	"fmt"
	"time"

	"sitebuilder/pkg/config"
	"sitebuilder/pkg/genclient/internal/anthropic"
	"sitebuilder/pkg/genclient/internal/classify"
	"sitebuilder/pkg/genclient/internal/google"
	"sitebuilder/pkg/genclient/internal/ollama"
	"sitebuilder/pkg/genclient/internal/openai"
	"sitebuilder/pkg/limiter"
	"sitebuilder/pkg/logx"
	"sitebuilder/pkg/metrics"
)

// Option customizes New.
type Option func(*factoryOptions)

type factoryOptions struct {
	recorder metrics.Recorder
	limiter  *limiter.Limiter
	apiKey   string
}

// WithRecorder sets the metrics recorder (default metrics.Nop()).
func WithRecorder(r metrics.Recorder) Option {
	return func(o *factoryOptions) { o.recorder = r }
}

// WithSharedLimiter shares one limiter between several clients.
func WithSharedLimiter(l *limiter.Limiter) Option {
	return func(o *factoryOptions) { o.limiter = l }
}

// WithAPIKey overrides the key normally resolved through config.GetAPIKey.
func WithAPIKey(key string) Option {
	return func(o *factoryOptions) { o.apiKey = key }
}

// New builds the configured client with the standard middleware stack:
//
//	metrics -> retry (if enabled) -> timeout -> limiter -> provider
//
// The implementation is fixed here; agents never branch on mock vs live.
func New(cfg config.GeneratorConfig, opts ...Option) (Client, error) {
	o := factoryOptions{recorder: metrics.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	provider, err := cfg.ResolveProvider()
	if err != nil {
		return nil, fmt.Errorf("resolve generator provider: %w", err)
	}

	base, err := newProvider(provider, cfg, o.apiKey)
	if err != nil {
		return nil, err
	}

	if o.limiter == nil {
		o.limiter = limiter.New(cfg.RateLimit)
	}

	middlewares := []Middleware{WithMetrics(o.recorder, cfg.Model)}
	if cfg.Retry.Enabled {
		middlewares = append(middlewares, WithRetry(PolicyFromConfig(cfg.Retry)))
	}
	middlewares = append(middlewares, WithTimeout(cfg.Timeout))
	if provider != config.ProviderMock {
		middlewares = append(middlewares, WithLimiter(o.limiter, cfg.Model))
	}

	logx.NewLogger("genclient").Info("✅ generator ready: provider=%s model=%s retry=%t",
		provider, cfg.Model, cfg.Retry.Enabled)
	return Chain(base, middlewares...), nil
}

func newProvider(provider string, cfg config.GeneratorConfig, apiKey string) (Client, error) {
	if provider == config.ProviderMock {
		return NewMock(), nil
	}

	if apiKey == "" {
		key, err := config.GetAPIKey(provider)
		if err != nil {
			return nil, fmt.Errorf("generator credentials: %w", err)
		}
		apiKey = key
	}

	opts := classify.Options{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}
	switch provider {
	case config.ProviderAnthropic:
		return anthropic.New(apiKey, cfg.Model, opts), nil
	case config.ProviderOpenAI:
		return openai.New(apiKey, cfg.Model, opts), nil
	case config.ProviderGoogle:
		return google.New(apiKey, cfg.Model, opts), nil
	case config.ProviderOllama:
		client, err := ollama.New(apiKey, cfg.Model, opts, nil)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported generator provider %q", provider)
	}
}

// WithTimeout bounds each call. Zero disables the bound.
func WithTimeout(d time.Duration) Middleware {
	return func(next Client) Client {
		if d <= 0 {
			return next
		}
		return Func(func(ctx context.Context, prompt, system string) (string, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Generate(ctx, prompt, system)
		})
	}
}
