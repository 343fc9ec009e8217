// Package google implements the generation call against the Gemini API.
package google

import (
	"context"
	"errors"
	"strings"
	"sync"

	"google.golang.org/genai"

	"sitebuilder/pkg/genclient/internal/classify"
)

const provider = "google"

// Client is a raw Gemini client. The SDK client is created lazily on the first call because
// construction needs a context.
type Client struct {
	apiKey  string
	model   string
	opts    classify.Options
	baseURL string

	once    sync.Once
	client  *genai.Client
	initErr error
}

// New creates a client for model. An optional baseURL replaces the public Gemini endpoint.
func New(apiKey, model string, opts classify.Options, baseURL ...string) *Client {
	c := &Client{apiKey: apiKey, model: model, opts: opts}
	if len(baseURL) > 0 {
		c.baseURL = baseURL[0]
	}
	return c
}

// Generate sends prompt as a single user turn.
func (c *Client) Generate(ctx context.Context, prompt, system string) (string, error) {
	c.once.Do(func() {
		c.client, c.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:      c.apiKey,
			Backend:     genai.BackendGeminiAPI,
			HTTPOptions: genai.HTTPOptions{BaseURL: c.baseURL},
		})
	})
	if c.initErr != nil {
		return "", classify.Transport(provider, c.initErr)
	}

	temperature := c.opts.Temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(c.opts.MaxTokens), //nolint:gosec // bounded by config validation
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", classifyError(err)
	}
	if result == nil {
		return "", classify.Empty(provider)
	}

	text := result.Text()
	if strings.TrimSpace(text) == "" {
		return "", classify.Empty(provider)
	}
	return text, nil
}

func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classify.Status(provider, apiErr.Code, err, apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return classify.Status(provider, apiErrPtr.Code, err, apiErrPtr.Message)
	}
	return classify.Transport(provider, err)
}
