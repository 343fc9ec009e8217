// Package ollama implements the generation call against a local Ollama server.
package ollama

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"sitebuilder/pkg/genclient/internal/classify"
)

const provider = "ollama"

// Client is a raw Ollama client.
type Client struct {
	client *api.Client
	model  string
	opts   classify.Options
}

// New creates a client for model served at hostURL (e.g. "http://localhost:11434").
// An "ollama:" prefix on model is stripped.
func New(hostURL, model string, opts classify.Options, httpClient *http.Client) (*Client, error) {
	parsedURL, err := url.Parse(hostURL)
	if err != nil {
		return nil, classify.Transport(provider, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		client: api.NewClient(parsedURL, httpClient),
		model:  strings.TrimPrefix(model, "ollama:"),
		opts:   opts,
	}, nil
}

// Generate runs one non-streaming chat exchange.
func (c *Client) Generate(ctx context.Context, prompt, system string) (string, error) {
	messages := make([]api.Message, 0, 2)
	if system != "" {
		messages = append(messages, api.Message{Role: "system", Content: system})
	}
	messages = append(messages, api.Message{Role: "user", Content: prompt})

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": c.opts.Temperature,
			"num_predict": c.opts.MaxTokens,
		},
	}

	var text strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return "", classify.Status(provider, statusErr.StatusCode, err, statusErr.ErrorMessage)
		}
		return "", classify.Transport(provider, err)
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", classify.Empty(provider)
	}
	return text.String(), nil
}
