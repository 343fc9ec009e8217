// Package anthropic implements the generation call against the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"sitebuilder/pkg/genclient/internal/classify"
)

const provider = "anthropic"

// Client is a raw Anthropic client; middleware is applied by the caller.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
	opts   classify.Options
}

// New creates a client for model.
func New(apiKey, model string, opts classify.Options, extra ...option.RequestOption) *Client {
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, extra...)
	return &Client{
		client: anthropic.NewClient(reqOpts...),
		model:  anthropic.Model(model),
		opts:   opts,
	}
}

// Generate sends one user turn and returns the concatenated text blocks.
func (c *Client) Generate(ctx context.Context, prompt, system string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(c.opts.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(float64(c.opts.Temperature)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system, Type: "text"}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", classify.Status(provider, apiErr.StatusCode, err, apiErr.RawJSON())
		}
		return "", classify.Transport(provider, err)
	}
	if resp == nil {
		return "", classify.Empty(provider)
	}

	var text strings.Builder
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			text.WriteString(resp.Content[i].AsText().Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", classify.Empty(provider)
	}
	return text.String(), nil
}
