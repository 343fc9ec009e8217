// Package openai implements the generation call against the OpenAI Responses API.
package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"sitebuilder/pkg/genclient/internal/classify"
)

const provider = "openai"

// Client is a raw OpenAI client.
type Client struct {
	client openai.Client
	model  string
	opts   classify.Options
}

// New creates a client for model.
func New(apiKey, model string, opts classify.Options, extra ...option.RequestOption) *Client {
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, extra...)
	return &Client{
		client: openai.NewClient(reqOpts...),
		model:  model,
		opts:   opts,
	}
}

// Generate sends prompt as the input and system as instructions.
func (c *Client) Generate(ctx context.Context, prompt, system string) (string, error) {
	params := responses.ResponseNewParams{
		Model:           c.model,
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(prompt)},
		MaxOutputTokens: openai.Int(int64(c.opts.MaxTokens)),
		Temperature:     openai.Float(float64(c.opts.Temperature)),
	}
	if system != "" {
		params.Instructions = openai.String(system)
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", classify.Status(provider, apiErr.StatusCode, err, apiErr.RawJSON())
		}
		return "", classify.Transport(provider, err)
	}
	if resp == nil {
		return "", classify.Empty(provider)
	}

	text := resp.OutputText()
	if strings.TrimSpace(text) == "" {
		return "", classify.Empty(provider)
	}
	return text, nil
}
