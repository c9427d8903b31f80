// Package vision provides the image description collaborator and the
// client-side image optimizer applied before any image leaves the process.
package vision

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/richinex/oraculo/config"
)

// Describer produces a text description of an encoded image.
type Describer interface {
	// Describe sends the image (as a data URI) with the given prompt and
	// returns the model's description.
	Describe(ctx context.Context, dataURI, prompt string) (string, error)
}

// Client implements Describer against a multimodal chat-completion endpoint.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// NewClient creates a vision client from configuration.
func NewClient(cfg config.VisionConfig) *Client {
	apiConfig := openai.DefaultConfig(cfg.APIKey)
	apiConfig.BaseURL = cfg.BaseURL

	return &Client{
		api:     openai.NewClientWithConfig(apiConfig),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

// Describe sends one image description request, bounded by the
// configured vision timeout.
func (c *Client) Describe(ctx context.Context, dataURI, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURI},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("describe image: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("describe image: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Verify Client implements Describer
var _ Describer = (*Client)(nil)
