// Streaming chat client.
//
// Opens the chat-completion request through the transport client (which
// owns retry and timeout policy), consumes the SSE response, and sends
// deltas to the caller's channel in the exact order bytes were received.
// A malformed frame is logged and skipped; it never aborts the stream.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/richinex/oraculo/config"
	"github.com/richinex/oraculo/internal/log"
	"github.com/richinex/oraculo/transport"
)

// Request describes one chat-completion call.
type Request struct {
	Messages []ChatMessage
	System   string // system prompt, prepended when non-empty
	Model    string // optional model override
}

// Streamer is the interface consumed by the turn controller.
// The production implementation is StreamClient; tests inject fakes.
type Streamer interface {
	// Stream sends the request with stream=true and forwards each text
	// delta to chunks in arrival order. It returns the accumulated text.
	// chunks is not closed; the caller owns it.
	Stream(ctx context.Context, req Request, chunks chan<- string) (string, error)
}

// StreamClient talks to an OpenAI-compatible chat-completion endpoint.
type StreamClient struct {
	transport *transport.Client
	cfg       config.ChatConfig
	logger    log.Logger
}

// NewStreamClient creates a streaming chat client.
func NewStreamClient(tc *transport.Client, cfg config.ChatConfig, logger log.Logger) *StreamClient {
	return &StreamClient{transport: tc, cfg: cfg, logger: logger}
}

// Stream performs a streaming chat completion.
//
// On upstream failure before any content arrives, the error carries the
// upstream status for the caller to branch on. If the stream breaks after
// partial content was received, the partial text is returned alongside
// the error so the caller can decide whether to keep it.
func (c *StreamClient) Stream(ctx context.Context, req Request, chunks chan<- string) (string, error) {
	body, err := c.marshalRequest(req, true)
	if err != nil {
		return "", err
	}

	resp, err := c.transport.Open(ctx, transport.Request{
		URL:     c.cfg.BaseURL + "/chat/completions",
		Method:  http.MethodPost,
		Headers: c.headers(),
		Body:    body,
		Timeout: c.cfg.Timeout,
	})
	if err != nil {
		return "", fmt.Errorf("open chat stream: %w", err)
	}
	defer resp.Body.Close()

	var accumulated strings.Builder
	scanner := newFrameScanner(resp.Body)

	for {
		select {
		case <-ctx.Done():
			return accumulated.String(), ctx.Err()
		default:
		}

		payload, done, err := scanner.next()
		if done {
			return accumulated.String(), nil
		}
		if err == io.EOF {
			// Stream ended without the sentinel; what arrived stands.
			return accumulated.String(), nil
		}
		if err != nil {
			return accumulated.String(), fmt.Errorf("read chat stream: %w", err)
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			c.logger.Warn("skipping malformed stream frame", "error", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		accumulated.WriteString(content)

		select {
		case chunks <- content:
		case <-ctx.Done():
			return accumulated.String(), ctx.Err()
		}
	}
}

// Complete performs a non-streaming chat completion.
func (c *StreamClient) Complete(ctx context.Context, req Request) (string, error) {
	body, err := c.marshalRequest(req, false)
	if err != nil {
		return "", err
	}

	resp, err := c.transport.Do(ctx, transport.Request{
		URL:     c.cfg.BaseURL + "/chat/completions",
		Method:  http.MethodPost,
		Headers: c.headers(),
		Body:    body,
		Timeout: c.cfg.Timeout,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat response contained no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *StreamClient) marshalRequest(req Request, stream bool) ([]byte, error) {
	messages := req.Messages
	if req.System != "" {
		messages = append([]ChatMessage{SystemMessage(req.System)}, messages...)
	}

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Stream:      stream,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}
	return body, nil
}

func (c *StreamClient) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
		"Content-Type":  "application/json",
	}
}

// Verify StreamClient implements Streamer
var _ Streamer = (*StreamClient)(nil)
