// Package llm drives the external language-model endpoint that produces
// question content.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrUnavailable is returned once the transport retry budget is
// exhausted. The caller may retry the whole start-test action.
var ErrUnavailable = errors.New("generation service unavailable")

const defaultBackoff = 500 * time.Millisecond

// Config holds the generation endpoint settings.
type Config struct {
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration // per-attempt request timeout
	Attempts int           // hard ceiling on transport attempts
}

// Client wraps an OpenAI-compatible API client with a per-call timeout
// and a bounded retry loop. The client is stateless across calls and
// safe for concurrent use.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	retries int
	backoff time.Duration
}

// New creates a new generation client.
func New(cfg Config) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		retries: attempts,
		backoff: defaultBackoff,
	}
}

// Generate sends the prompt to the model endpoint and returns the raw
// response text. Connection failures, timeouts and empty responses are
// retried up to the configured attempt ceiling with exponential backoff;
// after that the call fails with ErrUnavailable.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			wait := c.backoff << (attempt - 1)
			slog.Debug("retrying generation call", "attempt", attempt+1, "wait", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
			}
		}

		raw, err := c.generateOnce(ctx, prompt)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		slog.Warn("generation call failed", "attempt", attempt+1, "error", err)
	}
	return "", fmt.Errorf("%w after %d attempts: %w", ErrUnavailable, c.retries, lastErr)
}

func (c *Client) generateOnce(ctx context.Context, prompt string) (string, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}
	raw := resp.Choices[0].Message.Content
	if raw == "" {
		return "", fmt.Errorf("LLM returned empty content")
	}
	slog.Debug("LLM response", "length", len(raw))
	return raw, nil
}

// Ping checks that the endpoint is reachable. Used at startup so a
// misconfigured URL fails fast instead of on the first student request.
func (c *Client) Ping(ctx context.Context) error {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if _, err := c.api.ListModels(callCtx); err != nil {
		return fmt.Errorf("LLM endpoint unreachable: %w", err)
	}
	return nil
}
