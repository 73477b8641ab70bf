// Package summarize calls an OpenAI-compatible chat completion API to
// summarize note text.
package summarize

import (
	"context"
	"errors"
	"strings"
	"time"

	"tasknotes/internal/apperr"
	"tasknotes/internal/config"
	"tasknotes/internal/pkg/metrics"

	openai "github.com/sashabaranov/go-openai"
)

const promptPrefix = "Provide a concise summary with key points highlighting important aspects of the following text. " +
	"Do not include any introductory phrases like 'Here is a summary:' or 'Based on the text:'. " +
	"Just provide the summary:\n\n"

const (
	temperature = 0.7
	maxTokens   = 250
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = apperr.Unavailable("summarizer is not configured")

// Summarizer produces a summary for a piece of text.
type Summarizer interface {
	Summarize(ctx context.Context, content string) (string, error)
}

// Client wraps go-openai. The zero API key yields a client that always
// returns ErrNotConfigured.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

func New(cfg config.SummarizerConfig) *Client {
	c := &Client{model: cfg.Model, timeout: cfg.Timeout}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return c
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	c.api = openai.NewClientWithConfig(oc)
	return c
}

// Configured reports whether an API key was provided.
func (c *Client) Configured() bool { return c != nil && c.api != nil }

// Summarize sends one user message and returns the first choice's content.
func (c *Client) Summarize(ctx context.Context, content string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: promptPrefix + content},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	metrics.SummarizeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", apperr.Externalf(err, "completion API returned %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", apperr.Externalf(err, "completion API request failed")
	}
	if len(resp.Choices) == 0 {
		return "", apperr.Externalf(nil, "completion API returned no choices")
	}
	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", apperr.Externalf(nil, "completion API returned an empty summary")
	}
	return summary, nil
}
