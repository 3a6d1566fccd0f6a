// Package chat wraps the chat completion API behind a single Reply
// call. Validation failures and service errors surface as fixed
// user-facing strings, never as raw API errors; only cancellation is
// reported as an error to the caller.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
)

// Fixed user-facing replies. The exact wording is part of the contract
// with the clients, so they live here rather than in the transports.
const (
	MsgDidntCatch      = "I didn't catch that. Could you please repeat?"
	MsgTooLongFmt      = "Your message is too long. Please keep it under %d characters."
	MsgTooManyRequests = "I'm getting too many requests. Please try again later."
	MsgServiceTrouble  = "I'm having trouble connecting to the service. Please try again later."
	MsgGenericError    = "I'm sorry, I encountered an error processing your request. Please try again later."
)

// Config holds generation settings.
type Config struct {
	Model        string
	SystemPrompt string
	MaxTokens    int64
	Temperature  float64

	MaxInputLen int

	MaxRetries int
	RetryDelay time.Duration
	MaxDelay   time.Duration

	Logger *slog.Logger
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		Model:        "gpt-4o-mini",
		SystemPrompt: "You are a helpful assistant.",
		MaxTokens:    200,
		Temperature:  0.8,
		MaxInputLen:  1000,
		MaxRetries:   3,
		RetryDelay:   time.Second,
		MaxDelay:     10 * time.Second,
		Logger:       slog.Default(),
	}
}

// Option is a functional option for New.
type Option func(*Config)

// WithModel sets the completion model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithSystemPrompt sets the persona instruction.
func WithSystemPrompt(prompt string) Option {
	return func(c *Config) { c.SystemPrompt = prompt }
}

// WithMaxTokens bounds the reply length.
func WithMaxTokens(n int64) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithMaxInputLen bounds accepted input length.
func WithMaxInputLen(n int) Option {
	return func(c *Config) { c.MaxInputLen = n }
}

// WithRetry configures the rate-limit retry policy.
func WithRetry(maxRetries int, delay, maxDelay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
		c.MaxDelay = maxDelay
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Client generates replies for user utterances.
type Client struct {
	api    openai.Client
	config Config
	logger *slog.Logger
}

// New creates a generation client on top of an API client. Disable the
// SDK's own retries when constructing the API client; Reply applies the
// backoff policy itself.
func New(api openai.Client, opts ...Option) *Client {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{
		api:    api,
		config: cfg,
		logger: cfg.Logger.With("component", "chat"),
	}
}

// Validate checks an utterance before any API call is made. It returns
// the trimmed text, or false and the fixed user-facing rejection.
func (c *Client) Validate(text string) (string, string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", MsgDidntCatch, false
	}
	if len(trimmed) > c.config.MaxInputLen {
		return "", fmt.Sprintf(MsgTooLongFmt, c.config.MaxInputLen), false
	}
	return trimmed, "", true
}

// Reply generates a response for the utterance. Rate-limit responses
// are retried with exponential backoff; every other failure maps to a
// fixed apology. The returned error is non-nil only when ctx ends.
func (c *Client) Reply(ctx context.Context, text string) (string, error) {
	trimmed, rejection, ok := c.Validate(text)
	if !ok {
		return rejection, nil
	}

	delay := c.config.RetryDelay
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		reply, err := c.complete(ctx, trimmed)
		if err == nil {
			return reply, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		var apierr *openai.Error
		if errors.As(err, &apierr) {
			if apierr.StatusCode != http.StatusTooManyRequests {
				c.logger.Error("completion failed", "status", apierr.StatusCode, "err", err)
				return MsgServiceTrouble, nil
			}
			if attempt == c.config.MaxRetries-1 {
				c.logger.Warn("rate limit retries exhausted", "attempts", c.config.MaxRetries)
				return MsgTooManyRequests, nil
			}
			c.logger.Warn("rate limited, backing off",
				"attempt", attempt+1,
				"delay", delay,
			)
			if err := c.wait(ctx, delay); err != nil {
				return "", err
			}
			delay = nextDelay(delay, c.config.MaxDelay)
			continue
		}

		// Not an API error: count it against the attempt budget.
		c.logger.Error("completion error", "attempt", attempt+1, "err", err)
		if attempt == c.config.MaxRetries-1 {
			return MsgGenericError, nil
		}
	}

	return MsgGenericError, nil
}

// complete performs one completion call.
func (c *Client) complete(ctx context.Context, text string) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.config.SystemPrompt),
			openai.UserMessage(text),
		},
		Model:       openai.ChatModel(c.config.Model),
		MaxTokens:   openai.Int(c.config.MaxTokens),
		Temperature: openai.Float(c.config.Temperature),
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("empty message content")
	}
	return reply, nil
}

// wait sleeps for d or until ctx ends.
func (c *Client) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// nextDelay doubles the backoff delay, capped at max.
func nextDelay(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}
