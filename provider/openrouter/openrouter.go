// Package openrouter provides a TextProvider backed by OpenRouter's
// OpenAI-compatible chat completions API.
package openrouter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mhpenta/detailsmatter"
)

const (
	// DefaultBaseURL is OpenRouter's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultModel is used when neither the client nor the call names a model.
	DefaultModel = "moonshotai/kimi-k2:free"

	// DefaultTimeout bounds a single completion call.
	DefaultTimeout = 30 * time.Second
)

// ErrEmptyCompletion is returned when the API answers without content.
var ErrEmptyCompletion = errors.New("empty completion")

// Client implements detailsmatter.TextProvider.
type Client struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var _ detailsmatter.TextProvider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.Named("openrouter")
		}
	}
}

// New creates a client. Empty BaseURL and Model fall back to the defaults.
func New(config *detailsmatter.ProviderConfig, opts ...Option) (*Client, error) {
	if config == nil || config.APIKey == "" {
		return nil, fmt.Errorf("%w: openrouter API key is required", detailsmatter.ErrProviderNotConfigured)
	}

	cfg := openai.DefaultConfig(config.APIKey)
	cfg.BaseURL = DefaultBaseURL
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}

	c := &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  DefaultModel,
		logger: zap.NewNop(),
	}
	if config.Model != "" {
		c.model = config.Model
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Complete sends prompt as a single user message.
func (c *Client) Complete(ctx context.Context, prompt string, opts *detailsmatter.CompleteOptions) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", detailsmatter.ErrEmptyPrompt
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if opts != nil {
		if opts.Model != "" {
			req.Model = opts.Model
		}
		req.MaxTokens = opts.MaxTokens
		req.Temperature = opts.Temperature
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	log := c.logger.With(
		zap.String("model", req.Model),
		zap.Int64("duration_ms", duration.Milliseconds()),
	)

	if err != nil {
		log.Error("completion failed", zap.Error(err))
		return "", convertError(err, req.Model)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		log.Warn("empty completion")
		return "", ErrEmptyCompletion
	}

	log.Debug("completion received",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return resp.Choices[0].Message.Content, nil
}

func convertError(err error, model string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &detailsmatter.RateLimitError{
			RetryAfter: time.Minute,
			LimitType:  "requests",
			Model:      model,
			Err:        err,
		}
	}
	return fmt.Errorf("openrouter completion: %w", err)
}
