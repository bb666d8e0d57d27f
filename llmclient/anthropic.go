package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	apperrors "askme/errors"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// AnthropicOptions configures the Messages API client.
type AnthropicOptions struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Stream    bool
}

// AnthropicClient is a thin wrapper around the official anthropic-sdk-go client.
type AnthropicClient struct {
	opts   AnthropicOptions
	client anthropic.Client
	logger *zap.Logger
}

func NewAnthropicClient(opts AnthropicOptions, httpClient *http.Client, logger *zap.Logger) *AnthropicClient {
	clientOptions := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(opts.APIKey)),
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		clientOptions = append(clientOptions, option.WithHTTPClient(httpClient))
	}
	if baseURL := strings.TrimRight(opts.BaseURL, "/"); baseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(baseURL))
	}
	return &AnthropicClient{
		opts:   opts,
		client: anthropic.NewClient(clientOptions...),
		logger: logger,
	}
}

func (c *AnthropicClient) Name() string { return "anthropic" }

func (c *AnthropicClient) params(messages []Message) anthropic.MessageNewParams {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Text)
		if m.Role == RoleModel {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return anthropic.MessageNewParams{
		Model:     anthropic.Model(c.opts.Model),
		MaxTokens: int64(c.opts.MaxTokens),
		Messages:  out,
	}
}

// Generate sends the conversation through the Messages API.
func (c *AnthropicClient) Generate(ctx context.Context, messages []Message, onChunk ChunkFunc) (string, error) {
	if len(messages) == 0 {
		return "", apperrors.WrapError(apperrors.ErrInvalidInput, "no messages")
	}
	params := c.params(messages)
	if c.opts.Stream && onChunk != nil {
		return c.stream(ctx, params, onChunk)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", wrapAnthropicError(err)
	}
	var answer strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			answer.WriteString(text.Text)
		}
	}
	if answer.Len() == 0 {
		return "", ErrNoAnswer
	}
	return answer.String(), nil
}

func (c *AnthropicClient) stream(ctx context.Context, params anthropic.MessageNewParams, onChunk ChunkFunc) (string, error) {
	stream := c.client.Messages.NewStreaming(ctx, params)
	defer func() {
		_ = stream.Close()
	}()

	var answer strings.Builder
	forward := true
	for stream.Next() {
		event := stream.Current()
		delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		text, ok := delta.Delta.AsAny().(anthropic.TextDelta)
		if !ok || text.Text == "" {
			continue
		}
		answer.WriteString(text.Text)
		if forward {
			if err := onChunk(text.Text); err != nil {
				c.logger.Debug("Stopped forwarding stream chunks", zap.Error(err))
				forward = false
			}
		}
	}
	if err := stream.Err(); err != nil {
		return answer.String(), wrapAnthropicError(err)
	}
	if answer.Len() == 0 {
		return "", ErrNoAnswer
	}
	return answer.String(), nil
}

func wrapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: anthropic status %d: %v", ErrNoAnswer, apiErr.StatusCode, err)
	}
	return fmt.Errorf("%w: %v", apperrors.ErrLLMCommunication, err)
}
