package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"askme/config"

	"go.uber.org/zap"
)

// ErrNoAnswer is returned when the service replied without answer text,
// including well-formed API error replies.
var ErrNoAnswer = errors.New("no answer text in response")

// Roles understood by every provider.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one turn of the conversation sent to the model.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ChunkFunc receives streamed answer text as it arrives.
type ChunkFunc func(chunk string) error

// Provider generates an answer for the conversation ending in a user turn.
// When onChunk is non-nil the provider may stream; the full answer is
// returned either way.
type Provider interface {
	Generate(ctx context.Context, messages []Message, onChunk ChunkFunc) (string, error)
	Name() string
}

// New builds the provider selected by LLM_PROVIDER.
func New(cfg *config.Config, logger *zap.Logger) (Provider, error) {
	httpClient := &http.Client{Timeout: cfg.LLMRequestTimeout}
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return NewGeminiClient(GeminiOptions{
			BaseURL: cfg.GeminiAPIURL,
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			Stream:  cfg.StreamResponses,
		}, httpClient, logger), nil
	case config.ProviderAnthropic:
		return NewAnthropicClient(AnthropicOptions{
			BaseURL:   cfg.AnthropicBaseURL,
			APIKey:    cfg.AnthropicAPIKey,
			Model:     cfg.AnthropicModel,
			MaxTokens: cfg.AnthropicMaxTokens,
			Stream:    cfg.StreamResponses,
		}, httpClient, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}
