package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// ModelFactory builds a langchaingo model for one request.
type ModelFactory func(ctx context.Context, cfg Config) (llms.Model, error)

// LangChainClient sends prompts through a langchaingo model.
type LangChainClient struct {
	newModel ModelFactory
}

// NewLangChainClient creates a client for the given provider.
func NewLangChainClient(provider string) (*LangChainClient, error) {
	switch provider {
	case ProviderGemini:
		return &LangChainClient{newModel: newGoogleAIModel}, nil
	case ProviderOpenAI, ProviderLangChainOpenAI:
		return &LangChainClient{newModel: newOpenAIModel}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// NewLangChainClientWithFactory creates a client around a custom model factory.
func NewLangChainClientWithFactory(factory ModelFactory) *LangChainClient {
	return &LangChainClient{newModel: factory}
}

func (c *LangChainClient) Request(ctx context.Context, prompt Prompt, cfg Config) (string, error) {
	if cfg.APIKey == "" {
		return "", ErrNoAPIKey
	}

	llm, err := c.newModel(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("%w: create model: %v", ErrAPIRequest, err)
	}

	var messages []llms.MessageContent
	if prompt.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, prompt.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt.User))

	opts := []llms.CallOption{llms.WithTemperature(cfg.Temperature)}
	if cfg.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(cfg.MaxTokens))
	}

	resp, err := llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAPIRequest, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	return resp.Choices[0].Content, nil
}

func newGoogleAIModel(ctx context.Context, cfg Config) (llms.Model, error) {
	opts := []googleai.Option{googleai.WithAPIKey(cfg.APIKey)}
	if cfg.Model != "" {
		opts = append(opts, googleai.WithDefaultModel(cfg.Model))
	}
	return googleai.New(ctx, opts...)
}

func newOpenAIModel(_ context.Context, cfg Config) (llms.Model, error) {
	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if base := baseURL(cfg.Endpoint); base != "" {
		opts = append(opts, openai.WithBaseURL(base))
	}
	return openai.New(opts...)
}

// baseURL strips the chat completions route from a full endpoint URL.
func baseURL(endpoint string) string {
	return strings.TrimSuffix(strings.TrimRight(endpoint, "/"), "/chat/completions")
}
