package ai

import "context"

// Provider names.
const (
	ProviderOpenAI          = "openai"
	ProviderGemini          = "gemini"
	ProviderLangChainOpenAI = "openai-langchain"
)

// Config carries per-request provider settings.
type Config struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Prompt is a system instruction plus the user message.
type Prompt struct {
	System string
	User   string
}

// Gateway sends one prompt to a text model and returns its raw reply.
type Gateway interface {
	Request(ctx context.Context, prompt Prompt, cfg Config) (string, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, prompt Prompt, cfg Config) (string, error)

func (f GatewayFunc) Request(ctx context.Context, prompt Prompt, cfg Config) (string, error) {
	return f(ctx, prompt, cfg)
}

// apiRequest represents an OpenAI-compatible chat completion request body.
type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// apiResponse represents an OpenAI-compatible chat completion response body.
type apiResponse struct {
	Choices []apiChoice `json:"choices"`
}

type apiChoice struct {
	Message      apiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

// apiErrorBody is the error envelope most providers return on non-2xx.
type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
