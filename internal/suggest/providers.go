package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
)

// Provider names accepted by NewProvider.
const (
	ProviderNone      = "none"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const (
	defaultTemperature = 0.3
	defaultMaxTokens   = 200
)

var (
	// ErrUnknownProvider indicates an unsupported provider name.
	ErrUnknownProvider = errors.New("suggest: unknown provider")
	// ErrMissingAPIKey indicates a model provider configured without a key.
	ErrMissingAPIKey = errors.New("suggest: missing api key")
	// ErrEmptyResponse indicates a completion without text.
	ErrEmptyResponse = errors.New("suggest: empty model response")
)

// NewProvider builds the named provider. An empty model selects the
// provider default.
func NewProvider(name, apiKey, model string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ProviderNone:
		return NopProvider{}, nil
	case ProviderOpenAI:
		if strings.TrimSpace(apiKey) == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingAPIKey, ProviderOpenAI)
		}
		return NewOpenAIProvider(apiKey, model), nil
	case ProviderAnthropic:
		if strings.TrimSpace(apiKey) == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingAPIKey, ProviderAnthropic)
		}
		return NewAnthropicProvider(apiKey, model), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}

// OpenAIProvider asks an OpenAI chat model for suggestions.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider constructs a provider using the official client.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	client := openai.NewClient(openaioption.WithAPIKey(apiKey))
	return NewOpenAIProviderFromClient(&client, model)
}

// NewOpenAIProviderFromClient wraps an existing client.
func NewOpenAIProviderFromClient(client *openai.Client, model string) *OpenAIProvider {
	if strings.TrimSpace(model) == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAIProvider{client: client, model: model}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

// Suggest implements Provider.
func (p *OpenAIProvider) Suggest(ctx context.Context, request Request) ([]Suggestion, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt(request)),
		},
		Model:               p.model,
		Temperature:         openai.Float(defaultTemperature),
		MaxCompletionTokens: openai.Int(defaultMaxTokens),
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyResponse
	}
	return parseSuggestions(resp.Choices[0].Message.Content)
}

// AnthropicProvider asks an Anthropic model for suggestions.
type AnthropicProvider struct {
	client *anthropic.Client
	model  anthropic.Model
}

// NewAnthropicProvider constructs a provider using the official client.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	client := anthropic.NewClient(anthropicoption.WithAPIKey(apiKey))
	return NewAnthropicProviderFromClient(&client, model)
}

// NewAnthropicProviderFromClient wraps an existing client.
func NewAnthropicProviderFromClient(client *anthropic.Client, model string) *AnthropicProvider {
	selected := anthropic.ModelClaude3_5Sonnet20241022
	if strings.TrimSpace(model) != "" {
		selected = anthropic.Model(model)
	}
	return &AnthropicProvider{client: client, model: selected}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return ProviderAnthropic }

// Suggest implements Provider.
func (p *AnthropicProvider) Suggest(ctx context.Context, request Request) ([]Suggestion, error) {
	params := anthropic.MessageNewParams{
		Model: p.model,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(request))),
		},
		MaxTokens:   defaultMaxTokens,
		Temperature: anthropic.Float(defaultTemperature),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
	}
	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, ErrEmptyResponse
	}
	return parseSuggestions(text.String())
}
