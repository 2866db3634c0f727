// Package suggest proposes tags for a journal entry through a language model.
//
// Suggestions are advisory. Every failure along the way (short input, rate
// limiting, provider errors, unparseable output) yields an empty result.
package suggest

import (
	"context"
	"strings"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/journal"
	"go.uber.org/zap"
)

const (
	// MaxSuggestions caps the number of suggestions returned for a request.
	MaxSuggestions = 5
	// MinTextLength is the minimum trimmed length of title plus content.
	MinTextLength = 10
	// DefaultConfidence applies when a provider omits a confidence score.
	DefaultConfidence = 0.5
)

// Request describes the entry being tagged.
type Request struct {
	Title        string            `json:"title"`
	Content      string            `json:"content"`
	EntryType    journal.EntryType `json:"entry_type"`
	ExistingTags []string          `json:"existing_tags"`
	AllTags      []string          `json:"all_tags"`
}

// Text returns the combined title and content used for the length check.
func (r Request) Text() string {
	return strings.TrimSpace(r.Title + " " + r.Content)
}

// Suggestion is a proposed tag name with a confidence in [0, 1].
type Suggestion struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Provider produces raw suggestions for a request.
type Provider interface {
	Name() string
	Suggest(ctx context.Context, request Request) ([]Suggestion, error)
}

// ClientConfig wires a Client.
type ClientConfig struct {
	Provider Provider
	Limiter  *RateLimiter
	Logger   *zap.Logger
}

// Client validates requests, enforces the rate limit and normalizes provider output.
type Client struct {
	provider Provider
	limiter  *RateLimiter
	logger   *zap.Logger
}

// NewClient constructs a Client. A nil provider suggests nothing; a nil
// limiter applies the default window.
func NewClient(cfg ClientConfig) *Client {
	provider := cfg.Provider
	if provider == nil {
		provider = NopProvider{}
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewRateLimiter(DefaultRateLimit, DefaultRateWindow)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{provider: provider, limiter: limiter, logger: logger}
}

// Suggest returns normalized suggestions for the request. It reports an
// error only when ctx is done; every other failure yields an empty slice.
func (c *Client) Suggest(ctx context.Context, request Request) ([]Suggestion, error) {
	if len([]rune(request.Text())) < MinTextLength {
		return []Suggestion{}, nil
	}
	if !c.limiter.Allow() {
		c.logger.Warn("tag suggestion rate limited", zap.String("provider", c.provider.Name()))
		return []Suggestion{}, nil
	}

	raw, err := c.provider.Suggest(ctx, request)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return []Suggestion{}, ctxErr
	}
	if err != nil {
		c.logger.Warn("tag suggestion failed",
			zap.String("provider", c.provider.Name()),
			zap.Error(err))
		return []Suggestion{}, nil
	}
	return Normalize(raw, request.ExistingTags), nil
}

// Normalize trims and lower-cases names, clamps confidence, drops empty names,
// duplicates and tags already on the entry, and caps the result.
func Normalize(raw []Suggestion, existing []string) []Suggestion {
	if len(raw) > MaxSuggestions {
		raw = raw[:MaxSuggestions]
	}
	skip := make(map[string]struct{}, len(existing)+len(raw))
	for _, name := range existing {
		skip[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	result := make([]Suggestion, 0, len(raw))
	for _, suggestion := range raw {
		name := strings.ToLower(strings.TrimSpace(suggestion.Name))
		if name == "" {
			continue
		}
		if _, ok := skip[name]; ok {
			continue
		}
		skip[name] = struct{}{}
		result = append(result, Suggestion{Name: name, Confidence: clamp(suggestion.Confidence)})
	}
	return result
}

func clamp(confidence float64) float64 {
	switch {
	case confidence < 0:
		return 0
	case confidence > 1:
		return 1
	default:
		return confidence
	}
}

// NopProvider never suggests anything.
type NopProvider struct{}

// Name implements Provider.
func (NopProvider) Name() string { return ProviderNone }

// Suggest implements Provider.
func (NopProvider) Suggest(context.Context, Request) ([]Suggestion, error) {
	return nil, nil
}
