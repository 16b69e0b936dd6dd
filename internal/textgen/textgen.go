// Package textgen is the text-generation collaborator used for email
// classification, field extraction and customer replies.
package textgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealerdesk_backend/platform/ai/moonshot"
	"dealerdesk_backend/platform/config"
)

// ErrNotConfigured is returned when no provider credentials are set.
var ErrNotConfigured = errors.New("text generation is not configured")

// ErrEmptyOutput is returned when the provider answered without text.
var ErrEmptyOutput = errors.New("text generation returned no text")

// Request is one role-tagged prompt.
type Request struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int32
}

// Response is the generated text plus accounting.
type Response struct {
	Text       string
	TokensUsed int
	Model      string
}

// Generator produces text for a prompt.
type Generator interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// New builds the generator selected by AI_PROVIDER, bounded by AI_TIMEOUT.
// Missing credentials yield a generator that always fails with
// ErrNotConfigured so callers take their fallback path.
func New(ctx context.Context, cfg config.AIConfig) (Generator, error) {
	var gen Generator
	switch cfg.GetAIProvider() {
	case "gemini":
		if cfg.GetGeminiAPIKey() == "" {
			return unavailable{}, nil
		}
		g, err := NewGemini(ctx, cfg.GetGeminiAPIKey(), cfg.GetGeminiModel())
		if err != nil {
			return nil, err
		}
		gen = g
	case "moonshot", "":
		if cfg.GetMoonshotAPIKey() == "" {
			return unavailable{}, nil
		}
		gen = NewLLM(moonshot.NewModel(moonshot.Config{
			APIKey:  cfg.GetMoonshotAPIKey(),
			Model:   cfg.GetMoonshotModel(),
			Timeout: cfg.GetAITimeout(),
		}))
	default:
		return nil, fmt.Errorf("unsupported AI_PROVIDER %q", cfg.GetAIProvider())
	}
	return WithTimeout(gen, cfg.GetAITimeout()), nil
}

type unavailable struct{}

func (unavailable) Complete(context.Context, Request) (Response, error) {
	return Response{}, ErrNotConfigured
}

type timeoutGenerator struct {
	next    Generator
	timeout time.Duration
}

// WithTimeout bounds every call to next. A timeout surfaces as a call error.
func WithTimeout(next Generator, timeout time.Duration) Generator {
	if timeout <= 0 {
		return next
	}
	return &timeoutGenerator{next: next, timeout: timeout}
}

func (g *timeoutGenerator) Complete(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.next.Complete(ctx, req)
}
