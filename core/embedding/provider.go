// Package embedding turns text into vectors for semantic search.
package embedding

import (
	"context"
	"os"
	"strings"

	"github.com/siherrmann/memoria/helper"
)

// EmbedFunc is a function that generates embeddings for text
type EmbedFunc func(text string) ([]float32, error)

// Embedding is a vector together with the model that produced it.
type Embedding struct {
	Vector []float32 `json:"vector"`
	Model  string    `json:"model"`
}

// Provider produces query and entry embeddings.
type Provider interface {
	// Available reports whether Embed can currently be called.
	Available(ctx context.Context) bool
	Embed(ctx context.Context, text string) (*Embedding, error)
}

type funcProvider struct {
	model string
	fn    EmbedFunc
}

// FromFunc adapts an EmbedFunc to a Provider. A nil function is never available.
func FromFunc(model string, fn EmbedFunc) Provider {
	return &funcProvider{model: model, fn: fn}
}

func (p *funcProvider) Available(ctx context.Context) bool {
	return p.fn != nil
}

func (p *funcProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	if p.fn == nil {
		return nil, helper.Errorf(helper.ErrUnavailable, "no embedding function configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vector, err := p.fn(text)
	if err != nil {
		return nil, helper.NewError("embed", err)
	}
	if len(vector) == 0 {
		return nil, helper.Errorf(helper.ErrUnavailable, "empty embedding returned")
	}

	return &Embedding{Vector: vector, Model: p.model}, nil
}

// Disabled returns a provider that is never available.
func Disabled() Provider {
	return FromFunc("", nil)
}

// NewFromEnv creates a provider from environment variables.
// MEMORIA_EMBED_PROVIDER: "hugot" | "openai" | "" (disabled)
// MEMORIA_EMBED_MODEL: model name
// MEMORIA_EMBED_URL: base URL of an OpenAI compatible API
// OPENAI_API_KEY: key for the openai provider
func NewFromEnv() (Provider, error) {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("MEMORIA_EMBED_PROVIDER")))
	model := os.Getenv("MEMORIA_EMBED_MODEL")

	switch provider {
	case "":
		return Disabled(), nil
	case "hugot":
		if model == "" {
			model = DefaultModelName
		}
		embed, err := NewHugotEmbedder(model)
		if err != nil {
			return nil, err
		}
		return FromFunc(model, embed), nil
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			BaseURL: os.Getenv("MEMORIA_EMBED_URL"),
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   model,
		}), nil
	default:
		return nil, helper.Errorf(helper.ErrInvalidInput, "unknown embedding provider %q", provider)
	}
}
