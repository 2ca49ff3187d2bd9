package embedding

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/siherrmann/memoria/helper"
)

const defaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures an OpenAI compatible embeddings endpoint.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAIProvider embeds text through the /embeddings endpoint.
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	timeout   time.Duration
	available bool
}

// NewOpenAIProvider creates a provider. Without an api key or a custom base
// URL the provider reports itself unavailable.
func NewOpenAIProvider(config OpenAIConfig) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.Model == "" {
		config.Model = defaultOpenAIModel
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     config.Model,
		timeout:   config.Timeout,
		available: config.APIKey != "" || config.BaseURL != "",
	}
}

func (p *OpenAIProvider) Available(ctx context.Context) bool {
	return p.available
}

// Embed requests one embedding. Transport and API errors are reported as
// helper.ErrUnavailable.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	if !p.available {
		return nil, helper.Errorf(helper.ErrUnavailable, "openai embeddings are not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, helper.Errorf(helper.ErrUnavailable, "create embeddings: %v", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, helper.Errorf(helper.ErrUnavailable, "no embedding returned")
	}

	return &Embedding{Vector: resp.Data[0].Embedding, Model: p.model}, nil
}
