// Package embed turns company descriptions into stored vectors.
package embed

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/sells-group/company-intel/internal/config"
)

// Embedder produces vectors for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint through
// langchaingo.
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
	model    string
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder from config. Local endpoints that
// need no key get the placeholder token "none".
func NewOpenAIEmbedder(cfg config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	token := cfg.Token
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, eris.Wrap(err, "embed: create openai client")
	}

	e, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, eris.Wrap(err, "embed: create embedder")
	}
	return &OpenAIEmbedder{embedder: e, model: cfg.Model}, nil
}

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string { return e.model }

// Embed embeds a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, eris.Wrap(err, "embed: embed query")
	}
	if len(v) == 0 {
		return nil, eris.New("embed: empty embedding")
	}
	return v, nil
}

// EmbedBatch embeds texts in one request per langchaingo batch.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, eris.Wrapf(err, "embed: embed %d documents", len(texts))
	}
	if len(vs) != len(texts) {
		return nil, eris.Errorf("embed: got %d embeddings for %d texts", len(vs), len(texts))
	}
	return vs, nil
}
