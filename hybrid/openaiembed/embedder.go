// Package openaiembed implements hybrid.Embedder with the OpenAI embeddings API
// or any server compatible with it.
package openaiembed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/kitbuilder587/tavily-go/hybrid"
)

const DefaultModel = string(openai.EmbeddingModelTextEmbedding3Small)

var ErrMissingAPIKey = errors.New("openai api key is required")

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Dimensions shortens vectors on models that support it. Zero keeps the default.
	Dimensions int
	MaxRetries int
}

type Embedder struct {
	client     openai.Client
	model      string
	dimensions int
}

var _ hybrid.Embedder = (*Embedder)(nil)

func New(cfg Config) (*Embedder, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []option.RequestOption{option.WithAPIKey(key)}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	return &Embedder{
		client:     openai.NewClient(opts...),
		model:      model,
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed ignores the input type: OpenAI embeddings are symmetric.
func (e *Embedder) Embed(ctx context.Context, texts []string, _ hybrid.InputType) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d for %d texts", hybrid.ErrEmbeddingCount, len(resp.Data), len(texts))
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
