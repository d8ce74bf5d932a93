// Package hybrid combines a local vector store with Tavily web search: both
// sides are queried, merged, ranked, and web results can be written back to
// the store for later queries.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kitbuilder587/tavily-go/tavily"
)

const DefaultMaxResults = 10

var (
	ErrEmptyQuery      = errors.New("empty query")
	ErrEmbeddingCount  = errors.New("embedder returned wrong number of vectors")
	ErrInvalidStore    = errors.New("invalid vector store")
	ErrMissingSearcher = errors.New("searcher is required")
	ErrMissingStore    = errors.New("store is required")
	ErrMissingEmbedder = errors.New("embedder is required")
)

type Origin string

const (
	OriginLocal   Origin = "local"
	OriginForeign Origin = "foreign"
)

// Document is one ranked hit, local or from the web.
type Document struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Origin  Origin  `json:"origin"`
}

// StoredDocument is what gets written to the store.
type StoredDocument struct {
	Content   string
	URL       string
	Title     string
	Embedding []float64
}

// ForeignResult is a web result together with its document embedding,
// handed to SaveTransform before saving.
type ForeignResult struct {
	tavily.SearchResult
	Embedding []float64
}

// SaveTransform rewrites a web result before it is saved. Returning false drops it.
type SaveTransform func(ForeignResult) (StoredDocument, bool)

type InputType string

const (
	InputSearchQuery    InputType = "search_query"
	InputSearchDocument InputType = "search_document"
)

// Embedder turns texts into vectors, one per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string, input InputType) ([][]float64, error)
}

type EmbedFunc func(ctx context.Context, texts []string, input InputType) ([][]float64, error)

func (f EmbedFunc) Embed(ctx context.Context, texts []string, input InputType) ([][]float64, error) {
	return f(ctx, texts, input)
}

// Ranker orders the merged documents and returns at most topN of them.
type Ranker interface {
	Rank(ctx context.Context, query string, docs []Document, topN int) ([]Document, error)
}

type RankFunc func(ctx context.Context, query string, docs []Document, topN int) ([]Document, error)

func (f RankFunc) Rank(ctx context.Context, query string, docs []Document, topN int) ([]Document, error) {
	return f(ctx, query, docs, topN)
}

// ScoreRanker sorts by score, highest first. Ties keep their input order.
type ScoreRanker struct{}

func (ScoreRanker) Rank(_ context.Context, _ string, docs []Document, topN int) ([]Document, error) {
	out := append([]Document(nil), docs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if topN >= 0 && len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

// Store is a vector collection with cosine similarity search.
type Store interface {
	// Validate checks that the collection exists and has the expected shape.
	Validate(ctx context.Context) error
	// Search returns up to limit documents by cosine similarity, origin local.
	Search(ctx context.Context, embedding []float64, limit int) ([]Document, error)
	// Insert writes all docs in one atomic operation.
	Insert(ctx context.Context, docs []StoredDocument) error
}

type Client struct {
	searcher tavily.Searcher
	store    Store
	embedder Embedder
	ranker   Ranker
	logger   *zap.Logger
}

type Option func(*Client)

func WithRanker(r Ranker) Option {
	return func(c *Client) { c.ranker = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New validates the store before returning the client.
func New(ctx context.Context, searcher tavily.Searcher, store Store, embedder Embedder, opts ...Option) (*Client, error) {
	switch {
	case searcher == nil:
		return nil, ErrMissingSearcher
	case store == nil:
		return nil, ErrMissingStore
	case embedder == nil:
		return nil, ErrMissingEmbedder
	}

	c := &Client{
		searcher: searcher,
		store:    store,
		embedder: embedder,
		ranker:   ScoreRanker{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := store.Validate(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStore, err)
	}
	return c, nil
}

type SearchOptions struct {
	// MaxResults defaults to DefaultMaxResults.
	MaxResults int
	// MaxLocal and MaxForeign default to MaxResults. Zero skips that side.
	MaxLocal   *int
	MaxForeign *int

	// SaveForeign writes web results back to the store.
	SaveForeign bool
	// Transform implies SaveForeign.
	Transform SaveTransform

	// Request carries extra web search parameters. Query and MaxResults are overwritten.
	Request tavily.SearchRequest
}

// Limit returns a pointer to n, for MaxLocal and MaxForeign.
func Limit(n int) *int {
	return &n
}

func (o SearchOptions) limits() (total, local, foreign int) {
	total = o.MaxResults
	if total <= 0 {
		total = DefaultMaxResults
	}
	local, foreign = total, total
	if o.MaxLocal != nil {
		local = *o.MaxLocal
	}
	if o.MaxForeign != nil {
		foreign = *o.MaxForeign
	}
	return total, local, foreign
}

// Search queries the store and the web, ranks the union and returns at most
// MaxResults documents. Web results are saved after ranking when asked to.
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) ([]Document, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	maxResults, maxLocal, maxForeign := opts.limits()

	queryVecs, err := c.embedder.Embed(ctx, []string{query}, InputSearchQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(queryVecs) != 1 {
		return nil, fmt.Errorf("%w: got %d for 1 query", ErrEmbeddingCount, len(queryVecs))
	}

	var (
		local   []Document
		foreign []tavily.SearchResult
	)
	g, gctx := errgroup.WithContext(ctx)
	if maxLocal > 0 {
		g.Go(func() error {
			docs, err := c.store.Search(gctx, queryVecs[0], maxLocal)
			if err != nil {
				return fmt.Errorf("local search: %w", err)
			}
			local = docs
			return nil
		})
	}
	if maxForeign > 0 {
		g.Go(func() error {
			req := opts.Request
			req.Query = query
			req.MaxResults = maxForeign
			resp, err := c.searcher.Search(gctx, req)
			if err != nil {
				return fmt.Errorf("foreign search: %w", err)
			}
			foreign = resp.Results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	combined := make([]Document, 0, len(local)+len(foreign))
	for _, d := range local {
		d.Origin = OriginLocal
		combined = append(combined, d)
	}
	for _, r := range foreign {
		combined = append(combined, Document{Content: r.Content, Score: r.Score, Origin: OriginForeign})
	}

	c.logger.Debug("hybrid search",
		zap.Int("local", len(local)),
		zap.Int("foreign", len(foreign)),
	)

	if len(combined) == 0 {
		return []Document{}, nil
	}

	ranked, err := c.ranker.Rank(ctx, query, combined, maxResults)
	if err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}
	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}

	if maxForeign > 0 && (opts.SaveForeign || opts.Transform != nil) && len(foreign) > 0 {
		if err := c.saveForeign(ctx, foreign, opts.Transform); err != nil {
			return nil, err
		}
	}

	return ranked, nil
}

func (c *Client) saveForeign(ctx context.Context, results []tavily.SearchResult, transform SaveTransform) error {
	contents := make([]string, len(results))
	for i, r := range results {
		contents[i] = r.Content
	}

	vecs, err := c.embedder.Embed(ctx, contents, InputSearchDocument)
	if err != nil {
		return fmt.Errorf("embed foreign results: %w", err)
	}
	if len(vecs) != len(results) {
		return fmt.Errorf("%w: got %d for %d documents", ErrEmbeddingCount, len(vecs), len(results))
	}

	docs := make([]StoredDocument, 0, len(results))
	for i, r := range results {
		fr := ForeignResult{SearchResult: r, Embedding: vecs[i]}
		if transform == nil {
			docs = append(docs, StoredDocument{
				Content:   r.Content,
				URL:       r.URL,
				Title:     r.Title,
				Embedding: vecs[i],
			})
			continue
		}
		if doc, ok := transform(fr); ok {
			docs = append(docs, doc)
		}
	}

	if len(docs) == 0 {
		return nil
	}
	if err := c.store.Insert(ctx, docs); err != nil {
		return fmt.Errorf("save foreign results: %w", err)
	}

	c.logger.Info("saved foreign results", zap.Int("count", len(docs)))
	return nil
}
