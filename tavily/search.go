package tavily

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kitbuilder587/tavily-go/tokens"
)

// Searcher is the part of Client that hybrid search and tests depend on.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

var _ Searcher = (*Client)(nil)

type SearchRequest struct {
	Query          string
	SearchDepth    SearchDepth
	Topic          Topic
	TimeRange      TimeRange
	Days           int
	MaxResults     int
	IncludeDomains []string
	ExcludeDomains []string

	IncludeAnswer            AnswerMode
	IncludeRawContent        bool
	IncludeImages            bool
	IncludeImageDescriptions bool
	IncludeFavicon           bool
	AutoParameters           bool
	Country                  string
	ChunksPerSource          int

	Timeout time.Duration
	// Extra is merged into the request body as is.
	Extra map[string]any
}

type SearchResponse struct {
	Query             string         `json:"query"`
	Answer            string         `json:"answer,omitempty"`
	FollowUpQuestions []string       `json:"follow_up_questions,omitempty"`
	Images            []Image        `json:"images,omitempty"`
	Results           []SearchResult `json:"results"`
	AutoParameters    map[string]any `json:"auto_parameters,omitempty"`
	ResponseTime      Seconds        `json:"response_time"`
	Usage             *Usage         `json:"usage,omitempty"`
	RequestID         string         `json:"request_id,omitempty"`
}

type SearchResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	RawContent    string  `json:"raw_content,omitempty"`
	PublishedDate string  `json:"published_date,omitempty"`
	Favicon       string  `json:"favicon,omitempty"`
}

type searchBody struct {
	Query                    string      `json:"query"`
	SearchDepth              SearchDepth `json:"search_depth"`
	Topic                    Topic       `json:"topic"`
	TimeRange                TimeRange   `json:"time_range,omitempty"`
	Days                     int         `json:"days"`
	MaxResults               int         `json:"max_results"`
	IncludeDomains           []string    `json:"include_domains,omitempty"`
	ExcludeDomains           []string    `json:"exclude_domains,omitempty"`
	IncludeAnswer            AnswerMode  `json:"include_answer"`
	IncludeRawContent        bool        `json:"include_raw_content"`
	IncludeImages            bool        `json:"include_images"`
	IncludeImageDescriptions bool        `json:"include_image_descriptions,omitempty"`
	IncludeFavicon           bool        `json:"include_favicon,omitempty"`
	AutoParameters           bool        `json:"auto_parameters,omitempty"`
	Country                  string      `json:"country,omitempty"`
	ChunksPerSource          int         `json:"chunks_per_source,omitempty"`
}

const (
	defaultDays       = 7
	defaultMaxResults = 5
)

func (r SearchRequest) body() searchBody {
	b := searchBody{
		Query:                    r.Query,
		SearchDepth:              r.SearchDepth,
		Topic:                    r.Topic,
		TimeRange:                r.TimeRange,
		Days:                     r.Days,
		MaxResults:               r.MaxResults,
		IncludeDomains:           r.IncludeDomains,
		ExcludeDomains:           r.ExcludeDomains,
		IncludeAnswer:            r.IncludeAnswer,
		IncludeRawContent:        r.IncludeRawContent,
		IncludeImages:            r.IncludeImages,
		IncludeImageDescriptions: r.IncludeImageDescriptions,
		IncludeFavicon:           r.IncludeFavicon,
		AutoParameters:           r.AutoParameters,
		Country:                  r.Country,
		ChunksPerSource:          r.ChunksPerSource,
	}
	if b.SearchDepth == "" {
		b.SearchDepth = SearchDepthBasic
	}
	if b.Topic == "" {
		b.Topic = TopicGeneral
	}
	if b.Days <= 0 {
		b.Days = defaultDays
	}
	if b.MaxResults <= 0 {
		b.MaxResults = defaultMaxResults
	}
	return b
}

// Search runs a web search. Results are never nil on success.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}

	var resp SearchResponse
	err := c.do(ctx, request{
		method:    http.MethodPost,
		endpoint:  "/search",
		body:      req.body(),
		extra:     req.Extra,
		timeout:   req.Timeout,
		cacheable: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Results == nil {
		resp.Results = []SearchResult{}
	}

	c.logger.Sugar().Debugw("search completed",
		"query_len", len(req.Query),
		"results", len(resp.Results),
		"response_time", resp.ResponseTime,
	)
	return &resp, nil
}

// ContextSource is one record of the search context.
type ContextSource struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

type SearchContextRequest struct {
	SearchRequest
	// MaxTokens is the token budget for the packed records. Zero means
	// tokens.DefaultMaxTokens; pass a negative value for an empty budget.
	MaxTokens int
}

// GetSearchContext searches and returns the longest prefix of {url, content}
// records that fits MaxTokens, serialized as Python-style JSON (see tokens.EncodeJSON).
func (c *Client) GetSearchContext(ctx context.Context, req SearchContextRequest) (string, error) {
	sources, err := c.SearchContext(ctx, req)
	if err != nil {
		return "", err
	}
	return tokens.EncodeJSON(sources)
}

// SearchContext is GetSearchContext without the final serialization.
func (c *Client) SearchContext(ctx context.Context, req SearchContextRequest) ([]ContextSource, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = tokens.DefaultMaxTokens
	}
	counter, err := c.tokenCounter()
	if err != nil {
		return nil, err
	}

	sreq := req.SearchRequest
	sreq.IncludeAnswer = AnswerNone
	sreq.IncludeRawContent = false
	sreq.IncludeImages = false

	resp, err := c.Search(ctx, sreq)
	if err != nil {
		return nil, err
	}

	sources := make([]ContextSource, 0, len(resp.Results))
	for _, r := range resp.Results {
		sources = append(sources, ContextSource{URL: r.URL, Content: r.Content})
	}
	return tokens.Pack(sources, maxTokens, counter)
}

type QnARequest = SearchRequest

// QnASearch returns only the generated answer. Depth defaults to advanced
// and the answer is always requested.
func (c *Client) QnASearch(ctx context.Context, req QnARequest) (string, error) {
	if req.SearchDepth == "" {
		req.SearchDepth = SearchDepthAdvanced
	}
	if req.IncludeAnswer == AnswerNone {
		req.IncludeAnswer = AnswerBasic
	}
	req.IncludeRawContent = false
	req.IncludeImages = false

	resp, err := c.Search(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Answer, nil
}

var companyTopics = []Topic{TopicNews, TopicGeneral, TopicFinance}

type CompanyInfoRequest struct {
	Query       string
	SearchDepth SearchDepth
	// MaxResults caps the merged list; defaults to 5.
	MaxResults int
	Timeout    time.Duration
}

// GetCompanyInfo searches news, general and finance in parallel and returns
// the MaxResults best-scored results across all three.
func (c *Client) GetCompanyInfo(ctx context.Context, req CompanyInfoRequest) ([]SearchResult, error) {
	if req.SearchDepth == "" {
		req.SearchDepth = SearchDepthAdvanced
	}
	if req.MaxResults <= 0 {
		req.MaxResults = defaultMaxResults
	}

	perTopic := make([][]SearchResult, len(companyTopics))
	g, gctx := errgroup.WithContext(ctx)
	for i, topic := range companyTopics {
		g.Go(func() error {
			resp, err := c.Search(gctx, SearchRequest{
				Query:       req.Query,
				SearchDepth: req.SearchDepth,
				Topic:       topic,
				MaxResults:  req.MaxResults,
				Timeout:     req.Timeout,
			})
			if err != nil {
				return err
			}
			perTopic[i] = resp.Results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []SearchResult
	for _, results := range perTopic {
		all = append(all, results...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Score > all[j].Score
	})
	if len(all) > req.MaxResults {
		all = all[:req.MaxResults]
	}
	if all == nil {
		all = []SearchResult{}
	}
	return all, nil
}
