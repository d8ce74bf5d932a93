package tavily

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// CrawlRequest leaves every unset option out of the request body, so the API
// applies its own defaults.
type CrawlRequest struct {
	URL            string
	MaxDepth       int
	MaxBreadth     int
	Limit          int
	Instructions   string
	SelectPaths    []string
	SelectDomains  []string
	ExcludePaths   []string
	ExcludeDomains []string
	AllowExternal  *bool
	IncludeImages  *bool
	Categories     []Category
	ExtractDepth   ExtractDepth
	Format         Format
	IncludeFavicon *bool

	Timeout time.Duration
	Extra   map[string]any
}

type CrawlResponse struct {
	BaseURL      string        `json:"base_url"`
	Results      []CrawlResult `json:"results"`
	ResponseTime Seconds       `json:"response_time"`
	Usage        *Usage        `json:"usage,omitempty"`
	RequestID    string        `json:"request_id,omitempty"`
}

type CrawlResult struct {
	URL        string   `json:"url"`
	RawContent string   `json:"raw_content"`
	Images     []string `json:"images,omitempty"`
	Favicon    string   `json:"favicon,omitempty"`
}

type crawlBody struct {
	URL            string       `json:"url"`
	MaxDepth       int          `json:"max_depth,omitempty"`
	MaxBreadth     int          `json:"max_breadth,omitempty"`
	Limit          int          `json:"limit,omitempty"`
	Instructions   string       `json:"instructions,omitempty"`
	SelectPaths    []string     `json:"select_paths,omitempty"`
	SelectDomains  []string     `json:"select_domains,omitempty"`
	ExcludePaths   []string     `json:"exclude_paths,omitempty"`
	ExcludeDomains []string     `json:"exclude_domains,omitempty"`
	AllowExternal  *bool        `json:"allow_external,omitempty"`
	IncludeImages  *bool        `json:"include_images,omitempty"`
	Categories     []Category   `json:"categories,omitempty"`
	ExtractDepth   ExtractDepth `json:"extract_depth,omitempty"`
	Format         Format       `json:"format,omitempty"`
	IncludeFavicon *bool        `json:"include_favicon,omitempty"`
}

// Crawl walks a site from URL and returns the extracted pages.
func (c *Client) Crawl(ctx context.Context, req CrawlRequest) (*CrawlResponse, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, ErrEmptyURL
	}

	var resp CrawlResponse
	err := c.do(ctx, request{
		method:   http.MethodPost,
		endpoint: "/crawl",
		body: crawlBody{
			URL:            req.URL,
			MaxDepth:       req.MaxDepth,
			MaxBreadth:     req.MaxBreadth,
			Limit:          req.Limit,
			Instructions:   req.Instructions,
			SelectPaths:    req.SelectPaths,
			SelectDomains:  req.SelectDomains,
			ExcludePaths:   req.ExcludePaths,
			ExcludeDomains: req.ExcludeDomains,
			AllowExternal:  req.AllowExternal,
			IncludeImages:  req.IncludeImages,
			Categories:     req.Categories,
			ExtractDepth:   req.ExtractDepth,
			Format:         req.Format,
			IncludeFavicon: req.IncludeFavicon,
		},
		extra:     req.Extra,
		timeout:   req.Timeout,
		cacheable: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Results == nil {
		resp.Results = []CrawlResult{}
	}
	return &resp, nil
}

type MapRequest struct {
	URL            string
	MaxDepth       int
	MaxBreadth     int
	Limit          int
	Instructions   string
	SelectPaths    []string
	SelectDomains  []string
	ExcludePaths   []string
	ExcludeDomains []string
	AllowExternal  *bool
	Categories     []Category

	Timeout time.Duration
	Extra   map[string]any
}

type MapResponse struct {
	BaseURL      string   `json:"base_url"`
	Results      []string `json:"results"`
	ResponseTime Seconds  `json:"response_time"`
	Usage        *Usage   `json:"usage,omitempty"`
	RequestID    string   `json:"request_id,omitempty"`
}

type mapBody struct {
	URL            string     `json:"url"`
	MaxDepth       int        `json:"max_depth,omitempty"`
	MaxBreadth     int        `json:"max_breadth,omitempty"`
	Limit          int        `json:"limit,omitempty"`
	Instructions   string     `json:"instructions,omitempty"`
	SelectPaths    []string   `json:"select_paths,omitempty"`
	SelectDomains  []string   `json:"select_domains,omitempty"`
	ExcludePaths   []string   `json:"exclude_paths,omitempty"`
	ExcludeDomains []string   `json:"exclude_domains,omitempty"`
	AllowExternal  *bool      `json:"allow_external,omitempty"`
	Categories     []Category `json:"categories,omitempty"`
}

// Map lists the URLs reachable from URL without extracting them.
func (c *Client) Map(ctx context.Context, req MapRequest) (*MapResponse, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, ErrEmptyURL
	}

	var resp MapResponse
	err := c.do(ctx, request{
		method:   http.MethodPost,
		endpoint: "/map",
		body: mapBody{
			URL:            req.URL,
			MaxDepth:       req.MaxDepth,
			MaxBreadth:     req.MaxBreadth,
			Limit:          req.Limit,
			Instructions:   req.Instructions,
			SelectPaths:    req.SelectPaths,
			SelectDomains:  req.SelectDomains,
			ExcludePaths:   req.ExcludePaths,
			ExcludeDomains: req.ExcludeDomains,
			AllowExternal:  req.AllowExternal,
			Categories:     req.Categories,
		},
		extra:     req.Extra,
		timeout:   req.Timeout,
		cacheable: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Results == nil {
		resp.Results = []string{}
	}
	return &resp, nil
}
