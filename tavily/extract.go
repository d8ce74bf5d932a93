package tavily

import (
	"context"
	"net/http"
	"strings"
	"time"
)

type ExtractRequest struct {
	URLs           []string
	ExtractDepth   ExtractDepth
	Format         Format
	IncludeImages  bool
	IncludeFavicon bool
	IncludeUsage   bool

	Timeout time.Duration
	Extra   map[string]any
}

type ExtractResponse struct {
	Results       []ExtractResult `json:"results"`
	FailedResults []FailedResult  `json:"failed_results"`
	ResponseTime  Seconds         `json:"response_time"`
	Usage         *Usage          `json:"usage,omitempty"`
	RequestID     string          `json:"request_id,omitempty"`
}

type ExtractResult struct {
	URL        string   `json:"url"`
	RawContent string   `json:"raw_content"`
	Images     []string `json:"images,omitempty"`
	Favicon    string   `json:"favicon,omitempty"`
}

type FailedResult struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

type extractBody struct {
	URLs           []string     `json:"urls"`
	ExtractDepth   ExtractDepth `json:"extract_depth"`
	Format         Format       `json:"format,omitempty"`
	IncludeImages  bool         `json:"include_images"`
	IncludeFavicon bool         `json:"include_favicon,omitempty"`
	IncludeUsage   bool         `json:"include_usage"`
}

// Extract fetches and cleans up to twenty pages in one call. Pages the API
// could not fetch end up in FailedResults, not in the error.
func (c *Client) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	urls := make([]string, 0, len(req.URLs))
	for _, u := range req.URLs {
		if strings.TrimSpace(u) != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}

	depth := req.ExtractDepth
	if depth == "" {
		depth = ExtractDepthBasic
	}

	var resp ExtractResponse
	err := c.do(ctx, request{
		method:   http.MethodPost,
		endpoint: "/extract",
		body: extractBody{
			URLs:           urls,
			ExtractDepth:   depth,
			Format:         req.Format,
			IncludeImages:  req.IncludeImages,
			IncludeFavicon: req.IncludeFavicon,
			IncludeUsage:   req.IncludeUsage,
		},
		extra:     req.Extra,
		timeout:   req.Timeout,
		cacheable: true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.Results == nil {
		resp.Results = []ExtractResult{}
	}
	if resp.FailedResults == nil {
		resp.FailedResults = []FailedResult{}
	}
	return &resp, nil
}
