// Package tavily is a client for the Tavily web search API: search, extract,
// crawl, map and research, plus a few convenience helpers built on search.
package tavily

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/kitbuilder587/tavily-go/textfix"
	"github.com/kitbuilder587/tavily-go/tokens"
)

const (
	DefaultBaseURL      = "https://api.tavily.com"
	DefaultClientSource = "tavily-go"

	DefaultTimeout  = 60 * time.Second
	MaxTimeout      = 120 * time.Second
	DefaultCacheTTL = time.Hour

	defaultMaxRetries   = 3
	defaultRetryWaitMin = 1 * time.Second
	defaultRetryWaitMax = 4 * time.Second
)

type Proxies struct {
	HTTP  string
	HTTPS string
}

// Recorder receives per-request measurements. internal/metrics implements it.
type Recorder interface {
	RecordRequest(endpoint, status string, duration time.Duration)
	RecordCacheHit()
	RecordCacheMiss()
	RecordRateLimitHit(endpoint string)
	IncRequestsInFlight()
	DecRequestsInFlight()
}

// Cache stores decoded responses keyed by endpoint and request body.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
}

// Limiter gates outgoing requests per endpoint.
type Limiter interface {
	Allow(key string) bool
}

type Config struct {
	APIKey  string
	BaseURL string
	Proxies Proxies

	// HTTPClient replaces the default transport. Proxies are ignored when set.
	HTTPClient *http.Client

	MaxRetries     int
	DisableRetries bool
	RetryWaitMin   time.Duration
	RetryWaitMax   time.Duration

	// SkipContentNormalization turns off mojibake repair of content, title and raw_content.
	SkipContentNormalization bool

	ClientSource string
	TokenCounter tokens.Counter

	// CacheTTL defaults to DefaultCacheTTL when Cache is set.
	Metrics  Recorder
	Cache    Cache
	CacheTTL time.Duration
	Limiter  Limiter
}

type Client struct {
	apiKey       string
	baseURL      string
	clientSource string
	normalize    bool

	http    *retryablehttp.Client
	counter tokens.Counter
	metrics Recorder
	cache   Cache
	ttl     time.Duration
	limiter Limiter
	logger  *zap.Logger
}

// New builds a client. An empty APIKey falls back to TAVILY_API_KEY; proxies
// fall back to TAVILY_HTTP_PROXY and TAVILY_HTTPS_PROXY.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("TAVILY_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ClientSource == "" {
		cfg.ClientSource = DefaultClientSource
	}
	if cfg.Proxies == (Proxies{}) {
		cfg.Proxies = Proxies{
			HTTP:  os.Getenv("TAVILY_HTTP_PROXY"),
			HTTPS: os.Getenv("TAVILY_HTTPS_PROXY"),
		}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.DisableRetries {
		cfg.MaxRetries = 0
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = defaultRetryWaitMin
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = defaultRetryWaitMax
	}
	if cfg.Cache != nil && cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopRecorder{}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		proxy, err := proxyFunc(cfg.Proxies)
		if err != nil {
			return nil, err
		}
		if proxy != nil {
			transport.Proxy = proxy
		}
		httpClient = &http.Client{Transport: transport}
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = httpClient
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = retryLogger{logger.Sugar()}

	return &Client{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientSource: cfg.ClientSource,
		normalize:    !cfg.SkipContentNormalization,
		http:         rc,
		counter:      cfg.TokenCounter,
		metrics:      metrics,
		cache:        cfg.Cache,
		ttl:          cfg.CacheTTL,
		limiter:      cfg.Limiter,
		logger:       logger,
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.HTTPClient.CloseIdleConnections()
}

func proxyFunc(p Proxies) (func(*http.Request) (*url.URL, error), error) {
	parsed := map[string]*url.URL{}
	for scheme, raw := range map[string]string{"http": p.HTTP, "https": p.HTTPS} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s proxy: %w", scheme, err)
		}
		parsed[scheme] = u
	}
	if len(parsed) == 0 {
		return nil, nil
	}
	return func(r *http.Request) (*url.URL, error) {
		return parsed[r.URL.Scheme], nil
	}, nil
}

// checkRetry retries transport failures and 5xx answers. Context errors and
// every 4xx are final.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	if resp.StatusCode >= 500 && resp.StatusCode != http.StatusNotImplemented {
		return true, nil
	}
	return false, nil
}

// resolveTimeout - 0 означает значение по умолчанию, больше MaxTimeout обрезаем
func resolveTimeout(d time.Duration, capped bool) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	if capped && d > MaxTimeout {
		return MaxTimeout
	}
	return d
}

type request struct {
	method    string
	endpoint  string
	body      any
	extra     map[string]any
	timeout   time.Duration
	uncapped  bool
	cacheable bool
}

// do sends the request and decodes a 200 answer into out.
func (c *Client) do(ctx context.Context, r request, out any) error {
	var payload []byte
	if r.body != nil {
		var err error
		payload, err = encodeBody(r.body, r.extra)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	key := ""
	if r.cacheable && c.cache != nil {
		key = cacheKey(r.endpoint, payload)
		if cached, ok := c.cache.Get(key); ok {
			if b, ok := cached.([]byte); ok {
				c.metrics.RecordCacheHit()
				c.logger.Debug("cache hit", zap.String("endpoint", r.endpoint))
				return json.Unmarshal(b, out)
			}
		}
		c.metrics.RecordCacheMiss()
	}

	if c.limiter != nil && !c.limiter.Allow(r.endpoint) {
		c.metrics.RecordRateLimitHit(r.endpoint)
		return ErrRateLimited
	}

	ctx, cancel := context.WithTimeout(ctx, resolveTimeout(r.timeout, !r.uncapped))
	defer cancel()

	start := time.Now()
	c.metrics.IncRequestsInFlight()
	defer c.metrics.DecRequestsInFlight()

	resp, err := c.send(ctx, r.method, r.endpoint, payload)
	if err != nil {
		c.metrics.RecordRequest(r.endpoint, "error", time.Since(start))
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordRequest(r.endpoint, "error", time.Since(start))
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordRequest(r.endpoint, "error", time.Since(start))
		apiErr := statusError(resp, body)
		c.logger.Warn("tavily request failed",
			zap.String("endpoint", r.endpoint),
			zap.Int("status", resp.StatusCode),
			zap.Error(apiErr),
		)
		return apiErr
	}

	body = c.normalizeBody(body)
	if err := json.Unmarshal(body, out); err != nil {
		c.metrics.RecordRequest(r.endpoint, "error", time.Since(start))
		return fmt.Errorf("unmarshal response: %w", err)
	}
	c.metrics.RecordRequest(r.endpoint, "success", time.Since(start))

	if key != "" {
		c.cache.Set(key, body, c.ttl)
	}

	c.logger.Debug("tavily request completed",
		zap.String("endpoint", r.endpoint),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte) (*http.Response, error) {
	var body interface{}
	if payload != nil {
		body = payload
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, method, endpoint, sanitize(err, c.apiKey))
	}
	return resp, nil
}

func (c *Client) setHeaders(h http.Header) {
	h.Set("Content-Type", "application/json")
	h.Set("Authorization", "Bearer "+c.apiKey)
	h.Set("X-Client-Source", c.clientSource)
}

// sanitize drops the key from transport error text; some proxies echo headers back.
func sanitize(err error, apiKey string) string {
	msg := err.Error()
	if apiKey != "" {
		msg = strings.ReplaceAll(msg, apiKey, "[redacted]")
	}
	return msg
}

// normalizeBody repairs text fields. On decode failure the body is returned
// unchanged so the typed decode can report the error.
func (c *Client) normalizeBody(body []byte) []byte {
	if !c.normalize {
		return body
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return body
	}
	fixed, err := json.Marshal(textfix.Normalize(v))
	if err != nil {
		return body
	}
	return fixed
}

func (c *Client) tokenCounter() (tokens.Counter, error) {
	if c.counter != nil {
		return c.counter, nil
	}
	return tokens.Default()
}

// encodeBody marshals v and merges extra on top of it. Extra keys win.
func encodeBody(v any, extra map[string]any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return b, err
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	for k, val := range extra {
		m[k] = val
	}
	return json.Marshal(m)
}

func cacheKey(endpoint string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(endpoint))
	h.Write([]byte{0})
	h.Write(payload)
	return fmt.Sprintf("%s:%x", endpoint, h.Sum(nil)[:16])
}

type nopRecorder struct{}

func (nopRecorder) RecordRequest(string, string, time.Duration) {}
func (nopRecorder) RecordCacheHit() {}
func (nopRecorder) RecordCacheMiss() {}
func (nopRecorder) RecordRateLimitHit(string) {}
func (nopRecorder) IncRequestsInFlight() {}
func (nopRecorder) DecRequestsInFlight() {}

// retryLogger adapts zap to retryablehttp.LeveledLogger.
type retryLogger struct {
	l *zap.SugaredLogger
}

func (r retryLogger) Error(msg string, kv ...interface{}) { r.l.Errorw(msg, kv...) }
func (r retryLogger) Warn(msg string, kv ...interface{}) { r.l.Warnw(msg, kv...) }
func (r retryLogger) Info(msg string, kv ...interface{}) { r.l.Debugw(msg, kv...) }
func (r retryLogger) Debug(msg string, kv ...interface{}) { r.l.Debugw(msg, kv...) }
