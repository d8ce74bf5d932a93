package tavily

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAPIKey = "tvly-test-key-123"

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...func(*Config)) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := Config{
		APIKey:       testAPIKey,
		BaseURL:      server.URL,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func okSearch(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query": "test query",
		"results": []map[string]interface{}{
			{"title": "Test", "url": "https://example.com", "content": "Content", "score": 0.9},
		},
		"response_time": 1.5,
	})
}

func TestClient_Search_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
	}{
		{name: "usage limit", statusCode: http.StatusTooManyRequests, wantErr: ErrUsageLimitExceeded},
		{name: "forbidden", statusCode: http.StatusForbidden, wantErr: ErrForbidden},
		{name: "plan limit 432", statusCode: 432, wantErr: ErrForbidden},
		{name: "pay-as-you-go limit 433", statusCode: 433, wantErr: ErrForbidden},
		{name: "unauthorized", statusCode: http.StatusUnauthorized, wantErr: ErrInvalidAPIKey},
		{name: "bad request", statusCode: http.StatusBadRequest, wantErr: ErrBadRequest},
		{name: "not found", statusCode: http.StatusNotFound, wantErr: ErrRequestFailed},
		{name: "server error", statusCode: http.StatusInternalServerError, wantErr: ErrRequestFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.statusCode, map[string]interface{}{
					"detail": map[string]string{"error": "nope"},
				})
			}, func(c *Config) { c.DisableRetries = true })

			resp, err := client.Search(context.Background(), SearchRequest{Query: "test query"})
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_Search_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		okSearch(w)
	})

	resp, err := client.Search(context.Background(), SearchRequest{Query: "test query"})
	require.NoError(t, err)

	assert.Equal(t, "test query", resp.Query)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "https://example.com", resp.Results[0].URL)
	assert.Equal(t, 0.9, resp.Results[0].Score)
	assert.Equal(t, 1500*time.Millisecond, resp.ResponseTime.Duration())
}

func TestClient_Search_EmptyResultsNotNil(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"query": "q"})
	})

	resp, err := client.Search(context.Background(), SearchRequest{Query: "q"})
	require.NoError(t, err)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestClient_Headers(t *testing.T) {
	var got http.Header
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		okSearch(w)
	})

	_, err := client.Search(context.Background(), SearchRequest{Query: "q"})
	require.NoError(t, err)

	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "Bearer "+testAPIKey, got.Get("Authorization"))
	assert.Equal(t, DefaultClientSource, got.Get("X-Client-Source"))
}

func TestClient_CustomClientSource(t *testing.T) {
	var source string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		source = r.Header.Get("X-Client-Source")
		okSearch(w)
	}, func(c *Config) { c.ClientSource = "my-agent" })

	_, err := client.Search(context.Background(), SearchRequest{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "my-agent", source)
}

func TestClient_HTTPErrorDoesNotLeakKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"echo":"`+r.Header.Get("Authorization")+`"}`)
	}))
	defer server.Close()

	client, err := New(Config{APIKey: testAPIKey, BaseURL: server.URL, DisableRetries: true}, nil)
	require.NoError(t, err)

	_, err = client.Search(context.Background(), SearchRequest{Query: "q"})
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	assert.Equal(t, fmt.Sprintf("500 Server Error: Internal Server Error for url: %s/search", server.URL), err.Error())

	for _, secret := range []string{testAPIKey, "Bearer", "Authorization"} {
		assert.NotContains(t, err.Error(), secret)
	}
}

func TestClient_HTTPErrorClientClass(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.Search(context.Background(), SearchRequest{Query: "q"})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "404 Client Error: Not Found for url: "), err.Error())
}

func TestClient_APIErrorDetail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"detail": map[string]string{"error": "Unauthorized: missing or invalid API key."},
		})
	})

	_, err := client.Search(context.Background(), SearchRequest{Query: "q"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Unauthorized: missing or invalid API key.", apiErr.Detail)
	assert.NotContains(t, err.Error(), testAPIKey)
}

func TestClient_APIErrorDetailString(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"detail": "query is too long"})
	})

	_, err := client.Search(context.Background(), SearchRequest{Query: "q"})
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Equal(t, "bad request: query is too long", err.Error())
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		okSearch(w)
	})

	resp, err := client.Search(context.Background(), SearchRequest{Query: "q"})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, func(c *Config) { c.MaxRetries = 2 })

	_, err := client.Search(context.Background(), SearchRequest{Query: "q"})
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Search(context.Background(), SearchRequest{Query: "q"})
	assert.ErrorIs(t, err, ErrUsageLimitExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Search_Timeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	_, err := client.Search(context.Background(), SearchRequest{
		Query:   "test",
		Timeout: 100 * time.Millisecond,
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Search_ContextCanceled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		okSearch(w)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Search(ctx, SearchRequest{Query: "test"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, resolveTimeout(0, true))
	assert.Equal(t, 5*time.Second, resolveTimeout(5*time.Second, true))
	assert.Equal(t, MaxTimeout, resolveTimeout(10*time.Minute, true))
	assert.Equal(t, 10*time.Minute, resolveTimeout(10*time.Minute, false))
}

func TestNew_MissingAPIKey(t *testing.T) {
	t.Setenv("TAVILY_API_KEY", "")

	_, err := New(Config{}, nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNew_APIKeyFromEnv(t *testing.T) {
	t.Setenv("TAVILY_API_KEY", "env-key")

	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		okSearch(w)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL}, nil)
	require.NoError(t, err)

	_, err = client.Search(context.Background(), SearchRequest{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer env-key", auth)
}

func TestNew_InvalidProxy(t *testing.T) {
	_, err := New(Config{APIKey: "k", Proxies: Proxies{HTTPS: "://bad"}}, nil)
	assert.Error(t, err)
}

func TestProxyFunc(t *testing.T) {
	proxy, err := proxyFunc(Proxies{HTTP: "http://proxy.local:8080"})
	require.NoError(t, err)
	require.NotNil(t, proxy)

	httpReq, _ := http.NewRequest(http.MethodGet, "http://api.example.com", nil)
	u, err := proxy(httpReq)
	require.NoError(t, err)
	assert.Equal(t, "http://proxy.local:8080", u.String())

	httpsReq, _ := http.NewRequest(http.MethodGet, "https://api.example.com", nil)
	u, err = proxy(httpsReq)
	require.NoError(t, err)
	assert.Nil(t, u)

	none, err := proxyFunc(Proxies{})
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestNew_ProxiesFromEnv(t *testing.T) {
	t.Setenv("TAVILY_HTTP_PROXY", "http://env-proxy:3128")
	t.Setenv("TAVILY_HTTPS_PROXY", "")

	client, err := New(Config{APIKey: "k"}, nil)
	require.NoError(t, err)

	transport, ok := client.http.HTTPClient.Transport.(*http.Transport)
	require.True(t, ok)
	req, _ := http.NewRequest(http.MethodGet, "http://api.example.com", nil)
	u, err := transport.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "http://env-proxy:3128", u.String())
}

func TestClient_NormalizesContent(t *testing.T) {
	broken := `\xe8\x85\xbe\xe8\xae\xaf`
	handler := func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"query": "q",
			"results": []map[string]interface{}{
				{"title": broken, "url": "https://x/" + broken, "content": broken, "score": 0.5},
			},
		})
	}

	t.Run("enabled by default", func(t *testing.T) {
		client := newTestClient(t, handler)
		resp, err := client.Search(context.Background(), SearchRequest{Query: "q"})
		require.NoError(t, err)
		assert.Equal(t, "腾讯", resp.Results[0].Content)
		assert.Equal(t, "腾讯", resp.Results[0].Title)
		assert.Equal(t, "https://x/"+broken, resp.Results[0].URL)
	})

	t.Run("disabled", func(t *testing.T) {
		client := newTestClient(t, handler, func(c *Config) { c.SkipContentNormalization = true })
		resp, err := client.Search(context.Background(), SearchRequest{Query: "q"})
		require.NoError(t, err)
		assert.Equal(t, broken, resp.Results[0].Content)
	})
}

func TestClient_MalformedJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "{not json")
	})

	_, err := client.Search(context.Background(), SearchRequest{Query: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]interface{}
}

func (c *mapCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *mapCache) Set(key string, value interface{}, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
}

type countingRecorder struct {
	mu       sync.Mutex
	requests map[string]int
	hits     int
	misses   int
	limited  int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{requests: map[string]int{}}
}

func (r *countingRecorder) RecordRequest(endpoint, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[endpoint+" "+status]++
}
func (r *countingRecorder) RecordCacheHit() { r.mu.Lock(); r.hits++; r.mu.Unlock() }
func (r *countingRecorder) RecordCacheMiss() { r.mu.Lock(); r.misses++; r.mu.Unlock() }
func (r *countingRecorder) RecordRateLimitHit(string) { r.mu.Lock(); r.limited++; r.mu.Unlock() }
func (r *countingRecorder) IncRequestsInFlight() {}
func (r *countingRecorder) DecRequestsInFlight() {}

func TestClient_CachesResponses(t *testing.T) {
	var calls atomic.Int32
	rec := newCountingRecorder()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		okSearch(w)
	}, func(c *Config) {
		c.Cache = &mapCache{m: map[string]interface{}{}}
		c.CacheTTL = time.Minute
		c.Metrics = rec
	})

	for i := 0; i < 3; i++ {
		resp, err := client.Search(context.Background(), SearchRequest{Query: "same"})
		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
	}
	_, err := client.Search(context.Background(), SearchRequest{Query: "other"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, rec.hits)
	assert.Equal(t, 2, rec.misses)
	assert.Equal(t, 2, rec.requests["/search success"])
}

type denyLimiter struct{ keys []string }

func (l *denyLimiter) Allow(key string) bool {
	l.keys = append(l.keys, key)
	return false
}

func TestClient_LocalRateLimit(t *testing.T) {
	var calls atomic.Int32
	limiter := &denyLimiter{}
	rec := newCountingRecorder()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		okSearch(w)
	}, func(c *Config) {
		c.Limiter = limiter
		c.Metrics = rec
	})

	_, err := client.Search(context.Background(), SearchRequest{Query: "q"})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, []string{"/search"}, limiter.keys)
	assert.Equal(t, 1, rec.limited)
}

func TestEncodeBody_ExtraOverrides(t *testing.T) {
	b, err := encodeBody(map[string]interface{}{"query": "q", "days": 7}, map[string]interface{}{"days": 3, "custom": true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"q","days":3,"custom":true}`, string(b))
}

func TestCacheKey(t *testing.T) {
	a := cacheKey("/search", []byte(`{"query":"a"}`))
	b := cacheKey("/search", []byte(`{"query":"b"}`))
	c := cacheKey("/extract", []byte(`{"query":"a"}`))

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, cacheKey("/search", []byte(`{"query":"a"}`)))
	assert.True(t, strings.HasPrefix(a, "/search:"))
}

func TestSeconds_Unmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want Seconds
	}{
		{in: `1.5`, want: 1.5},
		{in: `"2.25"`, want: 2.25},
		{in: `null`, want: 0},
	}
	for _, tt := range tests {
		var s Seconds
		require.NoError(t, json.Unmarshal([]byte(tt.in), &s), tt.in)
		assert.Equal(t, tt.want, s)
	}

	var s Seconds
	assert.Error(t, json.Unmarshal([]byte(`"fast"`), &s))
}

func TestImage_Unmarshal(t *testing.T) {
	var images []Image
	require.NoError(t, json.Unmarshal([]byte(`["https://a.png", {"url":"https://b.png","description":"a chart"}]`), &images))

	assert.Equal(t, []Image{
		{URL: "https://a.png"},
		{URL: "https://b.png", Description: "a chart"},
	}, images)
}

func TestAnswerMode_Marshal(t *testing.T) {
	for mode, want := range map[AnswerMode]string{
		AnswerNone:     `false`,
		AnswerBasic:    `"basic"`,
		AnswerAdvanced: `"advanced"`,
	} {
		b, err := json.Marshal(mode)
		require.NoError(t, err)
		assert.Equal(t, want, string(b))
	}
}
