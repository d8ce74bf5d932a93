package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/kitbuilder587/tavily-go/hybrid"
	"github.com/kitbuilder587/tavily-go/internal/config"
)

// fakeAPI serves the Tavily and OpenAI endpoints the commands call.
func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		resp := map[string]any{
			"query": body["query"],
			"results": []map[string]any{
				{"title": "Bank", "url": "https://example.com/bank", "content": "bank rates rose", "score": 0.9},
				{"title": "Crypto", "url": "https://example.com/crypto", "content": "crypto fell", "score": 0.4},
			},
			"response_time": 0.2,
		}
		if body["include_answer"] != false {
			resp["answer"] = "Rates rose."
		}
		writeResponse(w, resp)
	})
	mux.HandleFunc("/research", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: progress\ndata: {\"step\":1}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	mux.HandleFunc("/research/req-9", func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, map[string]any{"request_id": "req-9", "status": "completed", "content": "done"})
	})
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		data := make([]map[string]any, len(body.Input))
		for i := range body.Input {
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float64{1, float64(i)}}
		}
		writeResponse(w, map[string]any{"object": "list", "model": "text-embedding-3-small", "data": data})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func setEnv(t *testing.T, baseURL string) {
	t.Setenv("TAVILY_API_KEY", "tvly-test")
	t.Setenv("TAVILY_BASE_URL", baseURL)
	t.Setenv("TAVILY_MAX_RETRIES", "0")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", baseURL)
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", ":memory:")
	t.Setenv("CACHE_TYPE", "memory")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "")
	t.Setenv("METRICS_ADDR", "")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := newRootCmd()
	root.Writer = &out
	// keep exit-coded errors from terminating the test binary
	root.ExitErrHandler = func(context.Context, *cli.Command, error) {}
	err := root.Run(context.Background(), append([]string{"tavily"}, args...))
	return out.String(), err
}

func TestSearchCommand(t *testing.T) {
	srv := fakeAPI(t)
	setEnv(t, srv.URL)

	out, err := runCLI(t, "search", "-n", "2", "bank", "rates")
	require.NoError(t, err)

	var resp struct {
		Query   string `json:"query"`
		Results []struct {
			URL string `json:"url"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "bank rates", resp.Query)
	assert.Len(t, resp.Results, 2)
}

func TestQnACommand(t *testing.T) {
	srv := fakeAPI(t)
	setEnv(t, srv.URL)

	out, err := runCLI(t, "qna", "what", "happened?")
	require.NoError(t, err)
	assert.Equal(t, "Rates rose.\n", out)
}

func TestContextCommand(t *testing.T) {
	srv := fakeAPI(t)
	setEnv(t, srv.URL)

	out, err := runCLI(t, "context", "bank")
	require.NoError(t, err)

	var sources []map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &sources))
	require.Len(t, sources, 2)
	assert.Equal(t, "https://example.com/bank", sources[0]["url"])
}

func TestResearchCommand_Stream(t *testing.T) {
	srv := fakeAPI(t)
	setEnv(t, srv.URL)

	out, err := runCLI(t, "research", "--stream", "open banking")
	require.NoError(t, err)
	assert.Equal(t, "event: progress\ndata: {\"step\":1}\n\n", out)
}

func TestResearchCommand_StreamAndWait(t *testing.T) {
	srv := fakeAPI(t)
	setEnv(t, srv.URL)

	_, err := runCLI(t, "research", "--stream", "--wait", "x")
	assert.Error(t, err)
}

func TestResearchGetCommand(t *testing.T) {
	srv := fakeAPI(t)
	setEnv(t, srv.URL)

	out, err := runCLI(t, "research-get", "req-9")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "completed"`)
}

func TestHybridCommand(t *testing.T) {
	srv := fakeAPI(t)
	setEnv(t, srv.URL)

	out, err := runCLI(t, "hybrid", "--save-foreign", "-n", "3", "bank")
	require.NoError(t, err)

	var docs []hybrid.Document
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 2)
	assert.Equal(t, hybrid.OriginForeign, docs[0].Origin)
	assert.Equal(t, "bank rates rose", docs[0].Content)
}

func TestHybridCommand_UnknownStore(t *testing.T) {
	srv := fakeAPI(t)
	setEnv(t, srv.URL)

	_, err := runCLI(t, "hybrid", "--store", "mongo", "bank")
	assert.Error(t, err)
}

func TestMissingAPIKey(t *testing.T) {
	srv := fakeAPI(t)
	setEnv(t, srv.URL)
	t.Setenv("TAVILY_API_KEY", "")

	_, err := runCLI(t, "search", "bank")
	assert.ErrorIs(t, err, config.ErrMissingAPIKey)
}

func TestTokensCommand(t *testing.T) {
	out, err := runCLI(t, "tokens", "count", "hello", "world")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	out, err = runCLI(t, "tokens", "truncate", "--max", "1", "hello", "world")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestTokensCommand_Stdin(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.Writer = &out
	root.Reader = strings.NewReader("hello world\n")

	require.NoError(t, root.Run(context.Background(), []string{"tavily", "tokens", "count"}))
	assert.Equal(t, "2\n", out.String())
}
