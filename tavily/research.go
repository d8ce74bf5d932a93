package tavily

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	ResearchStatusPending    = "pending"
	ResearchStatusInProgress = "in_progress"
	ResearchStatusCompleted  = "completed"
	ResearchStatusFailed     = "failed"

	defaultPollInterval = 2 * time.Second
)

type ResearchRequest struct {
	Input          string
	Model          ResearchModel
	CitationFormat CitationFormat
	OutputSchema   map[string]any

	// Timeout is not capped for research calls. For streams it applies to
	// each read instead of the whole run.
	Timeout time.Duration
	Extra   map[string]any
}

type researchBody struct {
	Input          string         `json:"input"`
	Model          ResearchModel  `json:"model,omitempty"`
	CitationFormat CitationFormat `json:"citation_format,omitempty"`
	OutputSchema   map[string]any `json:"output_schema,omitempty"`
	Stream         bool           `json:"stream"`
}

func (r ResearchRequest) body(stream bool) researchBody {
	return researchBody{
		Input:          r.Input,
		Model:          r.Model,
		CitationFormat: r.CitationFormat,
		OutputSchema:   r.OutputSchema,
		Stream:         stream,
	}
}

// ResearchTask is what the API answers when a research run is queued.
type ResearchTask struct {
	RequestID    string  `json:"request_id"`
	CreatedAt    string  `json:"created_at"`
	Status       string  `json:"status"`
	Input        string  `json:"input"`
	Model        string  `json:"model,omitempty"`
	ResponseTime Seconds `json:"response_time"`
}

type ResearchSource struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Favicon string `json:"favicon,omitempty"`
}

// ResearchResult is the state of a research run. Content is a string, or an
// object shaped by OutputSchema, and is kept raw.
type ResearchResult struct {
	RequestID    string           `json:"request_id"`
	CreatedAt    string           `json:"created_at"`
	CompletedAt  string           `json:"completed_at,omitempty"`
	Status       string           `json:"status"`
	Content      json.RawMessage  `json:"content,omitempty"`
	Sources      []ResearchSource `json:"sources,omitempty"`
	ResponseTime Seconds          `json:"response_time"`
}

// Done reports whether the run reached a terminal status.
func (r *ResearchResult) Done() bool {
	return r.Status == ResearchStatusCompleted || r.Status == ResearchStatusFailed
}

// ContentString returns Content when it is a JSON string, and the raw JSON otherwise.
func (r *ResearchResult) ContentString() string {
	var s string
	if err := json.Unmarshal(r.Content, &s); err == nil {
		return s
	}
	return string(r.Content)
}

// Research queues a research run and returns immediately.
func (c *Client) Research(ctx context.Context, req ResearchRequest) (*ResearchTask, error) {
	if strings.TrimSpace(req.Input) == "" {
		return nil, ErrEmptyInput
	}

	var task ResearchTask
	err := c.do(ctx, request{
		method:   http.MethodPost,
		endpoint: "/research",
		body:     req.body(false),
		extra:    req.Extra,
		timeout:  req.Timeout,
		uncapped: true,
	}, &task)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// GetResearch fetches the current state of a research run.
func (c *Client) GetResearch(ctx context.Context, requestID string) (*ResearchResult, error) {
	if strings.TrimSpace(requestID) == "" {
		return nil, ErrEmptyRequestID
	}

	var result ResearchResult
	err := c.do(ctx, request{
		method:   http.MethodGet,
		endpoint: "/research/" + url.PathEscape(requestID),
		uncapped: true,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// WaitResearch polls GetResearch every interval until the run completes or
// fails, or ctx is done.
func (c *Client) WaitResearch(ctx context.Context, requestID string, interval time.Duration) (*ResearchResult, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := c.GetResearch(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if result.Done() {
			return result, nil
		}
		c.logger.Debug("research pending",
			zap.String("request_id", requestID),
			zap.String("status", result.Status),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ResearchEvent is one server-sent event. Data is the raw JSON payload.
type ResearchEvent struct {
	Event string
	Data  json.RawMessage
}

// ResearchStream reads events of a streamed research run. It is not safe
// for concurrent use; Close must be called.
type ResearchStream struct {
	reader    *eventReader
	cancel    context.CancelFunc
	idle      *time.Timer
	timeout   time.Duration
	normalize func([]byte) []byte
	closeOnce sync.Once
}

// ResearchStream queues a run with stream enabled and returns the open event
// stream. req.Timeout (default DefaultTimeout) bounds the wait for the response
// headers and for each event, not the stream as a whole.
func (c *Client) ResearchStream(ctx context.Context, req ResearchRequest) (*ResearchStream, error) {
	if strings.TrimSpace(req.Input) == "" {
		return nil, ErrEmptyInput
	}

	payload, err := encodeBody(req.body(true), req.Extra)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if c.limiter != nil && !c.limiter.Allow("/research") {
		c.metrics.RecordRateLimitHit("/research")
		return nil, ErrRateLimited
	}

	timeout := resolveTimeout(req.Timeout, false)
	ctx, cancel := context.WithCancel(ctx)
	idle := time.AfterFunc(timeout, cancel)
	start := time.Now()

	resp, err := c.send(ctx, http.MethodPost, "/research", payload)
	if err != nil {
		idle.Stop()
		cancel()
		c.metrics.RecordRequest("/research", "error", time.Since(start))
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		idle.Stop()
		cancel()
		c.metrics.RecordRequest("/research", "error", time.Since(start))
		return nil, statusError(resp, body)
	}
	idle.Stop()
	c.metrics.RecordRequest("/research", "success", time.Since(start))

	return &ResearchStream{
		reader:    newEventReader(resp.Body),
		cancel:    cancel,
		idle:      idle,
		timeout:   timeout,
		normalize: c.normalizeBody,
	}, nil
}

// Next returns the next event, or io.EOF once the stream is over. It fails
// when no event arrives within the stream timeout.
func (s *ResearchStream) Next() (ResearchEvent, error) {
	s.idle.Reset(s.timeout)
	name, data, err := s.reader.next()
	s.idle.Stop()
	if err != nil {
		return ResearchEvent{}, err
	}
	return ResearchEvent{Event: name, Data: s.normalize(data)}, nil
}

func (s *ResearchStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.idle.Stop()
		err = s.reader.close()
		s.cancel()
	})
	return err
}

// eventReader parses a text/event-stream body. Multi-line data is joined
// with newlines; a "[DONE]" payload ends the stream.
type eventReader struct {
	br   *bufio.Reader
	body io.Closer
}

func newEventReader(body io.ReadCloser) *eventReader {
	return &eventReader{br: bufio.NewReader(body), body: body}
}

func (r *eventReader) next() (string, []byte, error) {
	var (
		name string
		data bytes.Buffer
		seen bool
	)

	emit := func() (string, []byte, error) {
		payload := bytes.Clone(data.Bytes())
		if string(bytes.TrimSpace(payload)) == "[DONE]" {
			return "", nil, io.EOF
		}
		return name, payload, nil
	}

	for {
		line, err := r.br.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", nil, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if seen {
				return emit()
			}
		case strings.HasPrefix(line, ":"):
			// комментарий / keep-alive
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			if seen {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(line[len("data:"):], " "))
			seen = true
		}

		if err == io.EOF {
			if seen {
				return emit()
			}
			return "", nil, io.EOF
		}
	}
}

func (r *eventReader) close() error {
	return r.body.Close()
}
