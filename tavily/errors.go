package tavily

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

var (
	ErrMissingAPIKey      = errors.New("no API key provided: set Config.APIKey or the TAVILY_API_KEY environment variable")
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrUsageLimitExceeded = errors.New("usage limit exceeded")
	ErrForbidden          = errors.New("forbidden")
	ErrBadRequest         = errors.New("bad request")
	ErrRequestFailed      = errors.New("request failed")
	ErrRateLimited        = errors.New("client-side rate limit exceeded")
	ErrEmptyQuery         = errors.New("empty query")
	ErrNoURLs             = errors.New("no urls to extract")
	ErrEmptyURL           = errors.New("empty url")
	ErrEmptyInput         = errors.New("empty research input")
	ErrEmptyRequestID     = errors.New("empty research request id")
)

// APIError is returned for the status codes the API documents: 400, 401,
// 403/432/433 and 429. Use errors.Is with the sentinels above.
type APIError struct {
	StatusCode int
	Detail     string
	kind       error
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.Detail
}

func (e *APIError) Unwrap() error {
	return e.kind
}

// HTTPError covers every other non-200 answer. Its message is built from the
// status line and URL only, so credentials never end up in logs.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPError) Error() string {
	class := "Client"
	if e.StatusCode >= 500 {
		class = "Server"
	}
	return fmt.Sprintf("%d %s Error: %s for url: %s", e.StatusCode, class, e.Status, e.URL)
}

func (e *HTTPError) Unwrap() error {
	return ErrRequestFailed
}

func statusError(resp *http.Response, body []byte) error {
	detail := errorDetail(body)

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return &APIError{StatusCode: resp.StatusCode, Detail: detail, kind: ErrUsageLimitExceeded}
	case http.StatusForbidden, 432, 433:
		return &APIError{StatusCode: resp.StatusCode, Detail: detail, kind: ErrForbidden}
	case http.StatusUnauthorized:
		return &APIError{StatusCode: resp.StatusCode, Detail: detail, kind: ErrInvalidAPIKey}
	case http.StatusBadRequest:
		return &APIError{StatusCode: resp.StatusCode, Detail: detail, kind: ErrBadRequest}
	}

	return &HTTPError{
		StatusCode: resp.StatusCode,
		Status:     reasonPhrase(resp),
		URL:        redactURL(resp),
	}
}

// errorDetail - достаём detail.error из тела ошибки, если оно есть
func errorDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}

	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload.Detail, &obj); err == nil {
		return obj.Error
	}

	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}
	return ""
}

func reasonPhrase(resp *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return reason
}

func redactURL(resp *http.Response) string {
	if resp.Request == nil || resp.Request.URL == nil {
		return ""
	}
	u := *resp.Request.URL
	u.User = nil
	return u.String()
}
