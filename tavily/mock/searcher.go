// Package mock provides an in-memory tavily.Searcher for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/kitbuilder587/tavily-go/tavily"
)

type Searcher struct {
	Results []tavily.SearchResult
	Answer  string
	Error   error
	Delay   time.Duration

	CallCount   int
	LastRequest tavily.SearchRequest
	AllRequests []tavily.SearchRequest

	mu sync.Mutex
}

var _ tavily.Searcher = (*Searcher)(nil)

func New() *Searcher {
	return &Searcher{}
}

func (s *Searcher) WithResults(results []tavily.SearchResult) *Searcher {
	s.Results = results
	return s
}

func (s *Searcher) WithAnswer(answer string) *Searcher {
	s.Answer = answer
	return s
}

func (s *Searcher) WithError(err error) *Searcher {
	s.Error = err
	return s
}

func (s *Searcher) WithDelay(delay time.Duration) *Searcher {
	s.Delay = delay
	return s
}

// Search returns at most MaxResults of the configured results, or all of
// them when MaxResults is zero.
func (s *Searcher) Search(ctx context.Context, req tavily.SearchRequest) (*tavily.SearchResponse, error) {
	s.mu.Lock()
	s.CallCount++
	s.LastRequest = req
	s.AllRequests = append(s.AllRequests, req)
	delay := s.Delay
	err := s.Error
	results := append([]tavily.SearchResult{}, s.Results...)
	answer := s.Answer
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if err != nil {
		return nil, err
	}

	if req.MaxResults > 0 && len(results) > req.MaxResults {
		results = results[:req.MaxResults]
	}

	resp := &tavily.SearchResponse{
		Query:        req.Query,
		Results:      results,
		ResponseTime: 0.5,
	}
	if req.IncludeAnswer != tavily.AnswerNone {
		resp.Answer = answer
	}
	return resp, nil
}

func (s *Searcher) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCount
}

func (s *Searcher) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCount = 0
	s.LastRequest = tavily.SearchRequest{}
	s.AllRequests = nil
}
