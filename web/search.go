// Package web provides the web search and URL extraction collaborators.
//
// Both are consumed as narrow interfaces by the augmenters; the HTTP
// implementations here go through the shared transport client so they
// inherit its retry and timeout policy.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/richinex/oraculo/config"
	"github.com/richinex/oraculo/internal/log"
	"github.com/richinex/oraculo/transport"
)

// SearchResult is the outcome of one web search.
type SearchResult struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
	Source  string `json:"source"`
}

// Searcher performs a web search for a free-text query.
type Searcher interface {
	Search(ctx context.Context, query string) (SearchResult, error)
}

// HTTPSearcher calls a JSON search API.
type HTTPSearcher struct {
	transport *transport.Client
	cfg       config.SearchConfig
	logger    log.Logger
}

// NewHTTPSearcher creates a searcher against the configured search API.
func NewHTTPSearcher(tc *transport.Client, cfg config.SearchConfig, logger log.Logger) *HTTPSearcher {
	return &HTTPSearcher{transport: tc, cfg: cfg, logger: logger}
}

// Search posts the query and decodes {success, result, source}.
func (s *HTTPSearcher) Search(ctx context.Context, query string) (SearchResult, error) {
	if s.cfg.APIURL == "" {
		return SearchResult{}, fmt.Errorf("search API not configured")
	}

	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return SearchResult{}, fmt.Errorf("marshal search request: %w", err)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if s.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + s.cfg.APIKey
	}

	resp, err := s.transport.Do(ctx, transport.Request{
		URL:     s.cfg.APIURL,
		Method:  http.MethodPost,
		Headers: headers,
		Body:    body,
		Timeout: s.cfg.Timeout,
	})
	if err != nil {
		return SearchResult{}, fmt.Errorf("search call: %w", err)
	}

	var result SearchResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return SearchResult{}, fmt.Errorf("decode search response: %w", err)
	}
	return result, nil
}

// Verify HTTPSearcher implements Searcher
var _ Searcher = (*HTTPSearcher)(nil)
