// Package retrieval fetches session-scoped context snippets from the
// similarity-search service backing grounded answers.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Retriever returns context snippets relevant to a query within a session.
type Retriever interface {
	Search(ctx context.Context, sessionID, query string) ([]string, error)
}

// HTTPRetriever talks to the similarity-search HTTP service.
type HTTPRetriever struct {
	baseURL string
	client  *http.Client
	retries int
}

// Option configures an HTTPRetriever.
type Option func(*HTTPRetriever)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(r *HTTPRetriever) { r.client = c }
}

// WithRetries sets how many times a failed search is retried before the
// error is returned. Zero disables retries.
func WithRetries(n int) Option {
	return func(r *HTTPRetriever) { r.retries = n }
}

// NewHTTP creates a retriever against the given service base URL.
func NewHTTP(baseURL string, opts ...Option) *HTTPRetriever {
	r := &HTTPRetriever{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		retries: 2,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type searchRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
}

type searchResponse struct {
	Data []string `json:"data"`
}

// Search implements Retriever. Transient failures are retried with a short
// backoff; the last error is returned when the budget is exhausted.
func (r *HTTPRetriever) Search(ctx context.Context, sessionID, query string) ([]string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
		snippets, err := r.search(ctx, sessionID, query)
		if err == nil {
			return snippets, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (r *HTTPRetriever) search(ctx context.Context, sessionID, query string) ([]string, error) {
	body, err := json.Marshal(searchRequest{Query: query, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("retrieval: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/similarity-search/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("retrieval: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval: search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("retrieval: search returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("retrieval: decode response: %w", err)
	}
	return out.Data, nil
}

// FormatContext joins retrieved snippets into the block handed to the
// answering model. An empty result yields an explicit no-context marker so
// downstream routing can distinguish "searched, found nothing" from
// "never searched".
func FormatContext(snippets []string) string {
	if len(snippets) == 0 {
		return "No relevant context found."
	}
	return strings.Join(snippets, "\n\n")
}
