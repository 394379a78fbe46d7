// Package search runs web searches for the research stages.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
)

// DefaultBaseURL is the Tavily API root.
const DefaultBaseURL = "https://api.tavily.com"

const maxBodySize = 2 * 1024 * 1024

// ErrMissingAPIKey is returned when no Tavily key is configured.
var ErrMissingAPIKey = errors.New("tavily API key is not configured")

// Result is one search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Response is the outcome of one query.
type Response struct {
	Query   string   `json:"query"`
	Answer  string   `json:"answer,omitempty"`
	Results []Result `json:"results"`
}

// Sources returns the distinct result URLs in rank order.
func (r *Response) Sources() []string {
	seen := make(map[string]bool, len(r.Results))
	sources := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		if res.URL == "" || seen[res.URL] {
			continue
		}
		seen[res.URL] = true
		sources = append(sources, res.URL)
	}
	return sources
}

// Searcher runs a web search.
type Searcher interface {
	Search(ctx context.Context, query string) (*Response, error)
}

// StatusError is a non-200 answer from the search API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tavily API error (status %d): %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying may help.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// TavilyClient calls the Tavily search API with an included answer.
type TavilyClient struct {
	apiKey     string
	baseURL    string
	maxResults int
	httpClient *http.Client
	maxRetries uint64
	backoff    func() backoff.BackOff
	logger     *slog.Logger
}

// Option configures a TavilyClient.
type Option func(*TavilyClient)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *TavilyClient) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithMaxResults sets the number of results requested per query.
func WithMaxResults(n int) Option {
	return func(c *TavilyClient) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *TavilyClient) {
		c.httpClient = hc
	}
}

// WithRetry sets how many times a transient failure is retried and the
// backoff policy between attempts.
func WithRetry(maxRetries uint64, policy func() backoff.BackOff) Option {
	return func(c *TavilyClient) {
		c.maxRetries = maxRetries
		if policy != nil {
			c.backoff = policy
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *TavilyClient) {
		c.logger = logger
	}
}

// NewTavilyClient creates a client for apiKey.
func NewTavilyClient(apiKey string, opts ...Option) *TavilyClient {
	c := &TavilyClient{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		maxResults: 5,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxRetries: 3,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchRequest struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
	SearchDepth   string `json:"search_depth"`
}

// Search implements Searcher. Rate limits, 5xx answers and network errors
// are retried with exponential backoff; anything else fails immediately.
func (c *TavilyClient) Search(ctx context.Context, query string) (*Response, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is empty")
	}

	payload, err := json.Marshal(searchRequest{
		Query:         query,
		MaxResults:    c.maxResults,
		IncludeAnswer: true,
		SearchDepth:   "basic",
	})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	var body []byte
	attempt := 0
	op := func() error {
		attempt++
		b, err := c.post(ctx, payload)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !se.Temporary() {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Debug("Search attempt failed", "query", query, "attempt", attempt, "error", err)
			return err
		}
		body = b
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.backoff(), c.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	return parseResponse(query, body), nil
}

func (c *TavilyClient) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: msg}
	}
	return body, nil
}

func parseResponse(query string, body []byte) *Response {
	parsed := gjson.ParseBytes(body)
	resp := &Response{
		Query:  query,
		Answer: parsed.Get("answer").String(),
	}
	for _, item := range parsed.Get("results").Array() {
		resp.Results = append(resp.Results, Result{
			Title:   item.Get("title").String(),
			URL:     item.Get("url").String(),
			Content: item.Get("content").String(),
			Score:   item.Get("score").Float(),
		})
	}
	if resp.Results == nil {
		resp.Results = []Result{}
	}
	return resp
}
