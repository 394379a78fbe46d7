package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quickRetry(n uint64) Option {
	return WithRetry(n, func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) })
}

func TestTavilySearch(t *testing.T) {
	var got searchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer tvly-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{
			"query": "Toronto bike lane policy",
			"answer": "Toronto's Cycling Network Plan adds 100 km of lanes.",
			"results": [
				{"title": "Cycling Network Plan", "url": "https://www.toronto.ca/cycling", "content": "Plan details", "score": 0.92},
				{"title": "Duplicate", "url": "https://www.toronto.ca/cycling", "content": "Same page", "score": 0.5},
				{"title": "Bike lanes", "url": "https://example.org/lanes", "content": "News", "score": 0.4}
			]
		}`))
	}))
	defer server.Close()

	c := NewTavilyClient("tvly-test", WithBaseURL(server.URL), WithMaxResults(3))
	resp, err := c.Search(context.Background(), "  Toronto bike lane policy ")
	require.NoError(t, err)

	assert.Equal(t, "Toronto bike lane policy", got.Query)
	assert.Equal(t, 3, got.MaxResults)
	assert.True(t, got.IncludeAnswer)

	assert.Equal(t, "Toronto bike lane policy", resp.Query)
	assert.Equal(t, "Toronto's Cycling Network Plan adds 100 km of lanes.", resp.Answer)
	require.Len(t, resp.Results, 3)
	assert.InDelta(t, 0.92, resp.Results[0].Score, 0.0001)
	assert.Equal(t, []string{"https://www.toronto.ca/cycling", "https://example.org/lanes"}, resp.Sources())
}

func TestTavilyRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"results": []}`))
	}))
	defer server.Close()

	c := NewTavilyClient("k", WithBaseURL(server.URL), quickRetry(3))
	resp, err := c.Search(context.Background(), "parks")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Empty(t, resp.Results)
	assert.NotNil(t, resp.Results)
}

func TestTavilyPermanentFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail": "invalid key"}`))
	}))
	defer server.Close()

	c := NewTavilyClient("k", WithBaseURL(server.URL), quickRetry(3))
	_, err := c.Search(context.Background(), "parks")

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTavilyGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewTavilyClient("k", WithBaseURL(server.URL), quickRetry(2))
	_, err := c.Search(context.Background(), "parks")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTavilyValidation(t *testing.T) {
	_, err := NewTavilyClient("").Search(context.Background(), "parks")
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = NewTavilyClient("k").Search(context.Background(), "   ")
	assert.Error(t, err)
}
