// Package places finds points of interest and geocodes addresses.
package places

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

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the Places API (New) root.
const DefaultBaseURL = "https://places.googleapis.com/v1"

// fieldMask limits the response to what a POI needs.
const fieldMask = "places.displayName,places.formattedAddress,places.location,places.types"

const maxBodySize = 2 * 1024 * 1024

// ErrMissingAPIKey is returned when no Places key is configured.
var ErrMissingAPIKey = errors.New("places API key is not configured")

// LatLon is a WGS84 coordinate.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// POI is a candidate location.
type POI struct {
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	Coordinates *LatLon  `json:"coordinates,omitempty"`
	Categories  []string `json:"categories"`
}

// Query is a text search biased toward a circle.
type Query struct {
	Text         string
	Center       LatLon
	RadiusMeters float64
	MaxResults   int
}

// Searcher finds POIs for a natural-language query.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]POI, error)
}

// Client calls Google Places text search.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit caps requests per second across every run sharing the client.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Places client for apiKey.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 10),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type circle struct {
	Center struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"center"`
	Radius float64 `json:"radius"`
}

type textSearchRequest struct {
	TextQuery    string `json:"textQuery"`
	LocationBias struct {
		Circle circle `json:"circle"`
	} `json:"locationBias"`
	MaxResultCount int `json:"maxResultCount,omitempty"`
}

// Search implements Searcher.
func (c *Client) Search(ctx context.Context, q Query) ([]POI, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("places query is empty")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body textSearchRequest
	body.TextQuery = q.Text
	body.LocationBias.Circle.Center.Latitude = q.Center.Lat
	body.LocationBias.Circle.Center.Longitude = q.Center.Lon
	body.LocationBias.Circle.Radius = q.RadiusMeters
	body.MaxResultCount = q.MaxResults

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode places request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("places search: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read places response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("places API error (status %d): %s", resp.StatusCode, gjson.GetBytes(data, "error.message").String())
	}

	pois := parsePlaces(data)
	c.logger.Debug("Places search complete", "query", q.Text, "results", len(pois))
	return pois, nil
}

func parsePlaces(data []byte) []POI {
	places := gjson.GetBytes(data, "places").Array()
	pois := make([]POI, 0, len(places))
	for _, p := range places {
		poi := POI{
			Name:       p.Get("displayName.text").String(),
			Address:    p.Get("formattedAddress").String(),
			Categories: []string{},
		}
		if loc := p.Get("location"); loc.Exists() {
			poi.Coordinates = &LatLon{
				Lat: loc.Get("latitude").Float(),
				Lon: loc.Get("longitude").Float(),
			}
		}
		for _, t := range p.Get("types").Array() {
			poi.Categories = append(poi.Categories, t.String())
		}
		pois = append(pois, poi)
	}
	return pois
}
