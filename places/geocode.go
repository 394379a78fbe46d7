package places

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// DefaultNominatimURL is the public OpenStreetMap geocoder.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// ErrNoMatch is returned when the geocoder knows no such place.
var ErrNoMatch = errors.New("address not found")

// Geocoder resolves an address to a coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (LatLon, error)
}

// Nominatim geocodes through a Nominatim server. The public instance allows
// one request per second, which the limiter enforces across callers.
type Nominatim struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NominatimOption configures a Nominatim geocoder.
type NominatimOption func(*Nominatim)

// WithNominatimHTTPClient sets a custom HTTP client.
func WithNominatimHTTPClient(hc *http.Client) NominatimOption {
	return func(n *Nominatim) {
		n.httpClient = hc
	}
}

// WithNominatimRate overrides the request rate.
func WithNominatimRate(perSecond float64) NominatimOption {
	return func(n *Nominatim) {
		n.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithNominatimLogger sets the logger.
func WithNominatimLogger(logger *slog.Logger) NominatimOption {
	return func(n *Nominatim) {
		n.logger = logger
	}
}

// NewNominatim creates a geocoder. Nominatim's usage policy requires an
// identifying User-Agent.
func NewNominatim(baseURL, userAgent string, opts ...NominatimOption) *Nominatim {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	if userAgent == "" {
		userAgent = "civicdraft"
	}
	n := &Nominatim{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(1), 1),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Geocode implements Geocoder.
func (n *Nominatim) Geocode(ctx context.Context, address string) (LatLon, error) {
	if strings.TrimSpace(address) == "" {
		return LatLon{}, fmt.Errorf("address is empty")
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return LatLon{}, err
	}

	params := url.Values{}
	params.Set("q", address)
	params.Set("format", "jsonv2")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return LatLon{}, err
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return LatLon{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return LatLon{}, fmt.Errorf("read geocoder response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return LatLon{}, fmt.Errorf("geocoder error (status %d)", resp.StatusCode)
	}

	first := gjson.GetBytes(data, "0")
	if !first.Exists() {
		return LatLon{}, fmt.Errorf("%w: %s", ErrNoMatch, address)
	}

	// Nominatim encodes coordinates as strings.
	lat, errLat := strconv.ParseFloat(first.Get("lat").String(), 64)
	lon, errLon := strconv.ParseFloat(first.Get("lon").String(), 64)
	if errLat != nil || errLon != nil {
		return LatLon{}, fmt.Errorf("geocoder returned malformed coordinates for %q", address)
	}

	n.logger.Debug("Geocoded address", "address", address, "lat", lat, "lon", lon)
	return LatLon{Lat: lat, Lon: lon}, nil
}
