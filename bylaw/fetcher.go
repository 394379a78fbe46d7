// Package bylaw retrieves zoning bylaw text from the City of Toronto's
// published bylaw amendment pages.
package bylaw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
)

// DefaultBaseURL hosts the bylaw provision pages.
const DefaultBaseURL = "https://www.toronto.ca/zoning/bylaw_amendments"

// DefaultMaxLength caps returned text so it fits comfortably in a prompt.
const DefaultMaxLength = 6000

const maxPageSize = 5 * 1024 * 1024

var (
	// ErrEmptySection is returned when no section reference was supplied.
	ErrEmptySection = errors.New("bylaw section is required")
	// ErrNoText is returned when a page yields no readable text.
	ErrNoText = errors.New("bylaw page contains no text")
)

// TextFetcher returns plain bylaw text for a section reference like "40.10".
// Implementations cap the result at their configured maximum length.
type TextFetcher interface {
	Fetch(ctx context.Context, section string) (string, error)
}

// HTTPError reports a non-200 response from the bylaw site.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("bylaw fetch %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Fetcher downloads and extracts bylaw provision pages.
type Fetcher struct {
	baseURL   string
	maxLength int
	userAgent string
	client    *http.Client
	converter *md.Converter
	logger    *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default client. The default refuses to dial
// private or loopback addresses; a replacement carries no such guard.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithMaxLength sets the character cap on returned text.
func WithMaxLength(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxLength = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a Fetcher for baseURL (DefaultBaseURL when empty).
func NewFetcher(baseURL string, timeout time.Duration, opts ...Option) *Fetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	f := &Fetcher{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		maxLength: DefaultMaxLength,
		userAgent: "civicdraft",
		client:    newSafeClient(timeout),
		converter: converter,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// sectionSlug turns "40.10" into "40_10" as used in page names.
func sectionSlug(section string) string {
	return strings.ReplaceAll(strings.TrimSpace(section), ".", "_")
}

// FetchURL returns the page the text is scraped from.
func (f *Fetcher) FetchURL(section string) string {
	return fmt.Sprintf("%s/ZBL_NewProvision_Chapter%s.htm", f.baseURL, sectionSlug(section))
}

// SourceURL returns the citation URL for a section.
func SourceURL(baseURL, section string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return fmt.Sprintf("%s/ZBL_NewProvision_Section%s.htm", strings.TrimSuffix(baseURL, "/"), sectionSlug(section))
}

// SourceURL returns the citation URL for a section under this fetcher's base.
func (f *Fetcher) SourceURL(section string) string {
	return SourceURL(f.baseURL, section)
}

// Fetch implements TextFetcher.
func (f *Fetcher) Fetch(ctx context.Context, section string) (string, error) {
	if strings.TrimSpace(section) == "" {
		return "", ErrEmptySection
	}

	pageURL := f.FetchURL(section)
	body, err := f.get(ctx, pageURL)
	if err != nil {
		return "", err
	}

	text, method, err := f.extract(body)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", pageURL, err)
	}
	text = truncate(collapseWhitespace(text), f.maxLength)
	if text == "" {
		return "", ErrNoText
	}

	f.logger.Debug("Fetched bylaw text",
		"section", section,
		"url", pageURL,
		"method", method,
		"chars", len([]rune(text)))
	return text, nil
}

func (f *Fetcher) get(ctx context.Context, pageURL string) ([]byte, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid bylaw URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return nil, fmt.Errorf("only HTTPS bylaw URLs are allowed: %s", pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bylaw page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read bylaw page: %w", err)
	}
	if len(body) > maxPageSize {
		return nil, fmt.Errorf("bylaw page too large (exceeds %d bytes)", maxPageSize)
	}
	return body, nil
}

// newSafeClient validates every resolved address so a redirect or DNS
// answer cannot point the fetcher at internal hosts.
func newSafeClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address: %w", err)
		}
		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("DNS lookup failed: %w", err)
		}
		for _, ip := range ips {
			if isPrivateIP(ip.IP) {
				return nil, fmt.Errorf("connection to private IP %s is not allowed", ip.IP)
			}
		}
		for _, ip := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip.IP.String(), port))
			if err == nil {
				return conn, nil
			}
		}
		return nil, fmt.Errorf("failed to connect to any resolved IP for %s", host)
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:           dial,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			if req.URL.Scheme != "https" {
				return fmt.Errorf("redirect to non-HTTPS URL blocked")
			}
			return nil
		},
	}
}

var (
	cgnat    = mustCIDR("100.64.0.0/10")
	v6unique = mustCIDR("fc00::/7")
)

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic("invalid CIDR " + s + ": " + err.Error())
	}
	return n
}

func isPrivateIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		cgnat.Contains(ip) || v6unique.Contains(ip)
}
