package llm

import (
	"net/http"
	"sort"
	"sync"
)

// Provider adapts one vendor's chat API to Request and Response.
type Provider interface {
	// Name returns the provider identifier used in registry endpoints
	// ("openai", "ollama", "anthropic").
	Name() string

	// BuildURL returns the full completion URL for a configured base URL.
	// An empty base selects the provider default.
	BuildURL(baseURL string) string

	// SetHeaders adds authentication and versioning headers.
	SetHeaders(req *http.Request)

	// BuildRequestBody encodes req for the given model. When req.JSON is set
	// the provider must ask the model for a single JSON document using
	// whatever mechanism the vendor supports.
	BuildRequestBody(model string, req Request) ([]byte, error)

	// ParseResponse decodes a successful response body.
	ParseResponse(body []byte, model string) (*Response, error)
}

var (
	providerRegistry = make(map[string]Provider)
	providerMu       sync.RWMutex
)

// RegisterProvider adds p to the registry, replacing any provider with the same name.
func RegisterProvider(p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerRegistry[p.Name()] = p
}

// GetProvider returns the provider registered under name, or nil.
func GetProvider(name string) Provider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return providerRegistry[name]
}

// ListProviders returns the registered provider names in sorted order.
func ListProviders() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()

	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
