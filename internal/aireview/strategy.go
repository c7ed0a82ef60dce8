// Package aireview builds prompts, dispatches to pluggable AI provider
// transports, and normalizes heterogeneous responses into structured
// review results. Parse failures never surface as errors: a default
// result with fixed scores carries the run forward instead.
package aireview

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
)

// Config selects and authenticates one AI provider
type Config struct {
	Provider    string  `json:"provider"`
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url,omitempty"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Strategy is one provider transport. Each provider has its own endpoint
// URL, its own authentication header convention, and its own response
// envelope; ExtractText normalizes the envelope to plain text.
type Strategy interface {
	Name() string
	BuildRequest(ctx context.Context, cfg Config, prompt string) (*http.Request, error)
	ExtractText(body []byte) (string, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Strategy)
)

// Register adds a provider strategy to the dispatch registry
func Register(s Strategy) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Name()] = s
}

// Lookup returns the strategy for a provider id
func Lookup(provider string) (Strategy, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	s, ok := registry[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
	return s, nil
}

// Providers returns the registered provider ids, sorted
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
