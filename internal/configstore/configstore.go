// Package configstore persists typed configuration blobs keyed by a
// unique type value. Stores are injected; callers never reach for a
// process-wide singleton.
package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mergegate/pkg/models"
)

// ConfigType keys a stored configuration blob
type ConfigType string

const (
	TypeGitHub     ConfigType = "github"
	TypeJira       ConfigType = "jira"
	TypeAI         ConfigType = "ai"
	TypeThresholds ConfigType = "thresholds"
)

// Store is typed key/value persistence for configuration blobs
type Store interface {
	// Get returns the stored blob for the type, or nil when absent
	Get(ctx context.Context, t ConfigType) ([]byte, error)
	// Save upserts the blob for the type
	Save(ctx context.Context, t ConfigType, blob []byte) error
}

// HostingConfig is the stored hosting credential blob
type HostingConfig struct {
	BaseURL string `json:"base_url"`
	Owner   string `json:"owner"`
	Repo    string `json:"repo"`
	Token   string `json:"token"`
}

// AIConfig is the stored AI provider settings blob
type AIConfig struct {
	Provider    string  `json:"provider"`
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url,omitempty"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature,omitempty"`
}

// TicketConfig is the stored ticket-tracker credential blob
type TicketConfig struct {
	BaseURL string `json:"base_url"`
	User    string `json:"user"`
	Token   string `json:"token"`
}

// LoadThresholds reads the auto-merge threshold blob. A missing blob is a
// soft no-op: auto-merge comes back disabled, not as an error.
func LoadThresholds(ctx context.Context, s Store) (models.AutoMergeConfig, error) {
	blob, err := s.Get(ctx, TypeThresholds)
	if err != nil {
		return models.AutoMergeConfig{}, fmt.Errorf("load thresholds: %w", err)
	}
	if blob == nil {
		return models.AutoMergeConfig{Mode: models.ModeAtMost, AllowFallbackScore: true}, nil
	}

	var cfg models.AutoMergeConfig
	if err := json.Unmarshal(blob, &cfg); err != nil {
		return models.AutoMergeConfig{}, fmt.Errorf("decode thresholds: %w", err)
	}
	if cfg.Mode == "" {
		cfg.Mode = models.ModeAtMost
	}
	return cfg, nil
}

// SaveThresholds writes the auto-merge threshold blob
func SaveThresholds(ctx context.Context, s Store, cfg models.AutoMergeConfig) error {
	blob, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode thresholds: %w", err)
	}
	return s.Save(ctx, TypeThresholds, blob)
}

// Decode unmarshals a stored blob into target, reporting absence
func Decode(ctx context.Context, s Store, t ConfigType, target interface{}) (bool, error) {
	blob, err := s.Get(ctx, t)
	if err != nil {
		return false, err
	}
	if blob == nil {
		return false, nil
	}
	if err := json.Unmarshal(blob, target); err != nil {
		return false, fmt.Errorf("decode %s config: %w", t, err)
	}
	return true, nil
}

// MemoryStore is an in-memory Store for tests and single-shot CLI runs
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[ConfigType][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[ConfigType][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, t ConfigType) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.blobs[t]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, nil
}

func (m *MemoryStore) Save(ctx context.Context, t ConfigType, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(blob))
	copy(stored, blob)
	m.blobs[t] = stored
	return nil
}
