// Package history keeps the append-only auto-merge decision log. Every
// pipeline run appends exactly one record; reads return the newest 20
// records for a PR, newest first.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/mergegate/pkg/models"
)

// MaxRecordsPerPR caps the retained decision history per pull request
const MaxRecordsPerPR = 20

// Store is the append-only per-PR decision log
type Store interface {
	// Append records one pipeline run outcome. Oldest records beyond the
	// per-PR cap are evicted.
	Append(ctx context.Context, rec models.DecisionRecord) error
	// List returns records for a PR, newest first, at most MaxRecordsPerPR
	List(ctx context.Context, prNumber int) ([]models.DecisionRecord, error)
}

// MemoryStore is an in-memory Store for tests and single-shot CLI runs
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int][]models.DecisionRecord // newest first
}

// NewMemoryStore creates an empty in-memory history store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int][]models.DecisionRecord)}
}

func (m *MemoryStore) Append(ctx context.Context, rec models.DecisionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.records[rec.PRNumber]
	rows = append([]models.DecisionRecord{rec}, rows...)
	if len(rows) > MaxRecordsPerPR {
		rows = rows[:MaxRecordsPerPR]
	}
	m.records[rec.PRNumber] = rows
	return nil
}

func (m *MemoryStore) List(ctx context.Context, prNumber int) ([]models.DecisionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.records[prNumber]
	out := make([]models.DecisionRecord, len(rows))
	copy(out, rows)
	return out, nil
}
