// Package stats keeps running per-type detection counters. Only counts are
// stored; matched values never leave the process.
package stats

import (
	"context"
	"sort"
	"sync"

	"github.com/raaihank/datacloak/internal/privacy"
)

// Recorder accumulates detection counts across requests
type Recorder interface {
	Record(ctx context.Context, counts map[privacy.PIIType]int) error
	Totals(ctx context.Context) (*Totals, error)
	Close() error
}

// Totals is a snapshot of the accumulated counters
type Totals struct {
	Requests int64            `json:"requests"`
	Items    int64            `json:"pii_items"`
	ByType   map[string]int64 `json:"by_type"`
}

// Types returns the recorded type names in sorted order
func (t *Totals) Types() []string {
	types := make([]string, 0, len(t.ByType))
	for k := range t.ByType {
		types = append(types, k)
	}
	sort.Strings(types)
	return types
}

func newTotals() *Totals {
	totals := &Totals{ByType: make(map[string]int64)}
	for _, piiType := range privacy.AllTypes() {
		totals.ByType[string(piiType)] = 0
	}
	return totals
}

// MemoryStore is an in-process Recorder used when no Redis is configured
type MemoryStore struct {
	mu     sync.Mutex
	totals *Totals
}

// NewMemoryStore creates an empty in-process recorder
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{totals: newTotals()}
}

// Record adds one request and its per-type counts
func (m *MemoryStore) Record(_ context.Context, counts map[privacy.PIIType]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totals.Requests++
	for piiType, n := range counts {
		m.totals.ByType[string(piiType)] += int64(n)
		m.totals.Items += int64(n)
	}
	return nil
}

// Totals returns a copy of the current counters
func (m *MemoryStore) Totals(_ context.Context) (*Totals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := &Totals{
		Requests: m.totals.Requests,
		Items:    m.totals.Items,
		ByType:   make(map[string]int64, len(m.totals.ByType)),
	}
	for k, v := range m.totals.ByType {
		snapshot.ByType[k] = v
	}
	return snapshot, nil
}

// Close is a no-op
func (m *MemoryStore) Close() error { return nil }
