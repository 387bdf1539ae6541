package cartrule

import (
	"context"
	"sync"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// MemoryUsage keeps rule counters in process memory.
type MemoryUsage struct {
	mu        sync.Mutex
	remaining map[pricing.RuleID]int
	used      map[pricing.RuleID]map[string]int
}

// NewMemoryUsage returns an empty counter set.
func NewMemoryUsage() *MemoryUsage {
	return &MemoryUsage{
		remaining: make(map[pricing.RuleID]int),
		used:      make(map[pricing.RuleID]map[string]int),
	}
}

// Seed implements UsageCounter.
func (m *MemoryUsage) Seed(_ context.Context, id pricing.RuleID, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.remaining[id]; !ok {
		m.remaining[id] = quantity
	}
	return nil
}

// Consume implements UsageCounter.
func (m *MemoryUsage) Consume(_ context.Context, id pricing.RuleID, customer string, perUser int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.remaining[id] <= 0 {
		return false, nil
	}
	if perUser > 0 && customer != "" && m.used[id][customer] >= perUser {
		return false, nil
	}
	m.remaining[id]--
	if customer != "" {
		if m.used[id] == nil {
			m.used[id] = make(map[string]int)
		}
		m.used[id][customer]++
	}
	return true, nil
}

// Release implements UsageCounter.
func (m *MemoryUsage) Release(_ context.Context, id pricing.RuleID, customer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remaining[id]++
	if customer != "" && m.used[id][customer] > 0 {
		m.used[id][customer]--
	}
	return nil
}

// Remaining implements UsageCounter.
func (m *MemoryUsage) Remaining(_ context.Context, id pricing.RuleID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remaining[id], nil
}

// Usage implements UsageCounter.
func (m *MemoryUsage) Usage(_ context.Context, id pricing.RuleID, customer string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used[id][customer], nil
}
