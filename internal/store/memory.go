package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"poolstate/internal/fault"
)

// MemoryBackend keeps entries in a map. Values are copied on the way in and out.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]Entry
	last    uint64
	hasLast bool
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]Entry)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	return e.Clone(), true, nil
}

func (m *MemoryBackend) Iterate(ctx context.Context, prefix string, fn func(Entry) error) error {
	m.mu.RLock()
	matched := make([]Entry, 0)
	for k, e := range m.entries {
		if strings.HasPrefix(k, prefix) {
			matched = append(matched, e.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].Key < matched[j].Key })
	for _, e := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryBackend) LastBlock(_ context.Context) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last, m.hasLast, nil
}

func (m *MemoryBackend) Commit(_ context.Context, block uint64, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasLast && block <= m.last {
		return fmt.Errorf("block %d, last committed %d: %w", block, m.last, fault.ErrStaleBlock)
	}
	for _, e := range entries {
		m.entries[e.Key] = e.Clone()
	}
	m.last = block
	m.hasLast = true
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// snapshot returns every entry in key order with the last block.
func (m *MemoryBackend) snapshot() ([]Entry, uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, m.last, m.hasLast
}

func (m *MemoryBackend) restore(entries []Entry, last uint64, hasLast bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]Entry, len(entries))
	for _, e := range entries {
		m.entries[e.Key] = e.Clone()
	}
	m.last = last
	m.hasLast = hasLast
}
