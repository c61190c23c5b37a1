package store

import (
	"context"
	"sync"

	"sweetexp/internal/achievement"
)

// MemoryStore keeps the catalog in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	list  []achievement.Achievement
	saves int
}

// NewMemory returns a store preloaded with list.
func NewMemory(list []achievement.Achievement) *MemoryStore {
	return &MemoryStore{list: append([]achievement.Achievement(nil), list...)}
}

func (m *MemoryStore) Load(context.Context) ([]achievement.Achievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]achievement.Achievement(nil), m.list...), nil
}

func (m *MemoryStore) Save(_ context.Context, list []achievement.Achievement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list = append([]achievement.Achievement(nil), list...)
	m.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *MemoryStore) Path() string { return ":memory:" }

func (m *MemoryStore) Close() error { return nil }
