package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a simple in-memory history used when no DATABASE_URL is set.
type Memory struct {
	mu    sync.Mutex
	byID  map[string]RouteRecord
	order []string // insertion order, oldest first
}

func NewMemory() *Memory {
	return &Memory{byID: map[string]RouteRecord{}}
}

func (m *Memory) Add(ctx context.Context, rec RouteRecord) (RouteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if _, exists := m.byID[rec.ID]; !exists {
		m.order = append(m.order, rec.ID)
	}
	m.byID[rec.ID] = rec
	return rec, nil
}

func (m *Memory) List(ctx context.Context, cursor string, limit int) ([]RouteRecord, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = defaultLimit
	}
	start := len(m.order) - 1
	if cursor != "" {
		for i := len(m.order) - 1; i >= 0; i-- {
			if m.order[i] == cursor {
				start = i - 1
				break
			}
		}
	}
	out := []RouteRecord{}
	var next string
	for i := start; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.byID[m.order[i]])
		next = m.order[i]
	}
	// nothing older than the last returned item
	if start-len(out) < 0 {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) Get(ctx context.Context, id string) (RouteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return RouteRecord{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}
