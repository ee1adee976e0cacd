// Package session stores the bearer credential used by the transport
// client. All backends keep a single token under the well-known key
// TokenKey.
package session

import (
	"context"
	"sync"
)

// TokenKey is the storage key of the bearer token in every backend.
const TokenKey = "auth_token"

// Credentials is the read/write/clear capability injected into the
// transport client.
type Credentials interface {
	// Token returns the stored token, or "" when none is stored.
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	Clear(ctx context.Context) error
	// Invalidate clears the stored token only if it still equals token and
	// reports whether it did. Concurrent callers holding the same stale
	// token see true exactly once.
	Invalidate(ctx context.Context, token string) (bool, error)
}

// Memory keeps the token in process memory. Used by tests and by the CLI
// when no persistent backend is configured.
type Memory struct {
	mu    sync.Mutex
	token string
}

func NewMemory(token string) *Memory { return &Memory{token: token} }

func (m *Memory) Token(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *Memory) SetToken(_ context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}

func (m *Memory) Invalidate(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token == "" || m.token != token {
		return false, nil
	}
	m.token = ""
	return true, nil
}
