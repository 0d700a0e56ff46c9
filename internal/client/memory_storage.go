package client

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// MemoryStorage is the StorageClient used when R2 is not configured. It keeps
// blobs in memory so the service still runs in development and in tests.
type MemoryStorage struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStorage creates an empty in-memory blob store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{blobs: make(map[string][]byte)}
}

func (m *MemoryStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read upload body: %w", err)
	}
	m.mu.Lock()
	m.blobs[key] = data
	m.mu.Unlock()
	return m.GetPublicURL(key), nil
}

func (m *MemoryStorage) Download(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.blobs[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.blobs, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return m.GetPublicURL(key), nil
}

func (m *MemoryStorage) GetPublicURL(key string) string {
	return "memory://" + key
}
