package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

type memoryObject struct {
	data     []byte
	modified time.Time
}

// MemoryStorage keeps objects in process. Used by tests and the CLI.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	now     func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string]memoryObject), now: time.Now}
}

func (m *MemoryStorage) Store(_ context.Context, reader io.Reader, key string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read object: %w", err)
	}
	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, modified: m.now()}
	m.mu.Unlock()
	return key, nil
}

func (m *MemoryStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("failed to get %s: %w", key, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) CleanupBefore(_ context.Context, threshold time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, obj := range m.objects {
		if obj.modified.Before(threshold) {
			delete(m.objects, key)
		}
	}
	return nil
}
