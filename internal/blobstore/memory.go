// Package blobstore archives raw fetched documents. The memory provider
// backs tests and single-node runs; the GCS provider backs production.
package blobstore

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-process blob store.
type Memory struct {
	prefix string

	mu    sync.RWMutex
	blobs map[string][]byte
	types map[string]string
}

// NewMemory builds an empty memory store.
func NewMemory(prefix string) *Memory {
	return &Memory{
		prefix: strings.Trim(prefix, "/"),
		blobs:  make(map[string][]byte),
		types:  make(map[string]string),
	}
}

// Put stores a copy of data and returns a mem:// URI.
func (m *Memory) Put(_ context.Context, path, contentType string, data []byte) (string, error) {
	key := m.key(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	m.types[key] = contentType
	return "mem://" + key, nil
}

// Get returns a stored blob, for diagnostics and tests.
func (m *Memory) Get(path string) ([]byte, bool) {
	key := m.key(path)
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[key]
	return data, ok
}

// Len reports the number of stored blobs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

func (m *Memory) key(path string) string {
	path = strings.TrimPrefix(path, "/")
	if m.prefix == "" {
		return path
	}
	return m.prefix + "/" + path
}
