package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryPut(t *testing.T) {
	t.Parallel()

	m := NewMemory("raw")
	uri, err := m.Put(context.Background(), "example.com/2026-03-15/doc1", "text/html", []byte("<html/>"))
	require.NoError(t, err)
	require.Equal(t, "mem://raw/example.com/2026-03-15/doc1", uri)

	data, ok := m.Get("example.com/2026-03-15/doc1")
	require.True(t, ok)
	require.Equal(t, []byte("<html/>"), data)
	require.Equal(t, 1, m.Len())
}

func TestMemoryPutCopiesData(t *testing.T) {
	t.Parallel()

	m := NewMemory("")
	payload := []byte("original")
	_, err := m.Put(context.Background(), "doc", "text/plain", payload)
	require.NoError(t, err)

	payload[0] = 'X'
	data, ok := m.Get("doc")
	require.True(t, ok)
	require.Equal(t, []byte("original"), data)
}
