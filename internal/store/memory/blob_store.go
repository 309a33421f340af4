package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/alanyoungcy/livebet/internal/domain"
)

// BlobStore implements domain.BlobWriter and domain.BlobReader in memory.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewBlobStore creates an empty BlobStore.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string][]byte)}
}

// Put stores the contents of data under path.
func (s *BlobStore) Put(_ context.Context, path string, data io.Reader, _ string) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("memory: read blob %s: %w", path, err)
	}
	s.mu.Lock()
	s.blobs[path] = raw
	s.mu.Unlock()
	return nil
}

// Get returns a reader over the blob at path.
func (s *BlobStore) Get(_ context.Context, path string) (io.ReadCloser, error) {
	s.mu.RLock()
	raw, ok := s.blobs[path]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memory: blob %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}
