package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dharsanguruparan/imagefilter/internal/pipeline"
)

// ErrNotFound is returned for unknown blob keys.
var ErrNotFound = errors.New("object not found")

var _ pipeline.Blobs = (*MemoryBlobs)(nil)

// MemoryBlobs is an in-process object store with the same key layout as the
// S3 store.
type MemoryBlobs struct {
	mu        sync.RWMutex
	originals map[string][]byte
	generated map[string][]byte
}

func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{
		originals: make(map[string][]byte),
		generated: make(map[string][]byte),
	}
}

func (b *MemoryBlobs) UploadOriginal(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.originals[key] = data
	return nil
}

func (b *MemoryBlobs) DownloadOriginal(_ context.Context, key string) ([]byte, error) {
	return b.get(b.originals, key)
}

func (b *MemoryBlobs) RemoveOriginal(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.originals, key)
	return nil
}

func (b *MemoryBlobs) UploadGenerated(_ context.Context, key string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generated[key] = bytes.Clone(data)
	return nil
}

func (b *MemoryBlobs) DownloadGenerated(_ context.Context, key string) ([]byte, error) {
	return b.get(b.generated, key)
}

// PresignGeneratedURL returns a memory:// reference; there is nothing to
// sign in-process.
func (b *MemoryBlobs) PresignGeneratedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := b.get(b.generated, key); err != nil {
		return "", err
	}
	return fmt.Sprintf("memory://generated/%s?ttl=%s", key, ttl), nil
}

func (b *MemoryBlobs) get(m map[string][]byte, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return bytes.Clone(data), nil
}
