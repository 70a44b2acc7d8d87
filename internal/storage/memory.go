package storage

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
)

type memoryImage struct {
	contentType string
	data        []byte
}

// MemoryStore is an ImageStore for STORAGE_DRIVER=memory and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	images map[string]memoryImage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{images: make(map[string]memoryImage)}
}

func (s *MemoryStore) Put(_ context.Context, _, contentType string, r io.Reader) (string, error) {
	data, contentType, err := readImage(contentType, r)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.images[id] = memoryImage{contentType: contentType, data: data}
	s.mu.Unlock()
	return id, nil
}

func (s *MemoryStore) Open(_ context.Context, id string) (io.ReadCloser, string, error) {
	s.mu.RLock()
	img, ok := s.images[id]
	s.mu.RUnlock()
	if !ok {
		return nil, "", ErrImageNotFound
	}
	return nopCloser(img.data), img.contentType, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.images, id)
	s.mu.Unlock()
	return nil
}

// Len reports how many images are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}
