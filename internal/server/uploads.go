package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/ratecon-intake/internal/common"
)

// UploadStore keeps uploaded documents in memory until their worker fetches them.
// It implements pipeline.DocumentSource; Fetch hands a document out once.
type UploadStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func NewUploadStore() *UploadStore {
	return &UploadStore{files: map[string][]byte{}}
}

// Put stores data and returns its reference.
func (s *UploadStore) Put(data []byte) string {
	ref := "upload:" + uuid.NewString()
	s.mu.Lock()
	s.files[ref] = data
	s.mu.Unlock()
	return ref
}

func (s *UploadStore) Fetch(_ context.Context, ref string) (io.ReadCloser, error) {
	s.mu.Lock()
	data, ok := s.files[ref]
	delete(s.files, ref)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("upload %q: %w", ref, common.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete drops a document that will never be fetched.
func (s *UploadStore) Delete(ref string) {
	s.mu.Lock()
	delete(s.files, ref)
	s.mu.Unlock()
}

func (s *UploadStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}
