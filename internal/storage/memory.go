package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/your-org/veriface/internal/models"
)

// MemoryStore is an in-process VectorStore with no persistence. It backs
// tests and ephemeral deployments where enrollments may vanish on restart.
type MemoryStore struct {
	mu         sync.RWMutex
	embeddings map[string][]models.FaceEmbedding
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{embeddings: make(map[string][]models.FaceEmbedding)}
}

func (s *MemoryStore) Get(ctx context.Context, userID string) ([]models.FaceEmbedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.embeddings[userID]
	out := make([]models.FaceEmbedding, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *MemoryStore) Put(ctx context.Context, emb models.FaceEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.embeddings[emb.UserID] = append(s.embeddings[emb.UserID], emb)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.embeddings))
	for id := range s.embeddings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Close() error { return nil }
