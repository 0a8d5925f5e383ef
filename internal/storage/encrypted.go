package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/your-org/veriface/internal/models"
	"github.com/your-org/veriface/internal/observability"
)

const storeFileName = "embeddings.enc"

// EncryptedFileStore persists the whole identity-to-embeddings map as one
// AES-256-GCM blob on disk. The decrypted map lives in memory behind a
// single read-write lock; every Put rewrites and re-encrypts the full
// structure under the exclusive lock. Coarse, but correct at expected
// enrollment volume.
type EncryptedFileStore struct {
	mu         sync.RWMutex
	embeddings map[string][]models.FaceEmbedding
	key        []byte
	path       string
}

// NewEncryptedFileStore derives the encryption key and loads any existing
// store file from dir. A missing file is an empty store. A file that fails
// to decrypt or parse is reported loudly and treated as empty: the service
// chooses availability over halting on corrupt history.
func NewEncryptedFileStore(dir, secret string) (*EncryptedFileStore, error) {
	if secret == "" {
		return nil, fmt.Errorf("encryption secret must not be empty")
	}

	key, err := deriveKey(secret)
	if err != nil {
		return nil, err
	}

	s := &EncryptedFileStore{
		embeddings: make(map[string][]models.FaceEmbedding),
		key:        key,
		path:       filepath.Join(dir, storeFileName),
	}

	if err := s.load(); err != nil {
		observability.StoreCorruptions.Inc()
		slog.Error("embedding store unreadable, starting empty; enrollments in the old file are lost until the file is restored",
			"path", s.path, "error", err)
	}

	return s, nil
}

func (s *EncryptedFileStore) load() error {
	blob, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read store file: %w", err)
	}

	plaintext, err := openBlob(s.key, blob)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(plaintext, &s.embeddings); err != nil {
		return fmt.Errorf("parse store payload: %w", err)
	}

	return nil
}

func (s *EncryptedFileStore) Get(ctx context.Context, userID string) ([]models.FaceEmbedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.embeddings[userID]
	out := make([]models.FaceEmbedding, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *EncryptedFileStore) Put(ctx context.Context, emb models.FaceEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.embeddings[emb.UserID] = append(s.embeddings[emb.UserID], emb)

	if err := s.persistLocked(); err != nil {
		// Roll back so memory and disk stay consistent.
		enrollments := s.embeddings[emb.UserID]
		s.embeddings[emb.UserID] = enrollments[:len(enrollments)-1]
		return err
	}

	return nil
}

func (s *EncryptedFileStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.embeddings))
	for id := range s.embeddings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *EncryptedFileStore) Close() error { return nil }

// persistLocked serializes, encrypts, and atomically replaces the store
// file. Caller holds the write lock.
func (s *EncryptedFileStore) persistLocked() error {
	plaintext, err := json.Marshal(s.embeddings)
	if err != nil {
		return fmt.Errorf("serialize store: %w", err)
	}

	blob, err := sealBlob(s.key, plaintext)
	if err != nil {
		return fmt.Errorf("encrypt store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("write store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}

	return nil
}
