package storage

import (
	"context"

	"github.com/your-org/veriface/internal/models"
)

// VectorStore holds enrolled face embeddings per identity. Implementations
// are injected into the pipeline; nothing in this package is a singleton.
//
// Embeddings are append-only: Put adds an enrollment, nothing removes or
// rewrites one.
type VectorStore interface {
	// Get returns all enrollments for an identity, oldest first. An
	// unknown identity is an empty slice, not an error.
	Get(ctx context.Context, userID string) ([]models.FaceEmbedding, error)

	// Put appends one enrollment.
	Put(ctx context.Context, emb models.FaceEmbedding) error

	// List returns every enrolled identity.
	List(ctx context.Context) ([]string, error)

	Close() error
}
