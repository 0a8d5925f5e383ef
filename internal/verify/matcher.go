package verify

import (
	"context"
	"fmt"

	"github.com/your-org/veriface/internal/storage"
	"github.com/your-org/veriface/internal/vision"
)

// Matcher compares a fresh embedding against an identity's enrollment
// history in the vector store.
type Matcher struct {
	store storage.VectorStore
}

func NewMatcher(store storage.VectorStore) *Matcher {
	return &Matcher{store: store}
}

// MaxSimilarity returns the highest cosine similarity between vector and
// any enrollment for userID. enrolled is false when the identity has no
// prior enrollments, which callers treat as first-time registration.
func (m *Matcher) MaxSimilarity(ctx context.Context, userID string, vector []float32) (similarity float64, enrolled bool, err error) {
	embeddings, err := m.store.Get(ctx, userID)
	if err != nil {
		return 0, false, fmt.Errorf("load enrollments for %q: %w", userID, err)
	}
	if len(embeddings) == 0 {
		return 0, false, nil
	}

	best := 0.0
	for _, emb := range embeddings {
		if sim := vision.CosineSimilarity(vector, emb.Vector); sim > best {
			best = sim
		}
	}

	return best, true, nil
}
