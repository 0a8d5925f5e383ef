package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/veriface/internal/models"
)

func testEmbedding(userID string, vector []float32) models.FaceEmbedding {
	return models.FaceEmbedding{
		UserID:    userID,
		Vector:    vector,
		CreatedAt: time.Now().UTC(),
		Version:   models.EmbeddingVersion,
	}
}

func TestEncryptedFileStore_EmptySecret(t *testing.T) {
	_, err := NewEncryptedFileStore(t.TempDir(), "")
	assert.Error(t, err)
}

func TestEncryptedFileStore_MissingFileIsEmpty(t *testing.T) {
	store, err := NewEncryptedFileStore(t.TempDir(), "secret")
	require.NoError(t, err)

	embeddings, err := store.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, embeddings)

	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEncryptedFileStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewEncryptedFileStore(dir, "secret")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, testEmbedding("alice", []float32{0.1, 0.2, 0.3})))
	require.NoError(t, store.Put(ctx, testEmbedding("alice", []float32{0.4, 0.5, 0.6})))
	require.NoError(t, store.Put(ctx, testEmbedding("bob", []float32{0.7, 0.8, 0.9})))

	// Reopen from disk with the same secret.
	reopened, err := NewEncryptedFileStore(dir, "secret")
	require.NoError(t, err)

	alice, err := reopened.Get(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, alice[0].Vector)
	assert.Equal(t, []float32{0.4, 0.5, 0.6}, alice[1].Vector)
	assert.Equal(t, models.EmbeddingVersion, alice[0].Version)

	ids, err := reopened.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, ids)
}

func TestEncryptedFileStore_WrongSecretStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewEncryptedFileStore(dir, "secret")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, testEmbedding("alice", []float32{1, 2, 3})))

	// A different secret cannot authenticate the blob. The store reports
	// the corruption and starts empty instead of refusing to run.
	reopened, err := NewEncryptedFileStore(dir, "other-secret")
	require.NoError(t, err)

	embeddings, err := reopened.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, embeddings)
}

func TestEncryptedFileStore_TamperedFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewEncryptedFileStore(dir, "secret")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, testEmbedding("alice", []float32{1, 2, 3})))

	path := filepath.Join(dir, storeFileName)
	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	reopened, err := NewEncryptedFileStore(dir, "secret")
	require.NoError(t, err)

	embeddings, err := reopened.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, embeddings)
}

func TestEncryptedFileStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store, err := NewEncryptedFileStore(t.TempDir(), "secret")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, testEmbedding("alice", []float32{1, 2, 3})))

	first, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	first[0] = testEmbedding("mallory", []float32{9, 9, 9})

	second, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", second[0].UserID)
}

func TestOpenBlob_Failures(t *testing.T) {
	key, err := deriveKey("secret")
	require.NoError(t, err)

	sealed, err := sealBlob(key, []byte(`{"hello":"world"}`))
	require.NoError(t, err)

	cases := map[string][]byte{
		"truncated": sealed[:4],
		"tampered":  append(append([]byte{}, sealed[:len(sealed)-1]...), sealed[len(sealed)-1]^0x01),
		"empty":     {},
	}

	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := openBlob(key, blob)
			require.Error(t, err)
			var de *DecryptionError
			assert.ErrorAs(t, err, &de)
		})
	}
}

func TestSealOpenBlob_RoundTrip(t *testing.T) {
	key, err := deriveKey("secret")
	require.NoError(t, err)

	plaintext := []byte("embedding payload")
	sealed, err := sealBlob(key, plaintext)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "embedding")

	opened, err := openBlob(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, testEmbedding("alice", []float32{1})))
	require.NoError(t, store.Put(ctx, testEmbedding("alice", []float32{2})))

	embeddings, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, embeddings, 2)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, ids)
}
