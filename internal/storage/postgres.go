package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/veriface/internal/config"
	"github.com/your-org/veriface/internal/models"
)

// PostgresStore is the pgvector-backed VectorStore for deployments that
// already run Postgres. Row-level inserts replace the file store's
// whole-blob rewrites; encryption at rest is the database's concern here.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema creates the enrollment table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context, dim int) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS face_embeddings (
			id         BIGSERIAL PRIMARY KEY,
			user_id    TEXT NOT NULL,
			embedding  vector(%d) NOT NULL,
			version    TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS face_embeddings_user_idx ON face_embeddings (user_id);
	`, dim))
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID string) ([]models.FaceEmbedding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, embedding, version, created_at
		 FROM face_embeddings WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []models.FaceEmbedding
	for rows.Next() {
		var emb models.FaceEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&emb.UserID, &vec, &emb.Version, &emb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		emb.Vector = vec.Slice()
		embeddings = append(embeddings, emb)
	}
	return embeddings, rows.Err()
}

func (s *PostgresStore) Put(ctx context.Context, emb models.FaceEmbedding) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO face_embeddings (user_id, embedding, version, created_at) VALUES ($1, $2, $3, $4)`,
		emb.UserID, pgvector.NewVector(emb.Vector), emb.Version, emb.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM face_embeddings ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
