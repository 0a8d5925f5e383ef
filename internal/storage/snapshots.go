package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/veriface/internal/config"
)

// SnapshotArchive keeps a JPEG of the representative frame for each
// enrollment in object storage, for audit and manual review. It holds
// images only; embeddings never leave the VectorStore.
type SnapshotArchive struct {
	client *minio.Client
	bucket string
}

func NewSnapshotArchive(cfg config.MinIOConfig) (*SnapshotArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &SnapshotArchive{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (a *SnapshotArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// SaveEnrollment stores the representative frame for one registration.
func (a *SnapshotArchive) SaveEnrollment(ctx context.Context, userID, verificationID string, frame image.Image) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 85}); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	key := fmt.Sprintf("enrollments/%s/%s.jpg", userID, verificationID)
	_, err := a.client.PutObject(ctx, a.bucket, key, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", key, err)
	}
	return nil
}

// GetSnapshot retrieves an archived enrollment frame.
func (a *SnapshotArchive) GetSnapshot(ctx context.Context, userID, verificationID string) ([]byte, error) {
	key := fmt.Sprintf("enrollments/%s/%s.jpg", userID, verificationID)
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	return data, nil
}

// Ping checks object-store connectivity.
func (a *SnapshotArchive) Ping(ctx context.Context) error {
	_, err := a.client.BucketExists(ctx, a.bucket)
	return err
}
