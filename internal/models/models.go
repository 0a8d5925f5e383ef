package models

import "time"

// EmbeddingVersion tags stored embeddings with the model generation that
// produced them. Vectors are only comparable within one version.
const EmbeddingVersion = "1.0"

// VerificationRequest carries one uploaded video through the pipeline.
// It lives for the duration of a single request.
type VerificationRequest struct {
	VideoData []byte
	UserID    string
	SessionID string
}

// VerificationResult is the immutable outcome of one verification run.
type VerificationResult struct {
	VerificationID string    `json:"verification_id"`
	UserID         string    `json:"user_id,omitempty"`
	Verified       bool      `json:"verified"`
	Confidence     float64   `json:"confidence"`
	LivenessScore  float64   `json:"liveness_score"`
	ProcessingTime float64   `json:"processing_time"`
	Timestamp      time.Time `json:"timestamp"`
	Error          string    `json:"error,omitempty"`
}

// FaceEmbedding is one enrolled face descriptor. Embeddings are append-only:
// an identity accumulates enrollments and none are ever rewritten.
type FaceEmbedding struct {
	UserID    string    `json:"user_id"`
	Vector    []float32 `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
	Version   string    `json:"version"`
}

// LivenessResult scores a frame sequence for live-subject signals.
type LivenessResult struct {
	IsLive     bool    `json:"is_live"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

type VerificationStatus string

const (
	StatusCompleted VerificationStatus = "completed"
	StatusFailed    VerificationStatus = "failed"
	StatusUnknown   VerificationStatus = "unknown"
)

// VerificationRecord is the lightweight status entry served by GET /status.
type VerificationRecord struct {
	ID        string             `json:"verification_id"`
	UserID    string             `json:"user_id,omitempty"`
	Status    VerificationStatus `json:"status"`
	Verified  bool               `json:"verified"`
	Timestamp time.Time          `json:"timestamp"`
}
