package dto

import "github.com/your-org/veriface/internal/models"

// ErrorResponse is the uniform error envelope: a human-readable message
// and a machine-readable code, nothing else.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StatusResponse answers GET /status/:id.
type StatusResponse struct {
	VerificationID string `json:"verification_id"`
	Status         string `json:"status"`
	Verified       bool   `json:"verified"`
	Timestamp      string `json:"timestamp"`
}

// WSEvent is a WebSocket message carrying one completed verification.
type WSEvent struct {
	Type   string                    `json:"type"` // verification_completed | registration_completed
	UserID string                    `json:"user_id,omitempty"`
	Data   models.VerificationResult `json:"data"`
}
