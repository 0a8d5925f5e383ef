package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/veriface/internal/api/ws"
	"github.com/your-org/veriface/internal/models"
	"github.com/your-org/veriface/internal/queue"
	"github.com/your-org/veriface/internal/verify"
	"github.com/your-org/veriface/pkg/dto"
)

const (
	minVideoSize = 1024
	maxVideoSize = 50 * 1024 * 1024
)

var (
	userIDPattern         = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	verificationIDPattern = regexp.MustCompile(`^ver_[A-Za-z0-9]{10,30}$`)

	allowedMIMETypes = map[string]bool{
		"video/webm":      true,
		"video/mp4":       true,
		"video/avi":       true,
		"video/mov":       true,
		"video/quicktime": true,
		"image/jpeg":      true,
		"image/png":       true,
	}
)

// VerificationHandler serves the biometric endpoints. The orchestrator
// does the actual work; the handler owns validation, the outer deadline,
// and fanning the outcome to the record tracker, WebSocket hub, and
// result stream.
type VerificationHandler struct {
	orch     *verify.Orchestrator
	records  *verify.RecordTracker
	hub      *ws.Hub
	producer *queue.Producer // optional
	timeout  time.Duration
}

func NewVerificationHandler(orch *verify.Orchestrator, records *verify.RecordTracker, hub *ws.Hub, producer *queue.Producer, timeout time.Duration) *VerificationHandler {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &VerificationHandler{
		orch:     orch,
		records:  records,
		hub:      hub,
		producer: producer,
		timeout:  timeout,
	}
}

// Verify handles POST /verify.
func (h *VerificationHandler) Verify(c *gin.Context) {
	req, ok := h.parseUpload(c, false)
	if !ok {
		return
	}

	result, err := h.runWithTimeout(c, req, h.orch.Verify)
	if err != nil {
		h.respondError(c, result, err, "Verification")
		return
	}

	h.records.Track(result)
	h.publish(c.Request.Context(), "verification_completed", req.SessionID, result)

	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

// Register handles POST /register.
func (h *VerificationHandler) Register(c *gin.Context) {
	req, ok := h.parseUpload(c, true)
	if !ok {
		return
	}

	result, err := h.runWithTimeout(c, req, h.orch.Register)
	if err != nil {
		h.respondError(c, result, err, "Registration")
		return
	}

	h.records.Track(result)
	h.publish(c.Request.Context(), "registration_completed", req.SessionID, result)

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Face registered successfully",
		"user_id":   req.UserID,
		"timestamp": result.Timestamp.Format(time.RFC3339),
	})
}

// Status handles GET /status/:id.
func (h *VerificationHandler) Status(c *gin.Context) {
	id := c.Param("id")
	if !verificationIDPattern.MatchString(id) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "Invalid verification ID format",
			Code:  "INVALID_VERIFICATION_ID",
		})
		return
	}

	rec, ok := h.records.Get(id)
	if !ok {
		c.JSON(http.StatusOK, dto.StatusResponse{
			VerificationID: id,
			Status:         string(models.StatusUnknown),
			Verified:       false,
			Timestamp:      time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	c.JSON(http.StatusOK, dto.StatusResponse{
		VerificationID: rec.ID,
		Status:         string(rec.Status),
		Verified:       rec.Verified,
		Timestamp:      rec.Timestamp.Format(time.RFC3339),
	})
}

// parseUpload validates the multipart form and builds the request.
// All validation completes before any pipeline work starts.
func (h *VerificationHandler) parseUpload(c *gin.Context, userIDRequired bool) (*models.VerificationRequest, bool) {
	fileHeader, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "Video file is required",
			Code:  "MISSING_VIDEO_FILE",
		})
		return nil, false
	}

	if fileHeader.Size <= minVideoSize || fileHeader.Size > maxVideoSize {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "Video file size must be between 1KB and 50MB",
			Code:  "INVALID_VIDEO_FILE",
		})
		return nil, false
	}

	if contentType := fileHeader.Header.Get("Content-Type"); !allowedMIMETypes[contentType] {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "Unsupported video format",
			Code:  "INVALID_VIDEO_FILE",
		})
		return nil, false
	}

	userID := c.PostForm("user_id")
	if userID == "" && userIDRequired {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "User ID is required",
			Code:  "MISSING_USER_ID",
		})
		return nil, false
	}
	if userID != "" && !userIDPattern.MatchString(userID) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "Invalid user ID format",
			Code:  "INVALID_USER_ID",
		})
		return nil, false
	}

	sessionID := c.PostForm("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "Could not read uploaded file",
			Code:  "INVALID_FORM_DATA",
		})
		return nil, false
	}
	defer file.Close()

	videoData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "Could not read uploaded file",
			Code:  "INVALID_FORM_DATA",
		})
		return nil, false
	}

	return &models.VerificationRequest{
		VideoData: videoData,
		UserID:    userID,
		SessionID: sessionID,
	}, true
}

type pipelineFunc func(ctx context.Context, req *models.VerificationRequest) (*models.VerificationResult, error)

// runWithTimeout enforces the outer request budget. On expiry the caller
// gets a timeout response immediately; the pipeline goroutine finishes
// on its own and its result is discarded.
func (h *VerificationHandler) runWithTimeout(c *gin.Context, req *models.VerificationRequest, fn pipelineFunc) (*models.VerificationResult, error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	type outcome struct {
		result *models.VerificationResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := fn(ctx, req)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, &verify.TimeoutError{Stage: verify.StageRequest}
	}
}

func (h *VerificationHandler) respondError(c *gin.Context, result *models.VerificationResult, err error, operation string) {
	if result != nil {
		h.records.Track(result)
	}

	var te *verify.TimeoutError
	if errors.As(err, &te) {
		code := "VERIFICATION_TIMEOUT"
		if operation == "Registration" {
			code = "REGISTRATION_TIMEOUT"
		}
		c.JSON(http.StatusRequestTimeout, dto.ErrorResponse{
			Error: operation + " timed out",
			Code:  code,
		})
		return
	}

	code := "VERIFICATION_FAILED"
	if operation == "Registration" {
		code = "REGISTRATION_FAILED"
	}
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
		Error: operation + " failed",
		Code:  code,
	})
}

// publish fans a completed result out to WebSocket clients and, when
// configured, to the result stream. Both are best-effort.
func (h *VerificationHandler) publish(ctx context.Context, eventType, sessionID string, result *models.VerificationResult) {
	if h.hub != nil {
		h.hub.BroadcastEvent(&dto.WSEvent{
			Type:   eventType,
			UserID: result.UserID,
			Data:   *result,
		})
	}

	if h.producer != nil {
		if err := h.producer.PublishResult(ctx, sessionID, result); err != nil {
			slog.Warn("publish verification result",
				"verification_id", result.VerificationID, "error", err)
		}
	}
}
