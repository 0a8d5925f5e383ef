package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/veriface/internal/storage"
	"github.com/your-org/veriface/pkg/dto"
)

// EnrollmentHandler serves archived enrollment snapshots for audit and
// manual review.
type EnrollmentHandler struct {
	snapshots *storage.SnapshotArchive
}

func NewEnrollmentHandler(snapshots *storage.SnapshotArchive) *EnrollmentHandler {
	return &EnrollmentHandler{snapshots: snapshots}
}

// Snapshot handles GET /enrollments/:user_id/:id/snapshot.
func (h *EnrollmentHandler) Snapshot(c *gin.Context) {
	if h.snapshots == nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: "Snapshot archive is not configured",
			Code:  "SNAPSHOTS_DISABLED",
		})
		return
	}

	userID := c.Param("user_id")
	id := c.Param("id")
	if !userIDPattern.MatchString(userID) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "Invalid user ID format",
			Code:  "INVALID_USER_ID",
		})
		return
	}
	if !verificationIDPattern.MatchString(id) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "Invalid verification ID format",
			Code:  "INVALID_VERIFICATION_ID",
		})
		return
	}

	data, err := h.snapshots.GetSnapshot(c.Request.Context(), userID, id)
	if err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: "Snapshot not found",
			Code:  "SNAPSHOT_NOT_FOUND",
		})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}
