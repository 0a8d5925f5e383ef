package verify

import (
	"sync"
	"time"

	"github.com/your-org/veriface/internal/models"
)

// RecordTracker keeps recent verification outcomes in memory so the
// status endpoint can answer for them. Entries expire after a TTL and the
// tracker is capped; this is a convenience window, not durable history.
type RecordTracker struct {
	mu      sync.RWMutex
	records map[string]models.VerificationRecord
	ttl     time.Duration
	max     int
}

func NewRecordTracker(ttl time.Duration, max int) *RecordTracker {
	return &RecordTracker{
		records: make(map[string]models.VerificationRecord),
		ttl:     ttl,
		max:     max,
	}
}

// Track stores the outcome of a completed run.
func (t *RecordTracker) Track(result *models.VerificationResult) {
	status := models.StatusCompleted
	if result.Error != "" {
		status = models.StatusFailed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked()

	t.records[result.VerificationID] = models.VerificationRecord{
		ID:        result.VerificationID,
		UserID:    result.UserID,
		Status:    status,
		Verified:  result.Verified,
		Timestamp: result.Timestamp,
	}
}

// Get returns the record for id, if still within the retention window.
func (t *RecordTracker) Get(id string) (models.VerificationRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[id]
	if !ok || time.Since(rec.Timestamp) > t.ttl {
		return models.VerificationRecord{}, false
	}
	return rec, true
}

// pruneLocked drops expired entries, then evicts oldest-first if the
// tracker is still over capacity. Caller holds the write lock.
func (t *RecordTracker) pruneLocked() {
	now := time.Now()
	for id, rec := range t.records {
		if now.Sub(rec.Timestamp) > t.ttl {
			delete(t.records, id)
		}
	}

	for len(t.records) >= t.max {
		oldestID := ""
		var oldest time.Time
		for id, rec := range t.records {
			if oldestID == "" || rec.Timestamp.Before(oldest) {
				oldestID = id
				oldest = rec.Timestamp
			}
		}
		delete(t.records, oldestID)
	}
}
