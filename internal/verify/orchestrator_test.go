package verify

import (
	"context"
	"errors"
	"image"
	"image/color"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/veriface/internal/models"
	"github.com/your-org/veriface/internal/storage"
	"github.com/your-org/veriface/internal/vision"
)

// stubFrames returns canned frames, optionally after a delay.
type stubFrames struct {
	frames []image.Image
	delay  time.Duration
	err    error
}

func (s *stubFrames) Name() string { return "stub" }

func (s *stubFrames) Extract(ctx context.Context, video []byte) ([]image.Image, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.frames, s.err
}

// stubVision returns a fixed embedding for every frame, optionally slowly.
type stubVision struct {
	vector     []float32
	detections []vision.Detection
	embedDelay time.Duration
}

func (s *stubVision) Detect(img image.Image) ([]vision.Detection, error) {
	return s.detections, nil
}

func (s *stubVision) Embed(img image.Image, bbox [4]float32) ([]float32, error) {
	if s.embedDelay > 0 {
		time.Sleep(s.embedDelay)
	}
	return s.vector, nil
}

func (s *stubVision) Dim() int { return len(s.vector) }
func (s *stubVision) Close()   {}

func oneFace(vector []float32) *stubVision {
	return &stubVision{
		vector:     vector,
		detections: []vision.Detection{{BBox: [4]float32{10, 10, 100, 100}, Confidence: 0.95}},
	}
}

// liveFrames produces frames that clear the liveness threshold.
func liveFrames(t *testing.T) []image.Image {
	t.Helper()
	frames, err := vision.NewSyntheticSource(6).Extract(context.Background(), nil)
	require.NoError(t, err)
	return frames
}

// staticFrames produces identical frames that fail the liveness threshold.
func staticFrames() []image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetRGBA(x, y, color.RGBA{120, 120, 120, 255})
		}
	}
	return []image.Image{img, img, img}
}

func newTestOrchestrator(frames vision.FrameSource, backend vision.Backend, store storage.VectorStore) *Orchestrator {
	return NewOrchestrator(Config{
		Frames:              frames,
		Liveness:            vision.NewLivenessDetector(0.85),
		Generator:           vision.NewGenerator(backend),
		Store:               store,
		SimilarityThreshold: 0.75,
		FrameTimeout:        2 * time.Second,
		MergeTimeout:        1 * time.Second,
	})
}

func TestVerify_TrustOnFirstUse(t *testing.T) {
	o := newTestOrchestrator(
		&stubFrames{frames: liveFrames(t)},
		oneFace([]float32{1, 0, 0}),
		storage.NewMemoryStore(),
	)

	result, err := o.Verify(context.Background(), &models.VerificationRequest{
		VideoData: []byte("video"),
		UserID:    "alice",
	})
	require.NoError(t, err)

	assert.True(t, result.Verified)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Regexp(t, regexp.MustCompile(`^ver_[A-Za-z0-9]{16}$`), result.VerificationID)
	assert.Greater(t, result.LivenessScore, 0.85)
	assert.Empty(t, result.Error)
}

func TestVerify_AnonymousSkipsMatching(t *testing.T) {
	o := newTestOrchestrator(
		&stubFrames{frames: liveFrames(t)},
		oneFace([]float32{1, 0, 0}),
		storage.NewMemoryStore(),
	)

	result, err := o.Verify(context.Background(), &models.VerificationRequest{VideoData: []byte("video")})
	require.NoError(t, err)

	assert.True(t, result.Verified)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Empty(t, result.UserID)
}

func TestRegisterThenVerify(t *testing.T) {
	store := storage.NewMemoryStore()
	frames := &stubFrames{frames: liveFrames(t)}
	backend := oneFace([]float32{0.5, 0.5, 0.1})

	o := newTestOrchestrator(frames, backend, store)
	ctx := context.Background()

	reg, err := o.Register(ctx, &models.VerificationRequest{VideoData: []byte("v"), UserID: "alice"})
	require.NoError(t, err)
	assert.True(t, reg.Verified)

	stored, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, []float32{0.5, 0.5, 0.1}, stored[0].Vector)
	assert.Equal(t, models.EmbeddingVersion, stored[0].Version)

	// The same face now verifies against the enrollment.
	ver, err := o.Verify(ctx, &models.VerificationRequest{VideoData: []byte("v"), UserID: "alice"})
	require.NoError(t, err)
	assert.True(t, ver.Verified)
	assert.GreaterOrEqual(t, ver.Confidence, 0.75)
}

func TestVerify_ImpostorRejected(t *testing.T) {
	store := storage.NewMemoryStore()
	frames := &stubFrames{frames: liveFrames(t)}

	o := newTestOrchestrator(frames, oneFace([]float32{1, 0, 0}), store)
	ctx := context.Background()

	_, err := o.Register(ctx, &models.VerificationRequest{VideoData: []byte("v"), UserID: "alice"})
	require.NoError(t, err)

	// A different face produces an orthogonal embedding.
	impostor := newTestOrchestrator(frames, oneFace([]float32{0, 1, 0}), store)
	result, err := impostor.Verify(ctx, &models.VerificationRequest{VideoData: []byte("v"), UserID: "alice"})
	require.NoError(t, err)

	assert.False(t, result.Verified)
	assert.Less(t, result.Confidence, 0.75)
}

func TestVerify_NotLiveShortCircuits(t *testing.T) {
	o := newTestOrchestrator(
		&stubFrames{frames: staticFrames()},
		oneFace([]float32{1, 0, 0}),
		storage.NewMemoryStore(),
	)

	result, err := o.Verify(context.Background(), &models.VerificationRequest{
		VideoData: []byte("v"),
		UserID:    "alice",
	})
	require.NoError(t, err)

	assert.False(t, result.Verified)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Less(t, result.LivenessScore, 0.85)
	assert.Empty(t, result.Error)
}

func TestVerify_NoFaceFails(t *testing.T) {
	backend := &stubVision{vector: []float32{1}} // zero detections
	o := newTestOrchestrator(&stubFrames{frames: liveFrames(t)}, backend, storage.NewMemoryStore())

	result, err := o.Verify(context.Background(), &models.VerificationRequest{VideoData: []byte("v")})
	require.Error(t, err)
	assert.ErrorIs(t, err, vision.ErrNoFaceDetected)
	assert.NotEmpty(t, result.Error)
	assert.False(t, result.Verified)
}

func TestVerify_FrameExtractionError(t *testing.T) {
	o := newTestOrchestrator(
		&stubFrames{err: &vision.FrameExtractionError{Err: errors.New("bad stream")}},
		oneFace([]float32{1}),
		storage.NewMemoryStore(),
	)

	result, err := o.Verify(context.Background(), &models.VerificationRequest{VideoData: []byte("v")})
	require.Error(t, err)

	var fe *vision.FrameExtractionError
	assert.ErrorAs(t, err, &fe)
	assert.NotEmpty(t, result.Error)
}

func TestVerify_FrameTimeout(t *testing.T) {
	o := NewOrchestrator(Config{
		Frames:              &stubFrames{frames: liveFrames(t), delay: 500 * time.Millisecond},
		Liveness:            vision.NewLivenessDetector(0.85),
		Generator:           vision.NewGenerator(oneFace([]float32{1})),
		Store:               storage.NewMemoryStore(),
		SimilarityThreshold: 0.75,
		FrameTimeout:        50 * time.Millisecond,
		MergeTimeout:        time.Second,
	})

	_, err := o.Verify(context.Background(), &models.VerificationRequest{VideoData: []byte("v")})
	require.Error(t, err)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StageFrames, te.Stage)
}

func TestVerify_MergeTimeout(t *testing.T) {
	backend := oneFace([]float32{1, 0, 0})
	backend.embedDelay = 500 * time.Millisecond

	o := NewOrchestrator(Config{
		Frames:              &stubFrames{frames: liveFrames(t)},
		Liveness:            vision.NewLivenessDetector(0.85),
		Generator:           vision.NewGenerator(backend),
		Store:               storage.NewMemoryStore(),
		SimilarityThreshold: 0.75,
		FrameTimeout:        2 * time.Second,
		MergeTimeout:        50 * time.Millisecond,
	})

	_, err := o.Verify(context.Background(), &models.VerificationRequest{VideoData: []byte("v")})
	require.Error(t, err)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StageAnalysis, te.Stage)
}

func TestRegister_NotLiveRefused(t *testing.T) {
	store := storage.NewMemoryStore()
	o := newTestOrchestrator(&stubFrames{frames: staticFrames()}, oneFace([]float32{1}), store)

	_, err := o.Register(context.Background(), &models.VerificationRequest{
		VideoData: []byte("v"),
		UserID:    "alice",
	})
	require.Error(t, err)

	stored, err := store.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestVerify_ResultTimingPopulated(t *testing.T) {
	o := newTestOrchestrator(&stubFrames{frames: liveFrames(t)}, oneFace([]float32{1}), storage.NewMemoryStore())

	result, err := o.Verify(context.Background(), &models.VerificationRequest{VideoData: []byte("v")})
	require.NoError(t, err)

	assert.Greater(t, result.ProcessingTime, 0.0)
	assert.False(t, result.Timestamp.IsZero())
}
