package verify

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/your-org/veriface/internal/models"
	"github.com/your-org/veriface/internal/observability"
	"github.com/your-org/veriface/internal/storage"
	"github.com/your-org/veriface/internal/vision"
)

// State is the position of one verification run in the pipeline.
type State string

const (
	StateReceived        State = "received"
	StateFramesExtracted State = "frames_extracted"
	StateAnalyzing       State = "analyzing"
	StateMerged          State = "merged"
	StateMatchChecked    State = "match_checked"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
	StateTimedOut        State = "timed_out"
)

// softTargetSeconds is the latency goal. Exceeding it is logged, not failed.
const softTargetSeconds = 3.0

// Config bundles the orchestrator's injected dependencies. Everything is
// constructed once at startup and shared read-only; per-request state
// lives in the run struct.
type Config struct {
	Frames    vision.FrameSource
	Liveness  *vision.LivenessDetector
	Generator *vision.Generator
	Store     storage.VectorStore
	Snapshots *storage.SnapshotArchive // optional enrollment archive

	SimilarityThreshold float64
	FrameTimeout        time.Duration
	MergeTimeout        time.Duration
}

// Orchestrator drives one video through frame extraction, the concurrent
// liveness/embedding analyses, and the similarity check, under nested
// per-stage time budgets.
type Orchestrator struct {
	frames    vision.FrameSource
	liveness  *vision.LivenessDetector
	generator *vision.Generator
	matcher   *Matcher
	store     storage.VectorStore
	snapshots *storage.SnapshotArchive

	similarityThreshold float64
	frameTimeout        time.Duration
	mergeTimeout        time.Duration
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.FrameTimeout == 0 {
		cfg.FrameTimeout = 2 * time.Second
	}
	if cfg.MergeTimeout == 0 {
		cfg.MergeTimeout = 1 * time.Second
	}
	return &Orchestrator{
		frames:              cfg.Frames,
		liveness:            cfg.Liveness,
		generator:           cfg.Generator,
		matcher:             NewMatcher(cfg.Store),
		store:               cfg.Store,
		snapshots:           cfg.Snapshots,
		similarityThreshold: cfg.SimilarityThreshold,
		frameTimeout:        cfg.FrameTimeout,
		mergeTimeout:        cfg.MergeTimeout,
	}
}

// run tracks one request through the pipeline. A fresh run is created per
// request; nothing here is shared between concurrent requests.
type run struct {
	state  State
	start  time.Time
	result *models.VerificationResult
	vector []float32
	frame  image.Image
	log    *slog.Logger
}

func (r *run) fail(state State, err error) error {
	r.state = state
	r.result.Error = err.Error()
	r.result.ProcessingTime = time.Since(r.start).Seconds()
	r.log.Error("verification run ended",
		"state", string(state),
		"elapsed", r.result.ProcessingTime,
		"error", err)
	observability.VerificationsTotal.WithLabelValues(string(state)).Inc()
	return err
}

// Verify scores one video against the claimed identity (if any) and
// returns the result. On failure or timeout the returned result still
// carries the verification id and the public error string.
func (o *Orchestrator) Verify(ctx context.Context, req *models.VerificationRequest) (*models.VerificationResult, error) {
	r, err := o.process(ctx, req)
	return r.result, err
}

// Register verifies the video first (liveness and, for re-enrollment,
// similarity to prior enrollments must pass) and then appends the
// already-extracted embedding to the identity's enrollment list.
func (o *Orchestrator) Register(ctx context.Context, req *models.VerificationRequest) (*models.VerificationResult, error) {
	r, err := o.process(ctx, req)
	if err != nil {
		return r.result, err
	}
	if !r.result.Verified {
		return r.result, fmt.Errorf("face verification failed: confidence %.2f", r.result.Confidence)
	}

	emb := models.FaceEmbedding{
		UserID:    req.UserID,
		Vector:    r.vector,
		CreatedAt: time.Now().UTC(),
		Version:   models.EmbeddingVersion,
	}
	if err := o.store.Put(ctx, emb); err != nil {
		return r.result, r.fail(StateFailed, &StageError{Stage: StageStore, Err: err})
	}

	if o.snapshots != nil {
		if err := o.snapshots.SaveEnrollment(ctx, req.UserID, r.result.VerificationID, r.frame); err != nil {
			// The enrollment itself succeeded; the archive is best-effort.
			r.log.Warn("save enrollment snapshot", "error", err)
		}
	}

	r.log.Info("enrollment stored", "user_id", req.UserID, "enrollment_dim", len(r.vector))
	return r.result, nil
}

func (o *Orchestrator) process(ctx context.Context, req *models.VerificationRequest) (*run, error) {
	start := time.Now()
	r := &run{
		state: StateReceived,
		start: start,
		result: &models.VerificationResult{
			VerificationID: NewVerificationID(),
			UserID:         req.UserID,
			Timestamp:      start.UTC(),
		},
	}
	r.log = slog.With(
		"verification_id", r.result.VerificationID,
		"session_id", req.SessionID,
	)

	frames, err := o.extractFrames(ctx, req.VideoData)
	if err != nil {
		var te *TimeoutError
		if errors.As(err, &te) {
			return r, r.fail(StateTimedOut, err)
		}
		return r, r.fail(StateFailed, err)
	}
	r.state = StateFramesExtracted
	r.frame = frames[0]

	r.state = StateAnalyzing
	liveness, vector, err := o.analyze(ctx, frames)
	if err != nil {
		var te *TimeoutError
		if errors.As(err, &te) {
			return r, r.fail(StateTimedOut, err)
		}
		return r, r.fail(StateFailed, err)
	}
	r.state = StateMerged
	r.vector = vector
	r.result.LivenessScore = liveness.Score
	observability.LivenessScores.Observe(liveness.Score)

	if !liveness.IsLive {
		// Spoof suspicion short-circuits: no match attempt, no trust.
		r.result.Verified = false
		r.result.Confidence = 0
		return r, o.complete(r)
	}

	if req.UserID != "" {
		similarity, enrolled, err := o.matcher.MaxSimilarity(ctx, req.UserID, vector)
		if err != nil {
			return r, r.fail(StateFailed, &StageError{Stage: StageMatch, Err: err})
		}
		if enrolled {
			r.result.Confidence = similarity
			r.result.Verified = similarity >= o.similarityThreshold
		} else {
			// Trust-on-first-use: a first enrollment is its own ground truth.
			r.result.Confidence = 1.0
			r.result.Verified = true
		}
		r.state = StateMatchChecked
	} else {
		r.result.Confidence = 1.0
		r.result.Verified = true
	}

	return r, o.complete(r)
}

func (o *Orchestrator) complete(r *run) error {
	r.state = StateCompleted
	r.result.ProcessingTime = time.Since(r.start).Seconds()
	observability.VerificationsTotal.WithLabelValues(string(StateCompleted)).Inc()

	if r.result.ProcessingTime > softTargetSeconds {
		r.log.Warn("processing time exceeded soft target",
			"processing_time", r.result.ProcessingTime,
			"target", softTargetSeconds)
	}

	r.log.Info("verification completed",
		"verified", r.result.Verified,
		"confidence", r.result.Confidence,
		"liveness_score", r.result.LivenessScore,
		"processing_time", r.result.ProcessingTime)

	return nil
}

// extractFrames runs the frame source under its own budget, separate from
// the outer request deadline.
func (o *Orchestrator) extractFrames(ctx context.Context, video []byte) ([]image.Image, error) {
	fctx, cancel := context.WithTimeout(ctx, o.frameTimeout)
	defer cancel()

	type extraction struct {
		frames []image.Image
		err    error
	}
	done := make(chan extraction, 1)

	start := time.Now()
	go func() {
		frames, err := o.frames.Extract(fctx, video)
		done <- extraction{frames: frames, err: err}
	}()

	select {
	case ex := <-done:
		observability.StageDuration.WithLabelValues(string(StageFrames)).Observe(time.Since(start).Seconds())
		if ex.err != nil {
			return nil, ex.err
		}
		if len(ex.frames) == 0 {
			return nil, &vision.FrameExtractionError{Err: fmt.Errorf("no frames in upload")}
		}
		return ex.frames, nil
	case <-fctx.Done():
		// The extraction goroutine keeps running; its result lands in the
		// buffered channel and is discarded.
		if ctx.Err() != nil {
			return nil, &TimeoutError{Stage: StageRequest}
		}
		return nil, &TimeoutError{Stage: StageFrames}
	}
}

type stageKind int

const (
	livenessDone stageKind = iota
	embeddingDone
)

type stageOutcome struct {
	kind     stageKind
	liveness *models.LivenessResult
	vector   []float32
	err      error
}

// analyze fans out to the liveness detector and the embedding generator
// and joins both under the merge budget. Neither analysis is preemptible,
// so a timeout only abandons the eventual results.
func (o *Orchestrator) analyze(ctx context.Context, frames []image.Image) (*models.LivenessResult, []float32, error) {
	outcomes := make(chan stageOutcome, 2)

	go func() {
		start := time.Now()
		liveness := o.liveness.Detect(frames)
		observability.StageDuration.WithLabelValues("liveness").Observe(time.Since(start).Seconds())
		outcomes <- stageOutcome{kind: livenessDone, liveness: liveness}
	}()

	go func() {
		start := time.Now()
		vector, err := o.generator.Generate(frames[0])
		observability.StageDuration.WithLabelValues("embedding").Observe(time.Since(start).Seconds())
		outcomes <- stageOutcome{kind: embeddingDone, vector: vector, err: err}
	}()

	timer := time.NewTimer(o.mergeTimeout)
	defer timer.Stop()

	var liveness *models.LivenessResult
	var vector []float32

	for i := 0; i < 2; i++ {
		select {
		case out := <-outcomes:
			if out.err != nil {
				return nil, nil, &StageError{Stage: StageAnalysis, Err: out.err}
			}
			switch out.kind {
			case livenessDone:
				liveness = out.liveness
			case embeddingDone:
				vector = out.vector
			}
		case <-timer.C:
			return nil, nil, &TimeoutError{Stage: StageAnalysis}
		case <-ctx.Done():
			return nil, nil, &TimeoutError{Stage: StageRequest}
		}
	}

	return liveness, vector, nil
}
