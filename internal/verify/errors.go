package verify

import "fmt"

// Stage identifies which part of the pipeline an error belongs to.
type Stage string

const (
	StageFrames   Stage = "frame_extraction"
	StageAnalysis Stage = "analysis"
	StageMatch    Stage = "match"
	StageStore    Stage = "store"
	StageRequest  Stage = "request"
)

// TimeoutError reports that a stage exceeded its time budget. The caller
// maps it to a distinct timeout code; every other failure is a processing
// error.
type TimeoutError struct {
	Stage Stage
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out", e.Stage)
}

// StageError wraps a failure with the stage it occurred in, for structured
// logging before the error is reduced to a public code.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
