package extract

import (
	"errors"
	"fmt"

	"media-splitter/internal/timeline"
)

// ErrBatchInProgress is returned when a second batch starts while one is running.
var ErrBatchInProgress = errors.New("a batch is already in progress")

// ErrDestroyed is returned by every operation after Destroy.
var ErrDestroyed = errors.New("coordinator destroyed")

// ErrAborted marks in-flight jobs abandoned after another job failed.
var ErrAborted = errors.New("batch aborted")

// errQueueInconsistent means a job was lost or counted twice.
var errQueueInconsistent = errors.New("job queue lost track of a job")

// ErrInvalidRange reports a segment range rejected before dispatch.
var ErrInvalidRange = timeline.ErrInvalidRange

// JobError carries the job that failed a batch.
type JobError struct {
	JobID string
	Index int
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("segment %d (job %s): %v", e.Index+1, e.JobID, e.Err)
}

// Unwrap exposes the underlying codec, sink, or unit error.
func (e *JobError) Unwrap() error {
	return e.Err
}

// Outcome lets callers tell a full success from a degraded or failed batch.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeDegraded  Outcome = "degraded"
	OutcomeFailed    Outcome = "failed"
)
