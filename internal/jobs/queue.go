package jobs

import (
	"errors"
	"fmt"
	"sync"

	"media-splitter/internal/domain"
)

// ErrUnknownJob is returned when a transition names a job the queue never saw.
var ErrUnknownJob = errors.New("unknown job")

// ErrInvalidTransition is returned for state machine edges that are not allowed.
var ErrInvalidTransition = errors.New("invalid job transition")

// ErrDuplicateJob is returned when the same job id is submitted twice.
var ErrDuplicateJob = errors.New("duplicate job")

// Counts is a snapshot of queue bookkeeping.
type Counts struct {
	Submitted int
	Pending   int
	InFlight  int
	Completed int
	Failed    int
}

// inFlight records which unit is processing a job.
type inFlight struct {
	job    *domain.SegmentJob
	unitID int
}

// Queue holds pending jobs in FIFO order and tracks in-flight assignments.
// A job id is in at most one of pending or in-flight at any time.
type Queue struct {
	mu        sync.Mutex
	pending   []*domain.SegmentJob
	inFlight  map[string]inFlight
	status    map[string]domain.JobStatus
	submitted int
	completed int
	failed    int
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		inFlight: make(map[string]inFlight),
		status:   make(map[string]domain.JobStatus),
	}
}

// Submit appends jobs to the pending backlog.
func (q *Queue) Submit(jobs ...*domain.SegmentJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range jobs {
		if _, ok := q.status[job.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
		}
	}
	for _, job := range jobs {
		q.status[job.ID] = domain.JobStatusPending
		q.pending = append(q.pending, job)
		q.submitted++
	}
	return nil
}

// AssignNext pops the oldest pending job and assigns it to unitID in one step,
// so a job is never outside both the backlog and the in-flight map.
func (q *Queue) AssignNext(unitID int) (*domain.SegmentJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, false
	}
	job := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]

	q.status[job.ID] = domain.JobStatusAssigned
	q.inFlight[job.ID] = inFlight{job: job, unitID: unitID}
	return job, true
}

// Complete marks an in-flight job as done.
func (q *Queue) Complete(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.transition(jobID, domain.JobStatusCompleted); err != nil {
		return err
	}
	delete(q.inFlight, jobID)
	q.completed++
	return nil
}

// Fail marks an in-flight job as failed. The cause travels with the caller's
// error; the queue only records the transition.
func (q *Queue) Fail(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.transition(jobID, domain.JobStatusFailed); err != nil {
		return err
	}
	delete(q.inFlight, jobID)
	q.failed++
	return nil
}

// InFlightOn lists job ids currently assigned to a unit.
func (q *Queue) InFlightOn(unitID int) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ids []string
	for id, entry := range q.inFlight {
		if entry.unitID == unitID {
			ids = append(ids, id)
		}
	}
	return ids
}

// Pending returns the backlog length.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drained reports whether nothing is pending or in flight.
func (q *Queue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0 && len(q.inFlight) == 0
}

// Counts returns a snapshot of the bookkeeping counters.
func (q *Queue) Counts() Counts {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Counts{
		Submitted: q.submitted,
		Pending:   len(q.pending),
		InFlight:  len(q.inFlight),
		Completed: q.completed,
		Failed:    q.failed,
	}
}

// Consistent reports whether every submitted job is accounted for exactly once.
func (c Counts) Consistent() bool {
	return c.Pending+c.InFlight+c.Completed+c.Failed == c.Submitted
}

// Reset clears all state and returns the queue to empty.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
	q.inFlight = make(map[string]inFlight)
	q.status = make(map[string]domain.JobStatus)
	q.submitted = 0
	q.completed = 0
	q.failed = 0
}

// transition validates and applies one state change. Must be called with q.mu held.
func (q *Queue) transition(jobID string, to domain.JobStatus) error {
	from, ok := q.status[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	if !isValidTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	q.status[jobID] = to
	return nil
}

// isValidTransition enforces the allowed job state machine edges. Completed
// and Failed are terminal; there are no automatic retries.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusPending:
		return to == domain.JobStatusAssigned
	case domain.JobStatusAssigned:
		return to == domain.JobStatusCompleted || to == domain.JobStatusFailed
	default:
		return false
	}
}
