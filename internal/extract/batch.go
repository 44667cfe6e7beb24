package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"media-splitter/internal/codec"
	"media-splitter/internal/domain"
	"media-splitter/internal/jobs"
	"media-splitter/internal/pool"
)

// batch is the state of one extraction call. Everything except drain runs on
// the dispatch loop goroutine, which is the only writer of queue state while
// the batch is live.
type batch struct {
	c      *Coordinator
	pool   *pool.Pool
	queue  *jobs.Queue
	format domain.OutputFormat
	opts   Options
	sink   Sink

	id          string
	all         []*domain.SegmentJob
	byID        map[string]*domain.SegmentJob
	replies     chan pool.Completion
	outstanding int
	finished    int
	started     time.Time
	result      *BatchResult
}

func newBatch(c *Coordinator, p *pool.Pool, format domain.OutputFormat, opts Options, sink Sink) *batch {
	id := uuid.NewString()
	return &batch{
		c:       c,
		pool:    p,
		queue:   c.queue,
		format:  format,
		opts:    opts,
		sink:    sink,
		id:      id,
		byID:    make(map[string]*domain.SegmentJob),
		replies: make(chan pool.Completion, p.Size()),
		result: &BatchResult{
			BatchID:  id,
			Segments: make(map[string]*Segment),
		},
	}
}

func (b *batch) add(job *domain.SegmentJob) {
	b.all = append(b.all, job)
	b.byID[job.ID] = job
}

func (b *batch) inFlight() int {
	return b.outstanding
}

// run drives the batch to completion. Chunks of jobs arrive from the feeder;
// completions arrive from units; both are handled on this goroutine only.
func (b *batch) run(ctx context.Context) (*BatchResult, error) {
	b.started = time.Now()
	b.result.Total = len(b.all)
	log := b.c.logger.With("batch", b.id)
	log.Info("batch started",
		"jobs", len(b.all),
		"format", string(b.format),
		"units", b.pool.Size(),
		"streaming", b.sink != nil,
	)
	b.publish(jobs.Event{Type: jobs.EventTypeStatus, Message: "batch started", Total: len(b.all)})

	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()
	submissions := make(chan []*domain.SegmentJob)
	go feed(feedCtx, b.all, b.c.cfg.ChunkSize, b.c.cfg.ChunkDelay, submissions)

	err := b.loop(ctx, submissions)
	if counts := b.queue.Counts(); !counts.Consistent() {
		log.Error("queue bookkeeping is inconsistent", "counts", counts)
		if err == nil {
			err = fmt.Errorf("%w: %+v", errQueueInconsistent, counts)
		}
	}
	b.result.Pool = b.pool.Stats()
	b.result.Elapsed = time.Since(b.started)

	if err != nil {
		b.result.Outcome = OutcomeFailed
		log.Error("batch failed", "error", err, "completed", b.finished, "total", len(b.all))
		b.publish(jobs.Event{Type: jobs.EventTypeError, Message: err.Error(), Completed: b.finished, Total: len(b.all)})
		return b.result, err
	}

	b.result.Outcome = b.outcome()
	if b.result.Outcome == OutcomeFailed {
		err = b.result.Failures[0].Err
	}
	log.Info("batch finished",
		"outcome", string(b.result.Outcome),
		"segments", len(b.result.Segments),
		"failures", len(b.result.Failures),
		"peak_busy", b.result.Pool.PeakBusy,
		"elapsed", b.result.Elapsed,
	)
	b.publish(jobs.Event{
		Type:      jobs.EventTypeStatus,
		Message:   "batch " + string(b.result.Outcome),
		Completed: len(b.result.Segments),
		Total:     len(b.all),
	})
	return b.result, err
}

func (b *batch) loop(ctx context.Context, submissions <-chan []*domain.SegmentJob) error {
	for {
		if err := b.dispatch(ctx); err != nil {
			return err
		}

		if submissions == nil && b.queue.Drained() {
			return nil
		}
		if pending := b.queue.Pending(); pending > 0 && b.outstanding == 0 {
			return errUnitsExhausted(pending)
		}

		select {
		case chunk, ok := <-submissions:
			if !ok {
				submissions = nil
				continue
			}
			if err := b.queue.Submit(chunk...); err != nil {
				return err
			}
		case done := <-b.replies:
			b.outstanding--
			if err := b.complete(ctx, done); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// dispatch pairs idle units with pending jobs in FIFO order.
func (b *batch) dispatch(ctx context.Context) error {
	for b.queue.Pending() > 0 {
		unit, ok := b.pool.Acquire()
		if !ok {
			return nil
		}
		job, ok := b.queue.AssignNext(unit.ID)
		if !ok {
			b.pool.Release(unit)
			return nil
		}

		data, err := b.c.provider.Data(ctx)
		if err != nil {
			_ = b.queue.Fail(job.ID)
			b.pool.Release(unit)
			return &JobError{JobID: job.ID, Index: job.Index, Err: err}
		}

		b.pool.Dispatch(unit, job.ID, codec.Request{
			SourceKey: data.Key,
			Source:    data.Bytes,
			Start:     job.StartTime,
			End:       job.EndTime,
			Format:    b.format,
		}, b.replies)
		b.outstanding++
		b.c.logger.Debug("job assigned", "batch", b.id, "job", job.ID, "index", job.Index, "unit", unit.ID)
	}
	return nil
}

// complete handles one unit completion. The returned error aborts the batch.
func (b *batch) complete(ctx context.Context, done pool.Completion) error {
	job := b.byID[done.JobID]
	if job == nil {
		b.recycle(done)
		return nil
	}

	var seg *Segment
	if done.Err == nil {
		seg, done.Err = b.deliver(ctx, job, done.Output)
	}

	if done.Err != nil {
		b.failJobs(done)
		b.recycle(done)

		jobErr := &JobError{JobID: job.ID, Index: job.Index, Err: done.Err}
		b.c.logger.Warn("segment failed",
			"batch", b.id,
			"job", job.ID,
			"index", job.Index,
			"unit_failed", done.UnitFailed,
			"error", done.Err,
		)
		b.publish(jobs.Event{
			Type:    jobs.EventTypeError,
			JobID:   job.ID,
			Index:   job.Index,
			Status:  domain.JobStatusFailed,
			Message: done.Err.Error(),
		})
		if !b.c.cfg.ContinueOnError {
			return jobErr
		}
		b.result.Failures = append(b.result.Failures, Failure{Job: *job, Err: jobErr})
		b.progress()
		return nil
	}

	if err := b.queue.Complete(job.ID); err != nil {
		return err
	}
	b.pool.Release(done.Unit)
	b.result.Segments[job.ID] = seg

	if b.opts.OnSegmentComplete != nil {
		b.opts.OnSegmentComplete(*job, done.Output)
	}
	b.publish(jobs.Event{
		Type:     jobs.EventTypeResult,
		JobID:    job.ID,
		Index:    job.Index,
		Status:   domain.JobStatusCompleted,
		FileName: seg.FileName,
		Size:     seg.Size,
	})
	b.progress()
	return nil
}

// deliver keeps the payload in buffered mode or hands it to the sink.
func (b *batch) deliver(ctx context.Context, job *domain.SegmentJob, payload []byte) (*Segment, error) {
	seg := &Segment{
		Job:      *job,
		FileName: SegmentFileName(b.c.provider.Name(), job.Index, b.format),
		Size:     len(payload),
	}
	if b.sink == nil {
		seg.Data = payload
		return seg, nil
	}
	if err := b.sink.Emit(ctx, seg.FileName, payload); err != nil {
		return nil, err
	}
	return seg, nil
}

func (b *batch) progress() {
	b.finished++
	if b.opts.OnProgress != nil {
		b.opts.OnProgress(b.finished, len(b.all))
	}
	b.publish(jobs.Event{Type: jobs.EventTypeProgress, Completed: b.finished, Total: len(b.all)})
}

// failJobs fails the reported job. After a unit failure every other job
// still assigned to that unit fails with it.
func (b *batch) failJobs(done pool.Completion) {
	ids := []string{done.JobID}
	if unitFailed(done) {
		ids = lo.Uniq(append(ids, b.queue.InFlightOn(done.Unit.ID)...))
	}
	for _, id := range ids {
		_ = b.queue.Fail(id)
	}
}

// recycle returns a unit to the pool, or retires it after a unit failure.
func (b *batch) recycle(done pool.Completion) {
	if unitFailed(done) {
		b.pool.MarkFailed(done.Unit, done.Err)
		return
	}
	b.pool.Release(done.Unit)
}

func unitFailed(done pool.Completion) bool {
	return done.UnitFailed || isUnitFailure(done.Err)
}

// drain collects completions of jobs abandoned by an abort so their units
// return to the pool. It runs after the loop has exited.
func (b *batch) drain(done chan<- struct{}) {
	defer close(done)
	for i := 0; i < b.outstanding; i++ {
		c := <-b.replies
		b.failJobs(c)
		b.recycle(c)
		b.c.logger.Debug("abandoned segment returned",
			"batch", b.id,
			"job", c.JobID,
			"error", errors.Join(ErrAborted, c.Err),
		)
	}
}

func (b *batch) outcome() Outcome {
	switch {
	case len(b.all) > 0 && len(b.result.Segments) == 0:
		return OutcomeFailed
	case len(b.result.Failures) > 0 || b.result.Pool.Degraded:
		return OutcomeDegraded
	default:
		return OutcomeSucceeded
	}
}

func (b *batch) publish(event jobs.Event) {
	if b.c.cfg.Events == nil {
		return
	}
	event.BatchID = b.id
	b.c.cfg.Events.Publish(event)
}

// feed submits jobs in chunks, pausing between chunks to pace host I/O.
func feed(ctx context.Context, all []*domain.SegmentJob, size int, delay time.Duration, out chan<- []*domain.SegmentJob) {
	defer close(out)

	chunks := lo.Chunk(all, size)
	for i, chunk := range chunks {
		select {
		case out <- chunk:
		case <-ctx.Done():
			return
		}
		if i == len(chunks)-1 || delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}
