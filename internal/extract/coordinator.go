// Package extract orchestrates batches of segment extractions across the
// execution pool, in buffered or streaming mode.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-splitter/internal/codec"
	"media-splitter/internal/domain"
	"media-splitter/internal/jobs"
	"media-splitter/internal/pool"
	"media-splitter/internal/source"
	"media-splitter/internal/timeline"
)

const (
	DefaultChunkSize  = 10
	DefaultChunkDelay = 50 * time.Millisecond
)

// Config tunes pool sizing and batch pacing.
type Config struct {
	// MaxWorkers of zero uses the CPU count; the pool ceiling still applies.
	MaxWorkers int
	// ConcurrencyHint bounds MaxWorkers. Zero uses runtime.NumCPU.
	ConcurrencyHint      int
	ChunkSize            int
	ChunkDelay           time.Duration
	InitTimeout          time.Duration
	LargeFileInitTimeout time.Duration
	// ContinueOnError records failed jobs and keeps going instead of
	// aborting the batch on the first failure.
	ContinueOnError bool
	// Events receives batch notifications when set.
	Events *jobs.EventBus
}

// Options are per-batch callbacks. Nil callbacks are skipped.
type Options struct {
	OnProgress        func(completed, total int)
	OnSegmentComplete func(job domain.SegmentJob, payload []byte)
	// Duration bounds segment ends when positive.
	Duration float64
}

// Segment is one finished extraction.
type Segment struct {
	Job      domain.SegmentJob `json:"job"`
	FileName string            `json:"fileName"`
	Size     int               `json:"size"`
	// Data is set in buffered mode only.
	Data []byte `json:"-"`
}

// Failure is a job that failed while ContinueOnError was set.
type Failure struct {
	Job domain.SegmentJob `json:"job"`
	Err error             `json:"-"`
}

// BatchResult maps job ids to finished segments.
type BatchResult struct {
	BatchID  string              `json:"batchId"`
	Total    int                 `json:"total"`
	Segments map[string]*Segment `json:"segments"`
	Failures []Failure           `json:"failures,omitempty"`
	Outcome  Outcome             `json:"outcome"`
	Pool     pool.Stats          `json:"pool"`
	Elapsed  time.Duration       `json:"elapsed"`
}

// Ordered returns segments sorted by their request position.
func (r *BatchResult) Ordered() []*Segment {
	out := make([]*Segment, 0, len(r.Segments))
	for _, seg := range r.Segments {
		out = append(out, seg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job.Index < out[j].Job.Index })
	return out
}

// Coordinator is the top-level extraction API. It runs one batch at a time.
type Coordinator struct {
	provider *source.Provider
	factory  codec.Factory
	cfg      Config
	logger   *slog.Logger
	queue    *jobs.Queue

	mu          sync.Mutex
	pool        *pool.Pool
	running     bool
	destroyed   bool
	cancelBatch context.CancelFunc
	// drained is closed once units abandoned by an aborted batch are back.
	drained chan struct{}
}

// New builds a coordinator. Units are started lazily or by Initialize.
func New(provider *source.Provider, factory codec.Factory, cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ConcurrencyHint <= 0 {
		cfg.ConcurrencyHint = runtime.NumCPU()
	}
	if cfg.ChunkDelay < 0 {
		cfg.ChunkDelay = 0
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = pool.DefaultInitTimeout
	}
	if cfg.LargeFileInitTimeout <= 0 {
		cfg.LargeFileInitTimeout = pool.LargeFileInitTimeout
	}

	return &Coordinator{
		provider: provider,
		factory:  factory,
		cfg:      cfg,
		logger:   logger,
		queue:    jobs.NewQueue(),
	}
}

// Initialize starts the execution pool if it is not running yet.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initializeLocked(ctx)
}

func (c *Coordinator) initializeLocked(ctx context.Context) error {
	if c.destroyed {
		return ErrDestroyed
	}
	if c.pool != nil {
		return nil
	}
	if c.provider == nil {
		return source.ErrSourceUnavailable
	}

	streaming := c.provider.Mode() == source.ModeStreaming
	timeout := c.cfg.InitTimeout
	if c.provider.LargeFile() {
		timeout = c.cfg.LargeFileInitTimeout
	}
	size := pool.EffectiveWorkers(c.cfg.MaxWorkers, c.cfg.ConcurrencyHint, streaming)

	c.logger.Info("starting execution pool",
		"units", size,
		"mode", c.provider.Mode().String(),
		"init_timeout", timeout,
	)
	p, err := pool.Initialize(ctx, c.factory, pool.Config{Size: size, InitTimeout: timeout}, c.logger)
	if err != nil {
		return err
	}
	c.pool = p
	return nil
}

// Stats returns the pool snapshot, zero before initialization.
func (c *Coordinator) Stats() pool.Stats {
	c.mu.Lock()
	p := c.pool
	c.mu.Unlock()
	if p == nil {
		return pool.Stats{}
	}
	return p.Stats()
}

// ProcessSegments extracts every range and returns all payloads. On failure
// (without ContinueOnError) nothing is returned.
func (c *Coordinator) ProcessSegments(ctx context.Context, ranges []timeline.Range, format domain.OutputFormat, opts Options) (*BatchResult, error) {
	result, err := c.run(ctx, ranges, format, opts, nil)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ProcessAndDownloadSegments hands each payload to sink as soon as it is
// ready and keeps only metadata. On failure the partial result lists what was
// already emitted.
func (c *Coordinator) ProcessAndDownloadSegments(ctx context.Context, ranges []timeline.Range, format domain.OutputFormat, sink Sink, opts Options) (*BatchResult, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink is required for streaming extraction")
	}
	return c.run(ctx, ranges, format, opts, sink)
}

// Destroy terminates every unit, clears queue state, and releases the
// source. In-flight jobs are killed, not awaited.
func (c *Coordinator) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	cancel := c.cancelBatch
	p := c.pool
	c.pool = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if p != nil {
		p.Terminate()
	}
	c.queue.Reset()
	if c.provider != nil {
		c.provider.Release()
	}
	c.logger.Info("extraction coordinator destroyed")
}

func (c *Coordinator) run(ctx context.Context, ranges []timeline.Range, format domain.OutputFormat, opts Options, sink Sink) (*BatchResult, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("unsupported output format: %q", format)
	}
	if err := timeline.Validate(ranges, opts.Duration); err != nil {
		return nil, err
	}

	batchCtx, p, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}

	b := newBatch(c, p, format, opts, sink)
	for i, r := range ranges {
		b.add(&domain.SegmentJob{
			ID:        uuid.NewString(),
			Index:     i,
			StartTime: r.Start,
			EndTime:   r.End,
		})
	}

	result, runErr := b.run(batchCtx)
	c.end(b, runErr != nil)

	if runErr != nil && c.isDestroyed() {
		runErr = fmt.Errorf("%w: %w", ErrDestroyed, runErr)
	}
	return result, runErr
}

// begin claims the single batch slot and starts the pool when needed.
func (c *Coordinator) begin(ctx context.Context) (context.Context, *pool.Pool, error) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil, nil, ErrDestroyed
	}
	if c.running {
		c.mu.Unlock()
		return nil, nil, ErrBatchInProgress
	}
	c.running = true
	drained := c.drained
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}

	if drained != nil {
		select {
		case <-drained:
		case <-ctx.Done():
			release()
			return nil, nil, ctx.Err()
		}
	}

	c.mu.Lock()
	if err := c.initializeLocked(ctx); err != nil {
		c.running = false
		c.mu.Unlock()
		return nil, nil, err
	}
	batchCtx, cancel := context.WithCancel(ctx)
	c.cancelBatch = cancel
	p := c.pool
	c.drained = nil
	c.mu.Unlock()

	c.queue.Reset()
	return batchCtx, p, nil
}

// end releases the batch slot. Units still busy with abandoned jobs are
// collected in the background.
func (c *Coordinator) end(b *batch, aborted bool) {
	c.mu.Lock()
	cancel := c.cancelBatch
	c.cancelBatch = nil
	if aborted && b.inFlight() > 0 {
		done := make(chan struct{})
		c.drained = done
		go b.drain(done)
	}
	c.running = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (c *Coordinator) isDestroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// errUnitsExhausted is returned when jobs remain but every unit has failed.
func errUnitsExhausted(pending int) error {
	return fmt.Errorf("%w: no usable units left with %d jobs pending", pool.ErrUnitFailure, pending)
}

func isUnitFailure(err error) bool {
	return errors.Is(err, pool.ErrUnitFailure)
}
