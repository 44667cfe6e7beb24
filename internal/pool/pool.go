// Package pool manages the fixed set of execution units that run codec
// engines in parallel.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"media-splitter/internal/codec"
	"media-splitter/internal/domain"
)

const (
	// MemoryCeiling caps units when the source is resident in memory.
	MemoryCeiling = 8
	// StreamingCeiling caps units when every job re-reads the source.
	StreamingCeiling = 6
	// DefaultInitTimeout bounds one unit start-up.
	DefaultInitTimeout = 10 * time.Second
	// LargeFileInitTimeout bounds one unit start-up for large sources.
	LargeFileInitTimeout = 15 * time.Second
)

// ErrPoolInit is returned when no unit reached Ready.
var ErrPoolInit = errors.New("pool initialization failed: no ready units")

// ErrUnitFailure marks a failure of the unit itself rather than of its job.
var ErrUnitFailure = errors.New("execution unit failure")

// ErrTerminated is returned for dispatches after Terminate.
var ErrTerminated = errors.New("pool terminated")

// Config sizes and times the pool.
type Config struct {
	// Size is the number of units to start. Use EffectiveWorkers to derive it.
	Size        int
	InitTimeout time.Duration
}

// Stats is a snapshot of unit states.
type Stats struct {
	Size     int  `json:"size"`
	Ready    int  `json:"ready"`
	Busy     int  `json:"busy"`
	Failed   int  `json:"failed"`
	PeakBusy int  `json:"peakBusy"`
	Degraded bool `json:"degraded"`
}

// EffectiveWorkers resolves the unit count: maxWorkers bounded by hint
// (usually the CPU count), then clamped to the mode's ceiling and at least
// one. A non-positive maxWorkers means "up to hint"; a non-positive hint
// is treated as unknown.
func EffectiveWorkers(maxWorkers, hint int, streaming bool) int {
	n := maxWorkers
	switch {
	case n <= 0:
		n = hint
	case hint > 0:
		n = min(n, hint)
	}
	ceiling := MemoryCeiling
	if streaming {
		ceiling = StreamingCeiling
	}
	return lo.Clamp(n, 1, ceiling)
}

// Pool owns the execution units. Acquire, Release and MarkFailed are safe
// for concurrent use.
type Pool struct {
	mu         sync.Mutex
	units      []*Unit
	idle       []*Unit
	busy       int
	peakBusy   int
	terminated bool

	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// Initialize starts cfg.Size units in parallel. Each unit start-up is bounded
// by cfg.InitTimeout; units that fail or time out are marked Failed. The
// pool is returned as long as one unit became Ready.
func Initialize(ctx context.Context, factory codec.Factory, cfg Config, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = DefaultInitTimeout
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		units:  make([]*Unit, cfg.Size),
		ctx:    runCtx,
		cancel: cancel,
		logger: logger,
	}
	for i := range p.units {
		p.units[i] = &Unit{ID: i, state: domain.UnitStateStarting}
	}

	causes := make([]error, cfg.Size)
	var g errgroup.Group
	for i, u := range p.units {
		g.Go(func() error {
			engine, err := startUnit(ctx, factory, u.ID, cfg.InitTimeout)
			if err != nil {
				causes[i] = fmt.Errorf("unit %d: %w", u.ID, err)
				u.shutdown(domain.UnitStateFailed, err)
				logger.Warn("execution unit failed to start", "unit", u.ID, "error", err)
				return nil
			}
			u.mu.Lock()
			u.engine = engine
			u.state = domain.UnitStateReady
			u.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	ready := lo.Filter(p.units, func(u *Unit, _ int) bool {
		return u.State() == domain.UnitStateReady
	})
	if len(ready) == 0 {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrPoolInit, errors.Join(causes...))
	}
	if len(ready) < cfg.Size {
		logger.Warn("execution pool running with degraded capacity",
			"ready", len(ready),
			"requested", cfg.Size,
		)
	} else {
		logger.Info("execution pool ready", "units", len(ready))
	}

	p.idle = ready
	return p, nil
}

// startUnit loads one engine, giving up after timeout even if the factory
// ignores its context. An engine that arrives late is closed.
func startUnit(ctx context.Context, factory codec.Factory, unitID int, timeout time.Duration) (codec.Engine, error) {
	initCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type loaded struct {
		engine codec.Engine
		err    error
	}
	done := make(chan loaded, 1)
	go func() {
		engine, err := factory(initCtx, unitID)
		done <- loaded{engine: engine, err: err}
	}()

	select {
	case res := <-done:
		return res.engine, res.err
	case <-initCtx.Done():
		go func() {
			if res := <-done; res.engine != nil {
				_ = res.engine.Close()
			}
		}()
		return nil, fmt.Errorf("start-up timed out after %s: %w", timeout, initCtx.Err())
	}
}

// Acquire hands out an idle unit and marks it Busy. It never blocks.
func (p *Pool) Acquire() (*Unit, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.terminated || len(p.idle) == 0 {
		return nil, false
	}
	u := p.idle[0]
	p.idle[0] = nil
	p.idle = p.idle[1:]
	u.setState(domain.UnitStateBusy)

	p.busy++
	p.peakBusy = max(p.peakBusy, p.busy)
	return u, true
}

// Release returns a Busy unit to the idle set.
func (p *Pool) Release(u *Unit) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.terminated || !u.compareAndSet(domain.UnitStateBusy, domain.UnitStateReady) {
		return
	}
	p.busy--
	p.idle = append(p.idle, u)
}

// MarkFailed retires a Busy unit. Failed units are not respawned.
func (p *Pool) MarkFailed(u *Unit, cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if u.State() != domain.UnitStateBusy {
		return
	}
	p.busy--
	u.shutdown(domain.UnitStateFailed, cause)
	p.logger.Warn("execution unit failed", "unit", u.ID, "error", cause)
}

// Dispatch runs req on a Busy unit asynchronously and posts exactly one
// Completion to replies. replies must have room for one completion per unit
// so that units never block on a slow reader.
func (p *Pool) Dispatch(u *Unit, jobID string, req codec.Request, replies chan<- Completion) {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		replies <- Completion{Unit: u, JobID: jobID, Err: ErrTerminated, UnitFailed: true}
		return
	}
	u.begin()
	p.mu.Unlock()

	go func() {
		c := p.run(u, jobID, req)
		u.finish()
		replies <- c
	}()
}

func (p *Pool) run(u *Unit, jobID string, req codec.Request) (c Completion) {
	c = Completion{Unit: u, JobID: jobID}
	defer func() {
		if r := recover(); r != nil {
			c.Output = nil
			c.Err = fmt.Errorf("%w: unit %d panicked: %v", ErrUnitFailure, u.ID, r)
			c.UnitFailed = true
		}
	}()

	u.mu.Lock()
	engine := u.engine
	u.mu.Unlock()
	if engine == nil {
		c.Err = fmt.Errorf("%w: unit %d has no engine", ErrUnitFailure, u.ID)
		c.UnitFailed = true
		return c
	}

	out, err := engine.Extract(p.ctx, req)
	if err != nil {
		c.Err = err
		c.UnitFailed = errors.Is(err, ErrUnitFailure) || p.ctx.Err() != nil
		return c
	}
	c.Output = out
	return c
}

// Terminate cancels running jobs and closes idle engines without waiting
// for busy units. Each busy unit closes its engine once its job returns and
// still posts its Completion. It is safe to call more than once.
func (p *Pool) Terminate() {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return
	}
	p.terminated = true
	p.idle = nil
	p.busy = 0
	p.mu.Unlock()

	p.cancel()
	for _, u := range p.units {
		u.terminate()
	}
	p.logger.Debug("execution pool terminated", "units", len(p.units))
}

// Size returns the number of units the pool was created with.
func (p *Pool) Size() int {
	return len(p.units)
}

// Units returns the units in id order.
func (p *Pool) Units() []*Unit {
	return append([]*Unit(nil), p.units...)
}

// Stats returns a snapshot of unit states.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	peak := p.peakBusy
	p.mu.Unlock()

	counts := lo.CountValuesBy(p.units, func(u *Unit) domain.UnitState {
		return u.State()
	})
	failed := counts[domain.UnitStateFailed]
	return Stats{
		Size:     len(p.units),
		Ready:    counts[domain.UnitStateReady],
		Busy:     counts[domain.UnitStateBusy],
		Failed:   failed,
		PeakBusy: peak,
		Degraded: failed > 0,
	}
}
