package pool

import (
	"sync"

	"media-splitter/internal/codec"
	"media-splitter/internal/domain"
)

// Unit is one execution unit hosting a loaded codec engine. A unit runs at
// most one job at a time.
type Unit struct {
	ID int

	mu      sync.Mutex
	state   domain.UnitState
	engine  codec.Engine
	err     error
	running bool
}

// Completion is posted by a unit when a dispatched job finishes.
type Completion struct {
	Unit   *Unit
	JobID  string
	Output []byte
	Err    error
	// UnitFailed is set when the unit itself is unusable afterwards, as
	// opposed to the single job failing.
	UnitFailed bool
}

// State returns the current lifecycle state.
func (u *Unit) State() domain.UnitState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Err returns the error that moved the unit to Failed, if any.
func (u *Unit) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

func (u *Unit) setState(state domain.UnitState) {
	u.mu.Lock()
	u.state = state
	u.mu.Unlock()
}

// compareAndSet moves the unit to next only when it is currently in from.
func (u *Unit) compareAndSet(from, next domain.UnitState) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != from {
		return false
	}
	u.state = next
	return true
}

// shutdown closes the engine once and records the final state.
func (u *Unit) shutdown(state domain.UnitState, cause error) {
	u.mu.Lock()
	engine := u.engine
	u.engine = nil
	u.state = state
	if cause != nil && u.err == nil {
		u.err = cause
	}
	u.mu.Unlock()

	if engine != nil {
		_ = engine.Close()
	}
}

// begin marks a job as running on the unit.
func (u *Unit) begin() {
	u.mu.Lock()
	u.running = true
	u.mu.Unlock()
}

// finish clears the running mark. If the pool was terminated meanwhile the
// engine is closed here, since terminate left it to the running job.
func (u *Unit) finish() {
	u.mu.Lock()
	u.running = false
	var engine codec.Engine
	if u.state == domain.UnitStateTerminated {
		engine, u.engine = u.engine, nil
	}
	u.mu.Unlock()

	if engine != nil {
		_ = engine.Close()
	}
}

// terminate moves the unit to Terminated. An idle engine is closed now; a
// running one is closed by finish when its job returns.
func (u *Unit) terminate() {
	u.mu.Lock()
	u.state = domain.UnitStateTerminated
	var engine codec.Engine
	if !u.running {
		engine, u.engine = u.engine, nil
	}
	u.mu.Unlock()

	if engine != nil {
		_ = engine.Close()
	}
}
