// Package source serves the source media blob to extraction jobs, either from
// a resident buffer or by re-reading the backing file for every request.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// ErrSourceUnavailable is returned when data is requested before the provider
// has a backing buffer or handle, or after it was released.
var ErrSourceUnavailable = errors.New("source unavailable")

// HardCutoffMB forces streaming mode regardless of the configured threshold.
const HardCutoffMB = 500

const bytesPerMB = 1024 * 1024

// Mode says whether the source is resident in memory or re-read per job.
type Mode int

const (
	ModeMemory Mode = iota
	ModeStreaming
)

func (m Mode) String() string {
	switch m {
	case ModeMemory:
		return "memory"
	case ModeStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Policy decides the source mode from its size.
type Policy struct {
	MemoryThresholdMB int
	HardCutoffMB      int
}

// DefaultPolicy returns the 1000MB threshold with the 500MB hard cutoff.
func DefaultPolicy() Policy {
	return Policy{MemoryThresholdMB: 1000, HardCutoffMB: HardCutoffMB}
}

// Decide picks streaming when the size exceeds either limit. The two checks
// are independent; whichever is stricter wins.
func (p Policy) Decide(sizeBytes int64) Mode {
	sizeMB := float64(sizeBytes) / bytesPerMB
	if p.MemoryThresholdMB > 0 && sizeMB > float64(p.MemoryThresholdMB) {
		return ModeStreaming
	}
	cutoff := p.HardCutoffMB
	if cutoff <= 0 {
		cutoff = HardCutoffMB
	}
	if sizeMB > float64(cutoff) {
		return ModeStreaming
	}
	return ModeMemory
}

// Opener re-derives the full source stream.
type Opener func() (io.ReadCloser, error)

// Data is the source handed to one job. Key is stable for the shared memory
// buffer and empty for streamed reads.
type Data struct {
	Key   string
	Bytes []byte
}

// Provider serves source bytes. The memory-mode buffer is never mutated after
// construction, so concurrent readers need no locking beyond the handle itself.
type Provider struct {
	mu     sync.RWMutex
	name   string
	path   string
	size   int64
	mode   Mode
	key    string
	buf    []byte
	open   Opener
	policy Policy
}

// Open stats the file, decides the mode once, and loads it when memory mode applies.
func Open(path string, policy Policy) (*Provider, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source is a directory: %s", path)
	}

	p := &Provider{
		name:   filepath.Base(path),
		path:   path,
		size:   info.Size(),
		mode:   policy.Decide(info.Size()),
		key:    uuid.NewString(),
		policy: policy,
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}

	if p.mode == ModeMemory {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read source: %w", err)
		}
		p.buf = data
		p.size = int64(len(data))
	}

	return p, nil
}

// FromBytes wraps an in-memory blob. Only memory mode is possible.
func FromBytes(name string, data []byte) *Provider {
	return &Provider{
		name: name,
		size: int64(len(data)),
		mode: ModeMemory,
		key:  uuid.NewString(),
		buf:  data,
	}
}

// FromOpener builds a provider that re-derives the blob through open. The mode
// is decided from size like Open does.
func FromOpener(name string, size int64, policy Policy, open Opener) (*Provider, error) {
	p := &Provider{
		name:   name,
		size:   size,
		mode:   policy.Decide(size),
		key:    uuid.NewString(),
		open:   open,
		policy: policy,
	}
	if p.mode == ModeMemory {
		data, err := readAll(open)
		if err != nil {
			return nil, err
		}
		p.buf = data
	}
	return p, nil
}

// Data returns the source for one job. Memory mode returns the shared buffer
// at no cost; streaming mode re-reads the whole source on every call.
func (p *Provider) Data(ctx context.Context) (Data, error) {
	if err := ctx.Err(); err != nil {
		return Data{}, err
	}

	p.mu.RLock()
	mode, buf, open, key := p.mode, p.buf, p.open, p.key
	p.mu.RUnlock()

	switch {
	case mode == ModeMemory && buf != nil:
		return Data{Key: key, Bytes: buf}, nil
	case mode == ModeStreaming && open != nil:
		data, err := readAll(open)
		if err != nil {
			return Data{}, err
		}
		return Data{Bytes: data}, nil
	default:
		return Data{}, ErrSourceUnavailable
	}
}

// Name returns the base name used for output naming.
func (p *Provider) Name() string { return p.name }

// Path returns the backing file path, empty for in-memory sources.
func (p *Provider) Path() string { return p.path }

// Size returns the source size in bytes.
func (p *Provider) Size() int64 { return p.size }

// Mode returns the mode chosen at construction.
func (p *Provider) Mode() Mode { return p.mode }

// LargeFile reports whether the source is above the hard cutoff. Large files
// get the longer unit start-up timeout and a lower worker ceiling.
func (p *Provider) LargeFile() bool {
	cutoff := p.policy.HardCutoffMB
	if cutoff <= 0 {
		cutoff = HardCutoffMB
	}
	return float64(p.size)/bytesPerMB > float64(cutoff)
}

// Release drops the buffer and the handle. Later Data calls fail.
func (p *Provider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = nil
	p.open = nil
}

func readAll(open Opener) ([]byte, error) {
	rc, err := open()
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	return data, nil
}
