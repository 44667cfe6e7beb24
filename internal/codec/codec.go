// Package codec wraps the external codec engine used to cut segments out of a
// source blob. The engine is a black box: (source, start, end, format) -> bytes.
package codec

import (
	"context"
	"fmt"

	"media-splitter/internal/domain"
)

// Request is one extraction directive handed to an engine.
type Request struct {
	// SourceKey identifies the source bytes. Engines may reuse staged input
	// while the key is unchanged; an empty key forces restaging.
	SourceKey string
	Source    []byte
	Start     float64
	End       float64
	Format    domain.OutputFormat
}

// Engine is one loaded codec engine instance. Implementations are used by a
// single execution unit and need not be safe for concurrent use.
type Engine interface {
	Extract(ctx context.Context, req Request) ([]byte, error)
	Close() error
}

// Factory loads a fresh engine instance for the given unit.
type Factory func(ctx context.Context, unitID int) (Engine, error)

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// CodecError is a stage-aware engine failure with optional command context.
type CodecError struct {
	Stage      string     `json:"stage"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats codec failures for logs and CLI output.
func (e *CodecError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *CodecError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
