package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"media-splitter/internal/domain"
)

const (
	stageLoad    = "load"
	stageStage   = "staging"
	stageExtract = "extract"
)

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
// Cancelling ctx kills the process.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// FFmpegEngine extracts segments by stream-copying with the ffmpeg binary.
// Each instance owns a private scratch workspace.
type FFmpegEngine struct {
	ffmpegPath string
	runner     commandRunner
	workspace  string
	inputPath  string
	stagedKey  string
	seq        int
	writeFile  func(name string, data []byte, perm os.FileMode) error
	readFile   func(name string) ([]byte, error)
	remove     func(name string) error
	removeAll  func(path string) error
}

// FFmpegOptions configures the ffmpeg engine factory.
type FFmpegOptions struct {
	Path string
	// TempDir is the parent for unit workspaces; empty means os.TempDir.
	TempDir string
}

// NewFFmpegFactory returns a Factory that loads one FFmpegEngine per unit.
func NewFFmpegFactory(opts FFmpegOptions) Factory {
	return newFFmpegFactory(opts, &execRunner{}, os.MkdirTemp)
}

func newFFmpegFactory(opts FFmpegOptions, runner commandRunner, mkdirTemp func(dir, pattern string) (string, error)) Factory {
	path := opts.Path
	if path == "" {
		path = "ffmpeg"
	}

	return func(ctx context.Context, unitID int) (Engine, error) {
		workspace, err := mkdirTemp(opts.TempDir, fmt.Sprintf("media-splitter-unit-%d-*", unitID))
		if err != nil {
			return nil, &CodecError{
				Stage:   stageLoad,
				Message: "failed to create unit workspace",
				Err:     err,
			}
		}

		args := []string{"-hide_banner", "-version"}
		res, runErr := runner.Run(ctx, path, args...)
		if runErr != nil {
			_ = os.RemoveAll(workspace)
			return nil, &CodecError{
				Stage:   stageLoad,
				Message: "ffmpeg is not runnable",
				CommandLog: CommandLog{
					Command:  path,
					Args:     args,
					ExitCode: res.ExitCode,
					Stdout:   res.Stdout,
					Stderr:   res.Stderr,
				},
				Err: runErr,
			}
		}

		return &FFmpegEngine{
			ffmpegPath: path,
			runner:     runner,
			workspace:  workspace,
			inputPath:  filepath.Join(workspace, "input.bin"),
			writeFile:  os.WriteFile,
			readFile:   os.ReadFile,
			remove:     os.Remove,
			removeAll:  os.RemoveAll,
		}, nil
	}
}

// Extract cuts [Start, End) out of the source without re-encoding.
func (e *FFmpegEngine) Extract(ctx context.Context, req Request) ([]byte, error) {
	if !req.Format.Valid() {
		return nil, &CodecError{
			Stage:   stageExtract,
			Message: fmt.Sprintf("unsupported output format: %q", req.Format),
		}
	}
	if len(req.Source) == 0 {
		return nil, &CodecError{
			Stage:   stageStage,
			Message: "source is empty",
		}
	}

	start := normalizeTimestamp(req.Start)
	end := normalizeTimestamp(req.End)
	if end <= start {
		return nil, &CodecError{
			Stage:   stageExtract,
			Message: fmt.Sprintf("empty segment range %s-%s", formatSeconds(start), formatSeconds(end)),
		}
	}

	if err := e.stage(req); err != nil {
		return nil, err
	}

	e.seq++
	outPath := filepath.Join(e.workspace, fmt.Sprintf("segment-%d.%s", e.seq, req.Format.Extension()))
	defer func() { _ = e.remove(outPath) }()

	args := buildExtractArgs(e.inputPath, outPath, start, end, req.Format)
	res, runErr := e.runner.Run(ctx, e.ffmpegPath, args...)
	log := CommandLog{
		Command:  e.ffmpegPath,
		Args:     args,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}
	if runErr != nil {
		return nil, &CodecError{
			Stage:      stageExtract,
			Message:    "ffmpeg segment extraction failed",
			CommandLog: log,
			Err:        runErr,
		}
	}

	data, err := e.readFile(outPath)
	if err != nil {
		return nil, &CodecError{
			Stage:      stageExtract,
			Message:    "ffmpeg completed but output file is missing",
			CommandLog: log,
			Err:        err,
		}
	}
	if len(data) == 0 {
		return nil, &CodecError{
			Stage:      stageExtract,
			Message:    "ffmpeg produced an empty segment",
			CommandLog: log,
		}
	}

	return data, nil
}

// Close removes the unit workspace.
func (e *FFmpegEngine) Close() error {
	if e.workspace == "" {
		return nil
	}
	if err := e.removeAll(e.workspace); err != nil {
		return err
	}
	e.workspace = ""
	e.stagedKey = ""
	return nil
}

// stage writes the source into the workspace unless the same keyed source is
// already there.
func (e *FFmpegEngine) stage(req Request) error {
	if req.SourceKey != "" && req.SourceKey == e.stagedKey {
		return nil
	}

	e.stagedKey = ""
	if err := e.writeFile(e.inputPath, req.Source, 0o600); err != nil {
		return &CodecError{
			Stage:   stageStage,
			Message: "failed to stage source in unit workspace",
			Err:     err,
		}
	}
	e.stagedKey = req.SourceKey
	return nil
}

// buildExtractArgs builds stream-copy CLI args for one segment.
func buildExtractArgs(inputPath, outPath string, start, end float64, format domain.OutputFormat) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-ss", formatSeconds(start),
		"-i", inputPath,
		"-t", formatSeconds(normalizeTimestamp(end - start)),
		"-map", "0",
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		"-fflags", "+bitexact",
		"-f", format.Muxer(),
		outPath,
	}
}

// normalizeTimestamp clamps negative values to zero and rounds to milliseconds.
func normalizeTimestamp(seconds float64) float64 {
	if seconds < 0 || math.IsNaN(seconds) {
		return 0
	}
	return math.Round(seconds*1000) / 1000
}

// formatSeconds renders seconds with millisecond precision for ffmpeg.
func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}

// NewFFmpegEngineForTests constructs an engine with injectable dependencies.
func NewFFmpegEngineForTests(
	ffmpegPath string,
	runner commandRunner,
	workspace string,
	writeFile func(name string, data []byte, perm os.FileMode) error,
) *FFmpegEngine {
	return &FFmpegEngine{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		workspace:  workspace,
		inputPath:  filepath.Join(workspace, "input.bin"),
		writeFile:  writeFile,
		readFile:   os.ReadFile,
		remove:     os.Remove,
		removeAll:  os.RemoveAll,
	}
}
