package codec

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"media-splitter/internal/domain"
)

// fakeRunner simulates command execution order and outcomes.
type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (commandResult, error)
}

// Run delegates to injected behavior.
func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

// copyRunner writes a deterministic payload derived from the staged input and
// the -ss/-t arguments, mimicking a pure stream copy.
func copyRunner(t *testing.T, calls *int) *fakeRunner {
	return &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			*calls++
			input, err := os.ReadFile(argValue(args, "-i"))
			if err != nil {
				t.Fatalf("read staged input: %v", err)
			}
			payload := string(input) + "|" + argValue(args, "-ss") + "|" + argValue(args, "-t")
			mustWriteFile(t, args[len(args)-1], payload)
			return commandResult{ExitCode: 0}, nil
		},
	}
}

// TestFFmpegEngineExtractSuccess checks the happy path and output cleanup.
func TestFFmpegEngineExtractSuccess(t *testing.T) {
	workspace := t.TempDir()
	calls := 0
	engine := NewFFmpegEngineForTests("ffmpeg-custom", copyRunner(t, &calls), workspace, os.WriteFile)

	data, err := engine.Extract(context.Background(), Request{
		SourceKey: "src-1",
		Source:    []byte("video"),
		Start:     1.5,
		End:       4,
		Format:    domain.FormatMP4,
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if string(data) != "video|1.500|2.500" {
		t.Fatalf("data = %q", data)
	}

	entries, err := os.ReadDir(workspace)
	if err != nil {
		t.Fatalf("read workspace: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "segment-") {
			t.Fatalf("segment output should be removed, found %s", entry.Name())
		}
	}
}

// TestFFmpegEngineExtractIsDeterministic checks identical requests yield identical bytes.
func TestFFmpegEngineExtractIsDeterministic(t *testing.T) {
	calls := 0
	engine := NewFFmpegEngineForTests("ffmpeg", copyRunner(t, &calls), t.TempDir(), os.WriteFile)
	req := Request{SourceKey: "k", Source: []byte("fixture"), Start: 2, End: 5, Format: domain.FormatWebM}

	first, err := engine.Extract(context.Background(), req)
	if err != nil {
		t.Fatalf("first extract: %v", err)
	}
	second, err := engine.Extract(context.Background(), req)
	if err != nil {
		t.Fatalf("second extract: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("outputs differ: %q vs %q", first, second)
	}
}

// TestFFmpegEngineReusesStagedSource checks keyed sources are written once.
func TestFFmpegEngineReusesStagedSource(t *testing.T) {
	writes := 0
	writeFile := func(name string, data []byte, perm os.FileMode) error {
		writes++
		return os.WriteFile(name, data, perm)
	}
	calls := 0
	engine := NewFFmpegEngineForTests("ffmpeg", copyRunner(t, &calls), t.TempDir(), writeFile)

	for i := 0; i < 3; i++ {
		if _, err := engine.Extract(context.Background(), Request{
			SourceKey: "memory",
			Source:    []byte("abc"),
			Start:     0,
			End:       1,
			Format:    domain.FormatMP4,
		}); err != nil {
			t.Fatalf("extract %d: %v", i, err)
		}
	}
	if writes != 1 {
		t.Fatalf("writes = %d, want 1", writes)
	}

	if _, err := engine.Extract(context.Background(), Request{
		Source: []byte("abc"),
		Start:  0,
		End:    1,
		Format: domain.FormatMP4,
	}); err != nil {
		t.Fatalf("unkeyed extract: %v", err)
	}
	if writes != 2 {
		t.Fatalf("writes = %d, want 2 after unkeyed request", writes)
	}
}

// TestFFmpegEngineExtractFailureReturnsCodecError checks command failure mapping.
func TestFFmpegEngineExtractFailureReturnsCodecError(t *testing.T) {
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			return commandResult{
				Stderr:   "Invalid data found when processing input",
				ExitCode: 1,
			}, errors.New("exit status 1")
		},
	}
	engine := NewFFmpegEngineForTests("ffmpeg", runner, t.TempDir(), os.WriteFile)

	_, err := engine.Extract(context.Background(), Request{
		Source: []byte("garbage"),
		Start:  0,
		End:    2,
		Format: domain.FormatMP4,
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var cErr *CodecError
	if !errors.As(err, &cErr) {
		t.Fatalf("error type = %T, want *CodecError", err)
	}
	if cErr.Stage != stageExtract {
		t.Fatalf("stage = %s, want %s", cErr.Stage, stageExtract)
	}
	if cErr.CommandLog.ExitCode != 1 {
		t.Fatalf("exit code = %d, want 1", cErr.CommandLog.ExitCode)
	}
	if !strings.Contains(cErr.Error(), "cmd=ffmpeg exit=1") {
		t.Fatalf("error string = %q", cErr.Error())
	}
}

// TestFFmpegEngineMissingOutput checks a silent ffmpeg run is still a failure.
func TestFFmpegEngineMissingOutput(t *testing.T) {
	engine := NewFFmpegEngineForTests("ffmpeg", &fakeRunner{}, t.TempDir(), os.WriteFile)

	_, err := engine.Extract(context.Background(), Request{
		Source: []byte("x"),
		Start:  0,
		End:    1,
		Format: domain.FormatMP4,
	})
	var cErr *CodecError
	if !errors.As(err, &cErr) {
		t.Fatalf("error = %v, want *CodecError", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped not-exist error, got %v", err)
	}
}

// TestFFmpegEngineRejectsBadRequests checks validation before any process runs.
func TestFFmpegEngineRejectsBadRequests(t *testing.T) {
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			t.Fatalf("runner should not be called, args=%v", args)
			return commandResult{}, nil
		},
	}
	engine := NewFFmpegEngineForTests("ffmpeg", runner, t.TempDir(), os.WriteFile)

	cases := []Request{
		{Source: []byte("x"), Start: 0, End: 1, Format: "gif"},
		{Source: nil, Start: 0, End: 1, Format: domain.FormatMP4},
		{Source: []byte("x"), Start: 5, End: 2, Format: domain.FormatMP4},
		{Source: []byte("x"), Start: 1.0001, End: 1.0002, Format: domain.FormatMP4},
	}
	for i, req := range cases {
		if _, err := engine.Extract(context.Background(), req); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

// TestFFmpegFactoryLoadFailure checks a missing binary fails unit start-up.
func TestFFmpegFactoryLoadFailure(t *testing.T) {
	root := t.TempDir()
	var workspace string
	mkdirTemp := func(dir, pattern string) (string, error) {
		path, err := os.MkdirTemp(root, pattern)
		workspace = path
		return path, err
	}
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			return commandResult{ExitCode: -1}, errors.New("executable file not found")
		},
	}

	factory := newFFmpegFactory(FFmpegOptions{Path: "ffmpeg-missing"}, runner, mkdirTemp)
	if _, err := factory(context.Background(), 3); err == nil {
		t.Fatal("expected load error")
	}
	if !strings.Contains(filepath.Base(workspace), "unit-3") {
		t.Fatalf("workspace name = %q, want unit id", workspace)
	}
	if _, err := os.Stat(workspace); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("workspace should be removed on load failure, stat err = %v", err)
	}
}

// TestFFmpegFactoryLoadAndClose checks workspace lifecycle.
func TestFFmpegFactoryLoadAndClose(t *testing.T) {
	root := t.TempDir()
	mkdirTemp := func(dir, pattern string) (string, error) { return os.MkdirTemp(root, pattern) }

	var versionArgs []string
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			versionArgs = append([]string{}, args...)
			return commandResult{Stdout: "ffmpeg version 6.1"}, nil
		},
	}

	engine, err := newFFmpegFactory(FFmpegOptions{}, runner, mkdirTemp)(context.Background(), 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !hasArg(versionArgs, "-version") {
		t.Fatalf("expected -version probe, args=%v", versionArgs)
	}

	ffmpegEngine := engine.(*FFmpegEngine)
	workspace := ffmpegEngine.workspace
	if err := engine.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(workspace); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("workspace should be removed, stat err = %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

// TestBuildExtractArgs verifies deterministic stream-copy arguments.
func TestBuildExtractArgs(t *testing.T) {
	args := buildExtractArgs("/w/input.bin", "/w/segment-1.mkv", 10, 12.25, domain.FormatMKV)
	want := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-ss", "10.000",
		"-i", "/w/input.bin",
		"-t", "2.250",
		"-map", "0",
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		"-fflags", "+bitexact",
		"-f", "matroska",
		"/w/segment-1.mkv",
	}

	if len(args) != len(want) {
		t.Fatalf("args len = %d, want %d", len(args), len(want))
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

// TestNormalizeTimestamp checks boundary artifacts are cleaned up.
func TestNormalizeTimestamp(t *testing.T) {
	cases := map[float64]float64{
		-0.0004: 0,
		-3:      0,
		1.23456: 1.235,
		2.9999:  3,
		7:       7,
	}
	for in, want := range cases {
		if got := normalizeTimestamp(in); got != want {
			t.Fatalf("normalizeTimestamp(%v) = %v, want %v", in, got, want)
		}
	}
}

// mustWriteFile creates parent directory and writes file content.
func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir parent: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}

// argValue returns value for key-style CLI args.
func argValue(args []string, key string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == key {
			return args[i+1]
		}
	}
	return ""
}

// hasArg reports whether args include the target flag.
func hasArg(args []string, key string) bool {
	for _, arg := range args {
		if arg == key {
			return true
		}
	}
	return false
}
