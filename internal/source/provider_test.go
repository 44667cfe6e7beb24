package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// TestPolicyDecide covers the threshold and the independent hard cutoff.
func TestPolicyDecide(t *testing.T) {
	cases := []struct {
		name     string
		policy   Policy
		sizeMB   int64
		wantMode Mode
	}{
		{"2000MB over 1000MB threshold", DefaultPolicy(), 2000, ModeStreaming},
		{"200MB under both limits", DefaultPolicy(), 200, ModeMemory},
		{"600MB under threshold but over cutoff", DefaultPolicy(), 600, ModeStreaming},
		{"exactly 500MB stays in memory", DefaultPolicy(), 500, ModeMemory},
		{"strict threshold wins", Policy{MemoryThresholdMB: 100, HardCutoffMB: 500}, 150, ModeStreaming},
		{"high threshold still capped", Policy{MemoryThresholdMB: 4000}, 900, ModeStreaming},
	}

	for _, tc := range cases {
		if got := tc.policy.Decide(tc.sizeMB * bytesPerMB); got != tc.wantMode {
			t.Fatalf("%s: mode = %s, want %s", tc.name, got, tc.wantMode)
		}
	}
}

// TestOpenSmallFileUsesMemoryMode checks the buffer is shared across calls.
func TestOpenSmallFileUsesMemoryMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("tiny video"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := Open(path, DefaultPolicy())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if p.Mode() != ModeMemory {
		t.Fatalf("mode = %s, want memory", p.Mode())
	}
	if p.Name() != "clip.mp4" {
		t.Fatalf("name = %q", p.Name())
	}

	first, err := p.Data(context.Background())
	if err != nil {
		t.Fatalf("Data() error = %v", err)
	}
	second, err := p.Data(context.Background())
	if err != nil {
		t.Fatalf("Data() error = %v", err)
	}
	if first.Key == "" || first.Key != second.Key {
		t.Fatalf("keys = %q/%q, want equal non-empty", first.Key, second.Key)
	}
	if &first.Bytes[0] != &second.Bytes[0] {
		t.Fatal("memory mode should hand out the same buffer")
	}
}

// TestStreamingModeRereadsPerCall checks every call goes back to the opener.
func TestStreamingModeRereadsPerCall(t *testing.T) {
	opens := 0
	open := func() (io.ReadCloser, error) {
		opens++
		return io.NopCloser(bytes.NewReader([]byte("large"))), nil
	}

	p, err := FromOpener("large.mkv", 2000*bytesPerMB, DefaultPolicy(), open)
	if err != nil {
		t.Fatalf("FromOpener() error = %v", err)
	}
	if p.Mode() != ModeStreaming {
		t.Fatalf("mode = %s, want streaming", p.Mode())
	}
	if !p.LargeFile() {
		t.Fatal("expected large file")
	}
	if opens != 0 {
		t.Fatalf("opens = %d, streaming mode should not preload", opens)
	}

	for i := 0; i < 3; i++ {
		data, err := p.Data(context.Background())
		if err != nil {
			t.Fatalf("Data() error = %v", err)
		}
		if data.Key != "" {
			t.Fatalf("streamed data key = %q, want empty", data.Key)
		}
		if string(data.Bytes) != "large" {
			t.Fatalf("data = %q", data.Bytes)
		}
	}
	if opens != 3 {
		t.Fatalf("opens = %d, want 3", opens)
	}
}

// TestDataAfterReleaseIsUnavailable checks the uninitialized error.
func TestDataAfterReleaseIsUnavailable(t *testing.T) {
	p := FromBytes("clip.mp4", []byte("x"))
	p.Release()

	if _, err := p.Data(context.Background()); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("error = %v, want %v", err, ErrSourceUnavailable)
	}

	var zero Provider
	if _, err := zero.Data(context.Background()); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("zero provider error = %v, want %v", err, ErrSourceUnavailable)
	}
}

// TestOpenRejectsMissingAndDirectories checks construction errors.
func TestOpenRejectsMissingAndDirectories(t *testing.T) {
	root := t.TempDir()
	if _, err := Open(filepath.Join(root, "missing.mp4"), DefaultPolicy()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing error = %v, want not-exist", err)
	}
	if _, err := Open(root, DefaultPolicy()); err == nil {
		t.Fatal("expected directory error")
	}
}

// TestDataHonorsCancelledContext checks no read happens after cancellation.
func TestDataHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := FromBytes("clip.mp4", []byte("x"))
	if _, err := p.Data(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
