package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"media-splitter/internal/domain"
	"media-splitter/internal/timeline"
)

func resetSplitFlags() {
	splitRanges, splitPoints, splitRemove = nil, nil, nil
	splitFormat, splitOut = "", ""
	splitWorkers = 0
	splitBuffered, splitContinueOnError, splitQuiet = false, false, false
}

// TestBuildSplitRequestParsesSelections checks flag values become timeline values.
func TestBuildSplitRequestParsesSelections(t *testing.T) {
	resetSplitFlags()
	t.Cleanup(resetSplitFlags)
	splitRanges = []string{"0:10", "1:05-1:30.5"}
	splitWorkers = 3
	splitBuffered = true

	req, err := buildSplitRequest("talk.mp4")
	if err != nil {
		t.Fatalf("buildSplitRequest() error = %v", err)
	}
	want := []timeline.Range{{Start: 0, End: 10}, {Start: 65, End: 90.5}}
	if len(req.Ranges) != len(want) || req.Ranges[0] != want[0] || req.Ranges[1] != want[1] {
		t.Fatalf("ranges = %v, want %v", req.Ranges, want)
	}
	if req.InputPath != "talk.mp4" || req.MaxWorkers != 3 || !req.Buffered {
		t.Fatalf("request = %+v", req)
	}
}

// TestBuildSplitRequestParsesSplitPoints checks clock-form split points.
func TestBuildSplitRequestParsesSplitPoints(t *testing.T) {
	resetSplitFlags()
	t.Cleanup(resetSplitFlags)
	splitPoints = []string{"5:00", "12.5"}

	req, err := buildSplitRequest("talk.mp4")
	if err != nil {
		t.Fatalf("buildSplitRequest() error = %v", err)
	}
	if len(req.SplitPoints) != 2 || req.SplitPoints[0] != 300 || req.SplitPoints[1] != 12.5 {
		t.Fatalf("split points = %v", req.SplitPoints)
	}
}

// TestBuildSplitRequestRejectsBadRange checks malformed ranges surface ErrInvalidRange.
func TestBuildSplitRequestRejectsBadRange(t *testing.T) {
	resetSplitFlags()
	t.Cleanup(resetSplitFlags)
	splitRemove = []string{"abc"}

	if _, err := buildSplitRequest("talk.mp4"); !errors.Is(err, timeline.ErrInvalidRange) {
		t.Fatalf("error = %v, want %v", err, timeline.ErrInvalidRange)
	}
}

// TestProgressLineEndsWithNewlineWhenDone checks the final redraw.
func TestProgressLineEndsWithNewlineWhenDone(t *testing.T) {
	var buf bytes.Buffer
	defaultTheme.progressLine(&buf, 1, 2)
	if strings.HasSuffix(buf.String(), "\n") {
		t.Fatalf("partial progress ended with newline: %q", buf.String())
	}
	buf.Reset()
	defaultTheme.progressLine(&buf, 2, 2)
	if !strings.HasSuffix(buf.String(), "\n") || !strings.Contains(buf.String(), "2/2 segments") {
		t.Fatalf("final progress = %q", buf.String())
	}
}

// TestFormatFlagListsEverySupportedFormat keeps help text in sync with parsing.
func TestFormatFlagListsEverySupportedFormat(t *testing.T) {
	usage := splitCmd.Flags().Lookup("format").Usage
	for _, f := range domain.OutputFormats {
		if !strings.Contains(usage, string(f)) {
			t.Fatalf("--format help %q does not mention %s", usage, f)
		}
		if _, err := domain.ParseOutputFormat(string(f)); err != nil {
			t.Fatalf("ParseOutputFormat(%s) error = %v", f, err)
		}
	}
}
