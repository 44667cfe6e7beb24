package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus tracks each stage of a single segment extraction job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusAssigned  JobStatus = "assigned"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// UnitState is the lifecycle state of one execution unit.
type UnitState string

const (
	UnitStateStarting   UnitState = "starting"
	UnitStateReady      UnitState = "ready"
	UnitStateBusy       UnitState = "busy"
	UnitStateFailed     UnitState = "failed"
	UnitStateTerminated UnitState = "terminated"
)

// OutputFormat is one of the supported container formats for exported segments.
type OutputFormat string

const (
	FormatMP4  OutputFormat = "mp4"
	FormatWebM OutputFormat = "webm"
	FormatOgg  OutputFormat = "ogg"
	FormatMKV  OutputFormat = "mkv"
	FormatMOV  OutputFormat = "mov"
)

// OutputFormats lists the supported formats in help order.
var OutputFormats = []OutputFormat{FormatMP4, FormatWebM, FormatOgg, FormatMKV, FormatMOV}

var muxers = map[OutputFormat]string{
	FormatMP4:  "mp4",
	FormatWebM: "webm",
	FormatOgg:  "ogg",
	FormatMKV:  "matroska",
	FormatMOV:  "mov",
}

// ParseOutputFormat maps user input to a supported format.
func ParseOutputFormat(raw string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), ".")))
	if _, ok := muxers[format]; !ok {
		return "", fmt.Errorf("unsupported output format: %q", raw)
	}
	return format, nil
}

// Muxer returns the ffmpeg muxer name for the format.
func (f OutputFormat) Muxer() string {
	return muxers[f]
}

// Extension returns the file extension without the leading dot.
func (f OutputFormat) Extension() string {
	return string(f)
}

// Valid reports whether the format belongs to the supported set.
func (f OutputFormat) Valid() bool {
	_, ok := muxers[f]
	return ok
}

// SegmentJob is one immutable extraction request.
type SegmentJob struct {
	ID        string  `json:"id"`
	Index     int     `json:"index"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Label     string  `json:"label,omitempty"`
}

// Duration returns the length of the requested range in seconds.
func (j SegmentJob) Duration() float64 {
	return j.EndTime - j.StartTime
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	MaxWorkers           int           `yaml:"max_workers"`
	MemoryThresholdMB    int           `yaml:"memory_threshold_mb"`
	ChunkSize            int           `yaml:"chunk_size"`
	ChunkDelay           time.Duration `yaml:"chunk_delay"`
	InitTimeout          time.Duration `yaml:"init_timeout"`
	LargeFileInitTimeout time.Duration `yaml:"large_file_init_timeout"`
	OutputDir            string        `yaml:"output_dir"`
	OutputFormat         string        `yaml:"output_format"`
	ContinueOnError      bool          `yaml:"continue_on_error"`
	FFmpegPath           string        `yaml:"ffmpeg_path"`
	FFprobePath          string        `yaml:"ffprobe_path"`
	LogFile              string        `yaml:"log_file"`
	LogLevel             string        `yaml:"log_level"`
}
