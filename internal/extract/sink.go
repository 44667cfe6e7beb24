package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"media-splitter/internal/domain"
)

// Sink receives each finished segment in streaming mode. The payload is not
// retained by the coordinator after Emit returns.
type Sink interface {
	Emit(ctx context.Context, name string, data []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, name string, data []byte) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, name string, data []byte) error {
	return f(ctx, name, data)
}

// SegmentFileName derives the exported name from the source name and the
// job's 1-based position, independent of completion order.
func SegmentFileName(sourceName string, index int, format domain.OutputFormat) string {
	base := filepath.Base(strings.TrimSpace(sourceName))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "video"
	}
	return fmt.Sprintf("%s_segment_%d.%s", base, index+1, format.Extension())
}

// DirSink writes segments into a directory. Each file is written to a temp
// name first and renamed, so readers never observe partial segments.
type DirSink struct {
	dir string

	mu      sync.Mutex
	written []string

	createTemp func(dir, pattern string) (*os.File, error)
	rename     func(oldpath, newpath string) error
	remove     func(name string) error
}

// NewDirSink creates dir if needed.
func NewDirSink(dir string) (*DirSink, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("output directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &DirSink{
		dir:        dir,
		createTemp: os.CreateTemp,
		rename:     os.Rename,
		remove:     os.Remove,
	}, nil
}

// Dir returns the target directory.
func (s *DirSink) Dir() string {
	return s.dir
}

// Emit writes data to dir/name.
func (s *DirSink) Emit(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" || filepath.Base(name) != name {
		return fmt.Errorf("invalid segment file name %q", name)
	}

	tmp, err := s.createTemp(s.dir, "."+name+".*.part")
	if err != nil {
		return fmt.Errorf("create temp segment file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.remove(tmpPath)
		return fmt.Errorf("write segment %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.remove(tmpPath)
		return fmt.Errorf("close segment %s: %w", name, err)
	}

	target := filepath.Join(s.dir, name)
	if err := s.rename(tmpPath, target); err != nil {
		_ = s.remove(tmpPath)
		return fmt.Errorf("finalize segment %s: %w", name, err)
	}

	s.mu.Lock()
	s.written = append(s.written, target)
	s.mu.Unlock()
	return nil
}

// Written lists the files finalized so far, in emit order.
func (s *DirSink) Written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.written...)
}
