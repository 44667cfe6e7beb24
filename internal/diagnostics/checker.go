package diagnostics

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v4/mem"

	"media-splitter/internal/domain"
)

// minimumFreeMemoryMB is the floor below which extraction is refused.
const minimumFreeMemoryMB = 256

// Checker validates external tools, the output directory, and host memory.
type Checker struct {
	lookPath      func(string) (string, error)
	mkdirAll      func(string, os.FileMode) error
	createTemp    func(string, string) (*os.File, error)
	remove        func(string) error
	virtualMemory func() (*mem.VirtualMemoryStat, error)
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:      exec.LookPath,
		mkdirAll:      os.MkdirAll,
		createTemp:    os.CreateTemp,
		remove:        os.Remove,
		virtualMemory: mem.VirtualMemory,
	}
}

// Run executes all checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool("ffmpeg", settings.FFmpegPath),
		c.checkMetadataTool(settings.FFprobePath),
		c.checkOutputDir(settings.OutputDir),
		c.checkMemory(settings.MemoryThresholdMB),
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: lo.ContainsBy(items, func(item domain.DiagnosticItem) bool {
			return item.Status == domain.DiagnosticStatusFail
		}),
		Items: items,
	}
}

// checkTool verifies a required CLI executable is runnable. A configured
// path wins over PATH lookup.
func (c *Checker) checkTool(name, configured string) domain.DiagnosticItem {
	target := strings.TrimSpace(configured)
	if target == "" {
		target = name
	}

	path, err := c.lookPath(target)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found: %s", target),
			Hint:    "Install ffmpeg (it ships ffprobe) or set the binary path in settings.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkMetadataTool verifies the ffprobe used for metadata. Vidio resolves ffprobe
// from PATH only, so a configured binary that is not on PATH is a warning:
// splits still run but source durations are unknown.
func (c *Checker) checkMetadataTool(configured string) domain.DiagnosticItem {
	item := c.checkTool("ffprobe", "")
	if item.Status != domain.DiagnosticStatusPass {
		item.Hint = "Install ffmpeg (it ships ffprobe) and make sure ffprobe is on PATH."
	}
	target := strings.TrimSpace(configured)
	if item.Status == domain.DiagnosticStatusPass || target == "" || target == "ffprobe" {
		return item
	}

	path, err := c.lookPath(target)
	if err != nil {
		item.Message = fmt.Sprintf("Tool not found: %s", target)
		return item
	}
	item.Status = domain.DiagnosticStatusWarn
	item.Message = fmt.Sprintf("Found at %s, but metadata probing only searches PATH.", path)
	item.Hint = fmt.Sprintf("Add %s to PATH so source durations can be read.", filepath.Dir(path))
	return item
}

// checkOutputDir validates output directory existence and write access.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "output_dir",
		Name: "Output directory",
	}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Output directory is empty."
		item.Hint = "Set an output directory where segment files can be written."
		return item
	}

	if err := c.mkdirAll(outputDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create output directory: %s", outputDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(outputDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output directory is not writable: %s", outputDir)
		item.Hint = "Choose a writable directory for segment export."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", filepath.Clean(outputDir))
	return item
}

// checkMemory compares available host memory with the in-memory source threshold.
func (c *Checker) checkMemory(thresholdMB int) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "host_memory",
		Name: "Host memory",
	}

	stat, err := c.virtualMemory()
	if err != nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Cannot read host memory: %v", err)
		return item
	}

	availableMB := stat.Available / (1024 * 1024)
	switch {
	case availableMB < minimumFreeMemoryMB:
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Only %d MB available.", availableMB)
		item.Hint = fmt.Sprintf("Free at least %d MB before extracting segments.", minimumFreeMemoryMB)
	case thresholdMB > 0 && availableMB < uint64(thresholdMB):
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("%d MB available, below the %d MB in-memory threshold.", availableMB, thresholdMB)
		item.Hint = "Lower memory_threshold_mb so large sources are streamed instead of loaded."
	default:
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("%d MB available of %d MB.", availableMB, stat.Total/(1024*1024))
	}
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	virtualMemory func() (*mem.VirtualMemoryStat, error),
) *Checker {
	return &Checker{
		lookPath:      lookPath,
		mkdirAll:      mkdirAll,
		createTemp:    createTemp,
		remove:        remove,
		virtualMemory: virtualMemory,
	}
}
