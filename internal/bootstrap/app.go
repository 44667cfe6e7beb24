package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"media-splitter/internal/codec"
	"media-splitter/internal/config"
	"media-splitter/internal/diagnostics"
	"media-splitter/internal/domain"
	"media-splitter/internal/extract"
	"media-splitter/internal/jobs"
	"media-splitter/internal/source"
	"media-splitter/internal/timeline"
)

// ErrNoActiveSplit is returned by Abort when nothing is running.
var ErrNoActiveSplit = errors.New("no split is running")

// App wires configuration, diagnostics, and the extraction engine for the CLI.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Diagnostics domain.DiagnosticReport
	Events      *jobs.EventBus
	Logger      *slog.Logger

	checker *diagnostics.Checker
	prober  codec.Prober
	engines func(settings domain.Settings) codec.Factory

	mu     sync.Mutex
	active *extract.Coordinator
}

// Deps overrides the collaborators New would build.
type Deps struct {
	Store   config.Store
	Checker *diagnostics.Checker
	Prober  codec.Prober
	Engines func(settings domain.Settings) codec.Factory
	Logger  *slog.Logger
}

// SplitRequest describes one split run. Exactly one of Ranges, SplitPoints,
// or Remove selects the segments.
type SplitRequest struct {
	InputPath       string
	Ranges          []timeline.Range
	SplitPoints     []float64
	Remove          []timeline.Range
	Format          string
	OutputDir       string
	MaxWorkers      int
	Buffered        bool
	ContinueOnError bool
	OnProgress      func(completed, total int)
}

// SplitReport summarizes a finished split.
type SplitReport struct {
	Source   string               `json:"source"`
	Mode     string               `json:"mode"`
	Duration float64              `json:"duration"`
	Files    []string             `json:"files"`
	Result   *extract.BatchResult `json:"result"`
}

// New loads settings from configPath (or the default location), applies
// environment overrides, and runs startup diagnostics.
func New(configPath string, logger *slog.Logger) (*App, error) {
	if strings.TrimSpace(configPath) == "" {
		configPath = config.DefaultPath()
	}
	return NewWithDeps(Deps{
		Store:  config.NewYAMLStore(configPath),
		Logger: logger,
	})
}

// NewWithDeps builds the application from explicit collaborators. Nil fields
// get production defaults.
func NewWithDeps(deps Deps) (*App, error) {
	if deps.Store == nil {
		deps.Store = config.NewYAMLStore(config.DefaultPath())
	}
	if deps.Checker == nil {
		deps.Checker = diagnostics.NewChecker()
	}
	if deps.Prober == nil {
		deps.Prober = codec.VidioProber{}
	}
	if deps.Engines == nil {
		deps.Engines = ffmpegEngines
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	settings, err := loadSettings(deps.Store)
	if err != nil {
		return nil, err
	}

	return &App{
		Settings:    settings,
		Store:       deps.Store,
		Diagnostics: deps.Checker.Run(settings),
		Events:      jobs.NewEventBus(1000),
		Logger:      deps.Logger,
		checker:     deps.Checker,
		prober:      deps.Prober,
		engines:     deps.Engines,
	}, nil
}

func ffmpegEngines(settings domain.Settings) codec.Factory {
	return codec.NewFFmpegFactory(codec.FFmpegOptions{Path: settings.FFmpegPath})
}

func loadSettings(store config.Store) (domain.Settings, error) {
	settings, err := store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(config.ApplyEnv(settings))
	if err := config.Validate(settings); err != nil {
		return domain.Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	return settings, nil
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := loadSettings(a.Store)
	if err != nil {
		return domain.DiagnosticReport{}, err
	}
	return a.refreshDiagnosticsFromSettings(settings), nil
}

// Probe reads source metadata.
func (a *App) Probe(path string) (codec.Metadata, error) {
	return a.prober.Probe(path)
}

// Split cuts the input into segment files under the output directory.
func (a *App) Split(ctx context.Context, req SplitRequest) (SplitReport, error) {
	a.mu.Lock()
	settings := a.Settings
	busy := a.active != nil
	a.mu.Unlock()
	if busy {
		return SplitReport{}, extract.ErrBatchInProgress
	}

	format, err := resolveFormat(req.Format, settings.OutputFormat)
	if err != nil {
		return SplitReport{}, err
	}
	outputDir := strings.TrimSpace(req.OutputDir)
	if outputDir == "" {
		outputDir = settings.OutputDir
	}

	provider, err := source.Open(req.InputPath, source.Policy{
		MemoryThresholdMB: settings.MemoryThresholdMB,
		HardCutoffMB:      source.HardCutoffMB,
	})
	if err != nil {
		return SplitReport{}, err
	}

	duration := 0.0
	meta, probeErr := a.prober.Probe(req.InputPath)
	if probeErr != nil {
		a.Logger.Warn("probe failed; segment ends are not bounded by duration", "input", req.InputPath, "error", probeErr)
	} else {
		duration = meta.Duration
	}

	ranges, err := resolveRanges(req, duration)
	if err != nil {
		provider.Release()
		return SplitReport{}, err
	}

	sink, err := extract.NewDirSink(outputDir)
	if err != nil {
		provider.Release()
		return SplitReport{}, err
	}

	maxWorkers := req.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = settings.MaxWorkers
	}
	coordinator := extract.New(provider, a.engines(settings), extract.Config{
		MaxWorkers:           maxWorkers,
		ChunkSize:            settings.ChunkSize,
		ChunkDelay:           settings.ChunkDelay,
		InitTimeout:          settings.InitTimeout,
		LargeFileInitTimeout: settings.LargeFileInitTimeout,
		ContinueOnError:      req.ContinueOnError || settings.ContinueOnError,
		Events:               a.Events,
	}, a.Logger)

	a.mu.Lock()
	if a.active != nil {
		a.mu.Unlock()
		coordinator.Destroy()
		return SplitReport{}, extract.ErrBatchInProgress
	}
	a.active = coordinator
	a.mu.Unlock()
	defer a.clearActive(coordinator)

	report := SplitReport{
		Source:   req.InputPath,
		Mode:     provider.Mode().String(),
		Duration: duration,
	}
	opts := extract.Options{OnProgress: req.OnProgress, Duration: duration}

	var result *extract.BatchResult
	if req.Buffered {
		result, err = coordinator.ProcessSegments(ctx, ranges, format, opts)
		if err == nil {
			err = writeOrdered(ctx, sink, result)
		}
	} else {
		result, err = coordinator.ProcessAndDownloadSegments(ctx, ranges, format, sink, opts)
	}

	report.Files = sink.Written()
	report.Result = result
	return report, err
}

// Abort destroys the running split, killing in-flight extractions.
func (a *App) Abort() error {
	a.mu.Lock()
	active := a.active
	a.mu.Unlock()

	if active == nil {
		return ErrNoActiveSplit
	}
	active.Destroy()
	return nil
}

// BatchEvents returns all events with sequence greater than sinceSeq.
func (a *App) BatchEvents(sinceSeq int64) []jobs.Event {
	return a.Events.Since(sinceSeq)
}

// clearActive destroys a finished coordinator and frees the split slot.
func (a *App) clearActive(c *extract.Coordinator) {
	c.Destroy()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == c {
		a.active = nil
	}
}

// writeOrdered persists buffered segments in request order.
func writeOrdered(ctx context.Context, sink extract.Sink, result *extract.BatchResult) error {
	for _, seg := range result.Ordered() {
		if err := sink.Emit(ctx, seg.FileName, seg.Data); err != nil {
			return err
		}
		seg.Data = nil
	}
	return nil
}

func resolveFormat(requested, fallback string) (domain.OutputFormat, error) {
	raw := strings.TrimSpace(requested)
	if raw == "" {
		raw = fallback
	}
	return domain.ParseOutputFormat(raw)
}

// resolveRanges turns the request's selection into explicit ranges.
func resolveRanges(req SplitRequest, duration float64) ([]timeline.Range, error) {
	selected := 0
	for _, set := range []bool{len(req.Ranges) > 0, len(req.SplitPoints) > 0, len(req.Remove) > 0} {
		if set {
			selected++
		}
	}
	switch {
	case selected == 0:
		return nil, fmt.Errorf("%w: no segments requested", timeline.ErrInvalidRange)
	case selected > 1:
		return nil, fmt.Errorf("ranges, split points, and removals are mutually exclusive")
	}

	switch {
	case len(req.Ranges) > 0:
		return req.Ranges, nil
	case len(req.SplitPoints) > 0:
		return timeline.SplitAt(req.SplitPoints, duration)
	default:
		return timeline.Remove(req.Remove, duration)
	}
}
