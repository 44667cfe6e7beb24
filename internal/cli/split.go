package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"media-splitter/internal/bootstrap"
	"media-splitter/internal/domain"
	"media-splitter/internal/extract"
	"media-splitter/internal/timeline"
)

var (
	splitRanges          []string
	splitPoints          []string
	splitRemove          []string
	splitFormat          string
	splitOut             string
	splitWorkers         int
	splitBuffered        bool
	splitContinueOnError bool
	splitQuiet           bool
)

var splitCmd = &cobra.Command{
	Use:   "split INPUT",
	Short: "Cut a video into segments",
	Long: `Cut a video into segments.

Select segments with exactly one of:
  --range START:END   keep this range (repeatable)
  --at T1,T2,...      split at these points, covering the whole video
  --remove START:END  drop this range and keep the rest (repeatable)

Times are seconds ("12.5") or clock values ("1:02:03.5"). Clock values in
a range use the dash form, e.g. --range 0:30-1:45.`,
	Example: `  segcut split talk.mp4 --range 0:10 --range 65-90.5
  segcut split talk.mp4 --at 5:00,10:00 --format webm
  segcut split talk.mp4 --remove 0-12 --out ./clips`,
	Args: cobra.ExactArgs(1),
	RunE: runSplit,
}

func init() {
	splitCmd.Flags().StringArrayVarP(&splitRanges, "range", "r", nil, "range to extract (repeatable)")
	splitCmd.Flags().StringSliceVar(&splitPoints, "at", nil, "split points")
	splitCmd.Flags().StringArrayVar(&splitRemove, "remove", nil, "range to drop (repeatable)")
	splitCmd.Flags().StringVarP(&splitFormat, "format", "f", "", "output format: "+formatList()+" (default from settings)")
	splitCmd.Flags().StringVarP(&splitOut, "out", "o", "", "output directory (default from settings)")
	splitCmd.Flags().IntVarP(&splitWorkers, "workers", "w", 0, "maximum parallel engines (default from settings)")
	splitCmd.Flags().BoolVar(&splitBuffered, "buffered", false, "collect every segment before writing")
	splitCmd.Flags().BoolVar(&splitContinueOnError, "continue-on-error", false, "keep going when a segment fails")
	splitCmd.Flags().BoolVarP(&splitQuiet, "quiet", "q", false, "no progress bar")
}

// formatList renders the supported formats for help text.
func formatList() string {
	names := lo.Map(domain.OutputFormats, func(f domain.OutputFormat, _ int) string { return string(f) })
	return strings.Join(names, ", ")
}

func runSplit(cmd *cobra.Command, args []string) error {
	req, err := buildSplitRequest(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	theme := defaultTheme
	if !splitQuiet {
		req.OnProgress = func(completed, total int) {
			theme.progressLine(os.Stderr, completed, total)
		}
	}

	report, err := app.Split(ctx, req)
	if errors.Is(ctx.Err(), context.Canceled) {
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, theme.hintStyle().Render("interrupted"))
	}
	printSplitReport(theme, report)
	return err
}

func buildSplitRequest(input string) (bootstrap.SplitRequest, error) {
	ranges, err := timeline.ParseRanges(splitRanges)
	if err != nil {
		return bootstrap.SplitRequest{}, err
	}
	removed, err := timeline.ParseRanges(splitRemove)
	if err != nil {
		return bootstrap.SplitRequest{}, err
	}
	points := make([]float64, 0, len(splitPoints))
	for _, raw := range splitPoints {
		p, err := timeline.ParseTimestamp(raw)
		if err != nil {
			return bootstrap.SplitRequest{}, fmt.Errorf("--at: %w", err)
		}
		points = append(points, p)
	}

	return bootstrap.SplitRequest{
		InputPath:       input,
		Ranges:          ranges,
		SplitPoints:     points,
		Remove:          removed,
		Format:          splitFormat,
		OutputDir:       splitOut,
		MaxWorkers:      splitWorkers,
		Buffered:        splitBuffered,
		ContinueOnError: splitContinueOnError,
	}, nil
}

func printSplitReport(theme Theme, report bootstrap.SplitReport) {
	result := report.Result
	if result == nil && len(report.Files) == 0 {
		return
	}

	for _, path := range report.Files {
		fmt.Printf("  %s\n", path)
	}
	if result == nil {
		return
	}

	for _, failure := range result.Failures {
		fmt.Printf("  %s segment %d (%.2fs-%.2fs): %v\n",
			theme.errorStyle().Render("✗"), failure.Job.Index+1, failure.Job.StartTime, failure.Job.EndTime, failure.Err)
	}

	var headline string
	switch result.Outcome {
	case extract.OutcomeSucceeded:
		headline = theme.completedStyle().Render("✓ done")
	case extract.OutcomeDegraded:
		headline = theme.warningStyle().Render("! done with problems")
	default:
		headline = theme.errorStyle().Render("✗ failed")
	}
	fmt.Printf("\n%s  %d/%d segments in %s  %s\n",
		headline, len(result.Segments), result.Total, result.Elapsed.Round(time.Millisecond),
		theme.hintStyle().Render(fmt.Sprintf("(%s, %d engines, peak %d busy, %s)",
			report.Mode, result.Pool.Ready, result.Pool.PeakBusy, filepath.Base(report.Source))))
}
