package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"media-splitter/internal/source"
)

var probeCmd = &cobra.Command{
	Use:   "probe INPUT",
	Short: "Show video metadata and how the source would be loaded",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

func runProbe(cmd *cobra.Command, args []string) error {
	path := args[0]
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", source.ErrSourceUnavailable, err)
	}

	meta, err := app.Probe(path)
	if err != nil {
		return err
	}

	policy := source.Policy{
		MemoryThresholdMB: app.Settings.MemoryThresholdMB,
		HardCutoffMB:      source.HardCutoffMB,
	}
	mode := policy.Decide(info.Size())

	theme := defaultTheme
	fmt.Println(theme.statusStyle().Render(path))
	fmt.Printf("  %-10s %.3fs\n", "duration", meta.Duration)
	fmt.Printf("  %-10s %dx%d\n", "size", meta.Width, meta.Height)
	fmt.Printf("  %-10s %.2f\n", "fps", meta.FPS)
	fmt.Printf("  %-10s %s\n", "codec", meta.Codec)
	fmt.Printf("  %-10s %.1f MB\n", "file", float64(info.Size())/(1024*1024))
	fmt.Printf("  %-10s %s\n", "loading", mode)
	if mode == source.ModeStreaming {
		fmt.Println(theme.hintStyle().Render("  large file: engines read from disk and pool size is capped"))
	}
	return nil
}
