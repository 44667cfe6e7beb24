package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"media-splitter/internal/domain"
)

var doctorFix bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check ffmpeg, the output directory, and host memory",
	Long: `Check that ffmpeg and ffprobe are installed, the output directory is
writable, and the host has enough free memory for in-memory sources.

With --fix, failing checks are repaired where possible: ffmpeg is installed
through the system package manager and the output directory is created.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "try to repair failing checks")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	report := app.Diagnostics
	var fixErr error
	if doctorFix && report.HasFailures {
		report, fixErr = app.FixAll()
	}

	printDiagnostics(defaultTheme, report)

	if fixErr != nil {
		return fixErr
	}
	if report.HasFailures {
		return errors.New("some checks failed")
	}
	return nil
}

func printDiagnostics(theme Theme, report domain.DiagnosticReport) {
	fmt.Printf("%-6s %-18s %s\n", "STATUS", "CHECK", "DETAIL")
	fmt.Println("------------------------------------------------------------")
	for _, item := range report.Items {
		// Pad before styling; ANSI codes break %-6s alignment.
		badge := theme.statusBadge(item.Status)
		pad := 6 - len(item.Status)
		if pad < 0 {
			pad = 0
		}
		fmt.Printf("%s%*s %-18s %s\n", badge, pad, "", item.Name, item.Message)
		if item.Hint != "" && item.Status != domain.DiagnosticStatusPass {
			fmt.Printf("%25s%s\n", "", theme.hintStyle().Render(item.Hint))
		}
	}
}
