// Package cli provides the command-line interface for segcut.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"media-splitter/internal/bootstrap"
	"media-splitter/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose    bool
	configPath string

	app      *bootstrap.App
	closeLog func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "segcut",
	Short: "Cut video files into segments in parallel",
	Long: `Segcut extracts time-range segments from a video file using a pool of
ffmpeg engines running side by side.

Segments can be selected as explicit ranges, split points, or ranges to
remove. Each finished segment is written to the output directory as soon
as it completes.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		app, err = bootstrap.New(configPath, nil)
		if err != nil {
			return err
		}

		level := config.ParseLogLevel(app.Settings.LogLevel)
		if verbose {
			level = slog.LevelDebug
		}
		var logger *slog.Logger
		logger, closeLog = config.SetupLogger(app.Settings.LogFile, level)
		slog.SetDefault(logger)
		app.Logger = logger
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog == nil {
			return
		}
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default ~/.media-splitter/settings.yaml)")

	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(doctorCmd)
}
