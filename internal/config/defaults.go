package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"media-splitter/internal/domain"
)

const (
	DefaultMemoryThresholdMB    = 1000
	DefaultChunkSize            = 10
	DefaultChunkDelay           = 50 * time.Millisecond
	DefaultInitTimeout          = 10 * time.Second
	DefaultLargeFileInitTimeout = 15 * time.Second
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		MaxWorkers:           runtime.NumCPU(),
		MemoryThresholdMB:    DefaultMemoryThresholdMB,
		ChunkSize:            DefaultChunkSize,
		ChunkDelay:           DefaultChunkDelay,
		InitTimeout:          DefaultInitTimeout,
		LargeFileInitTimeout: DefaultLargeFileInitTimeout,
		OutputDir:            filepath.Join(homeDir, "Videos", "Segments"),
		OutputFormat:         string(domain.FormatMP4),
		FFmpegPath:           "ffmpeg",
		FFprobePath:          "ffprobe",
		LogFile:              filepath.Join(os.TempDir(), "media-splitter.log"),
		LogLevel:             "INFO",
	}
}

// DefaultPath returns the settings file location under the user's home.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".media-splitter", "settings.yaml")
}

// Normalize fills zero values from defaults so partial files stay usable.
func Normalize(settings domain.Settings) domain.Settings {
	def := DefaultSettings()
	if settings.MaxWorkers <= 0 {
		settings.MaxWorkers = def.MaxWorkers
	}
	if settings.MemoryThresholdMB <= 0 {
		settings.MemoryThresholdMB = def.MemoryThresholdMB
	}
	if settings.ChunkSize <= 0 {
		settings.ChunkSize = def.ChunkSize
	}
	if settings.ChunkDelay < 0 {
		settings.ChunkDelay = 0
	}
	if settings.InitTimeout <= 0 {
		settings.InitTimeout = def.InitTimeout
	}
	if settings.LargeFileInitTimeout <= 0 {
		settings.LargeFileInitTimeout = def.LargeFileInitTimeout
	}
	if settings.OutputDir == "" {
		settings.OutputDir = def.OutputDir
	}
	if settings.OutputFormat == "" {
		settings.OutputFormat = def.OutputFormat
	}
	if settings.FFmpegPath == "" {
		settings.FFmpegPath = def.FFmpegPath
	}
	if settings.FFprobePath == "" {
		settings.FFprobePath = def.FFprobePath
	}
	if settings.LogFile == "" {
		settings.LogFile = def.LogFile
	}
	if settings.LogLevel == "" {
		settings.LogLevel = def.LogLevel
	}
	return settings
}

// Validate rejects settings that cannot drive an extraction.
func Validate(settings domain.Settings) error {
	if _, err := domain.ParseOutputFormat(settings.OutputFormat); err != nil {
		return err
	}
	return nil
}
