package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"media-splitter/internal/domain"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// YAMLStore persists settings in a single YAML file on disk.
type YAMLStore struct {
	path string
}

// NewYAMLStore creates a YAML-backed settings store.
func NewYAMLStore(path string) *YAMLStore {
	return &YAMLStore{path: path}
}

// Path returns the backing file location.
func (s *YAMLStore) Path() string {
	return s.path
}

// Load reads settings from disk or returns defaults when missing.
func (s *YAMLStore) Load() (domain.Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}

		return domain.Settings{}, fmt.Errorf("reading settings file: %w", err)
	}

	var cfg domain.Settings
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.Settings{}, fmt.Errorf("parsing settings file: %w", err)
	}

	return Normalize(cfg), nil
}

// Save writes settings as YAML and creates parent directories.
func (s *YAMLStore) Save(cfg domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o644)
}

// ApplyEnv overrides settings with SEGCUT_* environment variables.
func ApplyEnv(cfg domain.Settings) domain.Settings {
	cfg.MaxWorkers = getEnvInt("SEGCUT_MAX_WORKERS", cfg.MaxWorkers)
	cfg.MemoryThresholdMB = getEnvInt("SEGCUT_MEMORY_THRESHOLD_MB", cfg.MemoryThresholdMB)
	cfg.ChunkSize = getEnvInt("SEGCUT_CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkDelay = getEnvDuration("SEGCUT_CHUNK_DELAY", cfg.ChunkDelay)
	cfg.OutputDir = getEnv("SEGCUT_OUTPUT_DIR", cfg.OutputDir)
	cfg.OutputFormat = getEnv("SEGCUT_OUTPUT_FORMAT", cfg.OutputFormat)
	cfg.FFmpegPath = getEnv("SEGCUT_FFMPEG", cfg.FFmpegPath)
	cfg.FFprobePath = getEnv("SEGCUT_FFPROBE", cfg.FFprobePath)
	cfg.LogFile = getEnv("SEGCUT_LOG_FILE", cfg.LogFile)
	cfg.LogLevel = getEnv("SEGCUT_LOG_LEVEL", cfg.LogLevel)
	if v := os.Getenv("SEGCUT_CONTINUE_ON_ERROR"); v != "" {
		cfg.ContinueOnError = strings.EqualFold(v, "true") || v == "1"
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return d
}
