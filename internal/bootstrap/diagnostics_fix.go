package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	goruntime "runtime"
	"strings"
	"time"

	"media-splitter/internal/config"
	"media-splitter/internal/domain"
)

const installCommandTimeout = 45 * time.Minute

type installOption struct {
	manager  string
	commands [][]string
}

// installer runs package-manager commands. Fields are swapped in tests.
type installer struct {
	goos     string
	lookPath func(string) (string, error)
	run      func(name string, args ...string) error
}

func newInstaller() *installer {
	return &installer{
		goos:     goruntime.GOOS,
		lookPath: exec.LookPath,
		run:      runCommand,
	}
}

// FixDiagnostic applies an OS-specific remediation for one failed diagnostic item.
func (a *App) FixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	return a.fixDiagnostic(itemID, newInstaller())
}

func (a *App) fixDiagnostic(itemID string, inst *installer) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	settingsChanged := false
	var fixErr error

	switch id {
	case "tool_ffmpeg", "tool_ffprobe":
		fixErr = inst.installFFmpeg()
	case "output_dir":
		settings, settingsChanged, fixErr = fixOutputDir(settings)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if settingsChanged {
		if saveErr := a.Store.Save(settings); saveErr != nil {
			report := a.refreshDiagnosticsFromSettings(settings)
			return report, fmt.Errorf("save settings after fix: %w", saveErr)
		}
	}

	report := a.refreshDiagnosticsFromSettings(settings)
	if fixErr != nil {
		return report, fixErr
	}
	return report, nil
}

// FixAll attempts every failing item in the cached report and returns the
// refreshed report with all fix errors joined.
func (a *App) FixAll() (domain.DiagnosticReport, error) {
	a.mu.Lock()
	report := a.Diagnostics
	a.mu.Unlock()

	var errs []error
	ffmpegTried := false
	for _, item := range report.Items {
		if item.Status != domain.DiagnosticStatusFail {
			continue
		}
		if item.ID == "tool_ffmpeg" || item.ID == "tool_ffprobe" {
			if ffmpegTried {
				continue
			}
			ffmpegTried = true
		}
		var err error
		report, err = a.FixDiagnostic(item.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", item.ID, err))
		}
	}
	return report, errors.Join(errs...)
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics
}

func ffmpegInstallOptions(goos string) []installOption {
	switch goos {
	case "windows":
		return []installOption{
			{manager: "winget", commands: [][]string{
				{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"},
			}},
			{manager: "choco", commands: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "ffmpeg"}}},
		}
	case "darwin":
		return []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	default:
		return []installOption{
			{manager: "apt-get", commands: [][]string{
				{"apt-get", "update"},
				{"apt-get", "install", "-y", "ffmpeg"},
			}},
			{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "ffmpeg"}}},
			{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "ffmpeg"}}},
			{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", "ffmpeg"}}},
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	}
}

func (i *installer) installFFmpeg() error {
	if err := i.runFirstSuccessfulInstall(ffmpegInstallOptions(i.goos)); err != nil {
		return fmt.Errorf("install ffmpeg/ffprobe: %w", err)
	}
	if err := i.requireTools("ffmpeg", "ffprobe"); err != nil {
		return fmt.Errorf("verify ffmpeg/ffprobe on PATH: %w", err)
	}
	return nil
}

func (i *installer) runFirstSuccessfulInstall(options []installOption) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", i.goos)
	}

	errorsByManager := make([]string, 0, len(options))
	atLeastOneManager := false

	for _, option := range options {
		if !i.available(option.manager) {
			continue
		}
		atLeastOneManager = true
		err := i.runInstallCommands(option.commands)
		if err == nil {
			return nil
		}
		errorsByManager = append(errorsByManager, fmt.Sprintf("%s: %v", option.manager, err))
	}

	if !atLeastOneManager {
		return fmt.Errorf("no supported package manager found for %s", i.goos)
	}
	return errors.New(strings.Join(errorsByManager, " | "))
}

func (i *installer) runInstallCommands(commands [][]string) error {
	for _, command := range commands {
		if err := i.runWithPossibleElevation(command); err != nil {
			return err
		}
	}
	return nil
}

func (i *installer) runWithPossibleElevation(command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("empty command")
	}

	candidates := [][]string{command}
	if i.goos == "linux" && requiresElevation(command[0]) {
		if i.available("pkexec") {
			candidates = append(candidates, append([]string{"pkexec"}, command...))
		}
		if i.available("sudo") {
			candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
		}
	}

	attemptErrors := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		err := i.run(candidate[0], candidate[1:]...)
		if err == nil {
			return nil
		}
		attemptErrors = append(attemptErrors, err.Error())
	}

	return errors.New(strings.Join(attemptErrors, " | "))
}

func (i *installer) available(name string) bool {
	_, err := i.lookPath(name)
	return err == nil
}

func (i *installer) requireTools(names ...string) error {
	missing := make([]string, 0, len(names))
	for _, name := range names {
		if !i.available(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tools on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}

func runCommand(name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), installCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", formatCommand(name, args), installCommandTimeout)
	}

	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) > 500 {
		trimmed = trimmed[:500] + "..."
	}
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", formatCommand(name, args), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", formatCommand(name, args), err, trimmed)
}

func formatCommand(name string, args []string) string {
	parts := append([]string{name}, args...)
	return strings.Join(parts, " ")
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}

func fixOutputDir(settings domain.Settings) (domain.Settings, bool, error) {
	outputDir := strings.TrimSpace(settings.OutputDir)
	changed := false
	if outputDir == "" {
		outputDir = config.DefaultSettings().OutputDir
		settings.OutputDir = outputDir
		changed = true
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return settings, changed, fmt.Errorf("create output directory %s: %w", outputDir, err)
	}

	return settings, changed, nil
}
