package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
}

// Fetch contains configuration for artifact downloads and verification.
type Fetch struct {
	VerifyChecksums       bool `toml:"verify_checksums"`
	VerifyGzip            bool `toml:"verify_gzip"`
	Retries               int  `toml:"retries"`
	RetryBackoffSeconds   int  `toml:"retry_backoff_seconds"`
	RequestTimeoutSeconds int  `toml:"request_timeout_seconds"`
}

// Batch contains configuration for the orchestrator's restart and retention policy.
type Batch struct {
	KeepInputs     bool `toml:"keep_inputs"`
	SkipFailed     bool `toml:"skip_failed"`
	RetryCompleted bool `toml:"retry_completed"`
	Threads        int  `toml:"threads"`
	DiskTelemetry  bool `toml:"disk_telemetry"`
}

// Tracker contains configuration for the durable item-state backend.
type Tracker struct {
	// Backend selects the persistence backend: "markers" (one file per
	// terminal state per item) or "sqlite".
	Backend  string `toml:"backend"`
	StateDir string `toml:"state_dir"`
}

// MetaPhlAn contains configuration for the taxonomic profiler.
type MetaPhlAn struct {
	Binary    string   `toml:"binary"`
	DBDir     string   `toml:"db_dir"`
	Index     string   `toml:"index"`
	ExtraArgs []string `toml:"extra_args"`
}

// HUMAnN contains configuration for the functional profiler.
type HUMAnN struct {
	Binary       string   `toml:"binary"`
	NucleotideDB string   `toml:"nucleotide_db"`
	ProteinDB    string   `toml:"protein_db"`
	ExtraArgs    []string `toml:"extra_args"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for krill.
//
// Configuration sections by subsystem:
//   - Paths: working, output, and log directories
//   - Fetch: download retry/verification policy
//   - Batch: restart, retention, and telemetry policy
//   - Tracker: durable item-state backend selection
//   - MetaPhlAn / HUMAnN: external profiler binaries and reference databases
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Fetch     Fetch     `toml:"fetch"`
	Batch     Batch     `toml:"batch"`
	Tracker   Tracker   `toml:"tracker"`
	MetaPhlAn MetaPhlAn `toml:"metaphlan"`
	HUMAnN    HUMAnN    `toml:"humann"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/krill/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("krill.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories batch runs write under.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir, c.Tracker.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ItemLogDir returns the directory holding per-item tool logs.
func (c *Config) ItemLogDir() string {
	return filepath.Join(c.Paths.LogDir, "items")
}

// ProgressLogPath returns the append-only progress log for the named tool.
func (c *Config) ProgressLogPath(tool string) string {
	return filepath.Join(c.Paths.LogDir, tool+"_progress.tsv")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
