package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"krill/internal/config"
)

func TestLoadDefaultsAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWork := filepath.Join(tempHome, ".local", "share", "krill", "work")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.Tracker.StateDir != filepath.Join(wantWork, "state") {
		t.Fatalf("unexpected state dir: %q", cfg.Tracker.StateDir)
	}
	if cfg.Tracker.Backend != "markers" {
		t.Fatalf("expected markers backend by default, got %q", cfg.Tracker.Backend)
	}
	if !cfg.Fetch.VerifyChecksums || !cfg.Fetch.VerifyGzip {
		t.Fatal("expected checksum and gzip verification enabled by default")
	}
	if cfg.Fetch.Retries != 4 {
		t.Fatalf("unexpected fetch retries: %d", cfg.Fetch.Retries)
	}
	if !cfg.Batch.SkipFailed {
		t.Fatal("expected skip_failed enabled by default")
	}
	if cfg.Batch.KeepInputs {
		t.Fatal("expected keep_inputs disabled by default")
	}
	if cfg.Batch.Threads != 4 {
		t.Fatalf("unexpected batch threads: %d", cfg.Batch.Threads)
	}
	if cfg.MetaPhlAn.Binary != "metaphlan" || cfg.HUMAnN.Binary != "humann" {
		t.Fatalf("unexpected profiler binaries: %q / %q", cfg.MetaPhlAn.Binary, cfg.HUMAnN.Binary)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %q / %q", cfg.Logging.Format, cfg.Logging.Level)
	}
}

func TestLoadReadsFileAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "krill.toml")
	content := strings.Join([]string{
		"[paths]",
		`work_dir = "` + filepath.Join(dir, "scratch") + `"`,
		"[batch]",
		"threads = 0",
		"[tracker]",
		`backend = "SQLite"`,
		"[logging]",
		`level = "DEBUG"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected resolved existing path %q, got %q exists=%v", path, resolved, exists)
	}
	if cfg.Paths.WorkDir != filepath.Join(dir, "scratch") {
		t.Fatalf("unexpected work dir: %q", cfg.Paths.WorkDir)
	}
	if cfg.Tracker.Backend != "sqlite" {
		t.Fatalf("expected backend normalized to sqlite, got %q", cfg.Tracker.Backend)
	}
	if cfg.Batch.Threads != 4 {
		t.Fatalf("expected non-positive thread count to fall back to default, got %d", cfg.Batch.Threads)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected level normalized to debug, got %q", cfg.Logging.Level)
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "krill.toml")
	if err := os.WriteFile(path, []byte("[tracker]\nbackend = \"etcd\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unknown tracker backend")
	}
}

func TestCreateSampleWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[fetch]") {
		t.Fatalf("sample config missing [fetch] section: %q", string(data))
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(dir, "work")
	cfg.Paths.OutputDir = filepath.Join(dir, "out")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Tracker.StateDir = filepath.Join(dir, "work", "state")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, d := range []string{cfg.Paths.WorkDir, cfg.Paths.OutputDir, cfg.Paths.LogDir, cfg.Tracker.StateDir} {
		info, err := os.Stat(d)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist: %v", d, err)
		}
	}
}
