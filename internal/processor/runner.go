package processor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"krill/internal/logging"
	"krill/internal/services"
)

// Result summarizes one tool invocation regardless of outcome.
type Result struct {
	ExitCode int
	LogPath  string
}

type execFunc func(ctx context.Context, inv Invocation, sink io.Writer) (int, error)

// Runner executes planned invocations, capturing combined output to one log
// file per item. It is stateless across calls; terminal state belongs to the
// caller.
type Runner struct {
	logDir string
	logger *slog.Logger
	exec   execFunc
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithExecFunc replaces process execution, for tests.
func WithExecFunc(fn execFunc) Option {
	return func(r *Runner) {
		if fn != nil {
			r.exec = fn
		}
	}
}

// NewRunner builds a Runner that writes per-item logs under logDir.
func NewRunner(logDir string, opts ...Option) *Runner {
	r := &Runner{
		logDir: logDir,
		logger: logging.NewNop(),
		exec:   runCommand,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LogPath returns the per-item log file location for an item id.
func (r *Runner) LogPath(itemID string) string {
	return filepath.Join(r.logDir, itemID+".log")
}

// Run executes the invocation for one item, blocking until the tool exits.
// The returned Result carries the exit code and log path even when err is
// non-nil so callers can persist both.
func (r *Runner) Run(ctx context.Context, itemID string, inv Invocation) (Result, error) {
	result := Result{ExitCode: -1, LogPath: r.LogPath(itemID)}
	if inv.Binary == "" {
		return result, services.Wrap(services.ErrExternalTool, "processor", "run", "invocation has no binary", nil)
	}
	if inv.WorkDir != "" {
		if err := os.MkdirAll(inv.WorkDir, 0o755); err != nil {
			return result, services.Wrap(services.ErrExternalTool, "processor", "run", "create work directory", err)
		}
	}
	if err := os.MkdirAll(r.logDir, 0o755); err != nil {
		return result, services.Wrap(services.ErrExternalTool, "processor", "run", "create log directory", err)
	}
	logFile, err := os.OpenFile(result.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return result, services.Wrap(services.ErrExternalTool, "processor", "run", "open item log", err)
	}
	defer logFile.Close()

	r.logger.Info("invoking tool",
		logging.String(logging.FieldItemID, itemID),
		logging.String("binary", inv.Binary),
		logging.String("log_path", result.LogPath))

	exitCode, runErr := r.exec(ctx, inv, logFile)
	result.ExitCode = exitCode
	if runErr != nil {
		r.cleanup(inv)
		msg := fmt.Sprintf("tool exited with code %d", exitCode)
		if exitCode < 0 {
			msg = "tool failed to run"
		}
		return result, services.Wrap(services.ErrExternalTool, "processor", "run", msg, runErr)
	}

	if missing := firstMissingOutput(inv.ExpectedOutputs); missing != "" {
		r.cleanup(inv)
		return result, services.Wrap(services.ErrMissingOutput, "processor", "run",
			fmt.Sprintf("tool exited zero but output %q is absent or empty", missing), nil)
	}
	return result, nil
}

// cleanup removes scratch directories after a failed attempt.
func (r *Runner) cleanup(inv Invocation) {
	for _, dir := range inv.TempDirs {
		if dir == "" {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warn("temp cleanup failed",
				logging.String("path", dir),
				logging.Error(err))
		}
	}
}

func firstMissingOutput(paths []string) string {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || info.Size() == 0 {
			return path
		}
	}
	return ""
}

func runCommand(ctx context.Context, inv Invocation, sink io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, inv.Binary, inv.Args...) //nolint:gosec
	cmd.Dir = inv.WorkDir
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}
	cmd.Stdout = sink
	cmd.Stderr = sink
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), fmt.Errorf("%s: %w", inv.Binary, err)
		}
		return -1, fmt.Errorf("%s: %w", inv.Binary, err)
	}
	return 0, nil
}
