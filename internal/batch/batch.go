package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"krill/internal/config"
	"krill/internal/deps"
	"krill/internal/fetch"
	"krill/internal/logging"
	"krill/internal/manifest"
	"krill/internal/processor"
	"krill/internal/progress"
	"krill/internal/services"
	"krill/internal/tracker"
)

// ItemState is the per-item position in the batch state machine.
type ItemState string

const (
	StatePending    ItemState = "pending"
	StateFetching   ItemState = "fetching"
	StateProcessing ItemState = "processing"
	StateDone       ItemState = "done"
	StateFailed     ItemState = "failed"
	StateSkipped    ItemState = "skipped"
)

// ItemResult records the outcome of one item within a single run.
type ItemResult struct {
	ID       string
	State    ItemState
	Reason   string
	ExitCode int
	Err      error
	Started  time.Time
	Finished time.Time
}

// Summary aggregates one orchestration pass. SkippedFailed counts items
// left alone because a previous run already marked them FAIL; they still
// count against the batch exit status since they never reached done.
type Summary struct {
	RunID         string
	Tool          string
	Attempted     int
	Done          int
	Failed        int
	SkippedDone   int
	SkippedFailed int
	Results       []ItemResult
}

// OK reports whether every manifest item has reached done, this run or a
// previous one.
func (s Summary) OK() bool {
	return s.Failed == 0 && s.SkippedFailed == 0
}

// Orchestrator drives the per-item state machine sequentially. It owns all
// tracker transitions and progress rows; the fetcher and runner stay
// stateless across items.
type Orchestrator struct {
	cfg     *config.Config
	tool    processor.Tool
	store   tracker.Store
	fetcher *fetch.Fetcher
	runner  *processor.Runner
	logger  *slog.Logger
	statfs  func(path string) (free, total uint64, err error)
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithFetcher replaces the default fetcher.
func WithFetcher(f *fetch.Fetcher) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.fetcher = f
		}
	}
}

// WithRunner replaces the default tool runner.
func WithRunner(r *processor.Runner) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.runner = r
		}
	}
}

// WithStatfs replaces disk telemetry collection, for tests.
func WithStatfs(fn func(path string) (free, total uint64, err error)) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.statfs = fn
		}
	}
}

// New builds an Orchestrator for one tool over one tracker store.
func New(cfg *config.Config, tool processor.Tool, store tracker.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		tool:   tool,
		store:  store,
		logger: logging.NewNop(),
		statfs: diskUsage,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.fetcher == nil {
		o.fetcher = fetch.New(cfg.Fetch, fetch.WithLogger(o.logger))
	}
	if o.runner == nil {
		o.runner = processor.NewRunner(cfg.ItemLogDir(), processor.WithLogger(o.logger))
	}
	return o
}

// inputDir is where an item's fetched artifacts land.
func (o *Orchestrator) inputDir(itemID string) string {
	return filepath.Join(o.cfg.Paths.WorkDir, "inputs", itemID)
}

// Run processes every manifest item in order. A single item's failure never
// stops the loop; the returned error is non-nil when the pass is fatal
// (dependencies, configuration, cancellation) or when any item is left
// short of done.
func (o *Orchestrator) Run(ctx context.Context, m *manifest.Manifest) (Summary, error) {
	summary := Summary{
		RunID: uuid.NewString(),
		Tool:  o.tool.Name(),
	}
	ctx = logging.WithRun(ctx, summary.RunID)
	ctx = logging.WithStage(ctx, o.tool.Name())
	logger := logging.WithContext(ctx, o.logger)

	if err := o.cfg.EnsureDirectories(); err != nil {
		return summary, services.Wrap(services.ErrConfiguration, "batch", "prepare", "ensure directories", err)
	}
	if err := probeWritable(o.cfg.Paths.WorkDir); err != nil {
		return summary, services.Wrap(services.ErrConfiguration, "batch", "prepare", "work dir not writable", err)
	}
	if err := o.checkDependencies(); err != nil {
		return summary, err
	}

	progressLog, err := progress.OpenLog(o.cfg.ProgressLogPath(o.tool.Name()))
	if err != nil {
		return summary, services.Wrap(services.ErrConfiguration, "batch", "prepare", "open progress log", err)
	}

	logger.Info("batch started",
		logging.Int("items", len(m.Items)),
		logging.Int64("manifest_bytes", m.TotalBytes()))

	for _, item := range m.Items {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("batch interrupted: %w", err)
		}
		result := o.runItem(ctx, progressLog, item)
		summary.Results = append(summary.Results, result)
		switch result.State {
		case StateDone:
			summary.Attempted++
			summary.Done++
		case StateFailed:
			summary.Attempted++
			summary.Failed++
		case StateSkipped:
			if result.Reason == "previously failed" {
				summary.SkippedFailed++
			} else {
				summary.SkippedDone++
			}
		}
		o.reportDisk(logger)
	}

	logger.Info("batch finished",
		logging.Int("done", summary.Done),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped_done", summary.SkippedDone),
		logging.Int("skipped_failed", summary.SkippedFailed))

	if !summary.OK() {
		return summary, fmt.Errorf("%d of %d items did not reach done",
			summary.Failed+summary.SkippedFailed, len(m.Items))
	}
	return summary, nil
}

func (o *Orchestrator) checkDependencies() error {
	reqs := o.tool.Requirements()
	statuses := deps.CheckBinaries(reqs.Binaries)
	statuses = append(statuses, deps.CheckDatabases(reqs.Databases)...)
	if missing := deps.MissingRequired(statuses); len(missing) > 0 {
		return services.Wrap(services.ErrDependencyMissing, "batch", "preflight",
			fmt.Sprintf("unavailable: %v", missing), nil)
	}
	return nil
}

func (o *Orchestrator) runItem(ctx context.Context, progressLog *progress.Log, item manifest.WorkItem) ItemResult {
	result := ItemResult{ID: item.ID, State: StatePending, ExitCode: -1}
	ctx = logging.WithItem(ctx, item.ID)
	itemLogger := logging.WithContext(ctx, o.logger)

	done, err := o.store.IsDone(ctx, item.ID)
	if err != nil {
		return o.failItem(ctx, itemLogger, progressLog, item, result, err)
	}
	if done {
		if !o.cfg.Batch.RetryCompleted {
			itemLogger.Info("skipping item", logging.String("reason", "already done"))
			result.State = StateSkipped
			result.Reason = "already done"
			return result
		}
		if err := o.store.ClearDone(ctx, item.ID); err != nil {
			return o.failItem(ctx, itemLogger, progressLog, item, result, err)
		}
	}
	failed, err := o.store.IsFailed(ctx, item.ID)
	if err != nil {
		return o.failItem(ctx, itemLogger, progressLog, item, result, err)
	}
	if failed && o.cfg.Batch.SkipFailed {
		itemLogger.Info("skipping item", logging.String("reason", "previously failed"))
		result.State = StateSkipped
		result.Reason = "previously failed"
		return result
	}

	result.Started = time.Now().UTC()

	result.State = StateFetching
	inputs := make([]string, 0, len(item.Artifacts))
	for _, artifact := range item.Artifacts {
		dest := filepath.Join(o.inputDir(item.ID), artifact.Name())
		if err := o.fetcher.Fetch(ctx, artifact, dest); err != nil {
			itemLogger.Error("fetch failed",
				logging.String("url", artifact.URL),
				logging.Error(err))
			return o.failItem(ctx, itemLogger, progressLog, item, result, err)
		}
		inputs = append(inputs, dest)
	}

	result.State = StateProcessing
	inv, err := o.tool.Plan(item, inputs)
	if err != nil {
		return o.failItem(ctx, itemLogger, progressLog, item, result, err)
	}
	runResult, err := o.runner.Run(ctx, item.ID, inv)
	result.ExitCode = runResult.ExitCode
	if err != nil {
		itemLogger.Error("processing failed",
			logging.Int("exit_code", runResult.ExitCode),
			logging.String("log_path", runResult.LogPath),
			logging.Error(err))
		return o.failItemWithLog(ctx, itemLogger, progressLog, item, result, err, runResult.LogPath)
	}

	if err := o.store.MarkOK(ctx, item.ID); err != nil {
		return o.failItem(ctx, itemLogger, progressLog, item, result, err)
	}
	result.State = StateDone
	result.ExitCode = 0
	result.Finished = time.Now().UTC()
	o.appendProgress(itemLogger, progressLog, result, progress.StatusOK)
	o.cleanupInputs(itemLogger, item, inv)
	itemLogger.Info("item done",
		logging.Duration("elapsed", result.Finished.Sub(result.Started)))
	return result
}

func (o *Orchestrator) failItem(ctx context.Context, logger *slog.Logger, progressLog *progress.Log, item manifest.WorkItem, result ItemResult, cause error) ItemResult {
	return o.failItemWithLog(ctx, logger, progressLog, item, result, cause, "")
}

// failItemWithLog records the terminal FAIL state, appends a progress row,
// and reclaims the item's disk before the loop moves on.
func (o *Orchestrator) failItemWithLog(ctx context.Context, logger *slog.Logger, progressLog *progress.Log, item manifest.WorkItem, result ItemResult, cause error, logPath string) ItemResult {
	result.State = StateFailed
	result.Err = cause
	result.Reason = services.Reason(cause)
	if result.Finished.IsZero() {
		result.Finished = time.Now().UTC()
	}
	if result.Started.IsZero() {
		result.Started = result.Finished
	}
	failure := tracker.Failure{
		ExitCode: result.ExitCode,
		LogPath:  logPath,
		Reason:   result.Reason,
		At:       result.Finished,
	}
	if err := o.store.MarkFailed(ctx, item.ID, failure); err != nil {
		logger.Error("recording failure state failed", logging.Error(err))
	}
	o.appendProgress(logger, progressLog, result, progress.StatusFail)
	o.cleanupInputs(logger, item, processor.Invocation{})
	return result
}

func (o *Orchestrator) appendProgress(logger *slog.Logger, progressLog *progress.Log, result ItemResult, status progress.Status) {
	record := progress.Record{
		ItemID:     result.ID,
		Status:     status,
		StartedAt:  result.Started,
		FinishedAt: result.Finished,
		ExitCode:   result.ExitCode,
	}
	if err := progressLog.Append(record); err != nil {
		logger.Error("appending progress row failed", logging.Error(err))
	}
}

// cleanupInputs deletes an item's fetched inputs and declared scratch after
// a terminal state, unless retention is configured. Failed items do not get
// to keep consuming disk.
func (o *Orchestrator) cleanupInputs(logger *slog.Logger, item manifest.WorkItem, inv processor.Invocation) {
	if o.cfg.Batch.KeepInputs {
		return
	}
	targets := append([]string{o.inputDir(item.ID)}, inv.TempDirs...)
	for _, dir := range targets {
		if dir == "" {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("input cleanup failed",
				logging.String("path", dir),
				logging.Error(err))
		}
	}
}

func probeWritable(dir string) error {
	probe := filepath.Join(dir, ".krill-probe")
	if err := os.WriteFile(probe, []byte("probe"), 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}
