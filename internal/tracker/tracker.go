package tracker

import (
	"context"
	"fmt"
	"time"

	"krill/internal/config"
)

// State is the terminal state recorded for a work item.
type State string

const (
	// StateOK records that processing succeeded and canonical outputs exist.
	StateOK State = "ok"
	// StateFailed records an attempted and failed item.
	StateFailed State = "fail"
)

// Failure captures the details recorded alongside a FAIL state.
type Failure struct {
	ExitCode int       `json:"exit_code"`
	LogPath  string    `json:"log_path,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

// Store persists terminal item states across process and machine restarts.
// The orchestrator checks it immediately before any expensive work; it is the
// only cross-run state surface besides the append-only progress log.
type Store interface {
	// IsDone reports whether the item has a durable OK state.
	IsDone(ctx context.Context, id string) (bool, error)
	// IsFailed reports whether the item has a durable FAIL state.
	IsFailed(ctx context.Context, id string) (bool, error)
	// MarkOK records success. Any FAIL state for the item is cleared:
	// OK supersedes FAIL.
	MarkOK(ctx context.Context, id string) error
	// MarkFailed records a failure with its exit code and log pointer.
	MarkFailed(ctx context.Context, id string, failure Failure) error
	// ClearFailed removes a FAIL state so a later run re-attempts the item.
	ClearFailed(ctx context.Context, id string) error
	// ClearDone removes an OK state (force-retry support).
	ClearDone(ctx context.Context, id string) error
	// Failure returns the recorded failure details, if any.
	Failure(ctx context.Context, id string) (Failure, bool, error)
	// States returns the terminal state of every known item.
	States(ctx context.Context) (map[string]State, error)
	// Close releases backend resources.
	Close() error
}

// Open constructs the configured tracker backend, scoped to one tool so
// taxonomic and functional batches never share state.
func Open(cfg *config.Config, tool string) (Store, error) {
	if tool == "" {
		return nil, fmt.Errorf("tracker: tool name required")
	}
	switch cfg.Tracker.Backend {
	case "markers":
		return OpenMarkers(cfg.Tracker.StateDir, tool)
	case "sqlite":
		return OpenDB(cfg.Tracker.StateDir, tool)
	default:
		return nil, fmt.Errorf("tracker: unknown backend %q", cfg.Tracker.Backend)
	}
}
