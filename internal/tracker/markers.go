package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Markers stores one file per item per terminal state under a directory:
// <dir>/<tool>/<id>.ok and <dir>/<tool>/<id>.fail. Presence is the state;
// the .fail file body carries the failure details as JSON.
type Markers struct {
	dir string
}

// OpenMarkers initializes a marker-file store for the given tool.
func OpenMarkers(stateDir, tool string) (*Markers, error) {
	dir := filepath.Join(stateDir, tool)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &Markers{dir: dir}, nil
}

func (m *Markers) okPath(id string) string { return filepath.Join(m.dir, id+".ok") }

func (m *Markers) failPath(id string) string { return filepath.Join(m.dir, id+".fail") }

func (m *Markers) IsDone(_ context.Context, id string) (bool, error) {
	return markerExists(m.okPath(id))
}

func (m *Markers) IsFailed(_ context.Context, id string) (bool, error) {
	return markerExists(m.failPath(id))
}

func (m *Markers) MarkOK(_ context.Context, id string) error {
	stamp := time.Now().UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(m.okPath(id), []byte(stamp), 0o644); err != nil {
		return fmt.Errorf("write ok marker: %w", err)
	}
	// OK supersedes FAIL.
	if err := os.Remove(m.failPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear fail marker: %w", err)
	}
	return nil
}

func (m *Markers) MarkFailed(_ context.Context, id string, failure Failure) error {
	if failure.At.IsZero() {
		failure.At = time.Now().UTC()
	}
	data, err := json.Marshal(failure)
	if err != nil {
		return fmt.Errorf("marshal failure: %w", err)
	}
	if err := os.WriteFile(m.failPath(id), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fail marker: %w", err)
	}
	return nil
}

func (m *Markers) ClearFailed(_ context.Context, id string) error {
	if err := os.Remove(m.failPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove fail marker: %w", err)
	}
	return nil
}

func (m *Markers) ClearDone(_ context.Context, id string) error {
	if err := os.Remove(m.okPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove ok marker: %w", err)
	}
	return nil
}

func (m *Markers) Failure(_ context.Context, id string) (Failure, bool, error) {
	data, err := os.ReadFile(m.failPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Failure{}, false, nil
		}
		return Failure{}, false, fmt.Errorf("read fail marker: %w", err)
	}
	var failure Failure
	if err := json.Unmarshal(data, &failure); err != nil {
		// Marker written by hand or truncated; presence still means failed.
		return Failure{}, true, nil
	}
	return failure, true, nil
}

func (m *Markers) States(_ context.Context) (map[string]State, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read state directory: %w", err)
	}
	states := make(map[string]State)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".ok"):
			states[strings.TrimSuffix(name, ".ok")] = StateOK
		case strings.HasSuffix(name, ".fail"):
			id := strings.TrimSuffix(name, ".fail")
			// OK wins when both markers exist.
			if states[id] != StateOK {
				states[id] = StateFailed
			}
		}
	}
	return states, nil
}

func (m *Markers) Close() error { return nil }

func markerExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat marker: %w", err)
}
