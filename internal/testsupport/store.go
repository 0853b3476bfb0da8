package testsupport

import (
	"context"
	"testing"

	"krill/internal/config"
	"krill/internal/tracker"
)

// MustOpenTracker opens a tracker.Store for tests and registers cleanup.
func MustOpenTracker(t testing.TB, cfg *config.Config, tool string) tracker.Store {
	t.Helper()

	store, err := tracker.Open(cfg, tool)
	if err != nil {
		t.Fatalf("tracker.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MarkDone records an OK state for the given items.
func MarkDone(t testing.TB, store tracker.Store, ids ...string) {
	t.Helper()

	for _, id := range ids {
		if err := store.MarkOK(context.Background(), id); err != nil {
			t.Fatalf("MarkOK %s: %v", id, err)
		}
	}
}
