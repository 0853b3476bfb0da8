package tracker_test

import (
	"krill/internal/config"
)

func testConfig(stateDir, backend string) *config.Config {
	cfg := config.Default()
	cfg.Tracker.Backend = backend
	cfg.Tracker.StateDir = stateDir
	return &cfg
}
