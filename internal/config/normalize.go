package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeTracker(); err != nil {
		return err
	}
	if err := c.normalizeProfilers(); err != nil {
		return err
	}
	c.normalizeFetch()
	c.normalizeBatch()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTracker() error {
	c.Tracker.Backend = strings.ToLower(strings.TrimSpace(c.Tracker.Backend))
	if c.Tracker.Backend == "" {
		c.Tracker.Backend = defaultTrackerBackend
	}
	if strings.TrimSpace(c.Tracker.StateDir) == "" {
		c.Tracker.StateDir = filepath.Join(c.Paths.WorkDir, "state")
		return nil
	}
	var err error
	if c.Tracker.StateDir, err = expandPath(c.Tracker.StateDir); err != nil {
		return fmt.Errorf("tracker.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeProfilers() error {
	var err error
	c.MetaPhlAn.Binary = strings.TrimSpace(c.MetaPhlAn.Binary)
	if c.MetaPhlAn.Binary == "" {
		c.MetaPhlAn.Binary = defaultMetaphlanBinary
	}
	if c.MetaPhlAn.DBDir != "" {
		if c.MetaPhlAn.DBDir, err = expandPath(c.MetaPhlAn.DBDir); err != nil {
			return fmt.Errorf("metaphlan.db_dir: %w", err)
		}
	}
	c.MetaPhlAn.Index = strings.TrimSpace(c.MetaPhlAn.Index)

	c.HUMAnN.Binary = strings.TrimSpace(c.HUMAnN.Binary)
	if c.HUMAnN.Binary == "" {
		c.HUMAnN.Binary = defaultHumannBinary
	}
	if c.HUMAnN.NucleotideDB != "" {
		if c.HUMAnN.NucleotideDB, err = expandPath(c.HUMAnN.NucleotideDB); err != nil {
			return fmt.Errorf("humann.nucleotide_db: %w", err)
		}
	}
	if c.HUMAnN.ProteinDB != "" {
		if c.HUMAnN.ProteinDB, err = expandPath(c.HUMAnN.ProteinDB); err != nil {
			return fmt.Errorf("humann.protein_db: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeFetch() {
	if c.Fetch.Retries <= 0 {
		c.Fetch.Retries = defaultFetchRetries
	}
	if c.Fetch.RetryBackoffSeconds <= 0 {
		c.Fetch.RetryBackoffSeconds = defaultFetchBackoffSeconds
	}
	if c.Fetch.RequestTimeoutSeconds < 0 {
		c.Fetch.RequestTimeoutSeconds = 0
	}
}

func (c *Config) normalizeBatch() {
	if c.Batch.Threads <= 0 {
		c.Batch.Threads = defaultBatchThreads
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
