// Package processor runs external profiling tools for one work item at a
// time, capturing combined output to a per-item log and verifying that the
// declared outputs actually materialized.
package processor
