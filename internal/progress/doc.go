// Package progress maintains the per-tool append-only attempt log.
package progress
