// Package merge combines per-item profiler tables into one compressed table
// per output family, outer-joined on the shared feature column.
package merge
