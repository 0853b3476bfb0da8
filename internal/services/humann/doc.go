// Package humann adapts the HUMAnN functional profiler as a batch tool.
package humann
