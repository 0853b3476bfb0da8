// Command krill downloads sequencing runs, drives external profilers over
// them one item at a time, and merges the per-item outputs. State is durable
// on disk so an interrupted batch resumes where it left off.
package main
