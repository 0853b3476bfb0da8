package processor

import (
	"krill/internal/deps"
	"krill/internal/manifest"
	"krill/internal/merge"
)

// Invocation describes one external tool run for a single work item.
type Invocation struct {
	Binary string
	Args   []string
	// WorkDir is created before the run and used as the process working
	// directory when set.
	WorkDir string
	// Env entries are appended to the inherited environment.
	Env []string
	// ExpectedOutputs must exist and be non-empty after a zero exit;
	// otherwise the run counts as failed even though the tool reported
	// success.
	ExpectedOutputs []string
	// TempDirs are scratch directories the tool may leave behind. They are
	// removed best-effort on any failure so a failed item cannot exhaust
	// disk for the items after it.
	TempDirs []string
}

// Requirements lists what a tool needs on the host before any item runs.
type Requirements struct {
	Binaries  []deps.Requirement
	Databases []deps.DatabaseRequirement
}

// Tool plans invocations for work items. Implementations live in
// internal/services and carry the tool-specific argument conventions.
type Tool interface {
	Name() string
	Requirements() Requirements
	// OutputDir is where the tool's per-item outputs land.
	OutputDir() string
	// Plan builds the invocation for one item given the fetched input
	// paths in manifest order. Plan may prepare scratch files but never
	// runs the tool itself.
	Plan(item manifest.WorkItem, inputs []string) (Invocation, error)
	// MergeSpecs describes how this tool's per-item outputs combine into
	// batch-level tables.
	MergeSpecs() []merge.Spec
}
