// Package tracker persists the terminal state of each work item so batch
// runs restart without redoing completed work.
//
// Two backends satisfy the same Store interface: marker files (the default;
// one .ok/.fail file per item, trivially inspectable with ls) and a SQLite
// database. State is scoped per tool, and OK always supersedes FAIL.
//
// The tracker deliberately provides no cross-process locking: a state check
// immediately before expensive work is the only protection against
// concurrent runs, and racing two runs on the same not-yet-done item is a
// documented operational hazard.
package tracker
