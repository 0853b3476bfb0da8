package deps

import (
	"os"
	"path/filepath"
	"testing"

	"krill/internal/testsupport"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unconfigured", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}

	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected status for blank command: %#v", results[2])
	}
}

func TestCheckDatabases(t *testing.T) {
	root := t.TempDir()
	withMarker := filepath.Join(root, "mpa")
	if err := os.MkdirAll(withMarker, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(withMarker, "mpa_latest"), []byte("mpa_vJan25\n"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	noMarker := filepath.Join(root, "chocophlan")
	if err := os.MkdirAll(noMarker, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	notDir := filepath.Join(root, "plain-file")
	testsupport.WriteFile(t, notDir, 16)

	reqs := []DatabaseRequirement{
		{Name: "MetaPhlAn DB", Path: withMarker, Marker: "mpa_latest"},
		{Name: "Marker missing", Path: noMarker, Marker: "mpa_latest"},
		{Name: "No marker needed", Path: noMarker},
		{Name: "Absent", Path: filepath.Join(root, "nope")},
		{Name: "Not a dir", Path: notDir},
		{Name: "Unconfigured", Path: ""},
	}

	results := CheckDatabases(reqs)
	wantAvailable := []bool{true, false, true, false, false, false}
	for i, want := range wantAvailable {
		if results[i].Available != want {
			t.Errorf("%s: available=%v want %v (detail %q)", results[i].Name, results[i].Available, want, results[i].Detail)
		}
	}
}

func TestMissingRequired(t *testing.T) {
	statuses := []Status{
		{Name: "A", Available: true},
		{Name: "B", Available: false, Optional: true},
		{Name: "C", Available: false},
	}
	missing := MissingRequired(statuses)
	if len(missing) != 1 || missing[0] != "C" {
		t.Fatalf("unexpected missing set: %v", missing)
	}
}
