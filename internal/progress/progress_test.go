package progress

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAppendWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metaphlan_progress.tsv")
	log, err := OpenLog(path)
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, record := range []Record{
		{ItemID: "SRR100", Status: StatusOK, StartedAt: started, FinishedAt: started.Add(time.Minute)},
		{ItemID: "SRR101", Status: StatusFail, StartedAt: started, FinishedAt: started.Add(time.Second), ExitCode: 2},
	} {
		if err := log.Append(record); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines: %q", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "item_id\t") {
		t.Errorf("missing header: %q", lines[0])
	}
	if !strings.Contains(lines[2], "SRR101\tFAIL\t") || !strings.HasSuffix(lines[2], "\t2") {
		t.Errorf("unexpected fail row: %q", lines[2])
	}
}

func TestAppendRequiresItemID(t *testing.T) {
	log, err := OpenLog(filepath.Join(t.TempDir(), "p.tsv"))
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	if err := log.Append(Record{Status: StatusOK}); err == nil {
		t.Fatal("expected error for empty item id")
	}
}

func TestReadLogRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.tsv")
	log, err := OpenLog(path)
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	want := Record{
		ItemID:     "SRR200",
		Status:     StatusFail,
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		ExitCode:   137,
	}
	if err := log.Append(want); err != nil {
		t.Fatalf("Append: %v", err)
	}

	records, err := ReadLog(path)
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	if got.ItemID != want.ItemID || got.Status != want.Status || got.ExitCode != want.ExitCode {
		t.Errorf("record mismatch: got %+v want %+v", got, want)
	}
	if !got.StartedAt.Equal(want.StartedAt) || !got.FinishedAt.Equal(want.FinishedAt) {
		t.Errorf("timestamps lost: got %+v", got)
	}
}

func TestReadLogMissingFile(t *testing.T) {
	records, err := ReadLog(filepath.Join(t.TempDir(), "never-written.tsv"))
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestLatestKeepsMostRecentAttempt(t *testing.T) {
	records := []Record{
		{ItemID: "A", Status: StatusFail, ExitCode: 1},
		{ItemID: "B", Status: StatusOK},
		{ItemID: "A", Status: StatusOK},
	}
	latest := Latest(records)
	if len(latest) != 2 {
		t.Fatalf("expected 2 items, got %d", len(latest))
	}
	if latest["A"].Status != StatusOK {
		t.Errorf("retry outcome should supersede: got %+v", latest["A"])
	}
}
