package progress

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// Status is the outcome recorded for one attempt.
type Status string

const (
	StatusOK   Status = "OK"
	StatusFail Status = "FAIL"
)

// Record is one append-only row: a single processing attempt for one item.
type Record struct {
	ItemID     string
	Status     Status
	StartedAt  time.Time
	FinishedAt time.Time
	ExitCode   int
}

const header = "item_id\tstatus\tstarted_at\tfinished_at\texit_code"

// Log appends attempt records to a tab-separated file. The file is never
// rewritten or truncated, so it doubles as an audit trail across runs. An
// advisory flock serializes appends from concurrently launched runs; it
// protects the file, not the items.
type Log struct {
	path string
	lock *flock.Flock
}

// OpenLog prepares an append-only progress log at path.
func OpenLog(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &Log{path: path, lock: flock.New(path + ".lock")}, nil
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// Append writes one record, adding the header when the file is new.
func (l *Log) Append(record Record) error {
	if record.ItemID == "" {
		return errors.New("progress: item id required")
	}
	if err := l.lock.Lock(); err != nil {
		return fmt.Errorf("lock progress log: %w", err)
	}
	defer func() { _ = l.lock.Unlock() }()

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open progress log: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat progress log: %w", err)
	}

	var b strings.Builder
	if info.Size() == 0 {
		b.WriteString(header)
		b.WriteByte('\n')
	}
	b.WriteString(strings.Join([]string{
		record.ItemID,
		string(record.Status),
		record.StartedAt.UTC().Format(time.RFC3339),
		record.FinishedAt.UTC().Format(time.RFC3339),
		strconv.Itoa(record.ExitCode),
	}, "\t"))
	b.WriteByte('\n')

	if _, err := file.WriteString(b.String()); err != nil {
		return fmt.Errorf("append progress record: %w", err)
	}
	return file.Close()
}

// ReadLog parses every record in the progress file. A missing file yields an
// empty slice: no attempts have been made yet.
func ReadLog(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open progress log: %w", err)
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	first := true
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r\n")
		if first {
			first = false
			if strings.HasPrefix(text, "item_id\t") {
				continue
			}
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		cols := strings.Split(text, "\t")
		if len(cols) != 5 {
			return nil, fmt.Errorf("progress log %s line %d: expected 5 columns, got %d", path, line, len(cols))
		}
		exitCode, err := strconv.Atoi(cols[4])
		if err != nil {
			return nil, fmt.Errorf("progress log %s line %d: bad exit code %q", path, line, cols[4])
		}
		record := Record{
			ItemID:   cols[0],
			Status:   Status(cols[1]),
			ExitCode: exitCode,
		}
		if started, err := time.Parse(time.RFC3339, cols[2]); err == nil {
			record.StartedAt = started
		}
		if finished, err := time.Parse(time.RFC3339, cols[3]); err == nil {
			record.FinishedAt = finished
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read progress log: %w", err)
	}
	return records, nil
}

// Latest returns the most recent record per item id, preserving no
// particular order.
func Latest(records []Record) map[string]Record {
	latest := make(map[string]Record, len(records))
	for _, record := range records {
		latest[record.ItemID] = record
	}
	return latest
}
