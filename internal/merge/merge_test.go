package merge

import (
	"bufio"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"krill/internal/services"
)

func writeTable(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write table: %v", err)
	}
}

func readMerged(t *testing.T, path string) []string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open merged: %v", err)
	}
	defer file.Close()
	gz, err := gzip.NewReader(file)
	if err != nil {
		t.Fatalf("merged output is not valid gzip: %v", err)
	}
	defer gz.Close()
	var lines []string
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("read merged: %v", err)
	}
	return lines
}

func profileSpec(dir string) Spec {
	return Spec{
		OutputName:    "merged_profiles",
		FeatureColumn: "clade_name",
		ValueColumn:   "relative_abundance",
		ItemTable: func(itemID string) string {
			return filepath.Join(dir, itemID+"_profile.tsv")
		},
		Comments: []string{"merged taxonomic profiles"},
	}
}

func TestRunOuterJoin(t *testing.T) {
	dir := t.TempDir()
	writeTable(t, filepath.Join(dir, "SRR1_profile.tsv"),
		"# tool version 4.1\n"+
			"clade_name\tNCBI_tax_id\trelative_abundance\n"+
			"k__Bacteria\t2\t99.5\n"+
			"k__Bacteria|p__Firmicutes\t2|1239\t60.1\n")
	writeTable(t, filepath.Join(dir, "SRR2_profile.tsv"),
		"clade_name\tNCBI_tax_id\trelative_abundance\n"+
			"k__Bacteria\t2\t98.2\n"+
			"k__Bacteria|p__Bacteroidota\t2|976\t40.0\n")

	dest, err := Run(profileSpec(dir), []string{"SRR1", "SRR2"}, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	lines := readMerged(t, dest)
	want := []string{
		"# merged taxonomic profiles",
		"clade_name\tSRR1\tSRR2",
		"k__Bacteria\t99.5\t98.2",
		"k__Bacteria|p__Firmicutes\t60.1\t",
		"k__Bacteria|p__Bacteroidota\t\t40.0",
	}
	if len(lines) != len(want) {
		t.Fatalf("line count = %d, want %d: %q", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestRunZeroItems(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	_, err := Run(profileSpec(dir), nil, outDir)
	if !errors.Is(err, services.ErrNoSuccessfulItems) {
		t.Fatalf("expected ErrNoSuccessfulItems, got %v", err)
	}
	if entries, _ := os.ReadDir(outDir); len(entries) != 0 {
		t.Errorf("no output should be written, found %d entries", len(entries))
	}
}

func TestRunMissingItemTable(t *testing.T) {
	dir := t.TempDir()
	_, err := Run(profileSpec(dir), []string{"SRR404"}, filepath.Join(dir, "out"))
	if !errors.Is(err, services.ErrMissingOutput) {
		t.Fatalf("expected ErrMissingOutput, got %v", err)
	}
}

func TestRunHashPrefixedHeader(t *testing.T) {
	dir := t.TempDir()
	spec := Spec{
		OutputName:    "merged_pathabundance",
		FeatureColumn: "# Pathway",
		ItemTable: func(itemID string) string {
			return filepath.Join(dir, itemID+"_pathabundance.tsv")
		},
	}
	writeTable(t, filepath.Join(dir, "SRR1_pathabundance.tsv"),
		"# Pathway\tSRR1_Abundance\nUNMAPPED\t5000.0\nPWY-101\t12.5\n")

	dest, err := Run(spec, []string{"SRR1"}, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	lines := readMerged(t, dest)
	if lines[0] != "# Pathway\tSRR1" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[2] != "PWY-101\t12.5" {
		t.Errorf("row = %q", lines[2])
	}
}

func TestRunGzippedInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "SRR1_profile.tsv.gz")
	var buf strings.Builder
	buf.WriteString("clade_name\trelative_abundance\nk__Archaea\t1.5\n")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	gz := gzip.NewWriter(file)
	if _, err := gz.Write([]byte(buf.String())); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	spec := profileSpec(dir)
	spec.ItemTable = func(itemID string) string { return path }
	spec.ValueColumn = "relative_abundance"
	dest, err := Run(spec, []string{"SRR1"}, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	lines := readMerged(t, dest)
	if lines[len(lines)-1] != "k__Archaea\t1.5" {
		t.Errorf("unexpected rows: %q", lines)
	}
}

func TestRunOverwritesWholesale(t *testing.T) {
	dir := t.TempDir()
	writeTable(t, filepath.Join(dir, "SRR1_profile.tsv"),
		"clade_name\trelative_abundance\nk__Bacteria\t99.0\n")
	writeTable(t, filepath.Join(dir, "SRR2_profile.tsv"),
		"clade_name\trelative_abundance\nk__Bacteria\t88.0\n")
	outDir := filepath.Join(dir, "out")

	if _, err := Run(profileSpec(dir), []string{"SRR1", "SRR2"}, outDir); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	dest, err := Run(profileSpec(dir), []string{"SRR1"}, outDir)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	lines := readMerged(t, dest)
	if lines[1] != "clade_name\tSRR1" {
		t.Errorf("rerun should replace the table, header = %q", lines[1])
	}
}
