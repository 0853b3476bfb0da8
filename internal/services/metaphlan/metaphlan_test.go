package metaphlan

import (
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"krill/internal/config"
	"krill/internal/manifest"
	"krill/internal/services"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(root, "work")
	cfg.Paths.OutputDir = filepath.Join(root, "out")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	cfg.Batch.Threads = 8
	cfg.MetaPhlAn.DBDir = filepath.Join(root, "db")
	cfg.MetaPhlAn.Index = "mpa_vJan25"
	return &cfg
}

func TestPlanArgs(t *testing.T) {
	cfg := testConfig(t)
	tool := New(cfg)
	item := manifest.WorkItem{ID: "SRR100"}
	inputs := []string{"/data/SRR100_1.fastq.gz", "/data/SRR100_2.fastq.gz"}

	inv, err := tool.Plan(item, inputs)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if inv.Binary != "metaphlan" {
		t.Errorf("binary = %q", inv.Binary)
	}
	if inv.Args[0] != "/data/SRR100_1.fastq.gz,/data/SRR100_2.fastq.gz" {
		t.Errorf("mates not comma-joined: %q", inv.Args[0])
	}
	joined := strings.Join(inv.Args, " ")
	for _, want := range []string{
		"--input_type fastq",
		"--nproc 8",
		"--bowtie2db " + cfg.MetaPhlAn.DBDir,
		"-x mpa_vJan25",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %q", want, joined)
		}
	}
	if len(inv.ExpectedOutputs) != 1 || inv.ExpectedOutputs[0] != tool.ProfilePath("SRR100") {
		t.Errorf("expected outputs = %v", inv.ExpectedOutputs)
	}
	if !slices.Contains(inv.TempDirs, inv.WorkDir) {
		t.Errorf("scratch dir should be declared temp: %v vs %v", inv.TempDirs, inv.WorkDir)
	}
}

func TestPlanExtraArgs(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetaPhlAn.ExtraArgs = []string{"--tax_lev", "s"}
	inv, err := New(cfg).Plan(manifest.WorkItem{ID: "SRR100"}, []string{"/data/r.fastq.gz"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	joined := strings.Join(inv.Args, " ")
	if !strings.Contains(joined, "--tax_lev s") {
		t.Errorf("extra args not appended: %q", joined)
	}
}

func TestPlanNoInputs(t *testing.T) {
	_, err := New(testConfig(t)).Plan(manifest.WorkItem{ID: "SRR100"}, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestRequirements(t *testing.T) {
	reqs := New(testConfig(t)).Requirements()
	if len(reqs.Binaries) != 1 || reqs.Binaries[0].Command != "metaphlan" {
		t.Errorf("binaries = %+v", reqs.Binaries)
	}
	if len(reqs.Databases) != 1 || reqs.Databases[0].Marker != DBMarker {
		t.Errorf("databases = %+v", reqs.Databases)
	}
}

func TestMergeSpecs(t *testing.T) {
	tool := New(testConfig(t))
	specs := tool.MergeSpecs()
	if len(specs) != 1 {
		t.Fatalf("expected 1 merge spec, got %d", len(specs))
	}
	if specs[0].FeatureColumn != "clade_name" {
		t.Errorf("feature column = %q", specs[0].FeatureColumn)
	}
	if got := specs[0].ItemTable("SRR7"); got != tool.ProfilePath("SRR7") {
		t.Errorf("item table = %q", got)
	}
}
