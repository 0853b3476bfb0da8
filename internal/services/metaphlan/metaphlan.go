package metaphlan

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"krill/internal/config"
	"krill/internal/deps"
	"krill/internal/manifest"
	"krill/internal/merge"
	"krill/internal/processor"
	"krill/internal/services"
)

// DBMarker is the file MetaPhlAn writes into an installed database
// directory naming the current index.
const DBMarker = "mpa_latest"

// Tool plans MetaPhlAn taxonomic profiling runs.
type Tool struct {
	cfg *config.Config
}

// New builds the MetaPhlAn tool from configuration.
func New(cfg *config.Config) *Tool {
	return &Tool{cfg: cfg}
}

func (t *Tool) Name() string { return "metaphlan" }

// OutputDir is where per-item profiles are written.
func (t *Tool) OutputDir() string {
	return filepath.Join(t.cfg.Paths.OutputDir, "metaphlan")
}

// ProfilePath returns the per-item profile table location.
func (t *Tool) ProfilePath(itemID string) string {
	return filepath.Join(t.OutputDir(), itemID+"_profile.tsv")
}

func (t *Tool) Requirements() processor.Requirements {
	return processor.Requirements{
		Binaries: []deps.Requirement{{
			Name:        "MetaPhlAn",
			Command:     t.cfg.MetaPhlAn.Binary,
			Description: "taxonomic profiler",
		}},
		Databases: []deps.DatabaseRequirement{{
			Name:        "MetaPhlAn database",
			Path:        t.cfg.MetaPhlAn.DBDir,
			Marker:      DBMarker,
			Description: "marker gene database (bowtie2 indexes)",
		}},
	}
}

// Plan builds one MetaPhlAn invocation. Paired inputs are passed as a
// comma-joined list, the way the profiler expects mates.
func (t *Tool) Plan(item manifest.WorkItem, inputs []string) (processor.Invocation, error) {
	if len(inputs) == 0 {
		return processor.Invocation{}, services.Wrap(services.ErrConfiguration, t.Name(), "plan",
			fmt.Sprintf("item %s has no fetched inputs", item.ID), nil)
	}
	if err := os.MkdirAll(t.OutputDir(), 0o755); err != nil {
		return processor.Invocation{}, fmt.Errorf("create output dir: %w", err)
	}
	scratch := filepath.Join(t.cfg.Paths.WorkDir, "metaphlan", item.ID)

	args := []string{
		strings.Join(inputs, ","),
		"--input_type", "fastq",
		"--nproc", strconv.Itoa(t.cfg.Batch.Threads),
		"--bowtie2out", filepath.Join(scratch, item.ID+".bowtie2.bz2"),
		"-o", t.ProfilePath(item.ID),
	}
	if t.cfg.MetaPhlAn.DBDir != "" {
		args = append(args, "--bowtie2db", t.cfg.MetaPhlAn.DBDir)
	}
	if t.cfg.MetaPhlAn.Index != "" {
		args = append(args, "-x", t.cfg.MetaPhlAn.Index)
	}
	args = append(args, t.cfg.MetaPhlAn.ExtraArgs...)

	return processor.Invocation{
		Binary:          t.cfg.MetaPhlAn.Binary,
		Args:            args,
		WorkDir:         scratch,
		ExpectedOutputs: []string{t.ProfilePath(item.ID)},
		TempDirs:        []string{scratch},
	}, nil
}

// MergeSpecs combines per-item profiles into one relative-abundance table
// keyed by clade.
func (t *Tool) MergeSpecs() []merge.Spec {
	return []merge.Spec{{
		OutputName:    "metaphlan_merged_profiles",
		FeatureColumn: "clade_name",
		ValueColumn:   "relative_abundance",
		ItemTable:     t.ProfilePath,
		Comments:      []string{"merged metaphlan relative abundances, one column per run"},
	}}
}
