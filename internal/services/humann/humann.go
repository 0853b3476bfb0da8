package humann

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"krill/internal/config"
	"krill/internal/deps"
	"krill/internal/manifest"
	"krill/internal/merge"
	"krill/internal/processor"
	"krill/internal/services"
)

// Tool plans HUMAnN functional profiling runs.
type Tool struct {
	cfg *config.Config
}

// New builds the HUMAnN tool from configuration.
func New(cfg *config.Config) *Tool {
	return &Tool{cfg: cfg}
}

func (t *Tool) Name() string { return "humann" }

// OutputDir is where per-item output directories are created.
func (t *Tool) OutputDir() string {
	return filepath.Join(t.cfg.Paths.OutputDir, "humann")
}

// ItemOutputDir is the directory HUMAnN writes one item's tables into.
func (t *Tool) ItemOutputDir(itemID string) string {
	return filepath.Join(t.OutputDir(), itemID)
}

func (t *Tool) tablePath(itemID, suffix string) string {
	return filepath.Join(t.ItemOutputDir(itemID), itemID+"_"+suffix+".tsv")
}

func (t *Tool) Requirements() processor.Requirements {
	return processor.Requirements{
		Binaries: []deps.Requirement{{
			Name:        "HUMAnN",
			Command:     t.cfg.HUMAnN.Binary,
			Description: "functional profiler",
		}},
		Databases: []deps.DatabaseRequirement{
			{
				Name:        "ChocoPhlAn nucleotide database",
				Path:        t.cfg.HUMAnN.NucleotideDB,
				Description: "pangenome database",
			},
			{
				Name:        "UniRef protein database",
				Path:        t.cfg.HUMAnN.ProteinDB,
				Description: "translated search database",
			},
		},
	}
}

// Plan builds one HUMAnN invocation. The profiler takes a single input
// file, so paired mates are concatenated first; gzip members concatenate
// into a valid gzip stream, so this is a plain byte-level append.
func (t *Tool) Plan(item manifest.WorkItem, inputs []string) (processor.Invocation, error) {
	if len(inputs) == 0 {
		return processor.Invocation{}, services.Wrap(services.ErrConfiguration, t.Name(), "plan",
			fmt.Sprintf("item %s has no fetched inputs", item.ID), nil)
	}
	scratch := filepath.Join(t.cfg.Paths.WorkDir, "humann", item.ID)

	input := inputs[0]
	if len(inputs) > 1 {
		combined, err := concatenate(inputs, scratch, item.ID)
		if err != nil {
			return processor.Invocation{}, fmt.Errorf("combine mates for %s: %w", item.ID, err)
		}
		input = combined
	}

	itemOut := t.ItemOutputDir(item.ID)
	args := []string{
		"--input", input,
		"--output", itemOut,
		"--output-basename", item.ID,
		"--threads", strconv.Itoa(t.cfg.Batch.Threads),
	}
	if t.cfg.HUMAnN.NucleotideDB != "" {
		args = append(args, "--nucleotide-database", t.cfg.HUMAnN.NucleotideDB)
	}
	if t.cfg.HUMAnN.ProteinDB != "" {
		args = append(args, "--protein-database", t.cfg.HUMAnN.ProteinDB)
	}
	args = append(args, t.cfg.HUMAnN.ExtraArgs...)

	return processor.Invocation{
		Binary:  t.cfg.HUMAnN.Binary,
		Args:    args,
		WorkDir: scratch,
		ExpectedOutputs: []string{
			t.tablePath(item.ID, "genefamilies"),
			t.tablePath(item.ID, "pathabundance"),
			t.tablePath(item.ID, "pathcoverage"),
		},
		TempDirs: []string{
			scratch,
			filepath.Join(itemOut, item.ID+"_humann_temp"),
		},
	}, nil
}

// MergeSpecs combines the three per-item table families keyed by gene
// family or pathway.
func (t *Tool) MergeSpecs() []merge.Spec {
	item := func(suffix string) func(string) string {
		return func(itemID string) string { return t.tablePath(itemID, suffix) }
	}
	return []merge.Spec{
		{
			OutputName:    "humann_merged_genefamilies",
			FeatureColumn: "# Gene Family",
			ItemTable:     item("genefamilies"),
			Comments:      []string{"merged humann gene family abundances, one column per run"},
		},
		{
			OutputName:    "humann_merged_pathabundance",
			FeatureColumn: "# Pathway",
			ItemTable:     item("pathabundance"),
			Comments:      []string{"merged humann pathway abundances, one column per run"},
		},
		{
			OutputName:    "humann_merged_pathcoverage",
			FeatureColumn: "# Pathway",
			ItemTable:     item("pathcoverage"),
			Comments:      []string{"merged humann pathway coverage, one column per run"},
		},
	}
}

func concatenate(inputs []string, scratch, itemID string) (string, error) {
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	combined := filepath.Join(scratch, itemID+".fastq.gz")
	out, err := os.Create(combined)
	if err != nil {
		return "", fmt.Errorf("create combined input: %w", err)
	}
	defer out.Close()
	for _, path := range inputs {
		in, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open mate %s: %w", path, err)
		}
		_, copyErr := io.Copy(out, in)
		in.Close()
		if copyErr != nil {
			return "", fmt.Errorf("append mate %s: %w", path, copyErr)
		}
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("flush combined input: %w", err)
	}
	return combined, nil
}
