package merge

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"krill/internal/services"
)

// Spec describes how one family of per-item tables is combined.
type Spec struct {
	// OutputName is the merged file base name; ".tsv.gz" is appended.
	OutputName string
	// FeatureColumn names the shared key column in each per-item table,
	// exactly as it appears in the table header (including any leading
	// "# " the tool emits).
	FeatureColumn string
	// ValueColumn names the per-item value column. Empty means the column
	// immediately after the feature column, which covers tools that embed
	// the item id in the column name.
	ValueColumn string
	// ItemTable maps an item id to its per-item table path. The file may
	// be gzip-compressed (".gz" suffix).
	ItemTable func(itemID string) string
	// Comments are written as "#"-prefixed lines at the top of the merged
	// table.
	Comments []string
}

// Run combines the per-item tables of every id in itemIDs into one gzip
// table under destDir, outer-joined on the feature column with one value
// column per item. Features keep first-seen order across items; an item
// lacking a feature gets an empty cell. The merged file is replaced
// wholesale via a temp file and rename.
func Run(spec Spec, itemIDs []string, destDir string) (string, error) {
	if len(itemIDs) == 0 {
		return "", services.Wrap(services.ErrNoSuccessfulItems, "merge", spec.OutputName,
			"no items reached done, nothing to merge", nil)
	}

	features := make([]string, 0, 256)
	index := make(map[string]int)
	values := make(map[string][]string)

	for col, itemID := range itemIDs {
		table, err := readTable(spec, spec.ItemTable(itemID))
		if err != nil {
			return "", fmt.Errorf("item %s: %w", itemID, err)
		}
		for _, feature := range table.order {
			if _, ok := index[feature]; !ok {
				index[feature] = len(features)
				features = append(features, feature)
				values[feature] = make([]string, len(itemIDs))
			}
			values[feature][col] = table.values[feature]
		}
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create merge output dir: %w", err)
	}
	dest := filepath.Join(destDir, spec.OutputName+".tsv.gz")
	if err := writeMerged(spec, dest, itemIDs, features, values); err != nil {
		return "", err
	}
	return dest, nil
}

type itemTable struct {
	order  []string
	values map[string]string
}

func readTable(spec Spec, path string) (itemTable, error) {
	table := itemTable{values: make(map[string]string)}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return table, services.Wrap(services.ErrMissingOutput, "merge", spec.OutputName,
				fmt.Sprintf("per-item table %q missing", path), nil)
		}
		return table, fmt.Errorf("open per-item table: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return table, fmt.Errorf("open gzip table %s: %w", path, err)
		}
		defer gz.Close()
		reader = gz
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	featureIdx, valueIdx := -1, -1
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if featureIdx < 0 {
			if cols[0] == spec.FeatureColumn {
				featureIdx = 0
				valueIdx = resolveValueColumn(spec, cols)
				if valueIdx < 0 {
					return table, fmt.Errorf("table %s: value column %q not found", path, spec.ValueColumn)
				}
				continue
			}
			if strings.HasPrefix(line, "#") {
				continue
			}
			return table, fmt.Errorf("table %s: header with column %q not found", path, spec.FeatureColumn)
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if len(cols) <= valueIdx {
			continue
		}
		feature := cols[featureIdx]
		if _, seen := table.values[feature]; !seen {
			table.order = append(table.order, feature)
		}
		table.values[feature] = cols[valueIdx]
	}
	if err := scanner.Err(); err != nil {
		return table, fmt.Errorf("read per-item table %s: %w", path, err)
	}
	if featureIdx < 0 {
		return table, fmt.Errorf("table %s: header with column %q not found", path, spec.FeatureColumn)
	}
	return table, nil
}

func resolveValueColumn(spec Spec, header []string) int {
	if spec.ValueColumn == "" {
		if len(header) > 1 {
			return 1
		}
		return -1
	}
	for i, name := range header {
		if name == spec.ValueColumn {
			return i
		}
	}
	return -1
}

func writeMerged(spec Spec, dest string, itemIDs, features []string, values map[string][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create merge temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	gz := gzip.NewWriter(tmp)
	writer := bufio.NewWriter(gz)
	for _, comment := range spec.Comments {
		if _, err := fmt.Fprintf(writer, "# %s\n", comment); err != nil {
			return fmt.Errorf("write merged table: %w", err)
		}
	}
	header := append([]string{spec.FeatureColumn}, itemIDs...)
	if _, err := writer.WriteString(strings.Join(header, "\t") + "\n"); err != nil {
		return fmt.Errorf("write merged table: %w", err)
	}
	row := make([]string, 0, len(itemIDs)+1)
	for _, feature := range features {
		row = append(row[:0], feature)
		row = append(row, values[feature]...)
		if _, err := writer.WriteString(strings.Join(row, "\t") + "\n"); err != nil {
			return fmt.Errorf("write merged table: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush merged table: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("finish gzip stream: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close merge temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("replace merged table: %w", err)
	}
	return nil
}
