package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"krill/internal/services"
)

// RemoteArtifact is one fetchable file required by a WorkItem.
type RemoteArtifact struct {
	URL      string
	Role     string
	Checksum string // md5 hex; empty means no checksum recorded
	Size     int64  // expected bytes; 0 means unknown
}

// Name returns the artifact's local file name, derived from the URL.
func (a RemoteArtifact) Name() string {
	return path.Base(strings.TrimRight(a.URL, "/"))
}

// WorkItem is the unit of batch processing: one sequencing run and the
// ordered artifacts it needs.
type WorkItem struct {
	ID        string
	Artifacts []RemoteArtifact
}

// Manifest is an ordered, de-duplicated set of work items.
type Manifest struct {
	Items []WorkItem
}

// TotalBytes sums the expected sizes of all artifacts (0 entries excluded).
func (m *Manifest) TotalBytes() int64 {
	var total int64
	for _, item := range m.Items {
		for _, a := range item.Artifacts {
			total += a.Size
		}
	}
	return total
}

// Item returns the work item with the given id, if present.
func (m *Manifest) Item(id string) (WorkItem, bool) {
	for _, item := range m.Items {
		if item.ID == id {
			return item, true
		}
	}
	return WorkItem{}, false
}

// Column aliases accepted in the header row. ENA-style manifests use
// run_accession/mate/md5; the generic form uses item_id/role/checksum.
var (
	itemColumns     = []string{"item_id", "run_accession"}
	roleColumns     = []string{"role", "mate"}
	urlColumns      = []string{"url", "fastq_ftp"}
	checksumColumns = []string{"checksum", "md5", "fastq_md5"}
	sizeColumns     = []string{"size_bytes", "fastq_bytes"}
)

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrManifest, "manifest", "open", path, err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads a tab-separated manifest with a header row. Items keep the
// order of their first occurrence; artifacts keep row order within an item.
func Parse(r io.Reader) (*Manifest, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, services.Wrap(services.ErrManifest, "manifest", "read", "header", err)
		}
		return nil, services.Wrap(services.ErrManifest, "manifest", "parse", "empty input", nil)
	}

	header := strings.Split(strings.TrimRight(scanner.Text(), "\r\n"), "\t")
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}

	itemCol, ok := findColumn(idx, itemColumns)
	if !ok {
		return nil, missingColumn(itemColumns)
	}
	roleCol, ok := findColumn(idx, roleColumns)
	if !ok {
		return nil, missingColumn(roleColumns)
	}
	urlCol, ok := findColumn(idx, urlColumns)
	if !ok {
		return nil, missingColumn(urlColumns)
	}
	checksumCol, hasChecksum := findColumn(idx, checksumColumns)
	sizeCol, hasSize := findColumn(idx, sizeColumns)

	m := &Manifest{}
	byID := make(map[string]int)
	line := 1
	for scanner.Scan() {
		line++
		raw := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(raw) == "" {
			continue
		}
		cols := strings.Split(raw, "\t")

		id := strings.TrimSpace(fieldAt(cols, itemCol))
		if id == "" {
			return nil, services.Wrap(services.ErrManifest, "manifest", "parse",
				fmt.Sprintf("line %d: empty item identifier", line), nil)
		}
		url := normalizeURL(fieldAt(cols, urlCol))
		if url == "" {
			return nil, services.Wrap(services.ErrManifest, "manifest", "parse",
				fmt.Sprintf("line %d: item %s has no url", line, id), nil)
		}

		artifact := RemoteArtifact{
			URL:  url,
			Role: strings.TrimSpace(fieldAt(cols, roleCol)),
		}
		if hasChecksum {
			artifact.Checksum = strings.ToLower(strings.TrimSpace(fieldAt(cols, checksumCol)))
		}
		if hasSize {
			if raw := strings.TrimSpace(fieldAt(cols, sizeCol)); raw != "" {
				size, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					return nil, services.Wrap(services.ErrManifest, "manifest", "parse",
						fmt.Sprintf("line %d: bad size %q", line, raw), err)
				}
				artifact.Size = size
			}
		}

		if pos, seen := byID[id]; seen {
			m.Items[pos].Artifacts = append(m.Items[pos].Artifacts, artifact)
		} else {
			byID[id] = len(m.Items)
			m.Items = append(m.Items, WorkItem{ID: id, Artifacts: []RemoteArtifact{artifact}})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, services.Wrap(services.ErrManifest, "manifest", "read", "", err)
	}
	if len(m.Items) == 0 {
		return nil, services.Wrap(services.ErrManifest, "manifest", "parse", "no work items", nil)
	}
	return m, nil
}

func findColumn(idx map[string]int, names []string) (int, bool) {
	for _, name := range names {
		if i, ok := idx[name]; ok {
			return i, true
		}
	}
	return 0, false
}

func missingColumn(names []string) error {
	return services.Wrap(services.ErrManifest, "manifest", "parse",
		fmt.Sprintf("missing required column (one of %s)", strings.Join(names, ", ")), nil)
}

func fieldAt(cols []string, i int) string {
	if i < 0 || i >= len(cols) {
		return ""
	}
	return cols[i]
}

// normalizeURL prepends https:// to the bare host paths the ENA file report
// emits (ftp.sra.ebi.ac.uk/..., sra-download...).
func normalizeURL(value string) string {
	url := strings.TrimSpace(value)
	if url == "" {
		return ""
	}
	switch {
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"), strings.HasPrefix(url, "ftp://"):
		return url
	case strings.HasPrefix(url, "ftp."), strings.HasPrefix(url, "sra-download."):
		return "https://" + url
	default:
		return "https://" + strings.TrimLeft(url, "/")
	}
}
