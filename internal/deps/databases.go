package deps

import (
	"fmt"
	"os"
	"strings"
)

// DatabaseRequirement defines a reference database a profiler needs on disk.
// Marker optionally names a file that must exist inside Path for the
// database to count as installed.
type DatabaseRequirement struct {
	Name        string
	Path        string
	Marker      string
	Description string
	Optional    bool
}

// CheckDatabases verifies that each reference database directory exists and,
// when a marker file is named, that the marker is present.
func CheckDatabases(requirements []DatabaseRequirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		path := strings.TrimSpace(req.Path)
		status := Status{
			Name:        req.Name,
			Command:     path,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if path == "" {
			status.Detail = "path not configured"
			results = append(results, status)
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			status.Detail = fmt.Sprintf("database path %q not found", path)
			results = append(results, status)
			continue
		}
		if !info.IsDir() {
			status.Detail = fmt.Sprintf("database path %q is not a directory", path)
			results = append(results, status)
			continue
		}
		if marker := strings.TrimSpace(req.Marker); marker != "" {
			entries, err := os.ReadDir(path)
			if err != nil {
				status.Detail = fmt.Sprintf("database path %q unreadable", path)
				results = append(results, status)
				continue
			}
			if !containsMarker(entries, marker) {
				status.Detail = fmt.Sprintf("marker %q missing from %q", marker, path)
				results = append(results, status)
				continue
			}
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

func containsMarker(entries []os.DirEntry, marker string) bool {
	for _, entry := range entries {
		if entry.Name() == marker {
			return true
		}
	}
	return false
}
