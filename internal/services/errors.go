package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrManifest marks a malformed work-item manifest. Fatal: no work starts.
	ErrManifest = errors.New("manifest error")
	// ErrDependencyMissing marks absent static prerequisites of an external
	// tool (binary or reference database). Fatal: no item can succeed.
	ErrDependencyMissing = errors.New("dependency missing")
	// ErrConfiguration marks invalid or incomplete configuration. Fatal.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransfer marks a transient network failure during artifact download.
	ErrTransfer = errors.New("transfer error")
	// ErrIntegrity marks checksum or structural corruption of a downloaded
	// artifact.
	ErrIntegrity = errors.New("integrity error")
	// ErrExternalTool marks a non-zero exit from the external profiler.
	ErrExternalTool = errors.New("external tool error")
	// ErrMissingOutput marks a zero exit where a required output file is
	// absent or empty. Kept distinct from ErrExternalTool so operators can
	// tell a crash from a silent no-op.
	ErrMissingOutput = errors.New("missing output")
	// ErrNoSuccessfulItems marks a merge attempted over zero completed items.
	ErrNoSuccessfulItems = errors.New("no successful items")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether an error should abort the whole batch rather than
// fail a single item.
func IsFatal(err error) bool {
	switch {
	case errors.Is(err, ErrManifest),
		errors.Is(err, ErrDependencyMissing),
		errors.Is(err, ErrConfiguration):
		return true
	default:
		return false
	}
}

// Reason returns the short classification label recorded in progress logs and
// structured log fields for a failed item.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransfer):
		return "transfer"
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	case errors.Is(err, ErrMissingOutput):
		return "missing_output"
	case errors.Is(err, ErrExternalTool):
		return "tool"
	case errors.Is(err, ErrManifest):
		return "manifest"
	case errors.Is(err, ErrDependencyMissing):
		return "dependency"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNoSuccessfulItems):
		return "no_successful_items"
	default:
		return "error"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
