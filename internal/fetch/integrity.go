package fetch

import (
	"compress/gzip"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"krill/internal/services"
)

func md5Matches(path, expected string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open for checksum: %w", err)
	}
	defer file.Close()

	hasher := md5.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return false, fmt.Errorf("hash %s: %w", path, err)
	}
	sum := hex.EncodeToString(hasher.Sum(nil))
	return strings.EqualFold(sum, strings.TrimSpace(expected)), nil
}

func isGzipPath(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

// checkGzip decompresses the whole stream to detect truncation or
// corruption, the equivalent of gzip -t.
func checkGzip(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open for gzip check: %w", err)
	}
	defer file.Close()

	zr, err := gzip.NewReader(file)
	if err != nil {
		return services.Wrap(services.ErrIntegrity, "fetch", "gzip",
			fmt.Sprintf("%s: not a valid gzip stream", path), err)
	}
	defer zr.Close()

	if _, err := io.Copy(io.Discard, zr); err != nil {
		return services.Wrap(services.ErrIntegrity, "fetch", "gzip",
			fmt.Sprintf("%s: corrupt gzip stream", path), err)
	}
	return nil
}
