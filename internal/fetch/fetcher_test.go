package fetch_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"krill/internal/config"
	"krill/internal/fetch"
	"krill/internal/manifest"
	"krill/internal/services"
)

func testFetchConfig() config.Fetch {
	return config.Fetch{
		VerifyChecksums:     true,
		VerifyGzip:          true,
		Retries:             3,
		RetryBackoffSeconds: 1,
	}
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func gzipBytes(t *testing.T, payload string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(payload)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestFetchDownloadsAndIsIdempotent(t *testing.T) {
	body := gzipBytes(t, "read data")
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write(body)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "DRR000001_1.fastq.gz")
	artifact := manifest.RemoteArtifact{URL: server.URL + "/DRR000001_1.fastq.gz", Checksum: md5Hex(body)}

	f := fetch.New(testFetchConfig(), fetch.WithBackoff(time.Millisecond))
	if err := f.Fetch(context.Background(), artifact, dest); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatal("downloaded bytes differ from served bytes")
	}
	if requests.Load() != 1 {
		t.Fatalf("expected 1 request, got %d", requests.Load())
	}

	// Second call must be satisfied from disk with zero network I/O.
	if err := f.Fetch(context.Background(), artifact, dest); err != nil {
		t.Fatalf("second Fetch returned error: %v", err)
	}
	if requests.Load() != 1 {
		t.Fatalf("expected no additional requests, got %d total", requests.Load())
	}
}

func TestFetchResumesPartialDownload(t *testing.T) {
	body := gzipBytes(t, strings.Repeat("sequencing reads\n", 200))
	var sawRange atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rng := r.Header.Get("Range"); rng != "" {
			sawRange.Store(true)
			var offset int64
			if _, err := fmt.Sscanf(rng, "bytes=%d-", &offset); err != nil || offset >= int64(len(body)) {
				w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
				return
			}
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, len(body)-1, len(body)))
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write(body[offset:])
			return
		}
		_, _ = w.Write(body)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "reads.fastq.gz")
	half := len(body) / 2
	if err := os.WriteFile(dest+".part", body[:half], 0o644); err != nil {
		t.Fatalf("seed partial file: %v", err)
	}

	artifact := manifest.RemoteArtifact{URL: server.URL + "/reads.fastq.gz", Checksum: md5Hex(body)}
	f := fetch.New(testFetchConfig(), fetch.WithBackoff(time.Millisecond))
	if err := f.Fetch(context.Background(), artifact, dest); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if !sawRange.Load() {
		t.Fatal("expected a Range request for the partial file")
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatal("resumed file does not match served bytes")
	}
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	body := gzipBytes(t, "eventually works")
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(body)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "flaky.fastq.gz")
	artifact := manifest.RemoteArtifact{URL: server.URL + "/flaky.fastq.gz", Checksum: md5Hex(body)}
	f := fetch.New(testFetchConfig(), fetch.WithBackoff(time.Millisecond))
	if err := f.Fetch(context.Background(), artifact, dest); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if requests.Load() != 2 {
		t.Fatalf("expected 2 requests (one retry), got %d", requests.Load())
	}
}

func TestFetchDoesNotRetryNotFound(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "missing.fastq.gz")
	artifact := manifest.RemoteArtifact{URL: server.URL + "/missing.fastq.gz"}
	f := fetch.New(testFetchConfig(), fetch.WithBackoff(time.Millisecond))
	err := f.Fetch(context.Background(), artifact, dest)
	if !errors.Is(err, services.ErrTransfer) {
		t.Fatalf("expected ErrTransfer, got %v", err)
	}
	if requests.Load() != 1 {
		t.Fatalf("404 must not be retried; got %d requests", requests.Load())
	}
}

func TestFetchReplacesCachedFileWithBadChecksum(t *testing.T) {
	body := gzipBytes(t, "fresh copy")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "stale.fastq.gz")
	if err := os.WriteFile(dest, []byte("stale bytes"), 0o644); err != nil {
		t.Fatalf("seed stale file: %v", err)
	}

	artifact := manifest.RemoteArtifact{URL: server.URL + "/stale.fastq.gz", Checksum: md5Hex(body)}
	f := fetch.New(testFetchConfig(), fetch.WithBackoff(time.Millisecond))
	if err := f.Fetch(context.Background(), artifact, dest); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	got, _ := os.ReadFile(dest)
	if !bytes.Equal(got, body) {
		t.Fatal("stale cached file was not replaced")
	}
}

func TestFetchIntegrityFailureKeepsFile(t *testing.T) {
	// Server always returns bytes that cannot match the manifest checksum.
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte("corrupt payload"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "corrupt.bin")
	artifact := manifest.RemoteArtifact{URL: server.URL + "/corrupt.bin", Checksum: md5Hex([]byte("expected payload"))}
	f := fetch.New(testFetchConfig(), fetch.WithBackoff(time.Millisecond))
	err := f.Fetch(context.Background(), artifact, dest)
	if !errors.Is(err, services.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
	// One invalidate-and-refetch, then give up.
	if requests.Load() != 2 {
		t.Fatalf("expected 2 download attempts, got %d", requests.Load())
	}
	if _, statErr := os.Stat(dest); statErr != nil {
		t.Fatalf("corrupt file must be kept for inspection: %v", statErr)
	}
}

func TestFetchDetectsCorruptGzip(t *testing.T) {
	corrupt := []byte("definitely not gzip")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(corrupt)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "bad.fastq.gz")
	// Checksum matches the corrupt bytes, so only the gzip check can catch it.
	artifact := manifest.RemoteArtifact{URL: server.URL + "/bad.fastq.gz", Checksum: md5Hex(corrupt)}
	f := fetch.New(testFetchConfig(), fetch.WithBackoff(time.Millisecond))
	err := f.Fetch(context.Background(), artifact, dest)
	if !errors.Is(err, services.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity for corrupt gzip, got %v", err)
	}
}

func TestFetchReportsProgress(t *testing.T) {
	body := gzipBytes(t, strings.Repeat("x", 4096))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer server.Close()

	var last fetch.Progress
	dest := filepath.Join(t.TempDir(), "progress.fastq.gz")
	artifact := manifest.RemoteArtifact{URL: server.URL + "/progress.fastq.gz", Checksum: md5Hex(body)}
	f := fetch.New(testFetchConfig(),
		fetch.WithBackoff(time.Millisecond),
		fetch.WithProgress(func(p fetch.Progress) { last = p }),
	)
	if err := f.Fetch(context.Background(), artifact, dest); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if last.Downloaded != int64(len(body)) {
		t.Fatalf("expected final progress %d, got %d", len(body), last.Downloaded)
	}
	if last.Name != "progress.fastq.gz" {
		t.Fatalf("unexpected progress name %q", last.Name)
	}
}
