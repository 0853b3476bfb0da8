package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"krill/internal/config"
	"krill/internal/logging"
	"krill/internal/manifest"
	"krill/internal/services"
)

// HTTPDoer describes the HTTP client used by the fetcher.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Progress reports download progress to an optional observer.
type Progress struct {
	Name       string
	Downloaded int64
	Total      int64 // 0 when the server does not report a length
}

// Option configures the fetcher.
type Option func(*Fetcher)

// WithHTTPClient injects a custom HTTP client (primarily for tests).
func WithHTTPClient(client HTTPDoer) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logging.NewComponentLogger(logger, "fetch")
		}
	}
}

// WithProgress registers a progress observer.
func WithProgress(fn func(Progress)) Option {
	return func(f *Fetcher) { f.progress = fn }
}

// WithBackoff overrides the retry backoff (tests use a short interval).
func WithBackoff(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.backoff = d
		}
	}
}

// Fetcher retrieves remote artifacts to local storage with resumable
// transfer and integrity verification. It is stateless across calls; all
// durable state lives in the destination files themselves.
type Fetcher struct {
	client          HTTPDoer
	retries         int
	backoff         time.Duration
	verifyChecksums bool
	verifyGzip      bool
	logger          *slog.Logger
	progress        func(Progress)
}

// New constructs a fetcher from the fetch configuration section.
func New(cfg config.Fetch, opts ...Option) *Fetcher {
	httpClient := &http.Client{}
	if cfg.RequestTimeoutSeconds > 0 {
		httpClient.Timeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	}
	f := &Fetcher{
		client:          httpClient,
		retries:         cfg.Retries,
		backoff:         time.Duration(cfg.RetryBackoffSeconds) * time.Second,
		verifyChecksums: cfg.VerifyChecksums,
		verifyGzip:      cfg.VerifyGzip,
		logger:          logging.NewNop(),
	}
	if f.retries <= 0 {
		f.retries = 1
	}
	if f.backoff <= 0 {
		f.backoff = time.Second
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch ensures destPath holds a valid copy of the artifact. A file that is
// already present and passes verification is accepted without any network
// I/O. Otherwise the artifact is downloaded with resume support, bounded
// retries on transient failures, and post-download verification.
func (f *Fetcher) Fetch(ctx context.Context, artifact manifest.RemoteArtifact, destPath string) error {
	satisfied, err := f.checkExisting(artifact, destPath)
	if err != nil {
		return err
	}
	if satisfied {
		f.logger.Debug("artifact already satisfied", logging.String("path", destPath))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	// One re-fetch after an integrity failure: the cached bytes are
	// invalidated and the download repeated from scratch. A second failure
	// leaves the file in place for manual inspection.
	for attempt := 0; ; attempt++ {
		if err := f.download(ctx, artifact, destPath); err != nil {
			return err
		}
		verifyErr := f.verify(artifact, destPath)
		if verifyErr == nil {
			return nil
		}
		if attempt == 0 && errors.Is(verifyErr, services.ErrIntegrity) {
			f.logger.Warn("integrity check failed, invalidating and re-fetching",
				logging.String("path", destPath),
				logging.Error(verifyErr),
			)
			if err := os.Remove(destPath); err != nil {
				return fmt.Errorf("invalidate corrupt artifact: %w", err)
			}
			continue
		}
		return verifyErr
	}
}

// checkExisting reports whether destPath already satisfies the artifact.
// A present file with a mismatched checksum or size is deleted so the
// download path starts clean.
func (f *Fetcher) checkExisting(artifact manifest.RemoteArtifact, destPath string) (bool, error) {
	info, err := os.Stat(destPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat artifact: %w", err)
	}
	if info.Size() == 0 {
		return false, nil
	}

	if f.verifyChecksums && artifact.Checksum != "" {
		ok, err := md5Matches(destPath, artifact.Checksum)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		f.logger.Warn("cached artifact checksum mismatch, re-downloading",
			logging.String("path", destPath))
		if err := os.Remove(destPath); err != nil {
			return false, fmt.Errorf("remove stale artifact: %w", err)
		}
		return false, nil
	}

	if artifact.Size > 0 && info.Size() != artifact.Size {
		f.logger.Warn("cached artifact size mismatch, re-downloading",
			logging.String("path", destPath),
			logging.Int64("have", info.Size()),
			logging.Int64("want", artifact.Size),
		)
		if err := os.Remove(destPath); err != nil {
			return false, fmt.Errorf("remove stale artifact: %w", err)
		}
		return false, nil
	}
	return true, nil
}

// download retrieves the artifact into destPath via a .part staging file,
// resuming any partial bytes left by a previous interrupted run.
func (f *Fetcher) download(ctx context.Context, artifact manifest.RemoteArtifact, destPath string) error {
	partPath := destPath + ".part"

	var lastErr error
	for attempt := 1; attempt <= f.retries; attempt++ {
		if attempt > 1 {
			f.logger.Info("retrying download",
				logging.String("url", artifact.URL),
				logging.Int("attempt", attempt),
				logging.Duration("backoff", f.backoff),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.backoff):
			}
		}

		done, err := f.downloadOnce(ctx, artifact, partPath)
		if err == nil && done {
			return os.Rename(partPath, destPath)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var permanent *permanentError
			if errors.As(err, &permanent) {
				return services.Wrap(services.ErrTransfer, "fetch", "download", artifact.URL, permanent.err)
			}
			lastErr = err
			f.logger.Warn("download attempt failed",
				logging.String("url", artifact.URL),
				logging.Int("attempt", attempt),
				logging.Error(err),
			)
		}
	}
	return services.Wrap(services.ErrTransfer, "fetch", "download",
		fmt.Sprintf("%s: giving up after %d attempts", artifact.URL, f.retries), lastErr)
}

// permanentError wraps failures that retrying cannot fix (404 and friends).
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

func (f *Fetcher) downloadOnce(ctx context.Context, artifact manifest.RemoteArtifact, partPath string) (bool, error) {
	part, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open staging file: %w", err)
	}
	defer part.Close()

	offset, err := part.Seek(0, io.SeekEnd)
	if err != nil {
		return false, fmt.Errorf("seek staging file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifact.URL, nil)
	if err != nil {
		return false, &permanentError{fmt.Errorf("build request: %w", err)}
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPartialContent:
		// Server honoured the resume; append to existing bytes.
	case resp.StatusCode == http.StatusOK:
		// Full body regardless of the Range header; start over.
		if offset > 0 {
			if err := part.Truncate(0); err != nil {
				return false, fmt.Errorf("truncate staging file: %w", err)
			}
			if _, err := part.Seek(0, io.SeekStart); err != nil {
				return false, fmt.Errorf("rewind staging file: %w", err)
			}
			offset = 0
		}
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		// All bytes already present.
		return true, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return false, fmt.Errorf("server returned %d", resp.StatusCode)
	default:
		return false, &permanentError{fmt.Errorf("server returned %d", resp.StatusCode)}
	}

	total := offset
	if resp.ContentLength > 0 {
		total += resp.ContentLength
	} else {
		total = 0
	}

	writer := io.Writer(part)
	if f.progress != nil {
		writer = io.MultiWriter(part, &progressWriter{
			fn:         f.progress,
			name:       artifact.Name(),
			downloaded: offset,
			total:      total,
		})
	}

	if _, err := io.Copy(writer, resp.Body); err != nil {
		return false, fmt.Errorf("stream body: %w", err)
	}
	if err := part.Close(); err != nil {
		return false, fmt.Errorf("close staging file: %w", err)
	}
	return true, nil
}

// verify runs the configured post-download checks. Failures never delete the
// file; the caller decides whether to invalidate.
func (f *Fetcher) verify(artifact manifest.RemoteArtifact, destPath string) error {
	info, err := os.Stat(destPath)
	if err != nil {
		return fmt.Errorf("stat downloaded artifact: %w", err)
	}
	if info.Size() == 0 {
		return services.Wrap(services.ErrIntegrity, "fetch", "verify",
			fmt.Sprintf("%s: downloaded file is empty", destPath), nil)
	}

	if f.verifyChecksums && artifact.Checksum != "" {
		ok, err := md5Matches(destPath, artifact.Checksum)
		if err != nil {
			return err
		}
		if !ok {
			return services.Wrap(services.ErrIntegrity, "fetch", "verify",
				fmt.Sprintf("%s: md5 mismatch (want %s)", destPath, artifact.Checksum), nil)
		}
	} else if artifact.Size > 0 && info.Size() != artifact.Size {
		return services.Wrap(services.ErrIntegrity, "fetch", "verify",
			fmt.Sprintf("%s: size mismatch (have %d, want %d)", destPath, info.Size(), artifact.Size), nil)
	}

	if f.verifyGzip && isGzipPath(destPath) {
		if err := checkGzip(destPath); err != nil {
			return err
		}
	}
	return nil
}

type progressWriter struct {
	fn         func(Progress)
	name       string
	downloaded int64
	total      int64
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.downloaded += int64(len(p))
	w.fn(Progress{Name: w.name, Downloaded: w.downloaded, Total: w.total})
	return len(p), nil
}
