// Package fetch retrieves remote artifacts with resumable transfer,
// bounded retry, and integrity verification.
//
// A download stages into <dest>.part so an interrupted run resumes from the
// bytes already on disk via an HTTP Range request. Verification (md5 from
// the manifest, expected size, full gzip decompression) runs against the
// finished file; a first integrity failure invalidates the cached bytes and
// re-fetches once, a second leaves the file in place for inspection.
//
// The fetcher is stateless between calls: calling Fetch again on an already
// valid file performs no network I/O.
package fetch
