// Package manifest parses the tabular description of remote artifacts a
// batch run must fetch, grouped into work items by run accession.
//
// The expected format is the TSV produced from an ENA file report: a header
// row naming at least the item identifier, artifact role, and URL columns
// (ENA aliases run_accession/mate/fastq_ftp are accepted), with optional md5
// and size columns. Parsing is pure: no filesystem or network side effects.
package manifest
