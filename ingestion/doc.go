// Package ingestion loads project files, splits them into chunks, and
// stores the chunks durably.
//
// The pipeline is idempotent per asset: re-processing a file replaces its
// previous chunks rather than accumulating duplicates, and re-registering
// the same file updates the existing asset record.
package ingestion
