// Package store provides the file-per-record store: one frontmatter file
// per record under a type-named directory, with linear-scan filtering and
// uniqueness checks over normalized field values.
//
// The store performs no locking of its own; the embedder serializes
// calls (the content dispatcher holds a process-wide write mutex).
package store
