package persist

import "errors"

var (
	// ErrNotFound means no record exists for the requested key.
	ErrNotFound = errors.New("record not found")

	// ErrStaleVersion means a rewrite carried an extractor version lower
	// than or equal to the stored one. The stored result is untouched.
	ErrStaleVersion = errors.New("stale extractor version rejected")

	// ErrCommitDocumentFailure means the document-tier write itself failed.
	// Nothing was persisted; the whole commit may be retried.
	ErrCommitDocumentFailure = errors.New("document tier write failed")

	// ErrCommitPartialFailure means the document tier holds the record but
	// the relational write failed. The document is marked orphaned and the
	// reconciliation sweep will repair it; the commit may be retried.
	ErrCommitPartialFailure = errors.New("relational tier write failed after document write")

	// ErrConsistencyViolation means a relational record resolved to a
	// missing document record. This indicates storage corruption or a
	// reconciliation bug and is always surfaced, never masked.
	ErrConsistencyViolation = errors.New("relational record resolves to missing document record")

	// ErrCompanyScope means a record touched by an operation belongs to a
	// different company than the one the operation was scoped to.
	ErrCompanyScope = errors.New("record belongs to a different company")
)
