// Package apperr holds the sentinel errors shared across packages.
// Wrap them with fmt.Errorf("...: %w", err) and test with errors.Is.
package apperr

import "errors"

var (
	ErrFetchFailure       = errors.New("fetch failed")
	ErrParse              = errors.New("parse failed")
	ErrMissingContainer   = errors.New("content container not found")
	ErrOrphanRelationship = errors.New("relationship endpoint missing")
	ErrLedgerContention   = errors.New("ledger lock not acquired")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrNotFound           = errors.New("not found")
)
