package custody

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable classification of a workflow failure. The
// HTTP layer maps kinds to status codes; the workflows never retry or
// recover silently.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindStoreUnavailable  Kind = "store_unavailable"
	KindStoreError        Kind = "store_error"
	KindLedgerUnreachable Kind = "ledger_unreachable"
	KindLedgerTimeout     Kind = "ledger_timeout"
	KindLedgerRejected    Kind = "ledger_rejected"
	KindConflict          Kind = "conflict"
	KindValidation        Kind = "validation"
	KindInternal          Kind = "internal"
)

// Error carries a kind alongside the human message and wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error.
func E(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf extracts the kind from err, or KindInternal for anything
// unclassified.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
