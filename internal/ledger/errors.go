package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Store-level sentinels. Stores return these (possibly wrapped); the engine
// translates them into the caller-facing taxonomy below.
var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrDuplicate       = errors.New("already exists")
)

type Kind string

const (
	KindAccountNotFound    Kind = "account_not_found"
	KindInvalidAmount      Kind = "invalid_amount"
	KindInvalidRequest     Kind = "invalid_request"
	KindInsufficientFunds  Kind = "insufficient_funds"
	KindContention         Kind = "contention"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindAuditWriteFailed   Kind = "audit_write_failed"
)

// Error is the failure returned to callers of the engine. Error() only ever
// yields Message; the underlying cause is kept for logs via Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrAccountNotFound    = &Error{Kind: KindAccountNotFound, Message: "account not found"}
	ErrInvalidAmount      = &Error{Kind: KindInvalidAmount, Message: "invalid amount"}
	ErrInvalidRequest     = &Error{Kind: KindInvalidRequest, Message: "invalid request"}
	ErrInsufficientFunds  = &Error{Kind: KindInsufficientFunds, Message: "insufficient funds"}
	ErrContention         = &Error{Kind: KindContention, Message: "too much contention on account, retry later"}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable, Message: "ledger storage unavailable"}
	ErrAuditWriteFailed   = &Error{Kind: KindAuditWriteFailed, Message: "operation could not be audited"}
)

func newError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf extracts the taxonomy kind of err. Errors that did not originate in
// the engine are reported as storage failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindStorageUnavailable
}

// storageError maps a store error onto the taxonomy.
func storageError(err error) *Error {
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	if errors.Is(err, ErrNotFound) {
		return newError(KindAccountNotFound, err, "account not found")
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newError(KindStorageUnavailable, err, "operation timed out")
	}
	return newError(KindStorageUnavailable, err, "ledger storage unavailable")
}
