package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Result is the structured outcome handed back to the request layer.
type Result struct {
	Status     Status           `json:"status"`
	NewBalance *decimal.Decimal `json:"new_balance,omitempty"`
	ErrorKind  Kind             `json:"error_kind,omitempty"`
	Message    string           `json:"message,omitempty"`
}

func Success(balance decimal.Decimal) Result {
	return Result{Status: StatusSuccess, NewBalance: &balance}
}

// Failure builds a Result from err. Errors that did not come from the engine
// get a generic message so store internals never leak to callers.
func Failure(err error) Result {
	kind := KindOf(err)
	msg := ErrStorageUnavailable.Message
	var le *Error
	if errors.As(err, &le) {
		msg = le.Message
	}
	return Result{Status: StatusFailure, ErrorKind: kind, Message: msg}
}
