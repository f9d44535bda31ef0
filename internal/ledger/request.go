package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

type OpenAccountRequest struct {
	OwnerID        string
	Type           AccountType
	InitialBalance decimal.Decimal
	CallerID       string
}

func (r OpenAccountRequest) validate() error {
	switch {
	case strings.TrimSpace(r.CallerID) == "":
		return newError(KindInvalidRequest, nil, "caller_id is required")
	case strings.TrimSpace(r.OwnerID) == "":
		return newError(KindInvalidRequest, nil, "owner_id is required")
	case !r.Type.Valid():
		return newError(KindInvalidRequest, nil, "unknown account type %q", r.Type)
	}
	return nil
}

type DepositRequest struct {
	AccountID string
	Amount    decimal.Decimal
	CallerID  string
}

type WithdrawRequest struct {
	AccountID string
	Amount    decimal.Decimal
	CallerID  string
}

type CloseAccountRequest struct {
	AccountID string
	CallerID  string
}

type TransferRequest struct {
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	CallerID      string
}

func (r TransferRequest) validate() error {
	switch {
	case strings.TrimSpace(r.CallerID) == "":
		return newError(KindInvalidRequest, nil, "caller_id is required")
	case r.FromAccountID == "" || r.ToAccountID == "":
		return newError(KindInvalidRequest, nil, "from_account_id and to_account_id are required")
	case r.FromAccountID == r.ToAccountID:
		return newError(KindInvalidRequest, nil, "cannot transfer to the same account")
	}
	return nil
}

// TransferResult carries the balances of both legs after commit.
type TransferResult struct {
	FromBalance decimal.Decimal
	ToBalance   decimal.Decimal
}

func validateSingle(accountID, callerID string) error {
	switch {
	case strings.TrimSpace(callerID) == "":
		return newError(KindInvalidRequest, nil, "caller_id is required")
	case accountID == "":
		return newError(KindInvalidRequest, nil, "account_id is required")
	}
	return nil
}

// checkAmount rejects non-positive amounts, amounts finer than the ledger
// scale and amounts above the largest representable balance.
func (e *Engine) checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return newError(KindInvalidAmount, nil, "amount must be greater than zero")
	}
	return e.checkRepresentable(amount)
}

func (e *Engine) checkRepresentable(v decimal.Decimal) error {
	if !v.Equal(v.Truncate(e.cfg.Scale)) {
		return newError(KindInvalidAmount, nil, "amount has more than %d decimal places", e.cfg.Scale)
	}
	if v.Abs().GreaterThan(e.cfg.MaxAmount) {
		return newError(KindInvalidAmount, nil, "amount exceeds the maximum of %s", e.cfg.MaxAmount.StringFixed(e.cfg.Scale))
	}
	return nil
}
