package transfer

import (
	"github.com/JhonesBR/go-ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

type CreateTransferSchema struct {
	FromAccountID string           `json:"from_account_id" validate:"required"`
	ToAccountID   string           `json:"to_account_id" validate:"required"`
	Amount        *decimal.Decimal `json:"amount" validate:"required"`
}

type TransferResultSchema struct {
	Status      ledger.Status `json:"status"`
	FromBalance string        `json:"from_balance"`
	ToBalance   string        `json:"to_balance"`
}
