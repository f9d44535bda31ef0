package account

import (
	"time"

	"github.com/JhonesBR/go-ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

type CreateAccountSchema struct {
	OwnerID        string           `json:"owner_id" validate:"required"`
	AccountType    string           `json:"account_type" validate:"required"`
	InitialBalance *decimal.Decimal `json:"initial_balance"`
}

type AccountShowSchema struct {
	Id          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	AccountType string     `json:"account_type"`
	Balance     string     `json:"balance"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

func newAccountShowSchema(acc ledger.Account, scale int32) AccountShowSchema {
	return AccountShowSchema{
		Id:          acc.ID,
		OwnerID:     acc.OwnerID,
		AccountType: string(acc.Type),
		Balance:     acc.Balance.StringFixed(scale),
		Version:     acc.Version,
		CreatedAt:   acc.CreatedAt,
		UpdatedAt:   acc.UpdatedAt,
		ClosedAt:    acc.ClosedAt,
	}
}

type UpdateBalanceSchema struct {
	Amount *decimal.Decimal `json:"amount" validate:"required"`
}

type TransactionShowSchema struct {
	Id               string    `json:"id"`
	AccountId        string    `json:"account_id"`
	CounterpartyId   *string   `json:"counterparty_id,omitempty"`
	Kind             string    `json:"kind"`
	Amount           string    `json:"amount"`
	ResultingBalance string    `json:"resulting_balance"`
	CallerId         string    `json:"caller_id"`
	CreatedAt        time.Time `json:"created_at"`
}

func newTransactionShowSchema(tx ledger.Transaction, scale int32) TransactionShowSchema {
	return TransactionShowSchema{
		Id:               tx.ID,
		AccountId:        tx.AccountID,
		CounterpartyId:   tx.CounterpartyID,
		Kind:             string(tx.Kind),
		Amount:           tx.Amount.StringFixed(scale),
		ResultingBalance: tx.ResultingBalance.StringFixed(scale),
		CallerId:         tx.CallerID,
		CreatedAt:        tx.CreatedAt,
	}
}

type AuditShowSchema struct {
	Id              string    `json:"id"`
	Action          string    `json:"action"`
	Outcome         string    `json:"outcome"`
	EntityId        string    `json:"entity_id"`
	RelatedEntityId string    `json:"related_entity_id,omitempty"`
	CallerId        string    `json:"caller_id"`
	Detail          string    `json:"detail"`
	Timestamp       time.Time `json:"timestamp"`
}

func newAuditShowSchema(rec ledger.AuditRecord) AuditShowSchema {
	return AuditShowSchema{
		Id:              rec.ID,
		Action:          string(rec.Action),
		Outcome:         string(rec.Outcome),
		EntityId:        rec.EntityID,
		RelatedEntityId: rec.RelatedEntityID,
		CallerId:        rec.CallerID,
		Detail:          rec.Detail,
		Timestamp:       rec.Timestamp,
	}
}
