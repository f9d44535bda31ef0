package sqlite

import (
	"time"

	"github.com/JhonesBR/go-ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

// Amounts are stored as text so SQLite never rounds them through a float.

type Account struct {
	ID        string          `gorm:"primaryKey"`
	OwnerID   string          `gorm:"not null;index"`
	Type      string          `gorm:"column:account_type;not null"`
	Balance   decimal.Decimal `gorm:"type:text;not null"`
	Version   int64           `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

func (a Account) toLedger() ledger.Account {
	return ledger.Account{
		ID:        a.ID,
		OwnerID:   a.OwnerID,
		Type:      ledger.AccountType(a.Type),
		Balance:   a.Balance,
		Version:   a.Version,
		CreatedAt: a.CreatedAt.UTC(),
		UpdatedAt: a.UpdatedAt.UTC(),
		ClosedAt:  utcPtr(a.ClosedAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

type Transaction struct {
	ID               string          `gorm:"primaryKey"`
	AccountID        string          `gorm:"not null;index:idx_transactions_account_created,priority:1"`
	CounterpartyID   *string
	Kind             string          `gorm:"not null"`
	Amount           decimal.Decimal `gorm:"type:text;not null"`
	ResultingBalance decimal.Decimal `gorm:"type:text;not null"`
	CallerID         string          `gorm:"not null"`
	CreatedAt        time.Time       `gorm:"index:idx_transactions_account_created,priority:2"`
}

func transactionRow(tx ledger.Transaction) Transaction {
	return Transaction{
		ID:               tx.ID,
		AccountID:        tx.AccountID,
		CounterpartyID:   tx.CounterpartyID,
		Kind:             string(tx.Kind),
		Amount:           tx.Amount,
		ResultingBalance: tx.ResultingBalance,
		CallerID:         tx.CallerID,
		CreatedAt:        tx.CreatedAt.UTC(),
	}
}

func (t Transaction) toLedger() ledger.Transaction {
	return ledger.Transaction{
		ID:               t.ID,
		AccountID:        t.AccountID,
		CounterpartyID:   t.CounterpartyID,
		Kind:             ledger.TransactionKind(t.Kind),
		Amount:           t.Amount,
		ResultingBalance: t.ResultingBalance,
		CallerID:         t.CallerID,
		CreatedAt:        t.CreatedAt.UTC(),
	}
}

type AuditRecord struct {
	ID              string `gorm:"primaryKey"`
	Action          string `gorm:"not null"`
	Outcome         string `gorm:"not null"`
	Collection      string `gorm:"not null"`
	EntityID        string `gorm:"not null;index"`
	RelatedEntityID string
	CallerID        string `gorm:"not null"`
	Detail          string
	Timestamp       time.Time `gorm:"column:created_at"`
}

func (AuditRecord) TableName() string {
	return "audit_log"
}

func auditRow(rec ledger.AuditRecord) AuditRecord {
	return AuditRecord{
		ID:              rec.ID,
		Action:          string(rec.Action),
		Outcome:         string(rec.Outcome),
		Collection:      rec.Collection,
		EntityID:        rec.EntityID,
		RelatedEntityID: rec.RelatedEntityID,
		CallerID:        rec.CallerID,
		Detail:          rec.Detail,
		Timestamp:       rec.Timestamp.UTC(),
	}
}

func (a AuditRecord) toLedger() ledger.AuditRecord {
	return ledger.AuditRecord{
		ID:              a.ID,
		Action:          ledger.AuditAction(a.Action),
		Outcome:         ledger.Outcome(a.Outcome),
		Collection:      a.Collection,
		EntityID:        a.EntityID,
		RelatedEntityID: a.RelatedEntityID,
		CallerID:        a.CallerID,
		Detail:          a.Detail,
		Timestamp:       a.Timestamp.UTC(),
	}
}
