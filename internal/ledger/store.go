package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AccountStore holds the authoritative current balance of every account.
// CompareAndSwap is the only way a balance changes.
type AccountStore interface {
	Create(ctx context.Context, acc Account) error
	Get(ctx context.Context, accountID string) (Account, error)
	CompareAndSwap(ctx context.Context, accountID string, expectedVersion int64, newBalance decimal.Decimal, newVersion int64) error
	// Close sets the tombstone under the same version check as CompareAndSwap.
	Close(ctx context.Context, accountID string, expectedVersion, newVersion int64, closedAt time.Time) error
	ListByOwner(ctx context.Context, ownerID string) ([]Account, error)
}

// TransactionLog is append-only. Append is idempotent on Transaction.ID.
// ListByAccount returns newest first, skipping offset entries and returning
// at most limit; limit <= 0 returns the rest.
type TransactionLog interface {
	Append(ctx context.Context, tx Transaction) (string, error)
	ListByAccount(ctx context.Context, accountID string, offset, limit int) ([]Transaction, error)
	CountByAccount(ctx context.Context, accountID string) (int, error)
}

// AuditLog is append-only and idempotent on AuditRecord.ID. ListByEntity
// returns the records naming the account on either side, oldest first.
type AuditLog interface {
	Append(ctx context.Context, rec AuditRecord) error
	ListByEntity(ctx context.Context, accountID string) ([]AuditRecord, error)
}

// BatchCommitter is implemented by account stores that can commit several
// account writes together with their transaction and audit records in one
// atomic unit. Either every write lands or none does; a stale expected
// version on any account fails the whole batch with ErrVersionConflict.
type BatchCommitter interface {
	CommitBatch(ctx context.Context, b Batch) error
}

// PendingLog stores two-phase transfer markers.
type PendingLog interface {
	Put(ctx context.Context, p PendingTransfer) error
	Get(ctx context.Context, id string) (PendingTransfer, error)
	Delete(ctx context.Context, id string) error
	ListStale(ctx context.Context, olderThan time.Time) ([]PendingTransfer, error)
}

// ReconciliationQueue collects discrepancies between committed balances and
// the records describing them.
type ReconciliationQueue interface {
	Push(ctx context.Context, d Discrepancy) error
	Pop(ctx context.Context) (Discrepancy, bool, error)
	Len(ctx context.Context) (int64, error)
}

// Notifier receives committed ledger events. Delivery is best-effort.
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
}

// Stores bundles the collaborators handed to New.
type Stores struct {
	Accounts       AccountStore
	Transactions   TransactionLog
	Audit          AuditLog
	Pending        PendingLog
	Reconciliation ReconciliationQueue
}
