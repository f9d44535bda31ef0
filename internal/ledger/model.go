package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	Savings  AccountType = "savings"
	Checking AccountType = "checking"
	Loan     AccountType = "loan"
)

func (t AccountType) Valid() bool {
	switch t {
	case Savings, Checking, Loan:
		return true
	}
	return false
}

// AllowsNegative reports whether accounts of this type may carry a negative balance.
func (t AccountType) AllowsNegative() bool {
	return t == Loan
}

type Account struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Type      AccountType     `json:"account_type"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	// ClosedAt is the tombstone. A closed account keeps its history but
	// accepts no further mutations.
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

func (a Account) Closed() bool {
	return a.ClosedAt != nil
}

type TransactionKind string

const (
	Deposit     TransactionKind = "deposit"
	Withdrawal  TransactionKind = "withdrawal"
	TransferOut TransactionKind = "transfer_out"
	TransferIn  TransactionKind = "transfer_in"
)

// Transaction is one committed mutation leg. Amount is signed: credits are
// positive, debits negative.
type Transaction struct {
	ID               string          `json:"id"`
	AccountID        string          `json:"account_id"`
	CounterpartyID   *string         `json:"counterparty_id,omitempty"`
	Kind             TransactionKind `json:"kind"`
	Amount           decimal.Decimal `json:"amount"`
	ResultingBalance decimal.Decimal `json:"resulting_balance"`
	CallerID         string          `json:"caller_id"`
	CreatedAt        time.Time       `json:"created_at"`
}

type AuditAction string

const (
	ActionOpen       AuditAction = "open"
	ActionDeposit    AuditAction = "deposit"
	ActionWithdrawal AuditAction = "withdrawal"
	ActionTransfer   AuditAction = "transfer"
	ActionClose      AuditAction = "close"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// CollectionAccounts is the entity collection every ledger audit record refers to.
const CollectionAccounts = "accounts"

type AuditRecord struct {
	ID              string      `json:"id"`
	Action          AuditAction `json:"action"`
	Outcome         Outcome     `json:"outcome"`
	Collection      string      `json:"collection"`
	EntityID        string      `json:"entity_id"`
	RelatedEntityID string      `json:"related_entity_id,omitempty"`
	CallerID        string      `json:"caller_id"`
	Detail          string      `json:"detail"`
	Timestamp       time.Time   `json:"timestamp"`
}

// AccountWrite is a single compare-and-swap inside a Batch.
type AccountWrite struct {
	AccountID       string
	ExpectedVersion int64
	NewBalance      decimal.Decimal
	NewVersion      int64
}

// Batch is committed as a unit by a BatchCommitter. Accounts are ordered by
// AccountID and must be applied in that order.
type Batch struct {
	Accounts     []AccountWrite
	Transactions []Transaction
	Audit        []AuditRecord
}

type TransferPhase string

const (
	PhaseReserving   TransferPhase = "reserving"
	PhaseReserved    TransferPhase = "reserved"
	PhaseCrediting   TransferPhase = "crediting"
	PhaseCredited    TransferPhase = "credited"
	PhaseRollingBack TransferPhase = "rolling_back"
	PhaseRolledBack  TransferPhase = "rolled_back"
)

// PendingTransfer is the marker of a two-phase transfer in flight. The
// versions record what the next compare-and-swap of each phase expects, so a
// recovery pass can tell whether that write landed.
type PendingTransfer struct {
	ID            string          `json:"id"`
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	CallerID      string          `json:"caller_id"`
	Phase         TransferPhase   `json:"phase"`
	SourceVersion int64           `json:"source_version"`
	SourceBalance decimal.Decimal `json:"source_balance"`
	DestVersion   int64           `json:"dest_version"`
	DestBalance   decimal.Decimal `json:"dest_balance"`
	RefundVersion int64           `json:"refund_version"`
	OutTxID       string          `json:"out_tx_id"`
	InTxID        string          `json:"in_tx_id"`
	AuditID       string          `json:"audit_id"`
	Reason        string          `json:"reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Discrepancy is a reconciliation entry: records that describe an already
// committed balance change but could not be appended at commit time.
// ManualReview marks entries whose balance effect is unknown; the reconciler
// appends their records but cannot settle them.
type Discrepancy struct {
	ID           string        `json:"id"`
	Operation    AuditAction   `json:"operation"`
	AccountIDs   []string      `json:"account_ids"`
	Transactions []Transaction `json:"transactions,omitempty"`
	Audit        []AuditRecord `json:"audit,omitempty"`
	Reason       string        `json:"reason"`
	ManualReview bool          `json:"manual_review,omitempty"`
	Attempts     int           `json:"attempts"`
	At           time.Time     `json:"at"`
}

// Event is published after a successful commit.
type Event struct {
	Type           AuditAction     `json:"type"`
	TransactionIDs []string        `json:"transaction_ids"`
	AccountIDs     []string        `json:"account_ids"`
	Amount         decimal.Decimal `json:"amount"`
	Balances       []string        `json:"balances"`
	CallerID       string          `json:"caller_id"`
	At             time.Time       `json:"at"`
}
