package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JhonesBR/go-ledger/internal/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	Accounts     *Accounts
	Transactions *Transactions
	Audit        *Audit
	Queue        *Queue
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{
		Accounts:     &Accounts{pool: pool},
		Transactions: &Transactions{pool: pool},
		Audit:        &Audit{pool: pool},
		Queue:        &Queue{pool: pool},
	}
}

// Accounts is the PostgreSQL account store. CommitBatch applies every write
// of a batch in one database transaction.
type Accounts struct {
	pool *pgxpool.Pool
}

func (a *Accounts) Create(ctx context.Context, acc ledger.Account) error {
	_, err := a.pool.Exec(ctx,
		`INSERT INTO accounts (id, owner_id, account_type, balance, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		acc.ID, acc.OwnerID, string(acc.Type), acc.Balance, acc.Version, acc.CreatedAt, acc.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ledger.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

const accountColumns = `id, owner_id, account_type, balance, version, created_at, updated_at, closed_at`

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var (
		acc ledger.Account
		typ string
	)
	if err := row.Scan(&acc.ID, &acc.OwnerID, &typ, &acc.Balance, &acc.Version, &acc.CreatedAt, &acc.UpdatedAt, &acc.ClosedAt); err != nil {
		return ledger.Account{}, err
	}
	acc.Type = ledger.AccountType(typ)
	return acc, nil
}

func (a *Accounts) Get(ctx context.Context, accountID string) (ledger.Account, error) {
	acc, err := scanAccount(a.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("get account: %w", err)
	}
	return acc, nil
}

func (a *Accounts) ListByOwner(ctx context.Context, ownerID string) ([]ledger.Account, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1 ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	out := make([]ledger.Account, 0)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return out, nil
}

func (a *Accounts) Close(ctx context.Context, accountID string, expectedVersion, newVersion int64, closedAt time.Time) error {
	tag, err := a.pool.Exec(ctx,
		`UPDATE accounts SET closed_at = $1, version = $2, updated_at = $1
		 WHERE id = $3 AND version = $4`,
		closedAt, newVersion, accountID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("close account %s: %w", accountID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return missingOrConflict(ctx, a.pool, accountID)
}

func (a *Accounts) CompareAndSwap(ctx context.Context, accountID string, expectedVersion int64, newBalance decimal.Decimal, newVersion int64) error {
	return compareAndSwap(ctx, a.pool, accountID, expectedVersion, newBalance, newVersion)
}

func (a *Accounts) CommitBatch(ctx context.Context, b ledger.Batch) error {
	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	// Row locks are taken in slice order, which the engine sorts by id.
	for _, w := range b.Accounts {
		if err := compareAndSwap(ctx, tx, w.AccountID, w.ExpectedVersion, w.NewBalance, w.NewVersion); err != nil {
			return err
		}
	}
	for _, t := range b.Transactions {
		if err := appendTransaction(ctx, tx, t); err != nil {
			return err
		}
	}
	for _, rec := range b.Audit {
		if err := appendAudit(ctx, tx, rec); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func compareAndSwap(ctx context.Context, q querier, accountID string, expectedVersion int64, newBalance decimal.Decimal, newVersion int64) error {
	tag, err := q.Exec(ctx,
		`UPDATE accounts SET balance = $1, version = $2, updated_at = now()
		 WHERE id = $3 AND version = $4`,
		newBalance, newVersion, accountID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update account %s: %w", accountID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return missingOrConflict(ctx, q, accountID)
}

// missingOrConflict explains an update that matched no row.
func missingOrConflict(ctx context.Context, q querier, accountID string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists); err != nil {
		return fmt.Errorf("check account %s: %w", accountID, err)
	}
	if !exists {
		return ledger.ErrNotFound
	}
	return ledger.ErrVersionConflict
}

type Transactions struct {
	pool *pgxpool.Pool
}

func (t *Transactions) Append(ctx context.Context, tx ledger.Transaction) (string, error) {
	if err := appendTransaction(ctx, t.pool, tx); err != nil {
		return "", err
	}
	return tx.ID, nil
}

func appendTransaction(ctx context.Context, q querier, tx ledger.Transaction) error {
	_, err := q.Exec(ctx,
		`INSERT INTO transactions (id, account_id, counterparty_id, kind, amount, resulting_balance, caller_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		tx.ID, tx.AccountID, tx.CounterpartyID, string(tx.Kind), tx.Amount, tx.ResultingBalance, tx.CallerID, tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// ListByAccount pages newest first. A NULL limit means no limit.
func (t *Transactions) ListByAccount(ctx context.Context, accountID string, offset, limit int) ([]ledger.Transaction, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := t.pool.Query(ctx,
		`SELECT id, account_id, counterparty_id, kind, amount, resulting_balance, caller_id, created_at
		 FROM transactions WHERE account_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`, accountID, lim, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]ledger.Transaction, 0)
	for rows.Next() {
		var (
			tx   ledger.Transaction
			kind string
		)
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.CounterpartyID, &kind, &tx.Amount, &tx.ResultingBalance, &tx.CallerID, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Kind = ledger.TransactionKind(kind)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (t *Transactions) CountByAccount(ctx context.Context, accountID string) (int, error) {
	var n int
	if err := t.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE account_id = $1`, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

type Audit struct {
	pool *pgxpool.Pool
}

func (a *Audit) Append(ctx context.Context, rec ledger.AuditRecord) error {
	return appendAudit(ctx, a.pool, rec)
}

func appendAudit(ctx context.Context, q querier, rec ledger.AuditRecord) error {
	_, err := q.Exec(ctx,
		`INSERT INTO audit_log (id, action, outcome, collection, entity_id, related_entity_id, caller_id, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, string(rec.Action), string(rec.Outcome), rec.Collection, rec.EntityID, rec.RelatedEntityID, rec.CallerID, rec.Detail, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// ListByEntity returns the audit records naming accountID on either side,
// oldest first.
func (a *Audit) ListByEntity(ctx context.Context, accountID string) ([]ledger.AuditRecord, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT id, action, outcome, collection, entity_id, related_entity_id, caller_id, detail, created_at
		 FROM audit_log WHERE entity_id = $1 OR related_entity_id = $1
		 ORDER BY created_at, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	out := make([]ledger.AuditRecord, 0)
	for rows.Next() {
		var (
			rec             ledger.AuditRecord
			action, outcome string
		)
		if err := rows.Scan(&rec.ID, &action, &outcome, &rec.Collection, &rec.EntityID, &rec.RelatedEntityID, &rec.CallerID, &rec.Detail, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Action = ledger.AuditAction(action)
		rec.Outcome = ledger.Outcome(outcome)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Queue is a reconciliation queue kept in a table, for deployments without Redis.
type Queue struct {
	pool *pgxpool.Pool
}

func (q *Queue) Push(ctx context.Context, d ledger.Discrepancy) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode discrepancy: %w", err)
	}
	if _, err := q.pool.Exec(ctx, `INSERT INTO reconciliation_queue (payload) VALUES ($1)`, payload); err != nil {
		return fmt.Errorf("push discrepancy: %w", err)
	}
	return nil
}

func (q *Queue) Pop(ctx context.Context) (ledger.Discrepancy, bool, error) {
	var payload []byte
	err := q.pool.QueryRow(ctx,
		`DELETE FROM reconciliation_queue
		 WHERE seq = (SELECT seq FROM reconciliation_queue ORDER BY seq LIMIT 1 FOR UPDATE SKIP LOCKED)
		 RETURNING payload`,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Discrepancy{}, false, nil
	}
	if err != nil {
		return ledger.Discrepancy{}, false, fmt.Errorf("pop discrepancy: %w", err)
	}

	var d ledger.Discrepancy
	if err := json.Unmarshal(payload, &d); err != nil {
		return ledger.Discrepancy{}, false, fmt.Errorf("decode discrepancy: %w", err)
	}
	return d, true, nil
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	var n int64
	if err := q.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reconciliation_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count discrepancies: %w", err)
	}
	return n, nil
}
