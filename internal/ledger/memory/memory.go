// Package memory keeps every ledger collection in process memory. The account
// store commits batches under one lock, so it serves the atomic transfer path.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JhonesBR/go-ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

type Store struct {
	Accounts     *Accounts
	Transactions *Transactions
	Audit        *Audit
	Pending      *Pending
	Queue        *Queue
}

func New() *Store {
	txs := NewTransactions()
	audit := NewAudit()
	return &Store{
		Accounts:     NewAccounts(txs, audit),
		Transactions: txs,
		Audit:        audit,
		Pending:      NewPending(),
		Queue:        NewQueue(),
	}
}

func (s *Store) Stores() ledger.Stores {
	return ledger.Stores{
		Accounts:       s.Accounts,
		Transactions:   s.Transactions,
		Audit:          s.Audit,
		Pending:        s.Pending,
		Reconciliation: s.Queue,
	}
}

type Accounts struct {
	mu       sync.RWMutex
	accounts map[string]ledger.Account
	txs      *Transactions
	audit    *Audit
}

// NewAccounts returns an account store whose batches append to txs and audit.
func NewAccounts(txs *Transactions, audit *Audit) *Accounts {
	return &Accounts{accounts: make(map[string]ledger.Account), txs: txs, audit: audit}
}

func (a *Accounts) Create(_ context.Context, acc ledger.Account) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.accounts[acc.ID]; ok {
		return ledger.ErrDuplicate
	}
	a.accounts[acc.ID] = acc
	return nil
}

func (a *Accounts) Get(ctx context.Context, accountID string) (ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	acc, ok := a.accounts[accountID]
	if !ok {
		return ledger.Account{}, ledger.ErrNotFound
	}
	return acc, nil
}

func (a *Accounts) CompareAndSwap(ctx context.Context, accountID string, expectedVersion int64, newBalance decimal.Decimal, newVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.swapLocked(accountID, expectedVersion, newBalance, newVersion)
}

func (a *Accounts) Close(ctx context.Context, accountID string, expectedVersion, newVersion int64, closedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.accounts[accountID]
	if !ok {
		return ledger.ErrNotFound
	}
	if acc.Version != expectedVersion {
		return ledger.ErrVersionConflict
	}
	acc.Version = newVersion
	acc.ClosedAt = &closedAt
	acc.UpdatedAt = closedAt
	a.accounts[accountID] = acc
	return nil
}

// ListByOwner returns the owner's accounts, oldest first.
func (a *Accounts) ListByOwner(ctx context.Context, ownerID string) ([]ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	out := make([]ledger.Account, 0)
	for _, acc := range a.accounts {
		if acc.OwnerID == ownerID {
			out = append(out, acc)
		}
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (a *Accounts) CommitBatch(ctx context.Context, b ledger.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, w := range b.Accounts {
		acc, ok := a.accounts[w.AccountID]
		if !ok {
			return ledger.ErrNotFound
		}
		if acc.Version != w.ExpectedVersion {
			return ledger.ErrVersionConflict
		}
	}
	for _, w := range b.Accounts {
		if err := a.swapLocked(w.AccountID, w.ExpectedVersion, w.NewBalance, w.NewVersion); err != nil {
			return err
		}
	}
	for _, tx := range b.Transactions {
		a.txs.add(tx)
	}
	for _, rec := range b.Audit {
		a.audit.add(rec)
	}
	return nil
}

func (a *Accounts) swapLocked(accountID string, expectedVersion int64, newBalance decimal.Decimal, newVersion int64) error {
	acc, ok := a.accounts[accountID]
	if !ok {
		return ledger.ErrNotFound
	}
	if acc.Version != expectedVersion {
		return ledger.ErrVersionConflict
	}
	acc.Balance = newBalance
	acc.Version = newVersion
	acc.UpdatedAt = time.Now().UTC()
	a.accounts[accountID] = acc
	return nil
}

type Transactions struct {
	mu        sync.RWMutex
	seen      map[string]struct{}
	byAccount map[string][]ledger.Transaction
}

func NewTransactions() *Transactions {
	return &Transactions{
		seen:      make(map[string]struct{}),
		byAccount: make(map[string][]ledger.Transaction),
	}
}

func (t *Transactions) Append(ctx context.Context, tx ledger.Transaction) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t.add(tx)
	return tx.ID, nil
}

func (t *Transactions) add(tx ledger.Transaction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.seen[tx.ID]; ok {
		return
	}
	t.seen[tx.ID] = struct{}{}
	t.byAccount[tx.AccountID] = append(t.byAccount[tx.AccountID], tx)
}

// ListByAccount returns up to limit transactions after skipping offset,
// newest first. limit <= 0 returns the rest of the history.
func (t *Transactions) ListByAccount(ctx context.Context, accountID string, offset, limit int) ([]ledger.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	out := make([]ledger.Transaction, len(t.byAccount[accountID]))
	copy(out, t.byAccount[accountID])
	t.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if offset < 0 || offset >= len(out) {
		return []ledger.Transaction{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (t *Transactions) CountByAccount(ctx context.Context, accountID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return t.Count(accountID), nil
}

// Count returns the number of transactions recorded for accountID.
func (t *Transactions) Count(accountID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byAccount[accountID])
}

type Audit struct {
	mu      sync.RWMutex
	seen    map[string]struct{}
	records []ledger.AuditRecord
}

func NewAudit() *Audit {
	return &Audit{seen: make(map[string]struct{})}
}

func (a *Audit) Append(ctx context.Context, rec ledger.AuditRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.add(rec)
	return nil
}

func (a *Audit) add(rec ledger.AuditRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.seen[rec.ID]; ok {
		return
	}
	a.seen[rec.ID] = struct{}{}
	a.records = append(a.records, rec)
}

// ListByEntity returns the records naming accountID on either side, in
// append order.
func (a *Audit) ListByEntity(ctx context.Context, accountID string) ([]ledger.AuditRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]ledger.AuditRecord, 0)
	for _, rec := range a.records {
		if rec.EntityID == accountID || rec.RelatedEntityID == accountID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Records returns a copy of every audit record in append order.
func (a *Audit) Records() []ledger.AuditRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]ledger.AuditRecord, len(a.records))
	copy(out, a.records)
	return out
}

type Pending struct {
	mu      sync.Mutex
	markers map[string]ledger.PendingTransfer
}

func NewPending() *Pending {
	return &Pending{markers: make(map[string]ledger.PendingTransfer)}
}

func (p *Pending) Put(ctx context.Context, t ledger.PendingTransfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markers[t.ID] = t
	return nil
}

func (p *Pending) Get(_ context.Context, id string) (ledger.PendingTransfer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.markers[id]
	if !ok {
		return ledger.PendingTransfer{}, ledger.ErrNotFound
	}
	return t, nil
}

func (p *Pending) Delete(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.markers, id)
	return nil
}

func (p *Pending) ListStale(_ context.Context, olderThan time.Time) ([]ledger.PendingTransfer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []ledger.PendingTransfer
	for _, t := range p.markers {
		if t.UpdatedAt.Before(olderThan) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.markers)
}

type Queue struct {
	mu    sync.Mutex
	items []ledger.Discrepancy
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Push(_ context.Context, d ledger.Discrepancy) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, d)
	return nil
}

func (q *Queue) Pop(_ context.Context) (ledger.Discrepancy, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return ledger.Discrepancy{}, false, nil
	}
	d := q.items[0]
	q.items = q.items[1:]
	return d, true, nil
}

func (q *Queue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}
