package ledger_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JhonesBR/go-ledger/internal/ledger"
	"github.com/JhonesBR/go-ledger/internal/ledger/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const caller = "teller-1"

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testConfig() ledger.Config {
	cfg := ledger.DefaultConfig()
	cfg.BackoffBase = 50 * time.Microsecond
	return cfg
}

// casOnly hides CommitBatch so the engine falls back to two-phase transfers
// and post-commit record appends.
type casOnly struct {
	ledger.AccountStore
}

// failingCAS fails every compare-and-swap on one account.
type failingCAS struct {
	ledger.AccountStore
	accountID string
}

func (f failingCAS) CompareAndSwap(ctx context.Context, id string, expected int64, balance decimal.Decimal, next int64) error {
	if id == f.accountID {
		return errors.New("disk full")
	}
	return f.AccountStore.CompareAndSwap(ctx, id, expected, balance, next)
}

type alwaysConflicting struct {
	ledger.AccountStore
}

func (alwaysConflicting) CompareAndSwap(context.Context, string, int64, decimal.Decimal, int64) error {
	return ledger.ErrVersionConflict
}

// committedButFailing applies the next compare-and-swap on accountID and
// then reports a storage error, as a store does when the reply is lost.
type committedButFailing struct {
	ledger.AccountStore
	mu        sync.Mutex
	accountID string
}

func (c *committedButFailing) failNext(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accountID = accountID
}

func (c *committedButFailing) CompareAndSwap(ctx context.Context, id string, expected int64, balance decimal.Decimal, next int64) error {
	if err := c.AccountStore.CompareAndSwap(ctx, id, expected, balance, next); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != c.accountID {
		return nil
	}
	c.accountID = ""
	return errors.New("i/o timeout")
}

type flakyTxLog struct {
	ledger.TransactionLog
	fail atomic.Bool
}

func (f *flakyTxLog) Append(ctx context.Context, tx ledger.Transaction) (string, error) {
	if f.fail.Load() {
		return "", errors.New("transaction log unavailable")
	}
	return f.TransactionLog.Append(ctx, tx)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Now().UTC()}
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type flakyAudit struct {
	ledger.AuditLog
	fail atomic.Bool
}

func (f *flakyAudit) Append(ctx context.Context, rec ledger.AuditRecord) error {
	if f.fail.Load() {
		return errors.New("audit backend down")
	}
	return f.AuditLog.Append(ctx, rec)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []ledger.Event
}

func (r *recordingNotifier) Publish(_ context.Context, ev ledger.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func newEngine(t *testing.T, cfg ledger.Config, wrap func(*ledger.Stores), opts ...ledger.Option) (*ledger.Engine, *memory.Store) {
	t.Helper()
	store := memory.New()
	stores := store.Stores()
	if wrap != nil {
		wrap(&stores)
	}
	e, err := ledger.New(stores, cfg, opts...)
	require.NoError(t, err)
	return e, store
}

func openAccount(t *testing.T, e *ledger.Engine, typ ledger.AccountType, balance string) ledger.Account {
	t.Helper()
	acc, err := e.OpenAccount(context.Background(), ledger.OpenAccountRequest{
		OwnerID:        "owner-1",
		Type:           typ,
		InitialBalance: dec(balance),
		CallerID:       caller,
	})
	require.NoError(t, err)
	return acc
}

func requireBalance(t *testing.T, e *ledger.Engine, id, want string) {
	t.Helper()
	acc, err := e.GetAccount(context.Background(), id)
	require.NoError(t, err)
	require.True(t, acc.Balance.Equal(dec(want)), "balance of %s: got %s want %s", id, acc.Balance, want)
}

func auditFor(store *memory.Store, action ledger.AuditAction) []ledger.AuditRecord {
	var out []ledger.AuditRecord
	for _, rec := range store.Audit.Records() {
		if rec.Action == action {
			out = append(out, rec)
		}
	}
	return out
}
