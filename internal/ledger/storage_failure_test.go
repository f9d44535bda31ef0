package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/JhonesBR/go-ledger/internal/ledger"
	"github.com/JhonesBR/go-ledger/internal/ledger/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lostReplyFixture struct {
	engine   *ledger.Engine
	store    *memory.Store
	accounts *committedButFailing
	clock    *testClock
	from     ledger.Account
	to       ledger.Account
}

func newLostReplyFixture(t *testing.T) *lostReplyFixture {
	t.Helper()
	f := &lostReplyFixture{accounts: &committedButFailing{}, clock: newTestClock()}
	f.engine, f.store = newEngine(t, testConfig(), func(s *ledger.Stores) {
		f.accounts.AccountStore = s.Accounts
		s.Accounts = f.accounts
	}, ledger.WithClock(f.clock.now))
	require.True(t, f.engine.TwoPhase())
	f.from = openAccount(t, f.engine, ledger.Checking, "1000.00")
	f.to = openAccount(t, f.engine, ledger.Savings, "500.00")
	return f
}

func (f *lostReplyFixture) transfer(t *testing.T) error {
	t.Helper()
	_, err := f.engine.Transfer(context.Background(), ledger.TransferRequest{
		FromAccountID: f.from.ID, ToAccountID: f.to.ID, Amount: dec("100.00"), CallerID: caller,
	})
	return err
}

func (f *lostReplyFixture) markers(t *testing.T) []ledger.PendingTransfer {
	t.Helper()
	markers, err := f.store.Pending.ListStale(context.Background(), f.clock.now().Add(time.Hour))
	require.NoError(t, err)
	return markers
}

func (f *lostReplyFixture) sweep(t *testing.T) int {
	t.Helper()
	f.clock.advance(time.Minute)
	n, err := ledger.NewSweeper(f.engine, 30*time.Second, time.Second).RunOnce(context.Background())
	require.NoError(t, err)
	return n
}

func (f *lostReplyFixture) requireManualReview(t *testing.T, auditID string) {
	t.Helper()
	d, ok, err := f.store.Queue.Pop(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, d.ManualReview)
	assert.ElementsMatch(t, []string{f.from.ID, f.to.ID}, d.AccountIDs)
	require.Len(t, d.Audit, 1)
	assert.Equal(t, auditID, d.Audit[0].ID)
	assert.Equal(t, ledger.OutcomeError, d.Audit[0].Outcome)
}

func TestTwoPhaseDebitAppliedButReportedFailed(t *testing.T) {
	f := newLostReplyFixture(t)
	f.accounts.failNext(f.from.ID)

	err := f.transfer(t)
	require.ErrorIs(t, err, ledger.ErrStorageUnavailable)
	assert.Contains(t, err.Error(), "pending recovery")

	// The debit landed; nothing may refund it or report a clean failure.
	requireBalance(t, f.engine, f.from.ID, "900.00")
	requireBalance(t, f.engine, f.to.ID, "500.00")
	assert.Empty(t, auditFor(f.store, ledger.ActionTransfer))
	markers := f.markers(t)
	require.Len(t, markers, 1)
	assert.Equal(t, ledger.PhaseReserving, markers[0].Phase)

	assert.Equal(t, 1, f.sweep(t))
	assert.Zero(t, f.store.Pending.Len())
	requireBalance(t, f.engine, f.from.ID, "900.00")
	requireBalance(t, f.engine, f.to.ID, "500.00")
	f.requireManualReview(t, markers[0].AuditID)
}

func TestTwoPhaseCreditAppliedButReportedFailed(t *testing.T) {
	f := newLostReplyFixture(t)
	f.accounts.failNext(f.to.ID)

	err := f.transfer(t)
	require.ErrorIs(t, err, ledger.ErrStorageUnavailable)

	requireBalance(t, f.engine, f.from.ID, "900.00")
	requireBalance(t, f.engine, f.to.ID, "600.00")
	markers := f.markers(t)
	require.Len(t, markers, 1)
	assert.Equal(t, ledger.PhaseCrediting, markers[0].Phase)

	assert.Equal(t, 1, f.sweep(t))
	assert.Zero(t, f.store.Pending.Len())
	// No refund: the destination already holds the money.
	requireBalance(t, f.engine, f.from.ID, "900.00")
	requireBalance(t, f.engine, f.to.ID, "600.00")
	f.requireManualReview(t, markers[0].AuditID)
}

func TestDepositAppliedButReportedFailed(t *testing.T) {
	f := newLostReplyFixture(t)
	ctx := context.Background()
	f.accounts.failNext(f.from.ID)

	_, err := f.engine.Deposit(ctx, ledger.DepositRequest{AccountID: f.from.ID, Amount: dec("25.00"), CallerID: caller})
	require.ErrorIs(t, err, ledger.ErrStorageUnavailable)
	requireBalance(t, f.engine, f.from.ID, "1025.00")
	assert.Zero(t, f.store.Transactions.Count(f.from.ID))
	assert.Empty(t, auditFor(f.store, ledger.ActionDeposit))

	d, ok, err := f.store.Queue.Pop(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, d.ManualReview)
	assert.Equal(t, ledger.ActionDeposit, d.Operation)
	assert.Equal(t, []string{f.from.ID}, d.AccountIDs)
	require.Len(t, d.Audit, 1)
	assert.Equal(t, ledger.OutcomeError, d.Audit[0].Outcome)
	assert.Contains(t, d.Audit[0].Detail, "outcome undetermined")
}

func TestFailedWriteThatDidNotLandIsRejected(t *testing.T) {
	store := memory.New()
	e0, err := ledger.New(store.Stores(), testConfig())
	require.NoError(t, err)
	acc := openAccount(t, e0, ledger.Savings, "100.00")

	stores := store.Stores()
	stores.Accounts = failingCAS{AccountStore: store.Accounts, accountID: acc.ID}
	e, err := ledger.New(stores, testConfig())
	require.NoError(t, err)

	_, err = e.Deposit(context.Background(), ledger.DepositRequest{AccountID: acc.ID, Amount: dec("25.00"), CallerID: caller})
	require.ErrorIs(t, err, ledger.ErrStorageUnavailable)
	requireBalance(t, e, acc.ID, "100.00")

	n, err := store.Queue.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	audits := auditFor(store, ledger.ActionDeposit)
	require.Len(t, audits, 1)
	assert.Equal(t, ledger.OutcomeError, audits[0].Outcome)
}

func TestTransactionAppendFailureIsReplayed(t *testing.T) {
	txlog := &flakyTxLog{}
	e, store := newEngine(t, testConfig(), func(s *ledger.Stores) {
		s.Accounts = casOnly{s.Accounts}
		txlog.TransactionLog = s.Transactions
		s.Transactions = txlog
	})
	ctx := context.Background()
	acc := openAccount(t, e, ledger.Savings, "100.00")

	txlog.fail.Store(true)
	_, err := e.Deposit(ctx, ledger.DepositRequest{AccountID: acc.ID, Amount: dec("25.00"), CallerID: caller})
	require.ErrorIs(t, err, ledger.ErrStorageUnavailable)
	assert.Contains(t, err.Error(), "queued for reconciliation")

	requireBalance(t, e, acc.ID, "125.00")
	assert.Zero(t, store.Transactions.Count(acc.ID))
	assert.Empty(t, auditFor(store, ledger.ActionDeposit))
	n, err := store.Queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	txlog.fail.Store(false)
	resolved, err := ledger.NewReconciler(e, 0).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	txs, err := e.ListTransactions(ctx, acc.ID, 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.Deposit, txs[0].Kind)
	assert.True(t, txs[0].ResultingBalance.Equal(dec("125.00")))

	audits := auditFor(store, ledger.ActionDeposit)
	require.Len(t, audits, 1)
	assert.Equal(t, ledger.OutcomeSuccess, audits[0].Outcome)
}
