package ledger_test

import (
	"context"
	"testing"

	"github.com/JhonesBR/go-ledger/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloseAccount(t *testing.T) {
	e, store := newEngine(t, testConfig(), nil)
	ctx := context.Background()
	acc := openAccount(t, e, ledger.Checking, "0.00")
	_, err := e.Deposit(ctx, ledger.DepositRequest{AccountID: acc.ID, Amount: dec("10.00"), CallerID: caller})
	require.NoError(t, err)
	_, err = e.Withdraw(ctx, ledger.WithdrawRequest{AccountID: acc.ID, Amount: dec("10.00"), CallerID: caller})
	require.NoError(t, err)

	closed, err := e.CloseAccount(ctx, ledger.CloseAccountRequest{AccountID: acc.ID, CallerID: caller})
	require.NoError(t, err)
	require.True(t, closed.Closed())
	assert.Equal(t, int64(4), closed.Version)

	got, err := e.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, got.Closed())
	assert.Equal(t, closed.Version, got.Version)

	_, err = e.Deposit(ctx, ledger.DepositRequest{AccountID: acc.ID, Amount: dec("1.00"), CallerID: caller})
	require.ErrorIs(t, err, ledger.ErrInvalidRequest)
	_, err = e.Withdraw(ctx, ledger.WithdrawRequest{AccountID: acc.ID, Amount: dec("1.00"), CallerID: caller})
	require.ErrorIs(t, err, ledger.ErrInvalidRequest)
	_, err = e.CloseAccount(ctx, ledger.CloseAccountRequest{AccountID: acc.ID, CallerID: caller})
	require.ErrorIs(t, err, ledger.ErrInvalidRequest)

	txs, err := e.ListTransactions(ctx, acc.ID, 0)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
	requireBalance(t, e, acc.ID, "0.00")

	audits := auditFor(store, ledger.ActionClose)
	require.Len(t, audits, 2)
	assert.Equal(t, ledger.OutcomeSuccess, audits[0].Outcome)
	assert.Equal(t, ledger.OutcomeError, audits[1].Outcome)
}

func TestCloseAccountRejections(t *testing.T) {
	e, store := newEngine(t, testConfig(), nil)
	ctx := context.Background()
	funded := openAccount(t, e, ledger.Savings, "5.00")

	tests := []struct {
		name string
		req  ledger.CloseAccountRequest
		want error
	}{
		{"non-zero balance", ledger.CloseAccountRequest{AccountID: funded.ID, CallerID: caller}, ledger.ErrInvalidRequest},
		{"unknown account", ledger.CloseAccountRequest{AccountID: "missing", CallerID: caller}, ledger.ErrAccountNotFound},
		{"missing caller", ledger.CloseAccountRequest{AccountID: funded.ID}, ledger.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.CloseAccount(ctx, tt.req)
			require.ErrorIs(t, err, tt.want)
		})
	}

	got, err := e.GetAccount(ctx, funded.ID)
	require.NoError(t, err)
	assert.False(t, got.Closed())
	assert.Equal(t, int64(1), got.Version)
	for _, rec := range auditFor(store, ledger.ActionClose) {
		assert.Equal(t, ledger.OutcomeError, rec.Outcome)
	}
}

func TestTransferWithClosedAccount(t *testing.T) {
	for _, mode := range []struct {
		name string
		wrap func(*ledger.Stores)
	}{
		{"atomic", nil},
		{"two-phase", twoPhase},
	} {
		t.Run(mode.name, func(t *testing.T) {
			e, store := newEngine(t, testConfig(), mode.wrap)
			ctx := context.Background()
			open := openAccount(t, e, ledger.Checking, "100.00")
			shut := openAccount(t, e, ledger.Savings, "0.00")
			_, err := e.CloseAccount(ctx, ledger.CloseAccountRequest{AccountID: shut.ID, CallerID: caller})
			require.NoError(t, err)

			_, err = e.Transfer(ctx, ledger.TransferRequest{FromAccountID: open.ID, ToAccountID: shut.ID, Amount: dec("10.00"), CallerID: caller})
			require.ErrorIs(t, err, ledger.ErrInvalidRequest)
			_, err = e.Transfer(ctx, ledger.TransferRequest{FromAccountID: shut.ID, ToAccountID: open.ID, Amount: dec("0.01"), CallerID: caller})
			require.ErrorIs(t, err, ledger.ErrInvalidRequest)

			requireBalance(t, e, open.ID, "100.00")
			requireBalance(t, e, shut.ID, "0.00")
			assert.Zero(t, store.Pending.Len())
		})
	}
}

func TestListAccountsByOwner(t *testing.T) {
	e, _ := newEngine(t, testConfig(), nil)
	ctx := context.Background()
	a := openAccount(t, e, ledger.Checking, "1.00")
	b := openAccount(t, e, ledger.Loan, "-5.00")
	_, err := e.OpenAccount(ctx, ledger.OpenAccountRequest{OwnerID: "owner-2", Type: ledger.Savings, InitialBalance: dec("0"), CallerID: caller})
	require.NoError(t, err)

	owned, err := e.ListAccountsByOwner(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, []string{owned[0].ID, owned[1].ID})

	none, err := e.ListAccountsByOwner(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = e.ListAccountsByOwner(ctx, " ")
	require.ErrorIs(t, err, ledger.ErrInvalidRequest)
}

func TestTransactionPage(t *testing.T) {
	e, _ := newEngine(t, testConfig(), nil)
	ctx := context.Background()
	acc := openAccount(t, e, ledger.Savings, "0.00")
	for _, amount := range []string{"1.00", "2.00", "3.00"} {
		_, err := e.Deposit(ctx, ledger.DepositRequest{AccountID: acc.ID, Amount: dec(amount), CallerID: caller})
		require.NoError(t, err)
	}

	page, total, err := e.TransactionPage(ctx, acc.ID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.True(t, page[0].Amount.Equal(dec("2.00")))

	page, total, err = e.TransactionPage(ctx, acc.ID, 5, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.NotNil(t, page)
	assert.Empty(t, page)

	_, _, err = e.TransactionPage(ctx, acc.ID, -1, 10)
	require.ErrorIs(t, err, ledger.ErrInvalidRequest)
	_, _, err = e.TransactionPage(ctx, "missing", 0, 10)
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestAuditTrail(t *testing.T) {
	e, _ := newEngine(t, testConfig(), nil)
	ctx := context.Background()
	x := openAccount(t, e, ledger.Checking, "50.00")
	y := openAccount(t, e, ledger.Savings, "0.00")
	_, err := e.Transfer(ctx, ledger.TransferRequest{FromAccountID: x.ID, ToAccountID: y.ID, Amount: dec("10.00"), CallerID: caller})
	require.NoError(t, err)
	_, err = e.Withdraw(ctx, ledger.WithdrawRequest{AccountID: y.ID, Amount: dec("99.00"), CallerID: caller})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	trail, err := e.AuditTrail(ctx, y.ID)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, ledger.ActionOpen, trail[0].Action)
	assert.Equal(t, ledger.ActionTransfer, trail[1].Action)
	assert.Equal(t, y.ID, trail[1].RelatedEntityID)
	assert.Equal(t, ledger.ActionWithdrawal, trail[2].Action)
	assert.Equal(t, ledger.OutcomeError, trail[2].Outcome)

	unknown, err := e.AuditTrail(ctx, "never-existed")
	require.NoError(t, err)
	assert.Empty(t, unknown)

	_, err = e.AuditTrail(ctx, "")
	require.ErrorIs(t, err, ledger.ErrInvalidRequest)
}
