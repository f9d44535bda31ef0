package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Config struct {
	// MaxAttempts bounds the compare-and-swap retries of a single operation.
	MaxAttempts     int
	BackoffBase     time.Duration
	OpTimeout       time.Duration
	FinalizeTimeout time.Duration
	// Scale is the number of decimal places every amount and balance carries.
	Scale     int32
	MaxAmount decimal.Decimal
	// ForceTwoPhase makes transfers use the pending-marker protocol even if
	// the account store can commit batches.
	ForceTwoPhase bool
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:     5,
		BackoffBase:     5 * time.Millisecond,
		OpTimeout:       5 * time.Second,
		FinalizeTimeout: 10 * time.Second,
		Scale:           2,
		MaxAmount:       MaxForPrecision(20, 2),
	}
}

// MaxForPrecision returns the largest value a NUMERIC(precision, scale)
// column can hold.
func MaxForPrecision(precision, scale int32) decimal.Decimal {
	return decimal.New(1, precision-scale).Sub(decimal.New(1, -scale))
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine applies deposits, withdrawals and transfers. It holds no balances
// itself; every attempt re-reads the account store.
type Engine struct {
	accounts AccountStore
	txlog    TransactionLog
	audit    AuditLog
	batch    BatchCommitter
	pending  PendingLog
	recon    ReconciliationQueue
	notifier Notifier

	cfg Config
	log *zap.Logger
	now func() time.Time
	ids *idSource
}

func New(stores Stores, cfg Config, opts ...Option) (*Engine, error) {
	if stores.Accounts == nil || stores.Transactions == nil || stores.Audit == nil {
		return nil, errors.New("ledger: account store, transaction log and audit log are required")
	}
	if stores.Reconciliation == nil {
		return nil, errors.New("ledger: reconciliation queue is required")
	}

	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = def.OpTimeout
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = def.FinalizeTimeout
	}
	if cfg.Scale <= 0 {
		cfg.Scale = def.Scale
	}
	if !cfg.MaxAmount.IsPositive() {
		cfg.MaxAmount = MaxForPrecision(20, cfg.Scale)
	}

	e := &Engine{
		accounts: stores.Accounts,
		txlog:    stores.Transactions,
		audit:    stores.Audit,
		pending:  stores.Pending,
		recon:    stores.Reconciliation,
		cfg:      cfg,
		log:      zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
		ids:      newIDSource(),
	}
	if bc, ok := stores.Accounts.(BatchCommitter); ok && !cfg.ForceTwoPhase {
		e.batch = bc
	}
	if e.batch == nil && e.pending == nil {
		return nil, errors.New("ledger: a pending log is required when transfers run in two phases")
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Scale is the number of decimal places amounts are kept at.
func (e *Engine) Scale() int32 {
	return e.cfg.Scale
}

// TwoPhase reports whether transfers use the pending-marker protocol.
func (e *Engine) TwoPhase() bool {
	return e.batch == nil
}

func (e *Engine) OpenAccount(ctx context.Context, req OpenAccountRequest) (acc Account, err error) {
	start := time.Now()
	defer func() { e.observe(ActionOpen, start, err) }()
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	id := e.ids.random()
	if err := req.validate(); err != nil {
		return Account{}, e.reject(ctx, ActionOpen, id, "", req.CallerID, err)
	}
	if req.InitialBalance.IsNegative() && !req.Type.AllowsNegative() {
		return Account{}, e.reject(ctx, ActionOpen, id, "", req.CallerID,
			newError(KindInvalidAmount, nil, "initial balance cannot be negative for %s accounts", req.Type))
	}
	if err := e.checkRepresentable(req.InitialBalance); err != nil {
		return Account{}, e.reject(ctx, ActionOpen, id, "", req.CallerID, err)
	}

	now := e.now()
	acc = Account{
		ID:        id,
		OwnerID:   req.OwnerID,
		Type:      req.Type,
		Balance:   req.InitialBalance,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.accounts.Create(ctx, acc); err != nil {
		return Account{}, e.reject(ctx, ActionOpen, id, "", req.CallerID, storageError(err))
	}

	rec := e.auditRecord(e.ids.random(), ActionOpen, OutcomeSuccess, id, "", req.CallerID,
		fmt.Sprintf("opened %s account for owner %s with balance %s", acc.Type, acc.OwnerID, e.fixed(acc.Balance)))
	fctx, fcancel := e.finalizeContext(ctx)
	defer fcancel()
	if err := e.audit.Append(fctx, rec); err != nil {
		e.queue(fctx, Discrepancy{
			Operation:  ActionOpen,
			AccountIDs: []string{id},
			Audit:      []AuditRecord{rec},
			Reason:     "audit append failed after account creation",
		}, err)
		return Account{}, newError(KindAuditWriteFailed, err, "account created but the audit record could not be written; queued for reconciliation")
	}
	return acc, nil
}

func (e *Engine) GetAccount(ctx context.Context, accountID string) (Account, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()
	if accountID == "" {
		return Account{}, newError(KindInvalidRequest, nil, "account_id is required")
	}
	acc, err := e.accounts.Get(ctx, accountID)
	if err != nil {
		return Account{}, storageError(err)
	}
	return acc, nil
}

// ListTransactions returns the account history newest first. limit <= 0
// returns everything. A known account without history yields an empty slice.
func (e *Engine) ListTransactions(ctx context.Context, accountID string, limit int) ([]Transaction, error) {
	txs, _, err := e.history(ctx, accountID, 0, limit, false)
	return txs, err
}

// TransactionPage returns one page of history, newest first, and the total
// number of transactions on the account.
func (e *Engine) TransactionPage(ctx context.Context, accountID string, offset, limit int) ([]Transaction, int, error) {
	return e.history(ctx, accountID, offset, limit, true)
}

func (e *Engine) history(ctx context.Context, accountID string, offset, limit int, count bool) ([]Transaction, int, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()
	if accountID == "" {
		return nil, 0, newError(KindInvalidRequest, nil, "account_id is required")
	}
	if offset < 0 {
		return nil, 0, newError(KindInvalidRequest, nil, "offset cannot be negative")
	}
	if _, err := e.accounts.Get(ctx, accountID); err != nil {
		return nil, 0, storageError(err)
	}

	total := 0
	if count {
		n, err := e.txlog.CountByAccount(ctx, accountID)
		if err != nil {
			return nil, 0, storageError(err)
		}
		total = n
	}
	txs, err := e.txlog.ListByAccount(ctx, accountID, offset, limit)
	if err != nil {
		return nil, 0, storageError(err)
	}
	if txs == nil {
		txs = []Transaction{}
	}
	return txs, total, nil
}

// AuditTrail returns every audit record naming the account, oldest first.
// Rejected attempts against ids that never existed are included.
func (e *Engine) AuditTrail(ctx context.Context, accountID string) ([]AuditRecord, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()
	if accountID == "" {
		return nil, newError(KindInvalidRequest, nil, "account_id is required")
	}
	recs, err := e.audit.ListByEntity(ctx, accountID)
	if err != nil {
		return nil, storageError(err)
	}
	if recs == nil {
		recs = []AuditRecord{}
	}
	return recs, nil
}

// ListAccountsByOwner returns the owner's accounts, closed ones included.
func (e *Engine) ListAccountsByOwner(ctx context.Context, ownerID string) ([]Account, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()
	if strings.TrimSpace(ownerID) == "" {
		return nil, newError(KindInvalidRequest, nil, "owner_id is required")
	}
	accounts, err := e.accounts.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, storageError(err)
	}
	if accounts == nil {
		accounts = []Account{}
	}
	return accounts, nil
}

// CloseAccount tombstones an account with a zero balance. The record and its
// history stay readable; deposits, withdrawals and transfers are rejected.
func (e *Engine) CloseAccount(ctx context.Context, req CloseAccountRequest) (acc Account, err error) {
	start := time.Now()
	defer func() { e.observe(ActionClose, start, err) }()
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if err := validateSingle(req.AccountID, req.CallerID); err != nil {
		return Account{}, e.reject(ctx, ActionClose, req.AccountID, "", req.CallerID, err)
	}

	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if err := e.backoff(ctx, attempt); err != nil {
			return Account{}, e.reject(ctx, ActionClose, req.AccountID, "", req.CallerID, storageError(err))
		}

		acc, err = e.accounts.Get(ctx, req.AccountID)
		if err != nil {
			return Account{}, e.reject(ctx, ActionClose, req.AccountID, "", req.CallerID, storageError(err))
		}
		if acc.Closed() {
			return Account{}, e.reject(ctx, ActionClose, acc.ID, "", req.CallerID, errClosed(acc.ID))
		}
		if !acc.Balance.IsZero() {
			return Account{}, e.reject(ctx, ActionClose, acc.ID, "", req.CallerID,
				newError(KindInvalidRequest, nil, "account balance must be zero to close, it is %s", e.fixed(acc.Balance)))
		}

		now := e.now()
		rec := e.auditRecord(e.ids.random(), ActionClose, OutcomeSuccess, acc.ID, "", req.CallerID,
			fmt.Sprintf("closed %s account of owner %s", acc.Type, acc.OwnerID))
		w := AccountWrite{AccountID: acc.ID, ExpectedVersion: acc.Version, NewBalance: acc.Balance, NewVersion: acc.Version + 1}

		err = e.accounts.Close(ctx, acc.ID, acc.Version, acc.Version+1, now)
		if errors.Is(err, ErrVersionConflict) {
			casConflicts.WithLabelValues(string(ActionClose)).Inc()
			continue
		}
		if err != nil {
			return Account{}, e.failedWrite(ctx, []AccountWrite{w}, rec, err)
		}
		if err := e.finalize(ctx, ActionClose, []string{acc.ID}, nil, rec); err != nil {
			return Account{}, err
		}

		acc.Version++
		acc.ClosedAt = &now
		acc.UpdatedAt = now
		return acc, nil
	}
	return Account{}, e.reject(ctx, ActionClose, req.AccountID, "", req.CallerID,
		newError(KindContention, nil, "too much contention on account %s, retry later", req.AccountID))
}

func (e *Engine) Deposit(ctx context.Context, req DepositRequest) (decimal.Decimal, error) {
	return e.applySingle(ctx, singleOp{
		action:    ActionDeposit,
		kind:      Deposit,
		accountID: req.AccountID,
		amount:    req.Amount,
		callerID:  req.CallerID,
	})
}

func (e *Engine) Withdraw(ctx context.Context, req WithdrawRequest) (decimal.Decimal, error) {
	return e.applySingle(ctx, singleOp{
		action:    ActionWithdrawal,
		kind:      Withdrawal,
		accountID: req.AccountID,
		amount:    req.Amount,
		callerID:  req.CallerID,
		debit:     true,
	})
}

type singleOp struct {
	action    AuditAction
	kind      TransactionKind
	accountID string
	amount    decimal.Decimal
	callerID  string
	debit     bool
}

func (e *Engine) applySingle(ctx context.Context, op singleOp) (balance decimal.Decimal, err error) {
	start := time.Now()
	defer func() { e.observe(op.action, start, err) }()
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if err := validateSingle(op.accountID, op.callerID); err != nil {
		return decimal.Zero, e.reject(ctx, op.action, op.accountID, "", op.callerID, err)
	}
	if err := e.checkAmount(op.amount); err != nil {
		return decimal.Zero, e.reject(ctx, op.action, op.accountID, "", op.callerID, err)
	}
	delta := op.amount
	if op.debit {
		delta = delta.Neg()
	}

	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if err := e.backoff(ctx, attempt); err != nil {
			return decimal.Zero, e.reject(ctx, op.action, op.accountID, "", op.callerID, storageError(err))
		}

		acc, err := e.accounts.Get(ctx, op.accountID)
		if err != nil {
			return decimal.Zero, e.reject(ctx, op.action, op.accountID, "", op.callerID, storageError(err))
		}
		if acc.Closed() {
			return decimal.Zero, e.reject(ctx, op.action, op.accountID, "", op.callerID, errClosed(acc.ID))
		}
		if op.debit && acc.Balance.LessThan(op.amount) {
			return decimal.Zero, e.reject(ctx, op.action, op.accountID, "", op.callerID,
				newError(KindInsufficientFunds, nil, "insufficient funds"))
		}
		newBalance := acc.Balance.Add(delta)
		if err := e.checkRepresentable(newBalance); err != nil {
			return decimal.Zero, e.reject(ctx, op.action, op.accountID, "", op.callerID, err)
		}

		now := e.now()
		tx := Transaction{
			ID:               e.ids.ordered(now),
			AccountID:        acc.ID,
			Kind:             op.kind,
			Amount:           delta,
			ResultingBalance: newBalance,
			CallerID:         op.callerID,
			CreatedAt:        now,
		}
		rec := e.auditRecord(e.ids.random(), op.action, OutcomeSuccess, acc.ID, "", op.callerID,
			fmt.Sprintf("%s of %s, balance %s -> %s", op.kind, e.fixed(op.amount), e.fixed(acc.Balance), e.fixed(newBalance)))
		write := AccountWrite{
			AccountID:       acc.ID,
			ExpectedVersion: acc.Version,
			NewBalance:      newBalance,
			NewVersion:      acc.Version + 1,
		}

		err = e.commitSingle(ctx, write, tx, rec)
		if errors.Is(err, ErrVersionConflict) {
			casConflicts.WithLabelValues(string(op.action)).Inc()
			continue
		}
		if err != nil {
			return decimal.Zero, err
		}

		e.publish(ctx, Event{
			Type:           op.action,
			TransactionIDs: []string{tx.ID},
			AccountIDs:     []string{acc.ID},
			Amount:         op.amount,
			Balances:       []string{e.fixed(newBalance)},
			CallerID:       op.callerID,
			At:             now,
		})
		return newBalance, nil
	}

	return decimal.Zero, e.reject(ctx, op.action, op.accountID, "", op.callerID,
		newError(KindContention, nil, "too much contention on account %s, retry later", op.accountID))
}

// commitSingle writes one balance change with its records. A batch store
// commits all three at once. Otherwise the records follow the
// compare-and-swap, and losing them is queued for reconciliation.
// ErrVersionConflict is returned unwrapped for the retry loop.
func (e *Engine) commitSingle(ctx context.Context, w AccountWrite, tx Transaction, rec AuditRecord) error {
	if e.batch != nil {
		err := e.batch.CommitBatch(ctx, Batch{
			Accounts:     []AccountWrite{w},
			Transactions: []Transaction{tx},
			Audit:        []AuditRecord{rec},
		})
		if err == nil || errors.Is(err, ErrVersionConflict) {
			return err
		}
		return e.failedWrite(ctx, []AccountWrite{w}, rec, err)
	}

	err := e.accounts.CompareAndSwap(ctx, w.AccountID, w.ExpectedVersion, w.NewBalance, w.NewVersion)
	if errors.Is(err, ErrVersionConflict) {
		return err
	}
	if err != nil {
		return e.failedWrite(ctx, []AccountWrite{w}, rec, err)
	}
	return e.finalize(ctx, rec.Action, []string{w.AccountID}, []Transaction{tx}, rec)
}

// failedWrite settles a commit that returned a storage error. The store may
// have applied it anyway, so the account versions decide: unchanged versions
// make it an ordinary failure, anything else goes to manual review.
func (e *Engine) failedWrite(ctx context.Context, writes []AccountWrite, rec AuditRecord, cause error) error {
	if !e.writeUnresolved(ctx, writes) {
		return e.rejectWithID(ctx, rec.ID, rec.Action, rec.EntityID, rec.RelatedEntityID, rec.CallerID, storageError(cause))
	}

	fctx, cancel := e.finalizeContext(ctx)
	defer cancel()
	recoveryActions.WithLabelValues("manual_review").Inc()
	// Same id as the success record: if the write did land with its
	// records, this one is dropped by the idempotent append.
	undetermined := e.auditRecord(rec.ID, rec.Action, OutcomeError, rec.EntityID, rec.RelatedEntityID, rec.CallerID,
		"outcome undetermined after a storage error: "+rec.Detail)
	e.queue(fctx, Discrepancy{
		Operation:    rec.Action,
		AccountIDs:   nonEmpty(rec.EntityID, rec.RelatedEntityID),
		Audit:        []AuditRecord{undetermined},
		Reason:       "balance write failed and may have been applied",
		ManualReview: true,
	}, cause)
	return newError(KindStorageUnavailable, cause, "ledger storage failed mid-write; the operation is queued for review")
}

// writeUnresolved reports whether writes that failed with a storage error
// may still have been applied. Only unchanged versions prove they were not.
func (e *Engine) writeUnresolved(ctx context.Context, writes []AccountWrite) bool {
	fctx, cancel := e.finalizeContext(ctx)
	defer cancel()
	for _, w := range writes {
		acc, err := e.accounts.Get(fctx, w.AccountID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil || acc.Version != w.ExpectedVersion {
			return true
		}
	}
	return false
}

// finalize appends the records of a balance change that already committed.
// It runs detached from the caller's cancellation, so an expiring deadline
// cannot abandon them halfway.
func (e *Engine) finalize(ctx context.Context, action AuditAction, accountIDs []string, txs []Transaction, rec AuditRecord) error {
	fctx, cancel := e.finalizeContext(ctx)
	defer cancel()

	for i, tx := range txs {
		if _, err := e.txlog.Append(fctx, tx); err != nil {
			e.queue(fctx, Discrepancy{
				Operation:    action,
				AccountIDs:   accountIDs,
				Transactions: txs[i:],
				Audit:        []AuditRecord{rec},
				Reason:       "transaction append failed after balance commit",
			}, err)
			return newError(KindStorageUnavailable, err, "balance committed but the transaction record could not be written; queued for reconciliation")
		}
	}
	if err := e.audit.Append(fctx, rec); err != nil {
		e.queue(fctx, Discrepancy{
			Operation:  action,
			AccountIDs: accountIDs,
			Audit:      []AuditRecord{rec},
			Reason:     "audit append failed after balance commit",
		}, err)
		return newError(KindAuditWriteFailed, err, "balance committed but the audit record could not be written; queued for reconciliation")
	}
	return nil
}

// reject records a failed attempt and returns it as an *Error. Nothing
// reached the account store, so a failing audit append here is queued rather
// than changing the reported error.
func (e *Engine) reject(ctx context.Context, action AuditAction, entityID, relatedID, callerID string, cause error) error {
	return e.rejectWithID(ctx, e.ids.random(), action, entityID, relatedID, callerID, cause)
}

func (e *Engine) rejectWithID(ctx context.Context, auditID string, action AuditAction, entityID, relatedID, callerID string, cause error) error {
	le := storageError(cause)
	rec := e.auditRecord(auditID, action, OutcomeError, entityID, relatedID, callerID, le.Message)

	fctx, cancel := e.finalizeContext(ctx)
	defer cancel()
	if err := e.audit.Append(fctx, rec); err != nil {
		e.queue(fctx, Discrepancy{
			Operation:  action,
			AccountIDs: nonEmpty(entityID, relatedID),
			Audit:      []AuditRecord{rec},
			Reason:     "error audit append failed",
		}, err)
	}

	e.log.Warn("ledger operation failed",
		zap.String("operation", string(action)),
		zap.String("account_id", entityID),
		zap.String("related_account_id", relatedID),
		zap.String("caller_id", callerID),
		zap.String("error_kind", string(le.Kind)),
		zap.String("message", le.Message),
		zap.NamedError("cause", le.Err),
	)
	return le
}

func (e *Engine) auditRecord(id string, action AuditAction, outcome Outcome, entityID, relatedID, callerID, detail string) AuditRecord {
	return AuditRecord{
		ID:              id,
		Action:          action,
		Outcome:         outcome,
		Collection:      CollectionAccounts,
		EntityID:        entityID,
		RelatedEntityID: relatedID,
		CallerID:        callerID,
		Detail:          detail,
		Timestamp:       e.now(),
	}
}

// queue pushes a discrepancy for the reconciler. If even that fails the
// discrepancy survives only in the error log.
func (e *Engine) queue(ctx context.Context, d Discrepancy, cause error) {
	now := e.now()
	d.ID = e.ids.ordered(now)
	d.At = now
	reconciliationMarkers.WithLabelValues(string(d.Operation)).Inc()

	if err := e.recon.Push(ctx, d); err != nil {
		e.log.Error("reconciliation marker could not be queued",
			zap.Any("discrepancy", d),
			zap.Error(err),
			zap.NamedError("cause", cause),
		)
		return
	}
	e.log.Error("ledger discrepancy queued for reconciliation",
		zap.String("discrepancy_id", d.ID),
		zap.String("operation", string(d.Operation)),
		zap.Strings("account_ids", d.AccountIDs),
		zap.String("reason", d.Reason),
		zap.NamedError("cause", cause),
	)
}

func (e *Engine) publish(ctx context.Context, ev Event) {
	if e.notifier == nil {
		return
	}
	fctx, cancel := e.finalizeContext(ctx)
	defer cancel()
	if err := e.notifier.Publish(fctx, ev); err != nil {
		publishErrors.Inc()
		e.log.Warn("ledger event not published",
			zap.String("type", string(ev.Type)),
			zap.Strings("transaction_ids", ev.TransactionIDs),
			zap.Error(err),
		)
	}
}

func (e *Engine) observe(action AuditAction, start time.Time, err error) {
	outcome := string(OutcomeSuccess)
	if err != nil {
		outcome = string(KindOf(err))
	}
	operationsTotal.WithLabelValues(string(action), outcome).Inc()
	operationDuration.WithLabelValues(string(action)).Observe(time.Since(start).Seconds())
}

// opContext applies the default deadline unless the caller brought one.
func (e *Engine) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.OpTimeout)
}

func (e *Engine) finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.cfg.FinalizeTimeout)
}

// backoff sleeps a random duration below BackoffBase<<attempt. Attempt 0
// does not wait.
func (e *Engine) backoff(ctx context.Context, attempt int) error {
	if attempt == 0 {
		return ctx.Err()
	}
	ceiling := int64(e.cfg.BackoffBase) << min(attempt, 10)
	t := time.NewTimer(time.Duration(rand.Int64N(ceiling) + 1))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func errClosed(accountID string) *Error {
	return newError(KindInvalidRequest, nil, "account %s is closed", accountID)
}

func (e *Engine) fixed(v decimal.Decimal) string {
	return v.StringFixed(e.cfg.Scale)
}

func nonEmpty(ids ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
