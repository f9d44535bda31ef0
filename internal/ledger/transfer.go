package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Transfer moves amount from one account to another. With a BatchCommitter
// both legs commit atomically; otherwise the transfer runs in two phases
// guarded by a pending marker.
func (e *Engine) Transfer(ctx context.Context, req TransferRequest) (res TransferResult, err error) {
	start := time.Now()
	defer func() { e.observe(ActionTransfer, start, err) }()
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if err := req.validate(); err != nil {
		return res, e.reject(ctx, ActionTransfer, req.FromAccountID, req.ToAccountID, req.CallerID, err)
	}
	if err := e.checkAmount(req.Amount); err != nil {
		return res, e.reject(ctx, ActionTransfer, req.FromAccountID, req.ToAccountID, req.CallerID, err)
	}
	if e.batch != nil {
		return e.transferAtomic(ctx, req)
	}
	return e.transferTwoPhase(ctx, req)
}

// lockOrder returns both ids in the fixed total order every multi-account
// operation reads and writes in.
func lockOrder(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// readPair reads both accounts lo-id first and rejects closed ones.
func (e *Engine) readPair(ctx context.Context, fromID, toID string) (from, to Account, err error) {
	lo, hi := lockOrder(fromID, toID)
	got := make(map[string]Account, 2)
	for _, id := range []string{lo, hi} {
		acc, err := e.accounts.Get(ctx, id)
		if err != nil {
			le := storageError(err)
			if le.Kind == KindAccountNotFound {
				le = newError(KindAccountNotFound, err, "account %s not found", id)
			}
			return from, to, le
		}
		if acc.Closed() {
			return from, to, errClosed(acc.ID)
		}
		got[id] = acc
	}
	return got[fromID], got[toID], nil
}

func (e *Engine) transferAtomic(ctx context.Context, req TransferRequest) (TransferResult, error) {
	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if err := e.backoff(ctx, attempt); err != nil {
			return TransferResult{}, e.reject(ctx, ActionTransfer, req.FromAccountID, req.ToAccountID, req.CallerID, storageError(err))
		}

		from, to, err := e.readPair(ctx, req.FromAccountID, req.ToAccountID)
		if err != nil {
			return TransferResult{}, e.reject(ctx, ActionTransfer, req.FromAccountID, req.ToAccountID, req.CallerID, err)
		}
		if from.Balance.LessThan(req.Amount) {
			return TransferResult{}, e.reject(ctx, ActionTransfer, req.FromAccountID, req.ToAccountID, req.CallerID,
				newError(KindInsufficientFunds, nil, "insufficient funds"))
		}
		fromBalance := from.Balance.Sub(req.Amount)
		toBalance := to.Balance.Add(req.Amount)
		if err := e.checkRepresentable(toBalance); err != nil {
			return TransferResult{}, e.reject(ctx, ActionTransfer, req.FromAccountID, req.ToAccountID, req.CallerID, err)
		}

		now := e.now()
		out, in := e.transferLegs(req, e.ids.ordered(now), e.ids.ordered(now), fromBalance, toBalance, now)
		rec := e.transferAudit(e.ids.random(), req, OutcomeSuccess, e.transferDetail(req.Amount, fromBalance, toBalance))
		writes := []AccountWrite{
			{AccountID: from.ID, ExpectedVersion: from.Version, NewBalance: fromBalance, NewVersion: from.Version + 1},
			{AccountID: to.ID, ExpectedVersion: to.Version, NewBalance: toBalance, NewVersion: to.Version + 1},
		}
		sort.Slice(writes, func(i, j int) bool { return writes[i].AccountID < writes[j].AccountID })

		err = e.batch.CommitBatch(ctx, Batch{
			Accounts:     writes,
			Transactions: []Transaction{out, in},
			Audit:        []AuditRecord{rec},
		})
		if errors.Is(err, ErrVersionConflict) {
			casConflicts.WithLabelValues(string(ActionTransfer)).Inc()
			continue
		}
		if err != nil {
			return TransferResult{}, e.failedWrite(ctx, writes, rec, err)
		}

		e.publishTransfer(ctx, req, out, in, now)
		return TransferResult{FromBalance: fromBalance, ToBalance: toBalance}, nil
	}

	return TransferResult{}, e.reject(ctx, ActionTransfer, req.FromAccountID, req.ToAccountID, req.CallerID,
		newError(KindContention, nil, "too much contention on accounts %s and %s, retry later", req.FromAccountID, req.ToAccountID))
}

func (e *Engine) transferLegs(req TransferRequest, outID, inID string, fromBalance, toBalance decimal.Decimal, at time.Time) (Transaction, Transaction) {
	from, to := req.FromAccountID, req.ToAccountID
	out := Transaction{
		ID:               outID,
		AccountID:        from,
		CounterpartyID:   &to,
		Kind:             TransferOut,
		Amount:           req.Amount.Neg(),
		ResultingBalance: fromBalance,
		CallerID:         req.CallerID,
		CreatedAt:        at,
	}
	in := Transaction{
		ID:               inID,
		AccountID:        to,
		CounterpartyID:   &from,
		Kind:             TransferIn,
		Amount:           req.Amount,
		ResultingBalance: toBalance,
		CallerID:         req.CallerID,
		CreatedAt:        at,
	}
	return out, in
}

func (e *Engine) transferAudit(id string, req TransferRequest, outcome Outcome, detail string) AuditRecord {
	return e.auditRecord(id, ActionTransfer, outcome, req.FromAccountID, req.ToAccountID, req.CallerID, detail)
}

func (e *Engine) transferDetail(amount, fromBalance, toBalance decimal.Decimal) string {
	return fmt.Sprintf("transfer of %s, source balance %s, destination balance %s",
		e.fixed(amount), e.fixed(fromBalance), e.fixed(toBalance))
}

func (e *Engine) publishTransfer(ctx context.Context, req TransferRequest, out, in Transaction, at time.Time) {
	e.publish(ctx, Event{
		Type:           ActionTransfer,
		TransactionIDs: []string{out.ID, in.ID},
		AccountIDs:     []string{req.FromAccountID, req.ToAccountID},
		Amount:         req.Amount,
		Balances:       []string{e.fixed(out.ResultingBalance), e.fixed(in.ResultingBalance)},
		CallerID:       req.CallerID,
		At:             at,
	})
}

// transferTwoPhase debits the source, then credits the destination, keeping
// a marker that records every step so a crash can be rolled forward or back.
// Every audit written for one attempt carries the marker's AuditID; audit
// appends are idempotent, so the attempt is audited exactly once no matter
// how many paths try to settle it.
func (e *Engine) transferTwoPhase(ctx context.Context, req TransferRequest) (TransferResult, error) {
	now := e.now()
	p := PendingTransfer{
		ID:            e.ids.ordered(now),
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		CallerID:      req.CallerID,
		OutTxID:       e.ids.ordered(now),
		InTxID:        e.ids.ordered(now),
		AuditID:       e.ids.random(),
		CreatedAt:     now,
	}

	marked, debited, err := e.reserve(ctx, &p)
	switch {
	case errors.Is(err, errInDoubt):
		return TransferResult{}, e.deferToRecovery(&p, err)
	case err != nil && debited:
		return TransferResult{}, e.rollback(ctx, &p, err)
	case err != nil:
		return TransferResult{}, e.abort(ctx, &p, marked, err)
	}

	if err := e.credit(ctx, &p); err != nil {
		if errors.Is(err, errInDoubt) {
			return TransferResult{}, e.deferToRecovery(&p, err)
		}
		return TransferResult{}, e.rollback(ctx, &p, err)
	}

	if err := e.complete(ctx, &p); err != nil {
		return TransferResult{}, err
	}
	return TransferResult{FromBalance: p.SourceBalance, ToBalance: p.DestBalance}, nil
}

func (e *Engine) mark(ctx context.Context, p *PendingTransfer, phase TransferPhase) error {
	p.Phase = phase
	p.UpdatedAt = e.now()
	return e.pending.Put(ctx, *p)
}

// reserve debits the source account. marked reports whether a marker may
// exist in the pending log, debited whether the debit landed. An error
// wrapping errInDoubt means nobody can tell yet.
func (e *Engine) reserve(ctx context.Context, p *PendingTransfer) (marked, debited bool, err error) {
	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if err := e.backoff(ctx, attempt); err != nil {
			return marked, false, storageError(err)
		}

		from, to, err := e.readPair(ctx, p.FromAccountID, p.ToAccountID)
		if err != nil {
			return marked, false, err
		}
		if from.Balance.LessThan(p.Amount) {
			return marked, false, newError(KindInsufficientFunds, nil, "insufficient funds")
		}
		if err := e.checkRepresentable(to.Balance.Add(p.Amount)); err != nil {
			return marked, false, err
		}

		p.SourceVersion = from.Version
		p.SourceBalance = from.Balance.Sub(p.Amount)
		marked = true
		if err := e.mark(ctx, p, PhaseReserving); err != nil {
			return marked, false, storageError(err)
		}

		err = e.accounts.CompareAndSwap(ctx, from.ID, from.Version, p.SourceBalance, from.Version+1)
		if errors.Is(err, ErrVersionConflict) {
			casConflicts.WithLabelValues(string(ActionTransfer)).Inc()
			continue
		}
		if err != nil {
			return marked, false, e.legFailed(ctx, from.ID, from.Version, err)
		}

		if err := e.mark(ctx, p, PhaseReserved); err != nil {
			return marked, true, storageError(err)
		}
		return marked, true, nil
	}
	return marked, false, newError(KindContention, nil, "too much contention on account %s, retry later", p.FromAccountID)
}

// credit applies the destination leg. An error means the credit did not
// land, unless it wraps errInDoubt.
func (e *Engine) credit(ctx context.Context, p *PendingTransfer) error {
	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if err := e.backoff(ctx, attempt); err != nil {
			return storageError(err)
		}

		to, err := e.accounts.Get(ctx, p.ToAccountID)
		if err != nil {
			return storageError(err)
		}
		if to.Closed() {
			return errClosed(to.ID)
		}
		balance := to.Balance.Add(p.Amount)
		if err := e.checkRepresentable(balance); err != nil {
			return err
		}

		p.DestVersion = to.Version
		p.DestBalance = balance
		if err := e.mark(ctx, p, PhaseCrediting); err != nil {
			return storageError(err)
		}

		err = e.accounts.CompareAndSwap(ctx, to.ID, to.Version, balance, to.Version+1)
		if errors.Is(err, ErrVersionConflict) {
			casConflicts.WithLabelValues(string(ActionTransfer)).Inc()
			continue
		}
		if err != nil {
			return e.legFailed(ctx, to.ID, to.Version, err)
		}

		if err := e.mark(ctx, p, PhaseCredited); err != nil {
			// Both legs landed; completion removes the marker regardless.
			e.log.Warn("transfer marker not advanced to credited",
				zap.String("transfer_id", p.ID), zap.Error(err))
		}
		return nil
	}
	return newError(KindContention, nil, "too much contention on account %s, retry later", p.ToAccountID)
}

// errInDoubt marks a transfer leg whose write failed with a storage error
// and may still have been applied.
var errInDoubt = errors.New("transfer leg outcome unknown")

// legFailed classifies a failed leg write. The leg certainly did not land
// when the account version is unchanged; otherwise the marker, still in
// reserving or crediting, is left for the sweep to judge.
func (e *Engine) legFailed(ctx context.Context, accountID string, expectedVersion int64, cause error) error {
	le := storageError(cause)
	if !e.writeUnresolved(ctx, []AccountWrite{{AccountID: accountID, ExpectedVersion: expectedVersion}}) {
		return le
	}
	return newError(le.Kind, fmt.Errorf("%w: %w", errInDoubt, cause), "%s", le.Message)
}

// deferToRecovery leaves the marker in place. The sweep settles and audits
// the attempt under p.AuditID once the marker is stale.
func (e *Engine) deferToRecovery(p *PendingTransfer, cause error) error {
	e.log.Error("transfer outcome unknown, left for recovery",
		zap.String("transfer_id", p.ID),
		zap.String("phase", string(p.Phase)),
		zap.String("from_account_id", p.FromAccountID),
		zap.String("to_account_id", p.ToAccountID),
		zap.String("caller_id", p.CallerID),
		zap.Error(cause),
	)
	return newError(KindStorageUnavailable, cause, "transfer outcome unknown after a storage failure; pending recovery")
}

// complete appends both legs and the success audit, then drops the marker.
// If the legs cannot be written the marker stays so the sweep can roll the
// transfer forward.
func (e *Engine) complete(ctx context.Context, p *PendingTransfer) error {
	fctx, cancel := e.finalizeContext(ctx)
	defer cancel()

	req := p.request()
	out, in := e.transferLegs(req, p.OutTxID, p.InTxID, p.SourceBalance, p.DestBalance, p.CreatedAt)
	for _, tx := range []Transaction{out, in} {
		if _, err := e.txlog.Append(fctx, tx); err != nil {
			e.log.Error("transfer committed but its transactions are not recorded yet",
				zap.String("transfer_id", p.ID), zap.Error(err))
			return newError(KindStorageUnavailable, err, "transfer committed but its records are pending recovery")
		}
	}

	var result error
	rec := e.transferAudit(p.AuditID, req, OutcomeSuccess, e.transferDetail(p.Amount, p.SourceBalance, p.DestBalance))
	if err := e.audit.Append(fctx, rec); err != nil {
		e.queue(fctx, Discrepancy{
			Operation:  ActionTransfer,
			AccountIDs: []string{p.FromAccountID, p.ToAccountID},
			Audit:      []AuditRecord{rec},
			Reason:     "audit append failed after transfer commit",
		}, err)
		result = newError(KindAuditWriteFailed, err, "transfer committed but the audit record could not be written; queued for reconciliation")
	}

	e.dropMarker(fctx, p)
	if result == nil {
		e.publishTransfer(fctx, req, out, in, p.CreatedAt)
	}
	return result
}

// abort settles an attempt whose debit never landed.
func (e *Engine) abort(ctx context.Context, p *PendingTransfer, marked bool, cause error) error {
	err := e.rejectWithID(ctx, p.AuditID, ActionTransfer, p.FromAccountID, p.ToAccountID, p.CallerID, cause)
	if marked {
		fctx, cancel := e.finalizeContext(ctx)
		defer cancel()
		e.dropMarker(fctx, p)
	}
	return err
}

// rollback refunds the source after its debit landed and the credit did not.
// If the refund cannot be applied now the marker is left for the sweep.
func (e *Engine) rollback(ctx context.Context, p *PendingTransfer, cause error) error {
	fctx, cancel := e.finalizeContext(ctx)
	defer cancel()

	le := storageError(cause)
	p.Reason = le.Message
	if err := e.refund(fctx, p); err != nil {
		e.log.Error("transfer rollback deferred to recovery",
			zap.String("transfer_id", p.ID),
			zap.String("from_account_id", p.FromAccountID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return newError(KindStorageUnavailable, err, "transfer failed and its refund is pending recovery")
	}
	recoveryActions.WithLabelValues("rollback").Inc()
	err := e.rejectWithID(fctx, p.AuditID, ActionTransfer, p.FromAccountID, p.ToAccountID, p.CallerID, le)
	e.dropMarker(fctx, p)
	return err
}

// refund credits the amount back to the source. The marker records the
// version the refund expects before the write, and rolled_back after it.
func (e *Engine) refund(ctx context.Context, p *PendingTransfer) error {
	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if err := e.backoff(ctx, attempt); err != nil {
			return err
		}
		from, err := e.accounts.Get(ctx, p.FromAccountID)
		if err != nil {
			return err
		}
		p.RefundVersion = from.Version
		if err := e.mark(ctx, p, PhaseRollingBack); err != nil {
			return err
		}
		err = e.accounts.CompareAndSwap(ctx, from.ID, from.Version, from.Balance.Add(p.Amount), from.Version+1)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return err
		}
		if err := e.mark(ctx, p, PhaseRolledBack); err != nil {
			e.log.Warn("transfer marker not advanced to rolled_back",
				zap.String("transfer_id", p.ID), zap.Error(err))
		}
		return nil
	}
	return ErrVersionConflict
}

func (e *Engine) dropMarker(ctx context.Context, p *PendingTransfer) {
	if err := e.pending.Delete(ctx, p.ID); err != nil {
		e.log.Warn("transfer marker not removed",
			zap.String("transfer_id", p.ID),
			zap.String("phase", string(p.Phase)),
			zap.Error(err),
		)
	}
}

func (p PendingTransfer) request() TransferRequest {
	return TransferRequest{
		FromAccountID: p.FromAccountID,
		ToAccountID:   p.ToAccountID,
		Amount:        p.Amount,
		CallerID:      p.CallerID,
	}
}
