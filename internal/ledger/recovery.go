package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Sweeper settles two-phase transfer markers left behind by crashed or
// interrupted transfers. Markers younger than staleAfter are assumed to be
// owned by a live transfer and are left alone.
type Sweeper struct {
	engine     *Engine
	staleAfter time.Duration
	interval   time.Duration
	logger     *zap.Logger
	stopChan   chan struct{}
}

func NewSweeper(engine *Engine, staleAfter, interval time.Duration) *Sweeper {
	return &Sweeper{
		engine:     engine,
		staleAfter: staleAfter,
		interval:   interval,
		logger:     engine.log.Named("sweeper"),
		stopChan:   make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	if s.engine.pending == nil {
		return
	}
	s.logger.Info("starting recovery sweep", zap.Duration("interval", s.interval), zap.Duration("stale_after", s.staleAfter))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("recovery sweep failed", zap.Error(err))
			}
		case <-s.stopChan:
			s.logger.Info("stopping recovery sweep")
			return
		case <-ctx.Done():
			s.logger.Info("context cancelled, stopping recovery sweep")
			return
		}
	}
}

func (s *Sweeper) Stop() {
	close(s.stopChan)
}

// RunOnce settles every stale marker and returns how many it resolved.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	if s.engine.pending == nil {
		return 0, nil
	}
	markers, err := s.engine.pending.ListStale(ctx, s.engine.now().Add(-s.staleAfter))
	if err != nil {
		return 0, fmt.Errorf("list stale transfers: %w", err)
	}

	resolved := 0
	for _, p := range markers {
		if err := s.engine.recoverTransfer(ctx, p); err != nil {
			s.logger.Error("transfer recovery failed",
				zap.String("transfer_id", p.ID),
				zap.String("phase", string(p.Phase)),
				zap.Error(err),
			)
			continue
		}
		resolved++
	}
	return resolved, nil
}

// recoverTransfer decides from the marker phase and the current account
// versions whether the transfer rolls forward, rolls back or needs a human.
func (e *Engine) recoverTransfer(ctx context.Context, p PendingTransfer) error {
	switch p.Phase {
	case PhaseReserving:
		from, err := e.accounts.Get(ctx, p.FromAccountID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if err != nil || from.Version == p.SourceVersion {
			recoveryActions.WithLabelValues("abandon").Inc()
			e.abort(ctx, &p, true, newError(KindStorageUnavailable, nil, "transfer interrupted before the debit"))
			return nil
		}
		return e.ambiguous(ctx, p, "source account changed while the debit was in flight")

	case PhaseReserved:
		return e.recoverRollback(ctx, p)

	case PhaseCrediting:
		to, err := e.accounts.Get(ctx, p.ToAccountID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if err != nil || to.Version == p.DestVersion {
			return e.recoverRollback(ctx, p)
		}
		return e.ambiguous(ctx, p, "destination account changed while the credit was in flight")

	case PhaseCredited:
		recoveryActions.WithLabelValues("roll_forward").Inc()
		err := e.complete(ctx, &p)
		if KindOf(err) == KindStorageUnavailable {
			return err
		}
		return nil

	case PhaseRollingBack:
		from, err := e.accounts.Get(ctx, p.FromAccountID)
		if err != nil {
			return err
		}
		if from.Version == p.RefundVersion {
			return e.recoverRollback(ctx, p)
		}
		return e.ambiguous(ctx, p, "source account changed while the refund was in flight")

	case PhaseRolledBack:
		recoveryActions.WithLabelValues("rollback").Inc()
		e.rejectWithID(ctx, p.AuditID, ActionTransfer, p.FromAccountID, p.ToAccountID, p.CallerID,
			newError(KindStorageUnavailable, nil, "transfer rolled back: %s", p.reason()))
		e.dropMarker(ctx, &p)
		return nil
	}
	return e.ambiguous(ctx, p, fmt.Sprintf("unknown transfer phase %q", p.Phase))
}

func (e *Engine) recoverRollback(ctx context.Context, p PendingTransfer) error {
	if p.Reason == "" {
		p.Reason = "transfer interrupted after the debit"
	}
	if err := e.refund(ctx, &p); err != nil {
		return fmt.Errorf("refund transfer %s: %w", p.ID, err)
	}
	recoveryActions.WithLabelValues("rollback").Inc()
	e.rejectWithID(ctx, p.AuditID, ActionTransfer, p.FromAccountID, p.ToAccountID, p.CallerID,
		newError(KindStorageUnavailable, nil, "transfer rolled back: %s", p.Reason))
	e.dropMarker(ctx, &p)
	return nil
}

// ambiguous hands a marker whose outcome cannot be derived to reconciliation
// and removes it, so the sweep does not act on it again.
func (e *Engine) ambiguous(ctx context.Context, p PendingTransfer, reason string) error {
	recoveryActions.WithLabelValues("manual_review").Inc()
	rec := e.transferAudit(p.AuditID, p.request(), OutcomeError,
		fmt.Sprintf("transfer outcome undetermined in phase %s: %s", p.Phase, reason))
	e.queue(ctx, Discrepancy{
		Operation:    ActionTransfer,
		AccountIDs:   []string{p.FromAccountID, p.ToAccountID},
		Audit:        []AuditRecord{rec},
		Reason:       fmt.Sprintf("transfer %s: %s", p.ID, reason),
		ManualReview: true,
	}, nil)
	e.dropMarker(ctx, &p)
	return nil
}

func (p PendingTransfer) reason() string {
	if p.Reason == "" {
		return "interrupted"
	}
	return p.Reason
}
