package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Reconciler drains the reconciliation queue by appending the records each
// discrepancy carries. Appends are idempotent, so replaying an entry that
// partly landed before is safe.
type Reconciler struct {
	engine   *Engine
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
}

func NewReconciler(engine *Engine, interval time.Duration) *Reconciler {
	return &Reconciler{
		engine:   engine,
		interval: interval,
		logger:   engine.log.Named("reconciler"),
		stopChan: make(chan struct{}),
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info("starting reconciler", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("reconciliation pass failed", zap.Error(err))
			}
		case <-r.stopChan:
			r.logger.Info("stopping reconciler")
			return
		case <-ctx.Done():
			r.logger.Info("context cancelled, stopping reconciler")
			return
		}
	}
}

func (r *Reconciler) Stop() {
	close(r.stopChan)
}

// RunOnce processes the entries queued when the pass starts. Entries that
// still fail go back to the tail with Attempts incremented.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	queue := r.engine.recon
	n, err := queue.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconciliation queue length: %w", err)
	}

	resolved := 0
	for i := int64(0); i < n; i++ {
		d, ok, err := queue.Pop(ctx)
		if err != nil {
			return resolved, fmt.Errorf("pop discrepancy: %w", err)
		}
		if !ok {
			break
		}

		if err := r.replay(ctx, d); err != nil {
			d.Attempts++
			r.logger.Warn("discrepancy still unresolved",
				zap.String("discrepancy_id", d.ID),
				zap.Int("attempts", d.Attempts),
				zap.Error(err),
			)
			if perr := queue.Push(ctx, d); perr != nil {
				r.logger.Error("discrepancy dropped", zap.Any("discrepancy", d), zap.Error(perr))
			}
			continue
		}

		resolved++
		recoveryActions.WithLabelValues("reconciled").Inc()
		if d.ManualReview {
			r.logger.Error("discrepancy needs manual review",
				zap.String("discrepancy_id", d.ID),
				zap.Strings("account_ids", d.AccountIDs),
				zap.String("reason", d.Reason),
			)
			continue
		}
		r.logger.Info("discrepancy reconciled",
			zap.String("discrepancy_id", d.ID),
			zap.String("operation", string(d.Operation)),
		)
	}
	return resolved, nil
}

func (r *Reconciler) replay(ctx context.Context, d Discrepancy) error {
	for _, tx := range d.Transactions {
		if _, err := r.engine.txlog.Append(ctx, tx); err != nil {
			return fmt.Errorf("append transaction %s: %w", tx.ID, err)
		}
	}
	for _, rec := range d.Audit {
		if err := r.engine.audit.Append(ctx, rec); err != nil {
			return fmt.Errorf("append audit %s: %w", rec.ID, err)
		}
	}
	return nil
}
