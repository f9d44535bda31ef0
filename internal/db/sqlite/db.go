// Package sqlite stores the ledger in an embedded SQLite file through gorm.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JhonesBR/go-ledger/internal/ledger"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; a single connection turns lock errors into waits.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Account{}, &Transaction{}, &AuditRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Accounts, Transactions and Audit expose the database as the three ledger
// stores; they share one handle so CommitBatch can span all of them.
func (d *Database) Accounts() *Accounts         { return &Accounts{db: d.db} }
func (d *Database) Transactions() *Transactions { return &Transactions{db: d.db} }
func (d *Database) Audit() *Audit               { return &Audit{db: d.db} }

type Accounts struct {
	db *gorm.DB
}

func (a *Accounts) Create(ctx context.Context, acc ledger.Account) error {
	row := Account{
		ID:        acc.ID,
		OwnerID:   acc.OwnerID,
		Type:      string(acc.Type),
		Balance:   acc.Balance,
		Version:   acc.Version,
		CreatedAt: acc.CreatedAt.UTC(),
		UpdatedAt: acc.UpdatedAt.UTC(),
		ClosedAt:  utcPtr(acc.ClosedAt),
	}
	err := a.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ledger.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (a *Accounts) Get(ctx context.Context, accountID string) (ledger.Account, error) {
	var row Account
	err := a.db.WithContext(ctx).First(&row, "id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Account{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("failed to load account: %w", err)
	}
	return row.toLedger(), nil
}

// ListByOwner returns the owner's accounts, oldest first.
func (a *Accounts) ListByOwner(ctx context.Context, ownerID string) ([]ledger.Account, error) {
	var rows []Account
	err := a.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	out := make([]ledger.Account, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toLedger())
	}
	return out, nil
}

func (a *Accounts) Close(ctx context.Context, accountID string, expectedVersion, newVersion int64, closedAt time.Time) error {
	db := a.db.WithContext(ctx)
	res := db.Model(&Account{}).
		Where("id = ? AND version = ?", accountID, expectedVersion).
		Updates(map[string]any{
			"closed_at":  closedAt.UTC(),
			"version":    newVersion,
			"updated_at": closedAt.UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to close account %s: %w", accountID, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return missingOrConflict(db, accountID)
}

func (a *Accounts) CompareAndSwap(ctx context.Context, accountID string, expectedVersion int64, newBalance decimal.Decimal, newVersion int64) error {
	return compareAndSwap(a.db.WithContext(ctx), accountID, expectedVersion, newBalance, newVersion)
}

func (a *Accounts) CommitBatch(ctx context.Context, b ledger.Batch) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, w := range b.Accounts {
			if err := compareAndSwap(tx, w.AccountID, w.ExpectedVersion, w.NewBalance, w.NewVersion); err != nil {
				return err
			}
		}
		for _, t := range b.Transactions {
			if err := appendTransaction(tx, t); err != nil {
				return err
			}
		}
		for _, rec := range b.Audit {
			if err := appendAudit(tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func compareAndSwap(db *gorm.DB, accountID string, expectedVersion int64, newBalance decimal.Decimal, newVersion int64) error {
	res := db.Model(&Account{}).
		Where("id = ? AND version = ?", accountID, expectedVersion).
		Updates(map[string]any{
			"balance":    newBalance,
			"version":    newVersion,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update account %s: %w", accountID, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return missingOrConflict(db, accountID)
}

func missingOrConflict(db *gorm.DB, accountID string) error {
	var n int64
	if err := db.Model(&Account{}).Where("id = ?", accountID).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to check account %s: %w", accountID, err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return ledger.ErrVersionConflict
}

type Transactions struct {
	db *gorm.DB
}

func (t *Transactions) Append(ctx context.Context, tx ledger.Transaction) (string, error) {
	if err := appendTransaction(t.db.WithContext(ctx), tx); err != nil {
		return "", err
	}
	return tx.ID, nil
}

func appendTransaction(db *gorm.DB, tx ledger.Transaction) error {
	row := transactionRow(tx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

// ListByAccount returns one page of the account's history, newest first. A
// limit of zero or less returns everything from offset on.
func (t *Transactions) ListByAccount(ctx context.Context, accountID string, offset, limit int) ([]ledger.Transaction, error) {
	q := t.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").Order("id DESC")
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []Transaction
	err := q.Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	out := make([]ledger.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toLedger())
	}
	return out, nil
}

func (t *Transactions) CountByAccount(ctx context.Context, accountID string) (int, error) {
	var n int64
	if err := t.db.WithContext(ctx).Model(&Transaction{}).Where("account_id = ?", accountID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return int(n), nil
}

type Audit struct {
	db *gorm.DB
}

func (a *Audit) Append(ctx context.Context, rec ledger.AuditRecord) error {
	return appendAudit(a.db.WithContext(ctx), rec)
}

func appendAudit(db *gorm.DB, rec ledger.AuditRecord) error {
	row := auditRow(rec)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save audit record: %w", err)
	}
	return nil
}

// ListByEntity returns the audit records naming accountID on either side,
// oldest first.
func (a *Audit) ListByEntity(ctx context.Context, accountID string) ([]ledger.AuditRecord, error) {
	var rows []AuditRecord
	err := a.db.WithContext(ctx).
		Where("entity_id = ? OR related_entity_id = ?", accountID, accountID).
		Order("created_at").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	out := make([]ledger.AuditRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toLedger())
	}
	return out, nil
}
