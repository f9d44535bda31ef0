package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// NewConnection opens a pool for databaseURL, retrying with exponential
// backoff while the server comes up.
func NewConnection(ctx context.Context, databaseURL string, log *zap.Logger) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	config.MaxConns = 50
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 5 * time.Minute

	const maxRetries = 5
	delay := 2 * time.Second
	for i := 1; i <= maxRetries; i++ {
		pool, perr := connect(ctx, config)
		if perr == nil {
			log.Info("connected to database", zap.Int("attempt", i))
			return pool, nil
		}
		err = perr
		log.Warn("database connection failed", zap.Int("attempt", i), zap.Error(err))

		if i < maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return nil, fmt.Errorf("connect to db after %d attempts: %w", maxRetries, err)
}

func connect(ctx context.Context, config *pgxpool.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Precision is the total number of digits every amount column holds. The
// engine's MaxAmount must not exceed what NUMERIC(Precision, scale) stores.
const Precision = 20

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS accounts (
	id           TEXT PRIMARY KEY,
	owner_id     TEXT NOT NULL,
	account_type TEXT NOT NULL,
	balance      NUMERIC(%[1]d,%[2]d) NOT NULL,
	version      BIGINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	closed_at    TIMESTAMPTZ,
	CHECK (account_type = 'loan' OR balance >= 0)
);
ALTER TABLE accounts ADD COLUMN IF NOT EXISTS closed_at TIMESTAMPTZ;
CREATE INDEX IF NOT EXISTS accounts_owner_idx ON accounts (owner_id, created_at, id);

CREATE TABLE IF NOT EXISTS transactions (
	id                TEXT PRIMARY KEY,
	account_id        TEXT NOT NULL REFERENCES accounts(id),
	counterparty_id   TEXT,
	kind              TEXT NOT NULL,
	amount            NUMERIC(%[1]d,%[2]d) NOT NULL,
	resulting_balance NUMERIC(%[1]d,%[2]d) NOT NULL,
	caller_id         TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transactions_account_created_idx ON transactions (account_id, created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS audit_log (
	id                TEXT PRIMARY KEY,
	action            TEXT NOT NULL,
	outcome           TEXT NOT NULL,
	collection        TEXT NOT NULL,
	entity_id         TEXT NOT NULL,
	related_entity_id TEXT NOT NULL DEFAULT '',
	caller_id         TEXT NOT NULL,
	detail            TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_log_entity_idx ON audit_log (entity_id);
CREATE INDEX IF NOT EXISTS audit_log_related_idx ON audit_log (related_entity_id);

CREATE TABLE IF NOT EXISTS reconciliation_queue (
	seq        BIGSERIAL PRIMARY KEY,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Schema renders the ledger DDL with amount columns at the given scale.
func Schema(scale int32) string {
	return fmt.Sprintf(schemaTemplate, Precision, scale)
}

// amountColumns must all carry the ledger scale, or PostgreSQL would round
// amounts the engine accepted.
var amountColumns = [][2]string{
	{"accounts", "balance"},
	{"transactions", "amount"},
	{"transactions", "resulting_balance"},
}

// Migrate creates the ledger tables if they do not exist and checks that
// existing amount columns match scale.
func Migrate(ctx context.Context, pool *pgxpool.Pool, scale int32) error {
	if _, err := pool.Exec(ctx, Schema(scale)); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	for _, col := range amountColumns {
		var got int32
		err := pool.QueryRow(ctx,
			`SELECT numeric_scale::int FROM information_schema.columns
			 WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2`,
			col[0], col[1],
		).Scan(&got)
		if err != nil {
			return fmt.Errorf("inspect %s.%s: %w", col[0], col[1], err)
		}
		if got != scale {
			return fmt.Errorf("%s.%s has scale %d but the ledger runs at scale %d", col[0], col[1], got, scale)
		}
	}
	return nil
}
