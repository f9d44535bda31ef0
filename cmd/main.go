package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JhonesBR/go-ledger/internal/api"
	"github.com/JhonesBR/go-ledger/internal/config"
	"github.com/JhonesBR/go-ledger/internal/db"
	"github.com/JhonesBR/go-ledger/internal/db/sqlite"
	"github.com/JhonesBR/go-ledger/internal/events"
	"github.com/JhonesBR/go-ledger/internal/ledger"
	"github.com/JhonesBR/go-ledger/internal/ledger/memory"
	"github.com/JhonesBR/go-ledger/internal/logger"
	"github.com/JhonesBR/go-ledger/internal/redisstore"
)

func main() {
	// A missing .env is fine, the environment may already be populated
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	l, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatal(err)
	}
	defer l.Sync()

	if err := run(cfg, l); err != nil {
		l.Fatal("ledger stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, l *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb redis.UniversalClient
	if cfg.Redis.Enabled() {
		rdb = redisstore.NewClient(cfg.Redis.Addrs, cfg.Redis.Password, cfg.Redis.UseCluster)
		defer rdb.Close()
	}

	stores, closeStores, err := openStores(ctx, cfg, rdb, l)
	if err != nil {
		return err
	}
	defer closeStores()

	opts := []ledger.Option{ledger.WithLogger(l)}
	var notifiers events.Fanout
	if cfg.Kafka.Enabled() {
		publisher := events.NewPublisher(events.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, l), l)
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	}
	if rdb != nil {
		notifiers = append(notifiers, redisstore.NewNotifier(rdb, cfg.Redis.Namespace+":events"))
	}
	if len(notifiers) > 0 {
		opts = append(opts, ledger.WithNotifier(notifiers))
	}

	engine, err := ledger.New(stores, cfg.Ledger.Engine(), opts...)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	sweeper := ledger.NewSweeper(engine, cfg.Ledger.PendingStaleAfter, cfg.Ledger.SweepInterval)
	go sweeper.Start(ctx)
	defer sweeper.Stop()

	reconciler := ledger.NewReconciler(engine, cfg.Ledger.ReconcileInterval)
	go reconciler.Start(ctx)
	defer reconciler.Stop()

	// Initialize a new Fiber app
	app := fiber.New()
	api.InitializeRoutes(app, engine, l)

	errCh := make(chan error, 1)
	go func() {
		l.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", string(cfg.Store)), zap.Bool("two_phase", engine.TwoPhase()))
		errCh <- app.Listen(cfg.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	l.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}

// openStores builds the configured storage. Pending markers and the
// reconciliation queue live in Redis when it is configured.
func openStores(ctx context.Context, cfg *config.Config, rdb redis.UniversalClient, l *zap.Logger) (ledger.Stores, func(), error) {
	var (
		stores  ledger.Stores
		closeFn = func() {}
	)

	switch cfg.Store {
	case config.DriverPostgres:
		pool, err := db.NewConnection(ctx, cfg.Database.URL, l)
		if err != nil {
			return stores, closeFn, err
		}
		if err := db.Migrate(ctx, pool, cfg.Ledger.Scale); err != nil {
			pool.Close()
			return stores, closeFn, err
		}
		pg := db.New(pool)
		stores = ledger.Stores{
			Accounts:       pg.Accounts,
			Transactions:   pg.Transactions,
			Audit:          pg.Audit,
			Pending:        memory.NewPending(),
			Reconciliation: pg.Queue,
		}
		closeFn = pool.Close

	case config.DriverSQLite:
		database, err := sqlite.NewDatabase(cfg.Database.SQLitePath)
		if err != nil {
			return stores, closeFn, err
		}
		stores = ledger.Stores{
			Accounts:       database.Accounts(),
			Transactions:   database.Transactions(),
			Audit:          database.Audit(),
			Pending:        memory.NewPending(),
			Reconciliation: memory.NewQueue(),
		}
		closeFn = func() {
			if err := database.Close(); err != nil {
				l.Warn("failed to close sqlite database", zap.Error(err))
			}
		}

	case config.DriverMemory:
		stores = memory.New().Stores()

	default:
		return stores, closeFn, errors.New("unknown store driver " + string(cfg.Store))
	}

	if rdb != nil {
		stores.Pending = redisstore.NewPending(rdb, cfg.Redis.Namespace)
		stores.Reconciliation = redisstore.NewQueue(rdb, cfg.Redis.Namespace)
	}
	return stores, closeFn, nil
}
