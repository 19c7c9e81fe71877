package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/example/courtboard/internal/application"
	"github.com/example/courtboard/internal/auth"
	"github.com/example/courtboard/internal/config"
	"github.com/example/courtboard/internal/guard"
	httptransport "github.com/example/courtboard/internal/http"
	"github.com/example/courtboard/internal/persistence"
	"github.com/example/courtboard/internal/persistence/memory"
	"github.com/example/courtboard/internal/persistence/redisstore"
	"github.com/example/courtboard/internal/persistence/sqlstore"
	"github.com/example/courtboard/internal/queue"
	"github.com/example/courtboard/internal/recurrence"
	"github.com/example/courtboard/internal/tracing"
)

const serviceVersion = "1.0.0"

func main() {
	if len(os.Args) == 3 && os.Args[1] == "hash-passcode" {
		hash, err := auth.HashPasscode(os.Args[2], auth.DefaultArgon2idParams)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if err := auth.ValidateHash(cfg.AdminPasscodeHash); err != nil {
		logger.Error("invalid admin passcode hash", "error", err)
		os.Exit(1)
	}

	if cfg.TraceFile != "" {
		shutdownTracing, err := tracing.Init("courtboard", serviceVersion, cfg.TraceFile)
		if err != nil {
			logger.Error("failed to initialise tracing", "error", err)
			os.Exit(1)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(flushCtx); err != nil {
				logger.Error("failed to flush traces", "error", err)
			}
		}()
	}

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "store", cfg.Store, "error", err)
		os.Exit(1)
	}
	defer be.close(logger)

	settings, err := buildSettings(cfg)
	if err != nil {
		logger.Error("invalid settings", "error", err)
		os.Exit(1)
	}

	catalog, err := recurrence.LoadCatalog(cfg.TemplatesFile)
	if err != nil {
		logger.Error("failed to load block catalog", "path", cfg.TemplatesFile, "error", err)
		os.Exit(1)
	}

	events, closeEvents := buildPublisher(ctx, cfg, be, logger)
	defer closeEvents()

	now := time.Now
	repo := persistence.NewSnapshotRepository(be.kv, cfg.CourtCount)
	writeGuard := guard.New(repo, be.bus, guard.Options{StrictTick: cfg.StrictTick, Now: now, Logger: logger})

	allocation := application.NewAllocationService(writeGuard, events, settings, now, nil, logger)
	engine := recurrence.NewEngine(cfg.Location, now, nil, logger)
	blocks := application.NewBlockService(writeGuard, engine, catalog, cfg.CourtCount, now, logger)
	authenticator := auth.NewAuthenticator(cfg.AdminPasscodeHash, cfg.TokenSecret, cfg.TokenTTL, now)

	routes := httptransport.RouterConfig{
		Board:      httptransport.NewBoardHandler(allocation, now, settings.AvgGameMinutes, logger),
		Courts:     httptransport.NewCourtHandler(allocation, logger),
		Waitlist:   httptransport.NewWaitlistHandler(allocation, logger),
		Blocks:     httptransport.NewBlockHandler(blocks, logger),
		Auth:       httptransport.NewAuthHandler(authenticator, logger),
		Stream:     httptransport.NewStreamHandler(allocation, be.bus, logger),
		Admin:      httptransport.RequireAdmin(authenticator, logger),
		Middleware: []echo.MiddlewareFunc{httptransport.RequestLogger(logger)},
		Logger:     logger,
	}
	if be.history != nil {
		routes.History = httptransport.NewHistoryHandler(be.history, logger)
	}
	router := httptransport.NewRouter(routes)

	if cfg.AutoClearInterval > 0 {
		go runMaintenance(ctx, cfg.AutoClearInterval, allocation, blocks, logger)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("court board listening",
		"addr", server.Addr,
		"store", cfg.Store,
		"courts", cfg.CourtCount,
		"policy", settings.Policy.Name(),
		"strict_tick", cfg.StrictTick,
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

// backend is the storage selected by configuration. history is set only for
// SQL stores.
type backend struct {
	kv      persistence.KVStore
	bus     persistence.Bus
	history *sqlstore.Store
	closers []func() error
}

func (b *backend) close(logger *slog.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backend, error) {
	switch cfg.Store {
	case config.StoreMemory, "":
		return &backend{kv: memory.NewStore(), bus: memory.NewBus()}, nil
	case config.StoreSQLite, config.StoreMySQL:
		dialect, dsn := sqlstore.DialectSQLite, cfg.SQLiteDSN
		if cfg.Store == config.StoreMySQL {
			dialect, dsn = sqlstore.DialectMySQL, cfg.MySQLDSN
		}
		store, err := sqlstore.Open(ctx, dialect, dsn)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx, logger); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		return &backend{kv: store, bus: memory.NewBus(), history: store, closers: []func() error{store.Close}}, nil
	case config.StoreRedis:
		store, err := redisstore.Open(ctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return &backend{kv: store, bus: store, closers: []func() error{store.Close}}, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func buildSettings(cfg config.Config) (application.Settings, error) {
	policy, err := application.ParsePriorityPolicy(cfg.PriorityPolicy)
	if err != nil {
		return application.Settings{}, err
	}
	return application.Settings{
		MaxGroupSize:     cfg.MaxGroupSize,
		SinglesMinutes:   cfg.SinglesMinutes,
		DoublesMinutes:   cfg.DoublesMinutes,
		MaxPlayMinutes:   cfg.MaxPlayMinutes,
		AvgGameMinutes:   cfg.AvgGameMinutes,
		AutoClearMinutes: cfg.AutoClearMinutes,
		Policy:           policy,
	}, nil
}

// buildPublisher routes archived sessions. With a broker URL events go
// through RabbitMQ and, when a SQL store is open, a consumer in this process
// records them. Without one a SQL store records them directly.
func buildPublisher(ctx context.Context, cfg config.Config, be *backend, logger *slog.Logger) (queue.Publisher, func()) {
	if cfg.AMQPURL == "" {
		if be.history != nil {
			return queue.DirectPublisher{Recorder: be.history}, func() {}
		}
		return queue.NopPublisher{}, func() {}
	}

	publisher := queue.NewRabbitPublisher(cfg.AMQPURL, logger)
	if be.history != nil {
		consumer := queue.NewConsumer(cfg.AMQPURL, be.history, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("history consumer stopped", "error", err)
			}
		}()
	}
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			logger.Error("failed to close event publisher", "error", err)
		}
	}
}

type maintainer interface {
	AutoClearOverdue(ctx context.Context) (application.AutoClearResult, error)
}

type blockPruner interface {
	PruneExpired(ctx context.Context) (int, error)
}

// runMaintenance clears overdue sessions and prunes ended blocks every
// interval until ctx is done.
func runMaintenance(ctx context.Context, interval time.Duration, courts maintainer, blocks blockPruner, logger *slog.Logger) {
	logger = logger.With("component", "maintenance")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			maintain(ctx, courts, blocks, logger)
		}
	}
}

func maintain(ctx context.Context, courts maintainer, blocks blockPruner, logger *slog.Logger) {
	result, err := courts.AutoClearOverdue(ctx)
	if err != nil {
		logger.WarnContext(ctx, "auto-clear failed", "error", err, "error_kind", application.ErrorKind(err))
	} else if len(result.Courts) > 0 {
		logger.InfoContext(ctx, "overdue sessions cleared", "courts", result.Courts)
	}
	if _, err := blocks.PruneExpired(ctx); err != nil {
		logger.WarnContext(ctx, "block pruning failed", "error", err)
	}
}
