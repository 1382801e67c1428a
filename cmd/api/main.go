package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Auchit011/Vistagram-Application/internal/config"
	"github.com/Auchit011/Vistagram-Application/internal/db"
	"github.com/Auchit011/Vistagram-Application/internal/logging"
	"github.com/Auchit011/Vistagram-Application/internal/server"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	migrate         func(context.Context, db.Querier) error
	connectRedis    func(config.Config) *redis.Client
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		connectPostgres: db.ConnectPostgres,
		migrate:         db.Migrate,
		connectRedis:    db.ConnectRedis,
		notify:          signal.Notify,
		run:             Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	var pg *pgxpool.Pool
	if !cfg.UseMemoryStore() {
		var err error
		pg, err = deps.connectPostgres(cfg)
		if err != nil {
			logging.Error().Err(err).Msg("postgres connection failed")
		}
	}
	if pg != nil && cfg.AutoMigrate {
		if err := deps.migrate(context.Background(), pg); err != nil {
			logging.Error().Err(err).Msg("schema migration failed")
		}
	}

	logStartup(cfg, pg)
	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, pg, rdb, signals, nil); err != nil {
		logging.Error().Err(err).Msg("server exited with error")
	}
}

// logStartup records which store the server will actually use. Without a pool the server
// keeps posts and albums in memory even when postgres was asked for.
func logStartup(cfg config.Config, pg *pgxpool.Pool) {
	switch {
	case cfg.UseMemoryStore():
		logging.Info().Str("store", config.StoreMemory).Str("lock", cfg.LockDriver).Msg("starting with in-memory store")
	case pg == nil:
		logging.Warn().Str("store", config.StoreMemory).Str("lock", cfg.LockDriver).Msg("postgres unavailable, falling back to in-memory store")
	default:
		logging.Info().Str("store", config.StorePostgres).Str("lock", cfg.LockDriver).Msg("starting with postgres store")
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and waits for termination signals.
func Run(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc) error {
	srv := server.NewServer(cfg, pg, rdb)
	defer func() { _ = srv.Close() }()

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil {
		return err
	}
	logging.Info().Msg("server stopped")
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	return nil
}
