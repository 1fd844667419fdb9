package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"facegate/internal/api"
	"facegate/internal/cache"
	"facegate/internal/config"
	"facegate/internal/events"
	"facegate/internal/fanout"
	"facegate/internal/ledger"
	"facegate/internal/notify"
	"facegate/internal/roster"
	"facegate/internal/sheets"
	"facegate/internal/store"
	"facegate/internal/terminal"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	db, err := store.NewStore(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open db", zap.Error(err))
	}

	backend := newCacheBackend(cfg, logger)
	identity := cache.NewIdentityCache(backend, logger)
	dedup := cache.NewDedupGuard(backend, logger)

	var sender notify.Sender = notify.Noop{}
	if cfg.BotToken != "" {
		sender = notify.NewTelegram(cfg.BotToken)
	} else {
		logger.Warn("BOT_TOKEN not set, notifications disabled")
	}

	ctx := context.Background()

	var reconciler *roster.Reconciler
	var ledgerSheet ledger.Sheet
	if cfg.SpreadsheetID != "" {
		client, err := sheets.NewClient(ctx, cfg.CredsFile, logger)
		if err != nil {
			logger.Fatal("failed to init sheets client", zap.Error(err))
		}
		ledgerSheet = client
		rosterSheet := sheets.NewRosterSheet(client, cfg.SpreadsheetID, cfg.WorksheetNames, cfg.Roster, logger)
		reconciler = roster.NewReconciler(db, rosterSheet, rosterSheet, logger)
	} else {
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, ledger and roster sync disabled")
		ledgerSheet = noopSheet{}
	}

	writer := ledger.NewWriter(ledgerSheet, sender, cfg.Timezone(), logger)
	resolver := events.NewResolver(identity, dedup, db, writer, logger)

	engine := fanout.NewEngine(func(addr, username, password string) fanout.Terminal {
		return terminal.NewClient(addr, username, password, logger)
	}, logger)

	r := gin.Default()
	api.RegisterRoutes(r, api.Deps{
		Store:      db,
		Resolver:   resolver,
		Reconciler: reconciler,
		Fanout:     engine,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server exit", zap.Error(err))
		}
	}()
	logger.Info("terminal event server listening", zap.Int("port", cfg.ServerPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}
}

// newCacheBackend connects to redis; when the address is unreachable the
// process still serves, it just resolves everything against the store. The
// redis client reconnects on its own, so a late-starting redis is picked up.
func newCacheBackend(cfg *config.Config, logger *zap.Logger) cache.Backend {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr(),
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, identity cache degraded", zap.String("addr", cfg.RedisAddr()), zap.Error(err))
	} else {
		logger.Info("redis connected", zap.String("addr", cfg.RedisAddr()))
	}
	return cache.NewRedisBackend(client)
}

// noopSheet stands in when no spreadsheet is configured; accepted events are
// still logged and notified, they just have nowhere to be written.
type noopSheet struct{}

func (noopSheet) EnsureWorksheet(context.Context, string, string, []any) error { return nil }
func (noopSheet) AppendRow(context.Context, string, string, []any) error       { return nil }
