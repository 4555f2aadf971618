/*
main.go - Application entry point

PURPOSE:
  Starts the leave ledger HTTP server. Loads configuration, builds the
  logger, opens the configured store, wires the engine, metrics and router,
  and shuts down gracefully.

STARTUP SEQUENCE:
  1. Parse flags and load YAML configuration
  2. Build the zap logger
  3. Open the store (sqlite or postgres)
  4. Create engine, metrics collector and API handler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config        Config file (default: CONFIG_PATH env, then config/local.yaml)
  -issue-token   Print a bearer token for the given username and exit
  -roles         Comma-separated roles for -issue-token (default: EMPLOYEE)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests (server.shutdown_timeout, default 30s)
  3. Close the store
  4. Exit

EXAMPLES:
  # Run with the local sqlite config
  ./server

  # Get a manager token for local testing
  ./server -issue-token=maria -roles=MANAGER,EMPLOYEE

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration schema
  - cmd/migrate: Postgres schema migrations
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/api"
	"github.com/warp/leave-ledger/auth"
	"github.com/warp/leave-ledger/config"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/metrics"
	"github.com/warp/leave-ledger/store/postgres"
	"github.com/warp/leave-ledger/store/sqlite"
)

// backend is what the server needs from a store.
type backend interface {
	leave.TxStore
	leave.Directory
	api.Pinger
}

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to CONFIG_PATH env or "+config.DefaultPath+")")
	issueFor := flag.String("issue-token", "", "print a bearer token for this username and exit")
	roles := flag.String("roles", string(auth.RoleEmployee), "comma-separated roles for -issue-token")
	flag.Parse()

	cfg, err := config.Load(config.EffectivePath(*configPath))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if *issueFor != "" {
		token, err := issueToken(cfg.Auth, *issueFor, *roles)
		if err != nil {
			log.Fatalf("failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("store opened", zap.String("driver", cfg.Database.Driver))

	collector := metrics.New()
	engine := leave.NewEngine(store,
		leave.WithLogger(logger.Named("leave.engine")),
		leave.WithRecorder(collector),
	)
	handler := api.NewHandler(engine, store, store, logger.Named("api"))
	router := api.NewRouter(handler, api.RouterConfig{
		Verifier:       auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer),
		Metrics:        collector,
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
	})

	server := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Server.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (backend, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return postgres.New(pool), pool.Close, nil
	default:
		store, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store, func() { store.Close() }, nil
	}
}

func issueToken(cfg config.AuthConfig, username, rawRoles string) (string, error) {
	var roles []auth.Role
	for _, r := range strings.Split(rawRoles, ",") {
		if r = strings.ToUpper(strings.TrimSpace(r)); r != "" {
			roles = append(roles, auth.Role(r))
		}
	}
	return auth.NewIssuer(cfg.Secret, cfg.Issuer, cfg.TokenTTL).Issue(username, roles...)
}
