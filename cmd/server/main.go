/*
main.go - Application entry point

PURPOSE:
  Starts the loan ledger API: loads configuration, opens the store,
  wires the ledger, application workflow and service, then serves HTTP
  until interrupted.

STARTUP SEQUENCE:
  1. Parse command-line flags, load an optional env file
  2. Load and validate configuration
  3. Open the store (SQLite or MySQL) and migrate the schema
  4. Connect optional Redis (idempotency) and RabbitMQ (events)
  5. Build ledger, workflow and service
  6. Start the loan sweeper and the HTTP server

COMMAND-LINE FLAGS:
  -config       Directory searched for .env (default: .)
  -env-file     Extra env file loaded into the process first (optional)
  -issue-token  Print an admin token for the given subject and exit
  -token-ttl    Lifetime of an issued token (default: 24h)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper
  4. Close the publisher, Redis and the store

EXAMPLES:
  # Run against a local SQLite file
  SQLITE_PATH=./data/ledger.db JWT_SECRET=change-me-0123456789 ./server

  # Run against MySQL with events
  DB_DRIVER=mysql MYSQL_DSN="u:p@tcp(db:3306)/ledger?parseTime=true" \
  RABBITMQ_URL=amqp://guest:guest@mq:5672/ ./server

  # Mint a token for an operator
  ./server -issue-token ops@example.com

SEE ALSO:
  - config/config.go: Environment variables and defaults
  - api/server.go: Router configuration
  - service/sweeper.go: Background loan sweep
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/warp/loan-ledger/api"
	"github.com/warp/loan-ledger/application"
	"github.com/warp/loan-ledger/config"
	"github.com/warp/loan-ledger/events"
	"github.com/warp/loan-ledger/idgen"
	"github.com/warp/loan-ledger/ledger"
	"github.com/warp/loan-ledger/logger"
	"github.com/warp/loan-ledger/service"
	"github.com/warp/loan-ledger/store/mysql"
	"github.com/warp/loan-ledger/store/sqlite"
)

// backend is what both store drivers provide.
type backend interface {
	ledger.TxStore
	ledger.Querier
	application.Store
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	// Flags
	configDir := flag.String("config", ".", "Directory searched for .env")
	envFile := flag.String("env-file", "", "Extra env file loaded before configuration")
	issueFor := flag.String("issue-token", "", "Print an admin token for this subject and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of an issued token")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.Initialize(cfg.LogLevel, cfg.LogFormat)
	tokens := api.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer)

	if *issueFor != "" {
		token, err := tokens.Issue(*issueFor, []string{api.RoleAdmin}, *tokenTTL)
		if err != nil {
			fatal(log, "failed to issue token", err)
		}
		fmt.Println(token)
		return
	}

	ctx := context.Background()

	// Initialize store
	store, err := openStore(ctx, cfg)
	if err != nil {
		fatal(log, "failed to initialize database", err)
	}
	defer store.Close()

	rules, err := cfg.Rules()
	if err != nil {
		fatal(log, "invalid lending rules", err)
	}
	penalty, err := cfg.Penalty()
	if err != nil {
		fatal(log, "invalid penalty terms", err)
	}

	ids := idgen.New()
	led := ledger.New(store, ids,
		ledger.WithTimeout(cfg.StorageTimeout()),
		ledger.WithOverpaymentPolicy(ledger.OverpaymentPolicy(cfg.OverpaymentPolicy)),
		ledger.WithLogger(logger.WithComponent("ledger")),
	)
	workflow := application.NewWorkflow(store, led, ids, application.NewValidator(rules),
		application.WithWorkflowLogger(logger.WithComponent("workflow")),
	)

	pub := openPublisher(cfg, log)
	defer pub.Close()

	svc := service.New(led, workflow, store, pub, service.Settings{
		PerPage:     cfg.PerPage,
		Currency:    cfg.Currency(),
		PenaltyRate: penalty.RatePercent,
		GraceDays:   penalty.GraceDays,
	}, service.WithLogger(logger.WithComponent("service")))

	rdb := openRedis(ctx, cfg, log)
	if rdb != nil {
		defer rdb.Close()
	}

	sweeper := service.NewSweeper(svc, cfg.SweepInterval())
	sweeper.Start()

	// Create router
	router := api.NewRouter(api.NewHandler(svc, store.Ping), api.Options{
		Tokens:         tokens,
		Redis:          rdb,
		IdempotencyTTL: cfg.IdempotencyTTL(),
		AllowedOrigins: cfg.Origins(),
	})

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server starting", "addr", cfg.ServerAddr, "driver", cfg.DBDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "server failed", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	sweeper.Stop()

	log.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (backend, error) {
	switch cfg.DBDriver {
	case config.DriverMySQL:
		return mysql.Open(ctx, cfg.MySQLDSN, mysql.DefaultPool)
	default:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return s, nil
	}
}

// openPublisher falls back to discarding events when the broker is not
// configured or unreachable; ledger writes never wait on it.
func openPublisher(cfg *config.Config, log *slog.Logger) events.Publisher {
	if cfg.RabbitMQURL == "" {
		log.Info("no RABBITMQ_URL; domain events are discarded")
		return events.Noop{}
	}
	pub, err := events.NewRabbitPublisher(cfg.RabbitMQURL, cfg.EventsExchange)
	if err != nil {
		log.Warn("event publisher unavailable; domain events are discarded", "error", err)
		return events.Noop{}
	}
	return pub
}

// openRedis returns nil when idempotency is not configured. A configured
// but unreachable Redis is still returned: the middleware answers 503
// until it comes back rather than silently dropping the guarantee.
func openRedis(ctx context.Context, cfg *config.Config, log *slog.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		log.Warn("no REDIS_URL; Idempotency-Key is not enforced")
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		fatal(log, "invalid REDIS_URL", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis not reachable yet", "error", err)
	}
	return rdb
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
