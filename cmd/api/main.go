// API entry point: loads the configuration, wires dependencies and starts the
// HTTP server serving the REST API and the HTML frontend.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vlebourl/cardinal-vote-sub000/internal/app/httpapi"
	"github.com/vlebourl/cardinal-vote-sub000/internal/app/voting"
	"github.com/vlebourl/cardinal-vote-sub000/internal/app/web"
	"github.com/vlebourl/cardinal-vote-sub000/internal/domain"
	"github.com/vlebourl/cardinal-vote-sub000/internal/platform/antifraud"
	"github.com/vlebourl/cardinal-vote-sub000/internal/platform/clock"
	"github.com/vlebourl/cardinal-vote-sub000/internal/platform/config"
	"github.com/vlebourl/cardinal-vote-sub000/internal/platform/health"
	"github.com/vlebourl/cardinal-vote-sub000/internal/platform/ids"
	"github.com/vlebourl/cardinal-vote-sub000/internal/platform/logger"
	"github.com/vlebourl/cardinal-vote-sub000/internal/platform/migrations"
	postgresstorage "github.com/vlebourl/cardinal-vote-sub000/internal/platform/storage/postgres"
	redisstorage "github.com/vlebourl/cardinal-vote-sub000/internal/platform/storage/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}

	// The gorm connection is shared across the process so the pool and the
	// readiness probe see the same handle.
	db, err := postgresstorage.Open(ctx, cfg.PostgresDSN())
	if err != nil {
		logger.Fatal("failed to connect to postgres", "err", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("failed to unwrap sql.DB", "err", err)
	}
	defer sqlDB.Close()

	if cfg.AutoMigrate {
		if err := migrations.Run(db); err != nil {
			logger.Fatal("automatic migration failed", "err", err)
		}
	}

	redisClient, err := redisstorage.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("failed to connect to redis", "err", err)
	}
	defer redisClient.Close()

	pollRepo := postgresstorage.NewPollRepository(db)
	optionRepo := postgresstorage.NewOptionRepository(db)
	ballotRepo := postgresstorage.NewBallotRepository(db)
	counter := redisstorage.NewCounter(redisClient, cfg.CounterKeyPrefix)
	clockSystem := clock.NewSystemClock()
	idGen := ids.NewGenerator()

	// With a queue wired in, submissions are acknowledged before they hit
	// postgres and duplicates surface only in the worker. Leaving it nil keeps
	// the insert synchronous so the voter gets the conflict right away.
	var queue domain.Queue
	if cfg.AsyncSubmit {
		queue = redisstorage.NewQueue(redisClient, cfg.QueueKeyPrefix)
	}

	var antifraudSvc domain.Antifraud = antifraud.NewNoop()
	if cfg.RateLimitEnabled {
		window := time.Duration(cfg.RateLimitWindowSeconds) * time.Second
		antifraudSvc = antifraud.NewRedisRateLimiter(redisClient, cfg.RateLimitMaxActions, window, cfg.RateLimitKeyPrefix)
	}

	service := voting.NewService(
		pollRepo,
		optionRepo,
		ballotRepo,
		counter,
		queue,
		antifraudSvc,
		clockSystem,
		idGen,
	)

	mux := http.NewServeMux()
	checker := health.NewChecker(sqlDB, redisClient)

	api := httpapi.New(service, logger.L())
	api.Register(mux)
	frontend, err := web.New(service, cfg.AdminToken)
	if err != nil {
		logger.Fatal("failed to load templates", "err", err)
	}
	frontend.Register(mux)
	mux.HandleFunc("/readyz", checker.ReadyHandler())
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("api listening", "addr", cfg.HTTPAddress)
	if err := http.ListenAndServe(cfg.HTTPAddress, mux); err != nil {
		logger.Fatal("server error", "err", err)
	}
}
