// Asynchronous worker: consumes queued ballots, persists them in Postgres and
// keeps the live counters and metrics up to date.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vlebourl/cardinal-vote-sub000/internal/app/worker"
	"github.com/vlebourl/cardinal-vote-sub000/internal/domain"
	"github.com/vlebourl/cardinal-vote-sub000/internal/platform/clock"
	"github.com/vlebourl/cardinal-vote-sub000/internal/platform/config"
	"github.com/vlebourl/cardinal-vote-sub000/internal/platform/health"
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

	// Same gorm connection setup as the API so both share schema and models.
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

	counter := redisstorage.NewCounter(redisClient, cfg.CounterKeyPrefix)
	queue := redisstorage.NewQueue(redisClient, cfg.QueueKeyPrefix)
	clockSystem := clock.NewSystemClock()
	checker := health.NewChecker(sqlDB, redisClient)

	if cfg.WorkerMetricsAddress != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/readyz", checker.ReadyHandler())
			logger.Info("worker metrics listening", "addr", cfg.WorkerMetricsAddress)
			if err := http.ListenAndServe(cfg.WorkerMetricsAddress, mux); err != nil {
				logger.Error("worker metrics server error", "err", err)
			}
		}()
	}

	ballotRepo := postgresstorage.NewBallotRepository(db)
	processor := worker.NewBallotProcessor(ballotRepo, counter, clockSystem)

	logger.Info("worker started, waiting for ballots")
	err = queue.ConsumeBallots(ctx, func(ctx context.Context, ballot domain.Ballot) error {
		// One ballot at a time keeps the simple-queue semantics.
		if err := processor.Process(ctx, ballot); err != nil {
			logger.Error("failed to process ballot", "ballot", ballot.ID, "err", err)
		}
		return nil
	})

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Fatal("worker stopped with error", "err", err)
	}

	logger.Info("worker stopped")
}
