// Package main wires together the ingestion service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	googleuuid "github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jobtrackerhq/job-ingest/internal/api"
	"github.com/jobtrackerhq/job-ingest/internal/clock/system"
	"github.com/jobtrackerhq/job-ingest/internal/config"
	"github.com/jobtrackerhq/job-ingest/internal/dispatcher"
	collyextract "github.com/jobtrackerhq/job-ingest/internal/extract/colly"
	"github.com/jobtrackerhq/job-ingest/internal/id/uuid"
	"github.com/jobtrackerhq/job-ingest/internal/ingest"
	leaseMemory "github.com/jobtrackerhq/job-ingest/internal/lease/memory"
	leaseRedis "github.com/jobtrackerhq/job-ingest/internal/lease/redis"
	"github.com/jobtrackerhq/job-ingest/internal/logging"
	"github.com/jobtrackerhq/job-ingest/internal/metrics"
	"github.com/jobtrackerhq/job-ingest/internal/normalize"
	"github.com/jobtrackerhq/job-ingest/internal/queue"
	queueMemory "github.com/jobtrackerhq/job-ingest/internal/queue/memory"
	"github.com/jobtrackerhq/job-ingest/internal/scheduler"
	"github.com/jobtrackerhq/job-ingest/internal/stats"
	storageMemory "github.com/jobtrackerhq/job-ingest/internal/storage/memory"
	"github.com/jobtrackerhq/job-ingest/internal/storage/postgres"
	"github.com/jobtrackerhq/job-ingest/internal/upsert"
	"github.com/jobtrackerhq/job-ingest/internal/worker"
)

// stores groups the persistence interfaces a backend must provide.
type stores interface {
	ingest.CompanyStore
	ingest.JobSourceStore
	ingest.JobStore
	ingest.RunStore
}

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	store, cleanup, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer cleanup()

	clock := system.New()
	idGen := uuid.New()

	runQueue, closeQueue, err := buildQueue(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("queue init failed", zap.Error(err))
	}
	defer closeQueue()

	lease, err := buildLease(ctx, cfg, clock, logger)
	if err != nil {
		logger.Fatal("lease init failed", zap.Error(err))
	}

	extractor := collyextract.New(collyextract.Config{
		UserAgent:     cfg.Extract.UserAgent,
		RespectRobots: cfg.Extract.RespectRobots,
		Timeout:       cfg.ExtractTimeout(),
		MaxPages:      cfg.Extract.MaxPages,
	}, logger.Named("extract"))
	normalizer := normalize.New(clock, logger.Named("normalize"))
	upserter := upsert.New(store, store, clock, logger.Named("upsert"))
	tracker := stats.New(store, logger.Named("stats"))

	workerCfg := worker.Config{
		DefaultMaxRecords: cfg.Ingest.MaxRecordsDefault,
		LeaseTTL:          cfg.LeaseTTL(),
	}
	var workers []*worker.Worker
	for i := 0; i < cfg.Ingest.Workers; i++ {
		workers = append(workers, worker.New(
			runQueue,
			store,
			store,
			extractor,
			normalizer,
			upserter,
			tracker,
			lease,
			clock,
			idGen,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(runQueue, workers)

	policy := ingest.NewExponentialRetryPolicy(
		cfg.Ingest.MaxRetries,
		time.Duration(cfg.Ingest.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.Ingest.BackoffMaxMs)*time.Millisecond,
	)
	sched := scheduler.New(store, store, workers[0], runQueue, policy, clock, scheduler.Config{
		SweepSpec:       cfg.Scheduler.SweepSpec,
		CleanupSpec:     cfg.Scheduler.CleanupSpec,
		DefaultInterval: cfg.DefaultInterval(),
		MaxJobAge:       cfg.MaxJobAge(),
	}, logger.Named("scheduler"))

	apiServer := api.NewServer(sched, store, store, idGen, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Ingest.Workers))
		dispatch.Run(ctx)
	}()

	if err := sched.Start(ctx); err != nil {
		logger.Fatal("scheduler start failed", zap.Error(err))
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	sched.Stop()
	logger.Info("shutdown complete")
}

// buildStore picks Postgres when a DSN is configured, otherwise the
// in-memory store for local runs.
func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (stores, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Warn("no database configured, using in-memory storage")
		return storageMemory.NewStore(), func() {}, nil
	}
	pg, err := postgres.NewStore(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pg, pg.Close, nil
}

// buildQueue picks Pub/Sub when a project is configured, otherwise a
// bounded in-process queue.
func buildQueue(ctx context.Context, cfg config.Config, logger *zap.Logger) (ingest.Queue, func(), error) {
	if cfg.PubSub.ProjectID == "" {
		q := queueMemory.NewQueue(cfg.Ingest.QueueDepth)
		return q, q.Close, nil
	}
	q, err := queue.NewPubSubQueue(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicID, cfg.PubSub.SubscriptionID, logger.Named("pubsub"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect pubsub: %w", err)
	}
	return q, func() {
		if err := q.Close(); err != nil {
			logger.Error("pubsub close failed", zap.Error(err))
		}
	}, nil
}

// buildLease picks Redis when a URL is configured, otherwise the
// in-process lease. Single-instance deployments do not need Redis.
func buildLease(ctx context.Context, cfg config.Config, clock ingest.Clock, logger *zap.Logger) (ingest.Lease, error) {
	if cfg.Redis.URL == "" {
		return leaseMemory.New(clock), nil
	}
	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("redis lease enabled")
	return leaseRedis.New(client, googleuuid.NewString), nil
}
