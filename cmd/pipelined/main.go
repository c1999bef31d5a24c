package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/notafacil/receipt-pipeline/internal/async"
	"github.com/notafacil/receipt-pipeline/internal/cache"
	"github.com/notafacil/receipt-pipeline/internal/categorizer"
	"github.com/notafacil/receipt-pipeline/internal/common"
	"github.com/notafacil/receipt-pipeline/internal/duplicates"
	"github.com/notafacil/receipt-pipeline/internal/gateway"
	"github.com/notafacil/receipt-pipeline/internal/pipeline"
	"github.com/notafacil/receipt-pipeline/internal/provider"
	"github.com/notafacil/receipt-pipeline/internal/provider/openai"
	"github.com/notafacil/receipt-pipeline/internal/repository"
	"github.com/notafacil/receipt-pipeline/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs, invoices, cleanup, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("open stores", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	images, err := openImageStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("open image store", "error", err)
		os.Exit(1)
	}

	extractors := make([]provider.Extractor, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		extractors = append(extractors, openai.NewClient(openai.Config{
			Name:        pc.Name,
			BaseURL:     pc.BaseURL,
			APIKey:      pc.APIKey,
			Model:       pc.Model,
			Temperature: pc.Temperature,
			Timeout:     pc.Timeout,
		}, logger))
	}
	// the first (primary) provider doubles as the classification backend
	classifier, _ := extractors[0].(provider.Classifier)

	responseCache := newResponseCache(cfg, logger)
	gw := gateway.New(extractors, responseCache, logger)
	cat := categorizer.New(classifier, logger)
	det := duplicates.New(invoices, logger)
	orch := pipeline.NewOrchestrator(jobs, images, gw, cat, det, cfg.Pipeline, logger)

	dispatcher := async.NewDispatcher(orch, cfg.Worker.RetryAttempts, cfg.Worker.RetryBackoffs, logger)
	queue := async.NewWorkerQueue(dispatcher, logger,
		async.WithWorkers(cfg.Worker.Workers),
		async.WithQueueSize(cfg.Worker.QueueSize),
		async.WithJobTimeout(cfg.Worker.JobTimeout),
	)

	logger.Info("pipelined started",
		"workers", cfg.Worker.Workers,
		"providers", len(extractors),
		"poll_interval", cfg.Worker.PollInterval,
	)

	pollLoop(ctx, jobs, queue, cfg, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	queue.Shutdown(shutdownCtx)
	logger.Info("pipelined stopped")
}

// pollLoop claims runnable jobs (pending, or processing but stale) and feeds
// them into the queue until the process is told to stop. Claiming marks each
// job PROCESSING, so a job still sitting in the queue on the next tick is not
// handed out a second time.
func pollLoop(ctx context.Context, jobs repository.JobRepository, queue async.Queue, cfg *common.Config, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.Worker.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ids, err := jobs.ClaimRunnable(ctx, cfg.Worker.StaleAfter, cfg.Worker.Workers*2)
		if err != nil {
			logger.Warn("poll.claim_failed", "error", err)
			continue
		}
		for _, id := range ids {
			_ = queue.Enqueue(ctx, async.Job{JobID: id, SubmittedAt: time.Now()})
		}
	}
}

// openStores picks the persistence backend by DSN scheme: sqlite: paths get
// the embedded store, everything else goes through pgx.
func openStores(ctx context.Context, cfg *common.Config, logger *slog.Logger) (repository.JobRepository, repository.InvoiceRepository, func(), error) {
	if path, ok := strings.CutPrefix(cfg.Database.DSN, "sqlite:"); ok {
		store, err := repository.OpenSQLite(path, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, store, func() { _ = store.Close() }, nil
	}

	pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := repository.HealthCheck(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return repository.NewPostgresJobRepository(pool, logger),
		repository.NewPostgresInvoiceRepository(pool, logger),
		pool.Close, nil
}

func openImageStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (storage.ImageStore, error) {
	if cfg.Images.Backend == "s3" {
		return storage.NewS3Store(ctx, cfg.Images, logger)
	}
	return storage.NewFSStore(cfg.Images.BaseDir), nil
}

func newResponseCache(cfg *common.Config, logger *slog.Logger) cache.ResponseCache {
	if cfg.Cache.Addr == "memory" {
		return cache.NewMemoryCache(cfg.Cache.TTL)
	}
	return cache.NewRedisCache(cfg.Cache.Addr, cfg.Cache.TTL, logger)
}
