package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/notafacil/receipt-pipeline/internal/cache"
	"github.com/notafacil/receipt-pipeline/internal/categorizer"
	"github.com/notafacil/receipt-pipeline/internal/common"
	"github.com/notafacil/receipt-pipeline/internal/duplicates"
	"github.com/notafacil/receipt-pipeline/internal/export"
	"github.com/notafacil/receipt-pipeline/internal/gateway"
	"github.com/notafacil/receipt-pipeline/internal/pipeline"
	"github.com/notafacil/receipt-pipeline/internal/provider"
	"github.com/notafacil/receipt-pipeline/internal/provider/openai"
	"github.com/notafacil/receipt-pipeline/internal/repository"
	"github.com/notafacil/receipt-pipeline/internal/storage"
)

// runjob runs a single job synchronously, bypassing the worker queue. Handy
// for debugging a stuck job or replaying one after a provider outage.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	xlsxPath := flag.String("xlsx", "", "write the extracted invoice to this XLSX file")
	flag.Parse()

	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "runjob [-xlsx out.xlsx] <job-id-uuid>")
		os.Exit(2)
	}
	jobID, err := uuid.Parse(flag.Arg(0))
	if err != nil {
		logger.Error("invalid job id (must be UUID)", "arg", flag.Arg(0), "error", err)
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	jobs, invoices, cleanup, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("open stores", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	var images storage.ImageStore
	if cfg.Images.Backend == "s3" {
		images, err = storage.NewS3Store(ctx, cfg.Images, logger)
		if err != nil {
			logger.Error("open image store", "error", err)
			os.Exit(1)
		}
	} else {
		images = storage.NewFSStore(cfg.Images.BaseDir)
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
	classifier, _ := extractors[0].(provider.Classifier)

	gw := gateway.New(extractors, cache.NewMemoryCache(cfg.Cache.TTL), logger)
	orch := pipeline.NewOrchestrator(jobs, images, gw,
		categorizer.New(classifier, logger),
		duplicates.New(invoices, logger),
		cfg.Pipeline, logger)

	if err := orch.Run(ctx, jobID); err != nil {
		logger.Error("run failed", "job_id", jobID, "error", err)
		os.Exit(1)
	}

	job, err := jobs.GetJob(ctx, jobID)
	if err != nil {
		logger.Error("reload job", "job_id", jobID, "error", err)
		os.Exit(1)
	}
	logger.Info("job finished",
		"status", job.Status, "confidence", job.Confidence,
		"errors", len(job.Errors), "warnings", len(job.Warnings))

	if *xlsxPath != "" && job.Result != nil {
		data, err := export.NewService(logger).InvoiceXLSX(job.Result)
		if err != nil {
			logger.Error("export xlsx", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*xlsxPath, data, 0o644); err != nil {
			logger.Error("write xlsx", "path", *xlsxPath, "error", err)
			os.Exit(1)
		}
		logger.Info("wrote workbook", "path", *xlsxPath, "bytes", len(data))
	}
}

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
	return repository.NewPostgresJobRepository(pool, logger),
		repository.NewPostgresInvoiceRepository(pool, logger),
		pool.Close, nil
}
