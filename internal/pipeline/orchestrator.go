// Package pipeline drives one processing job from photos to an extracted,
// normalized, categorized, duplicate-checked invoice.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notafacil/receipt-pipeline/constants"
	"github.com/notafacil/receipt-pipeline/internal/categorizer"
	"github.com/notafacil/receipt-pipeline/internal/common"
	"github.com/notafacil/receipt-pipeline/internal/duplicates"
	"github.com/notafacil/receipt-pipeline/internal/entity"
	"github.com/notafacil/receipt-pipeline/internal/gateway"
	"github.com/notafacil/receipt-pipeline/internal/normalizer"
	"github.com/notafacil/receipt-pipeline/internal/provider"
	"github.com/notafacil/receipt-pipeline/internal/repository"
	"github.com/notafacil/receipt-pipeline/internal/storage"
)

// Orchestrator is the background-task entry point. One invocation processes
// exactly one job; concurrent invocations must be for distinct jobs.
type Orchestrator struct {
	jobs        repository.JobRepository
	images      storage.ImageStore
	gateway     *gateway.Gateway
	categorizer *categorizer.Categorizer
	detector    *duplicates.Detector
	cfg         common.PipelineConfig
	logger      *slog.Logger
}

func NewOrchestrator(
	jobs repository.JobRepository,
	images storage.ImageStore,
	gw *gateway.Gateway,
	cat *categorizer.Categorizer,
	det *duplicates.Detector,
	cfg common.PipelineConfig,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		jobs:        jobs,
		images:      images,
		gateway:     gw,
		categorizer: cat,
		detector:    det,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run executes the extraction pipeline for one job. Business failures (all
// providers down, no loadable images) end in job status ERROR and a nil
// return; only unexpected faults (persistence write failures and the like)
// surface as an error, which the dispatcher's retry wrapper handles. Re-runs
// of a settled job (extracted, errored, completed) are no-ops, which makes
// Run safe to invoke twice for the same ID.
func (o *Orchestrator) Run(ctx context.Context, jobID uuid.UUID) error {
	ctx = common.WithJobID(ctx, jobID)
	log := o.logger.With("job_id", jobID)

	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// a vanished job is not retryable, just gone
			log.Warn("pipeline.job_missing")
			return nil
		}
		return fmt.Errorf("load job: %w", err)
	}
	// jobs arrive either freshly claimed (PROCESSING, via ClaimRunnable) or
	// invoked directly on PENDING; settled jobs are never re-run
	if job.Status.IsTerminal() ||
		(job.Status != constants.JobStatusProcessing && !constants.CanTransition(job.Status, constants.JobStatusProcessing)) {
		log.Warn("pipeline.job_not_runnable", "status", job.Status)
		return nil
	}
	ctx = common.WithOwnerID(ctx, job.OwnerID)

	job.Status = constants.JobStatusProcessing
	job.UpdatedAt = time.Now().UTC()
	if err := o.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	log.Info("pipeline.start", "images", len(job.ImageRefs))

	images := o.loadImages(ctx, job, log)
	if len(images) == 0 {
		job.AddError("no images could be loaded")
		return o.finish(ctx, job, constants.JobStatusError, log)
	}

	inv, err := o.gateway.Extract(ctx, images)
	if err != nil {
		var allFailed *gateway.AllProvidersFailedError
		if errors.As(err, &allFailed) {
			log.Error("pipeline.extraction_failed", "providers_tried", len(allFailed.Failures))
		}
		job.AddError(err.Error())
		return o.finish(ctx, job, constants.JobStatusError, log)
	}

	o.enrich(ctx, job, inv, log)

	if inv.Confidence < o.cfg.MinConfidence {
		job.AddWarning(fmt.Sprintf("extraction confidence %.2f below threshold %.2f", inv.Confidence, o.cfg.MinConfidence))
	}

	job.Result = inv
	job.Confidence = inv.Confidence
	job.Warnings = append(job.Warnings, inv.Warnings...)
	return o.finish(ctx, job, constants.JobStatusExtracted, log)
}

// loadImages fans out over the job's image references. Order is preserved;
// individual failures become job warnings and the image is dropped from the
// batch.
func (o *Orchestrator) loadImages(ctx context.Context, job *entity.ProcessingJob, log *slog.Logger) []provider.Image {
	type loaded struct {
		data []byte
		err  error
	}
	results := make([]loaded, len(job.ImageRefs))

	var wg sync.WaitGroup
	for i, ref := range job.ImageRefs {
		wg.Add(1)
		go func(i int, ref string) {
			defer wg.Done()
			data, err := o.images.LoadImage(ctx, ref)
			results[i] = loaded{data: data, err: err}
		}(i, ref)
	}
	wg.Wait()

	images := make([]provider.Image, 0, len(job.ImageRefs))
	for i, res := range results {
		if res.err != nil {
			log.Warn("pipeline.image_load_failed", "ref", job.ImageRefs[i], "error", res.err)
			job.AddWarning(fmt.Sprintf("image %q could not be loaded: %v", job.ImageRefs[i], res.err))
			continue
		}
		images = append(images, provider.Image{
			Data:     res.data,
			MIMEType: constants.MIMEForReference(job.ImageRefs[i]),
		})
	}
	return images
}

// enrich runs the sequential post-extraction stages: normalization (pure),
// categorization (best-effort), duplicate detection (best-effort).
func (o *Orchestrator) enrich(ctx context.Context, job *entity.ProcessingJob, inv *entity.ExtractedInvoice, log *slog.Logger) {
	for i := range inv.Items {
		inv.Items[i].NormalizedName = normalizer.Normalize(inv.Items[i].Description)
	}

	o.categorizer.Categorize(ctx, inv.Items)

	dups := o.detector.FindDuplicates(ctx, job.OwnerID, inv)
	inv.Duplicates = dups
	for _, dup := range dups {
		switch dup.MatchType {
		case entity.MatchAccessKey:
			job.AddWarning(fmt.Sprintf("possible duplicate of invoice %s (access key match)", dup.InvoiceID))
		default:
			job.AddWarning(fmt.Sprintf("possible duplicate of invoice %s (number/CNPJ/value match)", dup.InvoiceID))
		}
	}
	log.Debug("pipeline.enriched", "items", len(inv.Items), "duplicates", len(dups))
}

// finish persists the terminal-for-this-run state. updated_at always moves,
// whichever branch got us here.
func (o *Orchestrator) finish(ctx context.Context, job *entity.ProcessingJob, status constants.JobStatus, log *slog.Logger) error {
	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	if err := o.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("persist %s: %w", status, err)
	}
	switch status {
	case constants.JobStatusExtracted:
		log.Info("pipeline.extracted",
			"items", itemCount(job), "confidence", job.Confidence, "warnings", len(job.Warnings))
	default:
		log.Warn("pipeline.errored", "errors", job.Errors)
	}
	return nil
}

func itemCount(job *entity.ProcessingJob) int {
	if job.Result == nil {
		return 0
	}
	return len(job.Result.Items)
}
