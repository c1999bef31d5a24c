package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/notafacil/receipt-pipeline/internal/entity"
)

// JobRepository is the narrow read/write surface the pipeline needs over
// processing jobs. The owning CRUD layer may expose far more; the pipeline
// issues one read and one terminal write per run.
type JobRepository interface {
	// GetJob returns common.ErrNotFound (wrapped) when the job doesn't exist.
	GetJob(ctx context.Context, id uuid.UUID) (*entity.ProcessingJob, error)
	SaveJob(ctx context.Context, job *entity.ProcessingJob) error
	// ClaimRunnable atomically claims up to limit runnable jobs (pending, or
	// processing with no update for staleAfter, i.e. crashed worker recovery)
	// by marking them PROCESSING with a fresh updated_at, and returns their
	// IDs. The claim guarantees a job is handed out at most once per
	// staleness window, so two pollers never race the same job.
	ClaimRunnable(ctx context.Context, staleAfter time.Duration, limit int) ([]uuid.UUID, error)
}

// InvoiceRepository is the persistence-read capability duplicate detection
// uses. It satisfies duplicates.Lookup.
type InvoiceRepository interface {
	ByAccessKey(ctx context.Context, ownerID uuid.UUID, accessKey string) ([]entity.InvoiceRecord, error)
	ByNumberAndIssuer(ctx context.Context, ownerID uuid.UUID, number, cnpj string, total *float64) ([]entity.InvoiceRecord, error)
}
