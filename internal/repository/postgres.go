package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notafacil/receipt-pipeline/constants"
	"github.com/notafacil/receipt-pipeline/internal/common"
	"github.com/notafacil/receipt-pipeline/internal/entity"
)

type pgJobRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPostgresJobRepository(pool *pgxpool.Pool, log *slog.Logger) JobRepository {
	return &pgJobRepo{pool: pool, log: log}
}

func (r *pgJobRepo) GetJob(ctx context.Context, id uuid.UUID) (*entity.ProcessingJob, error) {
	const q = `
		SELECT owner_id, status, image_refs, result, confidence,
		       errors, warnings, invoice_id, created_at, updated_at, completed_at
		FROM processing_jobs
		WHERE id = $1`

	job := entity.ProcessingJob{ID: id}
	var (
		status    string
		imageRefs []byte
		result    []byte
		errsJSON  []byte
		warnsJSON []byte
	)
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&job.OwnerID, &status, &imageRefs, &result, &job.Confidence,
		&errsJSON, &warnsJSON, &job.InvoiceID, &job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NewAppError("JOB_NOT_FOUND", id.String(), common.ErrNotFound)
	}
	if err != nil {
		r.log.Error("job load failed", "job_id", id, "err", err)
		return nil, common.WrapError(err, "load job")
	}

	job.Status = constants.JobStatus(status)
	if err := unmarshalInto(imageRefs, &job.ImageRefs); err != nil {
		return nil, common.WrapError(err, "decode image refs")
	}
	job.ImageCount = len(job.ImageRefs)
	if len(result) > 0 {
		job.Result = &entity.ExtractedInvoice{}
		if err := json.Unmarshal(result, job.Result); err != nil {
			return nil, common.WrapError(err, "decode result")
		}
	}
	if err := unmarshalInto(errsJSON, &job.Errors); err != nil {
		return nil, common.WrapError(err, "decode errors")
	}
	if err := unmarshalInto(warnsJSON, &job.Warnings); err != nil {
		return nil, common.WrapError(err, "decode warnings")
	}
	return &job, nil
}

func (r *pgJobRepo) SaveJob(ctx context.Context, job *entity.ProcessingJob) error {
	const q = `
		INSERT INTO processing_jobs
			(id, owner_id, status, image_refs, image_count, result, confidence,
			 errors, warnings, invoice_id, created_at, updated_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			result = EXCLUDED.result,
			confidence = EXCLUDED.confidence,
			errors = EXCLUDED.errors,
			warnings = EXCLUDED.warnings,
			invoice_id = EXCLUDED.invoice_id,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at`

	imageRefs, _ := json.Marshal(job.ImageRefs)
	errsJSON, _ := json.Marshal(job.Errors)
	warnsJSON, _ := json.Marshal(job.Warnings)
	var result []byte
	if job.Result != nil {
		b, err := json.Marshal(job.Result)
		if err != nil {
			return common.WrapError(err, "encode result")
		}
		result = b
	}

	_, err := r.pool.Exec(ctx, q,
		job.ID, job.OwnerID, string(job.Status), imageRefs, len(job.ImageRefs), result,
		job.Confidence, errsJSON, warnsJSON, job.InvoiceID,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		r.log.Error("job save failed", "job_id", job.ID, "status", job.Status, "err", err)
		return common.WrapError(err, "save job")
	}
	r.log.Debug("job saved", "job_id", job.ID, "status", job.Status)
	return nil
}

func (r *pgJobRepo) ClaimRunnable(ctx context.Context, staleAfter time.Duration, limit int) ([]uuid.UUID, error) {
	// the claim flips status inside the same statement so concurrent pollers
	// never hand out the same job; SKIP LOCKED keeps them from queueing up
	const q = `
		UPDATE processing_jobs
		SET status = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM processing_jobs
			WHERE status = $3 OR (status = $1 AND updated_at < $4)
			ORDER BY created_at
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id`

	now := time.Now().UTC()
	rows, err := r.pool.Query(ctx, q,
		string(constants.JobStatusProcessing), now,
		string(constants.JobStatusPending), now.Add(-staleAfter), limit)
	if err != nil {
		return nil, common.WrapError(err, "claim runnable jobs")
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, common.WrapError(err, "scan job id")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

type pgInvoiceRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPostgresInvoiceRepository(pool *pgxpool.Pool, log *slog.Logger) InvoiceRepository {
	return &pgInvoiceRepo{pool: pool, log: log}
}

const invoiceColumns = `id, COALESCE(access_key,''), COALESCE(number,''),
	COALESCE(issuer_cnpj,''), COALESCE(issuer_name,''), total, issued_at`

func (r *pgInvoiceRepo) ByAccessKey(ctx context.Context, ownerID uuid.UUID, accessKey string) ([]entity.InvoiceRecord, error) {
	q := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE owner_id = $1 AND access_key = $2`
	rows, err := r.pool.Query(ctx, q, ownerID, accessKey)
	if err != nil {
		return nil, common.WrapError(err, "lookup by access key")
	}
	defer rows.Close()
	return scanInvoices(rows)
}

func (r *pgInvoiceRepo) ByNumberAndIssuer(ctx context.Context, ownerID uuid.UUID, number, cnpj string, total *float64) ([]entity.InvoiceRecord, error) {
	q := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE owner_id = $1 AND number = $2 AND issuer_cnpj = $3
		  AND ($4::numeric IS NULL OR total = $4)`
	rows, err := r.pool.Query(ctx, q, ownerID, number, cnpj, total)
	if err != nil {
		return nil, common.WrapError(err, "lookup by number and issuer")
	}
	defer rows.Close()
	return scanInvoices(rows)
}

func scanInvoices(rows pgx.Rows) ([]entity.InvoiceRecord, error) {
	var out []entity.InvoiceRecord
	for rows.Next() {
		var rec entity.InvoiceRecord
		if err := rows.Scan(&rec.ID, &rec.AccessKey, &rec.Number, &rec.IssuerCNPJ,
			&rec.IssuerName, &rec.Total, &rec.IssuedAt); err != nil {
			return nil, common.WrapError(err, "scan invoice")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func unmarshalInto(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
