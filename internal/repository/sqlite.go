package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/notafacil/receipt-pipeline/constants"
	"github.com/notafacil/receipt-pipeline/internal/common"
	"github.com/notafacil/receipt-pipeline/internal/entity"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS processing_jobs (
	id           TEXT PRIMARY KEY,
	owner_id     TEXT NOT NULL,
	status       TEXT NOT NULL,
	image_refs   TEXT NOT NULL DEFAULT '[]',
	image_count  INTEGER NOT NULL DEFAULT 0,
	result       TEXT,
	confidence   REAL NOT NULL DEFAULT 0,
	errors       TEXT NOT NULL DEFAULT '[]',
	warnings     TEXT NOT NULL DEFAULT '[]',
	invoice_id   TEXT,
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON processing_jobs(status, updated_at);

CREATE TABLE IF NOT EXISTS invoices (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	access_key  TEXT,
	number      TEXT,
	issuer_cnpj TEXT,
	issuer_name TEXT,
	total       REAL NOT NULL DEFAULT 0,
	issued_at   TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_invoices_owner_key ON invoices(owner_id, access_key);
`

// SQLiteStore implements JobRepository and InvoiceRepository on a local
// SQLite file for single-binary mode; the Postgres adapters are the
// deployment default.
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenSQLite opens (and migrates) the database at path. WAL keeps concurrent
// workers from tripping over each other.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	logger.Info("sqlite store ready", "path", path)
	return &SQLiteStore{db: db, log: logger}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetJob(ctx context.Context, id uuid.UUID) (*entity.ProcessingJob, error) {
	const q = `
		SELECT owner_id, status, image_refs, result, confidence,
		       errors, warnings, invoice_id, created_at, updated_at, completed_at
		FROM processing_jobs WHERE id = ?`

	job := entity.ProcessingJob{ID: id}
	var (
		ownerID   string
		status    string
		imageRefs string
		result    sql.NullString
		errsJSON  string
		warnsJSON string
		invoiceID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, q, id.String()).Scan(
		&ownerID, &status, &imageRefs, &result, &job.Confidence,
		&errsJSON, &warnsJSON, &invoiceID, &job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("JOB_NOT_FOUND", id.String(), common.ErrNotFound)
	}
	if err != nil {
		return nil, common.WrapError(err, "load job")
	}

	if job.OwnerID, err = uuid.Parse(ownerID); err != nil {
		return nil, common.WrapError(err, "parse owner id")
	}
	job.Status = constants.JobStatus(status)
	if err := json.Unmarshal([]byte(imageRefs), &job.ImageRefs); err != nil {
		return nil, common.WrapError(err, "decode image refs")
	}
	job.ImageCount = len(job.ImageRefs)
	if result.Valid && result.String != "" {
		job.Result = &entity.ExtractedInvoice{}
		if err := json.Unmarshal([]byte(result.String), job.Result); err != nil {
			return nil, common.WrapError(err, "decode result")
		}
	}
	if err := json.Unmarshal([]byte(errsJSON), &job.Errors); err != nil {
		return nil, common.WrapError(err, "decode errors")
	}
	if err := json.Unmarshal([]byte(warnsJSON), &job.Warnings); err != nil {
		return nil, common.WrapError(err, "decode warnings")
	}
	if invoiceID.Valid {
		parsed, err := uuid.Parse(invoiceID.String)
		if err != nil {
			return nil, common.WrapError(err, "parse invoice id")
		}
		job.InvoiceID = &parsed
	}
	return &job, nil
}

func (s *SQLiteStore) SaveJob(ctx context.Context, job *entity.ProcessingJob) error {
	const q = `
		INSERT INTO processing_jobs
			(id, owner_id, status, image_refs, image_count, result, confidence,
			 errors, warnings, invoice_id, created_at, updated_at, completed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			result = excluded.result,
			confidence = excluded.confidence,
			errors = excluded.errors,
			warnings = excluded.warnings,
			invoice_id = excluded.invoice_id,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at`

	imageRefs, _ := json.Marshal(job.ImageRefs)
	errsJSON, _ := json.Marshal(job.Errors)
	warnsJSON, _ := json.Marshal(job.Warnings)
	var result any
	if job.Result != nil {
		b, err := json.Marshal(job.Result)
		if err != nil {
			return common.WrapError(err, "encode result")
		}
		result = string(b)
	}
	var invoiceID any
	if job.InvoiceID != nil {
		invoiceID = job.InvoiceID.String()
	}

	_, err := s.db.ExecContext(ctx, q,
		job.ID.String(), job.OwnerID.String(), string(job.Status), string(imageRefs),
		len(job.ImageRefs), result, job.Confidence, string(errsJSON), string(warnsJSON),
		invoiceID, job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		s.log.Error("job save failed", "job_id", job.ID, "status", job.Status, "err", err)
		return common.WrapError(err, "save job")
	}
	return nil
}

func (s *SQLiteStore) ClaimRunnable(ctx context.Context, staleAfter time.Duration, limit int) ([]uuid.UUID, error) {
	// status flips inside the claim itself so a job is handed out once per
	// staleness window even with several pollers on the same file
	const q = `
		UPDATE processing_jobs
		SET status = ?, updated_at = ?
		WHERE id IN (
			SELECT id FROM processing_jobs
			WHERE status = ? OR (status = ? AND updated_at < ?)
			ORDER BY created_at
			LIMIT ?
		)
		RETURNING id`

	now := time.Now().UTC()
	rows, err := s.db.QueryContext(ctx, q,
		string(constants.JobStatusProcessing), now,
		string(constants.JobStatusPending), string(constants.JobStatusProcessing),
		now.Add(-staleAfter), limit)
	if err != nil {
		return nil, common.WrapError(err, "claim runnable jobs")
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, common.WrapError(err, "scan job id")
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, common.WrapError(err, "parse job id")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ByAccessKey(ctx context.Context, ownerID uuid.UUID, accessKey string) ([]entity.InvoiceRecord, error) {
	const q = `
		SELECT id, COALESCE(access_key,''), COALESCE(number,''),
		       COALESCE(issuer_cnpj,''), COALESCE(issuer_name,''), total, issued_at
		FROM invoices WHERE owner_id = ? AND access_key = ?`
	rows, err := s.db.QueryContext(ctx, q, ownerID.String(), accessKey)
	if err != nil {
		return nil, common.WrapError(err, "lookup by access key")
	}
	defer rows.Close()
	return s.scanInvoices(rows)
}

func (s *SQLiteStore) ByNumberAndIssuer(ctx context.Context, ownerID uuid.UUID, number, cnpj string, total *float64) ([]entity.InvoiceRecord, error) {
	q := `
		SELECT id, COALESCE(access_key,''), COALESCE(number,''),
		       COALESCE(issuer_cnpj,''), COALESCE(issuer_name,''), total, issued_at
		FROM invoices WHERE owner_id = ? AND number = ? AND issuer_cnpj = ?`
	args := []any{ownerID.String(), number, cnpj}
	if total != nil {
		q += ` AND total = ?`
		args = append(args, *total)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, common.WrapError(err, "lookup by number and issuer")
	}
	defer rows.Close()
	return s.scanInvoices(rows)
}

func (s *SQLiteStore) scanInvoices(rows *sql.Rows) ([]entity.InvoiceRecord, error) {
	var out []entity.InvoiceRecord
	for rows.Next() {
		var (
			rec entity.InvoiceRecord
			raw string
		)
		if err := rows.Scan(&raw, &rec.AccessKey, &rec.Number, &rec.IssuerCNPJ,
			&rec.IssuerName, &rec.Total, &rec.IssuedAt); err != nil {
			return nil, common.WrapError(err, "scan invoice")
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, common.WrapError(err, "parse invoice id")
		}
		rec.ID = id
		out = append(out, rec)
	}
	return out, rows.Err()
}
