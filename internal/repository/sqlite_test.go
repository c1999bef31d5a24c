package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notafacil/receipt-pipeline/constants"
	"github.com/notafacil/receipt-pipeline/internal/common"
	"github.com/notafacil/receipt-pipeline/internal/entity"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "pipeline.db"),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteJobRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := &entity.ProcessingJob{
		ID:         uuid.New(),
		OwnerID:    uuid.New(),
		Status:     constants.JobStatusPending,
		ImageRefs:  []string{"receipts/a.jpg", "receipts/b.png"},
		ImageCount: 2,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
		UpdatedAt:  time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SaveJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.OwnerID, got.OwnerID)
	assert.Equal(t, constants.JobStatusPending, got.Status)
	assert.Equal(t, job.ImageRefs, got.ImageRefs)
	assert.Equal(t, 2, got.ImageCount)
	assert.Nil(t, got.Result)
	assert.Nil(t, got.CompletedAt)
}

func TestSQLiteJobUpsertWithResult(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := &entity.ProcessingJob{
		ID:        uuid.New(),
		OwnerID:   uuid.New(),
		Status:    constants.JobStatusPending,
		ImageRefs: []string{"receipts/a.jpg"},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveJob(ctx, job))

	job.Status = constants.JobStatusExtracted
	job.Confidence = 0.91
	job.Warnings = []string{"image \"x\" could not be loaded"}
	job.Result = &entity.ExtractedInvoice{
		IssuerName: "Mercado Exemplo",
		Total:      16.47,
		Items: []entity.ExtractedLineItem{
			{Description: "LEITE INT 1L", NormalizedName: "Leite Integral 1L", Quantity: 2, UnitPrice: 5.49, TotalPrice: 10.98},
		},
	}
	job.UpdatedAt = time.Now().UTC()
	require.NoError(t, s.SaveJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusExtracted, got.Status)
	assert.InDelta(t, 0.91, float64(got.Confidence), 0.001)
	require.NotNil(t, got.Result)
	require.Len(t, got.Result.Items, 1)
	assert.Equal(t, "Leite Integral 1L", got.Result.Items[0].NormalizedName)
	assert.Equal(t, job.Warnings, got.Warnings)
}

func TestSQLiteGetJobNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetJob(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestSQLiteClaimRunnable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	save := func(status constants.JobStatus, updatedAt time.Time) uuid.UUID {
		job := &entity.ProcessingJob{
			ID:        uuid.New(),
			OwnerID:   uuid.New(),
			Status:    status,
			ImageRefs: []string{"receipts/a.jpg"},
			CreatedAt: updatedAt,
			UpdatedAt: updatedAt,
		}
		require.NoError(t, s.SaveJob(ctx, job))
		return job.ID
	}

	pending := save(constants.JobStatusPending, now)
	stale := save(constants.JobStatusProcessing, now.Add(-time.Hour))
	fresh := save(constants.JobStatusProcessing, now)
	done := save(constants.JobStatusExtracted, now)

	ids, err := s.ClaimRunnable(ctx, 15*time.Minute, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{pending, stale}, ids)
	assert.NotContains(t, ids, fresh)
	assert.NotContains(t, ids, done)

	// claiming marks the job PROCESSING with a fresh timestamp
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, constants.JobStatusProcessing, job.Status)
	}

	// so a second poller sees nothing until the staleness window passes
	again, err := s.ClaimRunnable(ctx, 15*time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func seedInvoice(t *testing.T, s *SQLiteStore, ownerID uuid.UUID, accessKey, number, cnpj string, total float64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := s.db.Exec(
		`INSERT INTO invoices (id, owner_id, access_key, number, issuer_cnpj, issuer_name, total)
		 VALUES (?,?,?,?,?,?,?)`,
		id.String(), ownerID.String(), accessKey, number, cnpj, "Mercado Exemplo", total)
	require.NoError(t, err)
	return id
}

func TestSQLiteInvoiceLookups(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	owner := uuid.New()
	other := uuid.New()

	const key = "35240112345678000190650010000012341234567890"
	id := seedInvoice(t, s, owner, key, "1234", "12345678000190", 87.54)
	seedInvoice(t, s, other, key, "1234", "12345678000190", 87.54)

	byKey, err := s.ByAccessKey(ctx, owner, key)
	require.NoError(t, err)
	require.Len(t, byKey, 1, "lookups are owner-scoped")
	assert.Equal(t, id, byKey[0].ID)
	assert.Equal(t, "Mercado Exemplo", byKey[0].IssuerName)

	total := 87.54
	fuzzy, err := s.ByNumberAndIssuer(ctx, owner, "1234", "12345678000190", &total)
	require.NoError(t, err)
	require.Len(t, fuzzy, 1)
	assert.Equal(t, id, fuzzy[0].ID)

	wrongTotal := 10.00
	none, err := s.ByNumberAndIssuer(ctx, owner, "1234", "12345678000190", &wrongTotal)
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := s.ByNumberAndIssuer(ctx, owner, "1234", "12345678000190", nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
