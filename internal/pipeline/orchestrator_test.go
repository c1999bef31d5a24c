package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notafacil/receipt-pipeline/constants"
	"github.com/notafacil/receipt-pipeline/internal/cache"
	"github.com/notafacil/receipt-pipeline/internal/categorizer"
	"github.com/notafacil/receipt-pipeline/internal/common"
	"github.com/notafacil/receipt-pipeline/internal/duplicates"
	"github.com/notafacil/receipt-pipeline/internal/entity"
	"github.com/notafacil/receipt-pipeline/internal/gateway"
	"github.com/notafacil/receipt-pipeline/internal/provider"
)

type memJobRepo struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*entity.ProcessingJob
	statuses []constants.JobStatus
	saveErr  error
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[uuid.UUID]*entity.ProcessingJob)}
}

func (r *memJobRepo) GetJob(_ context.Context, id uuid.UUID) (*entity.ProcessingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, common.NewAppError("JOB_NOT_FOUND", "processing job not found", common.ErrNotFound)
	}
	copied := *job
	return &copied, nil
}

func (r *memJobRepo) SaveJob(_ context.Context, job *entity.ProcessingJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	copied := *job
	r.jobs[job.ID] = &copied
	r.statuses = append(r.statuses, job.Status)
	return nil
}

func (r *memJobRepo) ClaimRunnable(_ context.Context, _ time.Duration, _ int) ([]uuid.UUID, error) {
	return nil, nil
}

type fakeImageStore struct {
	mu     sync.Mutex
	images map[string][]byte
}

func (s *fakeImageStore) LoadImage(_ context.Context, ref string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.images[ref]
	if !ok {
		return nil, fmt.Errorf("open %s: no such file", ref)
	}
	return data, nil
}

type fakeProvider struct {
	mu     sync.Mutex
	name   string
	inv    *entity.ExtractedInvoice
	err    error
	calls  int
	images []provider.Image
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Extract(_ context.Context, images []provider.Image) (*entity.ExtractedInvoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.images = images
	if f.err != nil {
		return nil, f.err
	}
	copied := *f.inv
	copied.Items = append([]entity.ExtractedLineItem(nil), f.inv.Items...)
	return &copied, nil
}

type fakeClassifier struct {
	answers map[int]provider.CategoryPair
	err     error
}

func (f *fakeClassifier) Name() string { return "fake" }

func (f *fakeClassifier) Classify(_ context.Context, _ []string, _ map[string][]string) (map[int]provider.CategoryPair, error) {
	return f.answers, f.err
}

type fakeInvoiceLookup struct {
	byKey   []entity.InvoiceRecord
	byFuzzy []entity.InvoiceRecord
}

func (f *fakeInvoiceLookup) ByAccessKey(_ context.Context, _ uuid.UUID, _ string) ([]entity.InvoiceRecord, error) {
	return f.byKey, nil
}

func (f *fakeInvoiceLookup) ByNumberAndIssuer(_ context.Context, _ uuid.UUID, _, _ string, _ *float64) ([]entity.InvoiceRecord, error) {
	return f.byFuzzy, nil
}

type fixture struct {
	repo     *memJobRepo
	store    *fakeImageStore
	provider *fakeProvider
	lookup   *fakeInvoiceLookup
	orch     *Orchestrator
}

func newFixture(t *testing.T, p *fakeProvider, cls provider.Classifier, lookup *fakeInvoiceLookup) *fixture {
	t.Helper()
	if lookup == nil {
		lookup = &fakeInvoiceLookup{}
	}
	repo := newMemJobRepo()
	store := &fakeImageStore{images: make(map[string][]byte)}
	gw := gateway.New([]provider.Extractor{p}, cache.NewMemoryCache(time.Hour), nil)
	return &fixture{
		repo:     repo,
		store:    store,
		provider: p,
		lookup:   lookup,
		orch: NewOrchestrator(
			repo,
			store,
			gw,
			categorizer.New(cls, nil),
			duplicates.New(lookup, nil),
			common.PipelineConfig{MaxImagesPerJob: 10, MinConfidence: 0.60},
			nil,
		),
	}
}

func seedJob(f *fixture, refs ...string) *entity.ProcessingJob {
	job := &entity.ProcessingJob{
		ID:         uuid.New(),
		OwnerID:    uuid.New(),
		Status:     constants.JobStatusPending,
		ImageRefs:  refs,
		ImageCount: len(refs),
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	f.repo.jobs[job.ID] = job
	return job
}

func extractionResult() *entity.ExtractedInvoice {
	return &entity.ExtractedInvoice{
		AccessKey:  "35240112345678000190650010000012341234567890",
		Number:     "1234",
		IssuerName: "Mercado Exemplo",
		IssuerCNPJ: "12345678000190",
		Total:      16.47,
		Items: []entity.ExtractedLineItem{
			{Description: "LEITE INT 1L", Quantity: 2, UnitPrice: 5.49, TotalPrice: 10.98},
			{Description: "OVO GDE 30UN", Quantity: 1, UnitPrice: 5.49, TotalPrice: 5.49},
		},
		Confidence: 0.91,
	}
}

func TestRunHappyPath(t *testing.T) {
	p := &fakeProvider{name: "openai", inv: extractionResult()}
	cls := &fakeClassifier{answers: map[int]provider.CategoryPair{
		0: {Category: "Alimentos", Subcategory: "Laticínios e Frios"},
		1: {Category: "Alimentos", Subcategory: "Mercearia"},
	}}
	f := newFixture(t, p, cls, nil)
	f.store.images["receipts/a.jpg"] = []byte("photo-a")
	f.store.images["receipts/b.png"] = []byte("photo-b")
	job := seedJob(f, "receipts/a.jpg", "receipts/b.png")

	require.NoError(t, f.orch.Run(context.Background(), job.ID))

	saved, err := f.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusExtracted, saved.Status)
	assert.Equal(t, []constants.JobStatus{constants.JobStatusProcessing, constants.JobStatusExtracted}, f.repo.statuses)
	assert.Empty(t, saved.Errors)
	assert.InDelta(t, 0.91, float64(saved.Confidence), 0.001)

	require.NotNil(t, saved.Result)
	require.Len(t, saved.Result.Items, 2)
	assert.Equal(t, "Leite Integral 1L", saved.Result.Items[0].NormalizedName)
	assert.Equal(t, "Ovos Grandes 30UN", saved.Result.Items[1].NormalizedName)
	assert.Equal(t, "Laticínios e Frios", saved.Result.Items[0].Subcategory)
	assert.Equal(t, "Mercearia", saved.Result.Items[1].Subcategory)

	// both photos reached the provider in submission order
	require.Len(t, p.images, 2)
	assert.Equal(t, []byte("photo-a"), p.images[0].Data)
	assert.Equal(t, "image/jpeg", p.images[0].MIMEType)
	assert.Equal(t, []byte("photo-b"), p.images[1].Data)
	assert.Equal(t, "image/png", p.images[1].MIMEType)
}

func TestRunPartialImageFailures(t *testing.T) {
	p := &fakeProvider{name: "openai", inv: extractionResult()}
	f := newFixture(t, p, &fakeClassifier{}, nil)
	f.store.images["receipts/ok-1.jpg"] = []byte("one")
	f.store.images["receipts/ok-2.jpg"] = []byte("two")
	job := seedJob(f,
		"receipts/ok-1.jpg",
		"receipts/missing-1.jpg",
		"receipts/ok-2.jpg",
		"receipts/missing-2.jpg",
		"receipts/missing-3.jpg",
	)

	require.NoError(t, f.orch.Run(context.Background(), job.ID))

	saved, err := f.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusExtracted, saved.Status)
	assert.Len(t, saved.Warnings, 3)
	for _, w := range saved.Warnings {
		assert.Contains(t, w, "could not be loaded")
	}

	require.Len(t, p.images, 2, "only the loadable photos go to the provider")
	assert.Equal(t, []byte("one"), p.images[0].Data)
	assert.Equal(t, []byte("two"), p.images[1].Data)
}

func TestRunNoLoadableImages(t *testing.T) {
	p := &fakeProvider{name: "openai", inv: extractionResult()}
	f := newFixture(t, p, &fakeClassifier{}, nil)
	job := seedJob(f, "receipts/gone-1.jpg", "receipts/gone-2.jpg")

	require.NoError(t, f.orch.Run(context.Background(), job.ID))

	saved, err := f.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusError, saved.Status)
	require.NotEmpty(t, saved.Errors)
	assert.Contains(t, saved.Errors[0], "no images could be loaded")
	assert.Equal(t, 0, p.calls, "provider must not run without images")
}

func TestRunAllProvidersFailed(t *testing.T) {
	p := &fakeProvider{name: "openai", err: errors.New("rate limited")}
	f := newFixture(t, p, &fakeClassifier{}, nil)
	f.store.images["receipts/a.jpg"] = []byte("photo")
	job := seedJob(f, "receipts/a.jpg")

	require.NoError(t, f.orch.Run(context.Background(), job.ID), "business failure is not a retryable fault")

	saved, err := f.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusError, saved.Status)
	require.NotEmpty(t, saved.Errors)
	assert.Contains(t, saved.Errors[0], "all extraction providers failed")
	assert.Contains(t, saved.Errors[0], "rate limited")
	assert.Nil(t, saved.Result)
}

func TestRunMissingJob(t *testing.T) {
	p := &fakeProvider{name: "openai", inv: extractionResult()}
	f := newFixture(t, p, &fakeClassifier{}, nil)

	require.NoError(t, f.orch.Run(context.Background(), uuid.New()))
	assert.Empty(t, f.repo.statuses, "nothing persisted for a vanished job")
	assert.Equal(t, 0, p.calls)
}

func TestRunSkipsSettledJob(t *testing.T) {
	for _, status := range []constants.JobStatus{
		constants.JobStatusExtracted,
		constants.JobStatusError,
		constants.JobStatusCompleted,
	} {
		t.Run(string(status), func(t *testing.T) {
			p := &fakeProvider{name: "openai", inv: extractionResult()}
			f := newFixture(t, p, &fakeClassifier{}, nil)
			f.store.images["receipts/a.jpg"] = []byte("photo")
			job := seedJob(f, "receipts/a.jpg")
			job.Status = status
			job.Warnings = []string{"left over from the first pass"}

			require.NoError(t, f.orch.Run(context.Background(), job.ID))

			saved, err := f.repo.GetJob(context.Background(), job.ID)
			require.NoError(t, err)
			assert.Equal(t, status, saved.Status, "settled job must keep its status")
			assert.Empty(t, f.repo.statuses, "nothing persisted for a settled job")
			assert.Equal(t, 0, p.calls)
			assert.Equal(t, []string{"left over from the first pass"}, saved.Warnings)
		})
	}
}

func TestRunTwiceLeavesJobSettled(t *testing.T) {
	p := &fakeProvider{name: "openai", inv: extractionResult()}
	f := newFixture(t, p, &fakeClassifier{}, nil)
	f.store.images["receipts/a.jpg"] = []byte("photo")
	job := seedJob(f, "receipts/a.jpg", "receipts/missing.jpg")

	require.NoError(t, f.orch.Run(context.Background(), job.ID))
	require.NoError(t, f.orch.Run(context.Background(), job.ID))

	saved, err := f.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusExtracted, saved.Status)
	assert.Equal(t, []constants.JobStatus{constants.JobStatusProcessing, constants.JobStatusExtracted},
		f.repo.statuses, "second invocation must not cycle the status again")
	assert.Equal(t, 1, p.calls, "extraction runs once per job")
	assert.Len(t, saved.Warnings, 1, "warnings are not appended twice")
}

func TestRunLowConfidenceWarning(t *testing.T) {
	inv := extractionResult()
	inv.Confidence = 0.41
	p := &fakeProvider{name: "openai", inv: inv}
	f := newFixture(t, p, &fakeClassifier{}, nil)
	f.store.images["receipts/a.jpg"] = []byte("photo")
	job := seedJob(f, "receipts/a.jpg")

	require.NoError(t, f.orch.Run(context.Background(), job.ID))

	saved, err := f.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusExtracted, saved.Status, "low confidence warns, it does not fail")
	require.Len(t, saved.Warnings, 1)
	assert.Contains(t, saved.Warnings[0], "confidence 0.41 below threshold 0.60")
}

func TestRunSaveFailureSurfaces(t *testing.T) {
	p := &fakeProvider{name: "openai", inv: extractionResult()}
	f := newFixture(t, p, &fakeClassifier{}, nil)
	f.repo.saveErr = errors.New("connection reset")
	job := seedJob(f, "receipts/a.jpg")

	err := f.orch.Run(context.Background(), job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRunAttachesDuplicateWarnings(t *testing.T) {
	existing := entity.InvoiceRecord{
		ID:         uuid.New(),
		Number:     "1234",
		IssuerName: "Mercado Exemplo",
		Total:      16.47,
	}
	p := &fakeProvider{name: "openai", inv: extractionResult()}
	f := newFixture(t, p, &fakeClassifier{}, &fakeInvoiceLookup{byKey: []entity.InvoiceRecord{existing}})
	f.store.images["receipts/a.jpg"] = []byte("photo")
	job := seedJob(f, "receipts/a.jpg")

	require.NoError(t, f.orch.Run(context.Background(), job.ID))

	saved, err := f.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusExtracted, saved.Status)
	require.NotNil(t, saved.Result)
	require.Len(t, saved.Result.Duplicates, 1)
	assert.Equal(t, existing.ID, saved.Result.Duplicates[0].InvoiceID)
	assert.Equal(t, entity.MatchAccessKey, saved.Result.Duplicates[0].MatchType)

	require.Len(t, saved.Warnings, 1)
	assert.Contains(t, saved.Warnings[0], existing.ID.String())
	assert.Contains(t, saved.Warnings[0], "access key match")
}

func TestRunPropagatesInvoiceWarnings(t *testing.T) {
	inv := extractionResult()
	inv.Warnings = []string{"access key failed validation and was dropped"}
	p := &fakeProvider{name: "openai", inv: inv}
	f := newFixture(t, p, &fakeClassifier{}, nil)
	f.store.images["receipts/a.jpg"] = []byte("photo")
	job := seedJob(f, "receipts/a.jpg")

	require.NoError(t, f.orch.Run(context.Background(), job.ID))

	saved, err := f.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Contains(t, saved.Warnings, "access key failed validation and was dropped")
}
