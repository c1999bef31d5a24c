package async

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	jobIDs   []uuid.UUID
}

func (r *fakeRunner) Run(_ context.Context, jobID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.jobIDs = append(r.jobIDs, jobID)
	if r.calls <= r.failures {
		return r.err
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastBackoffs() []time.Duration {
	return []time.Duration{time.Millisecond, time.Millisecond}
}

func TestDispatchFirstAttemptSucceeds(t *testing.T) {
	r := &fakeRunner{}
	d := NewDispatcher(r, 3, fastBackoffs(), discardLogger())

	require.NoError(t, d.Dispatch(context.Background(), uuid.New()))
	assert.Equal(t, 1, r.calls)
}

func TestDispatchRetriesUntilSuccess(t *testing.T) {
	r := &fakeRunner{failures: 2, err: errors.New("connection reset")}
	d := NewDispatcher(r, 3, fastBackoffs(), discardLogger())

	require.NoError(t, d.Dispatch(context.Background(), uuid.New()))
	assert.Equal(t, 3, r.calls)
}

func TestDispatchGivesUpAfterMaxAttempts(t *testing.T) {
	r := &fakeRunner{failures: 10, err: errors.New("connection reset")}
	d := NewDispatcher(r, 3, fastBackoffs(), discardLogger())

	err := d.Dispatch(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 3, r.calls, "no attempts past the configured maximum")
}

func TestDispatchStopsRetryingOnCancel(t *testing.T) {
	r := &fakeRunner{failures: 10, err: errors.New("connection reset")}
	d := NewDispatcher(r, 3, []time.Duration{time.Hour}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Dispatch(ctx, uuid.New())
	require.Error(t, err)
	assert.Equal(t, 1, r.calls, "cancelled context must cut the backoff wait short")
}

func TestDispatchDefaults(t *testing.T) {
	r := &fakeRunner{failures: 10, err: errors.New("boom")}
	d := NewDispatcher(r, 0, nil, discardLogger())
	assert.Equal(t, 3, d.attempts)
	assert.Len(t, d.backoffs, 3)
}

func TestDispatchBackoffCapsAtLastStep(t *testing.T) {
	d := NewDispatcher(&fakeRunner{}, 5, []time.Duration{time.Millisecond, 2 * time.Millisecond}, discardLogger())
	assert.Equal(t, time.Millisecond, d.backoff(1))
	assert.Equal(t, 2*time.Millisecond, d.backoff(2))
	assert.Equal(t, 2*time.Millisecond, d.backoff(4))
}

func TestWorkerQueueProcessesJobs(t *testing.T) {
	r := &fakeRunner{}
	d := NewDispatcher(r, 1, fastBackoffs(), discardLogger())
	q := NewWorkerQueue(d, discardLogger(), WithWorkers(2), WithQueueSize(8))

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, q.Enqueue(context.Background(), Job{JobID: id, SubmittedAt: time.Now()}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, len(ids), r.calls)
	assert.ElementsMatch(t, ids, r.jobIDs)
}

func TestWorkerQueueEnqueueAfterShutdown(t *testing.T) {
	d := NewDispatcher(&fakeRunner{}, 1, fastBackoffs(), discardLogger())
	q := NewWorkerQueue(d, discardLogger(), WithWorkers(1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Shutdown(ctx)

	assert.NoError(t, q.Enqueue(context.Background(), Job{JobID: uuid.New(), SubmittedAt: time.Now()}))
}
