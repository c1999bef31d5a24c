package async

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Runner is one pipeline invocation for one job. *pipeline.Orchestrator
// satisfies it.
type Runner interface {
	Run(ctx context.Context, jobID uuid.UUID) error
}

// Dispatcher is the caller-level retry wrapper around Runner.Run. It retries
// only on errors escaping Run (unexpected faults); a job that Run settled
// into ERROR status is a handled business outcome and returns nil, so it is
// never retried here.
type Dispatcher struct {
	runner   Runner
	attempts int
	backoffs []time.Duration
	log      *slog.Logger
}

func NewDispatcher(runner Runner, attempts int, backoffs []time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if attempts <= 0 {
		attempts = 3
	}
	if len(backoffs) == 0 {
		backoffs = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}
	}
	return &Dispatcher{runner: runner, attempts: attempts, backoffs: backoffs, log: logger}
}

// Dispatch runs the job, retrying with increasing backoff. After the final
// attempt the failure is logged and the job is left in whatever state the
// last run reached; the process never crashes over one job.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID uuid.UUID) error {
	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		lastErr = d.runner.Run(ctx, jobID)
		if lastErr == nil {
			return nil
		}
		d.log.Warn("dispatch.run_failed",
			"job_id", jobID, "attempt", attempt, "max_attempts", d.attempts, "error", lastErr)

		if attempt == d.attempts {
			break
		}
		select {
		case <-ctx.Done():
			d.log.Warn("dispatch.cancelled", "job_id", jobID, "error", ctx.Err())
			return lastErr
		case <-time.After(d.backoff(attempt)):
		}
	}
	d.log.Error("dispatch.gave_up", "job_id", jobID, "attempts", d.attempts, "error", lastErr)
	return lastErr
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	if attempt-1 < len(d.backoffs) {
		return d.backoffs[attempt-1]
	}
	return d.backoffs[len(d.backoffs)-1]
}
