package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pasturelab/vettriage/internal/domain"
	"github.com/pasturelab/vettriage/internal/store"
)

// PollOutcome is the poller's verdict on a job.
type PollOutcome string

const (
	// PollCompleted means the job reached completed within the budget.
	PollCompleted PollOutcome = "completed"

	// PollFailed means the job reached failed within the budget.
	PollFailed PollOutcome = "failed"

	// PollTimedOut means the attempt budget ran out with the job still
	// processing. The job is not cancelled; a later read may still observe
	// a legitimate terminal state, which callers must tolerate.
	PollTimedOut PollOutcome = "timed_out"
)

// Default polling cadence.
const (
	DefaultPollInterval = time.Second
	DefaultPollAttempts = 120
)

// Poller repeatedly reads a job until it turns terminal or the attempt
// budget is exhausted. The poller is purely client-driven: it never touches
// the job, only observes it.
type Poller struct {
	jobs     store.JobStore
	interval time.Duration
	attempts int
	logger   *slog.Logger
}

// NewPoller creates a poller with the default cadence. Zero values for
// interval or attempts select the defaults.
func NewPoller(jobs store.JobStore, interval time.Duration, attempts int, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		jobs:     jobs,
		interval: interval,
		attempts: attempts,
		logger:   logger.With("component", "poller"),
	}
}

// Wait blocks until the job is terminal, the budget is exhausted, or ctx
// ends. Transient read errors are retried on the next tick and never
// reported as a terminal failure; a missing job is not transient and ends
// the wait immediately.
func (p *Poller) Wait(ctx context.Context, jobID string) (PollOutcome, *domain.DiagnosisJob, error) {
	var lastJob *domain.DiagnosisJob

	for attempt := 0; attempt < p.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.interval):
			case <-ctx.Done():
				return "", nil, fmt.Errorf("poll wait cancelled: %w", ctx.Err())
			}
		}

		job, err := p.jobs.GetJob(ctx, jobID)
		if err != nil {
			if errors.Is(err, domain.ErrJobNotFound) {
				return "", nil, err
			}
			p.logger.Warn("transient job read failure",
				"job_id", jobID, "attempt", attempt+1, "error", err)
			continue
		}
		lastJob = job

		switch job.Status {
		case domain.StatusCompleted:
			return PollCompleted, job, nil
		case domain.StatusFailed:
			return PollFailed, job, nil
		}
	}

	p.logger.Info("poll budget exhausted, job still processing",
		"job_id", jobID, "attempts", p.attempts)
	return PollTimedOut, lastJob, nil
}
