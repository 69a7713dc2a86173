// Package triage implements the job-facing surface of the diagnosis
// pipeline: the submission gate, the idempotent diagnosis activity the
// worker runs, and the client-driven status poller.
package triage

import (
	"context"
	"log/slog"

	"github.com/pasturelab/vettriage/internal/domain"
	"github.com/pasturelab/vettriage/internal/store"
)

// FewShotWindowSize is how many corrected examples the gate snapshots into
// each new job's context.
const FewShotWindowSize = 5

// WorkflowStarter triggers the background diagnosis workflow for a job.
// The production implementation starts a Temporal workflow; the guarantee
// is at-least-once, and a start failure never fails the submission.
type WorkflowStarter interface {
	StartDiagnosis(ctx context.Context, jobID string) error
}

// SubmitRequest is one diagnosis submission.
type SubmitRequest struct {
	SubmittedBy string             `json:"submitted_by"`
	SubjectType domain.SubjectType `json:"subject_type"`
	BatchRef    string             `json:"batch_ref,omitempty"`
	Inputs      domain.JobInputs   `json:"inputs"`
}

// SubmitReceipt is returned immediately on a successful submission; the
// result arrives asynchronously and is read via the poller.
type SubmitReceipt struct {
	JobID  string           `json:"job_id"`
	Status domain.JobStatus `json:"status"`
}

// Gate validates submissions, persists the job, and fires the background
// worker without waiting for it.
type Gate struct {
	jobs    store.JobStore
	window  store.ContextStore
	starter WorkflowStarter
	logger  *slog.Logger
}

// NewGate creates the submission gate. The context store and starter may be
// nil: without a context store jobs carry no few-shot window, and without a
// starter jobs are persisted but never triggered (tests).
func NewGate(jobs store.JobStore, window store.ContextStore, starter WorkflowStarter, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		jobs:    jobs,
		window:  window,
		starter: starter,
		logger:  logger.With("component", "gate"),
	}
}

// Submit validates the request, persists a processing job, and triggers the
// worker asynchronously. Submission success depends only on job durability:
// a trigger failure is logged and the receipt still returned, because the
// job record is the only delivery guarantee the pipeline makes.
func (g *Gate) Submit(ctx context.Context, req SubmitRequest) (SubmitReceipt, error) {
	if req.SubmittedBy == "" {
		return SubmitReceipt{}, domain.NewValidationError("submitted_by", "submitter is required")
	}
	if err := domain.ValidateSubmission(req.SubjectType, req.Inputs); err != nil {
		return SubmitReceipt{}, err
	}

	inputs := req.Inputs
	inputs.Context = g.snapshotWindow(ctx)

	job := domain.NewDiagnosisJob(req.SubmittedBy, req.SubjectType, req.BatchRef, inputs)
	if err := g.jobs.CreateJob(ctx, job); err != nil {
		return SubmitReceipt{}, err
	}

	if g.starter != nil {
		if err := g.starter.StartDiagnosis(ctx, job.ID); err != nil {
			g.logger.Error("diagnosis workflow trigger failed; job remains pollable",
				"job_id", job.ID, "error", err)
		}
	}

	g.logger.Info("diagnosis job submitted",
		"job_id", job.ID,
		"subject_type", job.SubjectType,
		"batch_ref", job.BatchRef)
	return SubmitReceipt{JobID: job.ID, Status: job.Status}, nil
}

// snapshotWindow reads the current few-shot window. Best effort: a read
// failure just means this job goes out without historical context.
func (g *Gate) snapshotWindow(ctx context.Context) []domain.FewShotExample {
	if g.window == nil {
		return nil
	}
	examples, err := g.window.Window(ctx, FewShotWindowSize)
	if err != nil {
		g.logger.Warn("few-shot window read failed; submitting without context", "error", err)
		return nil
	}
	return examples
}
