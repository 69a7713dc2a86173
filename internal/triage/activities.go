package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pasturelab/vettriage/internal/diag"
	"github.com/pasturelab/vettriage/internal/domain"
	"github.com/pasturelab/vettriage/internal/ingest"
	"github.com/pasturelab/vettriage/internal/store"
	"github.com/pasturelab/vettriage/pkg/activity"
	"github.com/pasturelab/vettriage/pkg/events"
)

// ProcessInput is the diagnosis activity's input.
type ProcessInput struct {
	JobID string `json:"job_id"`
}

// Activities implements the background diagnosis worker contract: given a
// job id, eventually mark the job completed or failed, tolerating duplicate
// invocations. The terminal write is conditional in the store, so re-entry
// after a transport failure converges on a byte-identical stored result.
type Activities struct {
	activity.BaseActivities

	jobs   store.JobStore
	client diag.Client
	chain  *ingest.Chain
}

// NewActivities creates the diagnosis activities.
func NewActivities(base activity.BaseActivities, jobs store.JobStore, client diag.Client, chain *ingest.Chain) *Activities {
	return &Activities{
		BaseActivities: base,
		jobs:           jobs,
		client:         client,
		chain:          chain,
	}
}

// ProcessDiagnosis runs one diagnosis attempt to a terminal job status.
// Remote failure never fails the job: the degradation chain always yields a
// schema-stable result, so the only failed outcome is a job record the
// chain cannot process at all.
func (a *Activities) ProcessDiagnosis(ctx context.Context, in ProcessInput) error {
	job, err := a.jobs.GetJob(ctx, in.JobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", in.JobID, err)
	}
	if job.Status.IsTerminal() {
		activity.SafeLog(ctx, "job already terminal, skipping", "job_id", job.ID, "status", job.Status)
		return nil
	}

	completion := a.diagnose(ctx, job)
	applied, err := a.jobs.CompleteJob(ctx, job.ID, completion)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	if !applied {
		activity.SafeLog(ctx, "duplicate completion ignored", "job_id", job.ID)
		return nil
	}

	a.emitCompletion(ctx, job, completion)
	return nil
}

// diagnose produces the terminal update for a job. A structurally corrupt
// job record is the one path to a failed status; everything else completes
// through the degradation chain.
func (a *Activities) diagnose(ctx context.Context, job *domain.DiagnosisJob) domain.JobCompletion {
	if err := job.Validate(); err != nil {
		activity.SafeLogError(ctx, "unprocessable job record", "job_id", job.ID, "error", err)
		return domain.JobCompletion{Error: err.Error()}
	}

	resp, err := a.client.Diagnose(ctx, buildRequest(job))
	if err != nil {
		return domain.JobCompletion{Result: a.chain.FromFailure(job.ID, err, job.Inputs)}
	}
	return domain.JobCompletion{Result: a.chain.FromResponse(job.ID, resp, job.Inputs)}
}

const systemPrompt = "You are a livestock veterinary diagnostician. " +
	"Reply with a single JSON object using keys: primary {disease, confidence}, " +
	"differentials, severity (mild|moderate|severe), urgency (routine|urgent|emergency), " +
	"treatment {plan, medications}, prevention, follow_up."

// buildRequest assembles the role-tagged conversation for a job: the system
// prompt, the few-shot window snapshot as prior exchanges, and the job's own
// inputs as the final user message.
func buildRequest(job *domain.DiagnosisJob) *diag.Request {
	messages := []diag.Message{{Role: diag.RoleSystem, Content: systemPrompt}}

	for _, ex := range job.Inputs.Context {
		messages = append(messages,
			diag.Message{Role: diag.RoleUser, Content: "Symptoms: " + strings.Join(ex.Symptoms, ", ")},
			diag.Message{Role: diag.RoleAssistant, Content: fmt.Sprintf(
				"Initial finding %q was corrected by a veterinarian to %q.",
				ex.AIDiagnosis, ex.CorrectedCause)},
		)
	}
	messages = append(messages, diag.Message{Role: diag.RoleUser, Content: describeCase(job)})

	task := diag.TaskLiveDiagnosis
	priority := diag.PriorityNormal
	if job.SubjectType == domain.SubjectAutopsy {
		task = diag.TaskAutopsy
		priority = diag.PriorityHigh
	}

	return &diag.Request{
		Task:           task,
		Priority:       priority,
		Messages:       messages,
		ImageRefs:      job.Inputs.ImageRefs,
		IdempotencyKey: job.ID,
	}
}

func describeCase(job *domain.DiagnosisJob) string {
	var b strings.Builder
	if len(job.Inputs.Symptoms) > 0 {
		fmt.Fprintf(&b, "Symptoms: %s. ", strings.Join(job.Inputs.Symptoms, ", "))
	}
	if job.Inputs.Description != "" {
		fmt.Fprintf(&b, "Description: %s. ", job.Inputs.Description)
	}
	switch job.SubjectType {
	case domain.SubjectAutopsy:
		fmt.Fprintf(&b, "Deaths so far: %d.", job.Inputs.DeathCount)
	default:
		fmt.Fprintf(&b, "Affected animals: %d.", job.Inputs.AffectedCount)
	}
	return b.String()
}

func (a *Activities) emitCompletion(ctx context.Context, job *domain.DiagnosisJob, completion domain.JobCompletion) {
	wfCtx := a.GetWorkflowContext(ctx)

	payload, err := json.Marshal(map[string]any{
		"job_id": job.ID,
		"status": completion.Status(),
	})
	if err != nil {
		activity.SafeLogError(ctx, "marshal completion event", "job_id", job.ID, "error", err)
		return
	}

	a.EmitEventSafe(ctx, events.Envelope{
		ID:             uuid.New().String(),
		Type:           "triage.job_completed",
		Source:         "diagnosis-activity",
		Version:        "1.0.0",
		Timestamp:      time.Now().UTC(),
		IdempotencyKey: "job-completed:" + job.ID,
		BatchRef:       job.BatchRef,
		WorkflowID:     wfCtx.WorkflowID,
		RunID:          wfCtx.RunID,
		Payload:        payload,
	}, "diagnosis job completion")
}
