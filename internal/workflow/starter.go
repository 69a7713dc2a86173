package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/pasturelab/vettriage/internal/triage"
)

// Starter triggers diagnosis workflows through a Temporal client. It
// implements triage.WorkflowStarter.
type Starter struct {
	client client.Client
}

// NewStarter wraps a Temporal client as a workflow starter.
func NewStarter(c client.Client) *Starter {
	return &Starter{client: c}
}

// StartDiagnosis starts the diagnosis workflow for a job. The workflow id is
// derived from the job id, so a retried submission of the same job collapses
// onto the running execution instead of spawning a second one; an
// already-started execution counts as success.
func (s *Starter) StartDiagnosis(ctx context.Context, jobID string) error {
	opts := client.StartWorkflowOptions{
		ID:        "diagnosis-" + jobID,
		TaskQueue: TaskQueue,
	}

	_, err := s.client.ExecuteWorkflow(ctx, opts, DiagnosisWorkflow, triage.ProcessInput{JobID: jobID})
	if err != nil {
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &already) {
			return nil
		}
		return fmt.Errorf("start diagnosis workflow for job %s: %w", jobID, err)
	}
	return nil
}
