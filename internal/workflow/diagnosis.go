// Package workflow orchestrates the background diagnosis run with Temporal.
// The workflow carries the at-least-once delivery guarantee for a submitted
// job: Temporal retries the diagnosis activity on transport failure, and the
// activity's terminal write is idempotent, so duplicate runs converge.
package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/pasturelab/vettriage/internal/triage"
)

// TaskQueue is the Temporal task queue diagnosis runs go through.
const TaskQueue = "vettriage-diagnosis"

// DiagnosisWorkflow drives one submitted job to a terminal status. The
// single activity absorbs remote failure through the degradation chain; the
// retry policy here covers only store and infrastructure failures around it.
func DiagnosisWorkflow(ctx workflow.Context, in triage.ProcessInput) error {
	const currentVersion = 1
	_ = workflow.GetVersion(ctx, "diagnosis.v", workflow.DefaultVersion, currentVersion)

	if in.JobID == "" {
		return temporal.NewNonRetryableApplicationError(
			"diagnosis input requires a job id",
			"Validation",
			nil,
		)
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 3 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var acts *triage.Activities
	return workflow.ExecuteActivity(ctx, acts.ProcessDiagnosis, in).Get(ctx, nil)
}
