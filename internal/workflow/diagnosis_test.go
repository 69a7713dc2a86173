package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/pasturelab/vettriage/internal/triage"
)

func TestDiagnosisWorkflow(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}

	t.Run("runs the diagnosis activity with the job id", func(t *testing.T) {
		env := testSuite.NewTestWorkflowEnvironment()
		defer env.AssertExpectations(t)

		var acts *triage.Activities
		env.OnActivity(acts.ProcessDiagnosis, mock.Anything, triage.ProcessInput{JobID: "job-1"}).
			Return(nil).Once()

		env.ExecuteWorkflow(DiagnosisWorkflow, triage.ProcessInput{JobID: "job-1"})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())
	})

	t.Run("empty job id fails without retries", func(t *testing.T) {
		env := testSuite.NewTestWorkflowEnvironment()
		defer env.AssertExpectations(t)

		env.ExecuteWorkflow(DiagnosisWorkflow, triage.ProcessInput{})

		require.True(t, env.IsWorkflowCompleted())
		err := env.GetWorkflowError()
		require.Error(t, err)

		var appErr *temporal.ApplicationError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "Validation", appErr.Type())
		assert.True(t, appErr.NonRetryable())
	})

	t.Run("activity failure surfaces after retries", func(t *testing.T) {
		env := testSuite.NewTestWorkflowEnvironment()
		defer env.AssertExpectations(t)

		var acts *triage.Activities
		env.OnActivity(acts.ProcessDiagnosis, mock.Anything, triage.ProcessInput{JobID: "job-1"}).
			Return(temporal.NewNonRetryableApplicationError("store down", "Store", nil))

		env.ExecuteWorkflow(DiagnosisWorkflow, triage.ProcessInput{JobID: "job-1"})

		require.True(t, env.IsWorkflowCompleted())
		assert.Error(t, env.GetWorkflowError())
	})
}
