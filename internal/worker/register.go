// Package worker wires workflows and activities into a Temporal worker.
// Registration happens once during startup; activity packages stay free of
// worker concerns.
package worker

import (
	"log/slog"

	sdkworker "go.temporal.io/sdk/worker"

	"github.com/pasturelab/vettriage/internal/diag"
	"github.com/pasturelab/vettriage/internal/ingest"
	"github.com/pasturelab/vettriage/internal/store"
	"github.com/pasturelab/vettriage/internal/triage"
	"github.com/pasturelab/vettriage/internal/workflow"
	"github.com/pasturelab/vettriage/pkg/activity"
	"github.com/pasturelab/vettriage/pkg/events"
)

// RegisterAll registers the diagnosis workflow and its activities with the
// worker. Not thread-safe; call once during startup before the worker runs.
func RegisterAll(w sdkworker.Worker, st store.Store, client diag.Client, sink events.EventSink, logger *slog.Logger) {
	if sink == nil {
		sink = events.NewNoOpEventSink()
	}
	base := activity.NewBaseActivities(sink)

	acts := triage.NewActivities(base, st, client, ingest.NewChain(logger))

	w.RegisterWorkflow(workflow.DiagnosisWorkflow)
	w.RegisterActivity(acts.ProcessDiagnosis)
}
