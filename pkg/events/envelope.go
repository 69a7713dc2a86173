// Package events defines the envelope and sink used for domain event
// emission. Events carry observability data (job completions, treatment
// outcomes, stock movements) to downstream consumers; they are never load
// bearing for correctness.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Envelope wraps a domain event payload with routing and idempotency
// metadata. The payload schema varies by Type and Version.
type Envelope struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type routes the event, e.g. "triage.job_completed",
	// "treatment.progress_recorded", "inventory.medication_issued".
	Type string `json:"type"`

	// Source names the emitting component, e.g. "diagnosis-activity".
	Source string `json:"source"`

	// Version enables payload schema evolution; starts at "1.0.0".
	Version string `json:"version"`

	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey deduplicates re-emissions from retried activities.
	// Derived deterministically from workflow context and event content.
	IdempotencyKey string `json:"idempotency_key"`

	// BatchRef correlates the event with a livestock batch when one is
	// involved; empty otherwise.
	BatchRef string `json:"batch_ref,omitempty"`

	// WorkflowID and RunID tie the event back to the Temporal execution
	// that produced it.
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`

	Payload json.RawMessage `json:"payload"`
}

// EventSink receives envelopes with best-effort delivery. Implementations
// must tolerate duplicates and return quickly; callers never fail their
// primary operation on a sink error.
type EventSink interface {
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink discards all events. Used in tests and when emission is
// disabled.
type NoOpEventSink struct{}

// Append implements EventSink.
func (n *NoOpEventSink) Append(_ context.Context, _ Envelope) error { return nil }

// NewNoOpEventSink creates a sink that discards everything.
func NewNoOpEventSink() EventSink { return &NoOpEventSink{} }
