// Package domain provides the core types and business rules for the
// veterinary triage pipeline: diagnosis jobs, schema-stable diagnosis
// results, treatment cohorts, death records, and the inventory aggregates
// they touch. Types are designed so that every consumer of a diagnosis
// result is agnostic to which degradation tier produced it.
package domain

import (
	"fmt"
)

// ResultSchemaVersion is the current DiagnosisResult schema version.
// All degradation tiers emit this version; bump it only with a migration
// path for stored jobs.
const ResultSchemaVersion = "1.0"

// ResultTier identifies which degradation tier produced a result.
// Downstream consumers must not branch on the tier for anything except
// display; the schema is identical across tiers.
type ResultTier string

const (
	// TierStructured is the primary tier: the remote output parsed as the
	// canonical schema.
	TierStructured ResultTier = "structured"

	// TierHeuristic is the second tier: keyword/regex recovery from
	// unparseable remote output.
	TierHeuristic ResultTier = "heuristic"

	// TierFallback is the final tier: a deterministic rule-based template
	// used when the remote call failed entirely.
	TierFallback ResultTier = "fallback"
)

// Severity grades how serious the diagnosed condition is.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// Urgency grades how quickly treatment should begin.
type Urgency string

const (
	UrgencyRoutine   Urgency = "routine"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
)

// Finding pairs a disease label with the model's confidence in it.
type Finding struct {
	Disease    string `json:"disease" validate:"required"`
	Confidence int    `json:"confidence" validate:"min=0,max=100"`
}

// MedicationLine is one discrete medication recommendation within a
// treatment plan. MaterialID links the line to inventory when the
// recommendation is adopted; it may be empty for free-text suggestions.
type MedicationLine struct {
	MaterialID   string `json:"material_id,omitempty"`
	Name         string `json:"name" validate:"required"`
	Dosage       string `json:"dosage,omitempty"`
	Quantity     int64  `json:"quantity" validate:"min=0"`
	DurationDays int    `json:"duration_days" validate:"min=0"`
}

// TreatmentAdvice is the actionable recommendation attached to a result.
type TreatmentAdvice struct {
	Plan        string           `json:"plan"`
	Medications []MedicationLine `json:"medications,omitempty" validate:"dive"`
}

// ResultUsage carries the remote call's accounting for the result.
// Zero for fallback results that never reached the remote service.
type ResultUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	CostCents        Cents `json:"cost_cents"`
	LatencyMs        int64 `json:"latency_ms"`
}

// DiagnosisResult is the schema-stable output of the degradation chain.
// Every tier emits this exact shape so that treatment adoption, reporting,
// and correction are tier-agnostic. The struct is stored verbatim on the
// job document; repeated identical completions must leave it byte-identical.
type DiagnosisResult struct {
	SchemaVersion string     `json:"schema_version" validate:"required"`
	Tier          ResultTier `json:"tier" validate:"required,oneof=structured heuristic fallback"`
	IsFallback    bool       `json:"is_fallback"`

	Primary       Finding   `json:"primary" validate:"required"`
	Differentials []Finding `json:"differentials,omitempty" validate:"dive"`
	Severity      Severity  `json:"severity" validate:"required,oneof=mild moderate severe"`
	Urgency       Urgency   `json:"urgency" validate:"required,oneof=routine urgent emergency"`

	Treatment  TreatmentAdvice `json:"treatment"`
	Prevention []string        `json:"prevention,omitempty"`
	FollowUp   string          `json:"follow_up,omitempty"`

	Model string      `json:"model,omitempty"`
	Usage ResultUsage `json:"usage"`
}

// Validate checks the result against the canonical schema. All three
// degradation tiers must produce a result that passes this check.
func (r *DiagnosisResult) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid diagnosis result: %w", err)
	}
	return nil
}
