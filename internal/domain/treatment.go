package domain

import (
	"time"

	"github.com/google/uuid"
)

// CohortStatus is the lifecycle state of a treatment cohort.
// Transitions only move forward; cured, died, and completed are terminal.
type CohortStatus string

const (
	// CohortOngoing accepts progress updates.
	CohortOngoing CohortStatus = "ongoing"

	// CohortCured is terminal: every animal in the cohort recovered.
	CohortCured CohortStatus = "cured"

	// CohortDied is terminal: every animal in the cohort died.
	CohortDied CohortStatus = "died"

	// CohortCompleted is terminal: mixed outcome, some cured and some died.
	CohortCompleted CohortStatus = "completed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s CohortStatus) IsTerminal() bool {
	return s == CohortCured || s == CohortDied || s == CohortCompleted
}

// ProgressKind is the outcome being recorded against a cohort.
type ProgressKind string

const (
	// ProgressCured records animals that recovered.
	ProgressCured ProgressKind = "cured"

	// ProgressDied records animals that died under treatment.
	ProgressDied ProgressKind = "died"
)

// TreatmentCohort tracks the animals under one treatment record as aggregate
// counts, not individual identities. Created when a completed diagnosis job
// is adopted into treatment; mutated only through progress recording; never
// deleted, only soft-archived.
//
// Invariant: CuredCount + DiedCount <= InitialCount at every observed state.
type TreatmentCohort struct {
	ID              string `json:"id"`
	BatchRef        string `json:"batch_ref"`
	DiagnosisJobRef string `json:"diagnosis_job_ref,omitempty"`

	InitialCount int64 `json:"initial_count"`
	CuredCount   int64 `json:"cured_count"`
	DiedCount    int64 `json:"died_count"`

	Status CohortStatus `json:"status"`

	Cause       string           `json:"cause,omitempty"`
	Medications []MedicationLine `json:"medications,omitempty"`

	MedicationCost Cents `json:"medication_cost"`
	TotalCost      Cents `json:"total_cost"`
	CuredCost      Cents `json:"cured_cost"`

	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTreatmentCohort creates an ongoing cohort for a batch. The diagnosis
// job reference is optional: treatment can be started without a prior
// AI diagnosis.
func NewTreatmentCohort(batchRef, jobRef, cause string, initialCount int64, meds []MedicationLine) *TreatmentCohort {
	now := time.Now().UTC()
	return &TreatmentCohort{
		ID:              uuid.New().String(),
		BatchRef:        batchRef,
		DiagnosisJobRef: jobRef,
		InitialCount:    initialCount,
		Status:          CohortOngoing,
		Cause:           cause,
		Medications:     meds,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Remaining returns the headcount not yet resolved to an outcome.
func (c *TreatmentCohort) Remaining() int64 {
	return c.InitialCount - c.CuredCount - c.DiedCount
}

// ProgressOutcome describes the effect of one applied progress update.
// Terminal is true when this update resolved the cohort's last animal.
type ProgressOutcome struct {
	Kind      ProgressKind `json:"kind"`
	Count     int64        `json:"count"`
	NewStatus CohortStatus `json:"new_status"`
	Terminal  bool         `json:"terminal"`
	Remaining int64        `json:"remaining"`
}

// ApplyProgress validates and applies one progress update to the cohort
// in place. This is the single authority for the cohort state machine;
// store implementations must reproduce exactly these semantics when they
// apply the update atomically.
//
// Rejections: StateConflictError when the cohort is not ongoing, RangeError
// when the count is not positive or exceeds the remaining headcount. On the
// update that resolves the last animal the status becomes cured (no deaths),
// died (no recoveries), or completed (mixed), and the transition is terminal.
func (c *TreatmentCohort) ApplyProgress(kind ProgressKind, count int64) (ProgressOutcome, error) {
	if c.Status != CohortOngoing {
		return ProgressOutcome{}, &StateConflictError{
			Entity:    "treatment cohort",
			ID:        c.ID,
			State:     string(c.Status),
			Operation: "record progress",
		}
	}

	remaining := c.Remaining()
	if count <= 0 || count > remaining {
		return ProgressOutcome{}, &RangeError{
			Field: "count",
			Value: count,
			Min:   1,
			Max:   remaining,
		}
	}

	switch kind {
	case ProgressCured:
		c.CuredCount += count
	case ProgressDied:
		c.DiedCount += count
	default:
		return ProgressOutcome{}, NewValidationError("kind", "progress kind must be cured or died")
	}

	out := ProgressOutcome{
		Kind:      kind,
		Count:     count,
		NewStatus: c.Status,
		Remaining: c.Remaining(),
	}

	if out.Remaining == 0 {
		switch {
		case c.DiedCount == 0:
			c.Status = CohortCured
		case c.CuredCount == 0:
			c.Status = CohortDied
		default:
			c.Status = CohortCompleted
		}
		out.NewStatus = c.Status
		out.Terminal = true
	}

	c.UpdatedAt = time.Now().UTC()
	return out, nil
}

// CostPerAnimal resolves the per-head cost used for death loss accounting:
// total treatment cost spread across the cohort's initial headcount, falling
// back to the batch's entry unit price when no cost has accrued.
func (c *TreatmentCohort) CostPerAnimal(entryUnitPrice Cents) Cents {
	if c.TotalCost > 0 && c.InitialCount > 0 {
		return c.TotalCost.DividedBy(c.InitialCount)
	}
	return entryUnitPrice
}
