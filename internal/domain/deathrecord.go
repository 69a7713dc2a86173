package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeathRecord is the financial loss record for deaths within one treatment
// cohort. The first death event for a cohort creates the record; subsequent
// death events accumulate onto it, keyed by TreatmentRef. The count is
// monotonically non-decreasing and never overwritten.
type DeathRecord struct {
	ID           string `json:"id"`
	BatchRef     string `json:"batch_ref"`
	TreatmentRef string `json:"treatment_ref,omitempty"`

	Count int64  `json:"count"`
	Cause string `json:"cause"`

	UnitCost  Cents `json:"unit_cost"`
	TotalLoss Cents `json:"total_loss"`

	// Correction mirror, kept in sync with the linked diagnosis job.
	IsCorrected    bool   `json:"is_corrected"`
	CorrectedCause string `json:"corrected_cause,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDeathRecord creates the first death record for a cohort.
func NewDeathRecord(batchRef, treatmentRef, cause string, count int64, unitCost Cents) *DeathRecord {
	now := time.Now().UTC()
	return &DeathRecord{
		ID:           uuid.New().String(),
		BatchRef:     batchRef,
		TreatmentRef: treatmentRef,
		Count:        count,
		Cause:        cause,
		UnitCost:     unitCost,
		TotalLoss:    unitCost.Mul(count),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Accumulate merges a further death event onto the record. The count and
// total loss only grow; the unit cost is refreshed to the latest resolved
// per-head cost so the incremental loss reflects current treatment spend.
func (r *DeathRecord) Accumulate(count int64, unitCost Cents) {
	r.Count += count
	r.UnitCost = unitCost
	r.TotalLoss = r.TotalLoss.Add(unitCost.Mul(count))
	r.UpdatedAt = time.Now().UTC()
}

// MirrorCorrection applies the correction block from the linked diagnosis
// job. Safe to apply repeatedly; the mirror converges to the latest
// correction.
func (r *DeathRecord) MirrorCorrection(correctedCause string) {
	r.IsCorrected = true
	r.CorrectedCause = correctedCause
	r.UpdatedAt = time.Now().UTC()
}
