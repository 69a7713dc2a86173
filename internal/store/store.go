// Package store defines the document-store port for the triage core. The
// handlers communicate only through this store; there is no long-lived
// process state. Every shared counter (cured/died counts, stock levels,
// headcounts) is mutated through conditional or increment primitives defined
// here, never through application-level read-modify-write, so concurrent
// writers cannot lose updates.
//
// Two implementations exist: redisstore (production, Lua-scripted atomic
// check-and-apply) and memstore (mutex-guarded in-memory with identical
// semantics, for development and tests).
package store

import (
	"context"

	"github.com/pasturelab/vettriage/internal/domain"
)

// JobStore persists diagnosis job documents.
type JobStore interface {
	// CreateJob durably persists a new processing job. Submission success
	// depends only on this write, never on worker acceptance.
	CreateJob(ctx context.Context, job *domain.DiagnosisJob) error

	// GetJob reads the job document. Returns domain.ErrJobNotFound when absent.
	GetJob(ctx context.Context, id string) (*domain.DiagnosisJob, error)

	// CompleteJob applies the terminal write for a job. The write is
	// conditional on the job still being in processing: the first completion
	// wins and repeated invocations are no-ops, so duplicate worker runs
	// converge on an identical stored result. Returns whether this call
	// applied the write.
	CompleteJob(ctx context.Context, id string, completion domain.JobCompletion) (bool, error)

	// MarkJobTreated archives the job once its result has been adopted into
	// a treatment cohort, recording the cohort as the job's treatment ref.
	MarkJobTreated(ctx context.Context, id, cohortID string) error

	// SaveCorrection persists the correction block onto the job.
	SaveCorrection(ctx context.Context, id string, cor domain.Correction) error
}

// CohortStore persists treatment cohorts and applies the state machine
// atomically.
type CohortStore interface {
	CreateCohort(ctx context.Context, c *domain.TreatmentCohort) error

	// GetCohort reads the cohort. Returns domain.ErrCohortNotFound when absent.
	GetCohort(ctx context.Context, id string) (*domain.TreatmentCohort, error)

	// ApplyProgress atomically validates and applies one progress update with
	// exactly the semantics of domain.TreatmentCohort.ApplyProgress: rejects
	// with StateConflictError on a non-ongoing cohort and RangeError when the
	// count exceeds the remaining headcount, and performs the terminal
	// transition in the same atomic step as the counter update. Returns the
	// outcome and the cohort as observed after the update.
	ApplyProgress(ctx context.Context, id string, kind domain.ProgressKind, count int64) (domain.ProgressOutcome, *domain.TreatmentCohort, error)

	// AddCohortCost atomically accumulates medication and total cost.
	AddCohortCost(ctx context.Context, id string, medication, total domain.Cents) error

	// AddCuredCost atomically accumulates the cured-outcome bookkeeping figure.
	AddCuredCost(ctx context.Context, id string, amount domain.Cents) error
}

// DeathRecordStore persists per-cohort death loss records.
type DeathRecordStore interface {
	// AccumulateDeath creates the cohort's death record on the first death
	// event and accumulates onto it afterwards, keyed by treatmentRef. The
	// count only grows; it is never overwritten. The merge is atomic with
	// respect to concurrent death events for the same cohort.
	AccumulateDeath(ctx context.Context, batchRef, treatmentRef, cause string, count int64, unitCost domain.Cents) (*domain.DeathRecord, error)

	// GetDeathRecord reads the record for a treatment cohort. Returns
	// domain.ErrDeathRecordNotFound when absent.
	GetDeathRecord(ctx context.Context, treatmentRef string) (*domain.DeathRecord, error)

	// MirrorCorrection upserts the correction mirror fields onto the record.
	// Idempotent; tolerates a missing record (no linkage is not an error).
	MirrorCorrection(ctx context.Context, treatmentRef, correctedCause string) error
}

// StockStore persists material stock, the immutable stock ledger, and
// business-facing issue records.
type StockStore interface {
	PutMaterial(ctx context.Context, m *domain.MaterialStock) error

	// GetMaterial reads the stock view. Returns domain.ErrMaterialNotFound
	// when absent.
	GetMaterial(ctx context.Context, materialID string) (*domain.MaterialStock, error)

	// DecrementStock atomically checks that the current stock covers qty and
	// decrements it in the same step. On insufficient stock it returns
	// ResourceUnavailableError and leaves the level untouched; stock never
	// goes negative under concurrent callers.
	DecrementStock(ctx context.Context, materialID string, qty int64) (before, after int64, err error)

	// IncrementStock atomically restores stock, used for restocks and for
	// compensating writes when a later step of an issuance fails.
	IncrementStock(ctx context.Context, materialID string, qty int64) (int64, error)

	// AppendLedger appends an immutable transaction row.
	AppendLedger(ctx context.Context, entry domain.LedgerEntry) error

	// Ledger returns the transaction rows for a material in append order.
	Ledger(ctx context.Context, materialID string) ([]domain.LedgerEntry, error)

	// AppendIssue appends a business-facing issue record.
	AppendIssue(ctx context.Context, rec domain.IssueRecord) error
}

// HeadcountStore persists batch headcount aggregates.
type HeadcountStore interface {
	PutBatch(ctx context.Context, b *domain.BatchHeadcount) error

	// GetBatch reads the headcount view. Returns domain.ErrBatchNotFound
	// when absent.
	GetBatch(ctx context.Context, batchID string) (*domain.BatchHeadcount, error)

	// AddDead atomically adds to the dead count and removes the same number
	// from the live count.
	AddDead(ctx context.Context, batchID string, n int64) error

	// AddSick atomically adjusts the sick count by delta, clamped at zero.
	AddSick(ctx context.Context, batchID string, delta int64) error
}

// ContextStore holds the bounded few-shot context window of corrected,
// high-rated diagnoses.
type ContextStore interface {
	// AdmitExample adds a correction to the candidate pool. Admission is
	// idempotent per job: re-correcting a job replaces its entry.
	AdmitExample(ctx context.Context, ex domain.FewShotExample) error

	// Window returns up to n examples ordered by rating descending, then
	// recency descending.
	Window(ctx context.Context, n int) ([]domain.FewShotExample, error)
}

// Store is the full document-store surface consumed by the triage handlers.
type Store interface {
	JobStore
	CohortStore
	DeathRecordStore
	StockStore
	HeadcountStore
	ContextStore
}
