// Package treatment runs the treatment cohort lifecycle: adopting a
// completed diagnosis job into a cohort and recording cured/died progress
// against it. The counter update is atomic in the store; the bookkeeping
// side effects (death records, headcounts, cured cost) are best effort and
// never unwind an already-committed update.
package treatment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pasturelab/vettriage/internal/domain"
	"github.com/pasturelab/vettriage/internal/store"
)

// Store is the store surface the treatment service needs.
type Store interface {
	store.JobStore
	store.CohortStore
	store.DeathRecordStore
	store.HeadcountStore
}

// StartRequest adopts a diagnosis into treatment.
type StartRequest struct {
	BatchRef string `json:"batch_ref"`

	// JobRef is the completed diagnosis job being adopted. Optional:
	// treatment can start without a prior AI diagnosis.
	JobRef string `json:"job_ref,omitempty"`

	// Cause is the condition under treatment. When empty and a job is
	// linked, the job result's primary disease is used.
	Cause string `json:"cause,omitempty"`

	InitialCount int64 `json:"initial_count"`

	// Medications overrides the result's recommended lines when set.
	Medications []domain.MedicationLine `json:"medications,omitempty"`
}

// Service exposes the cohort operations.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates the treatment service.
func NewService(st Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger.With("component", "treatment")}
}

// StartTreatment creates an ongoing cohort and archives the adopted job.
// The job link is optional; when present the job must be completed and the
// cohort inherits the result's cause and medication lines unless the request
// overrides them.
func (s *Service) StartTreatment(ctx context.Context, req StartRequest) (*domain.TreatmentCohort, error) {
	if req.BatchRef == "" {
		return nil, domain.NewValidationError("batch_ref", "batch reference is required")
	}
	if req.InitialCount <= 0 {
		return nil, domain.NewValidationError("initial_count", "initial count must be > 0")
	}

	cause := req.Cause
	meds := req.Medications

	if req.JobRef != "" {
		job, err := s.store.GetJob(ctx, req.JobRef)
		if err != nil {
			return nil, err
		}
		if job.Status != domain.StatusCompleted || job.Result == nil {
			return nil, &domain.StateConflictError{
				Entity:    "diagnosis job",
				ID:        job.ID,
				State:     string(job.Status),
				Operation: "adopt into treatment",
			}
		}
		if cause == "" {
			cause = job.Result.Primary.Disease
		}
		if len(meds) == 0 {
			meds = job.Result.Treatment.Medications
		}
	}

	cohort := domain.NewTreatmentCohort(req.BatchRef, req.JobRef, cause, req.InitialCount, meds)
	if err := s.store.CreateCohort(ctx, cohort); err != nil {
		return nil, err
	}

	if req.JobRef != "" {
		if err := s.store.MarkJobTreated(ctx, req.JobRef, cohort.ID); err != nil {
			s.logger.Warn("job archival failed after cohort creation",
				"error", &domain.SideEffectWarning{Effect: "mark job treated", Ref: req.JobRef, Cause: err})
		}
	}

	s.logger.Info("treatment started",
		"cohort_id", cohort.ID,
		"batch_ref", cohort.BatchRef,
		"job_ref", req.JobRef,
		"initial_count", cohort.InitialCount)
	return cohort, nil
}

// RecordProgress applies one cured/died update to a cohort. The counter
// update and any terminal transition commit atomically in the store; the
// outcome's side effects run afterwards and are best effort. A side-effect
// failure is logged as a warning and the committed update stands.
func (s *Service) RecordProgress(ctx context.Context, cohortID string, kind domain.ProgressKind, count int64) (domain.ProgressOutcome, error) {
	outcome, cohort, err := s.store.ApplyProgress(ctx, cohortID, kind, count)
	if err != nil {
		return domain.ProgressOutcome{}, err
	}

	switch kind {
	case domain.ProgressCured:
		s.applyCuredEffects(ctx, cohort, count)
	case domain.ProgressDied:
		s.applyDiedEffects(ctx, cohort, count)
	}

	s.logger.Info("treatment progress recorded",
		"cohort_id", cohortID,
		"kind", kind,
		"count", count,
		"status", outcome.NewStatus,
		"remaining", outcome.Remaining)
	return outcome, nil
}

// applyDiedEffects resolves the per-head cost, accumulates onto the cohort's
// death record, and bumps the batch's dead count. Never unwinds the counter.
func (s *Service) applyDiedEffects(ctx context.Context, cohort *domain.TreatmentCohort, count int64) {
	unitCost := s.resolveUnitCost(ctx, cohort)

	if _, err := s.store.AccumulateDeath(ctx, cohort.BatchRef, cohort.ID, cohort.Cause, count, unitCost); err != nil {
		s.warn("accumulate death record", cohort.ID, err)
	}

	if cohort.BatchRef != "" {
		if err := s.store.AddDead(ctx, cohort.BatchRef, count); err != nil {
			s.warn("increment batch dead count", cohort.BatchRef, err)
		}
	}
}

// applyCuredEffects books the cured-outcome cost figure and shrinks the
// batch's sick count.
func (s *Service) applyCuredEffects(ctx context.Context, cohort *domain.TreatmentCohort, count int64) {
	unitCost := s.resolveUnitCost(ctx, cohort)

	if err := s.store.AddCuredCost(ctx, cohort.ID, unitCost.Mul(count)); err != nil {
		s.warn("accumulate cured cost", cohort.ID, err)
	}

	if cohort.BatchRef != "" {
		if err := s.store.AddSick(ctx, cohort.BatchRef, -count); err != nil {
			s.warn("decrement batch sick count", cohort.BatchRef, err)
		}
	}
}

// resolveUnitCost spreads the cohort's accrued cost across its initial
// headcount, falling back to the batch's entry unit price when no cost has
// accrued or the batch is unknown.
func (s *Service) resolveUnitCost(ctx context.Context, cohort *domain.TreatmentCohort) domain.Cents {
	var entryPrice domain.Cents
	if cohort.BatchRef != "" {
		batch, err := s.store.GetBatch(ctx, cohort.BatchRef)
		switch {
		case err == nil:
			entryPrice = batch.EntryUnitPrice
		case errors.Is(err, domain.ErrBatchNotFound):
			// No batch record; cost falls back to zero.
		default:
			s.warn("resolve batch entry price", cohort.BatchRef, err)
		}
	}
	return cohort.CostPerAnimal(entryPrice)
}

func (s *Service) warn(effect, ref string, err error) {
	s.logger.Warn("bookkeeping side effect failed",
		"error", &domain.SideEffectWarning{Effect: effect, Ref: ref, Cause: err})
}
