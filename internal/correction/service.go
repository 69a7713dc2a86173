// Package correction implements the post-hoc veterinarian feedback loop:
// persisting a correction on a diagnosis job, mirroring it onto any linked
// death record, and admitting high-rated corrections into the bounded
// few-shot context window that future submissions consume. This window is
// the system's only learning mechanism; no retraining occurs.
package correction

import (
	"context"
	"log/slog"
	"time"

	"github.com/pasturelab/vettriage/internal/domain"
	"github.com/pasturelab/vettriage/internal/store"
)

// Store is the store surface the correction loop needs.
type Store interface {
	store.JobStore
	store.DeathRecordStore
	store.ContextStore
}

// CorrectRequest is one veterinarian correction of a completed diagnosis.
type CorrectRequest struct {
	JobID       string `json:"job_id"`
	CorrectedBy string `json:"corrected_by"`

	CorrectedCause   string `json:"corrected_cause"`
	CorrectionReason string `json:"correction_reason"`
	AccuracyRating   int    `json:"accuracy_rating"`

	// Confirmed marks an explicit confirmation of the AI finding; only
	// meaningful when the corrected cause matches the original label.
	Confirmed bool `json:"confirmed"`
}

// Service runs the correction loop.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates the correction service.
func NewService(st Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger.With("component", "correction")}
}

// Correct validates and persists a correction. Only the original submitter
// may correct a job, and only a completed job with a result can be
// corrected. The derived correction type follows the rating precedence: a
// rating at or below 2 is complete_error even when the cause is unchanged.
// The correction is mirrored onto the job's linked death record when one
// exists, and admitted to the few-shot pool at rating 4 or above.
func (s *Service) Correct(ctx context.Context, req CorrectRequest) (domain.Correction, error) {
	if err := domain.ValidateCorrection(req.CorrectedCause, req.CorrectionReason, req.AccuracyRating); err != nil {
		return domain.Correction{}, err
	}

	job, err := s.store.GetJob(ctx, req.JobID)
	if err != nil {
		return domain.Correction{}, err
	}
	if job.SubmittedBy != req.CorrectedBy {
		return domain.Correction{}, domain.ErrNotSubmitter
	}
	if job.Status != domain.StatusCompleted || job.Result == nil {
		return domain.Correction{}, &domain.StateConflictError{
			Entity:    "diagnosis job",
			ID:        job.ID,
			State:     string(job.Status),
			Operation: "correct",
		}
	}

	cor := domain.Correction{
		IsCorrected:      true,
		CorrectedCause:   req.CorrectedCause,
		CorrectionReason: req.CorrectionReason,
		AccuracyRating:   req.AccuracyRating,
		CorrectionType: domain.DeriveCorrectionType(
			req.AccuracyRating, req.Confirmed, req.CorrectedCause, job.Result.Primary.Disease),
		CorrectedBy: req.CorrectedBy,
		CorrectedAt: time.Now().UTC(),
	}
	if err := s.store.SaveCorrection(ctx, job.ID, cor); err != nil {
		return domain.Correction{}, err
	}

	s.mirror(ctx, job, cor)
	s.admit(ctx, job, cor)

	s.logger.Info("diagnosis corrected",
		"job_id", job.ID,
		"correction_type", cor.CorrectionType,
		"accuracy_rating", cor.AccuracyRating)
	return cor, nil
}

// Window exposes the read side of the few-shot context window: up to n
// examples ordered by rating descending, then recency descending.
func (s *Service) Window(ctx context.Context, n int) ([]domain.FewShotExample, error) {
	return s.store.Window(ctx, n)
}

// mirror upserts the corrected cause onto the linked death record. Missing
// linkage or a missing record is not an error; a real failure is logged and
// the persisted correction stands.
func (s *Service) mirror(ctx context.Context, job *domain.DiagnosisJob, cor domain.Correction) {
	if job.TreatmentRef == "" {
		return
	}
	if err := s.store.MirrorCorrection(ctx, job.TreatmentRef, cor.CorrectedCause); err != nil {
		s.logger.Warn("bookkeeping side effect failed",
			"error", &domain.SideEffectWarning{Effect: "mirror correction onto death record", Ref: job.TreatmentRef, Cause: err})
	}
}

// admit offers the correction to the few-shot candidate pool when the
// rating qualifies. Best effort.
func (s *Service) admit(ctx context.Context, job *domain.DiagnosisJob, cor domain.Correction) {
	if cor.AccuracyRating < domain.FewShotMinRating {
		return
	}
	err := s.store.AdmitExample(ctx, domain.FewShotExample{
		JobID:          job.ID,
		Symptoms:       job.Inputs.Symptoms,
		AIDiagnosis:    job.Result.Primary.Disease,
		CorrectedCause: cor.CorrectedCause,
		AccuracyRating: cor.AccuracyRating,
		CorrectedAt:    cor.CorrectedAt,
	})
	if err != nil {
		s.logger.Warn("few-shot admission failed", "job_id", job.ID, "error", err)
	}
}
