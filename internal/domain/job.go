package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubjectType distinguishes a live-animal diagnosis from a necropsy.
type SubjectType string

const (
	// SubjectLive is a diagnosis of living, symptomatic animals.
	SubjectLive SubjectType = "live"

	// SubjectAutopsy is a post-mortem diagnosis from necropsy findings.
	SubjectAutopsy SubjectType = "autopsy"
)

// JobStatus is the lifecycle state of a diagnosis job.
// A job is created as processing and moved exactly once to a terminal
// status by the worker; terminal writes are idempotent.
type JobStatus string

const (
	// StatusProcessing means the worker has not yet produced a terminal write.
	StatusProcessing JobStatus = "processing"

	// StatusCompleted means a schema-stable result is attached. Degraded and
	// fallback results still complete the job.
	StatusCompleted JobStatus = "completed"

	// StatusFailed is reserved for inputs the degradation chain cannot
	// process at all, such as a corrupt job record.
	StatusFailed JobStatus = "failed"
)

// IsTerminal reports whether the status permits no further worker writes.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// FewShotExample is one corrected, high-rated historical diagnosis included
// in the context window of future submissions. It is the system's only
// learning mechanism; no retraining occurs.
type FewShotExample struct {
	JobID          string    `json:"job_id"`
	Symptoms       []string  `json:"symptoms,omitempty"`
	AIDiagnosis    string    `json:"ai_diagnosis"`
	CorrectedCause string    `json:"corrected_cause"`
	AccuracyRating int       `json:"accuracy_rating"`
	CorrectedAt    time.Time `json:"corrected_at"`
}

// JobInputs is the structured symptom/necropsy payload submitted to the gate.
type JobInputs struct {
	Symptoms      []string `json:"symptoms,omitempty"`
	Description   string   `json:"description,omitempty"`
	AffectedCount int64    `json:"affected_count,omitempty"`
	DeathCount    int64    `json:"death_count,omitempty"`
	ImageRefs     []string `json:"image_refs,omitempty"`

	// Context is the few-shot window snapshot taken at submission time.
	Context []FewShotExample `json:"context,omitempty"`
}

// CorrectionType classifies how the veterinarian's correction relates to the
// model's original finding.
type CorrectionType string

const (
	// CorrectionConfirmed means the vet explicitly confirmed the AI finding.
	CorrectionConfirmed CorrectionType = "confirmed"

	// CorrectionSupplement means the corrected cause matches the AI label but
	// the vet added information.
	CorrectionSupplement CorrectionType = "supplement"

	// CorrectionPartialError means the corrected cause differs from the AI label.
	CorrectionPartialError CorrectionType = "partial_error"

	// CorrectionCompleteError means the vet rated accuracy at 2 or below.
	// This classification takes precedence over the cause comparison.
	CorrectionCompleteError CorrectionType = "complete_error"
)

// Correction is the post-hoc veterinarian feedback block on a job.
// Zero value means uncorrected.
type Correction struct {
	IsCorrected      bool           `json:"is_corrected"`
	CorrectedCause   string         `json:"corrected_cause,omitempty"`
	CorrectionReason string         `json:"correction_reason,omitempty"`
	AccuracyRating   int            `json:"accuracy_rating,omitempty"`
	CorrectionType   CorrectionType `json:"correction_type,omitempty"`
	CorrectedBy      string         `json:"corrected_by,omitempty"`
	CorrectedAt      time.Time      `json:"corrected_at,omitempty"`
}

// DiagnosisJob is one request for an automated diagnosis suggestion.
// Created by the submission gate with status processing; mutated exactly once
// to a terminal status by the worker (idempotent re-entry tolerated); mutated
// again, optionally, by the correction loop. HasTreatment archival is set
// when the result is adopted into a treatment cohort.
type DiagnosisJob struct {
	ID          string      `json:"id" validate:"required,uuid"`
	SubmittedBy string      `json:"submitted_by" validate:"required"`
	SubjectType SubjectType `json:"subject_type" validate:"required,oneof=live autopsy"`
	BatchRef    string      `json:"batch_ref,omitempty"`
	Inputs      JobInputs   `json:"inputs"`

	Status JobStatus        `json:"status" validate:"required,oneof=processing completed failed"`
	Result *DiagnosisResult `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`

	Correction   Correction `json:"correction"`
	HasTreatment bool       `json:"has_treatment"`
	TreatmentRef string     `json:"treatment_ref,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// NewDiagnosisJob constructs a processing job with a fresh durable id.
// Gate-level input validation happens before construction; this only
// normalizes and stamps the record.
func NewDiagnosisJob(submittedBy string, subject SubjectType, batchRef string, inputs JobInputs) *DiagnosisJob {
	inputs.Symptoms = cloneStrings(inputs.Symptoms)
	inputs.ImageRefs = cloneStrings(inputs.ImageRefs)
	return &DiagnosisJob{
		ID:          uuid.New().String(),
		SubmittedBy: submittedBy,
		SubjectType: subject,
		BatchRef:    batchRef,
		Inputs:      inputs,
		Status:      StatusProcessing,
		CreatedAt:   time.Now().UTC(),
	}
}

// Validate checks structural integrity of the stored job document.
// A job that fails this check is the one case the worker marks failed.
func (j *DiagnosisJob) Validate() error {
	if err := validate.Struct(j); err != nil {
		return fmt.Errorf("invalid diagnosis job: %w", err)
	}
	return nil
}

// ValidateSubmission enforces the gate's input rules: a live diagnosis
// requires symptoms (tags or free text) and an affected count greater than
// zero; an autopsy requires a death count greater than zero.
func ValidateSubmission(subject SubjectType, in JobInputs) error {
	switch subject {
	case SubjectLive:
		if len(in.Symptoms) == 0 && in.Description == "" {
			return NewValidationError("symptoms", "live diagnosis requires symptom tags or description")
		}
		if in.AffectedCount <= 0 {
			return NewValidationError("affected_count", "live diagnosis requires affected count > 0")
		}
	case SubjectAutopsy:
		if in.DeathCount <= 0 {
			return NewValidationError("death_count", "autopsy requires death count > 0")
		}
	default:
		return NewValidationError("subject_type", fmt.Sprintf("unknown subject type %q", subject))
	}
	return nil
}

// JobCompletion is the typed terminal update the worker applies. Exactly one
// of Result or Error is set: Result completes the job, Error fails it.
type JobCompletion struct {
	Result *DiagnosisResult `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// Status returns the terminal status the completion produces.
func (c JobCompletion) Status() JobStatus {
	if c.Result != nil {
		return StatusCompleted
	}
	return StatusFailed
}

// Validate rejects completions that are empty or ambiguous, and validates
// the attached result against the canonical schema.
func (c JobCompletion) Validate() error {
	if c.Result == nil && c.Error == "" {
		return NewValidationError("completion", "either result or error is required")
	}
	if c.Result != nil && c.Error != "" {
		return NewValidationError("completion", "result and error are mutually exclusive")
	}
	if c.Result != nil {
		return c.Result.Validate()
	}
	return nil
}
