package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions. Callers should match with
// errors.Is/errors.As rather than string comparison.
var (
	// ErrJobNotFound indicates the referenced diagnosis job does not exist.
	ErrJobNotFound = errors.New("diagnosis job not found")

	// ErrCohortNotFound indicates the referenced treatment cohort does not exist.
	ErrCohortNotFound = errors.New("treatment cohort not found")

	// ErrMaterialNotFound indicates the referenced material does not exist.
	ErrMaterialNotFound = errors.New("material not found")

	// ErrBatchNotFound indicates the referenced animal batch does not exist.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrDeathRecordNotFound indicates no death record exists for the reference.
	ErrDeathRecordNotFound = errors.New("death record not found")

	// ErrNotSubmitter indicates a correction attempt by someone other than the
	// job's original submitter.
	ErrNotSubmitter = errors.New("only the original submitter may correct a diagnosis")
)

// ValidationError indicates bad input rejected at a submission or correction
// boundary. Nothing is persisted when a ValidationError is returned.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error returns the formatted validation failure.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a validation error for a single offending field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// StateConflictError indicates an operation that is invalid for the entity's
// current state, such as recording progress against a terminal cohort.
type StateConflictError struct {
	Entity    string `json:"entity"`
	ID        string `json:"id"`
	State     string `json:"state"`
	Operation string `json:"operation"`
}

// Error returns the formatted state conflict.
func (e *StateConflictError) Error() string {
	return fmt.Sprintf("%s %s is %s: %s not permitted", e.Entity, e.ID, e.State, e.Operation)
}

// RangeError indicates a numeric argument outside its permitted range, such as
// a progress count exceeding the cohort's remaining headcount or an accuracy
// rating outside [1,5].
type RangeError struct {
	Field string `json:"field"`
	Value int64  `json:"value"`
	Min   int64  `json:"min"`
	Max   int64  `json:"max"`
}

// Error returns the formatted range violation.
func (e *RangeError) Error() string {
	return fmt.Sprintf("%s out of range: %d not in [%d,%d]", e.Field, e.Value, e.Min, e.Max)
}

// ResourceUnavailableError indicates insufficient stock for a single
// medication line. It is scoped to that line; other lines in the same batch
// are processed independently.
type ResourceUnavailableError struct {
	Resource  string `json:"resource"`
	ID        string `json:"id"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
}

// Error returns the formatted availability failure.
func (e *ResourceUnavailableError) Error() string {
	return fmt.Sprintf("%s %s unavailable: requested %d, available %d",
		e.Resource, e.ID, e.Requested, e.Available)
}

// UpstreamDegradedError indicates the remote diagnostic call failed or
// returned unparseable output. The degradation chain absorbs this error and
// produces a fallback result; it is never surfaced as a job failure.
type UpstreamDegradedError struct {
	Stage string `json:"stage"`
	Cause error  `json:"-"`
}

// Error returns the formatted upstream failure with its stage.
func (e *UpstreamDegradedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("upstream degraded at %s: %v", e.Stage, e.Cause)
	}
	return fmt.Sprintf("upstream degraded at %s", e.Stage)
}

// Unwrap returns the underlying cause for errors.Is/As traversal.
func (e *UpstreamDegradedError) Unwrap() error { return e.Cause }

// SideEffectWarning captures a bookkeeping propagation failure (ledger,
// finance, headcount). It is logged by the caller and never returned as an
// operation failure: the primary state transition it accompanies has already
// committed and is not unwound.
type SideEffectWarning struct {
	Effect string `json:"effect"`
	Ref    string `json:"ref"`
	Cause  error  `json:"-"`
}

// Error returns the formatted warning for structured logging.
func (e *SideEffectWarning) Error() string {
	return fmt.Sprintf("side effect %s failed for %s: %v", e.Effect, e.Ref, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As traversal.
func (e *SideEffectWarning) Unwrap() error { return e.Cause }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStateConflict reports whether err is a StateConflictError.
func IsStateConflict(err error) bool {
	var sc *StateConflictError
	return errors.As(err, &sc)
}

// IsRange reports whether err is a RangeError.
func IsRange(err error) bool {
	var re *RangeError
	return errors.As(err, &re)
}

// IsResourceUnavailable reports whether err is a ResourceUnavailableError.
func IsResourceUnavailable(err error) bool {
	var ru *ResourceUnavailableError
	return errors.As(err, &ru)
}
