package domain

// Accuracy rating bounds for corrections.
const (
	MinAccuracyRating = 1
	MaxAccuracyRating = 5

	// CompleteErrorRating is the rating at or below which a correction is
	// classified complete_error regardless of the cause comparison. This
	// precedence is deliberate: a vet who rates the diagnosis 2 or lower is
	// declaring it wrong even if the cause string happens to match.
	CompleteErrorRating = 2

	// FewShotMinRating is the minimum rating for a correction to become a
	// few-shot context candidate.
	FewShotMinRating = 4
)

// DeriveCorrectionType classifies a correction against the model's original
// label. Precedence order:
//  1. rating <= CompleteErrorRating → complete_error, overriding everything;
//  2. explicit confirmation without a cause change → confirmed;
//  3. corrected cause equal to the AI label → supplement;
//  4. otherwise → partial_error.
func DeriveCorrectionType(rating int, confirmed bool, correctedCause, aiLabel string) CorrectionType {
	if rating <= CompleteErrorRating {
		return CorrectionCompleteError
	}
	if confirmed && correctedCause == aiLabel {
		return CorrectionConfirmed
	}
	if correctedCause == aiLabel {
		return CorrectionSupplement
	}
	return CorrectionPartialError
}

// ValidateCorrection enforces the correction input rules: rating within
// [1,5], both strings non-empty.
func ValidateCorrection(correctedCause, reason string, rating int) error {
	if rating < MinAccuracyRating || rating > MaxAccuracyRating {
		return &RangeError{
			Field: "accuracy_rating",
			Value: int64(rating),
			Min:   MinAccuracyRating,
			Max:   MaxAccuracyRating,
		}
	}
	if correctedCause == "" {
		return NewValidationError("corrected_cause", "corrected cause is required")
	}
	if reason == "" {
		return NewValidationError("correction_reason", "correction reason is required")
	}
	return nil
}
