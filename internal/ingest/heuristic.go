package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pasturelab/vettriage/internal/diag"
	"github.com/pasturelab/vettriage/internal/domain"
)

// confidencePattern matches a percentage anywhere in free text, e.g.
// "confidence: 85%" or "约85%的可能".
var confidencePattern = regexp.MustCompile(`(\d{1,3})\s*%`)

// diseaseVocabulary is the closed set of labels tier 2 is allowed to recover
// from free text. Keys are lowercase match terms (English and Chinese);
// values are the canonical labels.
var diseaseVocabulary = []struct {
	term  string
	label string
}{
	{"respiratory infection", "respiratory infection"},
	{"呼吸道感染", "respiratory infection"},
	{"pneumonia", "pneumonia"},
	{"肺炎", "pneumonia"},
	{"foot-and-mouth", "foot-and-mouth disease"},
	{"口蹄疫", "foot-and-mouth disease"},
	{"swine fever", "swine fever"},
	{"猪瘟", "swine fever"},
	{"avian influenza", "avian influenza"},
	{"禽流感", "avian influenza"},
	{"newcastle", "newcastle disease"},
	{"新城疫", "newcastle disease"},
	{"coccidiosis", "coccidiosis"},
	{"球虫病", "coccidiosis"},
	{"gastroenteritis", "gastroenteritis"},
	{"肠胃炎", "gastroenteritis"},
	{"mastitis", "mastitis"},
	{"乳腺炎", "mastitis"},
	{"parasit", "parasitic infection"},
	{"寄生虫", "parasitic infection"},
}

// severityKeywords maps free-text severity cues to the graded enum. Scanned
// in order; the first severe cue wins over milder ones.
var severityKeywords = []struct {
	term     string
	severity domain.Severity
	urgency  domain.Urgency
}{
	{"severe", domain.SeveritySevere, domain.UrgencyEmergency},
	{"critical", domain.SeveritySevere, domain.UrgencyEmergency},
	{"严重", domain.SeveritySevere, domain.UrgencyEmergency},
	{"危急", domain.SeveritySevere, domain.UrgencyEmergency},
	{"moderate", domain.SeverityModerate, domain.UrgencyUrgent},
	{"中度", domain.SeverityModerate, domain.UrgencyUrgent},
	{"mild", domain.SeverityMild, domain.UrgencyRoutine},
	{"轻微", domain.SeverityMild, domain.UrgencyRoutine},
	{"轻度", domain.SeverityMild, domain.UrgencyRoutine},
}

// genericDifferentials is the fixed differential set attached to every
// heuristic result; the recovered text is not trusted for anything beyond
// the primary label.
var genericDifferentials = []domain.Finding{
	{Disease: "nutritional deficiency", Confidence: 20},
	{Disease: "environmental stress", Confidence: 15},
	{Disease: "secondary bacterial infection", Confidence: 10},
}

const defaultHeuristicConfidence = 40

// extractHeuristic is tier 2: recover a confidence percentage, a disease
// label from the closed vocabulary, and a severity cue from unparseable
// text. A text with no recognizable disease label fails the tier.
func extractHeuristic(resp *diag.Response) (*domain.DiagnosisResult, error) {
	text := strings.ToLower(resp.Content)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty content")
	}

	label := ""
	for _, entry := range diseaseVocabulary {
		if strings.Contains(text, entry.term) {
			label = entry.label
			break
		}
	}
	if label == "" {
		return nil, fmt.Errorf("no disease label from the closed vocabulary found")
	}

	confidence := defaultHeuristicConfidence
	if m := confidencePattern.FindStringSubmatch(resp.Content); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v >= 0 && v <= 100 {
			confidence = v
		}
	}

	severity := domain.SeverityModerate
	urgency := domain.UrgencyUrgent
	for _, cue := range severityKeywords {
		if strings.Contains(text, cue.term) {
			severity = cue.severity
			urgency = cue.urgency
			break
		}
	}

	result := &domain.DiagnosisResult{
		SchemaVersion: domain.ResultSchemaVersion,
		Tier:          domain.TierHeuristic,
		Primary:       domain.Finding{Disease: label, Confidence: confidence},
		Differentials: genericDifferentials,
		Severity:      severity,
		Urgency:       urgency,
		Treatment: domain.TreatmentAdvice{
			Plan: "Automated recovery from an unstructured reply. Confirm the " +
				"diagnosis with a veterinarian before medicating.",
		},
		FollowUp: "Re-examine within 24 hours.",
		Model:    resp.Model,
		Usage:    usageFromResponse(resp),
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}
