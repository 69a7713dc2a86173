package ingest

import (
	"strings"

	"github.com/pasturelab/vettriage/internal/domain"
)

// fallbackTemplate is one deterministic keyword→disease rule. The first rule
// whose keywords appear in the job's symptoms or description wins.
type fallbackTemplate struct {
	keywords   []string
	disease    string
	severity   domain.Severity
	urgency    domain.Urgency
	plan       string
	prevention []string
}

// fallbackTemplates covers the common livestock symptom families, matched in
// order. Keywords are lowercase English and Chinese.
var fallbackTemplates = []fallbackTemplate{
	{
		keywords: []string{"咳嗽", "cough", "喘", "wheez", "呼吸", "sneez", "流鼻涕", "nasal"},
		disease:  "respiratory infection",
		severity: domain.SeverityModerate,
		urgency:  domain.UrgencyUrgent,
		plan: "Isolate affected animals, improve ventilation, and start a " +
			"broad-spectrum antibiotic course pending veterinary confirmation.",
		prevention: []string{
			"Improve barn ventilation and reduce stocking density.",
			"Keep bedding dry and ammonia levels low.",
		},
	},
	{
		keywords: []string{"腹泻", "diarrhea", "拉稀", "scour", "vomit", "呕吐", "便血"},
		disease:  "gastroenteritis",
		severity: domain.SeverityModerate,
		urgency:  domain.UrgencyUrgent,
		plan: "Withhold rich feed, provide oral rehydration, and review feed " +
			"and water sources for contamination.",
		prevention: []string{
			"Disinfect feed and water equipment.",
			"Transition feed changes gradually.",
		},
	},
	{
		keywords: []string{"发烧", "发热", "fever", "高温", "体温升高"},
		disease:  "systemic infection",
		severity: domain.SeveritySevere,
		urgency:  domain.UrgencyEmergency,
		plan: "Isolate immediately and call a veterinarian; febrile animals in " +
			"a group setting suggest a contagious process.",
		prevention: []string{
			"Quarantine new arrivals before mixing with the herd.",
		},
	},
	{
		keywords: []string{"跛", "lame", "蹄", "hoof", "关节", "joint"},
		disease:  "lameness / hoof disorder",
		severity: domain.SeverityMild,
		urgency:  domain.UrgencyRoutine,
		plan: "Inspect and trim hooves, move the animal to soft dry footing, " +
			"and monitor for swelling.",
		prevention: []string{
			"Schedule regular hoof trimming.",
		},
	},
	{
		keywords: []string{"不吃", "食欲", "appetite", "anorexia", "厌食", "消瘦", "weight loss"},
		disease:  "nutritional or metabolic disorder",
		severity: domain.SeverityMild,
		urgency:  domain.UrgencyRoutine,
		plan: "Review ration composition and fresh water access; deworm if the " +
			"parasite control schedule has lapsed.",
		prevention: []string{
			"Maintain a regular deworming schedule.",
		},
	},
}

// defaultTemplate is the last resort when no keyword family matches. It still
// conforms to the canonical schema so the job completes.
var defaultTemplate = fallbackTemplate{
	disease:  "undetermined condition",
	severity: domain.SeverityModerate,
	urgency:  domain.UrgencyUrgent,
	plan: "Automated diagnosis was unavailable and the symptoms did not match " +
		"a known pattern. Have a veterinarian examine the animals directly.",
	prevention: []string{
		"Record symptom onset and progression for the veterinary visit.",
	},
}

const fallbackConfidence = 30

// buildFallback is tier 3: a deterministic keyword→disease→template mapping
// over the job's own inputs. It cannot fail and never contacts the remote
// service, so usage and model stay zero.
func buildFallback(inputs domain.JobInputs) *domain.DiagnosisResult {
	text := strings.ToLower(strings.Join(inputs.Symptoms, " ") + " " + inputs.Description)

	tmpl := defaultTemplate
	for _, candidate := range fallbackTemplates {
		if matchesAny(text, candidate.keywords) {
			tmpl = candidate
			break
		}
	}

	return &domain.DiagnosisResult{
		SchemaVersion: domain.ResultSchemaVersion,
		Tier:          domain.TierFallback,
		IsFallback:    true,
		Primary:       domain.Finding{Disease: tmpl.disease, Confidence: fallbackConfidence},
		Severity:      tmpl.severity,
		Urgency:       tmpl.urgency,
		Treatment:     domain.TreatmentAdvice{Plan: tmpl.plan},
		Prevention:    tmpl.prevention,
		FollowUp:      "Seek an in-person veterinary examination.",
	}
}

func matchesAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
