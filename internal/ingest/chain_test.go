package ingest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasturelab/vettriage/internal/diag"
	"github.com/pasturelab/vettriage/internal/domain"
)

const canonicalReply = `{
	"primary": {"disease": "swine fever", "confidence": 88},
	"differentials": [{"disease": "african swine fever", "confidence": 30}],
	"severity": "severe",
	"urgency": "emergency",
	"treatment": {
		"plan": "Quarantine the barn and notify the authorities.",
		"medications": [{"name": "supportive electrolytes", "quantity": 10, "duration_days": 5}]
	},
	"prevention": ["Vaccinate incoming stock."],
	"follow_up": "Daily temperature checks."
}`

func TestChainFromResponse(t *testing.T) {
	chain := NewChain(nil)
	inputs := domain.JobInputs{Symptoms: []string{"发烧"}, AffectedCount: 12}

	t.Run("structured tier parses canonical schema", func(t *testing.T) {
		resp := &diag.Response{
			Content: canonicalReply,
			Model:   "vet-diag-1",
			Usage:   diag.Usage{PromptTokens: 200, CompletionTokens: 150, CostCents: 4, LatencyMs: 900},
		}
		result := chain.FromResponse("job-1", resp, inputs)

		require.NoError(t, result.Validate())
		assert.Equal(t, domain.TierStructured, result.Tier)
		assert.False(t, result.IsFallback)
		assert.Equal(t, "swine fever", result.Primary.Disease)
		assert.Equal(t, 88, result.Primary.Confidence)
		assert.Equal(t, domain.SeveritySevere, result.Severity)
		assert.Len(t, result.Treatment.Medications, 1)
		assert.Equal(t, "vet-diag-1", result.Model)
		assert.EqualValues(t, 4, result.Usage.CostCents)
	})

	t.Run("structured tier tolerates fenced code block", func(t *testing.T) {
		resp := &diag.Response{Content: "```json\n" + canonicalReply + "\n```"}
		result := chain.FromResponse("job-2", resp, inputs)

		assert.Equal(t, domain.TierStructured, result.Tier)
		assert.Equal(t, "swine fever", result.Primary.Disease)
	})

	t.Run("prose reply degrades to heuristic tier", func(t *testing.T) {
		resp := &diag.Response{
			Content: "The herd most likely has pneumonia, confidence around 72%. " +
				"The condition appears moderate at this stage.",
			Model: "vet-diag-1",
		}
		result := chain.FromResponse("job-3", resp, inputs)

		require.NoError(t, result.Validate())
		assert.Equal(t, domain.TierHeuristic, result.Tier)
		assert.False(t, result.IsFallback)
		assert.Equal(t, "pneumonia", result.Primary.Disease)
		assert.Equal(t, 72, result.Primary.Confidence)
		assert.Equal(t, domain.SeverityModerate, result.Severity)
		assert.NotEmpty(t, result.Differentials)
	})

	t.Run("heuristic recovers chinese disease label", func(t *testing.T) {
		resp := &diag.Response{Content: "初步判断为肺炎，病情严重，建议立即隔离。"}
		result := chain.FromResponse("job-4", resp, inputs)

		assert.Equal(t, domain.TierHeuristic, result.Tier)
		assert.Equal(t, "pneumonia", result.Primary.Disease)
		assert.Equal(t, domain.SeveritySevere, result.Severity)
		assert.Equal(t, domain.UrgencyEmergency, result.Urgency)
	})

	t.Run("unrecognizable text falls through to rule-based tier", func(t *testing.T) {
		resp := &diag.Response{Content: "I am sorry, I cannot help with that."}
		result := chain.FromResponse("job-5", resp, domain.JobInputs{
			Symptoms: []string{"咳嗽", "流鼻涕"},
		})

		require.NoError(t, result.Validate())
		assert.Equal(t, domain.TierFallback, result.Tier)
		assert.True(t, result.IsFallback)
		assert.Equal(t, "respiratory infection", result.Primary.Disease)
	})
}

func TestChainFromFailure(t *testing.T) {
	chain := NewChain(nil)

	t.Run("cough symptom maps to respiratory infection", func(t *testing.T) {
		result := chain.FromFailure("job-6", errors.New("dial tcp: timeout"), domain.JobInputs{
			Symptoms:      []string{"咳嗽"},
			AffectedCount: 5,
		})

		require.NoError(t, result.Validate())
		assert.Equal(t, domain.TierFallback, result.Tier)
		assert.True(t, result.IsFallback)
		assert.Equal(t, "respiratory infection", result.Primary.Disease)
		assert.NotEmpty(t, result.Treatment.Plan)
		assert.Zero(t, result.Usage.CostCents)
		assert.Empty(t, result.Model)
	})

	t.Run("description keywords match when symptom tags are empty", func(t *testing.T) {
		result := chain.FromFailure("job-7", errors.New("quota exceeded"), domain.JobInputs{
			Description: "Several calves have watery diarrhea since yesterday.",
		})

		assert.Equal(t, "gastroenteritis", result.Primary.Disease)
		assert.True(t, result.IsFallback)
	})

	t.Run("no keyword match yields the undetermined template", func(t *testing.T) {
		result := chain.FromFailure("job-8", errors.New("service unavailable"), domain.JobInputs{
			Symptoms: []string{"unusual behavior"},
		})

		require.NoError(t, result.Validate())
		assert.Equal(t, "undetermined condition", result.Primary.Disease)
		assert.True(t, result.IsFallback)
	})
}

// Results from every tier must conform to one identical schema.
func TestTierSchemaStability(t *testing.T) {
	chain := NewChain(nil)
	inputs := domain.JobInputs{Symptoms: []string{"咳嗽"}}

	structured := chain.FromResponse("job-a", &diag.Response{Content: canonicalReply}, inputs)
	heuristic := chain.FromResponse("job-b", &diag.Response{Content: "likely pneumonia, 60%"}, inputs)
	fallback := chain.FromFailure("job-c", errors.New("down"), inputs)

	for _, result := range []*domain.DiagnosisResult{structured, heuristic, fallback} {
		require.NoError(t, result.Validate())
		assert.Equal(t, domain.ResultSchemaVersion, result.SchemaVersion)
	}
	assert.False(t, structured.IsFallback)
	assert.False(t, heuristic.IsFallback)
	assert.True(t, fallback.IsFallback)
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.in))
		})
	}
}
