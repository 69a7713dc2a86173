package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pasturelab/vettriage/internal/diag"
	"github.com/pasturelab/vettriage/internal/domain"
)

// structuredPayload is the canonical wire schema the remote model is prompted
// to emit. It mirrors the stored result minus the envelope fields the chain
// stamps itself.
type structuredPayload struct {
	Primary       domain.Finding         `json:"primary"`
	Differentials []domain.Finding       `json:"differentials"`
	Severity      domain.Severity        `json:"severity"`
	Urgency       domain.Urgency         `json:"urgency"`
	Treatment     domain.TreatmentAdvice `json:"treatment"`
	Prevention    []string               `json:"prevention"`
	FollowUp      string                 `json:"follow_up"`
}

// parseStructured is tier 1: parse the remote content as the canonical
// schema. Models routinely wrap JSON in a fenced code block, so the fence is
// stripped before parsing.
func parseStructured(resp *diag.Response) (*domain.DiagnosisResult, error) {
	content := stripFences(resp.Content)
	if content == "" {
		return nil, fmt.Errorf("empty content")
	}

	var payload structuredPayload
	dec := json.NewDecoder(strings.NewReader(content))
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode canonical schema: %w", err)
	}

	result := &domain.DiagnosisResult{
		SchemaVersion: domain.ResultSchemaVersion,
		Tier:          domain.TierStructured,
		Primary:       payload.Primary,
		Differentials: payload.Differentials,
		Severity:      payload.Severity,
		Urgency:       payload.Urgency,
		Treatment:     payload.Treatment,
		Prevention:    payload.Prevention,
		FollowUp:      payload.FollowUp,
		Model:         resp.Model,
		Usage:         usageFromResponse(resp),
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

// stripFences removes a surrounding Markdown code fence, with or without a
// language tag, leaving inner text untouched.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		// Drop the language tag line (e.g. "json").
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func usageFromResponse(resp *diag.Response) domain.ResultUsage {
	return domain.ResultUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		CostCents:        resp.Usage.CostCents,
		LatencyMs:        resp.Usage.LatencyMs,
	}
}
