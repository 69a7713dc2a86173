// Package ingest turns a remote diagnostic reply, which may be missing or
// malformed, into a schema-stable diagnosis result. Three tiers cascade on
// failure of the prior one: a structured parse of the canonical schema, a
// heuristic keyword recovery, and a deterministic rule-based fallback. Every
// tier emits the same result schema, so downstream consumers never branch on
// how degraded the upstream call was.
package ingest

import (
	"log/slog"

	"github.com/pasturelab/vettriage/internal/diag"
	"github.com/pasturelab/vettriage/internal/domain"
)

// Chain is the degradation chain. It never returns an error: by construction
// the final tier always produces a valid result from the job inputs alone.
type Chain struct {
	logger *slog.Logger
}

// NewChain creates a degradation chain.
func NewChain(logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{logger: logger.With("component", "ingest")}
}

// FromResponse normalizes a successful remote reply. Tier 1 parses the
// content as the canonical schema; on parse failure tier 2 scans the text
// for recoverable signals; if even that finds nothing, the rule-based
// fallback takes over using the original job inputs.
func (c *Chain) FromResponse(jobID string, resp *diag.Response, inputs domain.JobInputs) *domain.DiagnosisResult {
	if result, err := parseStructured(resp); err == nil {
		return result
	} else {
		c.logger.Warn("structured parse failed, degrading to heuristic tier",
			"job_id", jobID, "error", err)
	}

	if result, err := extractHeuristic(resp); err == nil {
		return result
	} else {
		c.logger.Warn("heuristic extraction failed, degrading to fallback tier",
			"job_id", jobID, "error", err)
	}

	return buildFallback(inputs)
}

// FromFailure normalizes a total remote call failure (timeout, quota,
// network, open circuit). The cause is recorded for observability only; the
// job still completes with a fallback result.
func (c *Chain) FromFailure(jobID string, cause error, inputs domain.JobInputs) *domain.DiagnosisResult {
	c.logger.Warn("remote diagnostic call failed, using rule-based fallback",
		"job_id", jobID,
		"error", &domain.UpstreamDegradedError{Stage: "remote_call", Cause: cause})
	return buildFallback(inputs)
}
