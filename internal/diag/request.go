package diag

import (
	"time"

	"github.com/pasturelab/vettriage/internal/domain"
)

// TaskType tags the diagnostic task for the remote service.
type TaskType string

const (
	// TaskLiveDiagnosis asks for a diagnosis of living, symptomatic animals.
	TaskLiveDiagnosis TaskType = "live_diagnosis"

	// TaskAutopsy asks for a post-mortem cause-of-death analysis.
	TaskAutopsy TaskType = "autopsy_analysis"
)

// Priority hints the remote scheduler. Autopsies of large die-offs go high.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Role identifies the author of one conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged message in the diagnostic conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the normalized diagnostic service request.
type Request struct {
	Task     TaskType  `json:"task"`
	Priority Priority  `json:"priority"`
	Messages []Message `json:"messages"`

	// ImageRefs are opaque references to uploaded imagery (lesions,
	// necropsy photos) the service may consult.
	ImageRefs []string `json:"image_refs,omitempty"`

	// IdempotencyKey deduplicates retried submissions server-side.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// Timeout bounds this request; zero uses the client default.
	Timeout time.Duration `json:"-"`
}

// Usage carries the remote call's accounting.
type Usage struct {
	PromptTokens     int64        `json:"prompt_tokens"`
	CompletionTokens int64        `json:"completion_tokens"`
	CostCents        domain.Cents `json:"cost_cents"`
	LatencyMs        int64        `json:"latency_ms"`
}

// Response is the normalized diagnostic service response. Content is ideally
// the canonical result schema as JSON text, but the degradation chain must
// treat it as untrusted.
type Response struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
}
