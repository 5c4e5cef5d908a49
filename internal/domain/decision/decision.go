// Package decision defines the credit decision domain entity and the
// confidence routing policy.
package decision

import "time"

// Route identifies which path resolved a decision.
type Route string

const (
	RouteMLOnly   Route = "ml_only"   // gradient-boosted model alone
	RouteLLMPanel Route = "llm_panel" // escalated to the LLM reasoning panel
)

// Outcome is the final verdict on an application.
type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeDeny    Outcome = "deny"
	OutcomeReview  Outcome = "review" // manual underwriter review
)

// AgentVerdict is one panel agent's parsed reply.
type AgentVerdict struct {
	Agent     string  `json:"agent"`
	Outcome   Outcome `json:"outcome"`
	RiskScore int     `json:"risk_score"`
	Rationale string  `json:"rationale,omitempty"`
}

// Decision records a single decisioning of an applicant, whichever route
// resolved it. One applicant can accumulate multiple decisions over time
// (model reloads, resubmissions).
type Decision struct {
	ID                 string         `json:"id"`
	ApplicantID        string         `json:"applicant_id"`
	Route              Route          `json:"route"`
	Outcome            Outcome        `json:"outcome"`
	DefaultProbability float64        `json:"default_probability"`
	MLConfidence       float64        `json:"ml_confidence"`
	RiskScore          int            `json:"risk_score"` // 0-100, higher = riskier
	Model              string         `json:"model,omitempty"`
	Verdicts           []AgentVerdict `json:"verdicts,omitempty"`
	TokensIn           int64          `json:"tokens_in"`
	TokensOut          int64          `json:"tokens_out"`
	CostUSD            float64        `json:"cost_usd"`
	LatencyMs          int64          `json:"latency_ms"`
	KeySwitches        int            `json:"key_switches"`
	FairnessTriggered  bool           `json:"fairness_triggered"`
	FairnessChanged    bool           `json:"fairness_changed"`
	Version            int            `json:"version"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Request holds the fields needed to request a decision.
type Request struct {
	ApplicantID string `json:"applicant_id"`
}
