// Package database defines the persistence port for riskgate entities.
package database

import (
	"context"
	"time"

	"github.com/riskgate/riskgate/internal/domain/applicant"
	"github.com/riskgate/riskgate/internal/domain/decision"
)

// RoutingCount is one row of the routing distribution report.
type RoutingCount struct {
	Route decision.Route `json:"route"`
	Count int            `json:"count"`
}

// Summary holds aggregate decisioning metrics for reports.
type Summary struct {
	TotalDecisions    int     `json:"total_decisions"`
	MLOnly            int     `json:"ml_only"`
	Escalated         int     `json:"escalated"`
	TotalTokensIn     int64   `json:"total_tokens_in"`
	TotalTokensOut    int64   `json:"total_tokens_out"`
	TotalCostUSD      float64 `json:"total_cost_usd"`
	AvgLatencyMs      float64 `json:"avg_latency_ms"`
	FairnessTriggered int     `json:"fairness_triggered"`
	FairnessChanged   int     `json:"fairness_changed"`
	KeySwitches       int     `json:"key_switches"`
}

// DailyCount is one day of decision volume and cost.
type DailyCount struct {
	Date      string  `json:"date"`
	Decisions int     `json:"decisions"`
	Escalated int     `json:"escalated"`
	CostUSD   float64 `json:"cost_usd"`
}

// Store is the persistence port.
type Store interface {
	CreateApplicant(ctx context.Context, req applicant.CreateRequest) (*applicant.Applicant, error)
	GetApplicant(ctx context.Context, id string) (*applicant.Applicant, error)
	ListApplicants(ctx context.Context, limit int) ([]applicant.Applicant, error)

	CreateDecision(ctx context.Context, d *decision.Decision) error
	GetDecision(ctx context.Context, id string) (*decision.Decision, error)
	ListDecisions(ctx context.Context, limit int) ([]decision.Decision, error)
	UpdateDecision(ctx context.Context, d *decision.Decision) error

	RoutingDistribution(ctx context.Context) ([]RoutingCount, error)
	DecisionSummary(ctx context.Context) (*Summary, error)
	DailySeries(ctx context.Context, since time.Time) ([]DailyCount, error)
}
