package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "riskgate"

// Metrics holds all riskgate metric instruments.
type Metrics struct {
	Decisions       metric.Int64Counter
	Escalations     metric.Int64Counter
	FairnessChecks  metric.Int64Counter
	KeySwitches     metric.Int64Counter
	CacheHits       metric.Int64Counter
	DecisionLatency metric.Float64Histogram
	DecisionCost    metric.Float64Histogram
	TokensPerPanel  metric.Int64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Decisions, err = meter.Int64Counter("riskgate.decisions",
		metric.WithDescription("Number of decisions made, by route and outcome"))
	if err != nil {
		return nil, err
	}

	m.Escalations, err = meter.Int64Counter("riskgate.escalations",
		metric.WithDescription("Number of decisions escalated to the reasoning panel"))
	if err != nil {
		return nil, err
	}

	m.FairnessChecks, err = meter.Int64Counter("riskgate.fairness.checks",
		metric.WithDescription("Number of borderline denials re-scored by the fairness stage"))
	if err != nil {
		return nil, err
	}

	m.KeySwitches, err = meter.Int64Counter("riskgate.llm.key_switches",
		metric.WithDescription("Number of API key rotations during panel calls"))
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("riskgate.cache.hits",
		metric.WithDescription("Number of decisions served from the fingerprint cache"))
	if err != nil {
		return nil, err
	}

	m.DecisionLatency, err = meter.Float64Histogram("riskgate.decision.latency_ms",
		metric.WithDescription("End-to-end decision latency in milliseconds"))
	if err != nil {
		return nil, err
	}

	m.DecisionCost, err = meter.Float64Histogram("riskgate.decision.cost_usd",
		metric.WithDescription("LLM cost per decision in USD"))
	if err != nil {
		return nil, err
	}

	m.TokensPerPanel, err = meter.Int64Histogram("riskgate.panel.tokens",
		metric.WithDescription("Total tokens consumed per panel run"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
