package service

import (
	"log/slog"
	"math"

	"github.com/riskgate/riskgate/internal/domain/decision"
	"github.com/riskgate/riskgate/internal/scoring"
)

// FairnessResult is the outcome of a counterfactual check on a denial.
type FairnessResult struct {
	Triggered bool
	Changed   bool
	Outcome   decision.Outcome
}

// Fairness re-scores borderline denials with income and home-ownership
// proxy features reset to their training medians. If the neutralized
// probability no longer supports a denial, the decision is widened to
// manual review. The check never flips a denial to an approval and never
// touches approvals or reviews.
type Fairness struct {
	registry *ModelRegistry
	margin   float64
	denyAt   float64
}

// NewFairness creates the fairness stage. margin is the half-width of the
// probability band around denyAt considered borderline.
func NewFairness(registry *ModelRegistry, margin, denyAt float64) *Fairness {
	return &Fairness{registry: registry, margin: margin, denyAt: denyAt}
}

// Review checks one decision. vec is the applicant's feature row and p
// the original default probability.
func (f *Fairness) Review(vec []float64, p float64, outcome decision.Outcome) FairnessResult {
	if outcome != decision.OutcomeDeny {
		return FairnessResult{Outcome: outcome}
	}
	if math.Abs(p-f.denyAt) > f.margin {
		return FairnessResult{Outcome: outcome}
	}

	np, err := f.registry.ScoreNeutralized(vec, scoring.ProxyFeatureIndices())
	if err != nil {
		slog.Warn("fairness re-score failed", "error", err)
		return FairnessResult{Outcome: outcome}
	}

	res := FairnessResult{Triggered: true, Outcome: outcome}
	if np < f.denyAt {
		res.Changed = true
		res.Outcome = decision.OutcomeReview
		slog.Info("fairness check widened denial to review",
			"probability", p, "neutralized", np)
	}
	return res
}
