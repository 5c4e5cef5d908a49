package decision

// Policy is the confidence routing rule. The gradient-boosted model's
// default probability p yields a two-sided confidence c = max(p, 1-p);
// decisions with c below ConfidenceThreshold escalate to the LLM panel.
type Policy struct {
	ConfidenceThreshold float64 // escalate below this confidence
	ApproveBelow        float64 // ML-only approve when p < ApproveBelow
	DenyAt              float64 // ML-only deny when p >= DenyAt
}

// Confidence returns the two-sided confidence of a default probability.
func Confidence(p float64) float64 {
	if p < 0.5 {
		return 1 - p
	}
	return p
}

// Route returns which path should resolve a prediction with probability p.
func (pol Policy) Route(p float64) Route {
	if Confidence(p) >= pol.ConfidenceThreshold {
		return RouteMLOnly
	}
	return RouteLLMPanel
}

// Resolve maps a default probability to an ML-only outcome. Probabilities
// between ApproveBelow and DenyAt land in the manual review band.
func (pol Policy) Resolve(p float64) Outcome {
	switch {
	case p < pol.ApproveBelow:
		return OutcomeApprove
	case p >= pol.DenyAt:
		return OutcomeDeny
	default:
		return OutcomeReview
	}
}

// RiskScore converts a default probability to the 0-100 reporting scale.
func RiskScore(p float64) int {
	s := int(p*100 + 0.5)
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
