package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	otelx "github.com/riskgate/riskgate/internal/adapter/otel"
	"github.com/riskgate/riskgate/internal/adapter/ws"
	"github.com/riskgate/riskgate/internal/domain"
	"github.com/riskgate/riskgate/internal/domain/applicant"
	"github.com/riskgate/riskgate/internal/domain/decision"
	"github.com/riskgate/riskgate/internal/port/cache"
	"github.com/riskgate/riskgate/internal/port/database"
	"github.com/riskgate/riskgate/internal/port/messagequeue"
	"github.com/riskgate/riskgate/internal/research"
	"github.com/riskgate/riskgate/internal/scoring"
)

// panelRunner abstracts the reasoning panel for testing.
type panelRunner interface {
	Assess(ctx context.Context, a *applicant.Applicant, prob float64) ([]decision.AgentVerdict, PanelUsage, error)
}

// researchLog abstracts the evaluation CSV log for testing.
type researchLog interface {
	Append(e research.Entry) error
}

// DecisionService runs the decision pipeline: cache lookup, model score,
// confidence routing, optional panel escalation, fairness check,
// persistence and fan-out.
type DecisionService struct {
	store     database.Store
	cache     cache.Cache
	queue     messagequeue.Queue
	hub       *ws.Hub
	registry  *ModelRegistry
	panel     panelRunner
	fairness  *Fairness
	log       researchLog
	metrics   *otelx.Metrics
	policy    decision.Policy
	costPer1K float64
	cacheTTL  time.Duration
}

// DecisionOptions carries the optional collaborators of a DecisionService.
// Nil fields disable the corresponding side effect.
type DecisionOptions struct {
	Cache    cache.Cache
	Queue    messagequeue.Queue
	Hub      *ws.Hub
	Log      researchLog
	Metrics  *otelx.Metrics
	CacheTTL time.Duration
}

// NewDecisionService creates the pipeline service.
func NewDecisionService(
	store database.Store,
	registry *ModelRegistry,
	panel panelRunner,
	fairness *Fairness,
	policy decision.Policy,
	costPer1K float64,
	opts DecisionOptions,
) *DecisionService {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	return &DecisionService{
		store:     store,
		cache:     opts.Cache,
		queue:     opts.Queue,
		hub:       opts.Hub,
		registry:  registry,
		panel:     panel,
		fairness:  fairness,
		log:       opts.Log,
		metrics:   opts.Metrics,
		policy:    policy,
		costPer1K: costPer1K,
		cacheTTL:  opts.CacheTTL,
	}
}

// Decide runs the full pipeline for one applicant. The bool result is
// true when the decision was served from the fingerprint cache; cached
// decisions append no evaluation row and publish no events.
func (s *DecisionService) Decide(ctx context.Context, applicantID string) (*decision.Decision, bool, error) {
	start := time.Now()

	a, err := s.store.GetApplicant(ctx, applicantID)
	if err != nil {
		return nil, false, err
	}

	ctx, span := otelx.StartDecisionSpan(ctx, a.ID)
	defer span.End()

	cacheKey := "fp:" + a.Fingerprint()
	if d, ok := s.cachedDecision(ctx, cacheKey); ok {
		if s.metrics != nil {
			s.metrics.CacheHits.Add(ctx, 1)
		}
		slog.Debug("decision served from cache", "applicant_id", a.ID, "decision_id", d.ID)
		return d, true, nil
	}

	vec := scoring.Vectorize(a)

	_, scoreSpan := otelx.StartScoreSpan(ctx, s.registry.Name())
	p, err := s.registry.Score(vec)
	scoreSpan.End()
	if err != nil {
		return nil, false, fmt.Errorf("score applicant %s: %w", a.ID, err)
	}

	d := &decision.Decision{
		ApplicantID:        a.ID,
		Route:              s.policy.Route(p),
		DefaultProbability: p,
		MLConfidence:       decision.Confidence(p),
		RiskScore:          decision.RiskScore(p),
		Model:              s.registry.Name(),
	}

	var usage PanelUsage
	switch d.Route {
	case decision.RouteMLOnly:
		d.Outcome = s.policy.Resolve(p)

	case decision.RouteLLMPanel:
		if s.hub != nil {
			s.hub.BroadcastEvent(ctx, ws.EventDecisionEscalated, ws.DecisionEscalatedEvent{
				ApplicantID:  a.ID,
				MLConfidence: d.MLConfidence,
			})
		}
		if s.metrics != nil {
			s.metrics.Escalations.Add(ctx, 1)
		}

		size := 0
		if sized, ok := s.panel.(interface{ Size() int }); ok {
			size = sized.Size()
		}
		ctx, panelSpan := otelx.StartPanelSpan(ctx, a.ID, size)
		verdicts, u, err := s.panel.Assess(ctx, a, p)
		panelSpan.End()
		if err != nil {
			// A dead panel (breaker open, timeout) must not block the
			// application; it lands in manual review.
			slog.Warn("panel assessment failed, routing to review", "applicant_id", a.ID, "error", err)
		}
		usage = u

		outcome, risk := AggregateVerdicts(verdicts)
		d.Outcome = outcome
		if len(verdicts) > 0 {
			d.RiskScore = risk
		}
		d.Verdicts = verdicts
		d.Model = usage.Model
		d.TokensIn = usage.TokensIn
		d.TokensOut = usage.TokensOut
		d.KeySwitches = usage.KeySwitches
		d.CostUSD = float64(usage.TokensIn+usage.TokensOut) / 1000 * s.costPer1K
	}

	fr := s.fairness.Review(vec, p, d.Outcome)
	d.FairnessTriggered = fr.Triggered
	d.FairnessChanged = fr.Changed
	d.Outcome = fr.Outcome
	if fr.Triggered && s.metrics != nil {
		s.metrics.FairnessChecks.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("changed", fr.Changed),
		))
	}

	d.LatencyMs = time.Since(start).Milliseconds()

	if err := s.store.CreateDecision(ctx, d); err != nil {
		return nil, false, err
	}

	s.fanOut(ctx, a, d, usage)
	return d, false, nil
}

// cachedDecision looks up a prior decision for the fingerprint key.
func (s *DecisionService) cachedDecision(ctx context.Context, key string) (*decision.Decision, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var d decision.Decision
	if err := json.Unmarshal(data, &d); err != nil {
		slog.Warn("corrupt cached decision, ignoring", "key", key, "error", err)
		return nil, false
	}
	return &d, true
}

// fanOut handles the post-persistence side effects: cache write,
// evaluation row, queue event, WebSocket broadcast and metrics. Failures
// here are logged, not returned; the decision is already durable.
func (s *DecisionService) fanOut(ctx context.Context, a *applicant.Applicant, d *decision.Decision, usage PanelUsage) {
	if s.cache != nil {
		if data, err := json.Marshal(d); err == nil {
			if err := s.cache.Set(ctx, "fp:"+a.Fingerprint(), data, s.cacheTTL); err != nil {
				slog.Warn("decision cache write failed", "decision_id", d.ID, "error", err)
			}
		}
	}

	if s.log != nil {
		entry := research.Entry{
			Timestamp:         d.CreatedAt,
			ApplicantID:       d.ApplicantID,
			DecisionID:        d.ID,
			Route:             string(d.Route),
			MLConfidence:      d.MLConfidence,
			TokensIn:          d.TokensIn,
			TokensOut:         d.TokensOut,
			CostUSD:           d.CostUSD,
			LatencyMs:         d.LatencyMs,
			ActiveKeyID:       usage.ActiveKey,
			KeySwitches:       d.KeySwitches,
			FairnessTriggered: d.FairnessTriggered,
			FairnessChanged:   d.FairnessChanged,
			Outcome:           string(d.Outcome),
			RiskScore:         d.RiskScore,
		}
		if err := s.log.Append(entry); err != nil {
			slog.Error("evaluation log append failed", "decision_id", d.ID, "error", err)
		}
	}

	if s.queue != nil {
		event, _ := json.Marshal(map[string]any{
			"decision_id":  d.ID,
			"applicant_id": d.ApplicantID,
			"route":        d.Route,
			"outcome":      d.Outcome,
			"risk_score":   d.RiskScore,
		})
		if err := s.queue.Publish(ctx, messagequeue.SubjectDecisionCompleted, event); err != nil {
			slog.Warn("decision event publish failed", "decision_id", d.ID, "error", err)
		}
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventDecisionCompleted, ws.DecisionCompletedEvent{
			DecisionID:  d.ID,
			ApplicantID: d.ApplicantID,
			Route:       string(d.Route),
			Outcome:     string(d.Outcome),
			RiskScore:   d.RiskScore,
			LatencyMs:   d.LatencyMs,
			CostUSD:     d.CostUSD,
		})
	}

	if s.metrics != nil {
		attrs := metric.WithAttributes(
			attribute.String("route", string(d.Route)),
			attribute.String("outcome", string(d.Outcome)),
		)
		s.metrics.Decisions.Add(ctx, 1, attrs)
		s.metrics.DecisionLatency.Record(ctx, float64(d.LatencyMs), attrs)
		if d.Route == decision.RouteLLMPanel {
			s.metrics.DecisionCost.Record(ctx, d.CostUSD)
			s.metrics.TokensPerPanel.Record(ctx, d.TokensIn+d.TokensOut)
			if d.KeySwitches > 0 {
				s.metrics.KeySwitches.Add(ctx, int64(d.KeySwitches))
			}
		}
	}
}

// Get returns a stored decision by ID.
func (s *DecisionService) Get(ctx context.Context, id string) (*decision.Decision, error) {
	return s.store.GetDecision(ctx, id)
}

// List returns the most recent decisions.
func (s *DecisionService) List(ctx context.Context, limit int) ([]decision.Decision, error) {
	return s.store.ListDecisions(ctx, limit)
}

// Resolve records an underwriter's resolution of a decision under manual
// review. Only review decisions can be resolved.
func (s *DecisionService) Resolve(ctx context.Context, id string, outcome decision.Outcome) (*decision.Decision, error) {
	if outcome != decision.OutcomeApprove && outcome != decision.OutcomeDeny {
		return nil, fmt.Errorf("resolve decision %s: outcome must be approve or deny: %w", id, domain.ErrValidation)
	}

	d, err := s.store.GetDecision(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Outcome != decision.OutcomeReview {
		return nil, fmt.Errorf("resolve decision %s: decision is not under review: %w", id, domain.ErrConflict)
	}

	d.Outcome = outcome
	if err := s.store.UpdateDecision(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}
