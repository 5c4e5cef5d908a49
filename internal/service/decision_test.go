package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/riskgate/riskgate/internal/domain/applicant"
	"github.com/riskgate/riskgate/internal/domain/decision"
	"github.com/riskgate/riskgate/internal/port/database"
	"github.com/riskgate/riskgate/internal/research"
)

// fakeStore is an in-memory database.Store.
type fakeStore struct {
	applicants map[string]*applicant.Applicant
	decisions  map[string]*decision.Decision
	created    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		applicants: make(map[string]*applicant.Applicant),
		decisions:  make(map[string]*decision.Decision),
	}
}

func (s *fakeStore) CreateApplicant(_ context.Context, req applicant.CreateRequest) (*applicant.Applicant, error) {
	a := &applicant.Applicant{ID: fmt.Sprintf("a-%d", len(s.applicants)+1), LoanAmount: req.LoanAmount}
	s.applicants[a.ID] = a
	return a, nil
}

func (s *fakeStore) GetApplicant(_ context.Context, id string) (*applicant.Applicant, error) {
	a, ok := s.applicants[id]
	if !ok {
		return nil, fmt.Errorf("applicant %s not found", id)
	}
	return a, nil
}

func (s *fakeStore) ListApplicants(_ context.Context, _ int) ([]applicant.Applicant, error) {
	return nil, nil
}

func (s *fakeStore) CreateDecision(_ context.Context, d *decision.Decision) error {
	s.created++
	d.ID = fmt.Sprintf("d-%d", s.created)
	d.Version = 1
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	stored := *d
	s.decisions[d.ID] = &stored
	return nil
}

func (s *fakeStore) GetDecision(_ context.Context, id string) (*decision.Decision, error) {
	d, ok := s.decisions[id]
	if !ok {
		return nil, fmt.Errorf("decision %s not found", id)
	}
	copied := *d
	return &copied, nil
}

func (s *fakeStore) ListDecisions(_ context.Context, _ int) ([]decision.Decision, error) {
	return nil, nil
}

func (s *fakeStore) UpdateDecision(_ context.Context, d *decision.Decision) error {
	stored := *d
	stored.Version++
	s.decisions[d.ID] = &stored
	d.Version++
	return nil
}

func (s *fakeStore) RoutingDistribution(_ context.Context) ([]database.RoutingCount, error) {
	return nil, nil
}

func (s *fakeStore) DecisionSummary(_ context.Context) (*database.Summary, error) {
	return &database.Summary{}, nil
}

func (s *fakeStore) DailySeries(_ context.Context, _ time.Time) ([]database.DailyCount, error) {
	return nil, nil
}

// memCache is a map-backed cache.Cache.
type memCache struct {
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

// fakePanel returns canned verdicts.
type fakePanel struct {
	verdicts []decision.AgentVerdict
	usage    PanelUsage
	err      error
	calls    int
}

func (p *fakePanel) Assess(context.Context, *applicant.Applicant, float64) ([]decision.AgentVerdict, PanelUsage, error) {
	p.calls++
	return p.verdicts, p.usage, p.err
}

// logRecorder captures evaluation rows.
type logRecorder struct {
	entries []research.Entry
}

func (r *logRecorder) Append(e research.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

const testDenyAt = 0.7

func newTestService(prob float64, panel *fakePanel) (*DecisionService, *fakeStore, *memCache, *logRecorder) {
	store := newFakeStore()
	store.applicants["a-1"] = testApplicant()

	registry := NewModelRegistry("gbm-test", "")
	registry.Swap(constantEnsemble(prob))

	cache := newMemCache()
	rec := &logRecorder{}

	svc := NewDecisionService(
		store,
		registry,
		panel,
		NewFairness(registry, 0.05, testDenyAt),
		decision.Policy{ConfidenceThreshold: 0.8, ApproveBelow: 0.3, DenyAt: testDenyAt},
		0.0006,
		DecisionOptions{Cache: cache, Log: rec, CacheTTL: time.Hour},
	)
	return svc, store, cache, rec
}

func TestDecideMLOnlyApprove(t *testing.T) {
	panel := &fakePanel{}
	svc, store, cache, rec := newTestService(0.1, panel)

	d, cached, err := svc.Decide(context.Background(), "a-1")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if cached {
		t.Fatal("first decision must not be cached")
	}
	if d.Route != decision.RouteMLOnly {
		t.Errorf("expected ml_only route, got %s", d.Route)
	}
	if d.Outcome != decision.OutcomeApprove {
		t.Errorf("expected approve, got %s", d.Outcome)
	}
	if math.Abs(d.MLConfidence-0.9) > 1e-9 {
		t.Errorf("expected confidence 0.9, got %f", d.MLConfidence)
	}
	if panel.calls != 0 {
		t.Errorf("panel must not run on the ML path, got %d calls", panel.calls)
	}
	if store.created != 1 {
		t.Errorf("expected 1 persisted decision, got %d", store.created)
	}
	if len(rec.entries) != 1 {
		t.Fatalf("expected 1 evaluation row, got %d", len(rec.entries))
	}
	if rec.entries[0].Route != "ml_only" || rec.entries[0].Outcome != "approve" {
		t.Errorf("unexpected evaluation row: %+v", rec.entries[0])
	}
	if len(cache.data) != 1 {
		t.Errorf("expected decision cached by fingerprint, got %d entries", len(cache.data))
	}
}

func TestDecideEscalatesLowConfidence(t *testing.T) {
	panel := &fakePanel{
		verdicts: []decision.AgentVerdict{
			{Agent: "prudent", Outcome: decision.OutcomeDeny, RiskScore: 75},
			{Agent: "balanced", Outcome: decision.OutcomeDeny, RiskScore: 65},
			{Agent: "contrarian", Outcome: decision.OutcomeApprove, RiskScore: 30},
		},
		usage: PanelUsage{TokensIn: 900, TokensOut: 100, KeySwitches: 1, Model: "test-model"},
	}
	svc, _, _, rec := newTestService(0.55, panel)

	d, cached, err := svc.Decide(context.Background(), "a-1")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if cached {
		t.Fatal("unexpected cache hit")
	}
	if d.Route != decision.RouteLLMPanel {
		t.Fatalf("expected llm_panel route, got %s", d.Route)
	}
	if panel.calls != 1 {
		t.Errorf("expected 1 panel run, got %d", panel.calls)
	}
	if d.Outcome != decision.OutcomeDeny {
		t.Errorf("expected panel majority deny, got %s", d.Outcome)
	}
	if d.RiskScore != (75+65+30)/3 {
		t.Errorf("expected mean panel risk, got %d", d.RiskScore)
	}
	if d.TokensIn != 900 || d.TokensOut != 100 || d.KeySwitches != 1 {
		t.Errorf("panel usage not carried: %+v", d)
	}
	wantCost := 1000.0 / 1000 * 0.0006
	if d.CostUSD != wantCost {
		t.Errorf("expected cost %f, got %f", wantCost, d.CostUSD)
	}
	if len(d.Verdicts) != 3 {
		t.Errorf("expected verdicts recorded, got %d", len(d.Verdicts))
	}
	if rec.entries[0].KeySwitches != 1 {
		t.Errorf("expected key switch in evaluation row, got %d", rec.entries[0].KeySwitches)
	}
}

func TestDecidePanelFailureLandsInReview(t *testing.T) {
	panel := &fakePanel{err: fmt.Errorf("breaker open")}
	svc, _, _, _ := newTestService(0.6, panel)

	d, _, err := svc.Decide(context.Background(), "a-1")
	if err != nil {
		t.Fatalf("decide must not fail when the panel dies: %v", err)
	}
	if d.Outcome != decision.OutcomeReview {
		t.Errorf("expected review, got %s", d.Outcome)
	}
	if d.Route != decision.RouteLLMPanel {
		t.Errorf("route must record the escalation, got %s", d.Route)
	}
}

func TestDecideCacheHitSkipsPipeline(t *testing.T) {
	panel := &fakePanel{}
	svc, store, cache, rec := newTestService(0.1, panel)

	first, _, err := svc.Decide(context.Background(), "a-1")
	if err != nil {
		t.Fatal(err)
	}

	second, cached, err := svc.Decide(context.Background(), "a-1")
	if err != nil {
		t.Fatal(err)
	}
	if !cached {
		t.Fatal("expected cache hit on identical application")
	}
	if second.ID != first.ID {
		t.Errorf("expected cached decision %s, got %s", first.ID, second.ID)
	}
	if store.created != 1 {
		t.Errorf("cache hit must not persist a new decision, got %d", store.created)
	}
	if len(rec.entries) != 1 {
		t.Errorf("cache hit must not append an evaluation row, got %d", len(rec.entries))
	}

	// Sanity: the cached payload round-trips as a decision.
	var d decision.Decision
	for _, v := range cache.data {
		if err := json.Unmarshal(v, &d); err != nil {
			t.Fatalf("cached payload corrupt: %v", err)
		}
	}
}

func TestDecideFairnessWidensPanelDenial(t *testing.T) {
	// Probability inside the fairness band around denyAt; the constant
	// model also yields the same neutralized score, which is below
	// denyAt, so the denial cannot stand.
	panel := &fakePanel{
		verdicts: []decision.AgentVerdict{
			{Agent: "prudent", Outcome: decision.OutcomeDeny, RiskScore: 70},
		},
	}
	svc, _, _, _ := newTestService(0.68, panel)

	d, _, err := svc.Decide(context.Background(), "a-1")
	if err != nil {
		t.Fatal(err)
	}
	if !d.FairnessTriggered {
		t.Fatal("expected fairness check to trigger")
	}
	if !d.FairnessChanged {
		t.Fatal("expected fairness check to widen the denial")
	}
	if d.Outcome != decision.OutcomeReview {
		t.Errorf("expected review, got %s", d.Outcome)
	}
}

func TestResolveReviewDecision(t *testing.T) {
	panel := &fakePanel{}
	svc, store, _, _ := newTestService(0.5, panel) // review band, panel abstains

	d, _, err := svc.Decide(context.Background(), "a-1")
	if err != nil {
		t.Fatal(err)
	}
	if d.Outcome != decision.OutcomeReview {
		t.Fatalf("precondition: expected review, got %s", d.Outcome)
	}

	resolved, err := svc.Resolve(context.Background(), d.ID, decision.OutcomeApprove)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Outcome != decision.OutcomeApprove {
		t.Errorf("expected approve, got %s", resolved.Outcome)
	}
	if store.decisions[d.ID].Outcome != decision.OutcomeApprove {
		t.Error("resolution not persisted")
	}

	// A resolved decision cannot be resolved again.
	if _, err := svc.Resolve(context.Background(), d.ID, decision.OutcomeDeny); err == nil {
		t.Error("expected error resolving a non-review decision")
	}

	// Review cannot be "resolved" back into review.
	if _, err := svc.Resolve(context.Background(), d.ID, decision.OutcomeReview); err == nil {
		t.Error("expected error for review outcome")
	}
}
