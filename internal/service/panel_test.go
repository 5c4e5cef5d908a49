package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/riskgate/riskgate/internal/adapter/llm"
	"github.com/riskgate/riskgate/internal/config"
	"github.com/riskgate/riskgate/internal/domain/applicant"
	"github.com/riskgate/riskgate/internal/domain/decision"
)

func testApplicant() *applicant.Applicant {
	return &applicant.Applicant{
		ID:            "a-1",
		LoanAmount:    12000,
		TermMonths:    36,
		InterestRate:  11.5,
		Installment:   395.2,
		AnnualIncome:  55000,
		DTI:           18.3,
		FicoScore:     702,
		RevolvingUtil: 41.0,
		EmploymentYrs: 4,
		HomeOwnership: applicant.HomeRent,
		Purpose:       applicant.PurposeDebtConsolidation,
	}
}

func verdictBody(outcome string, risk int) string {
	content, _ := json.Marshal(map[string]any{
		"outcome": outcome, "risk_score": risk, "rationale": "test",
	})
	b, _ := json.Marshal(map[string]any{
		"model": "test-model",
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": string(content)}},
		},
		"usage": map[string]int{"prompt_tokens": 300, "completion_tokens": 40},
	})
	return string(b)
}

func TestPanelAssessCollectsVerdicts(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(verdictBody("deny", 70)))
	}))
	defer srv.Close()

	client := llm.NewClient(srv.URL, llm.NewKeyPool([]string{"k"}), 5*time.Second)
	p := NewPanel(client, config.LLM{Model: "test-model"}, 3, 10*time.Second)

	verdicts, usage, err := p.Assess(context.Background(), testApplicant(), 0.62)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if len(verdicts) != 3 {
		t.Fatalf("expected 3 verdicts, got %d", len(verdicts))
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 agent calls, got %d", calls.Load())
	}
	if usage.TokensIn != 900 || usage.TokensOut != 120 {
		t.Errorf("unexpected usage: %d/%d", usage.TokensIn, usage.TokensOut)
	}
	for _, v := range verdicts {
		if v.Outcome != decision.OutcomeDeny {
			t.Errorf("agent %s: expected deny, got %s", v.Agent, v.Outcome)
		}
	}
}

func TestPanelAgentsAbstainOnGarbage(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			body, _ := json.Marshal(map[string]any{
				"model": "m",
				"choices": []map[string]any{
					{"message": map[string]string{"content": "I cannot decide this."}},
				},
			})
			_, _ = w.Write(body)
			return
		}
		_, _ = w.Write([]byte(verdictBody("approve", 20)))
	}))
	defer srv.Close()

	client := llm.NewClient(srv.URL, llm.NewKeyPool(nil), 5*time.Second)
	p := NewPanel(client, config.LLM{Model: "m"}, 3, 10*time.Second)

	verdicts, _, err := p.Assess(context.Background(), testApplicant(), 0.55)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if len(verdicts) != 2 {
		t.Fatalf("expected 2 verdicts after one abstention, got %d", len(verdicts))
	}
}

func TestPanelSurvivesBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := llm.NewClient(srv.URL, llm.NewKeyPool(nil), 5*time.Second)
	p := NewPanel(client, config.LLM{Model: "m"}, 3, 10*time.Second)

	verdicts, _, err := p.Assess(context.Background(), testApplicant(), 0.5)
	if err != nil {
		t.Fatalf("expected nil error with all agents abstaining, got %v", err)
	}
	if len(verdicts) != 0 {
		t.Fatalf("expected no verdicts, got %d", len(verdicts))
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		outcome decision.Outcome
		risk    int
	}{
		{"plain json", `{"outcome":"approve","risk_score":15,"rationale":"solid income"}`, false, decision.OutcomeApprove, 15},
		{"fenced json", "```json\n{\"outcome\":\"deny\",\"risk_score\":80}\n```", false, decision.OutcomeDeny, 80},
		{"json with prose", `Here is my assessment: {"outcome":"review","risk_score":55} as requested.`, false, decision.OutcomeReview, 55},
		{"clamps risk", `{"outcome":"deny","risk_score":140}`, false, decision.OutcomeDeny, 100},
		{"bad outcome", `{"outcome":"maybe","risk_score":50}`, true, "", 0},
		{"no json", `I approve of this loan.`, true, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseVerdict("prudent", tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v.Outcome != tt.outcome || v.RiskScore != tt.risk {
				t.Errorf("got %s/%d, want %s/%d", v.Outcome, v.RiskScore, tt.outcome, tt.risk)
			}
		})
	}
}

func TestAggregateVerdicts(t *testing.T) {
	v := func(o decision.Outcome, risk int) decision.AgentVerdict {
		return decision.AgentVerdict{Agent: "x", Outcome: o, RiskScore: risk}
	}

	tests := []struct {
		name     string
		verdicts []decision.AgentVerdict
		outcome  decision.Outcome
		risk     int
	}{
		{"empty panel", nil, decision.OutcomeReview, 50},
		{"unanimous deny", []decision.AgentVerdict{v(decision.OutcomeDeny, 80), v(decision.OutcomeDeny, 70), v(decision.OutcomeDeny, 90)}, decision.OutcomeDeny, 80},
		{"majority approve", []decision.AgentVerdict{v(decision.OutcomeApprove, 20), v(decision.OutcomeApprove, 30), v(decision.OutcomeDeny, 70)}, decision.OutcomeApprove, 40},
		{"tie goes to review", []decision.AgentVerdict{v(decision.OutcomeApprove, 20), v(decision.OutcomeDeny, 80)}, decision.OutcomeReview, 50},
		{"single verdict", []decision.AgentVerdict{v(decision.OutcomeDeny, 66)}, decision.OutcomeDeny, 66},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, risk := AggregateVerdicts(tt.verdicts)
			if outcome != tt.outcome {
				t.Errorf("outcome: got %s, want %s", outcome, tt.outcome)
			}
			if risk != tt.risk {
				t.Errorf("risk: got %d, want %d", risk, tt.risk)
			}
		})
	}
}

func TestPanelNamesRepeatWhenOversized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(verdictBody("review", 50)))
	}))
	defer srv.Close()

	client := llm.NewClient(srv.URL, llm.NewKeyPool(nil), 5*time.Second)
	p := NewPanel(client, config.LLM{Model: "m"}, 5, 10*time.Second)

	verdicts, _, err := p.Assess(context.Background(), testApplicant(), 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(verdicts) != 5 {
		t.Fatalf("expected 5 verdicts, got %d", len(verdicts))
	}

	names := make(map[string]bool)
	for _, v := range verdicts {
		if names[v.Agent] {
			t.Errorf("duplicate agent name %q", v.Agent)
		}
		names[v.Agent] = true
	}
	if !names[fmt.Sprintf("prudent-%d", 2)] {
		t.Errorf("expected a prudent-2 agent, got %v", names)
	}
}
