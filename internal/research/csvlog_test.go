package research

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewLogWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "eval.csv")

	if _, err := NewLog(path); err != nil {
		t.Fatalf("new log: %v", err)
	}
	// Reopening must not duplicate the header.
	if _, err := NewLog(path); err != nil {
		t.Fatalf("reopen log: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected header only, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "timestamp,applicant_id,decision_id,routing_strategy") {
		t.Errorf("unexpected header: %s", lines[0])
	}
}

func TestAppendAndSummarize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eval.csv")
	log, err := NewLog(path)
	if err != nil {
		t.Fatal(err)
	}

	entries := []Entry{
		{
			Timestamp: time.Now(), ApplicantID: "a1", DecisionID: "d1",
			Route: "ml_only", MLConfidence: 0.94, LatencyMs: 12,
			Outcome: "approve", RiskScore: 18,
		},
		{
			Timestamp: time.Now(), ApplicantID: "a2", DecisionID: "d2",
			Route: "llm_panel", MLConfidence: 0.61,
			TokensIn: 900, TokensOut: 150, CostUSD: 0.00063, LatencyMs: 2400,
			KeySwitches: 1, FairnessTriggered: true, FairnessChanged: true,
			Outcome: "review", RiskScore: 66,
		},
	}
	for _, e := range entries {
		if err := log.Append(e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	sum, err := log.Summarize()
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.Rows != 2 {
		t.Fatalf("expected 2 rows, got %d", sum.Rows)
	}
	if sum.Escalated != 1 || sum.EscalationRate != 0.5 {
		t.Errorf("unexpected escalation stats: %d / %f", sum.Escalated, sum.EscalationRate)
	}
	if sum.TotalTokensIn != 900 || sum.TotalTokensOut != 150 {
		t.Errorf("unexpected token totals: %d/%d", sum.TotalTokensIn, sum.TotalTokensOut)
	}
	if sum.KeySwitches != 1 {
		t.Errorf("expected 1 key switch, got %d", sum.KeySwitches)
	}
	if sum.FairnessChecks != 1 || sum.ChangedByCheck != 1 {
		t.Errorf("unexpected fairness stats: %d/%d", sum.FairnessChecks, sum.ChangedByCheck)
	}
	if sum.AvgLatencyMs != 1206 {
		t.Errorf("expected avg latency 1206, got %f", sum.AvgLatencyMs)
	}
}

func TestSummarizeEmptyLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eval.csv")
	log, err := NewLog(path)
	if err != nil {
		t.Fatal(err)
	}

	sum, err := log.Summarize()
	if err != nil {
		t.Fatal(err)
	}
	if sum.Rows != 0 || sum.EscalationRate != 0 {
		t.Errorf("expected zero summary, got %+v", sum)
	}
}
