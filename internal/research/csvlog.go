// Package research appends one CSV row per decision for offline
// evaluation of the routing strategy (escalation rate, token spend,
// latency, fairness interventions).
package research

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var header = []string{
	"timestamp", "applicant_id", "decision_id", "routing_strategy",
	"ml_confidence_score", "tokens_in", "tokens_out", "cost_usd",
	"latency_ms", "active_key_id", "key_switches",
	"fairness_triggered", "fairness_changed", "final_decision", "risk_score",
}

// Entry is one evaluation row.
type Entry struct {
	Timestamp         time.Time
	ApplicantID       string
	DecisionID        string
	Route             string
	MLConfidence      float64
	TokensIn          int64
	TokensOut         int64
	CostUSD           float64
	LatencyMs         int64
	ActiveKeyID       int
	KeySwitches       int
	FairnessTriggered bool
	FairnessChanged   bool
	Outcome           string
	RiskScore         int
}

// Log is an append-only CSV evaluation log. Appends are serialized so
// concurrent decisions produce whole rows.
type Log struct {
	mu   sync.Mutex
	path string
}

// NewLog opens (creating if needed) the CSV log at path and writes the
// header row on first creation.
func NewLog(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create log: %w", err)
		}
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("flush header: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("close log: %w", err)
		}
	}

	return &Log{path: path}, nil
}

// Append writes one entry to the log.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	record := []string{
		e.Timestamp.UTC().Format(time.RFC3339),
		e.ApplicantID,
		e.DecisionID,
		e.Route,
		strconv.FormatFloat(e.MLConfidence, 'f', 4, 64),
		strconv.FormatInt(e.TokensIn, 10),
		strconv.FormatInt(e.TokensOut, 10),
		strconv.FormatFloat(e.CostUSD, 'f', 6, 64),
		strconv.FormatInt(e.LatencyMs, 10),
		strconv.Itoa(e.ActiveKeyID),
		strconv.Itoa(e.KeySwitches),
		strconv.FormatBool(e.FairnessTriggered),
		strconv.FormatBool(e.FairnessChanged),
		e.Outcome,
		strconv.Itoa(e.RiskScore),
	}
	if err := w.Write(record); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush entry: %w", err)
	}
	return nil
}

// Summary aggregates the log for quick inspection.
type Summary struct {
	Rows           int     `json:"rows"`
	Escalated      int     `json:"escalated"`
	EscalationRate float64 `json:"escalation_rate"`
	TotalTokensIn  int64   `json:"total_tokens_in"`
	TotalTokensOut int64   `json:"total_tokens_out"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
	KeySwitches    int     `json:"key_switches"`
	FairnessChecks int     `json:"fairness_checks"`
	ChangedByCheck int     `json:"changed_by_check"`
}

// Summarize reads the whole log and computes aggregate statistics.
func (l *Log) Summarize() (*Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	if len(records) == 0 {
		return &Summary{}, nil
	}

	var sum Summary
	var latencyTotal int64
	for _, rec := range records[1:] { // skip header
		if len(rec) != len(header) {
			continue
		}
		sum.Rows++
		if rec[3] == "llm_panel" {
			sum.Escalated++
		}
		tokensIn, _ := strconv.ParseInt(rec[5], 10, 64)
		tokensOut, _ := strconv.ParseInt(rec[6], 10, 64)
		cost, _ := strconv.ParseFloat(rec[7], 64)
		latency, _ := strconv.ParseInt(rec[8], 10, 64)
		switches, _ := strconv.Atoi(rec[10])

		sum.TotalTokensIn += tokensIn
		sum.TotalTokensOut += tokensOut
		sum.TotalCostUSD += cost
		latencyTotal += latency
		sum.KeySwitches += switches

		if rec[11] == "true" {
			sum.FairnessChecks++
		}
		if rec[12] == "true" {
			sum.ChangedByCheck++
		}
	}

	if sum.Rows > 0 {
		sum.EscalationRate = float64(sum.Escalated) / float64(sum.Rows)
		sum.AvgLatencyMs = float64(latencyTotal) / float64(sum.Rows)
	}
	return &sum, nil
}
