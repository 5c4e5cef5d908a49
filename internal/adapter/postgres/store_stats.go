package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/riskgate/riskgate/internal/domain/decision"
	"github.com/riskgate/riskgate/internal/port/database"
)

// RoutingDistribution returns decision counts grouped by route.
func (s *Store) RoutingDistribution(ctx context.Context) ([]database.RoutingCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT route, COUNT(*) FROM decisions GROUP BY route ORDER BY route`)
	if err != nil {
		return nil, fmt.Errorf("routing distribution: %w", err)
	}
	defer rows.Close()

	var counts []database.RoutingCount
	for rows.Next() {
		var c database.RoutingCount
		var route string
		if err := rows.Scan(&route, &c.Count); err != nil {
			return nil, fmt.Errorf("scan routing count: %w", err)
		}
		c.Route = decision.Route(route)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// DecisionSummary aggregates the evaluation metrics across all decisions.
func (s *Store) DecisionSummary(ctx context.Context) (*database.Summary, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
			COUNT(*) FILTER (WHERE route = 'ml_only'),
			COUNT(*) FILTER (WHERE route = 'llm_panel'),
			COALESCE(SUM(tokens_in), 0),
			COALESCE(SUM(tokens_out), 0),
			COALESCE(SUM(cost_usd), 0),
			COALESCE(AVG(latency_ms), 0),
			COUNT(*) FILTER (WHERE fairness_triggered),
			COUNT(*) FILTER (WHERE fairness_changed),
			COALESCE(SUM(key_switches), 0)
		 FROM decisions`)

	var sum database.Summary
	err := row.Scan(&sum.TotalDecisions, &sum.MLOnly, &sum.Escalated,
		&sum.TotalTokensIn, &sum.TotalTokensOut, &sum.TotalCostUSD, &sum.AvgLatencyMs,
		&sum.FairnessTriggered, &sum.FairnessChanged, &sum.KeySwitches)
	if err != nil {
		return nil, fmt.Errorf("decision summary: %w", err)
	}
	return &sum, nil
}

// DailySeries returns per-day decision volume, escalations and cost since
// the given time.
func (s *Store) DailySeries(ctx context.Context, since time.Time) ([]database.DailyCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT to_char(created_at::date, 'YYYY-MM-DD'),
			COUNT(*),
			COUNT(*) FILTER (WHERE route = 'llm_panel'),
			COALESCE(SUM(cost_usd), 0)
		 FROM decisions
		 WHERE created_at >= $1
		 GROUP BY created_at::date
		 ORDER BY created_at::date`, since)
	if err != nil {
		return nil, fmt.Errorf("daily series: %w", err)
	}
	defer rows.Close()

	var series []database.DailyCount
	for rows.Next() {
		var d database.DailyCount
		if err := rows.Scan(&d.Date, &d.Decisions, &d.Escalated, &d.CostUSD); err != nil {
			return nil, fmt.Errorf("scan daily count: %w", err)
		}
		series = append(series, d)
	}
	return series, rows.Err()
}
