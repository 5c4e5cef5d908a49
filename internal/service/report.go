package service

import (
	"context"
	"time"

	"github.com/riskgate/riskgate/internal/port/database"
	"github.com/riskgate/riskgate/internal/research"
)

// ReportService exposes aggregate decisioning reports.
type ReportService struct {
	store database.Store
	log   *research.Log
}

// NewReportService creates a ReportService. log may be nil when the
// evaluation log is disabled.
func NewReportService(store database.Store, log *research.Log) *ReportService {
	return &ReportService{store: store, log: log}
}

// RoutingDistribution returns decision counts per route.
func (s *ReportService) RoutingDistribution(ctx context.Context) ([]database.RoutingCount, error) {
	return s.store.RoutingDistribution(ctx)
}

// Summary returns the aggregate decisioning metrics.
func (s *ReportService) Summary(ctx context.Context) (*database.Summary, error) {
	return s.store.DecisionSummary(ctx)
}

// DailySeries returns per-day volume and cost for the last `days` days.
func (s *ReportService) DailySeries(ctx context.Context, days int) ([]database.DailyCount, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)
	return s.store.DailySeries(ctx, since)
}

// EvaluationSummary aggregates the CSV evaluation log. Returns an empty
// summary when the log is disabled.
func (s *ReportService) EvaluationSummary() (*research.Summary, error) {
	if s.log == nil {
		return &research.Summary{}, nil
	}
	return s.log.Summarize()
}
