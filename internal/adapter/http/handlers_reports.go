package http

import (
	"net/http"

	"github.com/riskgate/riskgate/internal/port/database"
)

// RoutingDistribution reports decision counts per route.
func (h *Handlers) RoutingDistribution(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Reports.RoutingDistribution(r.Context())
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	if counts == nil {
		counts = []database.RoutingCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}

// DecisionSummary reports aggregate decisioning metrics.
func (h *Handlers) DecisionSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Reports.Summary(r.Context())
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// DailySeries reports per-day volume and cost. ?days= bounds the window
// (default 30).
func (h *Handlers) DailySeries(w http.ResponseWriter, r *http.Request) {
	series, err := h.Reports.DailySeries(r.Context(), queryInt(r, "days", 30))
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	if series == nil {
		series = []database.DailyCount{}
	}
	writeJSON(w, http.StatusOK, series)
}

// EvaluationSummary reports aggregate statistics from the CSV evaluation log.
func (h *Handlers) EvaluationSummary(w http.ResponseWriter, _ *http.Request) {
	sum, err := h.Reports.EvaluationSummary()
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
