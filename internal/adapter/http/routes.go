package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Applicants
		r.Post("/applicants", h.CreateApplicant)
		r.Get("/applicants", h.ListApplicants)
		r.Get("/applicants/{id}", h.GetApplicant)

		// Decisions
		r.Post("/decisions", h.CreateDecision)
		r.Post("/decisions/async", h.EnqueueDecision)
		r.Get("/decisions", h.ListDecisions)
		r.Get("/decisions/{id}", h.GetDecision)
		r.Post("/decisions/{id}/resolve", h.ResolveDecision)

		// Reports
		r.Get("/reports/routing", h.RoutingDistribution)
		r.Get("/reports/summary", h.DecisionSummary)
		r.Get("/reports/daily", h.DailySeries)
		r.Get("/reports/evaluation", h.EvaluationSummary)

		// Model management
		r.Get("/model", h.GetModel)
		r.Post("/model/reload", h.ReloadModel)

		// LLM backend
		r.Get("/llm/health", h.LLMHealth)
	})
}
