package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/riskgate/riskgate/internal/adapter/llm"
	"github.com/riskgate/riskgate/internal/adapter/ws"
	"github.com/riskgate/riskgate/internal/domain/applicant"
	"github.com/riskgate/riskgate/internal/domain/decision"
	"github.com/riskgate/riskgate/internal/port/messagequeue"
	"github.com/riskgate/riskgate/internal/service"
)

const llmHealthTimeout = 5 * time.Second

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Applicants *service.ApplicantService
	Decisions  *service.DecisionService
	Reports    *service.ReportService
	Registry   *service.ModelRegistry
	LLM        *llm.Client
	Queue      messagequeue.Queue
	Hub        *ws.Hub
}

// --- Applicants ---

func (h *Handlers) CreateApplicant(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[applicant.CreateRequest](w, r)
	if !ok {
		return
	}

	a, err := h.Applicants.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "applicant not found")
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handlers) GetApplicant(w http.ResponseWriter, r *http.Request) {
	a, err := h.Applicants.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "applicant not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handlers) ListApplicants(w http.ResponseWriter, r *http.Request) {
	applicants, err := h.Applicants.List(r.Context(), queryInt(r, "limit", 100))
	if err != nil {
		writeDomainError(w, err, "applicants not found")
		return
	}
	if applicants == nil {
		applicants = []applicant.Applicant{}
	}
	writeJSON(w, http.StatusOK, applicants)
}

// --- Decisions ---

type decisionResponse struct {
	*decision.Decision
	Cached bool `json:"cached"`
}

func (h *Handlers) CreateDecision(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[decision.Request](w, r)
	if !ok {
		return
	}
	if req.ApplicantID == "" {
		writeError(w, http.StatusBadRequest, "applicant_id is required")
		return
	}

	d, cached, err := h.Decisions.Decide(r.Context(), req.ApplicantID)
	if err != nil {
		writeDomainError(w, err, "applicant not found")
		return
	}
	writeJSON(w, http.StatusCreated, decisionResponse{Decision: d, Cached: cached})
}

// EnqueueDecision accepts a decision request for asynchronous processing
// over the queue and returns immediately.
func (h *Handlers) EnqueueDecision(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[decision.Request](w, r)
	if !ok {
		return
	}
	if req.ApplicantID == "" {
		writeError(w, http.StatusBadRequest, "applicant_id is required")
		return
	}
	if h.Queue == nil {
		writeError(w, http.StatusServiceUnavailable, "queue not configured")
		return
	}

	payload, _ := json.Marshal(req)
	if err := h.Queue.Publish(r.Context(), messagequeue.SubjectDecisionRequested, payload); err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "applicant_id": req.ApplicantID})
}

func (h *Handlers) GetDecision(w http.ResponseWriter, r *http.Request) {
	d, err := h.Decisions.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "decision not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handlers) ListDecisions(w http.ResponseWriter, r *http.Request) {
	decisions, err := h.Decisions.List(r.Context(), queryInt(r, "limit", 100))
	if err != nil {
		writeDomainError(w, err, "decisions not found")
		return
	}
	if decisions == nil {
		decisions = []decision.Decision{}
	}
	writeJSON(w, http.StatusOK, decisions)
}

func (h *Handlers) ResolveDecision(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		Outcome decision.Outcome `json:"outcome"`
	}](w, r)
	if !ok {
		return
	}

	d, err := h.Decisions.Resolve(r.Context(), urlParam(r, "id"), body.Outcome)
	if err != nil {
		writeDomainError(w, err, "decision not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// --- Model ---

func (h *Handlers) GetModel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       h.Registry.Name(),
		"path":       h.Registry.Path(),
		"trees":      h.Registry.Rounds(),
		"importance": h.Registry.Importance(),
	})
}

func (h *Handlers) ReloadModel(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.Load(); err != nil {
		writeDomainError(w, err, "")
		return
	}

	if h.Hub != nil {
		h.Hub.BroadcastEvent(r.Context(), ws.EventModelReloaded, ws.ModelReloadedEvent{
			Path:  h.Registry.Path(),
			Trees: h.Registry.Rounds(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":  h.Registry.Name(),
		"trees": h.Registry.Rounds(),
	})
}

// --- LLM ---

func (h *Handlers) LLMHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), llmHealthTimeout)
	defer cancel()

	healthy, err := h.LLM.Health(ctx)
	if err != nil || !healthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"healthy": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"healthy": true})
}
