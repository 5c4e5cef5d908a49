package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventDecisionCompleted = "decision.completed"
	EventDecisionEscalated = "decision.escalated"
	EventModelReloaded     = "model.reloaded"
)

// DecisionCompletedEvent is broadcast when a decision is finalized.
type DecisionCompletedEvent struct {
	DecisionID  string  `json:"decision_id"`
	ApplicantID string  `json:"applicant_id"`
	Route       string  `json:"route"`
	Outcome     string  `json:"outcome"`
	RiskScore   int     `json:"risk_score"`
	LatencyMs   int64   `json:"latency_ms"`
	CostUSD     float64 `json:"cost_usd"`
}

// DecisionEscalatedEvent is broadcast when the model's confidence falls
// below the threshold and the application is handed to the panel.
type DecisionEscalatedEvent struct {
	ApplicantID  string  `json:"applicant_id"`
	MLConfidence float64 `json:"ml_confidence"`
}

// ModelReloadedEvent is broadcast when a new scoring artifact is loaded.
type ModelReloadedEvent struct {
	Path  string `json:"path"`
	Trees int    `json:"trees"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
