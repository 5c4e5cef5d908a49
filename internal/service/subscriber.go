package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"github.com/riskgate/riskgate/internal/port/messagequeue"
)

// Subscriber consumes decision requests from the queue and runs the
// pipeline for each, bounding how many decisions run at once.
type Subscriber struct {
	queue     messagequeue.Queue
	decisions *DecisionService
	sem       *semaphore.Weighted
}

// NewSubscriber creates a queue subscriber that runs at most maxInFlight
// decisions concurrently.
func NewSubscriber(queue messagequeue.Queue, decisions *DecisionService, maxInFlight int64) *Subscriber {
	if maxInFlight <= 0 {
		maxInFlight = 8
	}
	return &Subscriber{
		queue:     queue,
		decisions: decisions,
		sem:       semaphore.NewWeighted(maxInFlight),
	}
}

// Start subscribes to decision requests. The returned stop function
// cancels the subscription.
func (s *Subscriber) Start(ctx context.Context) (func(), error) {
	return s.queue.Subscribe(ctx, messagequeue.SubjectDecisionRequested, func(subject string, data []byte) error {
		var req struct {
			ApplicantID string `json:"applicant_id"`
		}
		if err := json.Unmarshal(data, &req); err != nil || req.ApplicantID == "" {
			// Malformed requests are dropped, not redelivered.
			slog.Error("malformed decision request", "subject", subject, "error", err)
			return nil
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("acquire decision slot: %w", err)
		}
		defer s.sem.Release(1)

		d, cached, err := s.decisions.Decide(ctx, req.ApplicantID)
		if err != nil {
			slog.Error("queued decision failed", "applicant_id", req.ApplicantID, "error", err)
			return err
		}
		slog.Info("queued decision completed",
			"applicant_id", req.ApplicantID,
			"decision_id", d.ID,
			"outcome", d.Outcome,
			"cached", cached,
		)
		return nil
	})
}
