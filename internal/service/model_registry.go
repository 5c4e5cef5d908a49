package service

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/riskgate/riskgate/internal/scoring"
)

// ErrNoModel is returned when scoring is attempted before an artifact
// has been loaded.
var ErrNoModel = errors.New("no model loaded")

// ModelRegistry holds the active scoring ensemble and supports hot
// reloading of the artifact without restarting the service.
type ModelRegistry struct {
	mu       sync.RWMutex
	ensemble *scoring.Ensemble
	name     string
	path     string
}

// NewModelRegistry creates a registry for the artifact at path. The model
// is not loaded until Load or Swap is called.
func NewModelRegistry(name, path string) *ModelRegistry {
	return &ModelRegistry{name: name, path: path}
}

// Load reads the artifact from disk and makes it the active model.
func (r *ModelRegistry) Load() error {
	e, err := scoring.LoadFile(r.path)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	r.Swap(e)
	slog.Info("model loaded", "name", r.name, "path", r.path, "trees", e.Rounds())
	return nil
}

// Swap replaces the active ensemble. In-flight scores finish against the
// old model.
func (r *ModelRegistry) Swap(e *scoring.Ensemble) {
	r.mu.Lock()
	r.ensemble = e
	r.mu.Unlock()
}

// Score returns the default probability for one feature row.
func (r *ModelRegistry) Score(x []float64) (float64, error) {
	r.mu.RLock()
	e := r.ensemble
	r.mu.RUnlock()
	if e == nil {
		return 0, ErrNoModel
	}
	return e.PredictProba(x), nil
}

// ScoreNeutralized scores x with the given feature indices reset to their
// training medians.
func (r *ModelRegistry) ScoreNeutralized(x []float64, features []int) (float64, error) {
	r.mu.RLock()
	e := r.ensemble
	r.mu.RUnlock()
	if e == nil {
		return 0, ErrNoModel
	}
	return e.PredictProba(e.Neutralize(x, features)), nil
}

// Importance returns the active model's per-feature split importance,
// keyed by feature name. Nil when no model is loaded.
func (r *ModelRegistry) Importance() map[string]float64 {
	r.mu.RLock()
	e := r.ensemble
	r.mu.RUnlock()
	if e == nil {
		return nil
	}
	imp := e.FeatureImportance()
	names := scoring.FeatureNames()
	out := make(map[string]float64, len(names))
	for i, name := range names {
		if i < len(imp) {
			out[name] = imp[i]
		}
	}
	return out
}

// Name returns the configured model name, reported in decisions.
func (r *ModelRegistry) Name() string { return r.name }

// Path returns the artifact path the registry loads from.
func (r *ModelRegistry) Path() string { return r.path }

// Rounds reports the number of trees in the active model, 0 if none.
func (r *ModelRegistry) Rounds() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.ensemble == nil {
		return 0
	}
	return r.ensemble.Rounds()
}
