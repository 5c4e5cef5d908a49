// Package scoring implements the gradient-boosted tree model used for
// fast-path default prediction, plus feature vectorization and artifact
// persistence.
package scoring

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// Ensemble is a gradient-boosted tree model for binary default prediction.
// Trees are fit to logistic-loss gradients with Newton leaf values.
// Fields are exported for gob encoding of the model artifact.
type Ensemble struct {
	Prior        float64 // initial log-odds of the positive (default) class
	LearningRate float64
	Trees        []*Tree
	Features     []string  // column names, aligned with vectorized rows
	Medians      []float64 // per-feature training medians, used by the fairness stage
}

// FitOptions control ensemble training.
type FitOptions struct {
	Rounds         int     // number of boosting rounds (default: 100)
	MaxDepth       int     // per-tree depth limit (default: 3)
	MinSamplesLeaf int     // minimum rows per leaf (default: 5)
	LearningRate   float64 // shrinkage (default: 0.1)
	MaxFeatures    int     // feature subsample per split; 0 = all
	Seed           int64
}

func (o *FitOptions) defaults() {
	if o.Rounds <= 0 {
		o.Rounds = 100
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = 3
	}
	if o.MinSamplesLeaf <= 0 {
		o.MinSamplesLeaf = 5
	}
	if o.LearningRate <= 0 {
		o.LearningRate = 0.1
	}
}

// Fit trains the ensemble on X (n rows of equal width) and binary labels y
// (1 = default). It replaces any previously fit trees.
func (e *Ensemble) Fit(X [][]float64, y []int, opt FitOptions) error {
	if len(X) == 0 {
		return errors.New("scoring: empty training set")
	}
	if len(y) != len(X) {
		return errors.New("scoring: X and y length mismatch")
	}
	p := len(X[0])
	for i := range X {
		if len(X[i]) != p {
			return errors.New("scoring: inconsistent row width")
		}
	}
	var pos int
	for _, label := range y {
		if label != 0 && label != 1 {
			return errors.New("scoring: labels must be 0 or 1")
		}
		pos += label
	}
	if pos == 0 || pos == len(y) {
		return errors.New("scoring: training set needs both classes")
	}

	opt.defaults()
	rnd := rand.New(rand.NewSource(opt.Seed))

	e.LearningRate = opt.LearningRate
	e.Prior = math.Log(float64(pos) / float64(len(y)-pos))
	e.Trees = e.Trees[:0]
	e.Medians = columnMedians(X)

	// Raw scores start at the prior; each round fits a tree to the
	// current gradients and shrinks its contribution.
	raw := make([]float64, len(X))
	for i := range raw {
		raw[i] = e.Prior
	}

	grad := make([]float64, len(X))
	hess := make([]float64, len(X))
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}

	topt := treeOptions{
		maxDepth:       opt.MaxDepth,
		minSamplesLeaf: opt.MinSamplesLeaf,
		maxFeatures:    opt.MaxFeatures,
	}

	for range opt.Rounds {
		for i := range X {
			prob := sigmoid(raw[i])
			grad[i] = float64(y[i]) - prob
			hess[i] = prob * (1 - prob)
		}

		tree := &Tree{Root: buildTree(X, grad, hess, idx, 0, topt, rnd)}
		e.Trees = append(e.Trees, tree)

		for i := range X {
			raw[i] += e.LearningRate * tree.Predict(X[i])
		}
	}
	return nil
}

// PredictProba returns the default probability for one feature row.
func (e *Ensemble) PredictProba(x []float64) float64 {
	raw := e.Prior
	for _, t := range e.Trees {
		raw += e.LearningRate * t.Predict(x)
	}
	return sigmoid(raw)
}

// Rounds reports the number of fitted trees.
func (e *Ensemble) Rounds() int { return len(e.Trees) }

// FeatureImportance reports how often each feature is used as a split
// across all trees, normalized to sum to 1. Indexed like a vectorized row.
func (e *Ensemble) FeatureImportance() []float64 {
	imp := make([]float64, NumFeatures())
	var total float64
	var walk func(n *Node)
	walk = func(n *Node) {
		if n == nil || n.Leaf {
			return
		}
		if n.Feature >= 0 && n.Feature < len(imp) {
			imp[n.Feature]++
			total++
		}
		walk(n.Left)
		walk(n.Right)
	}
	for _, t := range e.Trees {
		walk(t.Root)
	}
	if total > 0 {
		for i := range imp {
			imp[i] /= total
		}
	}
	return imp
}

// Neutralize returns a copy of x with the given feature indices reset to
// their training medians. Used by the fairness stage to remove proxy
// attributes from a borderline decision.
func (e *Ensemble) Neutralize(x []float64, features []int) []float64 {
	out := append([]float64(nil), x...)
	for _, f := range features {
		if f >= 0 && f < len(e.Medians) {
			out[f] = e.Medians[f]
		}
	}
	return out
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// columnMedians computes the per-column median of X.
func columnMedians(X [][]float64) []float64 {
	p := len(X[0])
	medians := make([]float64, p)
	col := make([]float64, len(X))
	for j := range p {
		for i := range X {
			col[i] = X[i][j]
		}
		sort.Float64s(col)
		mid := len(col) / 2
		if len(col)%2 == 0 {
			medians[j] = (col[mid-1] + col[mid]) / 2
		} else {
			medians[j] = col[mid]
		}
	}
	return medians
}
