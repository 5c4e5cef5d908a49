package scoring

import (
	"math/rand"
	"sort"
	"sync"
)

// Node is a single node of a regression tree. Fields are exported so the
// tree survives gob round-trips in the model artifact.
type Node struct {
	Leaf      bool
	Feature   int
	Threshold float64 // x[Feature] <= Threshold goes left
	Value     float64 // leaf prediction
	Left      *Node
	Right     *Node
}

// Tree is a depth-limited CART regression tree fit to boosting residuals.
type Tree struct {
	Root *Node
}

// Predict returns the leaf value for a feature row.
func (t *Tree) Predict(x []float64) float64 {
	node := t.Root
	for node != nil && !node.Leaf {
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	if node == nil {
		return 0
	}
	return node.Value
}

// treeOptions are per-tree fitting parameters, derived from FitOptions.
type treeOptions struct {
	maxDepth       int
	minSamplesLeaf int
	maxFeatures    int // 0 = all
}

// splitCandidate holds the outcome of a single feature's best-split search.
type splitCandidate struct {
	gain      float64
	feature   int
	threshold float64
	leftIdx   []int
	rightIdx  []int
}

// buildTree fits a regression tree to targets (gradients) with per-leaf
// Newton values computed from hess. idx selects the active rows.
func buildTree(X [][]float64, targets, hess []float64, idx []int, depth int, opt treeOptions, rnd *rand.Rand) *Node {
	node := &Node{}

	if depth >= opt.maxDepth || len(idx) < 2*opt.minSamplesLeaf {
		return makeLeaf(targets, hess, idx)
	}

	p := len(X[0])
	featIndices := make([]int, p)
	for j := range featIndices {
		featIndices[j] = j
	}
	if opt.maxFeatures > 0 && opt.maxFeatures < p {
		rnd.Shuffle(p, func(i, j int) {
			featIndices[i], featIndices[j] = featIndices[j], featIndices[i]
		})
		featIndices = featIndices[:opt.maxFeatures]
	}

	// Search each candidate feature concurrently.
	results := make(chan splitCandidate, len(featIndices))
	var wg sync.WaitGroup
	for _, f := range featIndices {
		wg.Add(1)
		go func(f int) {
			defer wg.Done()
			results <- bestSplitForFeature(X, targets, idx, f, opt.minSamplesLeaf)
		}(f)
	}
	wg.Wait()
	close(results)

	best := splitCandidate{feature: -1}
	for cand := range results {
		if cand.feature >= 0 && cand.gain > best.gain {
			best = cand
		}
	}

	if best.feature < 0 || best.gain <= 0 {
		return makeLeaf(targets, hess, idx)
	}

	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = buildTree(X, targets, hess, best.leftIdx, depth+1, opt, rnd)
	node.Right = buildTree(X, targets, hess, best.rightIdx, depth+1, opt, rnd)
	return node
}

// makeLeaf computes the Newton leaf value: sum(gradient) / sum(hessian).
func makeLeaf(targets, hess []float64, idx []int) *Node {
	var g, h float64
	for _, i := range idx {
		g += targets[i]
		h += hess[i]
	}
	const eps = 1e-9
	return &Node{Leaf: true, Value: g / (h + eps)}
}

// bestSplitForFeature scans sorted thresholds of one feature, maximizing
// variance reduction of the targets.
func bestSplitForFeature(X [][]float64, targets []float64, idx []int, f, minLeaf int) splitCandidate {
	best := splitCandidate{feature: -1}

	order := make([]int, len(idx))
	copy(order, idx)
	sort.Slice(order, func(a, b int) bool { return X[order[a]][f] < X[order[b]][f] })

	var total float64
	for _, i := range order {
		total += targets[i]
	}
	n := float64(len(order))

	var leftSum float64
	for s := 1; s < len(order); s++ {
		leftSum += targets[order[s-1]]
		if X[order[s]][f] == X[order[s-1]][f] {
			continue
		}
		if s < minLeaf || len(order)-s < minLeaf {
			continue
		}

		nl := float64(s)
		nr := n - nl
		rightSum := total - leftSum
		// Variance reduction is proportional to the between-group term.
		gain := leftSum*leftSum/nl + rightSum*rightSum/nr - total*total/n
		if gain > best.gain {
			best = splitCandidate{
				gain:      gain,
				feature:   f,
				threshold: (X[order[s-1]][f] + X[order[s]][f]) / 2,
			}
			best.leftIdx = append([]int(nil), order[:s]...)
			best.rightIdx = append([]int(nil), order[s:]...)
		}
	}
	return best
}
