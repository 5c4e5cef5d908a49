package scoring

import (
	"math/rand"
	"path/filepath"
	"testing"
)

// syntheticLoans builds a linearly separable-ish dataset: high DTI and low
// FICO drive defaults.
func syntheticLoans(n int, seed int64) (X [][]float64, y []int) {
	rnd := rand.New(rand.NewSource(seed))
	for range n {
		x := make([]float64, NumFeatures())
		x[0] = 5000 + rnd.Float64()*30000  // loan amount
		x[1] = 36                          // term
		x[2] = 6 + rnd.Float64()*20        // rate
		x[4] = 30000 + rnd.Float64()*90000 // income
		x[5] = rnd.Float64() * 40          // dti
		x[6] = 600 + rnd.Float64()*250     // fico
		x[8] = rnd.Float64() * 100         // revol util

		label := 0
		if x[5] > 25 && x[6] < 690 {
			label = 1
		}
		X = append(X, x)
		y = append(y, label)
	}
	return X, y
}

func TestFitAndPredict(t *testing.T) {
	X, y := syntheticLoans(400, 1)

	var e Ensemble
	err := e.Fit(X, y, FitOptions{Rounds: 40, MaxDepth: 3, Seed: 1})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if e.Rounds() != 40 {
		t.Fatalf("expected 40 trees, got %d", e.Rounds())
	}

	correct := 0
	for i := range X {
		p := e.PredictProba(X[i])
		if p <= 0 || p >= 1 {
			t.Fatalf("probability out of (0,1): %v", p)
		}
		pred := 0
		if p >= 0.5 {
			pred = 1
		}
		if pred == y[i] {
			correct++
		}
	}
	acc := float64(correct) / float64(len(X))
	if acc < 0.9 {
		t.Fatalf("training accuracy too low: %.3f", acc)
	}
}

func TestFitRejectsBadInput(t *testing.T) {
	var e Ensemble
	if err := e.Fit(nil, nil, FitOptions{}); err == nil {
		t.Error("expected error for empty training set")
	}

	X := [][]float64{{1, 2}, {3, 4}}
	if err := e.Fit(X, []int{1}, FitOptions{}); err == nil {
		t.Error("expected error for length mismatch")
	}
	if err := e.Fit(X, []int{1, 1}, FitOptions{}); err == nil {
		t.Error("expected error for single-class labels")
	}
	if err := e.Fit(X, []int{0, 2}, FitOptions{}); err == nil {
		t.Error("expected error for non-binary labels")
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	X, y := syntheticLoans(200, 2)

	var e Ensemble
	e.Features = FeatureNames()
	if err := e.Fit(X, y, FitOptions{Rounds: 10, Seed: 2}); err != nil {
		t.Fatalf("fit: %v", err)
	}

	path := filepath.Join(t.TempDir(), "models", "gbm.bin")
	if err := e.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Rounds() != e.Rounds() {
		t.Fatalf("expected %d trees after reload, got %d", e.Rounds(), loaded.Rounds())
	}

	for i := 0; i < 20; i++ {
		want := e.PredictProba(X[i])
		got := loaded.PredictProba(X[i])
		if want != got {
			t.Fatalf("row %d: reloaded model predicts %v, want %v", i, got, want)
		}
	}
}

func TestFeatureImportance(t *testing.T) {
	X, y := syntheticLoans(400, 4)
	var e Ensemble
	if err := e.Fit(X, y, FitOptions{Rounds: 20, Seed: 4}); err != nil {
		t.Fatalf("fit: %v", err)
	}

	imp := e.FeatureImportance()
	if len(imp) != NumFeatures() {
		t.Fatalf("expected %d entries, got %d", NumFeatures(), len(imp))
	}

	var sum float64
	for i, v := range imp {
		if v < 0 {
			t.Fatalf("feature %d: negative importance %v", i, v)
		}
		sum += v
	}
	if sum < 0.999 || sum > 1.001 {
		t.Fatalf("importance should sum to 1, got %v", sum)
	}

	// DTI and FICO drive the synthetic labels; they should dominate.
	if imp[5]+imp[6] < imp[0]+imp[2]+imp[8] {
		t.Errorf("expected dti+fico to dominate splits, got %v", imp)
	}
}

func TestFeatureImportanceEmptyEnsemble(t *testing.T) {
	var e Ensemble
	for _, v := range e.FeatureImportance() {
		if v != 0 {
			t.Fatalf("expected all-zero importance for empty ensemble, got %v", v)
		}
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.bin")); err == nil {
		t.Fatal("expected error for missing artifact")
	}
}

func TestNeutralizeUsesMedians(t *testing.T) {
	X, y := syntheticLoans(100, 3)
	var e Ensemble
	if err := e.Fit(X, y, FitOptions{Rounds: 5, Seed: 3}); err != nil {
		t.Fatalf("fit: %v", err)
	}

	x := append([]float64(nil), X[0]...)
	x[4] = 999999 // extreme income
	out := e.Neutralize(x, []int{4})

	if out[4] != e.Medians[4] {
		t.Fatalf("expected income reset to median %v, got %v", e.Medians[4], out[4])
	}
	if x[4] != 999999 {
		t.Fatal("Neutralize must not mutate the input row")
	}
	if out[5] != x[5] {
		t.Fatal("untouched features must be preserved")
	}
}
