package explain

import (
	"fmt"
	"math"
	"sort"

	"cancerrisk/ml"
)

// Contribution is one feature's share of a single prediction. Aggregate
// marks the folded "other features" row, which has no Value.
type Contribution struct {
	Feature   string  `json:"feature"`
	Value     float64 `json:"value"`
	SHAP      float64 `json:"shap"`
	Aggregate bool    `json:"aggregate,omitempty"`
}

// Explanation attributes Output - ExpectedValue across the input features.
type Explanation struct {
	Class         int            `json:"class"`
	ExpectedValue float64        `json:"expected_value"`
	Output        float64        `json:"output"`
	Contributions []Contribution `json:"contributions"`
}

// Explain attributes the probability of the predicted class for x. names
// labels each feature; nil falls back to "feature <i>".
func (e *TreeExplainer) Explain(x []float64, names []string) (Explanation, error) {
	if names != nil && len(names) != len(x) {
		return Explanation{}, fmt.Errorf("%d feature names for %d values", len(names), len(x))
	}
	if len(x) != e.nFeatures {
		return Explanation{}, fmt.Errorf("%w: got %d, model expects %d", ml.ErrFeatureCount, len(x), e.nFeatures)
	}
	out, err := e.output(x)
	if err != nil {
		return Explanation{}, err
	}
	classIdx := argmax(out)
	phi, err := e.ShapValues(x, classIdx)
	if err != nil {
		return Explanation{}, err
	}

	contributions := make([]Contribution, len(x))
	for i, v := range x {
		name := fmt.Sprintf("feature %d", i)
		if names != nil {
			name = names[i]
		}
		contributions[i] = Contribution{Feature: name, Value: v, SHAP: phi[i]}
	}
	return Explanation{
		Class:         e.classes[classIdx],
		ExpectedValue: e.expected[classIdx],
		Output:        out[classIdx],
		Contributions: contributions,
	}, nil
}

// Sum is ExpectedValue plus every contribution. It equals Output up to
// rounding.
func (x Explanation) Sum() float64 {
	total := x.ExpectedValue
	for _, c := range x.Contributions {
		total += c.SHAP
	}
	return total
}

// Top returns the n largest contributions by magnitude. When more than n
// features exist the last row folds the remainder into "<k> other features".
func (x Explanation) Top(n int) []Contribution {
	sorted := append([]Contribution(nil), x.Contributions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].SHAP) > math.Abs(sorted[j].SHAP)
	})
	if n <= 0 || len(sorted) <= n {
		return sorted
	}

	kept := sorted[:n-1]
	rest := Contribution{Feature: fmt.Sprintf("%d other features", len(sorted)-n+1), Aggregate: true}
	for _, c := range sorted[n-1:] {
		rest.SHAP += c.SHAP
	}
	return append(kept, rest)
}

func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
