package explain

import (
	"errors"
	"fmt"
	"math"

	"cancerrisk/ml"
)

// TreeExplainer computes exact path-dependent SHAP values for a tree
// ensemble. Background expectations come from the training cover stored in
// each node, so no background dataset is needed.
type TreeExplainer struct {
	trees     []*ml.DecisionTree
	classes   []int
	nFeatures int
	expected  []float64
}

// NewTreeExplainer prepares an explainer for a fitted ensemble.
func NewTreeExplainer(model ml.TreeEnsemble) (*TreeExplainer, error) {
	trees := model.Trees()
	if len(trees) == 0 {
		return nil, ml.ErrNotTrained
	}
	classes := model.Classes()
	expected := make([]float64, len(classes))
	for i, tree := range trees {
		nodes := tree.Nodes()
		if len(nodes) == 0 {
			return nil, fmt.Errorf("tree %d: %w", i, ml.ErrNotTrained)
		}
		if len(nodes[0].Value) != len(classes) {
			return nil, fmt.Errorf("tree %d has %d class values, model has %d classes", i, len(nodes[0].Value), len(classes))
		}
		for k, v := range nodes[0].Value {
			expected[k] += v
		}
	}
	for k := range expected {
		expected[k] /= float64(len(trees))
	}
	return &TreeExplainer{
		trees:     trees,
		classes:   classes,
		nFeatures: model.NFeatures(),
		expected:  expected,
	}, nil
}

// ExpectedValue is the mean model output for classIdx over the training data.
func (e *TreeExplainer) ExpectedValue(classIdx int) float64 {
	return e.expected[classIdx]
}

// ShapValues returns one attribution per feature for the probability of
// classIdx. They sum to the model output minus ExpectedValue(classIdx).
func (e *TreeExplainer) ShapValues(x []float64, classIdx int) ([]float64, error) {
	if len(x) != e.nFeatures {
		return nil, fmt.Errorf("%w: got %d, model expects %d", ml.ErrFeatureCount, len(x), e.nFeatures)
	}
	if classIdx < 0 || classIdx >= len(e.classes) {
		return nil, fmt.Errorf("class index %d out of range", classIdx)
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("feature %d is not finite", i)
		}
	}

	phi := make([]float64, e.nFeatures)
	for _, tree := range e.trees {
		w := treeWalker{nodes: tree.Nodes(), x: x, class: classIdx, phi: phi}
		if err := w.recurse(0, nil, 1, 1, -1); err != nil {
			return nil, err
		}
	}
	for i := range phi {
		phi[i] /= float64(len(e.trees))
	}
	return phi, nil
}

// output is the ensemble's averaged leaf distribution for x.
func (e *TreeExplainer) output(x []float64) ([]float64, error) {
	out := make([]float64, len(e.classes))
	for _, tree := range e.trees {
		proba, err := tree.PredictProba(x)
		if err != nil {
			return nil, err
		}
		for k, v := range proba {
			out[k] += v
		}
	}
	for k := range out {
		out[k] /= float64(len(e.trees))
	}
	return out, nil
}

// pathElement is one feature split on the path from the root. zero and one
// are the fractions of paths flowing through when the feature is absent or
// present in the coalition; weight is the running permutation weight.
type pathElement struct {
	feature int
	zero    float64
	one     float64
	weight  float64
}

type treeWalker struct {
	nodes []ml.TreeNode
	x     []float64
	class int
	phi   []float64
}

var errBadTree = errors.New("malformed tree")

func (w *treeWalker) recurse(j int, path []pathElement, zero, one float64, feature int) error {
	if j < 0 || j >= len(w.nodes) {
		return errBadTree
	}
	path = extendPath(path, zero, one, feature)
	node := w.nodes[j]

	if node.IsLeaf {
		v := node.Value[w.class]
		for i := 1; i < len(path); i++ {
			u := unwoundSum(path, i)
			w.phi[path[i].feature] += u * (path[i].one - path[i].zero) * v
		}
		return nil
	}

	if node.FeatureIdx < 0 || node.FeatureIdx >= len(w.x) {
		return errBadTree
	}
	hot, cold := node.LeftChild, node.RightChild
	if w.x[node.FeatureIdx] > node.Threshold {
		hot, cold = cold, hot
	}
	if hot < 0 || hot >= len(w.nodes) || cold < 0 || cold >= len(w.nodes) {
		return errBadTree
	}

	incomingZero, incomingOne := 1.0, 1.0
	for k := 1; k < len(path); k++ {
		if path[k].feature == node.FeatureIdx {
			incomingZero, incomingOne = path[k].zero, path[k].one
			path = unwindPath(path, k)
			break
		}
	}

	hotZero := incomingZero * coverRatio(w.nodes[hot].Cover, node.Cover)
	coldZero := incomingZero * coverRatio(w.nodes[cold].Cover, node.Cover)
	if err := w.recurse(hot, path, hotZero, incomingOne, node.FeatureIdx); err != nil {
		return err
	}
	return w.recurse(cold, path, coldZero, 0, node.FeatureIdx)
}

func coverRatio(child, parent float64) float64 {
	if parent <= 0 {
		return 0
	}
	return child / parent
}

// extendPath returns a copy of path grown by one element.
func extendPath(path []pathElement, zero, one float64, feature int) []pathElement {
	l := len(path)
	out := make([]pathElement, l+1)
	copy(out, path)
	out[l] = pathElement{feature: feature, zero: zero, one: one}
	if l == 0 {
		out[l].weight = 1
	}
	for i := l - 1; i >= 0; i-- {
		out[i+1].weight += one * out[i].weight * float64(i+1) / float64(l+1)
		out[i].weight = zero * out[i].weight * float64(l-i) / float64(l+1)
	}
	return out
}

// unwindPath returns a copy of path with element i removed, undoing its
// extendPath.
func unwindPath(path []pathElement, i int) []pathElement {
	l := len(path) - 1
	out := make([]pathElement, len(path))
	copy(out, path)

	one, zero := path[i].one, path[i].zero
	n := out[l].weight
	for j := l - 1; j >= 0; j-- {
		if one != 0 {
			t := out[j].weight
			out[j].weight = n * float64(l+1) / (float64(j+1) * one)
			n = t - out[j].weight*zero*float64(l-j)/float64(l+1)
		} else {
			out[j].weight = out[j].weight * float64(l+1) / (zero * float64(l-j))
		}
	}
	for j := i; j < l; j++ {
		out[j].feature = out[j+1].feature
		out[j].zero = out[j+1].zero
		out[j].one = out[j+1].one
	}
	return out[:l]
}

// unwoundSum is the total weight of path with element i unwound.
func unwoundSum(path []pathElement, i int) float64 {
	total := 0.0
	for _, e := range unwindPath(path, i) {
		total += e.weight
	}
	return total
}
