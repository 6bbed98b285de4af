package explain

import (
	"bytes"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cancerrisk/ml"
)

func TestStumpExplanation(t *testing.T) {
	tree := ml.NewDecisionTree()
	require.NoError(t, tree.Train([][]float64{{0}, {1}}, []int{0, 1}))

	explainer, err := NewTreeExplainer(tree)
	require.NoError(t, err)

	expl, err := explainer.Explain([]float64{1}, []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, 1, expl.Class)
	assert.InDelta(t, 0.5, expl.ExpectedValue, 1e-12)
	assert.InDelta(t, 1.0, expl.Output, 1e-12)
	require.Len(t, expl.Contributions, 1)
	assert.Equal(t, "x", expl.Contributions[0].Feature)
	assert.InDelta(t, 0.5, expl.Contributions[0].SHAP, 1e-12)
}

// conditionalExpectation follows x for features in the coalition and
// averages both children by cover otherwise.
func conditionalExpectation(nodes []ml.TreeNode, j int, x []float64, coalition map[int]bool, class int) float64 {
	node := nodes[j]
	if node.IsLeaf {
		return node.Value[class]
	}
	if coalition[node.FeatureIdx] {
		if x[node.FeatureIdx] <= node.Threshold {
			return conditionalExpectation(nodes, node.LeftChild, x, coalition, class)
		}
		return conditionalExpectation(nodes, node.RightChild, x, coalition, class)
	}
	left, right := nodes[node.LeftChild], nodes[node.RightChild]
	return (left.Cover*conditionalExpectation(nodes, node.LeftChild, x, coalition, class) +
		right.Cover*conditionalExpectation(nodes, node.RightChild, x, coalition, class)) / node.Cover
}

// bruteForceShap enumerates every coalition.
func bruteForceShap(nodes []ml.TreeNode, x []float64, class int) []float64 {
	m := len(x)
	phi := make([]float64, m)
	fact := func(n int) float64 {
		f := 1.0
		for i := 2; i <= n; i++ {
			f *= float64(i)
		}
		return f
	}
	for i := 0; i < m; i++ {
		for mask := 0; mask < 1<<m; mask++ {
			if mask&(1<<i) != 0 {
				continue
			}
			coalition := make(map[int]bool)
			size := 0
			for k := 0; k < m; k++ {
				if mask&(1<<k) != 0 {
					coalition[k] = true
					size++
				}
			}
			without := conditionalExpectation(nodes, 0, x, coalition, class)
			coalition[i] = true
			with := conditionalExpectation(nodes, 0, x, coalition, class)
			weight := fact(size) * fact(m-size-1) / fact(m)
			phi[i] += weight * (with - without)
		}
	}
	return phi
}

func randomData(n, p int, seed int64) ([][]float64, []int) {
	rnd := rand.New(rand.NewSource(seed))
	features := make([][]float64, n)
	labels := make([]int, n)
	for i := range features {
		row := make([]float64, p)
		for j := range row {
			row[j] = math.Round(rnd.Float64()*4) / 4
		}
		features[i] = row
		if row[0]+row[1]*row[2] > 0.6 {
			labels[i] = 1
		}
	}
	return features, labels
}

func TestShapMatchesBruteForce(t *testing.T) {
	features, labels := randomData(60, 4, 11)
	tree := ml.NewDecisionTree(ml.WithMaxDepth(5))
	require.NoError(t, tree.Train(features, labels))

	explainer, err := NewTreeExplainer(tree)
	require.NoError(t, err)

	for _, x := range features[:10] {
		for class := 0; class < 2; class++ {
			got, err := explainer.ShapValues(x, class)
			require.NoError(t, err)
			want := bruteForceShap(tree.Nodes(), x, class)
			assert.InDeltaSlice(t, want, got, 1e-9)
		}
	}
}

func TestForestAdditivity(t *testing.T) {
	features, labels := randomData(80, 5, 3)
	rf := ml.NewRandomForest(ml.WithNEstimators(15))
	require.NoError(t, rf.Train(features, labels))

	explainer, err := NewTreeExplainer(rf)
	require.NoError(t, err)

	for _, x := range features[:15] {
		expl, err := explainer.Explain(x, nil)
		require.NoError(t, err)

		label, prob, err := rf.Predict(x)
		require.NoError(t, err)
		assert.Equal(t, label, expl.Class)
		assert.InDelta(t, prob, expl.Output, 1e-9)
		assert.InDelta(t, expl.Output, expl.Sum(), 1e-9)
	}
}

func TestExplainErrors(t *testing.T) {
	_, err := NewTreeExplainer(ml.NewRandomForest())
	assert.ErrorIs(t, err, ml.ErrNotTrained)

	tree := ml.NewDecisionTree()
	require.NoError(t, tree.Train([][]float64{{0, 1}, {1, 0}}, []int{0, 1}))
	explainer, err := NewTreeExplainer(tree)
	require.NoError(t, err)

	_, err = explainer.Explain([]float64{1}, nil)
	assert.ErrorIs(t, err, ml.ErrFeatureCount)
	_, err = explainer.Explain([]float64{1, 0}, []string{"a"})
	assert.Error(t, err)
	_, err = explainer.ShapValues([]float64{math.NaN(), 0}, 0)
	assert.Error(t, err)
	_, err = explainer.ShapValues([]float64{1, 0}, 2)
	assert.Error(t, err)
}

func TestTop(t *testing.T) {
	expl := Explanation{
		ExpectedValue: 0.4,
		Output:        0.9,
		Contributions: []Contribution{
			{Feature: "a", SHAP: 0.05},
			{Feature: "b", SHAP: -0.3},
			{Feature: "c", SHAP: 0.5},
			{Feature: "d", SHAP: 0.1},
			{Feature: "e", SHAP: 0.15},
		},
	}

	all := expl.Top(10)
	require.Len(t, all, 5)
	assert.Equal(t, []string{"c", "b", "e", "d", "a"}, featureNames(all))

	top := expl.Top(3)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"c", "b", "3 other features"}, featureNames(top))
	assert.True(t, top[2].Aggregate)
	assert.InDelta(t, 0.3, top[2].SHAP, 1e-12)

	assert.InDelta(t, expl.Sum(), expl.ExpectedValue+sumShap(top), 1e-12)
}

func featureNames(cs []Contribution) []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Feature
	}
	return names
}

func sumShap(cs []Contribution) float64 {
	total := 0.0
	for _, c := range cs {
		total += c.SHAP
	}
	return total
}

func TestRenderWaterfall(t *testing.T) {
	features, labels := randomData(50, 12, 5)
	rf := ml.NewRandomForest(ml.WithNEstimators(5))
	require.NoError(t, rf.Train(features, labels))
	explainer, err := NewTreeExplainer(rf)
	require.NoError(t, err)

	expl, err := explainer.Explain(features[0], nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderWaterfall(expl, DefaultTopN, &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG\r\n\x1a\n")), "output is not a PNG")

	assert.Error(t, RenderWaterfall(Explanation{}, DefaultTopN, &buf))
}
