package ml

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func separableData(n int, seed int64) ([][]float64, []int) {
	rnd := rand.New(rand.NewSource(seed))
	features := make([][]float64, n)
	labels := make([]int, n)
	for i := range features {
		x := rnd.Float64()
		features[i] = []float64{x, rnd.Float64(), rnd.NormFloat64()}
		if x > 0.5 {
			labels[i] = 1
		}
	}
	return features, labels
}

func TestRandomForestPredict(t *testing.T) {
	features, labels := separableData(80, 1)
	rf := NewRandomForest(WithNEstimators(25))
	require.NoError(t, rf.Train(features, labels))

	label, prob, err := rf.Predict([]float64{0.05, 0.5, 0})
	require.NoError(t, err)
	assert.Equal(t, 0, label)
	assert.Greater(t, prob, 0.5)

	label, _, err = rf.Predict([]float64{0.95, 0.5, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, label)

	proba, err := rf.PredictProba([]float64{0.3, 0.3, 0.3})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, proba[0]+proba[1], 1e-9)
	assert.Len(t, rf.Trees(), 25)
}

func TestRandomForestDeterministic(t *testing.T) {
	features, labels := separableData(60, 7)

	a := NewRandomForest(WithNEstimators(10), WithForestRandomState(42))
	b := NewRandomForest(WithNEstimators(10), WithForestRandomState(42))
	require.NoError(t, a.Train(features, labels))
	require.NoError(t, b.Train(features, labels))

	for _, row := range features {
		pa, err := a.PredictProba(row)
		require.NoError(t, err)
		pb, err := b.PredictProba(row)
		require.NoError(t, err)
		assert.Equal(t, pa, pb)
	}
}

func TestRandomForestSaveLoad(t *testing.T) {
	features, labels := separableData(40, 3)
	rf := NewRandomForest(WithNEstimators(8), WithForestMaxDepth(4))
	require.NoError(t, rf.Train(features, labels))

	path := filepath.Join(t.TempDir(), "forest.json")
	require.NoError(t, rf.Save(path))

	modelType, err := DetectModelType(path)
	require.NoError(t, err)
	assert.Equal(t, ModelTypeRandomForest, modelType)

	loaded, err := LoadModel(ModelTypeRandomForest, path)
	require.NoError(t, err)
	assert.Equal(t, rf.NFeatures(), loaded.NFeatures())
	assert.Equal(t, rf.Classes(), loaded.Classes())

	for _, row := range features {
		want, err := rf.PredictProba(row)
		require.NoError(t, err)
		got, err := loaded.PredictProba(row)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestRandomForestErrors(t *testing.T) {
	rf := NewRandomForest()
	_, _, err := rf.Predict([]float64{1})
	assert.ErrorIs(t, err, ErrNotTrained)
	assert.ErrorIs(t, rf.Save(filepath.Join(t.TempDir(), "x.json")), ErrNotTrained)

	features, labels := separableData(20, 5)

	rf = NewRandomForest(WithNEstimators(2))
	require.NoError(t, rf.Train(features, labels))
	_, err = rf.PredictProba([]float64{1})
	assert.True(t, errors.Is(err, ErrFeatureCount))

	assert.Error(t, NewRandomForest(WithNEstimators(0)).Train(features, labels))
}

func TestLoadModelRejectsMalformedForest(t *testing.T) {
	leaf := func(classes, value string) string {
		return `{"classes":` + classes + `,"n_features":1,"nodes":[{"is_leaf":true,"value":` + value + `}]}`
	}
	cases := map[string]string{
		"no classes": `{"model_type":"random_forest","classes":[],"n_features":1,"trees":[` + leaf("[]", "[]") + `]}`,
		"no features": `{"model_type":"random_forest","classes":[0,1],"n_features":0,"trees":[` +
			`{"classes":[0,1],"n_features":0,"nodes":[{"is_leaf":true,"value":[0.5,0.5]}]}]}`,
		"tree classes differ": `{"model_type":"random_forest","classes":[0,1],"n_features":1,"trees":[` + leaf("[0,2]", "[0.5,0.5]") + `]}`,
		"unsorted classes":    `{"model_type":"random_forest","classes":[1,0],"n_features":1,"trees":[` + leaf("[0,1]", "[0.5,0.5]") + `]}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "forest.json")
			require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

			model, err := LoadModel("", path)
			assert.Error(t, err)
			assert.Nil(t, model)
		})
	}

	path := filepath.Join(t.TempDir(), "forest.json")
	valid := `{"model_type":"random_forest","classes":[0,1],"n_features":1,"trees":[` + leaf("[0,1]", "[0.5,0.5]") + `]}`
	require.NoError(t, os.WriteFile(path, []byte(valid), 0o600))
	model, err := LoadModel("", path)
	require.NoError(t, err)
	label, _, err := model.Predict([]float64{1})
	require.NoError(t, err)
	assert.Equal(t, 0, label)
}

func TestRandomForestCancelled(t *testing.T) {
	features, labels := separableData(20, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewRandomForest(WithNEstimators(4)).TrainContext(ctx, features, labels)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadModelUnsupported(t *testing.T) {
	_, err := LoadModel("svm", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
