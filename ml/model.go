package ml

import (
	"context"
	"errors"
)

var (
	// ErrNotTrained is returned when predicting or saving an empty model.
	ErrNotTrained = errors.New("model not trained")
	// ErrFeatureCount is returned when an input row has the wrong width.
	ErrFeatureCount = errors.New("feature count mismatch")
)

const (
	ModelTypeDecisionTree = "decision_tree"
	ModelTypeRandomForest = "random_forest"
)

// MLModel is a trained classifier that can be persisted.
type MLModel interface {
	Train(features [][]float64, labels []int) error
	// Predict returns the predicted class and its probability.
	Predict(features []float64) (int, float64, error)
	PredictProba(features []float64) ([]float64, error)
	Classes() []int
	NFeatures() int
	Save(path string) error
	Load(path string) error
}

// ContextTrainer is implemented by models whose training can be cancelled.
type ContextTrainer interface {
	TrainContext(ctx context.Context, features [][]float64, labels []int) error
}

// TreeEnsemble exposes the fitted trees whose averaged leaf distributions
// make up the model output.
type TreeEnsemble interface {
	Trees() []*DecisionTree
	Classes() []int
	NFeatures() int
}

// Predictor is the inference-only view used by evaluation.
type Predictor interface {
	Predict(features []float64) (int, float64, error)
}
