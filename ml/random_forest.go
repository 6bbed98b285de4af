package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// RandomForest averages the class distributions of bootstrapped trees.
type RandomForest struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // 0 => sqrt(n_features)
	Bootstrap       bool
	RandomState     int64

	classes   []int
	nFeatures int
	trees     []*DecisionTree
}

// RandomForestOption configures a RandomForest.
type RandomForestOption func(*RandomForest)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) RandomForestOption { return func(rf *RandomForest) { rf.NEstimators = n } }
func WithBootstrap(b bool) RandomForestOption  { return func(rf *RandomForest) { rf.Bootstrap = b } }
func WithForestMaxDepth(d int) RandomForestOption {
	return func(rf *RandomForest) { rf.MaxDepth = d }
}
func WithForestMaxFeatures(k int) RandomForestOption {
	return func(rf *RandomForest) { rf.MaxFeatures = k }
}
func WithForestMinSamplesLeaf(n int) RandomForestOption {
	return func(rf *RandomForest) { rf.MinSamplesLeaf = n }
}
func WithForestRandomState(seed int64) RandomForestOption {
	return func(rf *RandomForest) { rf.RandomState = seed }
}

// NewRandomForest returns a forest with scikit-learn's defaults and a fixed
// seed of 42.
func NewRandomForest(opts ...RandomForestOption) *RandomForest {
	rf := &RandomForest{
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
		RandomState:     42,
	}
	for _, o := range opts {
		o(rf)
	}
	return rf
}

// Train fits the forest without cancellation.
func (rf *RandomForest) Train(features [][]float64, labels []int) error {
	return rf.TrainContext(context.Background(), features, labels)
}

// TrainContext fits the trees in parallel. Tree i draws its bootstrap sample
// and feature subsets from RandomState+i, so the result does not depend on
// scheduling.
func (rf *RandomForest) TrainContext(ctx context.Context, features [][]float64, labels []int) error {
	if rf.NEstimators <= 0 {
		return fmt.Errorf("n_estimators must be positive, got %d", rf.NEstimators)
	}
	classes, y, err := prepareTraining(features, labels)
	if err != nil {
		return err
	}
	n, p := len(features), len(features[0])
	maxFeatures := rf.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(p)))))
	}

	trees := make([]*DecisionTree, rf.NEstimators)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := 0; i < rf.NEstimators; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			seed := rf.RandomState + int64(i)
			rng := rand.New(rand.NewSource(seed))

			sample := make([]int, n)
			for j := range sample {
				if rf.Bootstrap {
					sample[j] = rng.Intn(n)
				} else {
					sample[j] = j
				}
			}

			tree := NewDecisionTree(
				WithMaxDepth(rf.MaxDepth),
				WithMinSamplesSplit(rf.MinSamplesSplit),
				WithMinSamplesLeaf(rf.MinSamplesLeaf),
				WithMaxFeatures(maxFeatures),
				WithRandomState(seed),
			)
			tree.classes = classes
			tree.nFeatures = p
			tree.fit(features, y, sample, rng)
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	rf.classes = classes
	rf.nFeatures = p
	rf.trees = trees
	return nil
}

// Predict returns the class with the highest mean probability and that
// probability.
func (rf *RandomForest) Predict(features []float64) (int, float64, error) {
	proba, err := rf.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	best := argmax(proba)
	return rf.classes[best], proba[best], nil
}

// PredictProba is the mean of the trees' leaf distributions.
func (rf *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(rf.trees) == 0 {
		return nil, ErrNotTrained
	}
	if len(features) != rf.nFeatures {
		return nil, fmt.Errorf("%w: got %d, model expects %d", ErrFeatureCount, len(features), rf.nFeatures)
	}
	proba := make([]float64, len(rf.classes))
	for _, tree := range rf.trees {
		leaf, err := tree.leaf(features)
		if err != nil {
			return nil, err
		}
		for k, v := range tree.nodes[leaf].Value {
			proba[k] += v
		}
	}
	for k := range proba {
		proba[k] /= float64(len(rf.trees))
	}
	return proba, nil
}

// Classes returns the sorted training labels.
func (rf *RandomForest) Classes() []int {
	return append([]int(nil), rf.classes...)
}

// NFeatures is the input width seen in training.
func (rf *RandomForest) NFeatures() int {
	return rf.nFeatures
}

// Trees exposes the fitted trees for explanation.
func (rf *RandomForest) Trees() []*DecisionTree {
	return rf.trees
}

// FeatureImportances averages the per-tree impurity decreases.
func (rf *RandomForest) FeatureImportances() []float64 {
	importances := make([]float64, rf.nFeatures)
	for _, tree := range rf.trees {
		for i, v := range tree.FeatureImportances() {
			importances[i] += v
		}
	}
	normalize(importances)
	return importances
}

type forestFile struct {
	ModelType       string          `json:"model_type"`
	Classes         []int           `json:"classes"`
	NFeatures       int             `json:"n_features"`
	NEstimators     int             `json:"n_estimators"`
	MaxDepth        int             `json:"max_depth"`
	MinSamplesSplit int             `json:"min_samples_split"`
	MinSamplesLeaf  int             `json:"min_samples_leaf"`
	MaxFeatures     int             `json:"max_features"`
	Bootstrap       bool            `json:"bootstrap"`
	RandomState     int64           `json:"random_state"`
	Trees           []*DecisionTree `json:"trees"`
}

func (rf *RandomForest) MarshalJSON() ([]byte, error) {
	return json.Marshal(forestFile{
		ModelType:       ModelTypeRandomForest,
		Classes:         rf.classes,
		NFeatures:       rf.nFeatures,
		NEstimators:     rf.NEstimators,
		MaxDepth:        rf.MaxDepth,
		MinSamplesSplit: rf.MinSamplesSplit,
		MinSamplesLeaf:  rf.MinSamplesLeaf,
		MaxFeatures:     rf.MaxFeatures,
		Bootstrap:       rf.Bootstrap,
		RandomState:     rf.RandomState,
		Trees:           rf.trees,
	})
}

// UnmarshalJSON restores a forest written by MarshalJSON and rejects files
// whose trees disagree with the forest header.
func (rf *RandomForest) UnmarshalJSON(payload []byte) error {
	var f forestFile
	if err := json.Unmarshal(payload, &f); err != nil {
		return err
	}
	if f.ModelType != "" && f.ModelType != ModelTypeRandomForest {
		return fmt.Errorf("model type %q is not a random forest", f.ModelType)
	}
	if len(f.Trees) == 0 {
		return ErrNotTrained
	}
	if err := checkClasses(f.Classes, f.NFeatures); err != nil {
		return err
	}
	for i, tree := range f.Trees {
		if tree == nil || tree.nFeatures != f.NFeatures || !slices.Equal(tree.classes, f.Classes) {
			return fmt.Errorf("tree %d does not match the forest's classes or features", i)
		}
	}
	rf.NEstimators = f.NEstimators
	rf.MaxDepth = f.MaxDepth
	rf.MinSamplesSplit = f.MinSamplesSplit
	rf.MinSamplesLeaf = f.MinSamplesLeaf
	rf.MaxFeatures = f.MaxFeatures
	rf.Bootstrap = f.Bootstrap
	rf.RandomState = f.RandomState
	rf.classes = f.Classes
	rf.nFeatures = f.NFeatures
	rf.trees = f.Trees
	return nil
}

// Save writes the forest as JSON.
func (rf *RandomForest) Save(path string) error {
	if len(rf.trees) == 0 {
		return ErrNotTrained
	}
	payload, err := json.Marshal(rf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

// Load reads a forest written by Save.
func (rf *RandomForest) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, rf)
}
