package ml

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []int{0, 0, 2, 2}

	model := NewDecisionTree()
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, confidence, err := model.Predict([]float64{0.15, 0.15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 0 {
		t.Fatalf("expected label 0, got %d", label)
	}
	if confidence <= 0 {
		t.Fatalf("expected confidence > 0")
	}
	if got := model.Classes(); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Fatalf("unexpected classes: %v", got)
	}
}

func TestDecisionTreeNodesCarryCoverAndValue(t *testing.T) {
	features := [][]float64{{0}, {0}, {1}, {1}, {1}}
	labels := []int{0, 0, 1, 1, 0}

	model := NewDecisionTree()
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nodes := model.Nodes()
	root := nodes[0]
	if root.IsLeaf {
		t.Fatalf("expected root to split")
	}
	if root.Cover != 5 {
		t.Fatalf("expected root cover 5, got %v", root.Cover)
	}
	if math.Abs(root.Value[0]-0.6) > 1e-12 {
		t.Fatalf("expected root value 0.6 for class 0, got %v", root.Value[0])
	}
	left, right := nodes[root.LeftChild], nodes[root.RightChild]
	if left.Cover+right.Cover != root.Cover {
		t.Fatalf("children cover %v+%v does not add up to %v", left.Cover, right.Cover, root.Cover)
	}
	if root.LeftChild <= 0 || root.RightChild <= 0 {
		t.Fatalf("children must come after the root: %d/%d", root.LeftChild, root.RightChild)
	}
}

func TestDecisionTreeMaxDepth(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}}
	labels := []int{0, 1, 0, 1, 0, 1}

	model := NewDecisionTree(WithMaxDepth(1))
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(model.Nodes()); n > 3 {
		t.Fatalf("depth 1 tree should have at most 3 nodes, got %d", n)
	}
}

func TestDecisionTreeErrors(t *testing.T) {
	model := NewDecisionTree()
	if _, _, err := model.Predict([]float64{1}); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
	if err := model.Train(nil, nil); err == nil {
		t.Fatalf("expected error for empty training set")
	}
	if err := model.Train([][]float64{{1}, {2}}, []int{0}); err == nil {
		t.Fatalf("expected error for size mismatch")
	}
	if err := model.Train([][]float64{{1, 2}, {2}}, []int{0, 1}); err == nil {
		t.Fatalf("expected error for ragged rows")
	}

	if err := model.Train([][]float64{{1}, {2}}, []int{0, 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := model.Predict([]float64{1, 2}); !errors.Is(err, ErrFeatureCount) {
		t.Fatalf("expected ErrFeatureCount, got %v", err)
	}
}

func TestDecisionTreeSaveLoad(t *testing.T) {
	features := [][]float64{{0.1, 1}, {0.3, 0}, {0.7, 1}, {0.9, 0}}
	labels := []int{0, 0, 1, 1}

	model := NewDecisionTree()
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "tree.json")
	if err := model.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadModel("", path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := loaded.(*DecisionTree); !ok {
		t.Fatalf("expected *DecisionTree, got %T", loaded)
	}
	for _, row := range features {
		want, _, _ := model.Predict(row)
		got, _, err := loaded.Predict(row)
		if err != nil {
			t.Fatalf("predict: %v", err)
		}
		if got != want {
			t.Fatalf("loaded tree predicts %d, original %d", got, want)
		}
	}
}

func TestDecisionTreeFeatureImportances(t *testing.T) {
	features := [][]float64{{0, 5}, {0, 3}, {1, 5}, {1, 3}}
	labels := []int{0, 0, 1, 1}

	model := NewDecisionTree()
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	imp := model.FeatureImportances()
	if math.Abs(imp[0]-1) > 1e-9 || imp[1] != 0 {
		t.Fatalf("expected all importance on feature 0, got %v", imp)
	}
}
