package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
)

// DecisionTree is a CART classifier stored as a flat node array. Node 0 is
// the root; children are referenced by index.
type DecisionTree struct {
	MaxDepth        int   // 0 => unlimited
	MinSamplesSplit int   // minimum samples to attempt a split
	MinSamplesLeaf  int   // minimum samples in each child
	MaxFeatures     int   // features sampled per split, 0 => all
	RandomState     int64 // seed for feature sampling

	classes   []int
	nFeatures int
	nodes     []TreeNode
}

// TreeNode is one node of a fitted tree. Rows with x[FeatureIdx] <= Threshold
// go left. Cover is the number of (bootstrap) training rows that reached the
// node and Value their class distribution, aligned with the tree's classes.
type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	ClassLabel int       `json:"class_label"`
	IsLeaf     bool      `json:"is_leaf"`
	Cover      float64   `json:"cover"`
	Value      []float64 `json:"value"`
}

// Option configures a DecisionTree.
type Option func(*DecisionTree)

// WithMaxDepth limits tree depth; 0 means unlimited.
func WithMaxDepth(d int) Option { return func(t *DecisionTree) { t.MaxDepth = d } }
func WithMinSamplesSplit(n int) Option {
	return func(t *DecisionTree) { t.MinSamplesSplit = n }
}
func WithMinSamplesLeaf(n int) Option {
	return func(t *DecisionTree) { t.MinSamplesLeaf = n }
}
func WithMaxFeatures(k int) Option { return func(t *DecisionTree) { t.MaxFeatures = k } }
func WithRandomState(seed int64) Option {
	return func(t *DecisionTree) { t.RandomState = seed }
}

// NewDecisionTree returns a tree with scikit-learn style defaults.
func NewDecisionTree(opts ...Option) *DecisionTree {
	t := &DecisionTree{
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Train fits the tree on every row.
func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	classes, y, err := prepareTraining(features, labels)
	if err != nil {
		return err
	}
	sample := make([]int, len(features))
	for i := range sample {
		sample[i] = i
	}
	dt.classes = classes
	dt.nFeatures = len(features[0])
	dt.fit(features, y, sample, rand.New(rand.NewSource(dt.RandomState)))
	return nil
}

// Predict returns the majority class at the reached leaf and its share.
func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	proba, err := dt.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	best := argmax(proba)
	return dt.classes[best], proba[best], nil
}

// PredictProba returns the class distribution of the reached leaf.
func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	if len(dt.nodes) == 0 {
		return nil, ErrNotTrained
	}
	if len(features) != dt.nFeatures {
		return nil, fmt.Errorf("%w: got %d, model expects %d", ErrFeatureCount, len(features), dt.nFeatures)
	}
	leaf, err := dt.leaf(features)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), dt.nodes[leaf].Value...), nil
}

func (dt *DecisionTree) leaf(features []float64) (int, error) {
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return idx, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

// Classes returns the class labels in Value order.
func (dt *DecisionTree) Classes() []int {
	return append([]int(nil), dt.classes...)
}

// NFeatures returns the input width the tree was trained on.
func (dt *DecisionTree) NFeatures() int {
	return dt.nFeatures
}

// Nodes returns the fitted nodes. Callers must not modify them.
func (dt *DecisionTree) Nodes() []TreeNode {
	return dt.nodes
}

// Trees lets a single tree act as a one-member ensemble.
func (dt *DecisionTree) Trees() []*DecisionTree {
	return []*DecisionTree{dt}
}

// FeatureImportances returns the normalized mean decrease in gini impurity.
func (dt *DecisionTree) FeatureImportances() []float64 {
	importances := make([]float64, dt.nFeatures)
	for _, node := range dt.nodes {
		if node.IsLeaf {
			continue
		}
		left, right := dt.nodes[node.LeftChild], dt.nodes[node.RightChild]
		decrease := node.Cover*giniFromProba(node.Value) -
			left.Cover*giniFromProba(left.Value) -
			right.Cover*giniFromProba(right.Value)
		importances[node.FeatureIdx] += decrease
	}
	normalize(importances)
	return importances
}

type treeFile struct {
	ModelType       string     `json:"model_type"`
	Classes         []int      `json:"classes"`
	NFeatures       int        `json:"n_features"`
	MaxDepth        int        `json:"max_depth"`
	MinSamplesSplit int        `json:"min_samples_split"`
	MinSamplesLeaf  int        `json:"min_samples_leaf"`
	MaxFeatures     int        `json:"max_features"`
	RandomState     int64      `json:"random_state"`
	Nodes           []TreeNode `json:"nodes"`
}

// MarshalJSON encodes the fitted tree and its parameters.
func (dt *DecisionTree) MarshalJSON() ([]byte, error) {
	return json.Marshal(treeFile{
		ModelType:       ModelTypeDecisionTree,
		Classes:         dt.classes,
		NFeatures:       dt.nFeatures,
		MaxDepth:        dt.MaxDepth,
		MinSamplesSplit: dt.MinSamplesSplit,
		MinSamplesLeaf:  dt.MinSamplesLeaf,
		MaxFeatures:     dt.MaxFeatures,
		RandomState:     dt.RandomState,
		Nodes:           dt.nodes,
	})
}

// UnmarshalJSON restores a tree written by MarshalJSON.
func (dt *DecisionTree) UnmarshalJSON(payload []byte) error {
	var f treeFile
	if err := json.Unmarshal(payload, &f); err != nil {
		return err
	}
	if f.ModelType != "" && f.ModelType != ModelTypeDecisionTree {
		return fmt.Errorf("model type %q is not a decision tree", f.ModelType)
	}
	if err := checkNodes(f.Nodes, f.Classes, f.NFeatures); err != nil {
		return err
	}
	dt.MaxDepth = f.MaxDepth
	dt.MinSamplesSplit = f.MinSamplesSplit
	dt.MinSamplesLeaf = f.MinSamplesLeaf
	dt.MaxFeatures = f.MaxFeatures
	dt.RandomState = f.RandomState
	dt.classes = f.Classes
	dt.nFeatures = f.NFeatures
	dt.nodes = f.Nodes
	return nil
}

// Save writes the tree as JSON.
func (dt *DecisionTree) Save(path string) error {
	if len(dt.nodes) == 0 {
		return ErrNotTrained
	}
	payload, err := json.Marshal(dt)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

// Load reads a tree written by Save.
func (dt *DecisionTree) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, dt)
}

// fit grows the tree from sample, a list of row indices that may repeat.
func (dt *DecisionTree) fit(features [][]float64, y []int, sample []int, rng *rand.Rand) {
	b := &treeBuilder{
		tree:     dt,
		features: features,
		labels:   y,
		nClasses: len(dt.classes),
		rng:      rng,
	}
	b.build(sample, 0)
	dt.nodes = b.nodes
}

type treeBuilder struct {
	tree     *DecisionTree
	features [][]float64
	labels   []int // class indices
	nClasses int
	rng      *rand.Rand
	nodes    []TreeNode
}

type split struct {
	feature   int
	threshold float64
	impurity  float64
}

type valueLabel struct {
	v     float64
	label int
}

func (b *treeBuilder) build(sample []int, depth int) int {
	counts := make([]int, b.nClasses)
	for _, i := range sample {
		counts[b.labels[i]]++
	}
	idx := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: b.tree.classes[argmaxInt(counts)],
		IsLeaf:     true,
		Cover:      float64(len(sample)),
		Value:      countsToProba(counts),
	})

	if isPureCounts(counts) || len(sample) < b.tree.MinSamplesSplit || len(sample) < 2*b.tree.MinSamplesLeaf {
		return idx
	}
	if b.tree.MaxDepth > 0 && depth >= b.tree.MaxDepth {
		return idx
	}

	best, ok := b.findBestSplit(sample, giniFromCounts(counts, len(sample)))
	if !ok {
		return idx
	}

	left := make([]int, 0, len(sample))
	right := make([]int, 0, len(sample))
	for _, i := range sample {
		if b.features[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return idx
	}

	leftIdx := b.build(left, depth+1)
	rightIdx := b.build(right, depth+1)

	node := &b.nodes[idx]
	node.IsLeaf = false
	node.FeatureIdx = best.feature
	node.Threshold = best.threshold
	node.LeftChild = leftIdx
	node.RightChild = rightIdx
	return idx
}

// findBestSplit scans a random permutation of features. Like scikit-learn it
// keeps looking past MaxFeatures until at least one valid split is found, and
// constant features do not count towards the budget.
func (b *treeBuilder) findBestSplit(sample []int, parentImpurity float64) (split, bool) {
	nFeatures := b.tree.nFeatures
	budget := b.tree.MaxFeatures
	if budget <= 0 || budget > nFeatures {
		budget = nFeatures
	}

	best := split{feature: -1, impurity: parentImpurity}
	pairs := make([]valueLabel, len(sample))
	visited := 0
	for _, f := range b.rng.Perm(nFeatures) {
		if visited >= budget && best.feature >= 0 {
			break
		}
		for j, i := range sample {
			pairs[j] = valueLabel{v: b.features[i][f], label: b.labels[i]}
		}
		sort.Slice(pairs, func(a, c int) bool { return pairs[a].v < pairs[c].v })
		if pairs[0].v == pairs[len(pairs)-1].v {
			continue
		}
		visited++

		if s, ok := b.scanFeature(f, pairs); ok && s.impurity < best.impurity-1e-12 {
			best = s
		}
	}
	return best, best.feature >= 0
}

func (b *treeBuilder) scanFeature(f int, pairs []valueLabel) (split, bool) {
	n := len(pairs)
	minLeaf := b.tree.MinSamplesLeaf
	if minLeaf < 1 {
		minLeaf = 1
	}
	left := make([]int, b.nClasses)
	right := make([]int, b.nClasses)
	for _, p := range pairs {
		right[p.label]++
	}

	best := split{feature: -1}
	found := false
	for s := 1; s < n; s++ {
		left[pairs[s-1].label]++
		right[pairs[s-1].label]--
		if pairs[s].v == pairs[s-1].v {
			continue
		}
		nL, nR := s, n-s
		if nL < minLeaf || nR < minLeaf {
			continue
		}
		impurity := (float64(nL)*giniFromCounts(left, nL) + float64(nR)*giniFromCounts(right, nR)) / float64(n)
		if !found || impurity < best.impurity {
			threshold := (pairs[s-1].v + pairs[s].v) / 2
			if threshold >= pairs[s].v {
				threshold = pairs[s-1].v
			}
			best = split{feature: f, threshold: threshold, impurity: impurity}
			found = true
		}
	}
	return best, found
}

func prepareTraining(features [][]float64, labels []int) ([]int, []int, error) {
	if len(features) == 0 || len(labels) == 0 {
		return nil, nil, errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return nil, nil, errors.New("features and labels size mismatch")
	}
	width := len(features[0])
	if width == 0 {
		return nil, nil, errors.New("rows have no features")
	}
	for i, row := range features {
		if len(row) != width {
			return nil, nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), width)
		}
	}

	seen := make(map[int]bool)
	var classes []int
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			classes = append(classes, l)
		}
	}
	sort.Ints(classes)
	index := make(map[int]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	y := make([]int, len(labels))
	for i, l := range labels {
		y[i] = index[l]
	}
	return classes, y, nil
}

func checkNodes(nodes []TreeNode, classes []int, nFeatures int) error {
	if len(nodes) == 0 {
		return ErrNotTrained
	}
	if err := checkClasses(classes, nFeatures); err != nil {
		return err
	}
	nClasses := len(classes)
	for i, n := range nodes {
		if len(n.Value) != nClasses {
			return fmt.Errorf("node %d: %d class values, expected %d", i, len(n.Value), nClasses)
		}
		if n.IsLeaf {
			continue
		}
		if n.FeatureIdx < 0 || n.FeatureIdx >= nFeatures {
			return fmt.Errorf("node %d: feature index %d out of range", i, n.FeatureIdx)
		}
		if n.LeftChild <= i || n.LeftChild >= len(nodes) || n.RightChild <= i || n.RightChild >= len(nodes) {
			return fmt.Errorf("node %d: invalid children %d/%d", i, n.LeftChild, n.RightChild)
		}
	}
	return nil
}

// checkClasses rejects model headers that could not have come from Train.
func checkClasses(classes []int, nFeatures int) error {
	if len(classes) == 0 {
		return errors.New("model has no classes")
	}
	for i := 1; i < len(classes); i++ {
		if classes[i] <= classes[i-1] {
			return fmt.Errorf("classes %v are not sorted and unique", classes)
		}
	}
	if nFeatures <= 0 {
		return fmt.Errorf("n_features must be positive, got %d", nFeatures)
	}
	return nil
}

func giniFromCounts(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		impurity -= p * p
	}
	return impurity
}

func giniFromProba(proba []float64) float64 {
	impurity := 1.0
	for _, p := range proba {
		impurity -= p * p
	}
	return impurity
}

func countsToProba(counts []int) []float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	proba := make([]float64, len(counts))
	if total == 0 {
		return proba
	}
	for i, c := range counts {
		proba[i] = float64(c) / float64(total)
	}
	return proba
}

func isPureCounts(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func argmaxInt(values []int) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
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

func normalize(values []float64) {
	total := 0.0
	for _, v := range values {
		total += v
	}
	if total <= 0 {
		return
	}
	for i := range values {
		values[i] /= total
	}
}
