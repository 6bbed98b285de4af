package ml

import (
	"math"
	"math/rand"
)

// TrainTestSplit shuffles row indices with a fixed seed and holds out
// ceil(n*testRatio) of them. Ratios outside (0, 1) fall back to 0.2.
func TrainTestSplit(n int, testRatio float64, seed int64) (train, test []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(n)

	nTest := int(math.Ceil(float64(n) * testRatio))
	if nTest >= n && n > 1 {
		nTest = n - 1
	}
	return indices[nTest:], indices[:nTest]
}

// Take gathers rows and labels by index.
func Take(features [][]float64, labels []int, indices []int) ([][]float64, []int) {
	x := make([][]float64, len(indices))
	y := make([]int, len(indices))
	for i, idx := range indices {
		x[i] = features[idx]
		y[i] = labels[idx]
	}
	return x, y
}
