package ml

import (
	"errors"
	"fmt"
)

// Metrics summarises a binary evaluation against a positive class.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Samples   int     `json:"samples"`
	// Confusion counts rows by actual (outer) and predicted (inner) class.
	Confusion map[int]map[int]int `json:"confusion"`
}

// Evaluate scores a model on held-out rows.
func Evaluate(model Predictor, testX [][]float64, testY []int, positive int) (Metrics, error) {
	if len(testX) != len(testY) {
		return Metrics{}, errors.New("features and labels size mismatch")
	}
	m := Metrics{Samples: len(testX), Confusion: make(map[int]map[int]int)}
	if len(testX) == 0 {
		return m, nil
	}

	var correct, truePositive, predictedPositive, actualPositive int
	for i, feature := range testX {
		label, _, err := model.Predict(feature)
		if err != nil {
			return Metrics{}, fmt.Errorf("row %d: %w", i, err)
		}
		if m.Confusion[testY[i]] == nil {
			m.Confusion[testY[i]] = make(map[int]int)
		}
		m.Confusion[testY[i]][label]++
		if label == testY[i] {
			correct++
		}
		if label == positive {
			predictedPositive++
		}
		if testY[i] == positive {
			actualPositive++
			if label == positive {
				truePositive++
			}
		}
	}

	m.Accuracy = float64(correct) / float64(len(testX))
	if predictedPositive > 0 {
		m.Precision = float64(truePositive) / float64(predictedPositive)
	}
	if actualPositive > 0 {
		m.Recall = float64(truePositive) / float64(actualPositive)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m, nil
}
