package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// LoadModel reads a persisted model. An empty modelType is resolved from the
// file's own model_type field.
func LoadModel(modelType, path string) (MLModel, error) {
	if modelType == "" {
		detected, err := DetectModelType(path)
		if err != nil {
			return nil, err
		}
		modelType = detected
	}

	var model MLModel
	switch modelType {
	case ModelTypeDecisionTree:
		model = &DecisionTree{}
	case ModelTypeRandomForest:
		model = &RandomForest{}
	default:
		return nil, errors.New("unsupported model type")
	}
	if err := model.Load(path); err != nil {
		return nil, fmt.Errorf("load %s from %s: %w", modelType, path, err)
	}
	return model, nil
}

// DetectModelType peeks at the model_type field of a model file.
func DetectModelType(path string) (string, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var header struct {
		ModelType string `json:"model_type"`
	}
	if err := json.Unmarshal(payload, &header); err != nil {
		return "", fmt.Errorf("read model header: %w", err)
	}
	if header.ModelType == "" {
		return "", errors.New("model file has no model_type")
	}
	return header.ModelType, nil
}
