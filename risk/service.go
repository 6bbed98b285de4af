package risk

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"cancerrisk/explain"
	"cancerrisk/features"
	"cancerrisk/ml"
)

// ErrExplainUnsupported is returned when the loaded model is not a tree
// ensemble.
var ErrExplainUnsupported = errors.New("model does not support tree explanations")

// Prediction is the outcome of one form submission.
type Prediction struct {
	Label  RiskLabel
	Class  int
	Vector features.Vector
}

// Service runs the align, validate and infer pipeline over injected
// artifacts. It holds no mutable state and may be shared between requests.
type Service struct {
	model     ml.MLModel
	schema    *features.Schema
	catalog   *features.Catalog
	aligner   *features.Aligner
	explainer *explain.TreeExplainer
	topN      int
	logger    *zap.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger; nil keeps the no-op default.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTopN sets how many contributions the chart shows.
func WithTopN(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.topN = n
		}
	}
}

// NewService builds the aligner and, for tree ensembles, the explainer.
func NewService(art *Artifacts, opts ...ServiceOption) (*Service, error) {
	if art == nil || art.Model == nil || art.Schema == nil {
		return nil, errors.New("risk: incomplete artifacts")
	}
	catalog := art.Catalog
	if catalog == nil {
		catalog = features.DefaultCatalog()
	}

	s := &Service{
		model:   art.Model,
		schema:  art.Schema,
		catalog: catalog,
		topN:    explain.DefaultTopN,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}

	aligner, err := features.NewAligner(art.Schema, catalog, art.Convention)
	if err != nil {
		return nil, err
	}
	s.aligner = aligner

	if ensemble, ok := art.Model.(ml.TreeEnsemble); ok {
		explainer, err := explain.NewTreeExplainer(ensemble)
		if err != nil {
			return nil, fmt.Errorf("build explainer: %w", err)
		}
		s.explainer = explainer
	}
	return s, nil
}

// Catalog returns the form fields the service accepts.
func (s *Service) Catalog() *features.Catalog { return s.catalog }

// Schema returns the persisted feature schema.
func (s *Service) Schema() *features.Schema { return s.schema }

// Convention returns the encoding the schema was validated against.
func (s *Service) Convention() features.Convention { return s.aligner.Convention() }

// TopN is the number of chart rows.
func (s *Service) TopN() int { return s.topN }

// CanExplain reports whether Explain is available for the loaded model.
func (s *Service) CanExplain() bool { return s.explainer != nil }

// Encode aligns a record and checks the result against the schema.
func (s *Service) Encode(rec features.RawRecord) (features.Vector, error) {
	vec, err := s.aligner.Align(rec)
	if err != nil {
		return features.Vector{}, err
	}
	if err := vec.Validate(s.schema); err != nil {
		return features.Vector{}, err
	}
	if len(vec.Ignored) > 0 {
		s.logger.Warn("record fields have no schema column", zap.Strings("ignored", vec.Ignored))
	}
	return vec, nil
}

// Predict classifies one record.
func (s *Service) Predict(ctx context.Context, rec features.RawRecord) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	vec, err := s.Encode(rec)
	if err != nil {
		return Prediction{}, err
	}
	class, _, err := s.model.Predict(vec.Values)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}

	label := RiskLabelFromClass(class)
	s.logger.Debug("prediction",
		zap.Int("class", class),
		zap.Stringer("label", label),
		zap.Int("fallback_columns", len(vec.Fallback)))
	return Prediction{Label: label, Class: class, Vector: vec}, nil
}

// Explain attributes the predicted class probability to the schema columns.
func (s *Service) Explain(ctx context.Context, rec features.RawRecord) (explain.Explanation, error) {
	if s.explainer == nil {
		return explain.Explanation{}, ErrExplainUnsupported
	}
	if err := ctx.Err(); err != nil {
		return explain.Explanation{}, err
	}
	vec, err := s.Encode(rec)
	if err != nil {
		return explain.Explanation{}, err
	}
	expl, err := s.explainer.Explain(vec.Values, vec.Columns)
	if err != nil {
		return explain.Explanation{}, fmt.Errorf("explain: %w", err)
	}
	s.logger.Debug("explanation",
		zap.Int("class", expl.Class),
		zap.Float64("expected_value", expl.ExpectedValue),
		zap.Float64("output", expl.Output))
	return expl, nil
}

// RenderExplanation explains rec and writes the top-N waterfall PNG to w.
func (s *Service) RenderExplanation(ctx context.Context, rec features.RawRecord, w io.Writer) (explain.Explanation, error) {
	expl, err := s.Explain(ctx, rec)
	if err != nil {
		return explain.Explanation{}, err
	}
	if err := explain.RenderWaterfall(expl, s.topN, w); err != nil {
		return explain.Explanation{}, err
	}
	return expl, nil
}
