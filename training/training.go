package training

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"cancerrisk/dataset"
	"cancerrisk/features"
	"cancerrisk/ml"
	"cancerrisk/risk"
)

// Config describes one training run. Convention and the output paths are
// not read from yaml; config.Config fills them from the encoding and
// artifacts sections so the trainer writes what the server loads.
type Config struct {
	DataPath   string              `yaml:"data_path"`
	Charset    string              `yaml:"charset"`
	Target     string              `yaml:"target"`
	Convention features.Convention `yaml:"-"`
	ModelType  string              `yaml:"model_type"`

	TestRatio      float64 `yaml:"test_ratio"`
	RandomState    int64   `yaml:"random_state"`
	NEstimators    int     `yaml:"n_estimators"`
	MaxDepth       int     `yaml:"max_depth"`
	MinSamplesLeaf int     `yaml:"min_samples_leaf"`
	MaxFeatures    int     `yaml:"max_features"`

	ModelPath  string `yaml:"-"`
	SchemaPath string `yaml:"-"`
	TestDir    string `yaml:"test_dir"`
}

// DefaultConfig mirrors a default scikit-learn random forest with a fixed
// seed and an 80/20 split.
func DefaultConfig() Config {
	return Config{
		DataPath:       "breast_cancer_early_risk.csv",
		Target:         "diagnosis_label",
		Convention:     features.OneHot,
		ModelType:      ml.ModelTypeRandomForest,
		TestRatio:      0.2,
		RandomState:    42,
		NEstimators:    100,
		MinSamplesLeaf: 1,
		ModelPath:      "breast_cancer_risk_model.json",
		SchemaPath:     "feature_columns.json",
		TestDir:        ".",
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var err error
	if c.DataPath == "" {
		err = multierr.Append(err, errors.New("data_path is required"))
	}
	if c.Target == "" {
		err = multierr.Append(err, errors.New("target is required"))
	}
	if _, perr := features.ParseConvention(string(c.Convention)); perr != nil {
		err = multierr.Append(err, perr)
	}
	switch c.ModelType {
	case "", ml.ModelTypeRandomForest, ml.ModelTypeDecisionTree:
	default:
		err = multierr.Append(err, fmt.Errorf("unsupported model type %q", c.ModelType))
	}
	if c.TestRatio <= 0 || c.TestRatio >= 1 {
		err = multierr.Append(err, fmt.Errorf("test_ratio must be in (0, 1), got %v", c.TestRatio))
	}
	if c.ModelType != ml.ModelTypeDecisionTree && c.NEstimators <= 0 {
		err = multierr.Append(err, fmt.Errorf("n_estimators must be positive, got %d", c.NEstimators))
	}
	if c.ModelPath == "" || c.SchemaPath == "" {
		err = multierr.Append(err, errors.New("model_path and schema_path are required"))
	}
	return err
}

// Report summarises a finished run.
type Report struct {
	Rows        int                    `json:"rows"`
	Rejected    int                    `json:"rejected"`
	TrainRows   int                    `json:"train_rows"`
	TestRows    int                    `json:"test_rows"`
	Columns     []string               `json:"columns"`
	Classes     []int                  `json:"classes"`
	LabelNames  []string               `json:"label_names,omitempty"`
	Metrics     ml.Metrics             `json:"metrics"`
	Importances []Importance           `json:"importances,omitempty"`
	Issues      []dataset.QualityIssue `json:"issues,omitempty"`
	ModelPath   string                 `json:"model_path"`
	SchemaPath  string                 `json:"schema_path"`
	XTestPath   string                 `json:"x_test_path"`
	YTestPath   string                 `json:"y_test_path"`
	Duration    time.Duration          `json:"duration"`
}

// Importance is one column's share of the impurity decrease.
type Importance struct {
	Column string  `json:"column"`
	Value  float64 `json:"value"`
}

type importancer interface {
	FeatureImportances() []float64
}

// Run reads the CSV, encodes it, fits one model and persists the model, the
// schema and the held-out split.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) (Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Convention == "" {
		cfg.Convention = features.OneHot
	}
	if cfg.ModelType == "" {
		cfg.ModelType = ml.ModelTypeRandomForest
	}
	if err := cfg.Validate(); err != nil {
		return Report{}, fmt.Errorf("training config: %w", err)
	}
	conv, _ := features.ParseConvention(string(cfg.Convention))
	start := time.Now()

	frame, err := dataset.ReadCSV(cfg.DataPath, dataset.ReadOptions{Encoding: cfg.Charset})
	if err != nil {
		return Report{}, err
	}
	if frame.Column(cfg.Target) < 0 {
		return Report{}, fmt.Errorf("%w: %q in %s", dataset.ErrMissingTarget, cfg.Target, cfg.DataPath)
	}
	cleaner := dataset.NewDataCleaner(frame.Header, cfg.Target, logger)
	cleaned, issues := cleaner.Clean(frame)
	logger.Info("dataset loaded",
		zap.String("path", cfg.DataPath),
		zap.Int("rows", frame.Len()),
		zap.Int("rejected", len(issues)))

	x, labels, labelNames, err := dataset.SplitTarget(cleaned, cfg.Target)
	if err != nil {
		return Report{}, err
	}

	var table *dataset.Table
	switch conv {
	case features.CategoryCodes:
		table, err = dataset.CategoryCodes(x)
	default:
		table, err = dataset.OneHot(x)
	}
	if err != nil {
		return Report{}, fmt.Errorf("encode features: %w", err)
	}
	schema, err := features.NewSchema(table.Columns, conv)
	if err != nil {
		return Report{}, err
	}
	if len(table.Categories) > 0 {
		schema.Categories = table.Categories
	}

	trainIdx, testIdx := ml.TrainTestSplit(len(table.Rows), cfg.TestRatio, cfg.RandomState)
	trainX, trainY := ml.Take(table.Rows, labels, trainIdx)
	testX, testY := ml.Take(table.Rows, labels, testIdx)

	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	model := newModel(cfg)
	fitStart := time.Now()
	if trainer, ok := model.(ml.ContextTrainer); ok {
		err = trainer.TrainContext(ctx, trainX, trainY)
	} else {
		err = model.Train(trainX, trainY)
	}
	if err != nil {
		return Report{}, fmt.Errorf("train %s: %w", cfg.ModelType, err)
	}
	logger.Info("model trained",
		zap.String("model_type", cfg.ModelType),
		zap.Int("train_rows", len(trainX)),
		zap.Int("columns", len(table.Columns)),
		zap.Duration("elapsed", time.Since(fitStart)))

	metrics, err := ml.Evaluate(model, testX, testY, risk.PositiveClass)
	if err != nil {
		return Report{}, fmt.Errorf("evaluate: %w", err)
	}
	logger.Info("model evaluated",
		zap.Int("test_rows", metrics.Samples),
		zap.Float64("accuracy", metrics.Accuracy),
		zap.Float64("precision", metrics.Precision),
		zap.Float64("recall", metrics.Recall),
		zap.Float64("f1", metrics.F1))

	report := Report{
		Rows:       frame.Len(),
		Rejected:   len(issues),
		TrainRows:  len(trainX),
		TestRows:   len(testX),
		Columns:    table.Columns,
		Classes:    model.Classes(),
		LabelNames: labelNames,
		Metrics:    metrics,
		Issues:     issues,
		ModelPath:  cfg.ModelPath,
		SchemaPath: cfg.SchemaPath,
		XTestPath:  filepath.Join(cfg.TestDir, "x_test.csv"),
		YTestPath:  filepath.Join(cfg.TestDir, "y_test.csv"),
	}
	if imp, ok := model.(importancer); ok {
		report.Importances = topImportances(table.Columns, imp.FeatureImportances(), 10)
	}

	if err := persist(model, schema, table.Columns, testX, testY, cfg, report); err != nil {
		return Report{}, err
	}
	report.Duration = time.Since(start)
	logger.Info("artifacts saved",
		zap.String("model", report.ModelPath),
		zap.String("schema", report.SchemaPath),
		zap.String("x_test", report.XTestPath),
		zap.String("y_test", report.YTestPath))
	return report, nil
}

func newModel(cfg Config) ml.MLModel {
	if cfg.ModelType == ml.ModelTypeDecisionTree {
		return ml.NewDecisionTree(
			ml.WithMaxDepth(cfg.MaxDepth),
			ml.WithMinSamplesLeaf(cfg.MinSamplesLeaf),
			ml.WithMaxFeatures(cfg.MaxFeatures),
			ml.WithRandomState(cfg.RandomState),
		)
	}
	return ml.NewRandomForest(
		ml.WithNEstimators(cfg.NEstimators),
		ml.WithForestMaxDepth(cfg.MaxDepth),
		ml.WithForestMinSamplesLeaf(cfg.MinSamplesLeaf),
		ml.WithForestMaxFeatures(cfg.MaxFeatures),
		ml.WithForestRandomState(cfg.RandomState),
	)
}

func persist(model ml.MLModel, schema *features.Schema, columns []string, testX [][]float64, testY []int, cfg Config, report Report) error {
	for _, dir := range []string{filepath.Dir(cfg.ModelPath), filepath.Dir(cfg.SchemaPath), cfg.TestDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := model.Save(cfg.ModelPath); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	if err := schema.Save(cfg.SchemaPath); err != nil {
		return fmt.Errorf("save schema: %w", err)
	}
	if err := dataset.WriteMatrix(report.XTestPath, columns, testX); err != nil {
		return fmt.Errorf("save test features: %w", err)
	}
	if err := dataset.WriteLabels(report.YTestPath, cfg.Target, testY); err != nil {
		return fmt.Errorf("save test labels: %w", err)
	}
	return nil
}

func topImportances(columns []string, values []float64, n int) []Importance {
	out := make([]Importance, 0, len(values))
	for i, v := range values {
		if i < len(columns) && v > 0 {
			out = append(out, Importance{Column: columns[i], Value: v})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
