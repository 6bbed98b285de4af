package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cancerrisk/config"
	"cancerrisk/features"
	"cancerrisk/logging"
	"cancerrisk/training"
)

var opts struct {
	config      string
	data        string
	charset     string
	target      string
	modelType   string
	modelPath   string
	schemaPath  string
	testDir     string
	testRatio   float64
	seed        int64
	estimators  int
	maxDepth    int
	convention  string
	jsonSummary bool
}

var rootCmd = &cobra.Command{
	Use:   "train_model",
	Short: "Train the risk model from a CSV dataset",
	Long: `train_model reads the early-risk CSV, one-hot encodes its categorical
columns, fits a random forest on a seeded 80/20 split and writes the model,
the feature column list and the held-out test split.`,
	SilenceUsage: true,
	RunE:         runTrain,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&opts.config, "config", "c", "config.yaml", "path to config file")
	f.StringVar(&opts.data, "data", "", "training CSV")
	f.StringVar(&opts.charset, "charset", "", "CSV text encoding, e.g. utf-8 or windows-1252")
	f.StringVar(&opts.target, "target", "", "label column")
	f.StringVar(&opts.modelType, "model_type", "", "random_forest or decision_tree")
	f.StringVar(&opts.modelPath, "model_path", "", "model output path")
	f.StringVar(&opts.schemaPath, "schema_path", "", "feature column list output path")
	f.StringVar(&opts.testDir, "test_dir", "", "directory for x_test.csv and y_test.csv")
	f.Float64Var(&opts.testRatio, "test_ratio", 0, "held-out fraction")
	f.Int64Var(&opts.seed, "seed", 0, "random state")
	f.IntVar(&opts.estimators, "n_estimators", 0, "number of trees")
	f.IntVar(&opts.maxDepth, "max_depth", 0, "max tree depth, 0 for unlimited")
	f.StringVar(&opts.convention, "convention", "", "one_hot or category_codes")
	f.BoolVar(&opts.jsonSummary, "json", false, "print the report as JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runTrain(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(opts.config, !cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	tc := cfg.TrainingConfig()
	flags := cmd.Flags()
	if flags.Changed("data") {
		tc.DataPath = opts.data
	}
	if flags.Changed("charset") {
		tc.Charset = opts.charset
	}
	if flags.Changed("target") {
		tc.Target = opts.target
	}
	if flags.Changed("model_type") {
		tc.ModelType = opts.modelType
	}
	if flags.Changed("model_path") {
		tc.ModelPath = opts.modelPath
	}
	if flags.Changed("schema_path") {
		tc.SchemaPath = opts.schemaPath
	}
	if flags.Changed("test_dir") {
		tc.TestDir = opts.testDir
	}
	if flags.Changed("test_ratio") {
		tc.TestRatio = opts.testRatio
	}
	if flags.Changed("seed") {
		tc.RandomState = opts.seed
	}
	if flags.Changed("n_estimators") {
		tc.NEstimators = opts.estimators
	}
	if flags.Changed("max_depth") {
		tc.MaxDepth = opts.maxDepth
	}
	if flags.Changed("convention") {
		tc.Convention = features.Convention(opts.convention)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	report, err := training.Run(cmd.Context(), tc, logger)
	if err != nil {
		logger.Error("training failed", zap.Error(err))
		return err
	}

	out := cmd.OutOrStdout()
	if opts.jsonSummary {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	m := report.Metrics
	fmt.Fprintf(out, "rows=%d rejected=%d train=%d test=%d columns=%d\n",
		report.Rows, report.Rejected, report.TrainRows, report.TestRows, len(report.Columns))
	fmt.Fprintf(out, "accuracy=%.4f precision=%.4f recall=%.4f f1=%.4f\n", m.Accuracy, m.Precision, m.Recall, m.F1)
	for _, imp := range report.Importances {
		fmt.Fprintf(out, "  %-40s %.4f\n", imp.Column, imp.Value)
	}
	fmt.Fprintf(out, "model saved to %s\nfeature columns saved to %s\ntest split saved to %s, %s\n",
		report.ModelPath, report.SchemaPath, report.XTestPath, report.YTestPath)
	return nil
}
