package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"

	"cancerrisk/features"
	"cancerrisk/logging"
	"cancerrisk/risk"
	"cancerrisk/training"
)

// Config is the contents of config.yaml.
type Config struct {
	Server struct {
		Addr           string        `yaml:"addr"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		IdleTimeout    time.Duration `yaml:"idle_timeout"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"server"`

	Artifacts struct {
		Dir       string `yaml:"dir"`
		Model     string `yaml:"model"`
		Schema    string `yaml:"schema"`
		ModelType string `yaml:"model_type"`
	} `yaml:"artifacts"`

	Encoding struct {
		Convention features.Convention `yaml:"convention"`
	} `yaml:"encoding"`

	Explain struct {
		TopN int `yaml:"top_n"`
	} `yaml:"explain"`

	Log      logging.Config  `yaml:"log"`
	Training training.Config `yaml:"training"`
}

// Default returns the settings used when config.yaml omits a value.
func Default() *Config {
	c := &Config{}
	c.Server.Addr = ":8080"
	c.Server.ReadTimeout = 15 * time.Second
	c.Server.WriteTimeout = 30 * time.Second
	c.Server.IdleTimeout = 60 * time.Second
	c.Server.RequestTimeout = 20 * time.Second
	c.Artifacts.Dir = "."
	c.Artifacts.Model = "breast_cancer_risk_model.json"
	c.Artifacts.Schema = "feature_columns.json"
	c.Encoding.Convention = features.OneHot
	c.Explain.TopN = 10
	c.Log = logging.DefaultConfig()
	c.Training = training.DefaultConfig()
	return c
}

// Load reads path over the defaults. A missing file is not an error when
// optional is set.
func Load(path string, optional bool) (*Config, error) {
	cfg := Default()
	payload, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.UnmarshalStrict(payload, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the serving settings. Training settings are checked by
// training.Run.
func (c *Config) Validate() error {
	var err error
	if c.Server.Addr == "" {
		err = multierr.Append(err, errors.New("server.addr is required"))
	}
	if c.Server.RequestTimeout < 0 {
		err = multierr.Append(err, errors.New("server.request_timeout must not be negative"))
	}
	conv, perr := features.ParseConvention(string(c.Encoding.Convention))
	if perr != nil {
		err = multierr.Append(err, perr)
	} else {
		c.Encoding.Convention = conv
	}
	if c.Artifacts.Model == "" || c.Artifacts.Schema == "" {
		err = multierr.Append(err, errors.New("artifacts.model and artifacts.schema are required"))
	}
	if c.Explain.TopN <= 0 {
		err = multierr.Append(err, fmt.Errorf("explain.top_n must be positive, got %d", c.Explain.TopN))
	}
	return err
}

// ModelPath resolves the model file against the artifacts directory.
func (c *Config) ModelPath() string {
	return resolve(c.Artifacts.Dir, c.Artifacts.Model)
}

// SchemaPath resolves the schema file against the artifacts directory.
func (c *Config) SchemaPath() string {
	return resolve(c.Artifacts.Dir, c.Artifacts.Schema)
}

// ArtifactPaths is what the server hands to risk.LoadArtifacts.
func (c *Config) ArtifactPaths() risk.ArtifactPaths {
	return risk.ArtifactPaths{
		ModelPath:  c.ModelPath(),
		SchemaPath: c.SchemaPath(),
		ModelType:  c.Artifacts.ModelType,
		Convention: c.Encoding.Convention,
	}
}

// TrainingConfig points the trainer's outputs at the files the server loads
// and uses the deployment's encoding convention.
func (c *Config) TrainingConfig() training.Config {
	t := c.Training
	t.ModelPath = c.ModelPath()
	t.SchemaPath = c.SchemaPath()
	if t.TestDir == "" || t.TestDir == "." {
		t.TestDir = c.Artifacts.Dir
	}
	t.Convention = c.Encoding.Convention
	if c.Artifacts.ModelType != "" {
		t.ModelType = c.Artifacts.ModelType
	}
	return t
}

func resolve(dir, name string) string {
	if filepath.IsAbs(name) || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}
