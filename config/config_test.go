package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cancerrisk/features"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  request_timeout: 5s
artifacts:
  dir: /srv/risk
  model: model.json
encoding:
  convention: codes
explain:
  top_n: 8
log:
  level: debug
training:
  data_path: data.csv
  n_estimators: 50
`)
	cfg, err := Load(path, false)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, features.CategoryCodes, cfg.Encoding.Convention)
	assert.Equal(t, 8, cfg.Explain.TopN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/srv/risk/model.json", cfg.ModelPath())
	assert.Equal(t, "/srv/risk/feature_columns.json", cfg.SchemaPath())

	tc := cfg.TrainingConfig()
	assert.Equal(t, "data.csv", tc.DataPath)
	assert.Equal(t, 50, tc.NEstimators)
	assert.Equal(t, int64(42), tc.RandomState)
	assert.Equal(t, "diagnosis_label", tc.Target)
	assert.Equal(t, cfg.ModelPath(), tc.ModelPath)
	assert.Equal(t, "/srv/risk", tc.TestDir)
	assert.Equal(t, features.CategoryCodes, tc.Convention)

	paths := cfg.ArtifactPaths()
	assert.Equal(t, cfg.SchemaPath(), paths.SchemaPath)
	assert.Equal(t, features.CategoryCodes, paths.Convention)
}

func TestLoadMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(missing, true)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(missing, false)
	assert.Error(t, err)
}

func TestLoadRejectsTrainingOutputKeys(t *testing.T) {
	for _, key := range []string{"convention: one_hot", "model_path: m.json", "schema_path: s.json"} {
		path := writeConfig(t, "training:\n  "+key+"\n")
		_, err := Load(path, false)
		assert.Error(t, err, key)
	}
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unterminated"), false)
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "servr:\n  addr: x\n"), false)
	assert.Error(t, err, "unknown keys are rejected")

	_, err = Load(writeConfig(t, "encoding:\n  convention: ordinal\nexplain:\n  top_n: 0\n"), false)
	require.Error(t, err)
	assert.ErrorContains(t, err, "ordinal")
	assert.ErrorContains(t, err, "top_n")
}
