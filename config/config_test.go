package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/rankfit/artifact"
	"github.com/rushteam/rankfit/config"
	_ "github.com/rushteam/rankfit/config/builders"
	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/feature"
	"github.com/rushteam/rankfit/rank"
)

const lpYAML = `
strategy: lp
params:
  C: 10
  time_limit: 5
feature_dim: 2
preprocess: div-by-std
judgment_filter: "judgment.importance > 0.0"
validation_ratio: 0.75
log_level: warn
store:
  type: memory
  prefix: "rankfit:"
`

func TestParseYAML(t *testing.T) {
	cfg, err := config.ParseYAML([]byte(lpYAML))
	require.NoError(t, err)
	assert.Equal(t, "lp", cfg.Strategy)
	assert.Equal(t, 2, cfg.FeatureDim)
	assert.Equal(t, 0.75, cfg.ValidationRatio)
	assert.Equal(t, "rankfit:", cfg.Store.Prefix)

	tr, err := cfg.BuildTrainer(nil)
	require.NoError(t, err)
	lp, ok := tr.Strategy().(*rank.LinearProgram)
	require.True(t, ok)
	assert.Equal(t, 10.0, lp.C)
	assert.Equal(t, 5*time.Second, lp.TimeLimit)
	require.NotNil(t, tr.Preprocessor())
	assert.Equal(t, feature.PreprocessDivByStd, tr.Preprocessor().Option)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "trainer.yaml")
	jsonPath := filepath.Join(dir, "trainer.json")
	require.NoError(t, os.WriteFile(yamlPath, []byte(lpYAML), 0o644))
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"strategy":"ranksvm","params":{"C":2}}`), 0o644))

	cfg, err := config.Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "lp", cfg.Strategy)

	cfg, err = config.Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "ranksvm", cfg.Strategy)

	_, err = config.LoadFromYAML(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TrainerConfig
	}{
		{"missing strategy", config.TrainerConfig{}},
		{"negative dim", config.TrainerConfig{Strategy: "lp", FeatureDim: -1}},
		{"ratio above one", config.TrainerConfig{Strategy: "lp", ValidationRatio: 1.5}},
		{"unknown preprocess", config.TrainerConfig{Strategy: "lp", Preprocess: "log"}},
		{"unknown store", config.TrainerConfig{Strategy: "lp", Store: config.StoreConfig{Type: "mysql"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, core.IsConfiguration(tt.cfg.Validate()))
		})
	}
}

func TestBuildTrainer_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TrainerConfig
	}{
		{"unknown strategy", config.TrainerConfig{Strategy: "random-forest"}},
		{"lp without C", config.TrainerConfig{Strategy: "lp"}},
		{"bad filter", config.TrainerConfig{Strategy: "ranksvm", JudgmentFilter: "judgment.importance >"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.BuildTrainer(nil)
			assert.True(t, core.IsConfiguration(err), "got %v", err)
		})
	}
}

func TestSupportedStrategies(t *testing.T) {
	names := config.SupportedStrategies()
	for _, want := range []string{"boosted-ranker", "lambdamart", "linear-program", "lp", "margin-classifier", "ranksvm"} {
		assert.Contains(t, names, want)
	}
}

func TestEndToEnd(t *testing.T) {
	cfg, err := config.ParseYAML([]byte(lpYAML))
	require.NoError(t, err)

	X, err := cfg.ToMatrix([]feature.Row{
		feature.Dense{0, 0},
		feature.Dense{1, 0},
		feature.Dense{2, 1},
		feature.Dense{3, 1},
	})
	require.NoError(t, err)
	judgments := []core.Judgment{
		{I: 1, J: 0, Relation: 1, Importance: 1},
		{I: 2, J: 1, Relation: 1, Importance: 1},
		{I: 3, J: 2, Relation: 1, Importance: 1},
		{I: 3, J: 0, Relation: 1, Importance: 1},
	}
	train, validation, err := cfg.Split(judgments)
	require.NoError(t, err)
	assert.Len(t, train, 3)
	assert.Len(t, validation, 1)

	tr, err := cfg.BuildTrainer(nil)
	require.NoError(t, err)
	a, err := tr.Fit(context.Background(), X, train, nil)
	require.NoError(t, err)

	repo, st, err := cfg.BuildRepository()
	require.NoError(t, err)
	defer st.Close()
	_, err = repo.Save(context.Background(), "lp", a)
	require.NoError(t, err)
	loaded, err := repo.Load(context.Background(), "lp")
	require.NoError(t, err)
	assert.Equal(t, artifact.KindUngrouped, loaded.Kind())
}

func TestBuildStore(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.TrainerConfig{Strategy: "lp", Store: config.StoreConfig{Type: "redis", Addr: mr.Addr()}}
	st, err := cfg.BuildStore()
	require.NoError(t, err)
	defer st.Close()
	assert.Equal(t, "redis", st.Name())

	cfg.Store.Addr = ""
	_, err = cfg.BuildStore()
	assert.True(t, core.IsConfiguration(err))
}
