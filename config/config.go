// Package config 加载训练配置（YAML/JSON），并据此构建 Trainer、Store 与 Evaluator。
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/rankfit/artifact"
	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/eval"
	"github.com/rushteam/rankfit/feature"
	"github.com/rushteam/rankfit/metrics"
	"github.com/rushteam/rankfit/pkg/dsl"
	"github.com/rushteam/rankfit/pkg/logging"
	"github.com/rushteam/rankfit/rank"
	"github.com/rushteam/rankfit/store"
)

// TrainerConfig 是训练任务的配置结构（支持 YAML/JSON）。
//
//	strategy: lp
//	params:
//	  C: 10
//	  time_limit: 60
//	feature_dim: 128
//	preprocess: div-by-std
//	judgment_filter: "judgment.importance > 0.0"
//	validation_ratio: 0.8
//	store:
//	  type: redis
//	  addr: localhost:6379
type TrainerConfig struct {
	Strategy        string         `yaml:"strategy" json:"strategy"`
	Params          map[string]any `yaml:"params" json:"params"`
	FeatureDim      int            `yaml:"feature_dim" json:"feature_dim"`
	Preprocess      string         `yaml:"preprocess" json:"preprocess"`
	JudgmentFilter  string         `yaml:"judgment_filter" json:"judgment_filter"`
	ValidationRatio float64        `yaml:"validation_ratio" json:"validation_ratio"`
	LogLevel        string         `yaml:"log_level" json:"log_level"`
	Store           StoreConfig    `yaml:"store" json:"store"`
}

// StoreConfig 是产物存储的配置
type StoreConfig struct {
	Type   string `yaml:"type" json:"type"` // memory（默认）/ redis
	Addr   string `yaml:"addr" json:"addr"`
	DB     int    `yaml:"db" json:"db"`
	Prefix string `yaml:"prefix" json:"prefix"`
}

// LoadFromYAML 从 YAML 文件加载配置。
func LoadFromYAML(path string) (*TrainerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseYAML(data)
}

// LoadFromJSON 从 JSON 文件加载配置。
func LoadFromJSON(path string) (*TrainerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseJSON(data)
}

// Load 按扩展名选择 YAML 或 JSON
func Load(path string) (*TrainerConfig, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadFromJSON(path)
	default:
		return LoadFromYAML(path)
	}
}

// ParseYAML 解析 YAML 内容
func ParseYAML(data []byte) (*TrainerConfig, error) {
	var cfg TrainerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &cfg, cfg.Validate()
}

// ParseJSON 解析 JSON 内容
func ParseJSON(data []byte) (*TrainerConfig, error) {
	var cfg TrainerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return &cfg, cfg.Validate()
}

// Validate 检查与策略无关的字段
func (c *TrainerConfig) Validate() error {
	if c.Strategy == "" {
		return core.ConfigurationError(core.ModuleConfig, "config: strategy is required")
	}
	if c.FeatureDim < 0 {
		return core.ConfigurationError(core.ModuleConfig, "config: feature_dim must not be negative, got %d", c.FeatureDim)
	}
	if c.ValidationRatio < 0 || c.ValidationRatio > 1 {
		return core.ConfigurationError(core.ModuleConfig, "config: validation_ratio must be in [0, 1], got %g", c.ValidationRatio)
	}
	if _, err := feature.ParsePreprocessOption(c.Preprocess); err != nil {
		return err
	}
	switch c.Store.Type {
	case "", "memory", "redis":
	default:
		return core.ConfigurationError(core.ModuleConfig, "config: unknown store type %q", c.Store.Type)
	}
	return nil
}

// BuildTrainer 按配置构建 Trainer，并应用日志级别。rec 可为 nil。
func (c *TrainerConfig) BuildTrainer(rec *metrics.Recorder) (*rank.Trainer, error) {
	if c.LogLevel != "" {
		logging.SetLevel(c.LogLevel)
	}
	strategy, err := BuildStrategy(c.Strategy, c.Params)
	if err != nil {
		return nil, err
	}

	opts := []rank.Option{rank.WithRecorder(rec)}
	option, err := feature.ParsePreprocessOption(c.Preprocess)
	if err != nil {
		return nil, err
	}
	if option != feature.PreprocessNone {
		opts = append(opts, rank.WithPreprocessor(feature.NewPreprocessor(option)))
	}
	if c.JudgmentFilter != "" {
		e, err := dsl.NewEval(c.JudgmentFilter)
		if err != nil {
			return nil, core.ConfigurationError(core.ModuleConfig, "config: judgment_filter: %v", err)
		}
		opts = append(opts, rank.WithFilter(e))
	}
	return rank.NewTrainer(strategy, opts...)
}

// BuildStore 按配置创建产物存储
func (c *TrainerConfig) BuildStore() (core.HashStore, error) {
	switch c.Store.Type {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		if c.Store.Addr == "" {
			return nil, core.ConfigurationError(core.ModuleConfig, "config: redis store requires addr")
		}
		s, err := store.NewRedisStore(c.Store.Addr, c.Store.DB)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, core.ConfigurationError(core.ModuleConfig, "config: unknown store type %q", c.Store.Type)
	}
}

// BuildRepository 创建存储并包装为产物仓库，key 前缀取 store.prefix
func (c *TrainerConfig) BuildRepository() (*artifact.Repository, core.Store, error) {
	st, err := c.BuildStore()
	if err != nil {
		return nil, nil, err
	}
	return artifact.NewRepository(st, c.Store.Prefix), st, nil
}

// Split 按 validation_ratio 切分 judgment
func (c *TrainerConfig) Split(judgments []core.Judgment) (train, validation []core.Judgment, err error) {
	return eval.SplitJudgments(judgments, c.ValidationRatio)
}

// ToMatrix 使用配置中的 feature_dim 构建特征矩阵
func (c *TrainerConfig) ToMatrix(rows []feature.Row) (*feature.Matrix, error) {
	return feature.ToMatrix(rows, c.FeatureDim)
}
