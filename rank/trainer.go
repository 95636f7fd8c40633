// Package rank 是排序训练器：把 judgment 归约为优化问题，调用对应的求解能力，产出权重产物。
package rank

import (
	"context"
	"time"

	"github.com/rushteam/rankfit/artifact"
	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/feature"
	"github.com/rushteam/rankfit/metrics"
	"github.com/rushteam/rankfit/pairwise"
	"github.com/rushteam/rankfit/pkg/dsl"
	"github.com/rushteam/rankfit/pkg/logging"
)

// State 是 Trainer 的生命周期状态
type State int

const (
	StateUninitialized State = iota
	StateFitting
	StateFitted
)

func (s State) String() string {
	switch s {
	case StateFitting:
		return "fitting"
	case StateFitted:
		return "fitted"
	default:
		return "uninitialized"
	}
}

// Trainer 持有一个策略与最近一次训练的产物。
// 一个 Trainer 只归一个调用方所有，不做并发保护；并行训练请为每个任务创建独立的 Trainer（见 FitAll）。
type Trainer struct {
	strategy     Strategy
	preprocessor *feature.Preprocessor
	filter       *dsl.Eval
	recorder     *metrics.Recorder

	state    State
	artifact artifact.Artifact
}

// Option 配置 Trainer
type Option func(*Trainer)

// WithPreprocessor 在训练前拟合并应用特征预处理。
// 拟合得到的统计量随产物保存，Score 与反序列化后的产物使用同一套统计量。
func WithPreprocessor(p *feature.Preprocessor) Option {
	return func(t *Trainer) { t.preprocessor = p }
}

// WithFilter 在归约前用 CEL 表达式过滤 judgment
func WithFilter(e *dsl.Eval) Option {
	return func(t *Trainer) { t.filter = e }
}

// WithRecorder 记录训练指标
func WithRecorder(r *metrics.Recorder) Option {
	return func(t *Trainer) { t.recorder = r }
}

// NewTrainer 创建训练器，strategy 不能为空
func NewTrainer(strategy Strategy, opts ...Option) (*Trainer, error) {
	if strategy == nil {
		return nil, core.ConfigurationError(core.ModuleRank, "rank: nil strategy")
	}
	t := &Trainer{strategy: strategy}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// NewTrainerByName 等价于 ParseStrategy + NewTrainer
func NewTrainerByName(name string, opts ...Option) (*Trainer, error) {
	s, err := ParseStrategy(name)
	if err != nil {
		return nil, err
	}
	return NewTrainer(s, opts...)
}

// Strategy 返回构造时确定的策略
func (t *Trainer) Strategy() Strategy { return t.strategy }

// State 返回当前状态
func (t *Trainer) State() State { return t.state }

// Preprocessor 返回最近一次成功训练拟合的预处理器（可能为 nil）
func (t *Trainer) Preprocessor() *feature.Preprocessor { return t.preprocessor }

// Fit 训练并替换之前的产物。失败时保留之前的产物、预处理统计量与状态。
// groups 为空表示所有行属于同一个隐式分组。
func (t *Trainer) Fit(ctx context.Context, X *feature.Matrix, judgments []core.Judgment, groups []core.GroupID) (artifact.Artifact, error) {
	start := time.Now()
	prev := t.state
	t.state = StateFitting

	a, pre, err := t.fit(ctx, X, judgments, groups)
	elapsed := time.Since(start)
	t.recorder.ObserveFit(t.strategy.Name(), len(judgments), elapsed, err)
	if err != nil {
		t.state = prev
		logging.Error("fit failed", "strategy", t.strategy.Name(), "code", core.ErrorCode(err), "err", err)
		return nil, err
	}

	t.artifact = a
	t.preprocessor = pre
	t.state = StateFitted
	logging.Info("fit finished",
		"strategy", t.strategy.Name(),
		"rows", X.Rows(),
		"dim", X.Dim(),
		"judgments", len(judgments),
		"grouped", len(groups) > 0,
		"duration", elapsed,
	)
	return a, nil
}

// fit 在预处理器的拷贝上拟合，由 Fit 在成功后提交
func (t *Trainer) fit(ctx context.Context, X *feature.Matrix, judgments []core.Judgment, groups []core.GroupID) (artifact.Artifact, *feature.Preprocessor, error) {
	if X == nil {
		return nil, nil, core.ConfigurationError(core.ModuleRank, "rank: nil feature matrix")
	}
	if err := pairwise.CheckGroups(X, groups); err != nil {
		return nil, nil, err
	}
	judgments, err := pairwise.Filter(t.filter, judgments, groups)
	if err != nil {
		return nil, nil, err
	}
	pre := t.preprocessor.Clone()
	if pre != nil {
		if X, err = pre.FitTransform(X); err != nil {
			return nil, nil, err
		}
	}
	a, err := t.strategy.fit(ctx, X, judgments, groups)
	if err != nil {
		return nil, nil, err
	}
	return artifact.WithPreprocessor(a, pre), pre, nil
}

// Weights 返回最近一次训练的产物；未训练时返回 CONFIGURATION 错误
func (t *Trainer) Weights() (artifact.Artifact, error) {
	if t.state != StateFitted || t.artifact == nil {
		return nil, core.ConfigurationError(core.ModuleRank, "rank: trainer is %s, call Fit first", t.state)
	}
	return t.artifact, nil
}

// Score 用训练好的产物打分，训练时的预处理由产物自己应用
func (t *Trainer) Score(ctx context.Context, X *feature.Matrix, group *core.GroupID) ([]float64, error) {
	a, err := t.Weights()
	if err != nil {
		return nil, err
	}
	return a.Score(ctx, X, group)
}
