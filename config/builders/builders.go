// Package builders 在 init 中注册内置训练策略，供配置驱动使用。
package builders

import (
	"strings"

	"github.com/rushteam/rankfit/config"
	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/pkg/conv"
	"github.com/rushteam/rankfit/rank"
	"github.com/rushteam/rankfit/solver"
)

func init() {
	config.Register(rank.NameMarginClassifier, BuildMarginClassifier)
	config.Register("ranksvm", BuildMarginClassifier)
	config.Register(rank.NameLinearProgram, BuildLinearProgram)
	config.Register("lp", BuildLinearProgram)
	config.Register(rank.NameBoostedRanker, BuildBoostedRanker)
	config.Register("lambdamart", BuildBoostedRanker)
}

// BuildMarginClassifier 参数：C（默认 1）、tol（默认 1e-3）、max_iter（默认 30000）
func BuildMarginClassifier(params map[string]any) (rank.Strategy, error) {
	cls := solver.NewL1SquaredHinge()
	cls.C = conv.ConfigGetFloat64(params, "C", cls.C)
	cls.Tol = conv.ConfigGetFloat64(params, "tol", cls.Tol)
	cls.MaxIter = int(conv.ConfigGetInt64(params, "max_iter", int64(cls.MaxIter)))
	if cls.C <= 0 {
		return nil, core.ConfigurationError(core.ModuleConfig, "config: margin-classifier C must be positive, got %g", cls.C)
	}
	return &rank.MarginClassifier{Classifier: cls}, nil
}

// BuildLinearProgram 参数：C（必填）、time_limit（秒，默认 60）、seed（默认 2024）
func BuildLinearProgram(params map[string]any) (rank.Strategy, error) {
	if !conv.Has(params, "C") {
		return nil, core.ConfigurationError(core.ModuleConfig, "config: linear-program requires parameter C")
	}
	s := &rank.LinearProgram{
		C:         conv.ConfigGetFloat64(params, "C", 0),
		TimeLimit: conv.ConfigGetSeconds(params, "time_limit", solver.DefaultTimeLimit),
		Seed:      uint64(conv.ConfigGetInt64(params, "seed", int64(solver.DefaultSeed))),
	}
	if s.C <= 0 {
		return nil, core.ConfigurationError(core.ModuleConfig, "config: linear-program C must be positive, got %g", s.C)
	}
	return s, nil
}

// BuildBoostedRanker 参数：
//   - endpoint 非空时使用远程 XGBoost 服务（timeout 秒、booster_params 透传）
//   - 否则使用进程内 LambdaMART：rounds、learning_rate、max_depth、min_leaf
func BuildBoostedRanker(params map[string]any) (rank.Strategy, error) {
	if endpoint := strings.TrimSpace(conv.ConfigGet(params, "endpoint", "")); endpoint != "" {
		b := solver.NewHTTPBooster(endpoint, conv.ConfigGetSeconds(params, "timeout", 0))
		b.Params = conv.ConfigGet[map[string]any](params, "booster_params", nil)
		return &rank.BoostedRanker{Ranker: b}, nil
	}
	b := solver.NewLambdaBooster()
	b.Rounds = int(conv.ConfigGetInt64(params, "rounds", int64(b.Rounds)))
	b.LearningRate = conv.ConfigGetFloat64(params, "learning_rate", b.LearningRate)
	b.MaxDepth = int(conv.ConfigGetInt64(params, "max_depth", int64(b.MaxDepth)))
	b.MinLeaf = int(conv.ConfigGetInt64(params, "min_leaf", int64(b.MinLeaf)))
	if b.Rounds <= 0 || b.LearningRate <= 0 || b.MaxDepth <= 0 || b.MinLeaf <= 0 {
		return nil, core.ConfigurationError(core.ModuleConfig, "config: boosted-ranker parameters must be positive")
	}
	return &rank.BoostedRanker{Ranker: b}, nil
}
