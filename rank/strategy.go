package rank

import (
	"context"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/rankfit/artifact"
	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/feature"
	"github.com/rushteam/rankfit/pairwise"
	"github.com/rushteam/rankfit/pkg/logging"
	"github.com/rushteam/rankfit/solver"
)

// 策略名
const (
	NameMarginClassifier = "margin-classifier"
	NameLinearProgram    = "linear-program"
	NameBoostedRanker    = "boosted-ranker"
)

// Strategy 是训练策略，封闭的三选一：*MarginClassifier | *LinearProgram | *BoostedRanker。
// 在 Trainer 构造时确定，之后不可切换。
type Strategy interface {
	Name() string

	fit(ctx context.Context, X *feature.Matrix, judgments []core.Judgment, groups []core.GroupID) (artifact.Artifact, error)
}

// ParseStrategy 按名称创建默认参数的策略。
//
//	ranksvm / margin-classifier
//	lp / linear-program          （C 需另行设置）
//	lambdamart / boosted-ranker
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ranksvm", NameMarginClassifier:
		return &MarginClassifier{}, nil
	case "lp", NameLinearProgram:
		return &LinearProgram{}, nil
	case "lambdamart", NameBoostedRanker:
		return &BoostedRanker{}, nil
	default:
		return nil, core.ConfigurationError(core.ModuleRank, "rank: unknown strategy %q", name)
	}
}

// MarginClassifier 在 pairwise 差分样本上训练 L1 正则的线性分类器，系数即权重。
// 忽略分组，产出 *artifact.Ungrouped。
type MarginClassifier struct {
	// Classifier 为空时使用 solver.NewL1SquaredHinge()
	Classifier core.MarginClassifier
}

func (s *MarginClassifier) Name() string { return NameMarginClassifier }

func (s *MarginClassifier) fit(ctx context.Context, X *feature.Matrix, judgments []core.Judgment, _ []core.GroupID) (artifact.Artifact, error) {
	data, err := pairwise.ToClassification(X, judgments)
	if err != nil {
		return nil, err
	}
	cls := s.Classifier
	if cls == nil {
		cls = solver.NewL1SquaredHinge()
	}
	coef, err := cls.Fit(ctx, data.X, data.Y, data.SampleWeight)
	if err != nil {
		return nil, err
	}
	r, c := coef.Dims()
	if r != 1 {
		return nil, core.ConfigurationError(core.ModuleRank, "rank: classifier returned %d coefficient rows, want 1", r)
	}
	if c != X.Dim() {
		return nil, core.DimensionError(core.ModuleRank, "rank: classifier returned %d coefficients for %d features", c, X.Dim())
	}
	return &artifact.Ungrouped{W: mat.Row(nil, 0, coef)}, nil
}

// LinearProgram 求解排序 LP，每个分组一套权重。
type LinearProgram struct {
	// C 是松弛惩罚系数，必填且必须为正
	C         float64
	TimeLimit time.Duration
	// Seed 为 0 时使用 solver.DefaultSeed
	Seed   uint64
	Solver core.LinearProgramSolver
}

func (s *LinearProgram) Name() string { return NameLinearProgram }

func (s *LinearProgram) fit(ctx context.Context, X *feature.Matrix, judgments []core.Judgment, groups []core.GroupID) (artifact.Artifact, error) {
	if s.C <= 0 {
		return nil, core.ConfigurationError(core.ModuleRank, "rank: linear-program requires a positive C, got %g", s.C)
	}
	prob, layout, err := pairwise.ToLinearProgram(X, judgments, groups, s.C)
	if err != nil {
		return nil, err
	}
	lps := s.Solver
	if lps == nil {
		lps = solver.NewSimplex()
	}
	limit := s.TimeLimit
	if limit <= 0 {
		limit = solver.DefaultTimeLimit
	}
	seed := s.Seed
	if seed == 0 {
		seed = solver.DefaultSeed
	}

	sol, err := lps.Solve(ctx, prob, limit, seed)
	if err != nil {
		return nil, err
	}
	if !sol.Optimal {
		logging.Warn("linear program not solved to optimality", "objective", sol.Objective, "limit", limit)
	}
	logging.Debug("linear program solved",
		"variables", len(prob.Variables), "constraints", len(prob.Constraints), "objective", sol.Objective)

	weights := layout.Extract(sol.Values)
	if !layout.Grouped {
		return &artifact.Ungrouped{W: weights[0]}, nil
	}
	return &artifact.Grouped{D: X.Dim(), W: weights}, nil
}

// BoostedRanker 在 listwise 数据上训练 boosting 排序模型，模型本身即产物。
type BoostedRanker struct {
	// Ranker 为空时使用 solver.NewLambdaBooster()
	Ranker core.BoostedRanker
}

func (s *BoostedRanker) Name() string { return NameBoostedRanker }

func (s *BoostedRanker) fit(ctx context.Context, X *feature.Matrix, judgments []core.Judgment, groups []core.GroupID) (artifact.Artifact, error) {
	data, err := pairwise.ToGroups(X, judgments, groups)
	if err != nil {
		return nil, err
	}
	ranker := s.Ranker
	if ranker == nil {
		ranker = solver.NewLambdaBooster()
	}
	model, err := ranker.Fit(ctx, data.X, data.Labels, data.GroupSizes)
	if err != nil {
		return nil, err
	}
	return &artifact.Boosted{D: X.Dim(), Model: model}, nil
}
