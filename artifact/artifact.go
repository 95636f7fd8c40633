// Package artifact 定义训练产物（权重）以及基于它的打分器。
//
// 约定：分数越高越好。规划器使用相反的约定（启发值越低越好），通过 Heuristic 转换。
package artifact

import (
	"context"
	"slices"

	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/feature"
)

// WorstScore 是未见过分组时每一行的分数
const WorstScore = -1e6

// Kind 是产物的类型标签
type Kind string

const (
	KindUngrouped Kind = "ungrouped"
	KindGrouped   Kind = "grouped"
	KindBoosted   Kind = "boosted"
)

// Artifact 是训练产物，封闭的三选一：*Ungrouped | *Grouped | *Boosted。
type Artifact interface {
	Kind() Kind
	// Dim 返回特征维度；远程模型未知时为 0
	Dim() int
	// Score 对 X 的每一行打分。group 只对 *Grouped 有意义。
	// 产物带有预处理器时，先对 X 做训练时的同一变换。
	Score(ctx context.Context, X *feature.Matrix, group *core.GroupID) ([]float64, error)
	// Preprocessor 返回训练时拟合的预处理器，可能为 nil
	Preprocessor() *feature.Preprocessor

	sealed()
}

// Heuristic 把分数转换为规划器的启发值（越低越好）：未见分组得到 +1e6。
func Heuristic(score float64) float64 { return -score }

// Group 返回指向 g 的指针，便于调用 Score
func Group(g core.GroupID) *core.GroupID { return &g }

// WithPreprocessor 把拟合好的预处理器挂到产物上，随产物一起序列化
func WithPreprocessor(a Artifact, p *feature.Preprocessor) Artifact {
	switch v := a.(type) {
	case *Ungrouped:
		v.Pre = p
	case *Grouped:
		v.Pre = p
	case *Boosted:
		v.Pre = p
	}
	return a
}

func preprocess(p *feature.Preprocessor, X *feature.Matrix) (*feature.Matrix, error) {
	if p == nil {
		return X, nil
	}
	return p.Transform(X)
}

// Ungrouped 是单个线性权重向量
type Ungrouped struct {
	W   []float64
	Pre *feature.Preprocessor
}

func (*Ungrouped) sealed() {}

func (*Ungrouped) Kind() Kind                            { return KindUngrouped }
func (a *Ungrouped) Dim() int                            { return len(a.W) }
func (a *Ungrouped) Preprocessor() *feature.Preprocessor { return a.Pre }

// Score 计算 X·W，忽略 group
func (a *Ungrouped) Score(_ context.Context, X *feature.Matrix, _ *core.GroupID) ([]float64, error) {
	X, err := preprocess(a.Pre, X)
	if err != nil {
		return nil, err
	}
	return X.MulVec(a.W)
}

// Grouped 是每个分组一个权重向量
type Grouped struct {
	D   int
	W   map[core.GroupID][]float64
	Pre *feature.Preprocessor
}

func (*Grouped) sealed() {}

func (*Grouped) Kind() Kind                            { return KindGrouped }
func (a *Grouped) Dim() int                            { return a.D }
func (a *Grouped) Preprocessor() *feature.Preprocessor { return a.Pre }

// Groups 返回升序的分组 id
func (a *Grouped) Groups() []core.GroupID {
	out := make([]core.GroupID, 0, len(a.W))
	for g := range a.W {
		out = append(out, g)
	}
	slices.Sort(out)
	return out
}

// Score 使用 group 对应的权重；group 为空是配置错误，未见过的分组所有行得到 WorstScore。
func (a *Grouped) Score(_ context.Context, X *feature.Matrix, group *core.GroupID) ([]float64, error) {
	if group == nil {
		return nil, core.ConfigurationError(core.ModuleArtifact, "artifact: grouped weights need a group to score")
	}
	if X.Dim() != a.D {
		return nil, core.DimensionError(core.ModuleArtifact, "artifact: weights have dim %d, features have %d", a.D, X.Dim())
	}
	w, ok := a.W[*group]
	if !ok {
		scores := make([]float64, X.Rows())
		for i := range scores {
			scores[i] = WorstScore
		}
		return scores, nil
	}
	X, err := preprocess(a.Pre, X)
	if err != nil {
		return nil, err
	}
	return X.MulVec(w)
}

// Boosted 包装 boosting 模型
type Boosted struct {
	D     int
	Model core.BoostedModel
	Pre   *feature.Preprocessor
}

func (*Boosted) sealed() {}

func (*Boosted) Kind() Kind                            { return KindBoosted }
func (a *Boosted) Dim() int                            { return a.D }
func (a *Boosted) Preprocessor() *feature.Preprocessor { return a.Pre }

// Score 调用模型预测，忽略 group
func (a *Boosted) Score(ctx context.Context, X *feature.Matrix, _ *core.GroupID) ([]float64, error) {
	if a.D > 0 && X.Dim() != a.D {
		return nil, core.DimensionError(core.ModuleArtifact, "artifact: model has dim %d, features have %d", a.D, X.Dim())
	}
	X, err := preprocess(a.Pre, X)
	if err != nil {
		return nil, err
	}
	return a.Model.Predict(ctx, X)
}
