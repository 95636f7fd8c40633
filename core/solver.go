package core

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"
)

// MarginClassifier 是线性最大间隔分类器的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由 solver 包或外部服务实现
//   - 不含截距项：排序只关心相对比较
//
// 返回的系数矩阵每行对应一个分类超平面；二分类场景应只有一行。
type MarginClassifier interface {
	Fit(ctx context.Context, X mat.Matrix, y []float64, sampleWeight []float64) (*mat.Dense, error)
}

// BoostedModel 是训练好的 boosting 排序模型，分数越高越好。
type BoostedModel interface {
	// Name 返回模型名称（用于日志/序列化）
	Name() string
	// Predict 对每一行输出一个分数
	Predict(ctx context.Context, X mat.Matrix) ([]float64, error)
}

// BoostedRanker 是 listwise/pairwise 梯度提升排序器的领域接口（ndcg 目标）。
// groupSizes 为连续分组的行数，之和必须等于 X 的行数。
type BoostedRanker interface {
	Fit(ctx context.Context, X mat.Matrix, labels []float64, groupSizes []int) (BoostedModel, error)
}

// LinearProgramSolver 是线性规划求解器的领域接口。
//
// 约定：
//   - 必须遵守 timeLimit；超时时返回 lp.Incumbent（若有），否则返回 SOLVER 错误
//   - seed 用于确定性的平局打破，同样输入 + 同样 seed 必须得到逐位相同的结果
type LinearProgramSolver interface {
	Solve(ctx context.Context, lp *LinearProgram, timeLimit time.Duration, seed uint64) (*LPSolution, error)
}

// LPVariable 是线性规划中的一个变量。Free 为 true 表示无界，否则下界为 0。
type LPVariable struct {
	Name string
	Free bool
}

// LPTerm 是 Coef * x[Var]。
type LPTerm struct {
	Var  int
	Coef float64
}

// LPConstraint 表示 Σ terms ≥ RHS。
type LPConstraint struct {
	Name  string
	Terms []LPTerm
	RHS   float64
}

// LinearProgram 是最小化问题：min Σ Objective  s.t. 所有 Constraints。
type LinearProgram struct {
	Name        string
	Variables   []LPVariable
	Constraints []LPConstraint
	Objective   []LPTerm

	// Incumbent 是一个已知可行解（可选），求解超时时作为兜底返回。
	Incumbent []float64
}

// AddVariable 追加变量并返回其下标。
func (lp *LinearProgram) AddVariable(name string, free bool) int {
	lp.Variables = append(lp.Variables, LPVariable{Name: name, Free: free})
	return len(lp.Variables) - 1
}

// AddConstraint 追加约束 Σ terms ≥ rhs。
func (lp *LinearProgram) AddConstraint(name string, terms []LPTerm, rhs float64) {
	lp.Constraints = append(lp.Constraints, LPConstraint{Name: name, Terms: terms, RHS: rhs})
}

// Evaluate 计算给定赋值下的目标函数值。
func (lp *LinearProgram) Evaluate(x []float64) float64 {
	var v float64
	for _, t := range lp.Objective {
		v += t.Coef * x[t.Var]
	}
	return v
}

// Feasible 检查 x 是否满足所有约束与变量下界（容差 tol）。
func (lp *LinearProgram) Feasible(x []float64, tol float64) bool {
	if len(x) != len(lp.Variables) {
		return false
	}
	for k, v := range lp.Variables {
		if !v.Free && x[k] < -tol {
			return false
		}
	}
	for _, c := range lp.Constraints {
		var lhs float64
		for _, t := range c.Terms {
			lhs += t.Coef * x[t.Var]
		}
		if lhs < c.RHS-tol {
			return false
		}
	}
	return true
}

// LPSolution 是求解结果。Optimal 为 false 表示返回的是超时时的 incumbent。
type LPSolution struct {
	Values    []float64
	Objective float64
	Optimal   bool
}
