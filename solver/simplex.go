// Package solver 提供 core 中各求解能力接口的进程内实现。
package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/pkg/logging"
)

// DefaultSeed 是未指定 seed 时 LP 求解使用的随机种子
const DefaultSeed uint64 = 2024

// DefaultTimeLimit 是 LP 求解的默认墙钟时间上限
const DefaultTimeLimit = 60 * time.Second

// Simplex 基于 gonum 的单纯形法实现 core.LinearProgramSolver。
//
// 通用形式 → 标准形式：
//   - 无界变量拆成 x⁺ − x⁻；不出现在任何约束中的变量固定为 0
//   - 每个 ≥ 约束引入一个剩余变量：a·x − s = b
//   - rhs 为负的行整体取反
//
// 列顺序按 seed 做一次确定性的随机置换，用来在多个最优顶点之间打破平局；
// 相同输入 + 相同 seed 得到逐位相同的结果。
// 若每一行都有一个只在该行非零的列（如排序 LP 的松弛变量），直接以它们作为初始基，跳过 Phase I。
type Simplex struct {
	// Tol 是 reduced cost 的相对收敛阈值，实际阈值按目标系数的最大绝对值缩放
	Tol float64

	simplex simplexFunc
}

type simplexFunc func(c []float64, A mat.Matrix, b []float64, tol float64, initialBasic []int) (float64, []float64, error)

var _ core.LinearProgramSolver = (*Simplex)(nil)

// NewSimplex 创建默认参数的单纯形求解器
func NewSimplex() *Simplex {
	return &Simplex{Tol: 1e-9}
}

type simplexResult struct {
	x   []float64
	err error
}

type attempt struct {
	tol   float64
	basis []int
}

// Solve 在 timeLimit 内求解。
//
// gonum 的单纯形在退化问题上可能因数值误差误报 unbounded/singular：此时放宽阈值、改用 Phase I 重试，
// 仍失败则返回已知最好的可行解（尝试中的可行点或 incumbent），Optimal 为 false。
// 只有问题确实可能无界（存在负的目标系数）或确实不可行（没有可行的 incumbent）时才返回 SOLVER 错误。
//
// 超过 timeLimit 时返回 incumbent；调用方取消 ctx 时返回 ctx.Err()。
// gonum 的单纯形不可中断：超时后后台计算会继续直到结束，但结果被丢弃。
func (s *Simplex) Solve(ctx context.Context, prob *core.LinearProgram, timeLimit time.Duration, seed uint64) (*core.LPSolution, error) {
	if prob == nil {
		return nil, core.ConfigurationError(core.ModuleSolver, "solver: nil linear program")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if timeLimit <= 0 {
		timeLimit = DefaultTimeLimit
	}
	if len(prob.Constraints) == 0 {
		return s.solveUnconstrained(prob)
	}

	std, err := toStandardForm(prob, seed)
	if err != nil {
		return nil, err
	}
	solveCtx, cancel := context.WithTimeout(ctx, timeLimit)
	defer cancel()

	var best *core.LPSolution
	var lastErr error
	for _, at := range std.attempts(s.tol() * math.Max(1, floats.Norm(std.c, math.Inf(1)))) {
		res, ok := s.run(solveCtx, std, at)
		if !ok {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if sol := std.fallback(prob, best); sol != nil {
				logging.Warn("simplex time limit reached, returning best feasible point", "lp", prob.Name, "limit", timeLimit, "objective", sol.Objective)
				return sol, nil
			}
			return nil, core.SolverError(core.ModuleSolver, "solver: %s: no incumbent after %s: %v", prob.Name, timeLimit, solveCtx.Err())
		}

		if res.x != nil {
			values := std.recover(res.x)
			if prob.Feasible(values, std.feasTol) {
				sol := &core.LPSolution{Values: values, Objective: prob.Evaluate(values), Optimal: res.err == nil}
				if sol.Optimal {
					return sol, nil
				}
				if best == nil || sol.Objective < best.Objective {
					best = sol
				}
			} else if res.err == nil {
				res.err = errors.New("solution violates constraints")
			}
		}
		lastErr = res.err
		if !std.retryable(lastErr, prob) {
			break
		}
		logging.Debug("simplex attempt failed", "lp", prob.Name, "tol", at.tol, "warm_start", at.basis != nil, "err", lastErr)
	}

	if std.retryable(lastErr, prob) {
		if sol := std.fallback(prob, best); sol != nil {
			logging.Warn("simplex did not reach optimality, returning best feasible point", "lp", prob.Name, "objective", sol.Objective, "err", lastErr)
			return sol, nil
		}
	}
	return nil, core.SolverError(core.ModuleSolver, "solver: %s: %v", prob.Name, lastErr)
}

func (s *Simplex) run(ctx context.Context, std *standardForm, at attempt) (simplexResult, bool) {
	solve := s.simplex
	if solve == nil {
		solve = lp.Simplex
	}
	done := make(chan simplexResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- simplexResult{err: fmt.Errorf("simplex panic: %v", r)}
			}
		}()
		_, x, err := solve(std.c, std.a, std.b, at.tol, at.basis)
		done <- simplexResult{x: x, err: err}
	}()

	select {
	case res := <-done:
		return res, true
	case <-ctx.Done():
		return simplexResult{}, false
	}
}

func (s *Simplex) tol() float64 {
	if s.Tol > 0 {
		return s.Tol
	}
	return 1e-9
}

// 没有约束时：非负变量取 0；任何负系数或作用在无界变量上的系数都意味着无界。
func (s *Simplex) solveUnconstrained(prob *core.LinearProgram) (*core.LPSolution, error) {
	for _, t := range prob.Objective {
		if t.Coef < 0 || (t.Coef != 0 && prob.Variables[t.Var].Free) {
			return nil, core.SolverError(core.ModuleSolver, "solver: %s: unbounded", prob.Name)
		}
	}
	return &core.LPSolution{Values: make([]float64, len(prob.Variables)), Optimal: true}, nil
}

type standardForm struct {
	c []float64
	a *mat.Dense
	b []float64

	// plus[v]/minus[v] 为原变量 v 在标准形式中的列，-1 表示没有该列
	plus, minus []int
	// basis 是由单位列组成的可行初始基，可能为 nil
	basis []int
	// bounded 为 true 表示所有目标系数非负：目标有下界 0，不可能无界
	bounded bool
	feasTol float64
}

func toStandardForm(prob *core.LinearProgram, seed uint64) (*standardForm, error) {
	m := len(prob.Constraints)
	nVars := len(prob.Variables)

	signs := make([]float64, m)
	rows := make([]map[int]float64, m)
	used := make([]bool, nVars)
	var maxRHS float64
	for r, con := range prob.Constraints {
		signs[r] = 1
		if con.RHS < 0 {
			signs[r] = -1
		}
		maxRHS = math.Max(maxRHS, math.Abs(con.RHS))
		row := make(map[int]float64, len(con.Terms))
		for _, t := range con.Terms {
			row[t.Var] += signs[r] * t.Coef
		}
		for v, coef := range row {
			if coef == 0 {
				delete(row, v)
				continue
			}
			used[v] = true
		}
		rows[r] = row
	}
	obj := make([]float64, nVars)
	for _, t := range prob.Objective {
		obj[t.Var] += t.Coef
	}

	n := m
	for v, variable := range prob.Variables {
		if !used[v] {
			if obj[v] < 0 || (variable.Free && obj[v] != 0) {
				return nil, core.SolverError(core.ModuleSolver, "solver: %s: variable %s is unbounded", prob.Name, variable.Name)
			}
			continue
		}
		n++
		if variable.Free {
			n++
		}
	}

	perm := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)).Perm(n)
	next := 0
	col := func() int {
		c := perm[next]
		next++
		return c
	}

	std := &standardForm{
		c:       make([]float64, n),
		a:       mat.NewDense(m, n, nil),
		b:       make([]float64, m),
		plus:    make([]int, nVars),
		minus:   make([]int, nVars),
		feasTol: 1e-6 * math.Max(1, maxRHS),
	}
	for v, variable := range prob.Variables {
		std.plus[v], std.minus[v] = -1, -1
		if !used[v] {
			continue
		}
		std.plus[v] = col()
		std.c[std.plus[v]] = obj[v]
		if variable.Free {
			std.minus[v] = col()
			std.c[std.minus[v]] = -obj[v]
		}
	}
	for r, row := range rows {
		for v, coef := range row {
			std.a.Set(r, std.plus[v], coef)
			if mc := std.minus[v]; mc >= 0 {
				std.a.Set(r, mc, -coef)
			}
		}
		std.a.Set(r, col(), -signs[r])
		std.b[r] = signs[r] * prob.Constraints[r].RHS
	}
	std.basis = unitBasis(std.a, std.b)
	std.bounded = floats.Min(std.c) >= 0
	return std, nil
}

// unitBasis 为每一行找一个只在该行非零、且 b/a ≥ 0 的列，组成可行的初始基；任一行找不到时返回 nil。
func unitBasis(a *mat.Dense, b []float64) []int {
	m, n := a.Dims()
	basis := make([]int, m)
	for r := range basis {
		basis[r] = -1
	}
	for j := 0; j < n; j++ {
		row, nz := -1, 0
		for i := 0; i < m && nz < 2; i++ {
			if a.At(i, j) != 0 {
				row = i
				nz++
			}
		}
		if nz != 1 || basis[row] >= 0 {
			continue
		}
		if a.At(row, j) > 0 || b[row] == 0 {
			basis[row] = j
		}
	}
	for _, j := range basis {
		if j < 0 {
			return nil
		}
	}
	return basis
}

// attempts 依次放宽阈值；有初始基时最后再用 Phase I 试一次
func (std *standardForm) attempts(tol float64) []attempt {
	out := []attempt{{tol: tol, basis: std.basis}, {tol: tol * 1e3, basis: std.basis}}
	if std.basis != nil {
		out = append(out, attempt{tol: tol * 1e3})
	}
	return out
}

// retryable 判断失败是否可能只是数值问题：
// 目标有下界时的 unbounded、存在可行 incumbent 时的 infeasible，以及其他数值错误都值得重试。
func (std *standardForm) retryable(err error, prob *core.LinearProgram) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, lp.ErrUnbounded):
		return std.bounded
	case errors.Is(err, lp.ErrInfeasible):
		return std.incumbentFeasible(prob)
	default:
		return true
	}
}

func (std *standardForm) incumbentFeasible(prob *core.LinearProgram) bool {
	return prob.Incumbent != nil && prob.Feasible(prob.Incumbent, std.feasTol)
}

// fallback 在尝试得到的可行点与 incumbent 中取目标值更小的一个
func (std *standardForm) fallback(prob *core.LinearProgram, best *core.LPSolution) *core.LPSolution {
	if std.incumbentFeasible(prob) {
		values := append([]float64(nil), prob.Incumbent...)
		inc := &core.LPSolution{Values: values, Objective: prob.Evaluate(values)}
		if best == nil || inc.Objective < best.Objective {
			return inc
		}
	}
	return best
}

func (std *standardForm) recover(x []float64) []float64 {
	values := make([]float64, len(std.plus))
	for v := range values {
		var val float64
		if pc := std.plus[v]; pc >= 0 {
			val = x[pc]
		}
		if mc := std.minus[v]; mc >= 0 {
			val -= x[mc]
		}
		// 抹掉单纯形迭代留下的 -0 与极小噪声
		if math.Abs(val) < 1e-12 {
			val = 0
		}
		values[v] = val
	}
	return values
}
