package solver

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/pkg/logging"
)

// L1SquaredHinge 是不含截距项的 L1 正则线性分类器：
//
//	min_w  ‖w‖₁ + C · Σ s_i · max(0, 1 − y_i·w·x_i)²
//
// 使用带回溯步长的 FISTA（加速近端梯度）求解。
// Tol 为相对停止阈值：最优性违反量降到初始值的 Tol 倍以下即停止。
type L1SquaredHinge struct {
	C       float64
	Tol     float64
	MaxIter int
}

var _ core.MarginClassifier = (*L1SquaredHinge)(nil)

// NewL1SquaredHinge 创建默认参数的分类器：C=1, tol=1e-3, max_iter=30000
func NewL1SquaredHinge() *L1SquaredHinge {
	return &L1SquaredHinge{C: 1, Tol: 1e-3, MaxIter: 30000}
}

// rowNonZeroDoer 允许稀疏矩阵只遍历非零元
type rowNonZeroDoer interface {
	DoRowNonZero(i int, fn func(k int, v float64))
}

// hingeProblem 缓存目标函数与梯度的计算
type hingeProblem struct {
	X      mat.Matrix
	doer   rowNonZeroDoer
	y, s   []float64
	c      float64
	n, d   int
	margin []float64
}

func (p *hingeProblem) doRow(i int, fn func(k int, v float64)) {
	if p.doer != nil {
		p.doer.DoRowNonZero(i, fn)
		return
	}
	for k := 0; k < p.d; k++ {
		if v := p.X.At(i, k); v != 0 {
			fn(k, v)
		}
	}
}

// loss 返回平滑部分 f(w)，并把梯度写入 grad（grad 可为 nil）
func (p *hingeProblem) loss(w, grad []float64) float64 {
	if grad != nil {
		for k := range grad {
			grad[k] = 0
		}
	}
	var f float64
	for i := 0; i < p.n; i++ {
		var dot float64
		p.doRow(i, func(k int, v float64) { dot += v * w[k] })
		slack := 1 - p.y[i]*dot
		if slack <= 0 {
			continue
		}
		f += p.s[i] * slack * slack
		if grad != nil {
			coef := -2 * p.c * p.s[i] * p.y[i] * slack
			p.doRow(i, func(k int, v float64) { grad[k] += coef * v })
		}
	}
	return p.c * f
}

// Fit 返回 1×D 的系数矩阵
func (m *L1SquaredHinge) Fit(ctx context.Context, X mat.Matrix, y []float64, sampleWeight []float64) (*mat.Dense, error) {
	n, d := X.Dims()
	if n == 0 {
		return nil, core.EmptyInputError(core.ModuleSolver, "solver: margin classifier needs at least one sample")
	}
	if d == 0 {
		return nil, core.DimensionError(core.ModuleSolver, "solver: margin classifier needs at least one feature")
	}
	if len(y) != n {
		return nil, core.DimensionError(core.ModuleSolver, "solver: %d labels for %d samples", len(y), n)
	}
	if sampleWeight == nil {
		sampleWeight = make([]float64, n)
		floats.AddConst(1, sampleWeight)
	}
	if len(sampleWeight) != n {
		return nil, core.DimensionError(core.ModuleSolver, "solver: %d sample weights for %d samples", len(sampleWeight), n)
	}
	c, tol, maxIter := m.C, m.Tol, m.MaxIter
	if c <= 0 {
		return nil, core.ConfigurationError(core.ModuleSolver, "solver: margin classifier C must be positive, got %g", c)
	}
	if tol <= 0 {
		tol = 1e-3
	}
	if maxIter <= 0 {
		maxIter = 30000
	}

	p := &hingeProblem{X: X, y: y, s: sampleWeight, c: c, n: n, d: d}
	p.doer, _ = X.(rowNonZeroDoer)

	w := make([]float64, d)
	prev := make([]float64, d)
	z := make([]float64, d)
	grad := make([]float64, d)
	next := make([]float64, d)
	diff := make([]float64, d)

	p.loss(w, grad)
	initial := violation(w, grad)
	if initial == 0 {
		return mat.NewDense(1, d, w), nil
	}

	lipschitz := 1.0
	t := 1.0
	iter := 0
	for ; iter < maxIter; iter++ {
		if iter%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		fz := p.loss(z, grad)
		for {
			step := 1 / lipschitz
			for k := range next {
				next[k] = softThreshold(z[k]-step*grad[k], step)
			}
			floats.SubTo(diff, next, z)
			quad := fz + floats.Dot(grad, diff) + lipschitz/2*floats.Dot(diff, diff)
			if p.loss(next, nil) <= quad+1e-12*math.Abs(quad) {
				break
			}
			lipschitz *= 2
		}

		copy(prev, w)
		copy(w, next)
		tNext := (1 + math.Sqrt(1+4*t*t)) / 2
		floats.SubTo(diff, w, prev)
		for k := range z {
			z[k] = w[k] + (t-1)/tNext*diff[k]
		}
		t = tNext

		p.loss(w, grad)
		if violation(w, grad) <= tol*initial {
			break
		}
	}
	if iter >= maxIter {
		logging.Warn("margin classifier reached max_iter", "max_iter", maxIter)
	}
	return mat.NewDense(1, d, w), nil
}

// violation 是 L1 问题次梯度最优性条件的最大违反量
func violation(w, grad []float64) float64 {
	var v float64
	for k := range w {
		var viol float64
		switch {
		case w[k] > 0:
			viol = math.Abs(grad[k] + 1)
		case w[k] < 0:
			viol = math.Abs(grad[k] - 1)
		default:
			viol = math.Max(0, math.Abs(grad[k])-1)
		}
		v = math.Max(v, viol)
	}
	return v
}

func softThreshold(v, t float64) float64 {
	switch {
	case v > t:
		return v - t
	case v < -t:
		return v + t
	default:
		return 0
	}
}
