package feature

import (
	"math"
	"slices"

	"github.com/rushteam/rankfit/core"
)

// PreprocessOption 指定训练前的特征预处理方式
type PreprocessOption string

const (
	// PreprocessNone 不做处理
	PreprocessNone PreprocessOption = "none"
	// PreprocessDivByStd 每个特征除以其标准差（稀疏性保持不变）
	PreprocessDivByStd PreprocessOption = "div-by-std"
	// PreprocessStandardScaling 每个特征减均值再除以标准差。
	// 稀疏输入只变换出现的元素，缺失元素仍为缺失，结果保持稀疏。
	PreprocessStandardScaling PreprocessOption = "standard-scaling"
	// PreprocessMinMax 缩放到 [0, 1]，缺失元素按 0 参与，会稠密化稀疏输入
	PreprocessMinMax PreprocessOption = "min-max"
)

// std 小于该值时视为 0，替换为 1，避免除零
const stdEpsilon = 1e-6

// ParsePreprocessOption 解析配置中的预处理选项，空串等价于 none。
func ParsePreprocessOption(s string) (PreprocessOption, error) {
	switch PreprocessOption(s) {
	case "", PreprocessNone:
		return PreprocessNone, nil
	case PreprocessDivByStd, PreprocessStandardScaling, PreprocessMinMax:
		return PreprocessOption(s), nil
	default:
		return "", core.ConfigurationError(core.ModuleFeature, "feature: unknown preprocess option %q", s)
	}
}

// Preprocessor 在训练集上拟合每个特征的统计量，然后对训练/验证/推理数据做同样的变换。
// 字段可直接 JSON 序列化，随权重产物一起持久化。
type Preprocessor struct {
	Option PreprocessOption `json:"option"`
	Mean   []float64        `json:"mean,omitempty"`
	Std    []float64        `json:"std,omitempty"`
	Min    []float64        `json:"min,omitempty"`
	Max    []float64        `json:"max,omitempty"`
}

// NewPreprocessor 创建预处理器
func NewPreprocessor(option PreprocessOption) *Preprocessor {
	if option == "" {
		option = PreprocessNone
	}
	return &Preprocessor{Option: option}
}

// Clone 返回深拷贝，nil 的拷贝仍为 nil
func (p *Preprocessor) Clone() *Preprocessor {
	if p == nil {
		return nil
	}
	return &Preprocessor{
		Option: p.Option,
		Mean:   slices.Clone(p.Mean),
		Std:    slices.Clone(p.Std),
		Min:    slices.Clone(p.Min),
		Max:    slices.Clone(p.Max),
	}
}

// Fit 在 X 上计算统计量（总体标准差，分母都是行数 n）。
//
// 稠密输入按完整的列计算。稀疏输入只累加出现的元素：
// mean = Σ_present v / n，var = Σ_present (v − mean)² / n，缺失元素不参与方差。
func (p *Preprocessor) Fit(X *Matrix) {
	n, d := X.Dims()
	if p.Option == PreprocessNone || n == 0 {
		return
	}
	sum := make([]float64, d)
	sumSq := make([]float64, d)
	nnz := make([]int, d)
	minV := make([]float64, d)
	maxV := make([]float64, d)
	for k := range minV {
		minV[k] = math.Inf(1)
		maxV[k] = math.Inf(-1)
	}
	for i := 0; i < n; i++ {
		X.DoRowNonZero(i, func(k int, v float64) {
			sum[k] += v
			sumSq[k] += v * v
			nnz[k]++
			minV[k] = math.Min(minV[k], v)
			maxV[k] = math.Max(maxV[k], v)
		})
	}

	total := float64(n)
	p.Mean = make([]float64, d)
	p.Std = make([]float64, d)
	for k := 0; k < d; k++ {
		p.Mean[k] = sum[k] / total
	}
	var sqDev []float64
	if X.IsSparse() {
		sqDev = make([]float64, d)
		for i := 0; i < n; i++ {
			X.DoRowNonZero(i, func(k int, v float64) {
				sqDev[k] += (v - p.Mean[k]) * (v - p.Mean[k])
			})
		}
	}
	for k := 0; k < d; k++ {
		mean := p.Mean[k]
		variance := sumSq[k]/total - mean*mean
		if sqDev != nil {
			variance = sqDev[k] / total
		}
		std := math.Sqrt(math.Max(variance, 0))
		if std < stdEpsilon {
			std = 1
		}
		p.Std[k] = std
		// 有隐式 0 的列，0 也参与 min/max
		if nnz[k] < n {
			minV[k] = math.Min(minV[k], 0)
			maxV[k] = math.Max(maxV[k], 0)
		}
	}
	p.Min, p.Max = minV, maxV
}

// Transform 返回变换后的新矩阵，X 本身不变。未 Fit 或 none 时原样返回。
func (p *Preprocessor) Transform(X *Matrix) (*Matrix, error) {
	if p.Option == PreprocessNone || len(p.Std) == 0 {
		return X, nil
	}
	n, d := X.Dims()
	if d != len(p.Std) {
		return nil, core.DimensionError(core.ModuleFeature, "feature: preprocessor fitted on %d features, got %d", len(p.Std), d)
	}

	switch p.Option {
	case PreprocessDivByStd:
		b := NewBuilder(n, d, X.IsSparse())
		for i := 0; i < n; i++ {
			X.DoRowNonZero(i, func(k int, v float64) { b.Set(i, k, v/p.Std[k]) })
		}
		return b.Build(), nil
	case PreprocessStandardScaling:
		if X.IsSparse() {
			b := NewBuilder(n, d, true)
			for i := 0; i < n; i++ {
				X.DoRowNonZero(i, func(k int, v float64) { b.Set(i, k, (v-p.Mean[k])/p.Std[k]) })
			}
			return b.Build(), nil
		}
		return p.denseMap(X, func(k int, v float64) float64 { return (v - p.Mean[k]) / p.Std[k] }), nil
	case PreprocessMinMax:
		return p.denseMap(X, func(k int, v float64) float64 {
			r := p.Max[k] - p.Min[k]
			if r > 0 {
				return (v - p.Min[k]) / r
			}
			return v
		}), nil
	default:
		return nil, core.ConfigurationError(core.ModuleFeature, "feature: unknown preprocess option %q", p.Option)
	}
}

// FitTransform 等价于 Fit + Transform
func (p *Preprocessor) FitTransform(X *Matrix) (*Matrix, error) {
	p.Fit(X)
	return p.Transform(X)
}

func (p *Preprocessor) denseMap(X *Matrix, fn func(k int, v float64) float64) *Matrix {
	n, d := X.Dims()
	b := NewBuilder(n, d, false)
	for i := 0; i < n; i++ {
		row := X.RowVector(i)
		for k, v := range row {
			b.Set(i, k, fn(k, v))
		}
	}
	return b.Build()
}
