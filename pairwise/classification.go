package pairwise

import (
	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/feature"
)

// Classification 是 margin classifier 的训练数据
type Classification struct {
	X            *feature.Matrix
	Y            []float64
	SampleWeight []float64
}

// ToClassification 对每个有效 judgment 生成一对符号相反的样本：
//
//	X[i]-X[j] → +1，X[j]-X[i] → -1
//
// 两个样本的权重都是 importance，保证学到的边界与 judgment 的书写顺序无关。
// 没有任何有效 judgment 时返回 EMPTY_INPUT 错误。输出保持输入的稀疏/稠密表示。
func ToClassification(X *feature.Matrix, judgments []core.Judgment) (*Classification, error) {
	valid, err := Valid(X, judgments)
	if err != nil {
		return nil, err
	}
	if len(valid) == 0 {
		return nil, core.EmptyInputError(core.ModulePairwise, "pairwise: no valid judgments to build classification data")
	}

	n := 2 * len(valid)
	b := feature.NewBuilder(n, X.Dim(), X.IsSparse())
	y := make([]float64, n)
	w := make([]float64, n)
	diff := make(map[int]float64, X.Dim())
	for p, jd := range valid {
		clear(diff)
		X.DoRowNonZero(jd.I, func(k int, v float64) { diff[k] += v })
		X.DoRowNonZero(jd.J, func(k int, v float64) { diff[k] -= v })
		for k, v := range diff {
			b.Set(2*p, k, v)
			b.Set(2*p+1, k, -v)
		}
		y[2*p], y[2*p+1] = 1, -1
		w[2*p], w[2*p+1] = jd.Importance, jd.Importance
	}
	return &Classification{X: b.Build(), Y: y, SampleWeight: w}, nil
}
