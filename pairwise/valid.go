// Package pairwise 把相对偏好 judgment 规约为各个后端可以直接求解的训练数据：
// 二分类样本（margin classifier）、带松弛变量的线性规划（LP）、或按组的 listwise 标签（boosting）。
package pairwise

import (
	"math"

	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/feature"
	"github.com/rushteam/rankfit/pkg/dsl"
)

// CheckGroups 校验分组长度；groups 为空表示不分组。
func CheckGroups(X *feature.Matrix, groups []core.GroupID) error {
	if len(groups) != 0 && len(groups) != X.Rows() {
		return core.DimensionError(core.ModulePairwise, "pairwise: %d group ids for %d rows", len(groups), X.Rows())
	}
	return nil
}

// Valid 返回可用于训练/评估的 judgment：
//   - 下标越界返回 INDEX 错误
//   - importance 为负或非有限值返回 CONFIGURATION 错误
//   - 负 relation 统一改写为交换 (i, j) 后的非负形式
//   - i == j 或两行特征完全相同的退化 judgment 被静默丢弃（没有任何信息量）
func Valid(X *feature.Matrix, judgments []core.Judgment) ([]core.Judgment, error) {
	out := make([]core.Judgment, 0, len(judgments))
	for _, jd := range judgments {
		if err := X.CheckRow(jd.I); err != nil {
			return nil, core.IndexError(core.ModulePairwise, "pairwise: judgment %s: %v", jd, err)
		}
		if err := X.CheckRow(jd.J); err != nil {
			return nil, core.IndexError(core.ModulePairwise, "pairwise: judgment %s: %v", jd, err)
		}
		if jd.Importance < 0 || math.IsNaN(jd.Importance) || math.IsInf(jd.Importance, 0) {
			return nil, core.ConfigurationError(core.ModulePairwise, "pairwise: judgment %s has invalid importance", jd)
		}
		if math.IsNaN(jd.Relation) || math.IsInf(jd.Relation, 0) {
			return nil, core.ConfigurationError(core.ModulePairwise, "pairwise: judgment %s has invalid relation", jd)
		}
		jd = jd.Canonical()
		if X.RowsEqual(jd.I, jd.J) {
			continue
		}
		out = append(out, jd)
	}
	return out, nil
}

// Filter 按 CEL 表达式过滤 judgment（表达式为 nil 时原样返回）。
func Filter(eval *dsl.Eval, judgments []core.Judgment, groups []core.GroupID) ([]core.Judgment, error) {
	if eval == nil || eval.Expr() == "" {
		return judgments, nil
	}
	out := make([]core.Judgment, 0, len(judgments))
	for _, jd := range judgments {
		if jd.I < 0 || jd.J < 0 || (len(groups) > 0 && (jd.I >= len(groups) || jd.J >= len(groups))) {
			return nil, core.IndexError(core.ModulePairwise, "pairwise: judgment %s references a row without group id", jd)
		}
		keep, err := eval.Evaluate(jd.I, jd.J, jd.Relation, jd.Importance,
			int(core.GroupOf(groups, jd.I)), int(core.GroupOf(groups, jd.J)))
		if err != nil {
			return nil, core.ConfigurationError(core.ModulePairwise, "pairwise: judgment filter %q: %v", eval.Expr(), err)
		}
		if keep {
			out = append(out, jd)
		}
	}
	return out, nil
}
