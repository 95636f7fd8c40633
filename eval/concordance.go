// Package eval 评估打分结果与 judgment 的一致性。
package eval

import (
	"context"

	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/feature"
	"github.com/rushteam/rankfit/pairwise"
)

// Scorer 对每一行打分，分数越高越好。artifact.Artifact 与 *rank.Trainer 都满足此接口。
type Scorer interface {
	Score(ctx context.Context, X *feature.Matrix, group *core.GroupID) ([]float64, error)
}

// Concordance 计算按 importance 加权的 Kendall-tau 式一致度，取值 [-1, 1]：
//
//	relation > 0 且 diff > 0，或 relation == 0 且 diff >= 0 → 一致
//	其余                                                    → 不一致
//	结果 = (一致 − 不一致) / 总 importance
//
// 退化 judgment 不参与计算。总 importance 为 0 时返回 EMPTY_INPUT 错误。
func Concordance(ctx context.Context, scorer Scorer, X *feature.Matrix, judgments []core.Judgment, groups []core.GroupID) (float64, error) {
	if err := pairwise.CheckGroups(X, groups); err != nil {
		return 0, err
	}
	valid, err := pairwise.Valid(X, judgments)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, jd := range valid {
		total += jd.Importance
	}
	if total == 0 {
		return 0, core.EmptyInputError(core.ModuleEval, "eval: no valid judgments with positive importance")
	}

	scores, err := RowScores(ctx, scorer, X, groups)
	if err != nil {
		return 0, err
	}

	var concordant, discordant float64
	for _, jd := range valid {
		diff := scores[jd.I] - scores[jd.J]
		if (jd.Relation > 0 && diff > 0) || (jd.Relation == 0 && diff >= 0) {
			concordant += jd.Importance
		} else {
			discordant += jd.Importance
		}
	}
	return (concordant - discordant) / total, nil
}

// RowScores 为每一行打分，每行使用自己所属的分组；groups 为空时整体打分一次。
func RowScores(ctx context.Context, scorer Scorer, X *feature.Matrix, groups []core.GroupID) ([]float64, error) {
	if len(groups) == 0 {
		return scorer.Score(ctx, X, nil)
	}
	if err := pairwise.CheckGroups(X, groups); err != nil {
		return nil, err
	}

	rows := make(map[core.GroupID][]int)
	var order []core.GroupID
	for i, g := range groups {
		if _, ok := rows[g]; !ok {
			order = append(order, g)
		}
		rows[g] = append(rows[g], i)
	}

	scores := make([]float64, X.Rows())
	for _, g := range order {
		idx := rows[g]
		part, err := scorer.Score(ctx, X.Select(idx), &g)
		if err != nil {
			return nil, err
		}
		for r, i := range idx {
			scores[i] = part[r]
		}
	}
	return scores, nil
}
