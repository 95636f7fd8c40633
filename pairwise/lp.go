package pairwise

import (
	"fmt"
	"slices"

	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/feature"
)

// LPLayout 记录 LP 中各类变量的下标，用于从解中取回每个分组的权重。
type LPLayout struct {
	Dim     int
	Grouped bool
	Groups  []core.GroupID // 升序

	// w[g][k] = x[Pos[g][k]] − x[Neg[g][k]]
	Pos       map[core.GroupID][]int
	Neg       map[core.GroupID][]int
	Slacks    []int
	Judgments []core.Judgment // 与 Slacks 一一对应
}

// ToLinearProgram 构建排序 LP：
//
//	min  C · Σ importance_ij · z_ij + Σ_g Σ_k (w⁺[g][k] + w⁻[g][k])
//	s.t. Σ_k w[g(i)][k]·X[i][k] − Σ_k w[g(j)][k]·X[j][k] ≥ relation − z_ij
//	     w = w⁺ − w⁻,  w⁺, w⁻, z ≥ 0
//
// 最优解中 w⁺、w⁻ 至多一个非零，w⁺ + w⁻ 即 |w|，因此不需要单独的绝对值约束，也没有无界变量。
// 每个分组一套 w⁺/w⁻；groups 为空时只有隐式分组 0。
// 同一 (i, j) 重复出现时，每次都有独立的松弛变量，名字用确定性的出现次数做后缀：z0_1、z0_1#1、z0_1#2 ...
// 返回的 LP 附带全零权重的 incumbent（z = relation），保证限时求解总有可行解可以兜底。
func ToLinearProgram(X *feature.Matrix, judgments []core.Judgment, groups []core.GroupID, c float64) (*core.LinearProgram, *LPLayout, error) {
	if c <= 0 {
		return nil, nil, core.ConfigurationError(core.ModulePairwise, "pairwise: LP slack penalty C must be positive, got %g", c)
	}
	if err := CheckGroups(X, groups); err != nil {
		return nil, nil, err
	}
	valid, err := Valid(X, judgments)
	if err != nil {
		return nil, nil, err
	}

	d := X.Dim()
	layout := &LPLayout{
		Dim:     d,
		Grouped: len(groups) > 0,
		Groups:  distinctGroups(groups),
		Pos:     make(map[core.GroupID][]int),
		Neg:     make(map[core.GroupID][]int),
	}
	lp := &core.LinearProgram{Name: "Ranking"}

	for _, g := range layout.Groups {
		pos := make([]int, d)
		neg := make([]int, d)
		for k := 0; k < d; k++ {
			pos[k] = lp.AddVariable(fmt.Sprintf("w+(%d)(%d)", g, k), false)
			neg[k] = lp.AddVariable(fmt.Sprintf("w-(%d)(%d)", g, k), false)
			lp.Objective = append(lp.Objective, core.LPTerm{Var: pos[k], Coef: 1}, core.LPTerm{Var: neg[k], Coef: 1})
		}
		layout.Pos[g] = pos
		layout.Neg[g] = neg
	}

	seen := make(map[[2]int]int)
	for _, jd := range valid {
		key := [2]int{jd.I, jd.J}
		name := fmt.Sprintf("z%d_%d", jd.I, jd.J)
		if n := seen[key]; n > 0 {
			name = fmt.Sprintf("%s#%d", name, n)
		}
		seen[key]++

		z := lp.AddVariable(name, false)
		gi, gj := core.GroupOf(groups, jd.I), core.GroupOf(groups, jd.J)
		terms := []core.LPTerm{{Var: z, Coef: 1}}
		X.DoRowNonZero(jd.I, func(k int, v float64) {
			terms = append(terms, core.LPTerm{Var: layout.Pos[gi][k], Coef: v}, core.LPTerm{Var: layout.Neg[gi][k], Coef: -v})
		})
		X.DoRowNonZero(jd.J, func(k int, v float64) {
			terms = append(terms, core.LPTerm{Var: layout.Pos[gj][k], Coef: -v}, core.LPTerm{Var: layout.Neg[gj][k], Coef: v})
		})
		lp.AddConstraint(name, terms, jd.Relation)
		lp.Objective = append(lp.Objective, core.LPTerm{Var: z, Coef: c * jd.Importance})

		layout.Slacks = append(layout.Slacks, z)
		layout.Judgments = append(layout.Judgments, jd)
	}

	lp.Incumbent = make([]float64, len(lp.Variables))
	for p, z := range layout.Slacks {
		lp.Incumbent[z] = layout.Judgments[p].Relation
	}
	return lp, layout, nil
}

// Extract 从 LP 解中取出每个分组的权重向量
func (l *LPLayout) Extract(values []float64) map[core.GroupID][]float64 {
	out := make(map[core.GroupID][]float64, len(l.Groups))
	for _, g := range l.Groups {
		w := make([]float64, l.Dim)
		for k := range w {
			w[k] = values[l.Pos[g][k]] - values[l.Neg[g][k]]
		}
		out[g] = w
	}
	return out
}

// SlackNames 返回松弛变量名（按 judgment 顺序），主要用于调试与测试。
func (l *LPLayout) SlackNames(lp *core.LinearProgram) []string {
	names := make([]string, len(l.Slacks))
	for p, z := range l.Slacks {
		names[p] = lp.Variables[z].Name
	}
	return names
}

func distinctGroups(groups []core.GroupID) []core.GroupID {
	if len(groups) == 0 {
		return []core.GroupID{0}
	}
	out := slices.Clone(groups)
	slices.Sort(out)
	return slices.Compact(out)
}
