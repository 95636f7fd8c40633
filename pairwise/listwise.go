package pairwise

import (
	"cmp"
	"slices"

	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/feature"
)

// Listwise 是 boosting 排序器的训练数据：特征矩阵、每行的相关性标签与连续分组大小。
type Listwise struct {
	X          *feature.Matrix
	Labels     []float64
	GroupSizes []int
	// Rows[r] 是第 r 行在输入中的行号；行没有重排时为 nil
	Rows []int
}

// ToGroups 构建 listwise 数据，不物化任何 pair。
//
// 标签：每行的净胜权重（作为 i 赢得 relation > 0 的 judgment 加 importance，作为 j 输掉则减），
// 再在组内做 dense rank，使得组内最小标签为 0、标签间隔为 1。
// 分组：同组的行不必相邻。不相邻时按分组首次出现的顺序稳定重排，X 与 Labels 随之重排；
// 已经连续（或不分组）时 X 原样透传。
func ToGroups(X *feature.Matrix, judgments []core.Judgment, groups []core.GroupID) (*Listwise, error) {
	if err := CheckGroups(X, groups); err != nil {
		return nil, err
	}
	valid, err := Valid(X, judgments)
	if err != nil {
		return nil, err
	}
	if len(valid) == 0 {
		return nil, core.EmptyInputError(core.ModulePairwise, "pairwise: no valid judgments to derive relevance labels")
	}

	n := X.Rows()
	net := make([]float64, n)
	for _, jd := range valid {
		if jd.Relation > 0 {
			net[jd.I] += jd.Importance
			net[jd.J] -= jd.Importance
		}
	}

	rows := groupOrder(groups)
	if rows != nil {
		X = X.Select(rows)
		net = permute(net, rows)
		groups = permute(groups, rows)
	}

	sizes := GroupSizes(groups, n)
	labels := make([]float64, n)
	start := 0
	for _, size := range sizes {
		seg := net[start : start+size]
		levels := slices.Clone(seg)
		slices.Sort(levels)
		levels = slices.Compact(levels)
		for r, v := range seg {
			idx, _ := slices.BinarySearch(levels, v)
			labels[start+r] = float64(idx)
		}
		start += size
	}
	return &Listwise{X: X, Labels: labels, GroupSizes: sizes, Rows: rows}, nil
}

// groupOrder 返回把同组行排到一起的稳定置换；已经连续时返回 nil
func groupOrder(groups []core.GroupID) []int {
	first := make(map[core.GroupID]int)
	contiguous := true
	for r, g := range groups {
		if _, ok := first[g]; !ok {
			first[g] = len(first)
		} else if groups[r-1] != g {
			contiguous = false
		}
	}
	if contiguous {
		return nil
	}
	order := make([]int, len(groups))
	for r := range order {
		order[r] = r
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(first[groups[a]], first[groups[b]])
	})
	return order
}

func permute[T any](s []T, order []int) []T {
	out := make([]T, len(order))
	for r, i := range order {
		out[r] = s[i]
	}
	return out
}

// GroupSizes 把逐行分组转换为连续段的长度序列，调用方需保证同组的行相邻
func GroupSizes(groups []core.GroupID, rows int) []int {
	if rows == 0 {
		return nil
	}
	if len(groups) == 0 {
		return []int{rows}
	}
	var sizes []int
	run := 1
	for r := 1; r < len(groups); r++ {
		if groups[r] == groups[r-1] {
			run++
			continue
		}
		sizes = append(sizes, run)
		run = 1
	}
	return append(sizes, run)
}
