package solver

import (
	"context"
	"encoding/json"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/pkg/logging"
)

// EnsembleName 是 LambdaBooster 训练出的模型名
const EnsembleName = "lambdamart"

// LambdaBooster 以 LambdaMART 方式训练回归树集成：
// 每一轮按当前分数计算组内 NDCG 加权的 pairwise lambda，拟合一棵深度受限的回归树，
// 叶子值取牛顿步 Σλ / Σw。
type LambdaBooster struct {
	Rounds       int
	LearningRate float64
	MaxDepth     int
	MinLeaf      int
	// Sigma 是 pairwise logistic 的陡峭程度
	Sigma float64
}

var _ core.BoostedRanker = (*LambdaBooster)(nil)

// NewLambdaBooster 创建默认参数的 booster
func NewLambdaBooster() *LambdaBooster {
	return &LambdaBooster{Rounds: 100, LearningRate: 0.1, MaxDepth: 3, MinLeaf: 1, Sigma: 1}
}

// TreeNode 是回归树的一个节点。Leaf 为 true 时只有 Value 有意义。
type TreeNode struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

// Tree 是扁平存储的回归树，Nodes[0] 为根。x[Feature] <= Threshold 走左子树。
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

func (t *Tree) predict(X mat.Matrix, i int) float64 {
	n := 0
	for {
		node := &t.Nodes[n]
		if node.Leaf {
			return node.Value
		}
		if X.At(i, node.Feature) <= node.Threshold {
			n = node.Left
		} else {
			n = node.Right
		}
	}
}

// Ensemble 是训练好的树集成，可 JSON 序列化。
type Ensemble struct {
	Dim          int     `json:"dim"`
	LearningRate float64 `json:"learning_rate"`
	Trees        []Tree  `json:"trees"`
}

var _ core.BoostedModel = (*Ensemble)(nil)

// Name 返回模型名称
func (e *Ensemble) Name() string { return EnsembleName }

// Predict 对每一行输出分数
func (e *Ensemble) Predict(ctx context.Context, X mat.Matrix) ([]float64, error) {
	n, d := X.Dims()
	if d != e.Dim {
		return nil, core.DimensionError(core.ModuleSolver, "solver: ensemble expects %d features, got %d", e.Dim, d)
	}
	scores := make([]float64, n)
	for i := range scores {
		for t := range e.Trees {
			scores[i] += e.LearningRate * e.Trees[t].predict(X, i)
		}
	}
	return scores, nil
}

// DecodeEnsemble 从 JSON 还原模型
func DecodeEnsemble(data []byte) (core.BoostedModel, error) {
	var e Ensemble
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Fit 训练排序模型。labels 越大越相关，groupSizes 为连续分组。
func (b *LambdaBooster) Fit(ctx context.Context, X mat.Matrix, labels []float64, groupSizes []int) (core.BoostedModel, error) {
	n, d := X.Dims()
	if len(labels) != n {
		return nil, core.DimensionError(core.ModuleSolver, "solver: %d labels for %d rows", len(labels), n)
	}
	total := 0
	for _, s := range groupSizes {
		if s <= 0 {
			return nil, core.DimensionError(core.ModuleSolver, "solver: non-positive group size %d", s)
		}
		total += s
	}
	if total != n {
		return nil, core.DimensionError(core.ModuleSolver, "solver: group sizes sum to %d, want %d", total, n)
	}
	cfg := b.withDefaults()

	// 按列缓存特征，用于分裂查找
	cols := make([][]float64, d)
	for k := range cols {
		cols[k] = make([]float64, n)
	}
	if doer, ok := X.(rowNonZeroDoer); ok {
		for i := 0; i < n; i++ {
			doer.DoRowNonZero(i, func(k int, v float64) { cols[k][i] = v })
		}
	} else {
		for i := 0; i < n; i++ {
			for k := 0; k < d; k++ {
				cols[k][i] = X.At(i, k)
			}
		}
	}

	model := &Ensemble{Dim: d, LearningRate: cfg.LearningRate}
	scores := make([]float64, n)
	lambdas := make([]float64, n)
	hess := make([]float64, n)
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	for round := 0; round < cfg.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clear(lambdas)
		clear(hess)
		start := 0
		for _, size := range groupSizes {
			cfg.groupLambdas(labels[start:start+size], scores[start:start+size], lambdas[start:start+size], hess[start:start+size])
			start += size
		}
		if floatsAllZero(lambdas) {
			logging.Debug("lambda booster converged", "round", round)
			break
		}

		tree := &Tree{}
		grow := &treeGrower{cols: cols, lambdas: lambdas, hess: hess, cfg: cfg, tree: tree}
		grow.build(slices.Clone(all), 0)
		for i := 0; i < n; i++ {
			scores[i] += cfg.LearningRate * leafValue(tree, cols, i)
		}
		model.Trees = append(model.Trees, *tree)
	}
	return model, nil
}

func (b *LambdaBooster) withDefaults() LambdaBooster {
	cfg := *b
	if cfg.Rounds <= 0 {
		cfg.Rounds = 100
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.1
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 3
	}
	if cfg.MinLeaf <= 0 {
		cfg.MinLeaf = 1
	}
	if cfg.Sigma <= 0 {
		cfg.Sigma = 1
	}
	return cfg
}

// groupLambdas 计算一个分组内的 lambda（梯度方向为分数应增加的方向）与二阶权重
func (b *LambdaBooster) groupLambdas(labels, scores, lambdas, hess []float64) {
	n := len(labels)
	if n < 2 {
		return
	}
	ideal := slices.Clone(labels)
	sort.Sort(sort.Reverse(sort.Float64Slice(ideal)))
	var idcg float64
	for r, l := range ideal {
		idcg += gain(l) * discount(r)
	}
	if idcg == 0 {
		return
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, c int) bool { return scores[order[a]] > scores[order[c]] })
	rank := make([]int, n)
	for r, i := range order {
		rank[i] = r
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if labels[i] <= labels[j] {
				continue
			}
			delta := math.Abs((gain(labels[i]) - gain(labels[j])) * (discount(rank[i]) - discount(rank[j])) / idcg)
			rho := 1 / (1 + math.Exp(b.Sigma*(scores[i]-scores[j])))
			lambdas[i] += b.Sigma * rho * delta
			lambdas[j] -= b.Sigma * rho * delta
			h := b.Sigma * b.Sigma * rho * (1 - rho) * delta
			hess[i] += h
			hess[j] += h
		}
	}
}

func gain(label float64) float64 { return math.Exp2(label) - 1 }

func discount(rank int) float64 { return 1 / math.Log2(float64(rank)+2) }

func floatsAllZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func leafValue(t *Tree, cols [][]float64, i int) float64 {
	n := 0
	for {
		node := &t.Nodes[n]
		if node.Leaf {
			return node.Value
		}
		if cols[node.Feature][i] <= node.Threshold {
			n = node.Left
		} else {
			n = node.Right
		}
	}
}

type treeGrower struct {
	cols          [][]float64
	lambdas, hess []float64
	cfg           LambdaBooster
	tree          *Tree
}

// build 递归生长，返回节点下标
func (g *treeGrower) build(rows []int, depth int) int {
	idx := len(g.tree.Nodes)
	g.tree.Nodes = append(g.tree.Nodes, TreeNode{})

	var sumL, sumH float64
	for _, i := range rows {
		sumL += g.lambdas[i]
		sumH += g.hess[i]
	}
	leaf := TreeNode{Leaf: true, Value: sumL / (sumH + 1e-9)}

	if depth >= g.cfg.MaxDepth || len(rows) < 2*g.cfg.MinLeaf {
		g.tree.Nodes[idx] = leaf
		return idx
	}
	feat, threshold, ok := g.bestSplit(rows, sumL)
	if !ok {
		g.tree.Nodes[idx] = leaf
		return idx
	}

	var left, right []int
	for _, i := range rows {
		if g.cols[feat][i] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := g.build(left, depth+1)
	r := g.build(right, depth+1)
	g.tree.Nodes[idx] = TreeNode{Feature: feat, Threshold: threshold, Left: l, Right: r}
	return idx
}

// bestSplit 以最小二乘增益寻找最佳分裂；阈值取相邻取值的中点
func (g *treeGrower) bestSplit(rows []int, sumL float64) (int, float64, bool) {
	n := len(rows)
	base := sumL * sumL / float64(n)
	bestGain := 1e-12
	bestFeat, bestThr, found := 0, 0.0, false

	sorted := make([]int, n)
	for k, col := range g.cols {
		copy(sorted, rows)
		sort.SliceStable(sorted, func(a, c int) bool { return col[sorted[a]] < col[sorted[c]] })
		var leftL float64
		for p := 0; p < n-1; p++ {
			leftL += g.lambdas[sorted[p]]
			nl := p + 1
			if nl < g.cfg.MinLeaf || n-nl < g.cfg.MinLeaf {
				continue
			}
			lo, hi := col[sorted[p]], col[sorted[p+1]]
			if lo == hi {
				continue
			}
			rightL := sumL - leftL
			gain := leftL*leftL/float64(nl) + rightL*rightL/float64(n-nl) - base
			if gain > bestGain {
				bestGain, bestFeat, bestThr, found = gain, k, (lo+hi)/2, true
			}
		}
	}
	return bestFeat, bestThr, found
}
