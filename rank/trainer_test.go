package rank

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/rankfit/artifact"
	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/eval"
	"github.com/rushteam/rankfit/feature"
	"github.com/rushteam/rankfit/metrics"
	"github.com/rushteam/rankfit/pkg/dsl"
)

func matrix(t *testing.T, rows [][]float64) *feature.Matrix {
	t.Helper()
	X, err := feature.FromRows(rows)
	require.NoError(t, err)
	return X
}

// 两个 1 维簇：前三行整体优于后三行
func clusters(t *testing.T) (*feature.Matrix, []core.Judgment) {
	X := matrix(t, [][]float64{{1}, {1.5}, {2}, {-1}, {-1.5}, {-2}})
	var judgments []core.Judgment
	for i := 0; i < 3; i++ {
		for j := 3; j < 6; j++ {
			judgments = append(judgments, core.Judgment{I: i, J: j, Relation: 1, Importance: 1})
		}
	}
	return X, judgments
}

func strategies() map[string]func() Strategy {
	return map[string]func() Strategy{
		NameMarginClassifier: func() Strategy { return &MarginClassifier{} },
		NameLinearProgram:    func() Strategy { return &LinearProgram{C: 10} },
		NameBoostedRanker:    func() Strategy { return &BoostedRanker{} },
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"ranksvm", NameMarginClassifier},
		{"margin-classifier", NameMarginClassifier},
		{"lp", NameLinearProgram},
		{"Linear-Program", NameLinearProgram},
		{"lambdamart", NameBoostedRanker},
		{"boosted-ranker", NameBoostedRanker},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseStrategy(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Name())
		})
	}

	_, err := ParseStrategy("svm-rank-2")
	assert.True(t, core.IsConfiguration(err))
	_, err = NewTrainerByName("")
	assert.True(t, core.IsConfiguration(err))
}

func TestTrainer_SeparableClusters(t *testing.T) {
	X, judgments := clusters(t)
	for name, newStrategy := range strategies() {
		t.Run(name, func(t *testing.T) {
			tr, err := NewTrainer(newStrategy())
			require.NoError(t, err)
			a, err := tr.Fit(context.Background(), X, judgments, nil)
			require.NoError(t, err)

			c, err := eval.Concordance(context.Background(), a, X, judgments, nil)
			require.NoError(t, err)
			assert.Equal(t, 1.0, c)
		})
	}
}

func TestTrainer_DegenerateJudgmentsDoNotChangeArtifact(t *testing.T) {
	X := matrix(t, [][]float64{{1}, {1.5}, {2}, {-1}, {-1.5}, {-2}, {2}})
	_, kept := clusters(t)
	noisy := append([]core.Judgment{
		{I: 2, J: 6, Relation: 1, Importance: 5}, // 特征相同
		{I: 4, J: 4, Relation: 2, Importance: 1}, // 同一行
	}, kept...)

	for name, newStrategy := range strategies() {
		t.Run(name, func(t *testing.T) {
			a, err := newStrategy().fit(context.Background(), X, kept, nil)
			require.NoError(t, err)
			b, err := newStrategy().fit(context.Background(), X, noisy, nil)
			require.NoError(t, err)
			assert.Equal(t, a, b)
		})
	}
}

func TestTrainer_GroupedOppositePreferences(t *testing.T) {
	X := matrix(t, [][]float64{{1}, {2}, {1}, {2}})
	groups := []core.GroupID{0, 0, 1, 1}
	judgments := []core.Judgment{
		{I: 1, J: 0, Relation: 1, Importance: 1}, // 分组 0：越大越好
		{I: 2, J: 3, Relation: 1, Importance: 1}, // 分组 1：越小越好
	}

	tr, err := NewTrainer(&LinearProgram{C: 10})
	require.NoError(t, err)
	a, err := tr.Fit(context.Background(), X, judgments, groups)
	require.NoError(t, err)

	g, ok := a.(*artifact.Grouped)
	require.True(t, ok)
	require.Len(t, g.W, 2)
	assert.NotEqual(t, g.W[0], g.W[1])
	assert.Greater(t, g.W[0][0], 0.0)
	assert.Less(t, g.W[1][0], 0.0)

	for _, jd := range judgments {
		c, err := eval.Concordance(context.Background(), a, X, []core.Judgment{jd}, groups)
		require.NoError(t, err)
		assert.Equal(t, 1.0, c)
	}
}

func TestTrainer_SparseMatchesDense(t *testing.T) {
	dense := matrix(t, [][]float64{{1, 0, 0}, {0, 2, 0}, {0, 0, 3}, {1, 1, 0}})
	sparse, err := feature.ToMatrix([]feature.Row{
		feature.Sparse{0: 1},
		feature.Sparse{1: 2},
		feature.Sparse{2: 3},
		feature.Sparse{0: 1, 1: 1},
	}, 3)
	require.NoError(t, err)
	judgments := []core.Judgment{
		{I: 0, J: 1, Relation: 1, Importance: 1},
		{I: 1, J: 2, Relation: 1, Importance: 2},
		{I: 3, J: 2, Relation: 0, Importance: 1},
	}

	for name, newStrategy := range strategies() {
		t.Run(name, func(t *testing.T) {
			a, err := newStrategy().fit(context.Background(), dense, judgments, nil)
			require.NoError(t, err)
			b, err := newStrategy().fit(context.Background(), sparse, judgments, nil)
			require.NoError(t, err)

			sa, err := a.Score(context.Background(), dense, nil)
			require.NoError(t, err)
			sb, err := b.Score(context.Background(), sparse, nil)
			require.NoError(t, err)
			assert.InDeltaSlice(t, sa, sb, 1e-9)
		})
	}
}

func TestTrainer_LinearProgramScenario(t *testing.T) {
	X := matrix(t, [][]float64{{1, 0}, {0, 1}, {2, 0}})
	judgments := []core.Judgment{{I: 0, J: 1, Relation: 1, Importance: 1}}

	tr, err := NewTrainerByName("lp")
	require.NoError(t, err)
	tr.Strategy().(*LinearProgram).C = 10

	a, err := tr.Fit(context.Background(), X, judgments, nil)
	require.NoError(t, err)
	scores, err := a.Score(context.Background(), X, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, scores[0], scores[1]+1-1e-6)

	c, err := eval.Concordance(context.Background(), a, X, judgments, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, c)
}

// separableGroups 生成分组可分的随机数据：每组一个 ‖w‖₁ = 1 的真实权重，
// judgment 只在组内、真实分数差 ≥ minGap 的行之间产生。
func separableGroups(t *testing.T, rows, dim, nGroups, nJudgments int, minGap float64) (*feature.Matrix, []core.Judgment, []core.GroupID) {
	t.Helper()
	rng := rand.New(rand.NewPCG(7, 11))

	truth := make([][]float64, nGroups)
	for g := range truth {
		w := make([]float64, dim)
		var norm float64
		for k := range w {
			w[k] = rng.Float64()*2 - 1
			norm += math.Abs(w[k])
		}
		for k := range w {
			w[k] /= norm
		}
		truth[g] = w
	}

	data := make([][]float64, rows)
	groups := make([]core.GroupID, rows)
	scores := make([]float64, rows)
	for i := range data {
		row := make([]float64, dim)
		for k := range row {
			row[k] = rng.Float64()*2 - 1
		}
		data[i] = row
		groups[i] = core.GroupID(i % nGroups)
		scores[i] = floats.Dot(truth[groups[i]], row)
	}

	var judgments []core.Judgment
	for attempt := 0; len(judgments) < nJudgments; attempt++ {
		require.Less(t, attempt, 100*nJudgments, "not enough separable pairs")
		i, j := rng.IntN(rows), rng.IntN(rows)
		if groups[i] != groups[j] || math.Abs(scores[i]-scores[j]) < minGap {
			continue
		}
		if scores[i] < scores[j] {
			i, j = j, i
		}
		judgments = append(judgments, core.Judgment{I: i, J: j, Relation: 1, Importance: 1})
	}
	return matrix(t, data), judgments, groups
}

func TestTrainer_LinearProgramGroupedRandomSeparable(t *testing.T) {
	// 2·w* 以间隔 1 满足所有 judgment，目标值 ≤ 3 组 × 2 = 6 < C。
	// 任何一条 judgment 被排反都至少付出 C，因此最优解必须全部排对。
	X, judgments, groups := separableGroups(t, 60, 8, 3, 200, 0.5)

	tr, err := NewTrainer(&LinearProgram{C: 10})
	require.NoError(t, err)
	a, err := tr.Fit(context.Background(), X, judgments, groups)
	require.NoError(t, err)

	g, ok := a.(*artifact.Grouped)
	require.True(t, ok)
	assert.Len(t, g.W, 3)

	c, err := eval.Concordance(context.Background(), a, X, judgments, groups)
	require.NoError(t, err)
	assert.Equal(t, 1.0, c)
}

func TestTrainer_BoostedInterleavedGroups(t *testing.T) {
	ctx := context.Background()
	judge := func(pairs ...[2]int) []core.Judgment {
		out := make([]core.Judgment, len(pairs))
		for p, ij := range pairs {
			out[p] = core.Judgment{I: ij[0], J: ij[1], Relation: 1, Importance: 1}
		}
		return out
	}

	// 两组数据相同，只是行的排列不同：交错排列在内部被重排成连续排列
	contiguous := matrix(t, [][]float64{{1}, {2}, {3}, {1}, {2}, {3}})
	a, err := (&BoostedRanker{}).fit(ctx, contiguous,
		judge([2]int{1, 0}, [2]int{2, 1}, [2]int{4, 3}, [2]int{5, 4}),
		[]core.GroupID{0, 0, 0, 1, 1, 1})
	require.NoError(t, err)

	interleaved := matrix(t, [][]float64{{1}, {1}, {2}, {2}, {3}, {3}})
	groups := []core.GroupID{0, 1, 0, 1, 0, 1}
	judgments := judge([2]int{2, 0}, [2]int{4, 2}, [2]int{3, 1}, [2]int{5, 3})
	b, err := (&BoostedRanker{}).fit(ctx, interleaved, judgments, groups)
	require.NoError(t, err)

	sa, err := a.Score(ctx, interleaved, nil)
	require.NoError(t, err)
	sb, err := b.Score(ctx, interleaved, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, sa, sb, 1e-12)

	c, err := eval.Concordance(ctx, b, interleaved, judgments, groups)
	require.NoError(t, err)
	assert.Greater(t, c, 0.0)
}

func TestTrainer_LinearProgramDeterministic(t *testing.T) {
	X := matrix(t, [][]float64{{1, 1}, {0, 0}, {2, 1}})
	judgments := []core.Judgment{
		{I: 0, J: 1, Relation: 1, Importance: 1},
		{I: 2, J: 0, Relation: 1, Importance: 1},
	}
	first, err := (&LinearProgram{C: 10, Seed: 99}).fit(context.Background(), X, judgments, nil)
	require.NoError(t, err)
	for range 3 {
		again, err := (&LinearProgram{C: 10, Seed: 99}).fit(context.Background(), X, judgments, nil)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestTrainer_LinearProgramRequiresC(t *testing.T) {
	X, judgments := clusters(t)
	tr, err := NewTrainerByName("linear-program")
	require.NoError(t, err)
	_, err = tr.Fit(context.Background(), X, judgments, nil)
	assert.True(t, core.IsConfiguration(err))
	assert.Equal(t, StateUninitialized, tr.State())
}

type twoRowClassifier struct{}

func (twoRowClassifier) Fit(_ context.Context, X mat.Matrix, _, _ []float64) (*mat.Dense, error) {
	_, d := X.Dims()
	return mat.NewDense(2, d, nil), nil
}

func TestTrainer_MultiRowCoefficients(t *testing.T) {
	X, judgments := clusters(t)
	tr, err := NewTrainer(&MarginClassifier{Classifier: twoRowClassifier{}})
	require.NoError(t, err)
	_, err = tr.Fit(context.Background(), X, judgments, nil)
	assert.True(t, core.IsConfiguration(err))
}

func TestTrainer_Lifecycle(t *testing.T) {
	X, judgments := clusters(t)
	rec := metrics.NewRecorder()
	tr, err := NewTrainer(&LinearProgram{C: 10}, WithRecorder(rec))
	require.NoError(t, err)

	assert.Equal(t, StateUninitialized, tr.State())
	_, err = tr.Weights()
	assert.True(t, core.IsConfiguration(err))
	_, err = tr.Score(context.Background(), X, nil)
	assert.True(t, core.IsConfiguration(err))

	a, err := tr.Fit(context.Background(), X, judgments, nil)
	require.NoError(t, err)
	assert.Equal(t, StateFitted, tr.State())
	w, err := tr.Weights()
	require.NoError(t, err)
	assert.Same(t, a, w)

	// 再次训练替换产物
	b, err := tr.Fit(context.Background(), X, judgments[:1], nil)
	require.NoError(t, err)
	w, err = tr.Weights()
	require.NoError(t, err)
	assert.Same(t, b, w)

	// 失败不影响已有产物
	_, err = tr.Fit(context.Background(), X, []core.Judgment{{I: 0, J: 99, Relation: 1, Importance: 1}}, nil)
	assert.True(t, core.IsIndex(err))
	assert.Equal(t, StateFitted, tr.State())
	w, err = tr.Weights()
	require.NoError(t, err)
	assert.Same(t, b, w)
}

func TestTrainer_FilterAndPreprocessor(t *testing.T) {
	X, judgments := clusters(t)
	judgments[0].Importance = 0.1

	filter, err := dsl.NewEval("judgment.importance >= 0.5")
	require.NoError(t, err)
	tr, err := NewTrainer(&MarginClassifier{},
		WithFilter(filter),
		WithPreprocessor(feature.NewPreprocessor(feature.PreprocessStandardScaling)))
	require.NoError(t, err)

	_, err = tr.Fit(context.Background(), X, judgments, nil)
	require.NoError(t, err)
	require.NotNil(t, tr.Preprocessor())
	assert.Len(t, tr.Preprocessor().Mean, 1)

	c, err := eval.Concordance(context.Background(), tr, X, judgments, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, c)

	none, err := dsl.NewEval("judgment.importance > 100.0")
	require.NoError(t, err)
	tr, err = NewTrainer(&MarginClassifier{}, WithFilter(none))
	require.NoError(t, err)
	_, err = tr.Fit(context.Background(), X, judgments, nil)
	assert.True(t, core.IsEmptyInput(err))
}

func TestTrainer_FailedRefitKeepsPreprocessor(t *testing.T) {
	ctx := context.Background()
	X, judgments := clusters(t)
	configured := feature.NewPreprocessor(feature.PreprocessDivByStd)
	tr, err := NewTrainer(&MarginClassifier{}, WithPreprocessor(configured))
	require.NoError(t, err)

	_, err = tr.Fit(ctx, X, judgments, nil)
	require.NoError(t, err)
	before := tr.Preprocessor().Clone()
	want, err := tr.Score(ctx, X, nil)
	require.NoError(t, err)

	// 新数据的统计量完全不同，但 judgment 全部退化，训练失败
	other := matrix(t, [][]float64{{10}, {10}, {-50}})
	_, err = tr.Fit(ctx, other, []core.Judgment{{I: 0, J: 1, Relation: 1, Importance: 1}}, nil)
	assert.True(t, core.IsEmptyInput(err))

	assert.Equal(t, StateFitted, tr.State())
	assert.Equal(t, before, tr.Preprocessor())
	got, err := tr.Score(ctx, X, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-12)

	// 传入的预处理器只作为配置，不会被拟合
	assert.Empty(t, configured.Std)
}

func TestTrainer_PreprocessedArtifactRoundTrip(t *testing.T) {
	ctx := context.Background()
	X := matrix(t, [][]float64{{1, 0}, {0, 0}, {0, 100}, {0, 0.5}, {0.2, 10}})
	judgments := []core.Judgment{
		{I: 0, J: 1, Relation: 1, Importance: 1},
		{I: 2, J: 3, Relation: 1, Importance: 1},
		{I: 4, J: 1, Relation: 1, Importance: 1},
		{I: 0, J: 3, Relation: 1, Importance: 2},
		{I: 4, J: 3, Relation: 1, Importance: 1},
	}

	for name, newStrategy := range strategies() {
		t.Run(name, func(t *testing.T) {
			tr, err := NewTrainer(newStrategy(), WithPreprocessor(feature.NewPreprocessor(feature.PreprocessDivByStd)))
			require.NoError(t, err)
			a, err := tr.Fit(ctx, X, judgments, nil)
			require.NoError(t, err)
			require.NotNil(t, a.Preprocessor())
			assert.Same(t, tr.Preprocessor(), a.Preprocessor())

			want, err := tr.Score(ctx, X, nil)
			require.NoError(t, err)
			wantC, err := eval.Concordance(ctx, tr, X, judgments, nil)
			require.NoError(t, err)

			data, err := artifact.Marshal(a)
			require.NoError(t, err)
			loaded, err := artifact.Unmarshal(data)
			require.NoError(t, err)

			got, err := loaded.Score(ctx, X, nil)
			require.NoError(t, err)
			assert.InDeltaSlice(t, want, got, 1e-9)
			gotC, err := eval.Concordance(ctx, loaded, X, judgments, nil)
			require.NoError(t, err)
			assert.Equal(t, wantC, gotC)
		})
	}
}

func TestFitAll(t *testing.T) {
	X, judgments := clusters(t)
	newTrainer := func(s Strategy) *Trainer {
		tr, err := NewTrainer(s)
		require.NoError(t, err)
		return tr
	}

	jobs := []Job{
		{Name: "svm", Trainer: newTrainer(&MarginClassifier{}), X: X, Judgments: judgments},
		{Name: "lp", Trainer: newTrainer(&LinearProgram{C: 10}), X: X, Judgments: judgments},
		{Name: "boost", Trainer: newTrainer(&BoostedRanker{}), X: X, Judgments: judgments},
	}
	out, err := FitAll(context.Background(), jobs, 2)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, artifact.KindUngrouped, out[0].Kind())
	assert.Equal(t, artifact.KindUngrouped, out[1].Kind())
	assert.Equal(t, artifact.KindBoosted, out[2].Kind())

	shared := newTrainer(&LinearProgram{C: 10})
	_, err = FitAll(context.Background(), []Job{
		{Name: "a", Trainer: shared, X: X, Judgments: judgments},
		{Name: "b", Trainer: shared, X: X, Judgments: judgments},
	}, 0)
	assert.True(t, core.IsConfiguration(err))

	_, err = FitAll(context.Background(), []Job{
		{Name: "bad", Trainer: newTrainer(&LinearProgram{}), X: X, Judgments: judgments},
	}, 0)
	assert.True(t, core.IsConfiguration(err))
}
