package artifact

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/feature"
	"github.com/rushteam/rankfit/solver"
	"github.com/rushteam/rankfit/store"
)

func matrix(t *testing.T, rows [][]float64) *feature.Matrix {
	t.Helper()
	X, err := feature.FromRows(rows)
	require.NoError(t, err)
	return X
}

func TestUngrouped_Score(t *testing.T) {
	X := matrix(t, [][]float64{{1, 0}, {0, 1}, {2, 0}})
	a := &Ungrouped{W: []float64{1, -1}}

	scores, err := a.Score(context.Background(), X, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -1, 2}, scores)

	// group 被忽略
	again, err := a.Score(context.Background(), X, Group(5))
	require.NoError(t, err)
	assert.Equal(t, scores, again)

	_, err = a.Score(context.Background(), matrix(t, [][]float64{{1, 2, 3}}), nil)
	assert.True(t, core.IsDimension(err))
}

func TestGrouped_Score(t *testing.T) {
	X := matrix(t, [][]float64{{1, 2}, {3, 4}})
	a := &Grouped{D: 2, W: map[core.GroupID][]float64{
		0: {1, 0},
		1: {0, 1},
	}}
	ctx := context.Background()

	tests := []struct {
		name  string
		group *core.GroupID
		want  []float64
	}{
		{"group 0", Group(0), []float64{1, 3}},
		{"group 1", Group(1), []float64{2, 4}},
		{"unseen group", Group(9), []float64{WorstScore, WorstScore}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.Score(ctx, X, tt.group)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := a.Score(ctx, X, nil)
	assert.True(t, core.IsConfiguration(err))
	assert.Equal(t, []core.GroupID{0, 1}, a.Groups())
}

func TestHeuristic(t *testing.T) {
	assert.Equal(t, 1e6, Heuristic(WorstScore))
	assert.Equal(t, -3.0, Heuristic(3))
}

func TestCodec_RoundTrip(t *testing.T) {
	X := matrix(t, [][]float64{{1, 0}, {0, 1}, {2, 0}})
	model, err := solver.NewLambdaBooster().Fit(context.Background(), X, []float64{1, 0, 2}, []int{3})
	require.NoError(t, err)

	tests := []struct {
		name string
		a    Artifact
	}{
		{"ungrouped", &Ungrouped{W: []float64{0.5, -1}}},
		{"grouped", &Grouped{D: 2, W: map[core.GroupID][]float64{3: {1, 2}, -1: {0, 0}}}},
		{"boosted", &Boosted{D: 2, Model: model}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(tt.a)
			require.NoError(t, err)
			got, err := Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, tt.a, got)

			id1, err := ID(tt.a)
			require.NoError(t, err)
			id2, err := ID(got)
			require.NoError(t, err)
			assert.Equal(t, id1, id2)
		})
	}
}

func TestCodec_RoundTripWithPreprocessor(t *testing.T) {
	X := matrix(t, [][]float64{{1, 0}, {0, 0}, {0, 100}, {0, 0.5}, {0.2, 10}})
	ctx := context.Background()

	for _, option := range []feature.PreprocessOption{
		feature.PreprocessDivByStd,
		feature.PreprocessStandardScaling,
		feature.PreprocessMinMax,
	} {
		t.Run(string(option), func(t *testing.T) {
			pre := feature.NewPreprocessor(option)
			pre.Fit(X)
			a := WithPreprocessor(&Ungrouped{W: []float64{1, 0.5}}, pre)

			want, err := a.Score(ctx, X, nil)
			require.NoError(t, err)
			raw, err := (&Ungrouped{W: []float64{1, 0.5}}).Score(ctx, X, nil)
			require.NoError(t, err)
			assert.NotEqual(t, raw, want)

			data, err := Marshal(a)
			require.NoError(t, err)
			got, err := Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, a, got)
			assert.Equal(t, pre, got.Preprocessor())

			scores, err := got.Score(ctx, X, nil)
			require.NoError(t, err)
			assert.InDeltaSlice(t, want, scores, 1e-12)
		})
	}
}

func TestCodec_PreprocessorDimensionMismatch(t *testing.T) {
	_, err := Unmarshal([]byte(`{"kind":"ungrouped","dim":2,"weights":[1,2],"preprocessor":{"option":"div-by-std","std":[1]}}`))
	assert.True(t, core.IsDimension(err))

	_, err = Unmarshal([]byte(`{"kind":"ungrouped","dim":1,"weights":[1],"preprocessor":{"option":"log"}}`))
	assert.True(t, core.IsConfiguration(err))
}

func TestCodec_IDDependsOnWeights(t *testing.T) {
	a, err := ID(&Ungrouped{W: []float64{1, 0}})
	require.NoError(t, err)
	b, err := ID(&Ungrouped{W: []float64{0, 1}})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCodec_Errors(t *testing.T) {
	_, err := Unmarshal([]byte(`{"kind":"nope"}`))
	assert.True(t, core.IsConfiguration(err))

	_, err = Unmarshal([]byte(`{"kind":"ungrouped","dim":3,"weights":[1]}`))
	assert.True(t, core.IsDimension(err))

	_, err = Unmarshal([]byte(`{"kind":"boosted","dim":1,"model":{"name":"unknown","params":{}}}`))
	assert.True(t, core.IsConfiguration(err))
}

func TestRepository(t *testing.T) {
	mr := miniredis.RunT(t)
	rs, err := store.NewRedisStore(mr.Addr(), 0)
	require.NoError(t, err)
	defer rs.Close()
	ms := store.NewMemoryStore()
	defer ms.Close()

	grouped := &Grouped{D: 2, W: map[core.GroupID][]float64{1: {1, 0}, 2: {0, 1}}}
	ungrouped := &Ungrouped{W: []float64{1, 2}}
	ctx := context.Background()

	for _, s := range []core.Store{ms, rs} {
		t.Run(s.Name(), func(t *testing.T) {
			repo := NewRepository(s, "rankfit:test:")

			id, err := repo.Save(ctx, "g", grouped)
			require.NoError(t, err)
			want, err := ID(grouped)
			require.NoError(t, err)
			assert.Equal(t, want, id)

			got, err := repo.Load(ctx, "g")
			require.NoError(t, err)
			assert.Equal(t, grouped, got)

			_, err = repo.Save(ctx, "u", ungrouped)
			require.NoError(t, err)
			got, err = repo.Load(ctx, "u")
			require.NoError(t, err)
			assert.Equal(t, ungrouped, got)

			require.NoError(t, repo.Delete(ctx, "g"))
			_, err = repo.Load(ctx, "g")
			assert.True(t, core.IsStoreNotFound(err))
		})
	}

	// 预处理统计量与分组权重一起保存
	pre := feature.NewPreprocessor(feature.PreprocessStandardScaling)
	pre.Fit(matrix(t, [][]float64{{1, 2}, {3, 6}}))
	scaled := WithPreprocessor(&Grouped{D: 2, W: map[core.GroupID][]float64{1: {1, 0}}}, pre)
	for _, s := range []core.Store{ms, rs} {
		repo := NewRepository(s, "rankfit:test:")
		_, err := repo.Save(ctx, "scaled", scaled)
		require.NoError(t, err)
		got, err := repo.Load(ctx, "scaled")
		require.NoError(t, err)
		assert.Equal(t, scaled, got, s.Name())

		scores, err := got.Score(ctx, matrix(t, [][]float64{{1, 2}, {3, 6}}), Group(1))
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{-1, 1}, scores, 1e-12, s.Name())
	}

	// redis 中分组权重按字段存储
	fields, err := rs.HGetAll(ctx, "rankfit:test:g:groups")
	require.NoError(t, err)
	assert.Empty(t, fields)
	mr.CheckGet(t, "rankfit:test:u", mustMarshal(t, ungrouped))
}

func mustMarshal(t *testing.T, a Artifact) string {
	t.Helper()
	data, err := Marshal(a)
	require.NoError(t, err)
	return string(data)
}
