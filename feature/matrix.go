package feature

import (
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/rankfit/core"
)

// Row 是一行原始特征：Dense 稠密向量或 Sparse 稀疏字典（index → value）。
type Row interface {
	isRow()
}

// Dense 是稠密特征行
type Dense []float64

// Sparse 是稀疏特征行，key 为特征下标
type Sparse map[int]float64

func (Dense) isRow()  {}
func (Sparse) isRow() {}

// Matrix 是 N 行 × D 列的特征矩阵，底层为 gonum 稠密矩阵或 CSR 稀疏矩阵。
// 训练调用期间只读。Matrix 实现了 mat.Matrix，可以直接交给各个后端。
type Matrix struct {
	rows, dim int
	isSparse  bool
	dense     *mat.Dense
	csr       *sparse.CSR
}

var _ mat.Matrix = (*Matrix)(nil)

// ToMatrix 把原始特征行转换为统一的 Matrix。
//
//   - 任一行是 Sparse 时，所有行都必须是 Sparse
//   - 稀疏行先写入 DOK，再整体转换为 CSR，之后才参与运算
//   - 稀疏输入必须显式给出 dim（> 0），否则返回 CONFIGURATION 错误
//   - 稠密输入 dim 可为 0（按首行推断），否则必须与每行长度一致
func ToMatrix(rows []Row, dim int) (*Matrix, error) {
	isSparse := false
	for _, r := range rows {
		if _, ok := r.(Sparse); ok {
			isSparse = true
			break
		}
	}
	if isSparse {
		return sparseMatrix(rows, dim)
	}
	return denseMatrix(rows, dim)
}

func sparseMatrix(rows []Row, dim int) (*Matrix, error) {
	if dim <= 0 {
		return nil, core.ConfigurationError(core.ModuleFeature, "feature: sparse input requires a positive feature dimension, got %d", dim)
	}
	b := NewBuilder(len(rows), dim, true)
	for i, r := range rows {
		sr, ok := r.(Sparse)
		if !ok {
			return nil, core.DimensionError(core.ModuleFeature, "feature: row %d is dense but other rows are sparse", i)
		}
		for k, v := range sr {
			if k < 0 || k >= dim {
				return nil, core.DimensionError(core.ModuleFeature, "feature: row %d index %d out of range [0, %d)", i, k, dim)
			}
			b.Set(i, k, v)
		}
	}
	return b.Build(), nil
}

func denseMatrix(rows []Row, dim int) (*Matrix, error) {
	if dim <= 0 && len(rows) > 0 {
		if first, ok := rows[0].(Dense); ok {
			dim = len(first)
		}
	}
	b := NewBuilder(len(rows), dim, false)
	for i, r := range rows {
		dr, ok := r.(Dense)
		if !ok {
			return nil, core.DimensionError(core.ModuleFeature, "feature: row %d is nil", i)
		}
		if len(dr) != dim {
			return nil, core.DimensionError(core.ModuleFeature, "feature: row %d has %d columns, want %d", i, len(dr), dim)
		}
		for k, v := range dr {
			b.Set(i, k, v)
		}
	}
	return b.Build(), nil
}

// FromDense 直接包装一个 gonum 稠密矩阵
func FromDense(d *mat.Dense) *Matrix {
	r, c := d.Dims()
	return &Matrix{rows: r, dim: c, dense: d}
}

// FromRows 是测试与调用方常用的便捷写法：[][]float64 → 稠密 Matrix。
func FromRows(rows [][]float64) (*Matrix, error) {
	in := make([]Row, len(rows))
	for i, r := range rows {
		in[i] = Dense(r)
	}
	return ToMatrix(in, 0)
}

// Dims 实现 mat.Matrix
func (m *Matrix) Dims() (int, int) { return m.rows, m.dim }

// At 实现 mat.Matrix
func (m *Matrix) At(i, j int) float64 {
	if m.csr != nil {
		return m.csr.At(i, j)
	}
	return m.dense.At(i, j)
}

// T 实现 mat.Matrix
func (m *Matrix) T() mat.Matrix { return mat.Transpose{Matrix: m} }

// Rows 返回行数
func (m *Matrix) Rows() int { return m.rows }

// Dim 返回特征维度
func (m *Matrix) Dim() int { return m.dim }

// IsSparse 是否为 CSR 表示
func (m *Matrix) IsSparse() bool { return m.isSparse }

// CheckRow 校验行下标
func (m *Matrix) CheckRow(i int) error {
	if i < 0 || i >= m.rows {
		return core.IndexError(core.ModuleFeature, "feature: row %d out of range [0, %d)", i, m.rows)
	}
	return nil
}

// DoRowNonZero 对第 i 行的每个非零元素调用 fn(k, v)，稀疏表示下不会稠密化。
func (m *Matrix) DoRowNonZero(i int, fn func(k int, v float64)) {
	if m.rows == 0 || m.dim == 0 {
		return
	}
	if m.csr != nil {
		raw := m.csr.RawMatrix()
		for p := raw.Indptr[i]; p < raw.Indptr[i+1]; p++ {
			if raw.Data[p] != 0 {
				fn(raw.Ind[p], raw.Data[p])
			}
		}
		return
	}
	for k, v := range m.dense.RawRowView(i) {
		if v != 0 {
			fn(k, v)
		}
	}
}

// RowsEqual 判断两行特征是否完全相同（退化 judgment 的判定依据）。
func (m *Matrix) RowsEqual(i, j int) bool {
	if i == j {
		return true
	}
	if m.dim == 0 {
		return true
	}
	if m.csr == nil {
		a, b := m.dense.RawRowView(i), m.dense.RawRowView(j)
		for k := range a {
			if a[k] != b[k] {
				return false
			}
		}
		return true
	}
	ri := make(map[int]float64)
	m.DoRowNonZero(i, func(k int, v float64) { ri[k] = v })
	n := 0
	equal := true
	m.DoRowNonZero(j, func(k int, v float64) {
		n++
		if w, ok := ri[k]; !ok || w != v {
			equal = false
		}
	})
	return equal && n == len(ri)
}

// Dot 计算第 i 行与 w 的内积
func (m *Matrix) Dot(i int, w []float64) float64 {
	var s float64
	m.DoRowNonZero(i, func(k int, v float64) {
		s += v * w[k]
	})
	return s
}

// MulVec 计算 X · w，长度不符时返回 DIMENSION 错误。
func (m *Matrix) MulVec(w []float64) ([]float64, error) {
	if len(w) != m.dim {
		return nil, core.DimensionError(core.ModuleFeature, "feature: weight length %d does not match feature dimension %d", len(w), m.dim)
	}
	out := make([]float64, m.rows)
	for i := range out {
		out[i] = m.Dot(i, w)
	}
	return out, nil
}

// RowVector 返回第 i 行的稠密拷贝（仅用于调试与小规模场景）。
func (m *Matrix) RowVector(i int) []float64 {
	out := make([]float64, m.dim)
	m.DoRowNonZero(i, func(k int, v float64) { out[k] = v })
	return out
}

// Select 返回只包含指定行的新矩阵（保持原有表示）。
func (m *Matrix) Select(idx []int) *Matrix {
	b := NewBuilder(len(idx), m.dim, m.IsSparse())
	for r, i := range idx {
		m.DoRowNonZero(i, func(k int, v float64) { b.Set(r, k, v) })
	}
	return b.Build()
}

func (m *Matrix) String() string {
	kind := "dense"
	if m.IsSparse() {
		kind = "csr"
	}
	return fmt.Sprintf("Matrix(%s %dx%d)", kind, m.rows, m.dim)
}

// Builder 逐个元素构建 Matrix：稀疏时写入 DOK，Build 时转换为 CSR。
type Builder struct {
	rows, dim int
	isSparse  bool
	dok       *sparse.DOK
	dense     *mat.Dense
}

// NewBuilder 创建 rows × dim 的构建器
func NewBuilder(rows, dim int, isSparse bool) *Builder {
	b := &Builder{rows: rows, dim: dim, isSparse: isSparse}
	if rows == 0 || dim == 0 {
		return b
	}
	if isSparse {
		b.dok = sparse.NewDOK(rows, dim)
	} else {
		b.dense = mat.NewDense(rows, dim, nil)
	}
	return b
}

// Set 写入 (i, k) = v；稀疏表示下忽略 0。
func (b *Builder) Set(i, k int, v float64) {
	if b.dok != nil {
		if v != 0 {
			b.dok.Set(i, k, v)
		}
		return
	}
	if b.dense != nil {
		b.dense.Set(i, k, v)
	}
}

// Build 完成构建
func (b *Builder) Build() *Matrix {
	m := &Matrix{rows: b.rows, dim: b.dim, isSparse: b.isSparse}
	switch {
	case b.dok != nil:
		m.csr = b.dok.ToCSR()
		sortRows(m.csr)
	case b.dense != nil:
		m.dense = b.dense
	default:
		// 空矩阵：gonum 不允许 0 维，这里用 1x1 占位，Dims 仍返回真实维度
		m.dense = mat.NewDense(1, 1, nil)
	}
	return m
}

// sortRows 把 CSR 每行的列下标排成升序。DOK 由 map 实现，转换后的行内顺序不固定，
// 排序后逐行求和的顺序才是确定的。
func sortRows(c *sparse.CSR) {
	raw := c.RawMatrix()
	for i := 0; i+1 < len(raw.Indptr); i++ {
		lo, hi := raw.Indptr[i], raw.Indptr[i+1]
		sort.Sort(rowEntries{ind: raw.Ind[lo:hi], data: raw.Data[lo:hi]})
	}
}

type rowEntries struct {
	ind  []int
	data []float64
}

func (r rowEntries) Len() int           { return len(r.ind) }
func (r rowEntries) Less(a, b int) bool { return r.ind[a] < r.ind[b] }
func (r rowEntries) Swap(a, b int) {
	r.ind[a], r.ind[b] = r.ind[b], r.ind[a]
	r.data[a], r.data[b] = r.data[b], r.data[a]
}
