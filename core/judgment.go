package core

import "fmt"

// GroupID 把样本行划分为若干子集（例如不同 planning domain），每个子集可以拥有独立的权重向量。
type GroupID int

// Judgment 是两行特征之间的相对偏好：
//   - Relation > 0：第 I 行的分数应至少比第 J 行高 Relation
//   - Relation == 0：第 I 行不差于第 J 行
//
// Importance 既缩放训练时的影响，也缩放评估时的权重。
type Judgment struct {
	I          int     `json:"i" yaml:"i"`
	J          int     `json:"j" yaml:"j"`
	Relation   float64 `json:"relation" yaml:"relation"`
	Importance float64 `json:"importance" yaml:"importance"`
}

// Canonical 返回 Relation 非负的等价形式：负的 relation 通过交换 (I, J) 并取反来表达。
func (j Judgment) Canonical() Judgment {
	if j.Relation < 0 {
		return Judgment{I: j.J, J: j.I, Relation: -j.Relation, Importance: j.Importance}
	}
	return j
}

func (j Judgment) String() string {
	return fmt.Sprintf("(%d,%d,%g,%g)", j.I, j.J, j.Relation, j.Importance)
}

// GroupOf 返回第 row 行的分组；groups 为空时所有行属于隐式分组 0。
func GroupOf(groups []GroupID, row int) GroupID {
	if len(groups) == 0 {
		return 0
	}
	return groups[row]
}
