// Package rankfit 从成对偏好（judgment）训练启发式打分函数，并用加权 Kendall-tau 一致度评估。
//
// 设计要点：
// - Strategy-first: 训练策略是封闭的三选一（margin-classifier / linear-program / boosted-ranker），构造时确定
// - 高分更优: 所有产物统一 score = X·w，未见分组得到 artifact.WorstScore
// - 可复现: LP 求解显式传入 seed，重复 (i, j) 的约束名用确定性计数后缀
package rankfit

import (
	"github.com/rushteam/rankfit/artifact"
	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/rank"
)

// 轻量 facade：便于用户直接 import "rankfit" 使用核心抽象。
type (
	Judgment = core.Judgment
	GroupID  = core.GroupID
	Trainer  = rank.Trainer
	Strategy = rank.Strategy
	Artifact = artifact.Artifact
)

const (
	StrategyMarginClassifier = rank.NameMarginClassifier
	StrategyLinearProgram    = rank.NameLinearProgram
	StrategyBoostedRanker    = rank.NameBoostedRanker
)
