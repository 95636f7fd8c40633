package eval

import (
	"context"
	"fmt"

	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/feature"
	"github.com/rushteam/rankfit/metrics"
	"github.com/rushteam/rankfit/pkg/logging"
)

// DefaultValidationRatio 是默认的训练集比例
const DefaultValidationRatio = 0.8

// SplitJudgments 按顺序切分：前 ratio 部分为训练集，剩余为验证集。
// ratio 为 0 时使用 DefaultValidationRatio；必须落在 (0, 1]。
func SplitJudgments(judgments []core.Judgment, ratio float64) (train, validation []core.Judgment, err error) {
	if ratio == 0 {
		ratio = DefaultValidationRatio
	}
	if ratio < 0 || ratio > 1 {
		return nil, nil, core.ConfigurationError(core.ModuleEval, "eval: train ratio must be in (0, 1], got %g", ratio)
	}
	n := int(float64(len(judgments)) * ratio)
	return judgments[:n:n], judgments[n:], nil
}

// Report 是训练集与验证集上的一致度
type Report struct {
	Train      float64  `json:"train"`
	Validation *float64 `json:"validation,omitempty"`
}

func (r *Report) String() string {
	if r.Validation == nil {
		return fmt.Sprintf("train=%.4f", r.Train)
	}
	return fmt.Sprintf("train=%.4f validation=%.4f", r.Train, *r.Validation)
}

// Evaluator 计算训练/验证报告，并可选地写入指标
type Evaluator struct {
	Recorder *metrics.Recorder
}

// Evaluate 计算报告。验证集为空（或全部退化）时 Validation 为 nil。
func (e *Evaluator) Evaluate(ctx context.Context, scorer Scorer, X *feature.Matrix, train, validation []core.Judgment, groups []core.GroupID) (*Report, error) {
	tr, err := Concordance(ctx, scorer, X, train, groups)
	if err != nil {
		return nil, fmt.Errorf("eval: train: %w", err)
	}
	report := &Report{Train: tr}
	e.Recorder.SetConcordance(metrics.SplitTrain, tr)

	va, err := Concordance(ctx, scorer, X, validation, groups)
	switch {
	case core.IsEmptyInput(err):
		logging.Debug("validation split has no usable judgments")
	case err != nil:
		return nil, fmt.Errorf("eval: validation: %w", err)
	default:
		report.Validation = &va
		e.Recorder.SetConcordance(metrics.SplitValidation, va)
	}
	logging.Info("evaluation finished", "report", report.String())
	return report, nil
}
