// Package metrics 提供训练与评估的 prometheus 指标。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rushteam/rankfit/core"
)

// 指标名
const (
	MetricFitsTotal      = "rankfit_fits_total"
	MetricFitDuration    = "rankfit_fit_duration_seconds"
	MetricFitErrorsTotal = "rankfit_fit_errors_total"
	MetricJudgmentsTotal = "rankfit_judgments_total"
	MetricConcordance    = "rankfit_concordance"
)

// 评估数据集标签
const (
	SplitTrain      = "train"
	SplitValidation = "validation"
)

// Recorder 汇总训练与评估指标，并发安全。nil *Recorder 的所有方法都是空操作。
type Recorder struct {
	fitsTotal   *prometheus.CounterVec
	fitDuration *prometheus.HistogramVec
	fitErrors   *prometheus.CounterVec
	judgments   *prometheus.CounterVec
	concordance *prometheus.GaugeVec
}

// NewRecorder 创建指标；未注册，需调用 Register
func NewRecorder() *Recorder {
	return &Recorder{
		fitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricFitsTotal,
				Help: "Total number of trainer fits by strategy",
			},
			[]string{"strategy"},
		),
		fitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricFitDuration,
				Help:    "Histogram of trainer fit duration in seconds by strategy",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"strategy"},
		),
		fitErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricFitErrorsTotal,
				Help: "Total number of failed fits by strategy and error code",
			},
			[]string{"strategy", "code"},
		),
		judgments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricJudgmentsTotal,
				Help: "Total number of judgments consumed by fits",
			},
			[]string{"strategy"},
		),
		concordance: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricConcordance,
				Help: "Last weighted concordance by split",
			},
			[]string{"split"},
		),
	}
}

// Register 注册到 reg
func (r *Recorder) Register(reg prometheus.Registerer) error {
	for _, c := range r.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors 返回全部 collector
func (r *Recorder) Collectors() []prometheus.Collector {
	return []prometheus.Collector{r.fitsTotal, r.fitDuration, r.fitErrors, r.judgments, r.concordance}
}

// ObserveFit 记录一次训练。err 非空时按错误码计数，未分类的错误记为 UNKNOWN。
func (r *Recorder) ObserveFit(strategy string, judgments int, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.fitsTotal.WithLabelValues(strategy).Inc()
	r.fitDuration.WithLabelValues(strategy).Observe(d.Seconds())
	r.judgments.WithLabelValues(strategy).Add(float64(judgments))
	if err != nil {
		code := core.ErrorCode(err)
		if code == "" {
			code = "UNKNOWN"
		}
		r.fitErrors.WithLabelValues(strategy, code).Inc()
	}
}

// SetConcordance 记录最近一次评估结果
func (r *Recorder) SetConcordance(split string, v float64) {
	if r == nil {
		return
	}
	r.concordance.WithLabelValues(split).Set(v)
}
