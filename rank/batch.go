package rank

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/rankfit/artifact"
	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/feature"
)

// Job 是一个独立的训练任务，Trainer 只属于这个任务
type Job struct {
	Name      string
	Trainer   *Trainer
	X         *feature.Matrix
	Judgments []core.Judgment
	Groups    []core.GroupID
}

// FitAll 并行训练相互独立的任务，limit <= 0 表示不限并发。
// 结果与 jobs 一一对应；任一任务失败会取消其余任务并返回第一个错误。
func FitAll(ctx context.Context, jobs []Job, limit int) ([]artifact.Artifact, error) {
	seen := make(map[*Trainer]string, len(jobs))
	for _, job := range jobs {
		if job.Trainer == nil {
			return nil, core.ConfigurationError(core.ModuleRank, "rank: job %q has no trainer", job.Name)
		}
		if other, ok := seen[job.Trainer]; ok {
			return nil, core.ConfigurationError(core.ModuleRank, "rank: jobs %q and %q share a trainer", other, job.Name)
		}
		seen[job.Trainer] = job.Name
	}

	out := make([]artifact.Artifact, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, job := range jobs {
		g.Go(func() error {
			a, err := job.Trainer.Fit(ctx, job.X, job.Judgments, job.Groups)
			if err != nil {
				return fmt.Errorf("rank: job %q: %w", job.Name, err)
			}
			out[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
