package order

import (
	"context"
	"time"

	"giftvoucher/pkg/task"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Scheduler struct {
	enqueuer task.Enqueuer
}

func NewScheduler(enqueuer task.Enqueuer) *Scheduler {
	return &Scheduler{enqueuer: enqueuer}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

// run enqueues the expiry sweep once a day, shortly after midnight so the
// report covers codes that expired the previous day.
func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started code expiry sweep scheduler")

	for {
		now := time.Now()
		next := nextRunTime(now, 2, 0)

		select {
		case <-time.After(next.Sub(now)):
			if _, err := s.enqueuer.Enqueue(NewSweepExpiredTask(), asynq.Queue("low")); err != nil {
				zap.L().Error("[Scheduler] failed to enqueue expiry sweep", zap.Error(err))
			}
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
