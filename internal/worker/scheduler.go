package worker

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"funding-service/internal/config"
)

// Scheduler enqueues the periodic jobs on their cron schedules. It only
// queues; the worker process executes. Running it in the API process keeps
// the worker horizontally scalable without duplicate schedules.
type Scheduler struct {
	Enqueuer *Enqueuer
	cfg      config.ReconcileConfig
	log      *zap.SugaredLogger
}

func NewScheduler(enqueuer *Enqueuer, cfg config.ReconcileConfig, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{Enqueuer: enqueuer, cfg: cfg, log: log}
}

func (s *Scheduler) StartScheduler() (*cron.Cron, error) {
	c := cron.New()

	if _, err := c.AddFunc(s.cfg.Schedule, func() {
		if err := s.Enqueuer.EnqueueReconcile(context.Background()); err != nil {
			s.log.Errorw("queueing reconciliation failed", "error", err)
		}
	}); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc(s.cfg.OrphanSchedule, func() {
		if err := s.Enqueuer.EnqueueOrphanSweep(context.Background()); err != nil {
			s.log.Errorw("queueing orphan sweep failed", "error", err)
		}
	}); err != nil {
		return nil, err
	}

	c.Start()
	s.log.Infow("schedulers started",
		"reconcile", s.cfg.Schedule, "orphanSweep", s.cfg.OrphanSchedule)
	return c, nil
}
