package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	actiondomain "github.com/smallbiznis/collecta/internal/action/domain"
	"github.com/smallbiznis/collecta/internal/clock"
	"github.com/smallbiznis/collecta/internal/dispatch"
	obsmetrics "github.com/smallbiznis/collecta/internal/observability/metrics"
	"github.com/smallbiznis/collecta/internal/reclamation"
	"github.com/smallbiznis/collecta/internal/reconcile"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_config")

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	ActionSvc    actiondomain.Service
	Checker      *reconcile.Checker
	Dispatcher   *dispatch.Dispatcher
	Reclamations *reclamation.Generator
	Config       Config `optional:"true"`
}

// Scheduler owns the periodic jobs over the action store: expiring
// stale reminders, delivering due actions, and syncing the ledger's
// dunning notices. One-shot callers drive RunBatch directly.
type Scheduler struct {
	db           *gorm.DB
	log          *zap.Logger
	cfg          Config
	genID        *snowflake.Node
	clock        clock.Clock
	actionSvc    actiondomain.Service
	checker      *reconcile.Checker
	dispatcher   *dispatch.Dispatcher
	reclamations *reclamation.Generator
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.ActionSvc == nil || p.Checker == nil || p.Dispatcher == nil || p.Reclamations == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Scheduler{
		db:           p.DB,
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          cfg,
		genID:        p.GenID,
		clock:        p.Clock,
		actionSvc:    p.ActionSvc,
		checker:      p.Checker,
		dispatcher:   p.Dispatcher,
		reclamations: p.Reclamations,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(run)
	}
	log := s.log.With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(run)
	}
	if err == nil {
		return nil
	}

	// treat deadline as soft-timeout
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{"expire_stale", func(ctx context.Context) error {
			return s.runJob(ctx, "expire_stale", s.cfg.BatchSize, 30*time.Second, s.ExpireStaleJob)
		}},
		{"send_pending", func(ctx context.Context) error {
			return s.runJob(ctx, "send_pending", s.cfg.BatchSize, 10*time.Minute, s.SendPendingJob)
		}},
		{"reclamation_sync", func(ctx context.Context) error {
			return s.runJob(ctx, "reclamation_sync", s.cfg.BatchSize, 5*time.Minute, s.ReclamationSyncJob)
		}},
	}

	for _, job := range jobs {
		err = errors.Join(err, job.Run(parent))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ExpireStaleJob marks never-sent reminders whose due date fell out of
// the grace window so they stop surfacing as pending work.
func (s *Scheduler) ExpireStaleJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "expire_stale", s.cfg.BatchSize)
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}

	cutoff := s.clock.Now().AddDate(0, 0, -s.cfg.ExpireGraceDays)
	expired, err := s.actionSvc.ExpireBefore(ctx, cutoff)
	if err != nil {
		s.logSchedulerError(run, "scheduler.expire.failed", "expire_stale", err)
		return err
	}
	if expired > 0 {
		run.AddProcessed(int(expired))
		obsmetrics.Scheduler().AddBatchProcessed("expire_stale", "actions", int(expired))
		s.log.Info("scheduler.expire.done",
			zap.Time("cutoff", cutoff),
			zap.Int64("expired", expired),
		)
	}
	return nil
}

// SendPendingJob is one normal-mode delivery run as of now.
func (s *Scheduler) SendPendingJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "send_pending", s.cfg.BatchSize)
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}

	report, err := s.RunBatch(ctx, RunOptions{
		AsOf:  s.clock.Now(),
		Limit: s.cfg.BatchSize,
	})
	if err != nil {
		s.logSchedulerError(run, "scheduler.run.failed", "send_pending", err)
		return err
	}

	run.AddProcessed(len(report.Results))
	for _, item := range report.Results {
		if item.Outcome == OutcomeFailed {
			run.IncError()
		}
	}
	return nil
}

func (s *Scheduler) ReclamationSyncJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "reclamation_sync", s.cfg.BatchSize)
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}

	stats, err := s.reclamations.SyncAll(ctx)
	if err != nil {
		s.logSchedulerError(run, "reclamation.sync.failed", "reclamation_sync", err)
		return err
	}
	run.AddProcessed(stats.Processed)
	return nil
}
