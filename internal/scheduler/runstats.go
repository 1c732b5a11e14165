package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// DeliveryRunStat is the bookkeeping row written at the end of each
// delivery run. Writes are best-effort: losing a stats row never fails
// the run it describes.
type DeliveryRunStat struct {
	RunID      snowflake.ID      `gorm:"column:run_id;primaryKey"`
	AsOf       time.Time         `gorm:"column:as_of;not null"`
	Mode       string            `gorm:"column:mode;not null"`
	DueCount   int               `gorm:"column:due_count;not null"`
	KeptCount  int               `gorm:"column:kept_count;not null"`
	Outcomes   datatypes.JSONMap `gorm:"column:outcomes"`
	StartedAt  time.Time         `gorm:"column:started_at;not null"`
	FinishedAt time.Time         `gorm:"column:finished_at;not null"`
}

func (DeliveryRunStat) TableName() string {
	return "delivery_run_stats"
}

func (s *Scheduler) recordRunStat(ctx context.Context, report RunReport, startedAt time.Time) {
	outcomes := datatypes.JSONMap{}
	for outcome, count := range report.OutcomeCounts() {
		outcomes[string(outcome)] = count
	}

	err := s.db.WithContext(ctx).Exec(
		`INSERT INTO delivery_run_stats (run_id, as_of, mode, due_count, kept_count, outcomes, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID,
		report.AsOf,
		string(report.Mode),
		report.DueCount,
		len(report.Kept),
		outcomes,
		startedAt,
		s.clock.Now(),
	).Error
	if err != nil {
		s.log.Warn("scheduler.runstat.write_failed",
			zap.String("run_id", report.RunID.String()),
			zap.Error(err),
		)
	}
}
