package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/collecta/internal/action"
	"github.com/smallbiznis/collecta/internal/clock"
	"github.com/smallbiznis/collecta/internal/config"
	"github.com/smallbiznis/collecta/internal/consultant"
	"github.com/smallbiznis/collecta/internal/dispatch"
	"github.com/smallbiznis/collecta/internal/ledger"
	"github.com/smallbiznis/collecta/internal/logger"
	"github.com/smallbiznis/collecta/internal/migration"
	"github.com/smallbiznis/collecta/internal/providers/email"
	"github.com/smallbiznis/collecta/internal/reclamation"
	"github.com/smallbiznis/collecta/internal/reconcile"
	"github.com/smallbiznis/collecta/internal/scheduler"
	"github.com/smallbiznis/collecta/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	date := flag.String("date", "", "due cutoff as YYYY-MM-DD (default today)")
	dryRun := flag.Bool("dry-run", false, "reconcile and log what would be sent without sending or writing")
	filterOnly := flag.Bool("filter-only", false, "stop after reconciliation and log the keep list")
	showSkipped := flag.Bool("show-skipped", false, "log skipped actions alongside sent and failed ones")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	if *logLevel != "" {
		os.Setenv("LOG_LEVEL", *logLevel)
	}

	asOf := endOfDay(time.Now())
	if *date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", *date, time.Local)
		if err != nil {
			die("invalid --date %q: expected YYYY-MM-DD", *date)
		}
		asOf = endOfDay(parsed)
	}

	var (
		sched *scheduler.Scheduler
		log   *zap.Logger
	)
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		scheduler.Module,
		action.Module,
		consultant.Module,
		ledger.Module,
		reconcile.Module,
		dispatch.Module,
		email.Module,
		reclamation.Module,

		// One run, then exit: no run loop and no metrics listener.
		fx.Populate(&sched, &log),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		die("start: %v", err)
	}

	report, err := sched.RunBatch(context.Background(), scheduler.RunOptions{
		AsOf:       asOf,
		DryRun:     *dryRun,
		FilterOnly: *filterOnly,
	})
	if err != nil {
		log.Error("dispatch.run.failed", zap.Error(err))
		app.Stop(context.Background())
		os.Exit(1)
	}

	for _, item := range report.Results {
		if !*showSkipped && skippedOutcome(item.Outcome) {
			continue
		}
		logAction(log, item)
	}
	if report.Mode != scheduler.ModeNormal {
		for _, in := range report.Kept {
			ref := in.DisplayRef
			if ref == "" {
				ref = in.Action.Ref().String()
			}
			log.Info("dispatch.action",
				zap.String("action_id", in.Action.ID.String()),
				zap.String("customer_id", in.Action.CustomerExternalID),
				zap.String("invoice", ref),
				zap.String("outcome", "kept"),
			)
		}
	}

	counts := report.OutcomeCounts()
	log.Info("dispatch.done",
		zap.String("run_id", report.RunID.String()),
		zap.String("mode", string(report.Mode)),
		zap.Time("as_of", report.AsOf),
		zap.Int("due", report.DueCount),
		zap.Int("kept", len(report.Kept)),
		zap.Int("sent", counts[scheduler.OutcomeSent]),
		zap.Int("failed", counts[scheduler.OutcomeFailed]),
		zap.Int("skipped_paid", counts[scheduler.OutcomeSkippedPaid]),
		zap.Int("skipped_no_recipient", counts[scheduler.OutcomeSkippedNoRecipient]),
	)

	app.Stop(context.Background())
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func logAction(log *zap.Logger, item scheduler.ItemResult) {
	fields := []zap.Field{
		zap.String("action_id", item.Action.ID.String()),
		zap.String("customer_id", item.Action.CustomerExternalID),
		zap.String("invoice", item.Action.Ref().String()),
		zap.String("outcome", string(item.Outcome)),
	}
	if item.Recipient != "" {
		fields = append(fields, zap.String("recipient", item.Recipient))
	}
	if item.Grouped {
		fields = append(fields, zap.Bool("grouped", true))
	}
	if item.Err != nil {
		fields = append(fields, zap.Error(item.Err))
	}
	log.Info("dispatch.action", fields...)
}

func skippedOutcome(o scheduler.Outcome) bool {
	return o == scheduler.OutcomeSkippedPaid || o == scheduler.OutcomeSkippedNoRecipient
}

// endOfDay widens a calendar date into a cutoff that covers every
// due_at stamped on that day regardless of its time component.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
