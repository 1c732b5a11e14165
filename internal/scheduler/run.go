package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	actiondomain "github.com/smallbiznis/collecta/internal/action/domain"
	"github.com/smallbiznis/collecta/internal/dispatch"
	"github.com/smallbiznis/collecta/internal/observability/metrics"
	"go.uber.org/zap"
)

// Mode selects how much of a delivery run actually happens. All modes
// share the due selection, the reconcile pass and the grouping; dry-run
// and filter-only stop before any write.
type Mode string

const (
	ModeNormal     Mode = "normal"
	ModeDryRun     Mode = "dry_run"
	ModeFilterOnly Mode = "filter_only"
)

type RunOptions struct {
	// AsOf is the due cutoff. Zero means the current clock time.
	AsOf time.Time
	// Limit caps how many due actions one run processes; the rest stay
	// pending for the next run. Zero means no cap.
	Limit      int
	DryRun     bool
	FilterOnly bool
}

func (o RunOptions) mode() Mode {
	switch {
	case o.FilterOnly:
		return ModeFilterOnly
	case o.DryRun:
		return ModeDryRun
	default:
		return ModeNormal
	}
}

// Outcome is the delivery verdict for one action in a run.
type Outcome string

const (
	OutcomeSent               Outcome = "sent"
	OutcomeFailed             Outcome = "failed"
	OutcomeSkippedPaid        Outcome = "skipped_paid"
	OutcomeSkippedNoRecipient Outcome = "skipped_no_recipient"
)

// ItemResult is the per-action outcome of a run. Err carries the
// dispatch failure behind a failed or skipped_no_recipient verdict.
type ItemResult struct {
	Action    actiondomain.FollowUpAction
	Outcome   Outcome
	Recipient string
	Grouped   bool
	Err       error
}

// RunReport is what one delivery run did (or, in dry-run and
// filter-only mode, would have done). Kept is the post-reconciliation
// keep list; Results holds concrete outcomes.
type RunReport struct {
	RunID    snowflake.ID
	AsOf     time.Time
	Mode     Mode
	DueCount int
	Kept     []dispatch.Input
	Results  []ItemResult
}

func (r RunReport) OutcomeCounts() map[Outcome]int {
	counts := make(map[Outcome]int)
	for _, item := range r.Results {
		counts[item.Outcome]++
	}
	return counts
}

// RunBatch performs one delivery run: select due actions, reconcile
// each against the ledger, persist skips, then deliver the keepers
// individually or grouped. Ledger failures keep items in the batch and
// dispatch failures are recorded per item; only action-store errors
// abort the run.
func (s *Scheduler) RunBatch(ctx context.Context, opts RunOptions) (RunReport, error) {
	startedAt := s.clock.Now()
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = startedAt
	}

	report := RunReport{
		RunID: s.genID.Generate(),
		AsOf:  asOf,
		Mode:  opts.mode(),
	}

	due, err := s.actionSvc.SelectDue(ctx, asOf, actiondomain.DefaultExclusions())
	if err != nil {
		return report, fmt.Errorf("select due actions: %w", err)
	}
	report.DueCount = len(due)
	if opts.Limit > 0 && len(due) > opts.Limit {
		due = due[:opts.Limit]
	}

	// One reconcile pass covers the whole run; its caches die with it.
	pass := s.checker.NewPass()
	for _, action := range due {
		verdict := pass.Check(ctx, action)
		if verdict.StillOutstanding {
			report.Kept = append(report.Kept, dispatch.Input{
				Action:      action,
				DisplayName: verdict.DisplayName,
				DisplayRef:  verdict.DisplayRef,
			})
			continue
		}
		if report.Mode == ModeNormal {
			if err := s.markSkipped(ctx, action.ID, actiondomain.StatusSkippedPaid); err != nil {
				return report, fmt.Errorf("mark action %s skipped: %w", action.ID, err)
			}
		}
		report.Results = append(report.Results, ItemResult{
			Action:  action,
			Outcome: OutcomeSkippedPaid,
		})
	}

	singles, groups := partitionKept(report.Kept)

	switch report.Mode {
	case ModeFilterOnly:
		return report, nil
	case ModeDryRun:
		s.logIntended(singles, groups)
		return report, nil
	}

	for _, in := range singles {
		item, err := s.deliverSingle(ctx, in)
		if err != nil {
			return report, err
		}
		report.Results = append(report.Results, item)
	}
	for _, items := range groups {
		groupResults, err := s.deliverGroup(ctx, items)
		if err != nil {
			return report, err
		}
		report.Results = append(report.Results, groupResults...)
	}

	if len(report.Results) > 0 {
		metrics.Scheduler().AddBatchProcessed("send_pending", "actions", len(report.Results))
	}
	s.recordRunStat(ctx, report, startedAt)
	s.log.Info("scheduler.run.done",
		zap.String("run_id", report.RunID.String()),
		zap.Time("as_of", asOf),
		zap.Int("due", report.DueCount),
		zap.Int("kept", len(report.Kept)),
		zap.Any("outcomes", report.OutcomeCounts()),
	)
	return report, nil
}

// groupKey is the fan-in identity: actions created under one batch and
// addressed through the same consultant and recipient travel as a
// single message.
type groupKey struct {
	batchID      snowflake.ID
	consultantID snowflake.ID
	recipient    string
}

func partitionKept(kept []dispatch.Input) ([]dispatch.Input, [][]dispatch.Input) {
	buckets := make(map[groupKey][]dispatch.Input)
	order := make([]groupKey, 0, len(kept))
	for _, in := range kept {
		key := groupKey{
			batchID:      in.Action.BatchID,
			consultantID: in.Action.ConsultantID,
			recipient:    in.Action.Recipient,
		}
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], in)
	}

	var singles []dispatch.Input
	var groups [][]dispatch.Input
	for _, key := range order {
		items := buckets[key]
		if key.batchID != 0 && len(items) >= 2 {
			groups = append(groups, items)
			continue
		}
		singles = append(singles, items...)
	}
	return singles, groups
}

func (s *Scheduler) deliverSingle(ctx context.Context, in dispatch.Input) (ItemResult, error) {
	res := s.dispatcher.SendSingle(ctx, in)
	item := ItemResult{
		Action:    in.Action,
		Recipient: res.Recipient,
		Err:       res.Err,
	}

	switch {
	case res.Err == nil:
		item.Outcome = OutcomeSent
		now := s.clock.Now()
		err := s.actionSvc.MarkOutcome(ctx, actiondomain.MarkOutcomeRequest{
			IDs:          []snowflake.ID{in.Action.ID},
			Status:       actiondomain.StatusSent,
			SentAt:       &now,
			Recipient:    res.Recipient,
			ConsultantID: res.ConsultantID,
		})
		if err != nil {
			return item, fmt.Errorf("mark action %s sent: %w", in.Action.ID, err)
		}
	case errors.Is(res.Err, dispatch.ErrNoRecipient):
		item.Outcome = OutcomeSkippedNoRecipient
		err := s.actionSvc.MarkOutcome(ctx, actiondomain.MarkOutcomeRequest{
			IDs:    []snowflake.ID{in.Action.ID},
			Status: actiondomain.StatusSkippedNoRecipient,
		})
		if err != nil {
			return item, fmt.Errorf("mark action %s skipped: %w", in.Action.ID, err)
		}
	default:
		item.Outcome = OutcomeFailed
		err := s.actionSvc.MarkOutcome(ctx, actiondomain.MarkOutcomeRequest{
			IDs:    []snowflake.ID{in.Action.ID},
			Status: actiondomain.StatusFailed,
		})
		if err != nil {
			return item, fmt.Errorf("mark action %s failed: %w", in.Action.ID, err)
		}
	}

	metrics.Scheduler().IncActionOutcome(string(item.Outcome))
	return item, nil
}

func (s *Scheduler) deliverGroup(ctx context.Context, items []dispatch.Input) ([]ItemResult, error) {
	res := s.dispatcher.SendGroup(ctx, dispatch.GroupInput{Items: items})

	ids := make([]snowflake.ID, 0, len(items))
	for _, in := range items {
		ids = append(ids, in.Action.ID)
	}

	var outcome Outcome
	req := actiondomain.MarkOutcomeRequest{IDs: ids}
	switch {
	case res.Err == nil:
		outcome = OutcomeSent
		now := s.clock.Now()
		req.Status = actiondomain.StatusSent
		req.SentAt = &now
		req.Recipient = res.Recipient
		req.ConsultantID = res.ConsultantID
	case errors.Is(res.Err, dispatch.ErrNoRecipient):
		outcome = OutcomeSkippedNoRecipient
		req.Status = actiondomain.StatusSkippedNoRecipient
	default:
		outcome = OutcomeFailed
		req.Status = actiondomain.StatusFailed
	}

	if err := s.actionSvc.MarkOutcome(ctx, req); err != nil {
		return nil, fmt.Errorf("mark batch %s %s: %w", idString(items[0].Action.BatchID), req.Status, err)
	}

	results := make([]ItemResult, 0, len(items))
	for _, in := range items {
		results = append(results, ItemResult{
			Action:    in.Action,
			Outcome:   outcome,
			Recipient: res.Recipient,
			Grouped:   true,
			Err:       res.Err,
		})
		metrics.Scheduler().IncActionOutcome(string(outcome))
	}
	return results, nil
}

func (s *Scheduler) markSkipped(ctx context.Context, id snowflake.ID, status actiondomain.DeliveryStatus) error {
	err := s.actionSvc.MarkOutcome(ctx, actiondomain.MarkOutcomeRequest{
		IDs:    []snowflake.ID{id},
		Status: status,
	})
	if err != nil {
		return err
	}
	metrics.Scheduler().IncActionOutcome(string(status))
	return nil
}

func (s *Scheduler) logIntended(singles []dispatch.Input, groups [][]dispatch.Input) {
	for _, in := range singles {
		s.log.Info("scheduler.run.would_send",
			zap.String("action_id", in.Action.ID.String()),
			zap.String("customer_id", in.Action.CustomerExternalID),
			zap.String("invoice", in.Action.Ref().String()),
		)
	}
	for _, items := range groups {
		s.log.Info("scheduler.run.would_send_group",
			zap.String("batch_id", idString(items[0].Action.BatchID)),
			zap.String("customer_id", items[0].Action.CustomerExternalID),
			zap.Int("actions", len(items)),
		)
	}
}
