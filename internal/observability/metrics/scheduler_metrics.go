package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Config carries the const labels stamped onto every scheduler metric.
type Config struct {
	ServiceName string
	Environment string
}

const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonDB                   = "db"
	SchedulerJobReasonUnknown              = "unknown"
)

// SchedulerMetrics captures dispatch scheduler health signals.
type SchedulerMetrics struct {
	jobRuns           *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	jobTimeouts       *prometheus.CounterVec
	jobErrors         *prometheus.CounterVec
	batchProcessed    *prometheus.CounterVec
	runLoopLag        prometheus.Observer
	actionOutcomes    *prometheus.CounterVec
	reclamationsMade  prometheus.Counter
	ledgerPassResults *prometheus.CounterVec
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the singleton scheduler metrics registry.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig returns the singleton scheduler metrics registry using config labels.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// ResetSchedulerMetricsForTest resets the scheduler metrics singleton for tests.
func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "collecta"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "collecta_scheduler_job_runs_total",
		Help:        "Scheduler job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "collecta_scheduler_job_duration_seconds",
		Help:        "Scheduler job latency to keep follow-up batches inside their window.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600, 1800},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "collecta_scheduler_job_timeouts_total",
		Help:        "Scheduler jobs that overran their deadline.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "collecta_scheduler_job_errors_total",
		Help:        "Scheduler job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	batchProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "collecta_scheduler_batch_processed_total",
		Help:        "Scheduler batch items processed to gauge follow-up throughput.",
		ConstLabels: constLabels,
	}, []string{"job", "resource"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "collecta_scheduler_runloop_lag_seconds",
		Help:        "Scheduler run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})
	actionOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "collecta_actions_dispatched_total",
		Help:        "Follow-up actions handled per batch run, by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	reclamationsMade := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "collecta_reclamations_created_total",
		Help:        "Reclamation follow-up actions generated from ledger dunning state.",
		ConstLabels: constLabels,
	})
	ledgerPassResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "collecta_ledger_pass_total",
		Help:        "Ledger reconciliation verdicts by result.",
		ConstLabels: constLabels,
	}, []string{"result"})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		batchProcessed,
		runLoopLag,
		actionOutcomes,
		reclamationsMade,
		ledgerPassResults,
	)

	return &SchedulerMetrics{
		jobRuns:           jobRuns,
		jobDuration:       jobDuration,
		jobTimeouts:       jobTimeouts,
		jobErrors:         jobErrors,
		batchProcessed:    batchProcessed,
		runLoopLag:        runLoopLag,
		actionOutcomes:    actionOutcomes,
		reclamationsMade:  reclamationsMade,
		ledgerPassResults: ledgerPassResults,
	}
}

// IncJobRun increments the run counter for a scheduler job.
func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records scheduler job latency in seconds.
func (m *SchedulerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobTimeout increments the timeout counter for the scheduler job.
func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m == nil || m.jobTimeouts == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the scheduler job error counter with classification.
func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil || m.jobErrors == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifySchedulerJobReason(err)).Inc()
}

// AddBatchProcessed increments the batch processed counter for a resource by count.
func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m == nil || count <= 0 || m.batchProcessed == nil {
		return
	}
	m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *SchedulerMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	lag := duration
	if lag < 0 {
		lag = 0
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// IncActionOutcome counts one dispatched action by its final outcome.
func (m *SchedulerMetrics) IncActionOutcome(outcome string) {
	if m == nil || m.actionOutcomes == nil || outcome == "" {
		return
	}
	m.actionOutcomes.WithLabelValues(outcome).Inc()
}

// AddReclamationsCreated counts reclamation actions materialized from the ledger.
func (m *SchedulerMetrics) AddReclamationsCreated(count int) {
	if m == nil || m.reclamationsMade == nil || count <= 0 {
		return
	}
	m.reclamationsMade.Add(float64(count))
}

// IncLedgerPass counts one reconciliation verdict (open, settled, missing, error).
func (m *SchedulerMetrics) IncLedgerPass(result string) {
	if m == nil || m.ledgerPassResults == nil || result == "" {
		return
	}
	m.ledgerPassResults.WithLabelValues(result).Inc()
}

// ClassifySchedulerJobReason maps scheduler job errors to low-cardinality reasons.
func ClassifySchedulerJobReason(err error) string {
	if err == nil {
		return SchedulerJobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SchedulerJobReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return SchedulerJobReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return SchedulerJobReasonSerializationFailure
	}
	if isUniqueViolation(err) {
		return SchedulerJobReasonUniqueViolation
	}
	if isDBError(err) {
		return SchedulerJobReasonDB
	}
	return SchedulerJobReasonUnknown
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
