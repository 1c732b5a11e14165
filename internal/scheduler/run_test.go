package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	actiondomain "github.com/smallbiznis/collecta/internal/action/domain"
	actionrepository "github.com/smallbiznis/collecta/internal/action/repository"
	actionservice "github.com/smallbiznis/collecta/internal/action/service"
	"github.com/smallbiznis/collecta/internal/clock"
	"github.com/smallbiznis/collecta/internal/config"
	consultantdomain "github.com/smallbiznis/collecta/internal/consultant/domain"
	"github.com/smallbiznis/collecta/internal/dispatch"
	ledgerdomain "github.com/smallbiznis/collecta/internal/ledger/domain"
	ledgerrepository "github.com/smallbiznis/collecta/internal/ledger/repository"
	obsmetrics "github.com/smallbiznis/collecta/internal/observability/metrics"
	"github.com/smallbiznis/collecta/internal/reclamation"
	"github.com/smallbiznis/collecta/internal/reconcile"
	"github.com/smallbiznis/collecta/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordedMail struct {
	to      []string
	subject string
	body    string
}

type mailRecorder struct {
	sent []recordedMail
	err  error
}

func (m *mailRecorder) Send(ctx context.Context, to []string, subject string, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, recordedMail{to: to, subject: subject, body: body})
	return nil
}

type directoryStub struct {
	emails   map[snowflake.ID]string
	assigned map[int64]*consultantdomain.Consultant
}

func (s *directoryStub) ResolveEmail(ctx context.Context, consultantID snowflake.ID) (string, error) {
	return s.emails[consultantID], nil
}
func (s *directoryStub) ResolveAssigned(ctx context.Context, customerInternalID int64) (*consultantdomain.Consultant, error) {
	return s.assigned[customerInternalID], nil
}
func (s *directoryStub) Create(context.Context, consultantdomain.CreateConsultantRequest) (consultantdomain.Consultant, error) {
	return consultantdomain.Consultant{}, nil
}
func (s *directoryStub) Assign(context.Context, consultantdomain.AssignCustomerRequest) (consultantdomain.CustomerAssignment, error) {
	return consultantdomain.CustomerAssignment{}, nil
}
func (s *directoryStub) List(context.Context) ([]consultantdomain.Consultant, error) {
	return nil, nil
}

// runEnv wires the scheduler against a real action store and a real
// ledger reader, both on sqlite, with only the mail transport stubbed.
type runEnv struct {
	t        *testing.T
	registry *prometheus.Registry
	db       *gorm.DB
	ledger   db.LedgerConn
	clock    *clock.FakeClock
	node     *snowflake.Node
	repo     actiondomain.Repository
	mailer   *mailRecorder
	dir      *directoryStub
	actions  actiondomain.Service
	sched    *Scheduler
}

func newRunEnv(t *testing.T) *runEnv {
	t.Helper()

	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)
	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "collecta",
		Environment: "test",
	})

	conn := openRunDB(t)
	ledgerConn := openRunLedger(t)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fc := clock.NewFakeClock(time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC))
	dir := &directoryStub{
		emails:   make(map[snowflake.ID]string),
		assigned: make(map[int64]*consultantdomain.Consultant),
	}
	repo := actionrepository.Provide()
	reader := ledgerrepository.Provide()
	mailer := &mailRecorder{}

	actions := actionservice.New(actionservice.Params{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fc,
		Repo:      repo,
		Directory: dir,
	})
	checker := reconcile.New(reconcile.Params{
		Conn:   ledgerConn,
		Log:    zap.NewNop(),
		Reader: reader,
	})
	dispatcher := dispatch.New(dispatch.Params{
		Log:       zap.NewNop(),
		Provider:  mailer,
		Directory: dir,
		Config:    config.Config{PortalURL: "https://collecta.example.com"},
	})
	reclamations := reclamation.New(reclamation.Params{
		DB:      conn,
		Conn:    ledgerConn,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fc,
		Reader:  reader,
		Actions: repo,
	})

	sched, err := New(Params{
		DB:           conn,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        fc,
		ActionSvc:    actions,
		Checker:      checker,
		Dispatcher:   dispatcher,
		Reclamations: reclamations,
		Config:       Config{RunInterval: time.Minute, BatchSize: 50, ExpireGraceDays: 90},
	})
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}

	return &runEnv{
		t:        t,
		registry: registry,
		db:       conn,
		ledger:   ledgerConn,
		clock:    fc,
		node:     node,
		repo:     repo,
		mailer:   mailer,
		dir:      dir,
		actions:  actions,
		sched:    sched,
	}
}

func openSQLite(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "_" + name + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return conn
}

func openRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn := openSQLite(t, "actions")
	if err := conn.AutoMigrate(&actiondomain.FollowUpAction{}, &DeliveryRunStat{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func openRunLedger(t *testing.T) db.LedgerConn {
	t.Helper()
	conn := openSQLite(t, "ledger")
	if err := conn.Exec(`
		CREATE TABLE ledger_invoices (
			invoice_type TEXT,
			invoice_number TEXT,
			customer_id TEXT,
			collective TEXT,
			currency TEXT,
			amount REAL,
			amount_paid REAL,
			sign INTEGER,
			dunning_level INTEGER,
			dunning_date DATETIME,
			settled INTEGER,
			display_ref TEXT,
			due_date DATETIME
		)
	`).Error; err != nil {
		t.Fatalf("create ledger_invoices: %v", err)
	}
	if err := conn.Exec(`
		CREATE TABLE ledger_customers (
			id TEXT,
			name TEXT,
			tax_id TEXT,
			company_tax_id TEXT
		)
	`).Error; err != nil {
		t.Fatalf("create ledger_customers: %v", err)
	}
	return db.LedgerConn{DB: conn}
}

func (e *runEnv) seedAction(a actiondomain.FollowUpAction) actiondomain.FollowUpAction {
	e.t.Helper()
	if a.ID == 0 {
		a.ID = e.node.Generate()
	}
	if a.CreatedBy == "" {
		a.CreatedBy = "tester"
	}
	if err := e.repo.Insert(context.Background(), e.db, &a); err != nil {
		e.t.Fatalf("seed action %s: %v", a.InvoiceNumber, err)
	}
	return a
}

// pendingAction is the template most tests start from: customer 00123,
// one invoice, a stored recipient, due at the given instant.
func (e *runEnv) pendingAction(number string, due time.Time) actiondomain.FollowUpAction {
	return actiondomain.FollowUpAction{
		CustomerExternalID: "00123",
		CustomerInternalID: 123,
		InvoiceType:        "FA",
		InvoiceNumber:      number,
		ActionKind:         "Call",
		DueAt:              &due,
		Recipient:          "anna@example.se",
	}
}

func (e *runEnv) seedInvoice(inv ledgerdomain.Invoice) {
	e.t.Helper()
	err := e.ledger.Exec(`
		INSERT INTO ledger_invoices (invoice_type, invoice_number, customer_id, collective, currency,
			amount, amount_paid, sign, dunning_level, dunning_date, settled, display_ref, due_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inv.InvoiceType, inv.InvoiceNumber, inv.CustomerID, inv.Collective, inv.Currency,
		inv.Amount, inv.AmountPaid, inv.Sign, inv.DunningLevel, inv.DunningDate, inv.Settled,
		inv.DisplayRef, inv.DueDate).Error
	if err != nil {
		e.t.Fatalf("seed invoice %s: %v", inv.InvoiceNumber, err)
	}
}

func (e *runEnv) loadAction(id snowflake.ID) actiondomain.FollowUpAction {
	e.t.Helper()
	var row actiondomain.FollowUpAction
	if err := e.db.First(&row, "id = ?", id).Error; err != nil {
		e.t.Fatalf("load action %s: %v", id, err)
	}
	return row
}

func (e *runEnv) statRows() []DeliveryRunStat {
	e.t.Helper()
	var rows []DeliveryRunStat
	if err := e.db.Order("run_id ASC").Find(&rows).Error; err != nil {
		e.t.Fatalf("load run stats: %v", err)
	}
	return rows
}

func openInvoice(customer, number string, amount, paid float64) ledgerdomain.Invoice {
	due := time.Date(2023, 12, 20, 0, 0, 0, 0, time.UTC)
	return ledgerdomain.Invoice{
		InvoiceType:   "FA",
		InvoiceNumber: number,
		CustomerID:    customer,
		Collective:    "4300",
		Currency:      "SEK",
		Amount:        amount,
		AmountPaid:    paid,
		Sign:          1,
		DueDate:       &due,
	}
}

func dunnedInvoice(customer, number string, level int, at time.Time) ledgerdomain.Invoice {
	inv := openInvoice(customer, number, 900, 0)
	inv.DunningLevel = level
	inv.DunningDate = &at
	return inv
}

func TestRunBatchDeliversDueAction(t *testing.T) {
	env := newRunEnv(t)
	due := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	act := env.seedAction(env.pendingAction("5001", due))
	env.seedInvoice(openInvoice("00123", "5001", 500, 0))

	report, err := env.sched.RunBatch(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if report.Mode != ModeNormal {
		t.Fatalf("expected normal mode, got %s", report.Mode)
	}
	if report.DueCount != 1 || len(report.Kept) != 1 {
		t.Fatalf("expected 1 due and 1 kept, got %d due, %d kept", report.DueCount, len(report.Kept))
	}
	if got := report.OutcomeCounts()[OutcomeSent]; got != 1 {
		t.Fatalf("expected 1 sent, got %d", got)
	}
	if len(env.mailer.sent) != 1 {
		t.Fatalf("expected one outgoing mail, got %d", len(env.mailer.sent))
	}
	if to := env.mailer.sent[0].to; len(to) != 1 || to[0] != "anna@example.se" {
		t.Fatalf("unexpected recipients %v", to)
	}

	row := env.loadAction(act.ID)
	if row.DeliveryStatus != actiondomain.StatusSent {
		t.Fatalf("expected status sent, got %q", row.DeliveryStatus)
	}
	if row.SentAt == nil || !row.SentAt.Equal(env.clock.Now()) {
		t.Fatalf("expected sent_at %s, got %v", env.clock.Now(), row.SentAt)
	}

	stats := env.statRows()
	if len(stats) != 1 {
		t.Fatalf("expected one run stat, got %d", len(stats))
	}
	if stats[0].Mode != string(ModeNormal) || stats[0].DueCount != 1 || stats[0].KeptCount != 1 {
		t.Fatalf("unexpected run stat %+v", stats[0])
	}

	labels := map[string]string{"service": "collecta", "env": "test", "outcome": "sent"}
	if got := getCounterValue(t, env.registry, "collecta_actions_dispatched_total", labels); got != 1 {
		t.Fatalf("expected dispatched counter 1, got %v", got)
	}
}

func TestRunBatchSkipsPaidInvoiceForGood(t *testing.T) {
	env := newRunEnv(t)
	due := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	act := env.seedAction(env.pendingAction("5001", due))
	env.seedInvoice(openInvoice("00123", "5001", 500, 500))

	report, err := env.sched.RunBatch(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if report.DueCount != 1 || len(report.Kept) != 0 {
		t.Fatalf("expected 1 due and 0 kept, got %d due, %d kept", report.DueCount, len(report.Kept))
	}
	if got := report.OutcomeCounts()[OutcomeSkippedPaid]; got != 1 {
		t.Fatalf("expected 1 skipped_paid, got %d", got)
	}
	if len(env.mailer.sent) != 0 {
		t.Fatalf("expected no mail, got %d", len(env.mailer.sent))
	}

	row := env.loadAction(act.ID)
	if row.DeliveryStatus != actiondomain.StatusSkippedPaid {
		t.Fatalf("expected status skipped_paid, got %q", row.DeliveryStatus)
	}
	if row.SentAt != nil {
		t.Fatalf("skip must not stamp sent_at, got %v", row.SentAt)
	}

	second, err := env.sched.RunBatch(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.DueCount != 0 {
		t.Fatalf("skipped action selected again, due count %d", second.DueCount)
	}
}

func TestRunBatchDryRunLeavesStoreUntouched(t *testing.T) {
	env := newRunEnv(t)
	due := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	open := env.seedAction(env.pendingAction("5001", due))
	paid := env.seedAction(env.pendingAction("5002", due))
	env.seedInvoice(openInvoice("00123", "5001", 500, 0))
	env.seedInvoice(openInvoice("00123", "5002", 500, 500))

	report, err := env.sched.RunBatch(context.Background(), RunOptions{DryRun: true})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if report.Mode != ModeDryRun {
		t.Fatalf("expected dry_run mode, got %s", report.Mode)
	}
	if report.DueCount != 2 || len(report.Kept) != 1 {
		t.Fatalf("expected 2 due and 1 kept, got %d due, %d kept", report.DueCount, len(report.Kept))
	}
	if report.Kept[0].Action.ID != open.ID {
		t.Fatalf("kept the wrong action %s", report.Kept[0].Action.ID)
	}
	if got := report.OutcomeCounts()[OutcomeSkippedPaid]; got != 1 {
		t.Fatalf("expected 1 reported skip, got %d", got)
	}
	if len(env.mailer.sent) != 0 {
		t.Fatalf("dry run must not send, got %d mails", len(env.mailer.sent))
	}

	for _, id := range []snowflake.ID{open.ID, paid.ID} {
		row := env.loadAction(id)
		if row.DeliveryStatus != actiondomain.StatusPending || row.SentAt != nil {
			t.Fatalf("dry run wrote to action %s: status %q sent_at %v", id, row.DeliveryStatus, row.SentAt)
		}
	}
	if stats := env.statRows(); len(stats) != 0 {
		t.Fatalf("dry run wrote %d run stats", len(stats))
	}
}

func TestRunBatchFilterOnlyStopsBeforeDelivery(t *testing.T) {
	env := newRunEnv(t)
	due := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	act := env.seedAction(env.pendingAction("5001", due))
	env.seedInvoice(openInvoice("00123", "5001", 500, 0))

	report, err := env.sched.RunBatch(context.Background(), RunOptions{FilterOnly: true})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if report.Mode != ModeFilterOnly {
		t.Fatalf("expected filter_only mode, got %s", report.Mode)
	}
	if report.DueCount != 1 || len(report.Kept) != 1 || len(report.Results) != 0 {
		t.Fatalf("expected keep list only, got %d due, %d kept, %d results",
			report.DueCount, len(report.Kept), len(report.Results))
	}
	if len(env.mailer.sent) != 0 {
		t.Fatalf("filter only must not send, got %d mails", len(env.mailer.sent))
	}
	if row := env.loadAction(act.ID); row.DeliveryStatus != actiondomain.StatusPending {
		t.Fatalf("filter only wrote status %q", row.DeliveryStatus)
	}
	if stats := env.statRows(); len(stats) != 0 {
		t.Fatalf("filter only wrote %d run stats", len(stats))
	}
}

func TestRunBatchGroupsBatchSiblingsIntoOneMail(t *testing.T) {
	env := newRunEnv(t)
	env.clock.Set(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	consultantID := env.node.Generate()
	env.dir.emails[consultantID] = "bjorn@example.se"

	resp, err := env.actions.CreateBatch(context.Background(), actiondomain.CreateBatchRequest{
		CustomerID: "00123",
		Invoices: []actiondomain.InvoiceRef{
			{Type: "FA", Number: "5001"},
			{Type: "FA", Number: "5002"},
			{Type: "FA", Number: "5003"},
		},
		CreatedBy: "anna",
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	due := time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC)
	err = env.actions.FillBatch(context.Background(), actiondomain.FillBatchRequest{
		BatchID:      resp.BatchID.String(),
		Kind:         "Reminder",
		DueAt:        &due,
		ConsultantID: consultantID,
		Refs: []actiondomain.InvoiceRef{
			{Type: "FA", Number: "5001"},
			{Type: "FA", Number: "5002"},
		},
		ModifiedBy: "anna",
	})
	if err != nil {
		t.Fatalf("fill batch: %v", err)
	}
	env.seedInvoice(openInvoice("00123", "5001", 400, 0))
	env.seedInvoice(openInvoice("00123", "5002", 600, 0))

	report, err := env.sched.RunBatch(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if report.DueCount != 2 {
		t.Fatalf("expected 2 due, got %d", report.DueCount)
	}
	if got := report.OutcomeCounts()[OutcomeSent]; got != 2 {
		t.Fatalf("expected 2 sent, got %d", got)
	}
	for _, item := range report.Results {
		if !item.Grouped {
			t.Fatalf("expected grouped delivery for %s", item.Action.InvoiceNumber)
		}
	}
	if len(env.mailer.sent) != 1 {
		t.Fatalf("expected a single grouped mail, got %d", len(env.mailer.sent))
	}
	mail := env.mailer.sent[0]
	if len(mail.to) != 1 || mail.to[0] != "bjorn@example.se" {
		t.Fatalf("unexpected recipients %v", mail.to)
	}
	if !strings.Contains(mail.subject, "2 invoices") {
		t.Fatalf("subject does not announce the group: %q", mail.subject)
	}

	var members int64
	if err := env.db.Model(&actiondomain.FollowUpAction{}).Where("batch_id = ?", resp.BatchID).Count(&members).Error; err != nil {
		t.Fatalf("count batch members: %v", err)
	}
	if members != 2 {
		t.Fatalf("expected 2 batch members after fill, got %d", members)
	}
	for _, a := range resp.Actions {
		if a.InvoiceNumber == "5003" {
			continue
		}
		row := env.loadAction(a.ID)
		if row.DeliveryStatus != actiondomain.StatusSent || row.SentAt == nil {
			t.Fatalf("batch member %s not delivered: status %q", a.InvoiceNumber, row.DeliveryStatus)
		}
		if row.Recipient != "bjorn@example.se" {
			t.Fatalf("recipient not backfilled on %s, got %q", a.InvoiceNumber, row.Recipient)
		}
	}
}

func TestRunBatchSkipsActionWithNoResolvableRecipient(t *testing.T) {
	env := newRunEnv(t)
	due := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	template := env.pendingAction("5001", due)
	template.Recipient = ""
	act := env.seedAction(template)
	env.seedInvoice(openInvoice("00123", "5001", 500, 0))

	report, err := env.sched.RunBatch(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if got := report.OutcomeCounts()[OutcomeSkippedNoRecipient]; got != 1 {
		t.Fatalf("expected 1 skipped_no_recipient, got %d", got)
	}
	if len(env.mailer.sent) != 0 {
		t.Fatalf("expected no mail, got %d", len(env.mailer.sent))
	}
	if row := env.loadAction(act.ID); row.DeliveryStatus != actiondomain.StatusSkippedNoRecipient {
		t.Fatalf("expected status skipped_no_recipient, got %q", row.DeliveryStatus)
	}

	second, err := env.sched.RunBatch(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.DueCount != 0 {
		t.Fatalf("skipped action selected again, due count %d", second.DueCount)
	}
}

func TestRunBatchRetriesTransportFailures(t *testing.T) {
	env := newRunEnv(t)
	due := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	act := env.seedAction(env.pendingAction("5001", due))
	env.seedInvoice(openInvoice("00123", "5001", 500, 0))

	env.mailer.err = errors.New("smtp 451 greylisted")
	report, err := env.sched.RunBatch(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if got := report.OutcomeCounts()[OutcomeFailed]; got != 1 {
		t.Fatalf("expected 1 failed, got %d", got)
	}
	row := env.loadAction(act.ID)
	if row.DeliveryStatus != actiondomain.StatusFailed || row.SentAt != nil {
		t.Fatalf("expected retryable failure, got status %q sent_at %v", row.DeliveryStatus, row.SentAt)
	}

	env.mailer.err = nil
	second, err := env.sched.RunBatch(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.DueCount != 1 {
		t.Fatalf("failed action not retried, due count %d", second.DueCount)
	}
	if got := second.OutcomeCounts()[OutcomeSent]; got != 1 {
		t.Fatalf("expected retry to send, got %d sent", got)
	}
	if row := env.loadAction(act.ID); row.DeliveryStatus != actiondomain.StatusSent {
		t.Fatalf("expected status sent after retry, got %q", row.DeliveryStatus)
	}
}

func TestRunBatchLimitLeavesRestPending(t *testing.T) {
	env := newRunEnv(t)
	due := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	for _, number := range []string{"5001", "5002", "5003"} {
		env.seedAction(env.pendingAction(number, due))
		env.seedInvoice(openInvoice("00123", number, 500, 0))
	}

	report, err := env.sched.RunBatch(context.Background(), RunOptions{Limit: 2})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if report.DueCount != 3 {
		t.Fatalf("due count must report the full backlog, got %d", report.DueCount)
	}
	if len(report.Results) != 2 || len(env.mailer.sent) != 2 {
		t.Fatalf("expected 2 deliveries, got %d results, %d mails", len(report.Results), len(env.mailer.sent))
	}

	var pending int64
	if err := env.db.Model(&actiondomain.FollowUpAction{}).Where("delivery_status = ''").Count(&pending).Error; err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pending != 1 {
		t.Fatalf("expected 1 action left for the next run, got %d", pending)
	}
}

func TestExpireStaleJobHonorsGraceWindow(t *testing.T) {
	env := newRunEnv(t)
	env.clock.Set(time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC))

	stale := env.seedAction(env.pendingAction("5001", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	fresh := env.seedAction(env.pendingAction("5002", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)))
	sentAt := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	deliveredTemplate := env.pendingAction("5003", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	deliveredTemplate.SentAt = &sentAt
	deliveredTemplate.DeliveryStatus = actiondomain.StatusSent
	delivered := env.seedAction(deliveredTemplate)

	if err := env.sched.ExpireStaleJob(context.Background()); err != nil {
		t.Fatalf("expire stale: %v", err)
	}

	if row := env.loadAction(stale.ID); row.DeliveryStatus != actiondomain.StatusExpired {
		t.Fatalf("expected stale action expired, got %q", row.DeliveryStatus)
	}
	if row := env.loadAction(fresh.ID); row.DeliveryStatus != actiondomain.StatusPending {
		t.Fatalf("action inside the grace window expired, got %q", row.DeliveryStatus)
	}
	if row := env.loadAction(delivered.ID); row.DeliveryStatus != actiondomain.StatusSent {
		t.Fatalf("delivered action touched by expiry, got %q", row.DeliveryStatus)
	}
}

func TestRunOnceExpiresSendsAndSyncsReclamations(t *testing.T) {
	env := newRunEnv(t)
	env.clock.Set(time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC))

	stale := env.seedAction(env.pendingAction("4001", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	due := env.seedAction(env.pendingAction("5001", time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)))
	env.seedInvoice(openInvoice("00123", "5001", 500, 0))
	env.seedInvoice(dunnedInvoice("00456", "7001", 2, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)))

	if err := env.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if row := env.loadAction(stale.ID); row.DeliveryStatus != actiondomain.StatusExpired {
		t.Fatalf("expected stale action expired, got %q", row.DeliveryStatus)
	}
	if row := env.loadAction(due.ID); row.DeliveryStatus != actiondomain.StatusSent {
		t.Fatalf("expected due action sent, got %q", row.DeliveryStatus)
	}
	if len(env.mailer.sent) != 1 {
		t.Fatalf("expected one outgoing mail, got %d", len(env.mailer.sent))
	}

	var system []actiondomain.FollowUpAction
	if err := env.db.Where("created_by = ?", actiondomain.SystemActor).Find(&system).Error; err != nil {
		t.Fatalf("load system actions: %v", err)
	}
	if len(system) != 1 {
		t.Fatalf("expected one reclamation action, got %d", len(system))
	}
	if system[0].CustomerExternalID != "00456" || system[0].ActionKind != actiondomain.SystemKind {
		t.Fatalf("unexpected reclamation action %+v", system[0])
	}
	if system[0].SentAt == nil {
		t.Fatalf("reclamation action must be recorded as delivered")
	}
}
