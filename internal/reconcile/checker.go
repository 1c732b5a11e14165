package reconcile

import (
	"context"
	"strconv"

	actiondomain "github.com/smallbiznis/collecta/internal/action/domain"
	ledgerdomain "github.com/smallbiznis/collecta/internal/ledger/domain"
	"github.com/smallbiznis/collecta/internal/observability/metrics"
	"github.com/smallbiznis/collecta/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Result is the verdict for one action. DisplayName and DisplayRef are
// best-effort enrichment for the outgoing message; they may be empty.
type Result struct {
	StillOutstanding bool
	DisplayName      string
	DisplayRef       string
}

type Params struct {
	fx.In

	Conn   db.LedgerConn
	Log    *zap.Logger
	Reader ledgerdomain.Reader
}

// Checker reconciles follow-up actions against the receivables ledger.
// It is long-lived; per-run caches live on the Pass.
type Checker struct {
	conn   db.LedgerConn
	log    *zap.Logger
	reader ledgerdomain.Reader
}

func New(p Params) *Checker {
	return &Checker{
		conn:   p.Conn,
		log:    p.Log.Named("reconcile.checker"),
		reader: p.Reader,
	}
}

// Pass caches ledger reads for the duration of one delivery run: the
// open-item set and display name are loaded at most once per customer.
// Failed open-item loads are not cached so a transient outage does not
// poison the rest of the run.
type Pass struct {
	checker *Checker
	open    map[string][]ledgerdomain.Invoice
	names   map[string]string
}

func (c *Checker) NewPass() *Pass {
	return &Pass{
		checker: c,
		open:    make(map[string][]ledgerdomain.Invoice),
		names:   make(map[string]string),
	}
}

// Check decides whether the action's invoice is still outstanding. Any
// ledger failure fails open: the action stays in the batch.
func (p *Pass) Check(ctx context.Context, action actiondomain.FollowUpAction) Result {
	key := strconv.FormatInt(action.CustomerInternalID, 10)

	invoices, cached := p.open[key]
	if !cached {
		ledgerID := actiondomain.LedgerCustomerID(action.CustomerInternalID)
		rows, err := p.checker.reader.OutstandingByCustomer(ctx, p.checker.conn, ledgerID)
		if err != nil {
			p.checker.log.Warn("reconcile.check.failed",
				zap.String("customer_id", action.CustomerExternalID),
				zap.String("invoice", action.Ref().String()),
				zap.Error(err),
			)
			metrics.Scheduler().IncLedgerPass("error")
			return Result{StillOutstanding: true, DisplayName: p.displayName(ctx, action)}
		}
		p.open[key] = rows
		invoices = rows
	}

	var match *ledgerdomain.Invoice
	for i := range invoices {
		if invoices[i].InvoiceType == action.InvoiceType && invoices[i].InvoiceNumber == action.InvoiceNumber {
			match = &invoices[i]
			break
		}
	}

	if match == nil {
		// Not in the open set; confirm with a point lookup before calling
		// the invoice resolved.
		invoice, err := p.checker.reader.FindInvoice(ctx, p.checker.conn, action.CustomerExternalID, action.InvoiceType, action.InvoiceNumber)
		if err != nil {
			p.checker.log.Warn("reconcile.check.failed",
				zap.String("customer_id", action.CustomerExternalID),
				zap.String("invoice", action.Ref().String()),
				zap.Error(err),
			)
			metrics.Scheduler().IncLedgerPass("error")
			return Result{StillOutstanding: true, DisplayName: p.displayName(ctx, action)}
		}
		if invoice == nil {
			metrics.Scheduler().IncLedgerPass("missing")
			return Result{StillOutstanding: false, DisplayName: p.displayName(ctx, action)}
		}
		match = invoice
	}

	result := Result{
		StillOutstanding: match.Outstanding(),
		DisplayName:      p.displayName(ctx, action),
		DisplayRef:       match.DisplayRef,
	}
	if result.StillOutstanding {
		metrics.Scheduler().IncLedgerPass("open")
	} else {
		metrics.Scheduler().IncLedgerPass("settled")
	}
	return result
}

// displayName resolves and memoizes the customer's ledger name. A lookup
// failure degrades to an empty name, never to an error.
func (p *Pass) displayName(ctx context.Context, action actiondomain.FollowUpAction) string {
	key := strconv.FormatInt(action.CustomerInternalID, 10)
	if name, ok := p.names[key]; ok {
		return name
	}

	name := ""
	customer, err := p.checker.reader.FindCustomer(ctx, p.checker.conn, action.CustomerExternalID)
	if err != nil {
		p.checker.log.Debug("reconcile.name.lookup_failed",
			zap.String("customer_id", action.CustomerExternalID),
			zap.Error(err),
		)
	} else if customer != nil {
		name = customer.Name
	}

	p.names[key] = name
	return name
}

var Module = fx.Module("reconcile",
	fx.Provide(New),
)
