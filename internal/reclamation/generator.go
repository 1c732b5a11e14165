package reclamation

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	actiondomain "github.com/smallbiznis/collecta/internal/action/domain"
	"github.com/smallbiznis/collecta/internal/clock"
	ledgerdomain "github.com/smallbiznis/collecta/internal/ledger/domain"
	"github.com/smallbiznis/collecta/internal/observability/metrics"
	"github.com/smallbiznis/collecta/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Stats summarizes one sync pass over the ledger's dunning state.
type Stats struct {
	Processed int
	Created   int
	Existing  int
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Conn    db.LedgerConn
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Reader  ledgerdomain.Reader
	Actions actiondomain.Repository
}

// Generator materializes the ERP's dunning notices as follow-up actions
// so the action history shows what the ERP already sent. Generated rows
// are recorded as delivered and never picked up by SelectDue.
type Generator struct {
	db      *gorm.DB
	conn    db.LedgerConn
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	reader  ledgerdomain.Reader
	actions actiondomain.Repository
}

func New(p Params) *Generator {
	return &Generator{
		db:      p.DB,
		conn:    p.Conn,
		log:     p.Log.Named("reclamation.generator"),
		genID:   p.GenID,
		clock:   p.Clock,
		reader:  p.Reader,
		actions: p.Actions,
	}
}

func (g *Generator) SyncAll(ctx context.Context) (Stats, error) {
	return g.sync(ctx, "")
}

func (g *Generator) SyncCustomer(ctx context.Context, externalID string) (Stats, error) {
	return g.sync(ctx, externalID)
}

// sync is idempotent: an action already recorded for the same invoice
// and dunning level is never duplicated, regardless of how the customer
// id was formatted when it was first written.
func (g *Generator) sync(ctx context.Context, externalID string) (Stats, error) {
	invoices, err := g.reader.ListDunning(ctx, g.conn, externalID, ledgerdomain.DunningLevels)
	if err != nil {
		return Stats{}, fmt.Errorf("list dunning invoices: %w", err)
	}

	var stats Stats
	for _, invoice := range invoices {
		stats.Processed++

		existing, err := g.actions.FindSystemAction(ctx, g.db, invoice.InvoiceType, invoice.InvoiceNumber, invoice.DunningLevel)
		if err != nil {
			g.log.Warn("reclamation.lookup_failed",
				zap.String("invoice", invoice.InvoiceType+"-"+invoice.InvoiceNumber),
				zap.Int("level", invoice.DunningLevel),
				zap.Error(err),
			)
			continue
		}
		if existing != nil {
			stats.Existing++
			continue
		}

		action, err := g.buildAction(invoice)
		if err != nil {
			g.log.Warn("reclamation.skip_invoice",
				zap.String("customer_id", invoice.CustomerID),
				zap.String("invoice", invoice.InvoiceType+"-"+invoice.InvoiceNumber),
				zap.Error(err),
			)
			continue
		}
		if err := g.actions.Insert(ctx, g.db, action); err != nil {
			g.log.Warn("reclamation.create_failed",
				zap.String("invoice", invoice.InvoiceType+"-"+invoice.InvoiceNumber),
				zap.Int("level", invoice.DunningLevel),
				zap.Error(err),
			)
			continue
		}

		stats.Created++
		metrics.Scheduler().AddReclamationsCreated(1)
	}

	g.log.Info("reclamation.sync.done",
		zap.Int("processed", stats.Processed),
		zap.Int("created", stats.Created),
		zap.Int("existing", stats.Existing),
	)
	return stats, nil
}

func (g *Generator) buildAction(invoice ledgerdomain.Invoice) (*actiondomain.FollowUpAction, error) {
	internalID, err := actiondomain.CustomerInternalID(invoice.CustomerID)
	if err != nil {
		return nil, err
	}

	now := g.clock.Now()
	return &actiondomain.FollowUpAction{
		ID:                 g.genID.Generate(),
		CustomerExternalID: invoice.CustomerID,
		CustomerInternalID: internalID,
		InvoiceType:        invoice.InvoiceType,
		InvoiceNumber:      invoice.InvoiceNumber,
		ActionKind:         actiondomain.SystemKind,
		Description:        fmt.Sprintf("Automatic dunning notice level %d", invoice.DunningLevel),
		DueAt:              invoice.DunningDate,
		CreatedBy:          actiondomain.SystemActor,
		Recipient:          actiondomain.SystemActor,
		DeliveryStatus:     actiondomain.StatusSent,
		SentAt:             invoice.DunningDate,
		CreatedAt:          now,
		ModifiedBy:         actiondomain.SystemActor,
		ModifiedAt:         now,
	}, nil
}

var Module = fx.Module("reclamation",
	fx.Provide(New),
)
