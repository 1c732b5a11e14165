package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	actiondomain "github.com/smallbiznis/collecta/internal/action/domain"
	"github.com/smallbiznis/collecta/internal/config"
	consultantdomain "github.com/smallbiznis/collecta/internal/consultant/domain"
	"github.com/smallbiznis/collecta/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrNoRecipient means no address could be resolved for the action: no
// stored recipient, no consultant, no assignment with an email behind it.
var ErrNoRecipient = errors.New("no_recipient")

// Input is one action ready for delivery, enriched by the reconcile
// pass with the ledger's display name and document reference.
type Input struct {
	Action      actiondomain.FollowUpAction
	DisplayName string
	DisplayRef  string
}

// GroupInput is a set of actions sharing a batch and a consultant,
// delivered as one message.
type GroupInput struct {
	Items []Input
}

// SendResult reports how a delivery went. ConsultantID is the consultant
// the recipient was resolved through, for backfill onto the action.
type SendResult struct {
	Recipient    string
	ConsultantID snowflake.ID
	Err          error
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Provider  email.Provider
	Directory consultantdomain.Service
	Config    config.Config
}

// Dispatcher turns due actions into outgoing messages.
type Dispatcher struct {
	log       *zap.Logger
	provider  email.Provider
	directory consultantdomain.Service
	portalURL string
}

func New(p Params) *Dispatcher {
	return &Dispatcher{
		log:       p.Log.Named("dispatch"),
		provider:  p.Provider,
		directory: p.Directory,
		portalURL: p.Config.PortalURL,
	}
}

func (d *Dispatcher) SendSingle(ctx context.Context, in Input) SendResult {
	recipient, consultantID, err := d.resolveRecipient(ctx, in.Action)
	if err != nil {
		return SendResult{Err: err}
	}

	subject := fmt.Sprintf("[Collecta] Action (%s) - customer %s",
		in.Action.ActionKind, in.Action.CustomerExternalID)
	body, err := renderSingle(in, d.portalURL)
	if err != nil {
		return SendResult{Recipient: recipient, ConsultantID: consultantID, Err: err}
	}

	if err := d.provider.Send(ctx, []string{recipient}, subject, body); err != nil {
		d.log.Warn("dispatch.send.failed",
			zap.String("action_id", in.Action.ID.String()),
			zap.String("recipient", recipient),
			zap.Error(err),
		)
		return SendResult{Recipient: recipient, ConsultantID: consultantID, Err: err}
	}

	d.log.Debug("dispatch.send.ok",
		zap.String("action_id", in.Action.ID.String()),
		zap.String("recipient", recipient),
	)
	return SendResult{Recipient: recipient, ConsultantID: consultantID}
}

func (d *Dispatcher) SendGroup(ctx context.Context, in GroupInput) SendResult {
	if len(in.Items) == 0 {
		return SendResult{Err: fmt.Errorf("send group: empty group")}
	}

	first := in.Items[0].Action
	recipient, consultantID, err := d.resolveRecipient(ctx, first)
	if err != nil {
		return SendResult{Err: err}
	}

	subject := fmt.Sprintf("[Collecta] Grouped actions (%s) - customer %s - %d invoices",
		first.ActionKind, first.CustomerExternalID, len(in.Items))
	body, err := renderGroup(in, d.portalURL)
	if err != nil {
		return SendResult{Recipient: recipient, ConsultantID: consultantID, Err: err}
	}

	if err := d.provider.Send(ctx, []string{recipient}, subject, body); err != nil {
		d.log.Warn("dispatch.send.failed",
			zap.String("batch_id", first.BatchID.String()),
			zap.String("recipient", recipient),
			zap.Int("actions", len(in.Items)),
			zap.Error(err),
		)
		return SendResult{Recipient: recipient, ConsultantID: consultantID, Err: err}
	}

	d.log.Debug("dispatch.send.ok",
		zap.String("batch_id", first.BatchID.String()),
		zap.String("recipient", recipient),
		zap.Int("actions", len(in.Items)),
	)
	return SendResult{Recipient: recipient, ConsultantID: consultantID}
}

// resolveRecipient walks the address priority: the recipient stored on
// the action, then the assigned consultant, then the customer's latest
// assignment (whose consultant id is reported back for backfill).
func (d *Dispatcher) resolveRecipient(ctx context.Context, action actiondomain.FollowUpAction) (string, snowflake.ID, error) {
	if action.Recipient != "" {
		return action.Recipient, action.ConsultantID, nil
	}

	if action.ConsultantID != 0 {
		addr, err := d.directory.ResolveEmail(ctx, action.ConsultantID)
		if err != nil {
			return "", 0, fmt.Errorf("resolve consultant email: %w", err)
		}
		if addr != "" {
			return addr, action.ConsultantID, nil
		}
	}

	consultant, err := d.directory.ResolveAssigned(ctx, action.CustomerInternalID)
	if err != nil {
		return "", 0, fmt.Errorf("resolve assigned consultant: %w", err)
	}
	if consultant != nil && consultant.Email != "" {
		return consultant.Email, consultant.ID, nil
	}

	return "", 0, ErrNoRecipient
}

var Module = fx.Module("dispatch",
	fx.Provide(New),
)
