package repository

import (
	"context"

	actiondomain "github.com/smallbiznis/collecta/internal/action/domain"
	"github.com/smallbiznis/collecta/internal/ledger/domain"
	"github.com/smallbiznis/collecta/pkg/db"
)

type reader struct{}

func Provide() domain.Reader {
	return &reader{}
}

func (r *reader) OutstandingByCustomer(ctx context.Context, conn db.LedgerConn, externalID string) ([]domain.Invoice, error) {
	if !conn.Available() {
		return nil, domain.ErrUnavailable
	}
	var invoices []domain.Invoice
	err := conn.WithContext(ctx).Raw(
		`SELECT invoice_type, invoice_number, customer_id, collective, currency,
		        amount, amount_paid, sign, dunning_level, dunning_date, settled,
		        display_ref, due_date
		 FROM ledger_invoices
		 WHERE customer_id = ?
		   AND invoice_type NOT IN ?
		   AND collective IN ?
		   AND settled = ?
		 ORDER BY due_date ASC`,
		externalID,
		domain.ExcludedInvoiceTypes,
		domain.ReceivableCollectives,
		false,
	).Scan(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *reader) FindInvoice(ctx context.Context, conn db.LedgerConn, externalID, invoiceType, invoiceNumber string) (*domain.Invoice, error) {
	if !conn.Available() {
		return nil, domain.ErrUnavailable
	}
	for _, customerID := range customerIDCandidates(externalID, true) {
		var invoice domain.Invoice
		err := conn.WithContext(ctx).Raw(
			`SELECT invoice_type, invoice_number, customer_id, collective, currency,
			        amount, amount_paid, sign, dunning_level, dunning_date, settled,
			        display_ref, due_date
			 FROM ledger_invoices
			 WHERE customer_id = ? AND invoice_type = ? AND invoice_number = ?`,
			customerID,
			invoiceType,
			invoiceNumber,
		).Scan(&invoice).Error
		if err != nil {
			return nil, err
		}
		if invoice.InvoiceNumber != "" {
			return &invoice, nil
		}
	}
	return nil, nil
}

func (r *reader) ListDunning(ctx context.Context, conn db.LedgerConn, externalID string, levels []int) ([]domain.Invoice, error) {
	if !conn.Available() {
		return nil, domain.ErrUnavailable
	}
	if len(levels) == 0 {
		levels = domain.DunningLevels
	}
	stmt := conn.WithContext(ctx).
		Table("ledger_invoices").
		Where("dunning_level IN ?", levels).
		Where("dunning_date IS NOT NULL").
		Where("invoice_type NOT IN ?", domain.ExcludedInvoiceTypes).
		Where("collective IN ?", domain.ReceivableCollectives).
		Where("settled = ?", false)
	if externalID != "" {
		stmt = stmt.Where("customer_id = ?", externalID)
	}
	var invoices []domain.Invoice
	err := stmt.
		Order("customer_id asc, due_date asc").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *reader) FindCustomer(ctx context.Context, conn db.LedgerConn, externalID string) (*domain.Customer, error) {
	if !conn.Available() {
		return nil, domain.ErrUnavailable
	}
	for _, customerID := range customerIDCandidates(externalID, false) {
		var customer domain.Customer
		err := conn.WithContext(ctx).Raw(
			`SELECT id, name, tax_id, company_tax_id
			 FROM ledger_customers
			 WHERE id = ?`,
			customerID,
		).Scan(&customer).Error
		if err != nil {
			return nil, err
		}
		if customer.ID != "" {
			return &customer, nil
		}
	}
	return nil, nil
}

// customerIDCandidates lists the id formats a lookup should try. Padded
// yields the fixed-width ledger form, otherwise the stripped one.
func customerIDCandidates(externalID string, padded bool) []string {
	candidates := []string{externalID}
	alt := externalID
	if padded {
		if internal, err := actiondomain.CustomerInternalID(externalID); err == nil {
			alt = actiondomain.LedgerCustomerID(internal)
		}
	} else {
		alt = actiondomain.NormalizeCustomerID(externalID)
	}
	if alt != "" && alt != externalID {
		candidates = append(candidates, alt)
	}
	return candidates
}
