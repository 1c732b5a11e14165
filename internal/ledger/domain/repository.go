package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/collecta/pkg/db"
)

// ErrUnavailable is returned when no ledger connection was configured.
// Callers treat it like any other ledger outage and fail open.
var ErrUnavailable = errors.New("ledger_unavailable")

// Reader is the read-only view onto the ERP's receivables ledger. The
// connection is passed per call so tests can point it at an in-memory
// database.
type Reader interface {
	// OutstandingByCustomer returns the customer's open items with the
	// fixed business filters applied, ordered by due date. The id must be
	// in the ledger's fixed-width external form.
	OutstandingByCustomer(ctx context.Context, conn db.LedgerConn, externalID string) ([]Invoice, error)

	// FindInvoice is a point lookup without the collective filter. It
	// tries the id as given, then the padded ledger form.
	FindInvoice(ctx context.Context, conn db.LedgerConn, externalID, invoiceType, invoiceNumber string) (*Invoice, error)

	// ListDunning returns open items carrying one of the given dunning
	// levels and a dunning date. An empty externalID means all customers.
	ListDunning(ctx context.Context, conn db.LedgerConn, externalID string, levels []int) ([]Invoice, error)

	// FindCustomer resolves the master-data row for display names. It
	// tries the id as given, then the normalized form.
	FindCustomer(ctx context.Context, conn db.LedgerConn, externalID string) (*Customer, error)
}
