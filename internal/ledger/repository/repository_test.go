package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/collecta/internal/ledger/domain"
	"github.com/smallbiznis/collecta/pkg/db"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func openLedger(t *testing.T) db.LedgerConn {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

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

func seedInvoice(t *testing.T, conn db.LedgerConn, inv domain.Invoice) {
	t.Helper()
	err := conn.Exec(`
		INSERT INTO ledger_invoices (invoice_type, invoice_number, customer_id, collective, currency,
			amount, amount_paid, sign, dunning_level, dunning_date, settled, display_ref, due_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inv.InvoiceType, inv.InvoiceNumber, inv.CustomerID, inv.Collective, inv.Currency,
		inv.Amount, inv.AmountPaid, inv.Sign, inv.DunningLevel, inv.DunningDate, inv.Settled,
		inv.DisplayRef, inv.DueDate).Error
	if err != nil {
		t.Fatalf("seed invoice %s-%s: %v", inv.InvoiceType, inv.InvoiceNumber, err)
	}
}

func due(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

func TestOutstandingByCustomer_Filters(t *testing.T) {
	conn := openLedger(t)
	reader := Provide()

	seedInvoice(t, conn, domain.Invoice{InvoiceType: "FA", InvoiceNumber: "late", CustomerID: "00123", Collective: "4300", Amount: 500, Sign: 1, DueDate: due(2024, 1, 20)})
	seedInvoice(t, conn, domain.Invoice{InvoiceType: "FA", InvoiceNumber: "early", CustomerID: "00123", Collective: "4302", Amount: 200, Sign: 1, DueDate: due(2024, 1, 5)})
	// Filtered out: internal clearing type, foreign collective, settled, other customer.
	seedInvoice(t, conn, domain.Invoice{InvoiceType: "AA", InvoiceNumber: "clearing", CustomerID: "00123", Collective: "4300", Amount: 100, Sign: 1, DueDate: due(2024, 1, 1)})
	seedInvoice(t, conn, domain.Invoice{InvoiceType: "FA", InvoiceNumber: "other-book", CustomerID: "00123", Collective: "9999", Amount: 100, Sign: 1, DueDate: due(2024, 1, 1)})
	seedInvoice(t, conn, domain.Invoice{InvoiceType: "FA", InvoiceNumber: "settled", CustomerID: "00123", Collective: "4300", Amount: 100, Sign: 1, Settled: true, DueDate: due(2024, 1, 1)})
	seedInvoice(t, conn, domain.Invoice{InvoiceType: "FA", InvoiceNumber: "foreign", CustomerID: "00456", Collective: "4300", Amount: 100, Sign: 1, DueDate: due(2024, 1, 1)})

	invoices, err := reader.OutstandingByCustomer(context.Background(), conn, "00123")
	if err != nil {
		t.Fatalf("outstanding by customer: %v", err)
	}

	numbers := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		numbers = append(numbers, inv.InvoiceNumber)
	}
	assert.Equal(t, []string{"early", "late"}, numbers)
}

func TestInvoice_OutstandingPredicate(t *testing.T) {
	tests := []struct {
		name string
		inv  domain.Invoice
		want bool
	}{
		{"unpaid invoice", domain.Invoice{Sign: 1, Amount: 500, AmountPaid: 0}, true},
		{"partially paid invoice", domain.Invoice{Sign: 1, Amount: 500, AmountPaid: 499}, true},
		{"fully paid invoice", domain.Invoice{Sign: 1, Amount: 500, AmountPaid: 500}, false},
		{"open credit note", domain.Invoice{Sign: -1, Amount: -200, Settled: false}, true},
		{"settled credit note", domain.Invoice{Sign: -1, Amount: -200, Settled: true}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.inv.Outstanding())
		})
	}
}

func TestFindInvoice_PaddedFallback(t *testing.T) {
	conn := openLedger(t)
	reader := Provide()

	seedInvoice(t, conn, domain.Invoice{InvoiceType: "FA", InvoiceNumber: "5001", CustomerID: "00123", Collective: "4300", Amount: 500, Sign: 1, DisplayRef: "SE0025001972"})

	// The ledger stores the padded form; the stripped form must still hit.
	inv, err := reader.FindInvoice(context.Background(), conn, "123", "FA", "5001")
	if err != nil {
		t.Fatalf("find invoice: %v", err)
	}
	if inv == nil {
		t.Fatal("expected invoice via padded fallback")
	}
	assert.Equal(t, "SE0025001972", inv.DisplayRef)

	inv, err = reader.FindInvoice(context.Background(), conn, "00123", "FA", "5001")
	if err != nil {
		t.Fatalf("find invoice: %v", err)
	}
	assert.NotNil(t, inv)

	missing, err := reader.FindInvoice(context.Background(), conn, "123", "FA", "9999")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindCustomer_NormalizedFallback(t *testing.T) {
	conn := openLedger(t)
	reader := Provide()

	if err := conn.Exec(`INSERT INTO ledger_customers (id, name) VALUES (?, ?)`, "123", "Bergström AB").Error; err != nil {
		t.Fatalf("seed customer: %v", err)
	}

	customer, err := reader.FindCustomer(context.Background(), conn, "00123")
	if err != nil {
		t.Fatalf("find customer: %v", err)
	}
	if customer == nil {
		t.Fatal("expected customer via normalized fallback")
	}
	assert.Equal(t, "Bergström AB", customer.Name)
}

func TestListDunning_Filters(t *testing.T) {
	conn := openLedger(t)
	reader := Provide()

	seedInvoice(t, conn, domain.Invoice{InvoiceType: "FA", InvoiceNumber: "level2", CustomerID: "00123", Collective: "4300", Amount: 100, Sign: 1, DunningLevel: 2, DunningDate: due(2024, 1, 10), DueDate: due(2024, 1, 1)})
	seedInvoice(t, conn, domain.Invoice{InvoiceType: "FA", InvoiceNumber: "level1-other", CustomerID: "00456", Collective: "4302", Amount: 100, Sign: 1, DunningLevel: 1, DunningDate: due(2024, 1, 12), DueDate: due(2024, 1, 2)})
	// Filtered out: no dunning yet, dunning without a date, settled.
	seedInvoice(t, conn, domain.Invoice{InvoiceType: "FA", InvoiceNumber: "fresh", CustomerID: "00123", Collective: "4300", Amount: 100, Sign: 1, DunningLevel: 0, DueDate: due(2024, 1, 3)})
	seedInvoice(t, conn, domain.Invoice{InvoiceType: "FA", InvoiceNumber: "dateless", CustomerID: "00123", Collective: "4300", Amount: 100, Sign: 1, DunningLevel: 1, DueDate: due(2024, 1, 4)})
	seedInvoice(t, conn, domain.Invoice{InvoiceType: "FA", InvoiceNumber: "settled", CustomerID: "00123", Collective: "4300", Amount: 100, Sign: 1, DunningLevel: 3, DunningDate: due(2024, 1, 8), Settled: true, DueDate: due(2024, 1, 5)})

	all, err := reader.ListDunning(context.Background(), conn, "", nil)
	if err != nil {
		t.Fatalf("list dunning: %v", err)
	}
	numbers := make([]string, 0, len(all))
	for _, inv := range all {
		numbers = append(numbers, inv.InvoiceNumber)
	}
	assert.Equal(t, []string{"level2", "level1-other"}, numbers)

	one, err := reader.ListDunning(context.Background(), conn, "00456", nil)
	if err != nil {
		t.Fatalf("list dunning for customer: %v", err)
	}
	if assert.Len(t, one, 1) {
		assert.Equal(t, "level1-other", one[0].InvoiceNumber)
	}
}

func TestReader_Unavailable(t *testing.T) {
	reader := Provide()
	var conn db.LedgerConn

	_, err := reader.OutstandingByCustomer(context.Background(), conn, "00123")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	_, err = reader.FindInvoice(context.Background(), conn, "00123", "FA", "1")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	_, err = reader.ListDunning(context.Background(), conn, "", nil)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	_, err = reader.FindCustomer(context.Background(), conn, "00123")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}
