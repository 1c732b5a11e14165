package reconcile

import (
	"context"
	"errors"
	"testing"

	actiondomain "github.com/smallbiznis/collecta/internal/action/domain"
	ledgerdomain "github.com/smallbiznis/collecta/internal/ledger/domain"
	"github.com/smallbiznis/collecta/pkg/db"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// -- Mocks --

type readerMock struct {
	open          map[string][]ledgerdomain.Invoice
	openErr       error
	openCalls     int
	pointResult   *ledgerdomain.Invoice
	pointErr      error
	pointCalls    int
	customer      *ledgerdomain.Customer
	customerCalls int
}

func (m *readerMock) OutstandingByCustomer(ctx context.Context, conn db.LedgerConn, externalID string) ([]ledgerdomain.Invoice, error) {
	m.openCalls++
	if m.openErr != nil {
		return nil, m.openErr
	}
	return m.open[externalID], nil
}

func (m *readerMock) FindInvoice(ctx context.Context, conn db.LedgerConn, externalID, invoiceType, invoiceNumber string) (*ledgerdomain.Invoice, error) {
	m.pointCalls++
	if m.pointErr != nil {
		return nil, m.pointErr
	}
	return m.pointResult, nil
}

func (m *readerMock) ListDunning(ctx context.Context, conn db.LedgerConn, externalID string, levels []int) ([]ledgerdomain.Invoice, error) {
	return nil, nil
}

func (m *readerMock) FindCustomer(ctx context.Context, conn db.LedgerConn, externalID string) (*ledgerdomain.Customer, error) {
	m.customerCalls++
	return m.customer, nil
}

func newTestChecker(reader ledgerdomain.Reader) *Checker {
	return New(Params{
		Conn:   db.LedgerConn{},
		Log:    zap.NewNop(),
		Reader: reader,
	})
}

func testAction(number string) actiondomain.FollowUpAction {
	return actiondomain.FollowUpAction{
		CustomerExternalID: "00123",
		CustomerInternalID: 123,
		InvoiceType:        "FA",
		InvoiceNumber:      number,
	}
}

// -- Tests --

func TestCheck_OutstandingInvoiceStays(t *testing.T) {
	reader := &readerMock{
		open: map[string][]ledgerdomain.Invoice{
			"00123": {{InvoiceType: "FA", InvoiceNumber: "5001", Amount: 500, AmountPaid: 0, Sign: 1, DisplayRef: "SE0025001972"}},
		},
		customer: &ledgerdomain.Customer{ID: "123", Name: "Bergström AB"},
	}
	pass := newTestChecker(reader).NewPass()

	result := pass.Check(context.Background(), testAction("5001"))
	assert.True(t, result.StillOutstanding)
	assert.Equal(t, "Bergström AB", result.DisplayName)
	assert.Equal(t, "SE0025001972", result.DisplayRef)
}

func TestCheck_PaidInvoiceSkips(t *testing.T) {
	reader := &readerMock{
		open: map[string][]ledgerdomain.Invoice{
			"00123": {{InvoiceType: "FA", InvoiceNumber: "5001", Amount: 500, AmountPaid: 500, Sign: 1}},
		},
	}
	pass := newTestChecker(reader).NewPass()

	result := pass.Check(context.Background(), testAction("5001"))
	assert.False(t, result.StillOutstanding)
}

func TestCheck_MissingInvoiceConfirmedByPointLookup(t *testing.T) {
	// Not in the open set and the point lookup misses too: resolved.
	reader := &readerMock{open: map[string][]ledgerdomain.Invoice{}}
	pass := newTestChecker(reader).NewPass()

	result := pass.Check(context.Background(), testAction("5001"))
	assert.False(t, result.StillOutstanding)
	assert.Equal(t, 1, reader.pointCalls)

	// Absent from the open set but the point lookup still knows it:
	// the open-set filters hid it, keep the action in the batch.
	reader = &readerMock{
		open:        map[string][]ledgerdomain.Invoice{},
		pointResult: &ledgerdomain.Invoice{InvoiceType: "FA", InvoiceNumber: "5002", Amount: 300, Sign: 1},
	}
	pass = newTestChecker(reader).NewPass()

	result = pass.Check(context.Background(), testAction("5002"))
	assert.True(t, result.StillOutstanding)
}

func TestCheck_FailsOpenOnLedgerError(t *testing.T) {
	reader := &readerMock{openErr: errors.New("connection reset")}
	pass := newTestChecker(reader).NewPass()

	result := pass.Check(context.Background(), testAction("5001"))
	assert.True(t, result.StillOutstanding)

	reader = &readerMock{
		open:     map[string][]ledgerdomain.Invoice{},
		pointErr: errors.New("connection reset"),
	}
	pass = newTestChecker(reader).NewPass()

	result = pass.Check(context.Background(), testAction("5001"))
	assert.True(t, result.StillOutstanding)
}

func TestCheck_MemoizesPerCustomerPerPass(t *testing.T) {
	reader := &readerMock{
		open: map[string][]ledgerdomain.Invoice{
			"00123": {
				{InvoiceType: "FA", InvoiceNumber: "5001", Amount: 500, Sign: 1},
				{InvoiceType: "FA", InvoiceNumber: "5002", Amount: 200, Sign: 1},
			},
		},
		customer: &ledgerdomain.Customer{ID: "123", Name: "Bergström AB"},
	}
	checker := newTestChecker(reader)
	pass := checker.NewPass()

	pass.Check(context.Background(), testAction("5001"))
	pass.Check(context.Background(), testAction("5002"))
	assert.Equal(t, 1, reader.openCalls)
	assert.Equal(t, 1, reader.customerCalls)

	// A new pass starts cold.
	checker.NewPass().Check(context.Background(), testAction("5001"))
	assert.Equal(t, 2, reader.openCalls)
}

func TestCheck_ErrorsAreNotCached(t *testing.T) {
	reader := &readerMock{openErr: errors.New("timeout")}
	pass := newTestChecker(reader).NewPass()

	pass.Check(context.Background(), testAction("5001"))
	reader.openErr = nil
	reader.open = map[string][]ledgerdomain.Invoice{
		"00123": {{InvoiceType: "FA", InvoiceNumber: "5002", Amount: 100, Sign: 1}},
	}

	// The failed load was not cached, so the retry hits the ledger again.
	result := pass.Check(context.Background(), testAction("5002"))
	assert.True(t, result.StillOutstanding)
	assert.Equal(t, 2, reader.openCalls)
}
