package domain

import "time"

// Fixed business filters for the receivables ledger. Internal clearing
// types never carry real receivables, and only the two receivable
// collectives are in scope for follow-up.
var (
	ExcludedInvoiceTypes  = []string{"AA", "ZZ"}
	ReceivableCollectives = []string{"4300", "4302"}
)

// DunningLevels are the reminder stages the ERP tracks on open items.
var DunningLevels = []int{1, 2, 3}

// Invoice is one accounts-receivable line as the ERP exposes it. The
// ledger belongs to the ERP; collecta only ever reads these rows.
type Invoice struct {
	InvoiceType   string     `gorm:"column:invoice_type" json:"invoice_type"`
	InvoiceNumber string     `gorm:"column:invoice_number" json:"invoice_number"`
	CustomerID    string     `gorm:"column:customer_id" json:"customer_id"`
	Collective    string     `gorm:"column:collective" json:"collective"`
	Currency      string     `gorm:"column:currency" json:"currency"`
	Amount        float64    `gorm:"column:amount" json:"amount"`
	AmountPaid    float64    `gorm:"column:amount_paid" json:"amount_paid"`
	Sign          int        `gorm:"column:sign" json:"sign"`
	DunningLevel  int        `gorm:"column:dunning_level" json:"dunning_level"`
	DunningDate   *time.Time `gorm:"column:dunning_date" json:"dunning_date,omitempty"`
	Settled       bool       `gorm:"column:settled" json:"settled"`
	DisplayRef    string     `gorm:"column:display_ref" json:"display_ref"`
	DueDate       *time.Time `gorm:"column:due_date" json:"due_date,omitempty"`
}

// Outstanding reports whether the line still needs collecting. A normal
// invoice is outstanding while something remains unpaid; a credit note
// (negative sign) is outstanding until the ERP marks it settled.
func (i Invoice) Outstanding() bool {
	if i.Sign < 0 {
		return !i.Settled
	}
	return i.Amount-i.AmountPaid > 0
}

// DisplayReference prefers the ERP's human document number over the raw
// type/number pair.
func (i Invoice) DisplayReference() string {
	if i.DisplayRef != "" {
		return i.DisplayRef
	}
	return i.InvoiceType + "-" + i.InvoiceNumber
}

// Customer is the ledger-side master-data row, read only to put display
// names on outgoing messages.
type Customer struct {
	ID           string `gorm:"column:id" json:"id"`
	Name         string `gorm:"column:name" json:"name"`
	TaxID        string `gorm:"column:tax_id" json:"tax_id,omitempty"`
	CompanyTaxID string `gorm:"column:company_tax_id" json:"company_tax_id,omitempty"`
}
