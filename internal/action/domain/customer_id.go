package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ledgerCustomerWidth is the fixed width of customer ids on the ledger
// side. "123" is stored there as "00123".
const ledgerCustomerWidth = 5

// NormalizeCustomerID strips the ledger's zero padding from an external
// customer id. The result is the canonical internal form.
func NormalizeCustomerID(raw string) string {
	trimmed := strings.TrimSpace(raw)
	stripped := strings.TrimLeft(trimmed, "0")
	if stripped == "" && trimmed != "" {
		return "0"
	}
	return stripped
}

// CustomerInternalID parses an external or normalized customer id into
// its numeric internal form.
func CustomerInternalID(raw string) (int64, error) {
	normalized := NormalizeCustomerID(raw)
	if normalized == "" {
		return 0, ErrInvalidCustomer
	}
	id, err := strconv.ParseInt(normalized, 10, 64)
	if err != nil {
		return 0, ErrInvalidCustomer
	}
	return id, nil
}

// LedgerCustomerID renders an internal id in the ledger's zero-padded
// external form.
func LedgerCustomerID(internal int64) string {
	return fmt.Sprintf("%0*d", ledgerCustomerWidth, internal)
}
