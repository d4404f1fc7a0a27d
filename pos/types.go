/*
Package pos provides the persistence and reconciliation core of the
point-of-sale tool.

PURPOSE:
  Records completed sales (the ledger), keeps running per-product
  totals (the sales aggregates), and defines the storage contract both
  are built on. Receipt rendering and import live in package receipt.

KEY CONCEPTS IN THIS FILE (types.go):
  - Order / OrderLine: one checkout and its product lines
  - NewOrder: what a caller hands to RecordOrder
  - SalesAggregate: derived per-code running totals
  - LedgerLine: an order line joined with its order timestamp

DESIGN PRINCIPLES:
  1. The ledger is authoritative; aggregates can always be rebuilt
  2. Amounts are decimal.Decimal, never float64
  3. Orders are written once and never updated

SEE ALSO:
  - ledger.go: RecordOrder and friends
  - aggregate.go: Sales aggregator
  - store.go: Storage interfaces
*/
package pos

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// OrderID is assigned by the store. Monotonic, never reused.
type OrderID int64

// TimestampLayout is how order and aggregate timestamps are persisted.
const TimestampLayout = "2006-01-02 15:04:05"

// =============================================================================
// ORDERS
// =============================================================================

// OrderLine is one product line within an order.
//
// Name is a historical copy, not a catalog reference: receipts must stay
// accurate after the menu changes.
type OrderLine struct {
	Code      string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// NewLine builds a line with LineTotal = UnitPrice * Quantity.
func NewLine(code, name string, qty int, unitPrice decimal.Decimal) OrderLine {
	return OrderLine{
		Code:      code,
		Name:      name,
		Quantity:  qty,
		UnitPrice: unitPrice,
		LineTotal: unitPrice.Mul(decimal.NewFromInt(int64(qty))),
	}
}

// Order is one persisted checkout transaction with its lines attached.
type Order struct {
	ID         OrderID
	Timestamp  time.Time
	Total      decimal.Decimal
	Paid       decimal.Decimal
	Change     decimal.Decimal
	Employee   string // empty when unknown
	ReceiptKey string // empty when the order has no receipt file
	Lines      []OrderLine
}

// NewOrder is the input to RecordOrder.
type NewOrder struct {
	Lines      []OrderLine
	Total      decimal.Decimal
	Paid       decimal.Decimal
	Change     decimal.Decimal
	Employee   string
	ReceiptKey string
}

// SumLineTotals adds up LineTotal over lines.
func SumLineTotals(lines []OrderLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.LineTotal)
	}
	return sum
}

// =============================================================================
// AGGREGATES
// =============================================================================

// SalesAggregate is the running total for one product code.
type SalesAggregate struct {
	Code          string
	Name          string // last-seen display name
	TotalQuantity int
	TotalRevenue  decimal.Decimal
	LastSold      time.Time
}

// LedgerLine is an order line together with the timestamp of its order.
// Used to rebuild aggregates from the ledger.
type LedgerLine struct {
	OrderID   OrderID
	Timestamp time.Time
	OrderLine
}

// =============================================================================
// HELPERS
// =============================================================================

// ParseAmount parses a decimal amount, tolerating surrounding blanks.
func ParseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}

// MustParseAmount is ParseAmount for literals; invalid input yields zero.
func MustParseAmount(s string) decimal.Decimal {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
