package pos

import (
	"github.com/shopspring/decimal"
)

// Cart accumulates lines for a checkout that has not been recorded yet.
// Adding a code already in the cart increases its quantity.
type Cart struct {
	items []cartItem
}

type cartItem struct {
	code      string
	name      string
	unitPrice decimal.Decimal
	qty       int
}

// Add puts qty of an item in the cart, merging with an existing line for
// the same code. The first price seen for a code is kept.
func (c *Cart) Add(code, name string, unitPrice decimal.Decimal, qty int) error {
	if code == "" {
		return Invalid("code", "must not be empty")
	}
	if qty <= 0 {
		return Invalid("quantity", "must be positive, got %d", qty)
	}
	for i := range c.items {
		if c.items[i].code == code {
			c.items[i].qty += qty
			return nil
		}
	}
	c.items = append(c.items, cartItem{code: code, name: name, unitPrice: unitPrice, qty: qty})
	return nil
}

// Remove drops the line at index. Out-of-range indexes are ignored.
func (c *Cart) Remove(index int) {
	if index < 0 || index >= len(c.items) {
		return
	}
	c.items = append(c.items[:index], c.items[index+1:]...)
}

// Clear empties the cart.
func (c *Cart) Clear() { c.items = nil }

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool { return len(c.items) == 0 }

// Len returns the number of distinct lines.
func (c *Cart) Len() int { return len(c.items) }

// Lines returns the cart as order lines, in the order codes were first added.
func (c *Cart) Lines() []OrderLine {
	lines := make([]OrderLine, len(c.items))
	for i, it := range c.items {
		lines[i] = NewLine(it.code, it.name, it.qty, it.unitPrice)
	}
	return lines
}

// Subtotal is the sum of all line totals.
func (c *Cart) Subtotal() decimal.Decimal {
	return SumLineTotals(c.Lines())
}
