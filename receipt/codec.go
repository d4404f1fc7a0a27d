/*
Package receipt renders, parses and imports plain-text receipt files.

PURPOSE:
  A receipt file is the human-readable twin of one Order. Checkout
  writes it before the order is recorded; the importer can rebuild
  orders from a directory of them after a database loss.

FILE FORMAT:
  <header>
  Employee: <name or empty>
  <YYYYMMDD_HHMMSS>

  <qty> x <name> (<code>) @ <unit price> = <line total>
  ...

  Subtotal: <amount>
  Tax: <amount>
  Total: <amount>
  Paid: <amount>
  Change: <amount>

  Amounts carry the currency symbol, thousands separators and exactly
  two fraction digits. Older files used "$" or no symbol at all.

SEE ALSO:
  - importer.go: Directory import
  - checkout.go: Render and record in one step
*/
package receipt

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/kittykitkitt/kit/pos"
)

const (
	// DefaultHeader is the first line of every rendered receipt.
	DefaultHeader = "POS System Management"

	// DefaultSymbol is the currency symbol prefixed to amounts.
	DefaultSymbol = "₱"

	// TimestampLayout is the receipt timestamp line and file name stamp.
	TimestampLayout = "20060102_150405"
)

// Codec renders and parses receipts. The zero value uses the defaults.
type Codec struct {
	Header string
	Symbol string
}

// Receipt is everything a rendered receipt shows.
type Receipt struct {
	Employee string
	IssuedAt time.Time
	Lines    []pos.OrderLine
	Subtotal decimal.Decimal
	Paid     decimal.Decimal
	Change   decimal.Decimal
}

// Parsed is what Parse recovers from a receipt. Scalars absent from the
// file are left invalid.
type Parsed struct {
	Employee string    // empty when missing or "None"
	IssuedAt time.Time // zero when no timestamp line
	Lines    []pos.OrderLine
	Subtotal decimal.NullDecimal
	Paid     decimal.NullDecimal
	Change   decimal.NullDecimal
}

func (c Codec) header() string {
	if c.Header == "" {
		return DefaultHeader
	}
	return c.Header
}

func (c Codec) symbol() string {
	if c.Symbol == "" {
		return DefaultSymbol
	}
	return c.Symbol
}

// FileName returns the receipt file name for t.
func FileName(t time.Time) string {
	return "receipt_" + t.Format(TimestampLayout) + ".txt"
}

// IsReceiptFile reports whether name looks like a receipt (.txt, any case).
func IsReceiptFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".txt")
}

// =============================================================================
// RENDER
// =============================================================================

// FormatCurrency renders d with the codec's symbol, thousands separators
// and two fraction digits: ₱1,234.56, ₱-20.00.
func (c Codec) FormatCurrency(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	whole := d.Truncate(0)
	cents := d.Sub(whole).Shift(2).IntPart()
	return fmt.Sprintf("%s%s%s.%02d", c.symbol(), sign, humanize.Comma(whole.IntPart()), cents)
}

// Render produces the receipt text. Every line total must equal
// unit price times quantity, Subtotal must equal the sum of line totals
// and Change must equal Paid - Subtotal.
func (c Codec) Render(r Receipt) ([]byte, error) {
	for i, l := range r.Lines {
		want := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		if !l.LineTotal.Equal(want) {
			return nil, pos.Invalid(fmt.Sprintf("lines[%d].line_total", i),
				"%s is not %d x %s", l.LineTotal, l.Quantity, l.UnitPrice)
		}
	}
	if sum := pos.SumLineTotals(r.Lines); !r.Subtotal.Equal(sum) {
		return nil, pos.Invalid("subtotal", "%s is not the sum of line totals %s", r.Subtotal, sum)
	}
	if !r.Change.Equal(r.Paid.Sub(r.Subtotal)) {
		return nil, pos.Invalid("change", "%s is not paid %s minus subtotal %s", r.Change, r.Paid, r.Subtotal)
	}

	var b bytes.Buffer
	fmt.Fprintln(&b, c.header())
	fmt.Fprintf(&b, "Employee: %s\n", r.Employee)
	fmt.Fprintln(&b, r.IssuedAt.Format(TimestampLayout))
	fmt.Fprintln(&b)
	for _, l := range r.Lines {
		fmt.Fprintf(&b, "%d x %s (%s) @ %s = %s\n",
			l.Quantity, l.Name, l.Code, c.FormatCurrency(l.UnitPrice), c.FormatCurrency(l.LineTotal))
	}
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Subtotal: %s\n", c.FormatCurrency(r.Subtotal))
	fmt.Fprintf(&b, "Tax: %s\n", c.FormatCurrency(decimal.Zero))
	fmt.Fprintf(&b, "Total: %s\n", c.FormatCurrency(r.Subtotal))
	fmt.Fprintf(&b, "Paid: %s\n", c.FormatCurrency(r.Paid))
	fmt.Fprintf(&b, "Change: %s\n", c.FormatCurrency(r.Change))
	return b.Bytes(), nil
}

// =============================================================================
// PARSE
// =============================================================================

const number = `-?[0-9][0-9,]*(?:\.[0-9]*)?`

var timestampLine = regexp.MustCompile(`^\d{8}_\d{6}$`)

func (c Codec) symbolPattern() string {
	alts := []string{`\$`, regexp.QuoteMeta(DefaultSymbol)}
	if s := c.symbol(); s != DefaultSymbol && s != "$" {
		alts = append(alts, regexp.QuoteMeta(s))
	}
	return `(?:` + strings.Join(alts, "|") + `)?`
}

// itemPattern matches "<qty> x <name> (<code>) @ <unit> = <total>". The
// name may contain parentheses ("Siomai (4pcs)"); the code may not.
func (c Codec) itemPattern() *regexp.Regexp {
	sym := c.symbolPattern()
	return regexp.MustCompile(`^(\d+)\s+x\s+(.*?)\s+\(([^()]+)\)\s+@\s*` +
		sym + `(` + number + `)\s*=\s*` + sym + `(` + number + `)$`)
}

func (c Codec) scalarPattern() *regexp.Regexp {
	return regexp.MustCompile(`^(Subtotal|Paid|Change):\s*` + c.symbolPattern() + `(` + number + `)$`)
}

// Parse reads receipt text. It never fails: lines that do not match the
// item grammar are ignored and unreadable scalars are left invalid.
func (c Codec) Parse(data []byte) Parsed {
	items := c.itemPattern()
	scalars := c.scalarPattern()

	var (
		p        Parsed
		trailing []string
	)
	for _, raw := range bytes.Split(data, []byte("\n")) {
		line := strings.TrimSpace(string(raw))

		if m := items.FindStringSubmatch(line); m != nil {
			if l, ok := parseItem(m); ok {
				p.Lines = append(p.Lines, l)
				trailing = trailing[:0]
				continue
			}
		}

		switch {
		case strings.HasPrefix(line, "Employee:"):
			name := strings.TrimSpace(strings.TrimPrefix(line, "Employee:"))
			if name != "None" {
				p.Employee = name
			}
		case p.IssuedAt.IsZero() && timestampLine.MatchString(line):
			if t, err := time.ParseInLocation(TimestampLayout, line, time.Local); err == nil {
				p.IssuedAt = t
			}
		default:
			trailing = append(trailing, line)
		}
	}

	for _, line := range trailing {
		m := scalars.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		d, err := parseNumber(m[2])
		if err != nil {
			continue
		}
		nd := decimal.NewNullDecimal(d)
		switch m[1] {
		case "Subtotal":
			p.Subtotal = nd
		case "Paid":
			p.Paid = nd
		case "Change":
			p.Change = nd
		}
	}
	return p
}

func parseItem(m []string) (pos.OrderLine, bool) {
	qty, err := strconv.Atoi(m[1])
	if err != nil {
		return pos.OrderLine{}, false
	}
	unit, err := parseNumber(m[4])
	if err != nil {
		return pos.OrderLine{}, false
	}
	total, err := parseNumber(m[5])
	if err != nil {
		return pos.OrderLine{}, false
	}
	return pos.OrderLine{
		Code:      strings.TrimSpace(m[3]),
		Name:      strings.TrimSpace(m[2]),
		Quantity:  qty,
		UnitPrice: unit,
		LineTotal: total,
	}, true
}

func parseNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSuffix(strings.ReplaceAll(s, ",", ""), ".")
	return decimal.NewFromString(s)
}
