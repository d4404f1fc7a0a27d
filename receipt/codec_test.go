package receipt_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittykitkitt/kit/pos"
	"github.com/kittykitkitt/kit/receipt"
)

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

const adoboReceipt = `POS System Management
Employee: Kit
20250301_101500

2 x Adobo Rice Bowl (AR) @ ₱65.00 = ₱130.00

Subtotal: ₱130.00
Tax: ₱0.00
Total: ₱130.00
Paid: ₱150.00
Change: ₱20.00
`

func TestCodec_Parse_AdoboScenario(t *testing.T) {
	var codec receipt.Codec

	p := codec.Parse([]byte(adoboReceipt))

	require.Len(t, p.Lines, 1)
	l := p.Lines[0]
	assert.Equal(t, "AR", l.Code)
	assert.Equal(t, "Adobo Rice Bowl", l.Name)
	assert.Equal(t, 2, l.Quantity)
	assert.True(t, l.UnitPrice.Equal(amt("65")))
	assert.True(t, l.LineTotal.Equal(amt("130")))

	require.True(t, p.Subtotal.Valid)
	assert.True(t, p.Subtotal.Decimal.Equal(amt("130")))
	require.True(t, p.Paid.Valid)
	assert.True(t, p.Paid.Decimal.Equal(amt("150")))
	require.True(t, p.Change.Valid)
	assert.True(t, p.Change.Decimal.Equal(amt("20")))

	assert.Equal(t, "Kit", p.Employee)
	assert.True(t, p.IssuedAt.Equal(time.Date(2025, time.March, 1, 10, 15, 0, 0, time.Local)))
}

func TestCodec_RenderParseRoundTrip(t *testing.T) {
	// GIVEN: A receipt with thousands-separated amounts
	// WHEN: Rendering then parsing
	// THEN: Codes, quantities and totals come back unchanged

	codec := receipt.Codec{}
	lines := []pos.OrderLine{
		pos.NewLine("PLT", "Party Platter", 3, amt("1250.75")),
		pos.NewLine("CK", "Coke", 1, amt("25")),
	}
	subtotal := pos.SumLineTotals(lines)
	in := receipt.Receipt{
		Employee: "Kit",
		IssuedAt: time.Date(2025, time.March, 1, 10, 15, 0, 0, time.Local),
		Lines:    lines,
		Subtotal: subtotal,
		Paid:     amt("5000"),
		Change:   amt("5000").Sub(subtotal),
	}

	data, err := codec.Render(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), "3 x Party Platter (PLT) @ ₱1,250.75 = ₱3,752.25")

	out := codec.Parse(data)
	require.Len(t, out.Lines, 2)
	for i := range lines {
		assert.Equal(t, lines[i].Code, out.Lines[i].Code)
		assert.Equal(t, lines[i].Quantity, out.Lines[i].Quantity)
		assert.True(t, lines[i].LineTotal.Equal(out.Lines[i].LineTotal))
	}
	assert.True(t, out.Subtotal.Decimal.Equal(subtotal))
	assert.True(t, out.Paid.Decimal.Equal(in.Paid))
	assert.True(t, out.Change.Decimal.Equal(in.Change))
	assert.True(t, in.IssuedAt.Equal(out.IssuedAt))
}

func TestCodec_Render_Layout(t *testing.T) {
	codec := receipt.Codec{}
	lines := []pos.OrderLine{pos.NewLine("AR", "Adobo Rice Bowl", 2, amt("65"))}

	data, err := codec.Render(receipt.Receipt{
		IssuedAt: time.Date(2025, time.March, 1, 10, 15, 0, 0, time.Local),
		Lines:    lines,
		Subtotal: amt("130"),
		Paid:     amt("150"),
		Change:   amt("20"),
	})
	require.NoError(t, err)

	want := strings.Replace(adoboReceipt, "Employee: Kit", "Employee: ", 1)
	assert.Equal(t, want, string(data))
}

func TestCodec_Render_RejectsInconsistentAmounts(t *testing.T) {
	codec := receipt.Codec{}
	bad := pos.NewLine("AR", "Adobo Rice Bowl", 2, amt("65"))
	bad.LineTotal = amt("120")

	_, err := codec.Render(receipt.Receipt{Lines: []pos.OrderLine{bad}, Subtotal: amt("120"), Paid: amt("120")})
	assert.ErrorIs(t, err, pos.ErrValidation)

	good := pos.NewLine("AR", "Adobo Rice Bowl", 2, amt("65"))
	_, err = codec.Render(receipt.Receipt{Lines: []pos.OrderLine{good}, Subtotal: amt("130"), Paid: amt("150"), Change: amt("10")})
	var vErr *pos.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "change", vErr.Field)
}

func TestCodec_Render_RejectsSubtotalMismatch(t *testing.T) {
	codec := receipt.Codec{}
	lines := []pos.OrderLine{pos.NewLine("AR", "Adobo Rice Bowl", 2, amt("65"))}

	_, err := codec.Render(receipt.Receipt{Lines: lines, Subtotal: amt("100"), Paid: amt("150"), Change: amt("50")})

	var vErr *pos.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "subtotal", vErr.Field)
}

func TestCodec_RoundTrip_NameWithParentheses(t *testing.T) {
	// GIVEN: Menu names that carry a parenthesised portion size
	codec := receipt.Codec{}
	lines := []pos.OrderLine{
		pos.NewLine("AR", "Adobo Rice Bowl", 1, amt("65")),
		pos.NewLine("SM", "Siomai (4pcs)", 2, amt("25")),
		pos.NewLine("CH", "Cheese Sticks (7pcs)", 1, amt("20")),
	}
	subtotal := pos.SumLineTotals(lines)

	// WHEN: Rendering then parsing
	data, err := codec.Render(receipt.Receipt{
		IssuedAt: time.Date(2025, time.March, 1, 10, 15, 0, 0, time.Local),
		Lines:    lines,
		Subtotal: subtotal,
		Paid:     amt("200"),
		Change:   amt("200").Sub(subtotal),
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), "2 x Siomai (4pcs) (SM) @ ₱25.00 = ₱50.00")
	out := codec.Parse(data)

	// THEN: Every line comes back with the full name and the right code
	require.Len(t, out.Lines, 3)
	for i := range lines {
		assert.Equal(t, lines[i].Code, out.Lines[i].Code)
		assert.Equal(t, lines[i].Name, out.Lines[i].Name)
		assert.Equal(t, lines[i].Quantity, out.Lines[i].Quantity)
		assert.True(t, lines[i].LineTotal.Equal(out.Lines[i].LineTotal))
	}
	assert.True(t, pos.SumLineTotals(out.Lines).Equal(out.Subtotal.Decimal))
}

func TestCodec_Parse_OversizedLine(t *testing.T) {
	// GIVEN: A 70,000-byte header line ahead of a valid item
	data := strings.Repeat("#", 70000) + "\n" +
		"2 x Adobo Rice Bowl (AR) @ ₱65.00 = ₱130.00\n" +
		"Subtotal: ₱130.00\n"

	// WHEN: Parsing
	p := receipt.Codec{}.Parse([]byte(data))

	// THEN: Lines after the long one are still read
	require.Len(t, p.Lines, 1)
	assert.Equal(t, "AR", p.Lines[0].Code)
	require.True(t, p.Subtotal.Valid)
	assert.True(t, p.Subtotal.Decimal.Equal(amt("130")))
}

func TestCodec_FormatCurrency(t *testing.T) {
	codec := receipt.Codec{}

	tests := []struct {
		in   string
		want string
	}{
		{"0", "₱0.00"},
		{"5", "₱5.00"},
		{"1234.5", "₱1,234.50"},
		{"1234567.891", "₱1,234,567.89"},
		{"-20", "₱-20.00"},
		{"-0.5", "₱-0.50"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, codec.FormatCurrency(amt(tt.in)), tt.in)
	}

	assert.Equal(t, "$12.00", receipt.Codec{Symbol: "$"}.FormatCurrency(amt("12")))
}

func TestCodec_Parse_HistoricalVariants(t *testing.T) {
	// GIVEN: Receipts written with "$", with no symbol, and with a custom symbol
	// WHEN: Parsing
	// THEN: All of them yield the same line

	codec := receipt.Codec{Symbol: "PHP "}
	for _, text := range []string{
		"1 x Coke (CK) @ $25.00 = $25.00",
		"1 x Coke (CK) @ 25.00 = 25.00",
		"1 x Coke (CK) @ ₱25.00 = ₱25.00",
		"1 x Coke (CK) @ PHP 25.00 = PHP 25.00",
		"1 x Coke (CK) @25 = 25",
	} {
		p := codec.Parse([]byte(text + "\n"))
		require.Len(t, p.Lines, 1, text)
		assert.Equal(t, "CK", p.Lines[0].Code, text)
		assert.True(t, p.Lines[0].LineTotal.Equal(amt("25")), text)
	}
}

func TestCodec_Parse_EmployeeNoneIsUnset(t *testing.T) {
	p := receipt.Codec{}.Parse([]byte("Employee: None\n1 x Coke (CK) @ ₱25.00 = ₱25.00\n"))
	assert.Empty(t, p.Employee)
}

func TestCodec_Parse_IgnoresNoiseAndMissingScalars(t *testing.T) {
	text := `Some header
random words
1 x Coke (CK) @ ₱25.00 = ₱25.00
not an item (XX) @ lots
Paid: lots of money
`
	p := receipt.Codec{}.Parse([]byte(text))

	require.Len(t, p.Lines, 1)
	assert.False(t, p.Subtotal.Valid)
	assert.False(t, p.Paid.Valid)
	assert.False(t, p.Change.Valid)
	assert.True(t, p.IssuedAt.IsZero())
}

func TestCodec_Parse_ScalarsOnlyFromTrailingBlock(t *testing.T) {
	text := `Paid: ₱999.00
1 x Coke (CK) @ ₱25.00 = ₱25.00
Paid: ₱30.00
`
	p := receipt.Codec{}.Parse([]byte(text))

	require.True(t, p.Paid.Valid)
	assert.True(t, p.Paid.Decimal.Equal(amt("30")))
}

func TestFileName(t *testing.T) {
	at := time.Date(2025, time.March, 1, 10, 15, 0, 0, time.Local)
	assert.Equal(t, "receipt_20250301_101500.txt", receipt.FileName(at))
	assert.True(t, receipt.IsReceiptFile("RECEIPT.TXT"))
	assert.False(t, receipt.IsReceiptFile("receipt.txt.bak"))
}
