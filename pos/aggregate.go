package pos

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Aggregator keeps per-code sales totals consistent with the ledger.
//
// The incremental path (ApplyIncrement) is an optimisation. The ledger is
// the source of truth and RebuildFromLedger recomputes every row from it.
type Aggregator struct {
	store SalesStore
}

// NewAggregator creates an aggregator over store.
func NewAggregator(store SalesStore) *Aggregator {
	return &Aggregator{store: store}
}

// IncrementResult reports how an ApplyIncrement batch went.
type IncrementResult struct {
	Applied int
	Skipped int
	Errors  []error // one per skipped line
}

// ApplyIncrement adds each line to the aggregate row for its code.
// A line that fails is skipped without affecting the rest of the batch.
func (a *Aggregator) ApplyIncrement(ctx context.Context, lines []OrderLine, when time.Time) IncrementResult {
	var res IncrementResult
	for i, line := range lines {
		var err error
		if vErr := validateLine(line); vErr != nil {
			err = vErr
		} else {
			err = a.store.IncrementSale(ctx, line, when)
		}
		if err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Errorf("line %d (%s): %w", i, line.Code, err))
			continue
		}
		res.Applied++
	}
	return res
}

// RebuildFromLedger discards every aggregate row and recomputes them from
// all persisted order lines. Returns the number of distinct codes.
//
// Rows are keyed by code. The display name is taken from the most recent
// contributing line and LastSold is the latest contributing order time.
func (a *Aggregator) RebuildFromLedger(ctx context.Context) (int, error) {
	lines, err := a.store.LedgerLines(ctx)
	if err != nil {
		return 0, storageErr("load ledger lines", err)
	}

	rows := FoldLedgerLines(lines)
	if err := a.store.ReplaceSales(ctx, rows); err != nil {
		return 0, storageErr("replace sales", err)
	}
	return len(rows), nil
}

// FoldLedgerLines groups lines by code in order of first appearance.
func FoldLedgerLines(lines []LedgerLine) []SalesAggregate {
	index := make(map[string]int)
	var rows []SalesAggregate
	for _, l := range lines {
		i, ok := index[l.Code]
		if !ok {
			index[l.Code] = len(rows)
			rows = append(rows, SalesAggregate{
				Code:          l.Code,
				Name:          l.Name,
				TotalQuantity: l.Quantity,
				TotalRevenue:  l.LineTotal,
				LastSold:      l.Timestamp,
			})
			continue
		}
		row := &rows[i]
		row.TotalQuantity += l.Quantity
		row.TotalRevenue = row.TotalRevenue.Add(l.LineTotal)
		if !l.Timestamp.Before(row.LastSold) {
			row.LastSold = l.Timestamp
			row.Name = l.Name
		}
	}
	return rows
}

// ListAggregates returns every aggregate row sorted by total revenue,
// highest first. Ties keep insertion order.
func (a *Aggregator) ListAggregates(ctx context.Context) ([]SalesAggregate, error) {
	rows, err := a.store.ListSales(ctx)
	if err != nil {
		return nil, storageErr("list sales", err)
	}
	SortByRevenue(rows)
	return rows, nil
}

// SortByRevenue orders rows by TotalRevenue descending, stable.
func SortByRevenue(rows []SalesAggregate) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TotalRevenue.GreaterThan(rows[j].TotalRevenue)
	})
}

// CodeTotal is the summed quantity and revenue for one code.
type CodeTotal struct {
	Quantity int
	Revenue  decimal.Decimal
}

// TotalsByCode sums quantity and revenue per code. Codes are compared
// case-sensitively, as stored.
func TotalsByCode(lines []OrderLine) map[string]CodeTotal {
	out := make(map[string]CodeTotal)
	for _, l := range lines {
		t := out[l.Code]
		t.Quantity += l.Quantity
		t.Revenue = t.Revenue.Add(l.LineTotal)
		out[l.Code] = t
	}
	return out
}

// NormalizeCode upper-cases and trims a product code the way callers
// are expected to before recording.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
