package pos_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittykitkitt/kit/pos"
	"github.com/kittykitkitt/kit/pos/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestLedger(t *testing.T) (*pos.Ledger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	at := time.Date(2025, time.March, 1, 10, 15, 0, 0, time.UTC)
	return pos.NewLedger(mem, pos.WithClock(fixedClock(at))), mem
}

func adoboOrder(key string) pos.NewOrder {
	lines := []pos.OrderLine{
		pos.NewLine("AR", "Adobo Rice Bowl", 2, amt("65")),
		pos.NewLine("CK", "Coke", 1, amt("25")),
	}
	total := pos.SumLineTotals(lines)
	return pos.NewOrder{
		Lines:      lines,
		Total:      total,
		Paid:       amt("200"),
		Change:     amt("200").Sub(total),
		Employee:   "Kit",
		ReceiptKey: key,
	}
}

// =============================================================================
// RECORD ORDER
// =============================================================================

func TestLedger_RecordOrder_PersistsOrderWithLines(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := ledger.RecordOrder(ctx, adoboOrder("receipt_a.txt"))
	require.NoError(t, err)
	assert.Equal(t, pos.OrderID(1), id)

	orders, err := ledger.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, "receipt_a.txt", o.ReceiptKey)
	assert.Equal(t, "Kit", o.Employee)
	assert.True(t, o.Total.Equal(amt("155")), "total %s", o.Total)
	assert.True(t, o.Change.Equal(amt("45")), "change %s", o.Change)
	require.Len(t, o.Lines, 2)
	assert.Equal(t, "AR", o.Lines[0].Code)
	assert.True(t, o.Lines[0].LineTotal.Equal(amt("130")))
}

func TestLedger_RecordOrder_SameReceiptKeyIsIdempotent(t *testing.T) {
	// GIVEN: An order recorded under receipt_x.txt
	// WHEN: Recording again with the same key
	// THEN: Same id, still exactly one order

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	first, err := ledger.RecordOrder(ctx, adoboOrder("receipt_x.txt"))
	require.NoError(t, err)

	rec, err := ledger.Record(ctx, adoboOrder("receipt_x.txt"))
	require.NoError(t, err)
	assert.Equal(t, first, rec.OrderID)
	assert.True(t, rec.Existing)

	orders, err := ledger.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestLedger_RecordOrder_ExistingKeyDoesNotDoubleCountAggregates(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.RecordOrder(ctx, adoboOrder("receipt_x.txt"))
	require.NoError(t, err)
	_, err = ledger.RecordOrder(ctx, adoboOrder("receipt_x.txt"))
	require.NoError(t, err)

	aggs, err := ledger.ListAggregates(ctx)
	require.NoError(t, err)
	require.Len(t, aggs, 2)
	assert.Equal(t, 2, aggs[0].TotalQuantity)
}

func TestLedger_RecordOrder_WithoutKeyAlwaysInserts(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	a, err := ledger.RecordOrder(ctx, adoboOrder(""))
	require.NoError(t, err)
	b, err := ledger.RecordOrder(ctx, adoboOrder(""))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Greater(t, b, a, "ids are monotonic")
}

func TestLedger_RecordOrder_RejectsNonPositiveQuantity(t *testing.T) {
	ledger, mem := newTestLedger(t)
	ctx := context.Background()

	order := adoboOrder("receipt_bad.txt")
	order.Lines[1].Quantity = 0

	_, err := ledger.RecordOrder(ctx, order)

	var vErr *pos.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "lines[1].quantity", vErr.Field)
	assert.True(t, pos.IsClientError(err))

	orders, _ := mem.ListOrders(ctx)
	assert.Empty(t, orders, "nothing written on validation failure")
}

func TestLedger_RecordOrder_RejectsEmptyCode(t *testing.T) {
	ledger, _ := newTestLedger(t)

	order := adoboOrder("")
	order.Lines[0].Code = "  "

	_, err := ledger.RecordOrder(context.Background(), order)
	assert.ErrorIs(t, err, pos.ErrValidation)
}

func TestLedger_RecordOrder_EmptyLinesAllowed(t *testing.T) {
	ledger, _ := newTestLedger(t)

	id, err := ledger.RecordOrder(context.Background(), pos.NewOrder{Total: decimal.Zero, Paid: decimal.Zero})
	require.NoError(t, err)
	assert.NotZero(t, id)
}

// racyStore reports a duplicate on insert but cannot find the row afterwards.
type racyStore struct {
	*store.Memory
	lookups   int
	lookupErr error
}

func (r *racyStore) FindByReceiptKey(ctx context.Context, key string) (pos.OrderID, bool, error) {
	r.lookups++
	if r.lookups > 1 && r.lookupErr != nil {
		return 0, false, r.lookupErr
	}
	return 0, false, nil
}

func (r *racyStore) InsertOrder(context.Context, pos.NewOrder, time.Time) (pos.OrderID, error) {
	return 0, pos.ErrDuplicateReceiptKey
}

func TestLedger_RecordOrder_UnresolvableCollisionIsConflict(t *testing.T) {
	// GIVEN: The insert reports a receipt key collision
	// WHEN: The existing row cannot be located
	// THEN: ConflictError is surfaced, not swallowed

	for _, lookupErr := range []error{nil, errors.New("disk gone")} {
		rs := &racyStore{Memory: store.NewMemory(), lookupErr: lookupErr}
		ledger := pos.NewLedger(rs)

		_, err := ledger.RecordOrder(context.Background(), adoboOrder("receipt_race.txt"))

		var conflict *pos.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "receipt_race.txt", conflict.ReceiptKey)
		assert.True(t, pos.IsConflict(err))
		if lookupErr != nil {
			assert.ErrorIs(t, err, lookupErr)
		}
	}
}

// =============================================================================
// AGGREGATE SIDE EFFECT
// =============================================================================

func TestLedger_RecordOrder_UpdatesAggregates(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	rec, err := ledger.Record(ctx, adoboOrder("receipt_a.txt"))
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Aggregate.Applied)
	assert.Zero(t, rec.Aggregate.Skipped)

	aggs, err := ledger.ListAggregates(ctx)
	require.NoError(t, err)
	require.Len(t, aggs, 2)
	assert.Equal(t, "AR", aggs[0].Code, "highest revenue first")
	assert.True(t, aggs[0].TotalRevenue.Equal(amt("130")))
	assert.Equal(t, rec.Timestamp, aggs[0].LastSold)
}

func TestLedger_RecordOrder_AggregateFailureKeepsOrder(t *testing.T) {
	// GIVEN: The aggregate update fails for one code
	// WHEN: Recording an order
	// THEN: The order stands, the other line is applied, the failure is counted

	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	mem.IncrementHook = func(line pos.OrderLine) error {
		if line.Code == "AR" {
			return errors.New("sales table locked")
		}
		return nil
	}

	rec, err := ledger.Record(ctx, adoboOrder("receipt_a.txt"))
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Aggregate.Applied)
	assert.Equal(t, 1, rec.Aggregate.Skipped)
	require.Len(t, rec.Aggregate.Errors, 1)
	assert.Contains(t, rec.Aggregate.Errors[0].Error(), "sales table locked")
	assert.EqualValues(t, 1, ledger.AggregateFailures())

	orders, err := ledger.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	aggs, err := ledger.ListAggregates(ctx)
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, "CK", aggs[0].Code)
}

// =============================================================================
// QUERIES AND MAINTENANCE
// =============================================================================

func TestLedger_ListOrders_MostRecentFirst(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	for _, key := range []string{"receipt_1.txt", "receipt_2.txt", "receipt_3.txt"} {
		_, err := ledger.RecordOrder(ctx, adoboOrder(key))
		require.NoError(t, err)
	}

	orders, err := ledger.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, "receipt_3.txt", orders[0].ReceiptKey)
	assert.Equal(t, "receipt_1.txt", orders[2].ReceiptKey)
}

func TestLedger_DeleteOrdersByReceiptKeys(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	for _, key := range []string{"receipt_1.txt", "receipt_2.txt", "receipt_3.txt"} {
		_, err := ledger.RecordOrder(ctx, adoboOrder(key))
		require.NoError(t, err)
	}

	n, err := ledger.DeleteOrdersByReceiptKeys(ctx, []string{"receipt_1.txt", "receipt_3.txt", "receipt_missing.txt", "receipt_1.txt"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ok, err := ledger.HasReceipt(ctx, "receipt_1.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	orders, _ := ledger.ListOrders(ctx)
	require.Len(t, orders, 1)
	assert.Equal(t, "receipt_2.txt", orders[0].ReceiptKey)

	n, err = ledger.DeleteOrdersByReceiptKeys(ctx, []string{"receipt_1.txt"})
	require.NoError(t, err)
	assert.Zero(t, n, "deleting again is a no-op")
}

func TestLedger_DeleteOrdersByReceiptKeys_EmptySet(t *testing.T) {
	ledger, _ := newTestLedger(t)

	n, err := ledger.DeleteOrdersByReceiptKeys(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLedger_Purge_RequiresCapableStore(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.PurgeTransactional(context.Background())
	assert.ErrorIs(t, err, pos.ErrStoreRequired)
}
