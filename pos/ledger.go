/*
ledger.go - Durable record of completed sales

PURPOSE:
  The Ledger is the source of truth for all sales. Every checkout and
  every imported receipt becomes exactly one Order with its lines.
  Sales aggregates are derived from it and may be rebuilt at any time.

CRITICAL INVARIANTS:
  1. ATOMIC: an order and its lines are visible together or not at all
  2. IDEMPOTENT: a receipt key maps to at most one order; recording the
     same key again returns the existing order id
  3. AUTHORITATIVE: an order write is never undone because a derived
     step (aggregate update) failed afterwards

RECEIPT KEY RESOLUTION:
  1. Key already present          -> existing id, nothing written
  2. Insert hits the unique index -> look the row up again
     a. found                     -> existing id
     b. not found / lookup failed -> ConflictError

AGGREGATE SIDE EFFECT:
  After a new order is committed the Aggregator is applied to its lines.
  Per-line failures are counted and logged, never returned.

EXAMPLE:
  ledger := pos.NewLedger(store)
  id, err := ledger.RecordOrder(ctx, pos.NewOrder{
      Lines:      lines,
      Total:      total,
      Paid:       paid,
      Change:     paid.Sub(total),
      ReceiptKey: "receipt_20250301_101500.txt",
  })

SEE ALSO:
  - store.go: Persistence interface
  - aggregate.go: Aggregator applied after each write
*/
package pos

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// =============================================================================
// LEDGER
// =============================================================================

// Ledger records orders and exposes the collaborator-facing operations.
type Ledger struct {
	store      Store
	aggregator *Aggregator // nil when the store keeps no aggregates
	logger     *slog.Logger
	now        func() time.Time

	aggregateFailures atomic.Int64
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithAggregator overrides the aggregator derived from the store.
func WithAggregator(a *Aggregator) LedgerOption {
	return func(l *Ledger) { l.aggregator = a }
}

// WithLogger sets the logger used for degraded-path reporting.
func WithLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock sets the time source used to stamp orders.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger creates a ledger over store. If store also implements
// SalesStore, an Aggregator is wired in automatically.
func NewLedger(store Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	if ss, ok := store.(SalesStore); ok {
		l.aggregator = NewAggregator(ss)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Aggregator returns the aggregator applied after each write, or nil.
func (l *Ledger) Aggregator() *Aggregator {
	return l.aggregator
}

// Recorded is the outcome of Record.
type Recorded struct {
	OrderID   OrderID
	Timestamp time.Time
	Existing  bool // the receipt key was already recorded; nothing was written

	// Aggregate is the result of the post-write aggregate update. Zero
	// when Existing is true or no aggregator is configured.
	Aggregate IncrementResult
}

// RecordOrder persists order and returns its id. See Record.
func (l *Ledger) RecordOrder(ctx context.Context, order NewOrder) (OrderID, error) {
	rec, err := l.Record(ctx, order)
	if err != nil {
		return 0, err
	}
	return rec.OrderID, nil
}

// Record persists order and its lines atomically, then updates the sales
// aggregates for the same lines.
func (l *Ledger) Record(ctx context.Context, order NewOrder) (Recorded, error) {
	order.ReceiptKey = strings.TrimSpace(order.ReceiptKey)
	if err := ValidateOrder(order); err != nil {
		return Recorded{}, err
	}

	if order.ReceiptKey != "" {
		id, ok, err := l.store.FindByReceiptKey(ctx, order.ReceiptKey)
		if err != nil {
			return Recorded{}, storageErr("find receipt key", err)
		}
		if ok {
			return Recorded{OrderID: id, Existing: true}, nil
		}
	}

	at := l.now().Truncate(time.Second)
	id, err := l.store.InsertOrder(ctx, order, at)
	if errors.Is(err, ErrDuplicateReceiptKey) {
		existing, ok, lookupErr := l.store.FindByReceiptKey(ctx, order.ReceiptKey)
		if lookupErr == nil && ok {
			return Recorded{OrderID: existing, Existing: true}, nil
		}
		if lookupErr == nil {
			lookupErr = err
		}
		return Recorded{}, &ConflictError{ReceiptKey: order.ReceiptKey, Cause: lookupErr}
	}
	if err != nil {
		return Recorded{}, storageErr("record order", err)
	}

	rec := Recorded{OrderID: id, Timestamp: at}
	if l.aggregator != nil {
		rec.Aggregate = l.aggregator.ApplyIncrement(ctx, order.Lines, at)
		if rec.Aggregate.Skipped > 0 {
			l.aggregateFailures.Add(int64(rec.Aggregate.Skipped))
			l.logger.Warn("sales aggregate update degraded",
				"order_id", int64(id),
				"applied", rec.Aggregate.Applied,
				"skipped", rec.Aggregate.Skipped,
				"error", errors.Join(rec.Aggregate.Errors...),
			)
		}
	}
	return rec, nil
}

// AggregateFailures returns how many aggregate line updates have been
// skipped after successful order writes since the ledger was created.
func (l *Ledger) AggregateFailures() int64 {
	return l.aggregateFailures.Load()
}

// ValidateOrder rejects malformed lines before anything is written.
func ValidateOrder(order NewOrder) error {
	for i, line := range order.Lines {
		if err := validateLine(line); err != nil {
			err.Field = "lines[" + strconv.Itoa(i) + "]." + err.Field
			return err
		}
	}
	return nil
}

func validateLine(line OrderLine) *ValidationError {
	if strings.TrimSpace(line.Code) == "" {
		return Invalid("code", "must not be empty")
	}
	if line.Quantity <= 0 {
		return Invalid("quantity", "must be positive, got %d", line.Quantity)
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// ListOrders returns every order, most recent first, with lines attached.
func (l *Ledger) ListOrders(ctx context.Context) ([]Order, error) {
	orders, err := l.store.ListOrders(ctx)
	if err != nil {
		return nil, storageErr("list orders", err)
	}
	return orders, nil
}

// HasReceipt reports whether an order already references key.
func (l *Ledger) HasReceipt(ctx context.Context, key string) (bool, error) {
	_, ok, err := l.store.FindByReceiptKey(ctx, key)
	if err != nil {
		return false, storageErr("find receipt key", err)
	}
	return ok, nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// DeleteOrdersByReceiptKeys removes the orders (and their lines) whose
// receipt key is in keys. Keys with no match are ignored.
func (l *Ledger) DeleteOrdersByReceiptKeys(ctx context.Context, keys []string) (int, error) {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			set[k] = struct{}{}
		}
	}
	if len(set) == 0 {
		return 0, nil
	}
	unique := make([]string, 0, len(set))
	for k := range set {
		unique = append(unique, k)
	}
	sort.Strings(unique)

	n, err := l.store.DeleteOrdersByReceiptKeys(ctx, unique)
	if err != nil {
		return 0, storageErr("delete orders", err)
	}
	return n, nil
}

// PurgeTransactional deletes all orders, lines and aggregates after
// taking a backup. Operator tooling only.
func (l *Ledger) PurgeTransactional(ctx context.Context) (PurgeReport, error) {
	p, ok := l.store.(Purger)
	if !ok {
		return PurgeReport{}, ErrStoreRequired
	}
	report, err := p.PurgeTransactional(ctx)
	if err != nil {
		return report, storageErr("purge", err)
	}
	for _, t := range report.Tables {
		l.logger.Info("purged table", "table", t.Table, "before", t.Before, "after", t.After)
	}
	return report, nil
}

// =============================================================================
// AGGREGATES (delegated)
// =============================================================================

// ListAggregates returns the sales aggregates, highest revenue first.
func (l *Ledger) ListAggregates(ctx context.Context) ([]SalesAggregate, error) {
	if l.aggregator == nil {
		return nil, ErrStoreRequired
	}
	return l.aggregator.ListAggregates(ctx)
}

// RebuildFromLedger recomputes every aggregate from the ledger.
func (l *Ledger) RebuildFromLedger(ctx context.Context) (int, error) {
	if l.aggregator == nil {
		return 0, ErrStoreRequired
	}
	return l.aggregator.RebuildFromLedger(ctx)
}
