/*
store.go - Persistence interfaces for the ledger and sales aggregates

PURPOSE:
  Defines the boundary between the sales core and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:      Orders and their lines (the ledger)
  SalesStore: Per-code aggregates plus a full read of ledger lines
  Purger:     Maintenance truncation with backup (optional)

ATOMICITY:
  InsertOrder writes the order row and all of its lines as one unit.
  DeleteOrdersByReceiptKeys removes lines and orders as one unit.
  ReplaceSales swaps the whole aggregate table as one unit.
  A failure partway through any of these must leave no trace.

UNIQUENESS:
  A non-empty receipt key is unique across orders. InsertOrder returns
  ErrDuplicateReceiptKey on a violation; resolving it is the Ledger's job.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - pos/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level operations using Store
  - aggregate.go: Aggregator using SalesStore
*/
package pos

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Orders and lines
// =============================================================================

// Store persists orders. Orders are never updated; they are only inserted
// and, by explicit maintenance, deleted together with their lines.
type Store interface {
	// InsertOrder persists the order and its lines atomically, stamped at.
	InsertOrder(ctx context.Context, order NewOrder, at time.Time) (OrderID, error)

	// FindByReceiptKey returns the id of the order holding key.
	FindByReceiptKey(ctx context.Context, key string) (OrderID, bool, error)

	// ListOrders returns every order, most recent first, lines attached.
	ListOrders(ctx context.Context) ([]Order, error)

	// DeleteOrdersByReceiptKeys removes matching orders and their lines.
	DeleteOrdersByReceiptKeys(ctx context.Context, keys []string) (int, error)
}

// =============================================================================
// SALES STORE - Derived aggregates
// =============================================================================

// SalesStore persists per-code aggregates.
type SalesStore interface {
	// IncrementSale adds one line to the aggregate for line.Code, creating
	// the row if absent. Name and LastSold are replaced.
	IncrementSale(ctx context.Context, line OrderLine, when time.Time) error

	// ReplaceSales discards every aggregate row and inserts rows in order.
	ReplaceSales(ctx context.Context, rows []SalesAggregate) error

	// ListSales returns aggregate rows in insertion order.
	ListSales(ctx context.Context) ([]SalesAggregate, error)

	// LedgerLines returns every persisted order line in insertion order.
	LedgerLines(ctx context.Context) ([]LedgerLine, error)
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Purger is implemented by stores that support operator truncation.
type Purger interface {
	// PurgeTransactional backs up the persisted state, then deletes all
	// orders, order lines and aggregates.
	PurgeTransactional(ctx context.Context) (PurgeReport, error)
}

// TableCount is a before/after row count for one table.
type TableCount struct {
	Table  string
	Before int
	After  int
}

// PurgeReport describes a completed purge.
type PurgeReport struct {
	BackupPath   string
	BackupSize   int64
	BackupDigest string // hex BLAKE3 of the backup file
	Tables       []TableCount
}
