/*
Package sqlite provides a SQLite-backed implementation of the pos storage
interfaces.

PURPOSE:
  Implements pos.Store, pos.SalesStore and pos.Purger on a single local
  database file. This is the one store handle a process opens.

INTERFACES IMPLEMENTED:
  pos.Store:      Orders and their lines
  pos.SalesStore: Per-code aggregates, ledger line scan
  pos.Purger:     Backup then truncate

KEY TABLES:
  orders:      One row per checkout
  order_items: Lines, owned by an order (ON DELETE CASCADE)
  sales:       Derived per-code aggregates

AMOUNTS:
  Written as decimal TEXT. Databases created by older versions hold REAL
  values; they scan into decimal.Decimal through its sql.Scanner.

LEGACY LAYOUT:
  Older databases call the receipt column receipt_filename and the line
  amount columns price/total. Column names are resolved once at open
  time, and migration only ever adds columns (employee, receipt key).

CONCURRENCY:
  Uses sync.RWMutex plus a single pooled connection. One writer per
  process; there is no cross-process coordination.

USAGE:
  store, err := sqlite.New("./pos.db", sqlite.WithBackupDir("./backups"))
  if err != nil {
      return err
  }
  defer store.Close()

  ledger := pos.NewLedger(store)

SEE ALSO:
  - pos/store.go: Interface definitions
  - backup.go: Purge backups and restore
  - pos/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/kittykitkitt/kit/pos"
)

// Schema is the DDL for a fresh database. The unique receipt index is
// created separately by migrate, after legacy columns are resolved; DDL
// returns both.
const Schema = `
-- Orders (written once, never updated)
CREATE TABLE IF NOT EXISTS orders (
	order_id INTEGER PRIMARY KEY AUTOINCREMENT,
	date_time TEXT NOT NULL,
	total TEXT NOT NULL,
	paid TEXT NOT NULL,
	change TEXT NOT NULL,
	employee TEXT,
	receipt_key TEXT
);

-- Order lines
CREATE TABLE IF NOT EXISTS order_items (
	item_id INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id INTEGER NOT NULL REFERENCES orders(order_id) ON DELETE CASCADE,
	code TEXT NOT NULL,
	name TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	unit_price TEXT NOT NULL,
	line_total TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_items_order
	ON order_items(order_id);

-- Sales aggregates (derived, rebuildable)
CREATE TABLE IF NOT EXISTS sales (
	code TEXT PRIMARY KEY,
	name TEXT,
	total_quantity INTEGER NOT NULL DEFAULT 0,
	total_revenue TEXT NOT NULL DEFAULT '0',
	last_sold TEXT
);
`

// receiptKeyIndexFmt enforces one order per receipt file. Its column is
// resolved at open time because legacy databases call it receipt_filename.
const receiptKeyIndexFmt = `CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_receipt_key
	ON orders(%[1]s) WHERE %[1]s IS NOT NULL;
`

func receiptKeyIndex(column string) string {
	return fmt.Sprintf(receiptKeyIndexFmt, column)
}

// DDL returns the complete DDL of a fresh database, receipt key index
// included.
func DDL() string {
	return Schema + "\n" + receiptKeyIndex("receipt_key")
}

// columns holds the physical names of columns that differ between the
// current and the legacy layout.
type columns struct {
	receiptKey string // receipt_key | receipt_filename
	unitPrice  string // unit_price | price
	lineTotal  string // line_total | total
}

// Store implements all storage interfaces using SQLite.
type Store struct {
	db        *sql.DB
	mu        sync.RWMutex
	cols      columns
	backupDir string
	logger    *slog.Logger
	now       func() time.Time

	// afterOrderInsert runs inside InsertOrder's transaction between the
	// order row and its lines. A non-nil error aborts the transaction.
	afterOrderInsert func() error
}

// Option configures a Store.
type Option func(*Store)

// WithBackupDir sets where purge backups are written.
func WithBackupDir(dir string) Option {
	return func(s *Store) { s.backupDir = dir }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: keeps ":memory:" databases alive across calls and
	// matches the single-writer model.
	db.SetMaxOpenConns(1)

	store := &Store{
		db:     db,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// MIGRATION
// =============================================================================

// migrate creates missing tables, adds missing columns and resolves the
// legacy column names. It never drops or renames anything.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return err
	}

	orderCols, err := s.tableColumns(ctx, "orders")
	if err != nil {
		return err
	}
	itemCols, err := s.tableColumns(ctx, "order_items")
	if err != nil {
		return err
	}

	if !orderCols["employee"] {
		if _, err := s.db.ExecContext(ctx, "ALTER TABLE orders ADD COLUMN employee TEXT"); err != nil {
			return fmt.Errorf("add employee column: %w", err)
		}
		s.logger.Info("added column", "table", "orders", "column", "employee")
	}

	s.cols = columns{receiptKey: "receipt_key", unitPrice: "unit_price", lineTotal: "line_total"}
	switch {
	case orderCols["receipt_key"]:
	case orderCols["receipt_filename"]:
		s.cols.receiptKey = "receipt_filename"
	default:
		if _, err := s.db.ExecContext(ctx, "ALTER TABLE orders ADD COLUMN receipt_key TEXT"); err != nil {
			return fmt.Errorf("add receipt_key column: %w", err)
		}
		s.logger.Info("added column", "table", "orders", "column", "receipt_key")
	}
	if !itemCols["unit_price"] && itemCols["price"] {
		s.cols.unitPrice = "price"
	}
	if !itemCols["line_total"] && itemCols["total"] {
		s.cols.lineTotal = "total"
	}

	_, err = s.db.ExecContext(ctx, receiptKeyIndex(s.cols.receiptKey))
	return err
}

func (s *Store) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// =============================================================================
// ORDER STORE (pos.Store interface)
// =============================================================================

// InsertOrder writes the order row and every line in one transaction.
func (s *Store) InsertOrder(ctx context.Context, order pos.NewOrder, at time.Time) (pos.OrderID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id pos.OrderID
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO orders (date_time, total, paid, change, employee, %s)
			VALUES (?, ?, ?, ?, ?, ?)`, s.cols.receiptKey),
			formatTime(at),
			order.Total.String(),
			order.Paid.String(),
			order.Change.String(),
			nullString(order.Employee),
			nullString(order.ReceiptKey),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return pos.ErrDuplicateReceiptKey
			}
			return fmt.Errorf("failed to insert order: %w", err)
		}
		n, err := res.LastInsertId()
		if err != nil {
			return err
		}
		id = pos.OrderID(n)

		if s.afterOrderInsert != nil {
			if err := s.afterOrderInsert(); err != nil {
				return err
			}
		}

		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
			INSERT INTO order_items (order_id, code, name, quantity, %s, %s)
			VALUES (?, ?, ?, ?, ?, ?)`, s.cols.unitPrice, s.cols.lineTotal))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, l := range order.Lines {
			if _, err := stmt.ExecContext(ctx, id, l.Code, l.Name, l.Quantity,
				l.UnitPrice.String(), l.LineTotal.String()); err != nil {
				return fmt.Errorf("failed to insert line %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// FindByReceiptKey returns the order holding key, if any.
func (s *Store) FindByReceiptKey(ctx context.Context, key string) (pos.OrderID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT order_id FROM orders WHERE %s = ?", s.cols.receiptKey), key,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return pos.OrderID(id), true, nil
}

// ListOrders returns every order, newest first, with lines attached.
func (s *Store) ListOrders(ctx context.Context) ([]pos.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT order_id, date_time, total, paid, change, employee, %s
		FROM orders
		ORDER BY order_id DESC`, s.cols.receiptKey))
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}

	var orders []pos.Order
	index := make(map[pos.OrderID]int)
	for rows.Next() {
		var (
			o                   pos.Order
			id                  int64
			dateTime            string
			total, paid, change decimal.NullDecimal
			employee, key       sql.NullString
		)
		if err := rows.Scan(&id, &dateTime, &total, &paid, &change, &employee, &key); err != nil {
			rows.Close()
			return nil, err
		}
		o.ID = pos.OrderID(id)
		o.Timestamp = parseTime(dateTime)
		o.Total, o.Paid, o.Change = total.Decimal, paid.Decimal, change.Decimal
		o.Employee, o.ReceiptKey = employee.String, key.String
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	lines, err := s.ledgerLines(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		if i, ok := index[l.OrderID]; ok {
			orders[i].Lines = append(orders[i].Lines, l.OrderLine)
		}
	}
	return orders, nil
}

// DeleteOrdersByReceiptKeys removes lines then orders in one transaction.
func (s *Store) DeleteOrdersByReceiptKeys(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	match := fmt.Sprintf("SELECT order_id FROM orders WHERE %s IN (%s)", s.cols.receiptKey, placeholders(len(keys)))

	var deleted int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM order_items WHERE order_id IN ("+match+")", args...); err != nil {
			return fmt.Errorf("failed to delete order lines: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM orders WHERE order_id IN ("+match+")", args...)
		if err != nil {
			return fmt.Errorf("failed to delete orders: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}

// =============================================================================
// SALES STORE (pos.SalesStore interface)
// =============================================================================

// IncrementSale adds one line to its code's aggregate row.
func (s *Store) IncrementSale(ctx context.Context, line pos.OrderLine, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			qty     int
			revenue decimal.NullDecimal
		)
		err := tx.QueryRowContext(ctx,
			"SELECT total_quantity, total_revenue FROM sales WHERE code = ?", line.Code,
		).Scan(&qty, &revenue)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx, `
				INSERT INTO sales (code, name, total_quantity, total_revenue, last_sold)
				VALUES (?, ?, ?, ?, ?)`,
				line.Code, line.Name, line.Quantity, line.LineTotal.String(), formatTime(when))
		case err == nil:
			_, err = tx.ExecContext(ctx, `
				UPDATE sales SET name = ?, total_quantity = ?, total_revenue = ?, last_sold = ?
				WHERE code = ?`,
				line.Name, qty+line.Quantity, revenue.Decimal.Add(line.LineTotal).String(), formatTime(when), line.Code)
		}
		if err != nil {
			return fmt.Errorf("failed to update sales for %s: %w", line.Code, err)
		}
		return nil
	})
}

// ReplaceSales swaps the whole aggregate table in one transaction.
func (s *Store) ReplaceSales(ctx context.Context, rows []pos.SalesAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM sales"); err != nil {
			return fmt.Errorf("failed to clear sales: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO sales (code, name, total_quantity, total_revenue, last_sold)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range rows {
			var lastSold sql.NullString
			if !r.LastSold.IsZero() {
				lastSold = nullString(formatTime(r.LastSold))
			}
			if _, err := stmt.ExecContext(ctx, r.Code, r.Name, r.TotalQuantity, r.TotalRevenue.String(), lastSold); err != nil {
				return fmt.Errorf("failed to insert sales row %s: %w", r.Code, err)
			}
		}
		return nil
	})
}

// ListSales returns aggregate rows in insertion order.
func (s *Store) ListSales(ctx context.Context) ([]pos.SalesAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT code, name, total_quantity, total_revenue, last_sold
		FROM sales
		ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	var result []pos.SalesAggregate
	for rows.Next() {
		var (
			r        pos.SalesAggregate
			name     sql.NullString
			revenue  decimal.NullDecimal
			lastSold sql.NullString
		)
		if err := rows.Scan(&r.Code, &name, &r.TotalQuantity, &revenue, &lastSold); err != nil {
			return nil, err
		}
		r.Name = name.String
		r.TotalRevenue = revenue.Decimal
		if lastSold.Valid {
			r.LastSold = parseTime(lastSold.String)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// LedgerLines returns every order line with its order's timestamp, in
// order id then line insertion order.
func (s *Store) LedgerLines(ctx context.Context) ([]pos.LedgerLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.ledgerLines(ctx)
}

func (s *Store) ledgerLines(ctx context.Context) ([]pos.LedgerLine, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT i.order_id, o.date_time, i.code, i.name, i.quantity, i.%s, i.%s
		FROM order_items i
		JOIN orders o ON o.order_id = i.order_id
		ORDER BY i.order_id, i.rowid`, s.cols.unitPrice, s.cols.lineTotal))
	if err != nil {
		return nil, fmt.Errorf("failed to query order lines: %w", err)
	}
	defer rows.Close()

	var result []pos.LedgerLine
	for rows.Next() {
		var (
			l                pos.LedgerLine
			id               int64
			dateTime         string
			price, lineTotal decimal.NullDecimal
		)
		if err := rows.Scan(&id, &dateTime, &l.Code, &l.Name, &l.Quantity, &price, &lineTotal); err != nil {
			return nil, err
		}
		l.OrderID = pos.OrderID(id)
		l.Timestamp = parseTime(dateTime)
		l.UnitPrice = price.Decimal
		l.LineTotal = lineTotal.Decimal
		result = append(result, l)
	}
	return result, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// withTx runs fn in a transaction. The caller holds s.mu.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

// legacyLayouts are accepted when reading date_time values written by
// other tools.
var legacyLayouts = []string{
	pos.TimestampLayout,
	"2006-01-02T15:04:05",
	time.RFC3339,
}

func formatTime(t time.Time) string {
	return t.In(time.Local).Format(pos.TimestampLayout)
}

// parseTime reads a stored timestamp as local time. Unparseable values
// yield the zero time.
func parseTime(v string) time.Time {
	v = strings.TrimSpace(v)
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
