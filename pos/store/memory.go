// Package store provides in-memory implementations of the pos storage
// interfaces.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kittykitkitt/kit/pos"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements pos.Store and pos.SalesStore.
type Memory struct {
	mu     sync.RWMutex
	nextID pos.OrderID
	orders []pos.Order // insertion (id) order
	byKey  map[string]pos.OrderID
	sales  []pos.SalesAggregate // insertion order
	byCode map[string]int

	// IncrementHook, when set, runs before each aggregate increment.
	// A non-nil error fails that line.
	IncrementHook func(line pos.OrderLine) error
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		nextID: 1,
		byKey:  make(map[string]pos.OrderID),
		byCode: make(map[string]int),
	}
}

// InsertOrder appends the order with its lines. Check and write happen
// under one lock, so the pair is atomic.
func (m *Memory) InsertOrder(_ context.Context, order pos.NewOrder, at time.Time) (pos.OrderID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if order.ReceiptKey != "" {
		if _, exists := m.byKey[order.ReceiptKey]; exists {
			return 0, pos.ErrDuplicateReceiptKey
		}
	}

	id := m.nextID
	m.nextID++
	m.orders = append(m.orders, pos.Order{
		ID:         id,
		Timestamp:  at,
		Total:      order.Total,
		Paid:       order.Paid,
		Change:     order.Change,
		Employee:   order.Employee,
		ReceiptKey: order.ReceiptKey,
		Lines:      append([]pos.OrderLine(nil), order.Lines...),
	})
	if order.ReceiptKey != "" {
		m.byKey[order.ReceiptKey] = id
	}
	return id, nil
}

func (m *Memory) FindByReceiptKey(_ context.Context, key string) (pos.OrderID, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[key]
	return id, ok, nil
}

// ListOrders returns copies, most recent first.
func (m *Memory) ListOrders(_ context.Context) ([]pos.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]pos.Order, len(m.orders))
	for i, o := range m.orders {
		o.Lines = append([]pos.OrderLine(nil), o.Lines...)
		result[len(m.orders)-1-i] = o
	}
	return result, nil
}

func (m *Memory) DeleteOrdersByReceiptKeys(_ context.Context, keys []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[pos.OrderID]bool)
	for _, k := range keys {
		if id, ok := m.byKey[k]; ok {
			drop[id] = true
			delete(m.byKey, k)
		}
	}
	if len(drop) == 0 {
		return 0, nil
	}
	kept := m.orders[:0]
	for _, o := range m.orders {
		if !drop[o.ID] {
			kept = append(kept, o)
		}
	}
	m.orders = kept
	return len(drop), nil
}

// =============================================================================
// SALES
// =============================================================================

func (m *Memory) IncrementSale(_ context.Context, line pos.OrderLine, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IncrementHook != nil {
		if err := m.IncrementHook(line); err != nil {
			return err
		}
	}

	i, ok := m.byCode[line.Code]
	if !ok {
		m.byCode[line.Code] = len(m.sales)
		m.sales = append(m.sales, pos.SalesAggregate{
			Code:          line.Code,
			Name:          line.Name,
			TotalQuantity: line.Quantity,
			TotalRevenue:  line.LineTotal,
			LastSold:      when,
		})
		return nil
	}
	row := &m.sales[i]
	row.Name = line.Name
	row.TotalQuantity += line.Quantity
	row.TotalRevenue = row.TotalRevenue.Add(line.LineTotal)
	row.LastSold = when
	return nil
}

func (m *Memory) ReplaceSales(_ context.Context, rows []pos.SalesAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sales = append([]pos.SalesAggregate(nil), rows...)
	m.byCode = make(map[string]int, len(rows))
	for i, r := range rows {
		m.byCode[r.Code] = i
	}
	return nil
}

func (m *Memory) ListSales(_ context.Context) ([]pos.SalesAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]pos.SalesAggregate(nil), m.sales...), nil
}

// LedgerLines flattens every order's lines in order id order.
func (m *Memory) LedgerLines(_ context.Context) ([]pos.LedgerLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orders := append([]pos.Order(nil), m.orders...)
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })

	var result []pos.LedgerLine
	for _, o := range orders {
		for _, l := range o.Lines {
			result = append(result, pos.LedgerLine{OrderID: o.ID, Timestamp: o.Timestamp, OrderLine: l})
		}
	}
	return result, nil
}
