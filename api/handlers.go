/*
handlers.go - HTTP API handlers for the point-of-sale core

PURPOSE:
  Exposes the collaborator interface (record, list, aggregate, rebuild,
  import, delete) to a local front end. Handles HTTP request/response and
  JSON, and delegates everything else to pos and receipt.

ENDPOINTS:
  Orders:
    GET    /api/orders                 List orders, newest first
    POST   /api/orders                 Record an order
    POST   /api/orders/delete          Delete orders by receipt key

  Sales:
    GET    /api/sales                  Aggregates, highest revenue first
    POST   /api/sales/rebuild          Rebuild aggregates from the ledger

  Receipts:
    POST   /api/receipts/import        Import a receipts directory
    POST   /api/checkout               Cart checkout (writes a receipt)

  Catalog:
    GET    /api/menu                   Configured menu

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 409: Unresolvable receipt key conflict
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The server only binds loopback addresses; operator
  login belongs to the front end.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kittykitkitt/kit/config"
	"github.com/kittykitkitt/kit/pos"
	"github.com/kittykitkitt/kit/receipt"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger   *pos.Ledger
	Receipts *receipt.Service

	cfg     *config.Config
	catalog map[string]config.CatalogItem
	logger  *slog.Logger
}

// NewHandler creates a handler. cfg supplies the menu used by checkout.
func NewHandler(ledger *pos.Ledger, receipts *receipt.Service, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Ledger:   ledger,
		Receipts: receipts,
		cfg:      cfg,
		catalog:  cfg.Catalog(),
		logger:   logger,
	}
}

// =============================================================================
// ORDER HANDLERS
// =============================================================================

// ListOrders returns every order with its lines.
// GET /api/orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Ledger.ListOrders(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list orders", err)
		return
	}

	dtos := make([]OrderDTO, len(orders))
	for i, o := range orders {
		dtos[i] = toOrderDTO(o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordOrder records an order. Recording an already known receipt key
// returns the existing order with 200 instead of 201.
// POST /api/orders
func (h *Handler) RecordOrder(w http.ResponseWriter, r *http.Request) {
	var req RecordOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	lines := make([]pos.OrderLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = pos.NewLine(strings.TrimSpace(l.Code), l.Name, l.Quantity, l.UnitPrice)
	}
	total := pos.SumLineTotals(lines)
	if req.Total.Valid {
		total = req.Total.Decimal
	}
	change := req.Paid.Sub(total)
	if req.Change.Valid {
		change = req.Change.Decimal
	}

	rec, err := h.Ledger.Record(r.Context(), pos.NewOrder{
		Lines:      lines,
		Total:      total,
		Paid:       req.Paid,
		Change:     change,
		Employee:   req.Employee,
		ReceiptKey: req.ReceiptKey,
	})
	if err != nil {
		writeDomainError(w, "Failed to record order", err)
		return
	}

	status := http.StatusCreated
	if rec.Existing {
		status = http.StatusOK
	}
	writeJSON(w, status, RecordOrderResponse{OrderID: int64(rec.OrderID), Existing: rec.Existing})
}

// DeleteOrders removes orders by receipt key.
// POST /api/orders/delete
func (h *Handler) DeleteOrders(w http.ResponseWriter, r *http.Request) {
	var req DeleteOrdersRequest
	if !decodeBody(w, r, &req) {
		return
	}

	n, err := h.Ledger.DeleteOrdersByReceiptKeys(r.Context(), req.ReceiptKeys)
	if err != nil {
		writeDomainError(w, "Failed to delete orders", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// =============================================================================
// SALES HANDLERS
// =============================================================================

// ListSales returns the sales aggregates.
// GET /api/sales
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Ledger.ListAggregates(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list sales", err)
		return
	}

	dtos := make([]SalesAggregateDTO, len(rows))
	for i, a := range rows {
		dtos[i] = toSalesDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RebuildSales recomputes the aggregates from the ledger.
// POST /api/sales/rebuild
func (h *Handler) RebuildSales(w http.ResponseWriter, r *http.Request) {
	n, err := h.Ledger.RebuildFromLedger(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to rebuild sales", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// =============================================================================
// RECEIPT HANDLERS
// =============================================================================

// ImportReceipts imports a receipts directory.
// POST /api/receipts/import
func (h *Handler) ImportReceipts(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	dir := req.Dir
	if dir == "" {
		dir = h.Receipts.Dir()
	}

	res, err := h.Receipts.ImportDirectory(r.Context(), dir)
	if err != nil {
		writeDomainError(w, "Failed to import receipts", err)
		return
	}
	writeJSON(w, http.StatusOK, toImportResponse(res))
}

// Checkout builds a cart from menu codes, writes the receipt and records
// the order. A configured username is replaced by its display name.
// POST /api/checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var cart pos.Cart
	for _, it := range req.Items {
		code := pos.NormalizeCode(it.Code)
		item, ok := h.catalog[code]
		if !ok {
			writeError(w, http.StatusBadRequest, "Unknown code", fmt.Errorf("code %q is not on the menu", it.Code))
			return
		}
		if err := cart.Add(code, item.Name, item.Price, it.Quantity); err != nil {
			writeDomainError(w, "Invalid item", err)
			return
		}
	}

	employee := req.Employee
	if name, ok := h.cfg.EmployeeName(employee); ok {
		employee = name
	}

	res, err := h.Receipts.Checkout(r.Context(), &cart, req.Paid, employee)
	if err != nil {
		writeDomainError(w, "Checkout failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, CheckoutResponse{
		OrderID:  int64(res.OrderID),
		Receipt:  res.Path,
		Subtotal: res.Subtotal,
		Change:   res.Change,
	})
}

// ListMenu returns the configured menu.
// GET /api/menu
func (h *Handler) ListMenu(w http.ResponseWriter, r *http.Request) {
	var items []MenuItemDTO
	for _, cat := range h.cfg.Menu {
		for _, it := range cat.Items {
			items = append(items, MenuItemDTO{
				Category: cat.Name,
				Code:     pos.NormalizeCode(it.Code),
				Name:     it.Name,
				Price:    it.Price,
			})
		}
	}
	writeJSON(w, http.StatusOK, items)
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps pos error categories to HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	var vErr *pos.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   message,
			Code:    "validation",
			Details: map[string]string{"field": vErr.Field, "message": vErr.Message},
		})
	case pos.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case pos.IsConflict(err):
		resp := ErrorResponse{Error: message, Code: "conflict", Details: err.Error()}
		writeJSON(w, http.StatusConflict, resp)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
