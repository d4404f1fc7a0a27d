/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  pos domain types. Amounts are decimals and travel as JSON strings
  ("130.00" style); numeric JSON input is accepted too.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers and the domain, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/kittykitkitt/kit/pos"
	"github.com/kittykitkitt/kit/receipt"
)

// =============================================================================
// ORDERS
// =============================================================================

// OrderLineDTO is one order line.
type OrderLineDTO struct {
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// OrderDTO represents an order in API responses.
type OrderDTO struct {
	OrderID    int64           `json:"order_id"`
	DateTime   string          `json:"date_time"`
	Total      decimal.Decimal `json:"total"`
	Paid       decimal.Decimal `json:"paid"`
	Change     decimal.Decimal `json:"change"`
	Employee   string          `json:"employee,omitempty"`
	ReceiptKey string          `json:"receipt_key,omitempty"`
	Lines      []OrderLineDTO  `json:"lines"`
}

// RecordOrderRequest is the body of POST /api/orders.
//
// Line totals are computed from unit price and quantity. Total defaults
// to the sum of lines and Change to Paid - Total.
type RecordOrderRequest struct {
	Lines []struct {
		Code      string          `json:"code"`
		Name      string          `json:"name"`
		Quantity  int             `json:"quantity"`
		UnitPrice decimal.Decimal `json:"unit_price"`
	} `json:"lines"`
	Total      decimal.NullDecimal `json:"total"`
	Paid       decimal.Decimal     `json:"paid"`
	Change     decimal.NullDecimal `json:"change"`
	Employee   string              `json:"employee"`
	ReceiptKey string              `json:"receipt_key"`
}

// RecordOrderResponse is returned after recording an order.
type RecordOrderResponse struct {
	OrderID  int64 `json:"order_id"`
	Existing bool  `json:"existing"`
}

// DeleteOrdersRequest is the body of POST /api/orders/delete.
type DeleteOrdersRequest struct {
	ReceiptKeys []string `json:"receipt_keys"`
}

// CountResponse reports how many rows an operation touched.
type CountResponse struct {
	Count int `json:"count"`
}

// =============================================================================
// SALES
// =============================================================================

// SalesAggregateDTO is one per-code running total.
type SalesAggregateDTO struct {
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	TotalQuantity int             `json:"total_quantity"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	LastSold      string          `json:"last_sold,omitempty"`
}

// =============================================================================
// RECEIPTS AND CHECKOUT
// =============================================================================

// ImportRequest is the body of POST /api/receipts/import. An empty
// directory means the configured receipts directory.
type ImportRequest struct {
	Dir string `json:"dir"`
}

// ImportResponse summarises an import.
type ImportResponse struct {
	Imported       int       `json:"imported"`
	AlreadyPresent int       `json:"already_present"`
	Skipped        []SkipDTO `json:"skipped"`
}

// SkipDTO is one file the importer could not use.
type SkipDTO struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

// CheckoutRequest is the body of POST /api/checkout. Items are looked up
// in the menu by code.
type CheckoutRequest struct {
	Items []struct {
		Code     string `json:"code"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
	Paid     decimal.Decimal `json:"paid"`
	Employee string          `json:"employee"`
}

// CheckoutResponse describes a completed checkout.
type CheckoutResponse struct {
	OrderID  int64           `json:"order_id"`
	Receipt  string          `json:"receipt"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Change   decimal.Decimal `json:"change"`
}

// MenuItemDTO is one sellable product.
type MenuItemDTO struct {
	Category string          `json:"category"`
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toOrderDTO(o pos.Order) OrderDTO {
	dto := OrderDTO{
		OrderID:    int64(o.ID),
		DateTime:   o.Timestamp.Format(pos.TimestampLayout),
		Total:      o.Total,
		Paid:       o.Paid,
		Change:     o.Change,
		Employee:   o.Employee,
		ReceiptKey: o.ReceiptKey,
		Lines:      make([]OrderLineDTO, len(o.Lines)),
	}
	for i, l := range o.Lines {
		dto.Lines[i] = OrderLineDTO{
			Code:      l.Code,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.LineTotal,
		}
	}
	return dto
}

func toSalesDTO(a pos.SalesAggregate) SalesAggregateDTO {
	dto := SalesAggregateDTO{
		Code:          a.Code,
		Name:          a.Name,
		TotalQuantity: a.TotalQuantity,
		TotalRevenue:  a.TotalRevenue,
	}
	if !a.LastSold.IsZero() {
		dto.LastSold = a.LastSold.Format(pos.TimestampLayout)
	}
	return dto
}

func toImportResponse(res receipt.ImportResult) ImportResponse {
	resp := ImportResponse{
		Imported:       res.Imported,
		AlreadyPresent: res.AlreadyPresent,
		Skipped:        make([]SkipDTO, len(res.Skipped)),
	}
	for i, s := range res.Skipped {
		resp.Skipped[i] = SkipDTO{File: s.File, Reason: string(s.Reason)}
		if s.Err != nil {
			resp.Skipped[i].Error = s.Err.Error()
		}
	}
	return resp
}
