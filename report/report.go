// Package report exports orders and sales aggregates as a spreadsheet.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/kittykitkitt/kit/pos"
)

// Sheet names in the exported workbook.
const (
	SalesSheet  = "Sales"
	OrdersSheet = "Orders"
)

// numFmtAmount is the built-in "#,##0.00" format.
const numFmtAmount = 4

// WriteSalesWorkbook writes an .xlsx with one row per aggregate on the
// Sales sheet and one row per order on the Orders sheet.
func WriteSalesWorkbook(w io.Writer, aggregates []pos.SalesAggregate, orders []pos.Order) error {
	f := excelize.NewFile()
	defer f.Close()

	amount, err := f.NewStyle(&excelize.Style{NumFmt: numFmtAmount})
	if err != nil {
		return err
	}

	salesIdx, err := f.NewSheet(SalesSheet)
	if err != nil {
		return err
	}
	if _, err := f.NewSheet(OrdersSheet); err != nil {
		return err
	}
	f.SetActiveSheet(salesIdx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	sales := [][]any{{"Code", "Name", "Quantity", "Revenue", "Last sold"}}
	for _, a := range aggregates {
		lastSold := ""
		if !a.LastSold.IsZero() {
			lastSold = a.LastSold.Format(pos.TimestampLayout)
		}
		sales = append(sales, []any{a.Code, a.Name, a.TotalQuantity, a.TotalRevenue.InexactFloat64(), lastSold})
	}
	if err := writeRows(f, SalesSheet, sales); err != nil {
		return err
	}
	if err := styleColumn(f, SalesSheet, "D", len(sales), amount); err != nil {
		return err
	}

	ords := [][]any{{"Order", "Date", "Employee", "Receipt", "Total", "Paid", "Change", "Items"}}
	for _, o := range orders {
		items := 0
		for _, l := range o.Lines {
			items += l.Quantity
		}
		ords = append(ords, []any{
			int64(o.ID),
			o.Timestamp.Format(pos.TimestampLayout),
			o.Employee,
			o.ReceiptKey,
			o.Total.InexactFloat64(),
			o.Paid.InexactFloat64(),
			o.Change.InexactFloat64(),
			items,
		})
	}
	if err := writeRows(f, OrdersSheet, ords); err != nil {
		return err
	}
	for _, col := range []string{"E", "F", "G"} {
		if err := styleColumn(f, OrdersSheet, col, len(ords), amount); err != nil {
			return err
		}
	}

	f.SetColWidth(SalesSheet, "B", "B", 28)
	f.SetColWidth(SalesSheet, "E", "E", 20)
	f.SetColWidth(OrdersSheet, "B", "B", 20)
	f.SetColWidth(OrdersSheet, "D", "D", 32)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func styleColumn(f *excelize.File, sheet, col string, rows, style int) error {
	if rows < 2 {
		return nil
	}
	return f.SetCellStyle(sheet, fmt.Sprintf("%s2", col), fmt.Sprintf("%s%d", col, rows), style)
}
