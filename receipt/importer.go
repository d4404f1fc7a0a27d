/*
importer.go - Rebuild orders from a directory of receipt files

PURPOSE:
  Catch-up path after manual file recovery or a database reset. Every
  parseable receipt that is not yet in the ledger becomes an order keyed
  by its file name, so running the import twice changes nothing.

PER FILE:
  1. Already recorded under its name     -> AlreadyPresent
  2. Unreadable or no item lines         -> skipped
  3. total  = Subtotal, else sum of lines
     paid   = Paid, else total
     change = Change, else paid - total
  4. RecordOrder fails                   -> skipped, import continues

  The order is stamped with the import time, not the receipt's own
  timestamp.
*/
package receipt

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/kittykitkitt/kit/pos"
)

// ImportResult summarises one directory import.
type ImportResult struct {
	Imported       int
	AlreadyPresent int
	Skipped        []pos.ImportSkip
}

// ImportReceiptsFromDirectory imports dir and returns how many orders
// were created.
func (s *Service) ImportReceiptsFromDirectory(ctx context.Context, dir string) (int, error) {
	res, err := s.ImportDirectory(ctx, dir)
	return res.Imported, err
}

// ImportDirectory imports every receipt file in dir that the ledger does
// not already hold. A missing directory imports nothing. Only directory
// level failures are returned; per-file problems end up in Skipped.
func (s *Service) ImportDirectory(ctx context.Context, dir string) (ImportResult, error) {
	var res ImportResult

	names, err := listReceipts(dir)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("receipts directory missing, nothing to import", "dir", dir)
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("list receipts in %s: %w", dir, err)
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		present, err := s.ledger.HasReceipt(ctx, name)
		if err != nil {
			res.Skipped = append(res.Skipped, pos.ImportSkip{File: name, Reason: pos.SkipRecordFailed, Err: err})
			continue
		}
		if present {
			res.AlreadyPresent++
			continue
		}

		order, skip := s.orderFromFile(filepath.Join(dir, name))
		if skip != nil {
			skip.File = name
			res.Skipped = append(res.Skipped, *skip)
			continue
		}
		order.ReceiptKey = name

		if _, err := s.ledger.RecordOrder(ctx, order); err != nil {
			res.Skipped = append(res.Skipped, pos.ImportSkip{File: name, Reason: pos.SkipRecordFailed, Err: err})
			continue
		}
		res.Imported++
	}

	for _, skip := range res.Skipped {
		s.logger.Warn("receipt skipped", "file", skip.File, "reason", string(skip.Reason), "error", skip.Err)
	}
	s.logger.Info("receipt import finished",
		"dir", dir,
		"imported", res.Imported,
		"already_present", res.AlreadyPresent,
		"skipped", len(res.Skipped),
	)
	return res, nil
}

func (s *Service) orderFromFile(path string) (pos.NewOrder, *pos.ImportSkip) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pos.NewOrder{}, &pos.ImportSkip{Reason: pos.SkipUnreadable, Err: err}
	}
	p := s.codec.Parse(data)
	if len(p.Lines) == 0 {
		return pos.NewOrder{}, &pos.ImportSkip{Reason: pos.SkipNoItems}
	}
	return OrderFromParsed(p), nil
}

// OrderFromParsed fills in whatever scalars the receipt did not carry.
func OrderFromParsed(p Parsed) pos.NewOrder {
	total := pos.SumLineTotals(p.Lines)
	if p.Subtotal.Valid {
		total = p.Subtotal.Decimal
	}
	paid := total
	if p.Paid.Valid {
		paid = p.Paid.Decimal
	}
	change := paid.Sub(total)
	if p.Change.Valid {
		change = p.Change.Decimal
	}
	return pos.NewOrder{
		Lines:    p.Lines,
		Total:    total,
		Paid:     paid,
		Change:   change,
		Employee: p.Employee,
	}
}

// DeleteImported removes the orders whose receipt keys match the receipt
// files currently in dir. The files themselves are left alone.
func (s *Service) DeleteImported(ctx context.Context, dir string) (int, error) {
	names, err := listReceipts(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("list receipts in %s: %w", dir, err)
	}
	n, err := s.ledger.DeleteOrdersByReceiptKeys(ctx, names)
	if err != nil {
		return 0, err
	}
	s.logger.Info("imported orders deleted", "dir", dir, "files", len(names), "orders", n)
	return n, nil
}

// listReceipts returns receipt file names in dir, sorted.
func listReceipts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsReceiptFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
