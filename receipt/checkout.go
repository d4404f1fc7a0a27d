package receipt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kittykitkitt/kit/pos"
)

// CheckoutResult describes a completed checkout.
type CheckoutResult struct {
	OrderID  pos.OrderID
	Path     string // receipt file written
	Subtotal decimal.Decimal
	Change   decimal.Decimal
}

// CheckoutError is returned when the receipt was written but the order
// could not be recorded. The file stays on disk for a later import.
type CheckoutError struct {
	Path string
	Err  error
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("receipt %s written but order not recorded: %v", e.Path, e.Err)
}

func (e *CheckoutError) Unwrap() error { return e.Err }

// Checkout renders the cart to a new receipt file, then records the
// order keyed by that file's name.
func (s *Service) Checkout(ctx context.Context, cart *pos.Cart, paid decimal.Decimal, employee string) (CheckoutResult, error) {
	if cart == nil || cart.IsEmpty() {
		return CheckoutResult{}, pos.Invalid("cart", "is empty")
	}
	subtotal := cart.Subtotal()
	if paid.LessThan(subtotal) {
		return CheckoutResult{}, pos.Invalid("paid", "%s is less than subtotal %s", paid, subtotal)
	}

	now := time.Now()
	r := Receipt{
		Employee: employee,
		IssuedAt: now,
		Lines:    cart.Lines(),
		Subtotal: subtotal,
		Paid:     paid,
		Change:   paid.Sub(subtotal),
	}
	data, err := s.codec.Render(r)
	if err != nil {
		return CheckoutResult{}, err
	}

	path, err := s.writeReceipt(now, data)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("write receipt: %w", err)
	}

	id, err := s.ledger.RecordOrder(ctx, pos.NewOrder{
		Lines:      r.Lines,
		Total:      r.Subtotal,
		Paid:       r.Paid,
		Change:     r.Change,
		Employee:   employee,
		ReceiptKey: filepath.Base(path),
	})
	if err != nil {
		s.logger.Error("order not recorded, receipt kept for import", "path", path, "error", err)
		return CheckoutResult{Path: path}, &CheckoutError{Path: path, Err: err}
	}

	s.logger.Info("checkout recorded", "order_id", int64(id), "receipt", filepath.Base(path), "total", subtotal.StringFixed(2))
	return CheckoutResult{OrderID: id, Path: path, Subtotal: subtotal, Change: r.Change}, nil
}

// writeReceipt creates the receipt file without overwriting. A name taken
// within the same second gets a _<n> suffix.
func (s *Service) writeReceipt(at time.Time, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	base := strings.TrimSuffix(FileName(at), ".txt")
	for n := 0; n < 1000; n++ {
		name := base + ".txt"
		if n > 0 {
			name = fmt.Sprintf("%s_%d.txt", base, n)
		}
		path := filepath.Join(s.dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", err
		}
		return path, f.Close()
	}
	return "", fmt.Errorf("no free receipt name for %s", base)
}
