package receipt_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittykitkitt/kit/pos"
	"github.com/kittykitkitt/kit/receipt"
)

func TestCheckout_WritesReceiptAndRecordsOrder(t *testing.T) {
	// GIVEN: A cart with two items
	// WHEN: Checking out
	// THEN: A receipt file exists and an order is keyed by its name

	dir := t.TempDir()
	svc, ledger := newService(t, dir)
	ctx := context.Background()

	var cart pos.Cart
	require.NoError(t, cart.Add("AR", "Adobo Rice Bowl", amt("65"), 2))
	require.NoError(t, cart.Add("CK", "Coke", amt("25"), 1))

	res, err := svc.Checkout(ctx, &cart, amt("200"), "Kit")
	require.NoError(t, err)
	assert.True(t, res.Subtotal.Equal(amt("155")))
	assert.True(t, res.Change.Equal(amt("45")))
	assert.Equal(t, dir, filepath.Dir(res.Path))

	ok, err := ledger.HasReceipt(ctx, filepath.Base(res.Path))
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	p := svc.Codec().Parse(data)
	assert.Len(t, p.Lines, 2)
	assert.Equal(t, "Kit", p.Employee)

	// Importing the directory afterwards finds nothing new.
	imp, err := svc.ImportDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Zero(t, imp.Imported)
	assert.Equal(t, 1, imp.AlreadyPresent)
}

func TestCheckout_SameSecondGetsDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	svc, ledger := newService(t, dir)
	ctx := context.Background()

	var cart pos.Cart
	require.NoError(t, cart.Add("CK", "Coke", amt("25"), 1))

	a, err := svc.Checkout(ctx, &cart, amt("25"), "")
	require.NoError(t, err)
	b, err := svc.Checkout(ctx, &cart, amt("25"), "")
	require.NoError(t, err)
	assert.NotEqual(t, a.Path, b.Path)

	orders, err := ledger.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestCheckout_Rejects(t *testing.T) {
	dir := t.TempDir()
	svc, _ := newService(t, dir)
	ctx := context.Background()

	_, err := svc.Checkout(ctx, &pos.Cart{}, amt("100"), "Kit")
	assert.ErrorIs(t, err, pos.ErrValidation, "empty cart")

	var cart pos.Cart
	require.NoError(t, cart.Add("AR", "Adobo Rice Bowl", amt("65"), 1))
	_, err = svc.Checkout(ctx, &cart, amt("60"), "Kit")
	var vErr *pos.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "paid", vErr.Field)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries, "nothing written on rejection")
}

func TestCheckout_RecordFailureKeepsFile(t *testing.T) {
	dir := t.TempDir()
	svc, _ := newService(t, dir)

	var cart pos.Cart
	require.NoError(t, cart.Add("AR", "Adobo Rice Bowl", amt("65"), 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := svc.Checkout(ctx, &cart, amt("65"), "Kit")
	var cErr *receipt.CheckoutError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, res.Path, cErr.Path)
	assert.FileExists(t, cErr.Path)
}
