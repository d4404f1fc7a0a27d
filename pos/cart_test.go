package pos_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittykitkitt/kit/pos"
)

func TestCart_AddMergesSameCode(t *testing.T) {
	var cart pos.Cart

	require.NoError(t, cart.Add("AR", "Adobo Rice Bowl", amt("65"), 1))
	require.NoError(t, cart.Add("CK", "Coke", amt("25"), 2))
	require.NoError(t, cart.Add("AR", "Adobo Rice Bowl", amt("65"), 2))

	lines := cart.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.True(t, lines[0].LineTotal.Equal(amt("195")))
	assert.True(t, cart.Subtotal().Equal(amt("245")))
}

func TestCart_RemoveAndClear(t *testing.T) {
	var cart pos.Cart
	require.NoError(t, cart.Add("AR", "Adobo Rice Bowl", amt("65"), 1))
	require.NoError(t, cart.Add("CK", "Coke", amt("25"), 1))

	cart.Remove(5) // ignored
	cart.Remove(0)
	require.Equal(t, 1, cart.Len())
	assert.Equal(t, "CK", cart.Lines()[0].Code)

	cart.Clear()
	assert.True(t, cart.IsEmpty())
	assert.True(t, cart.Subtotal().IsZero())
}

func TestCart_AddRejectsBadInput(t *testing.T) {
	var cart pos.Cart

	assert.ErrorIs(t, cart.Add("", "Nothing", amt("1"), 1), pos.ErrValidation)
	assert.ErrorIs(t, cart.Add("AR", "Adobo Rice Bowl", amt("65"), 0), pos.ErrValidation)
	assert.True(t, cart.IsEmpty())
}
