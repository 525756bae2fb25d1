package orders

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(product string, lines ...SizeLine) OrderItem {
	return OrderItem{ProductID: product, Sizes: lines}
}

func line(size string, qty int, price string) SizeLine {
	return SizeLine{SizeID: size, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

func TestValidateItems(t *testing.T) {
	ok := []OrderItem{item("p1", line("s1", 2, "4.50"))}
	require.NoError(t, ValidateItems(ok))

	cases := map[string][]OrderItem{
		"empty":           nil,
		"no sizes":        {item("p1")},
		"zero quantity":   {item("p1", line("s1", 0, "1"))},
		"negative qty":    {item("p1", line("s1", -2, "1"))},
		"missing size":    {item("p1", line("", 1, "1"))},
		"missing product": {item("", line("s1", 1, "1"))},
		"negative price":  {item("p1", line("s1", 1, "-0.01"))},
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateItems(items), ErrValidation)
		})
	}
}

func TestOrderGuards(t *testing.T) {
	o := &Order{Status: StatusNew}
	assert.True(t, o.Editable())
	assert.True(t, o.Reversible())

	o.Status = StatusShipped
	assert.False(t, o.Editable())
	assert.True(t, o.Reversible())

	o.Status = StatusRefunded
	assert.False(t, o.Reversible())

	o = &Order{Status: StatusProcessing, Void: true}
	assert.True(t, o.Reversed())
	assert.False(t, o.Editable())
	assert.False(t, o.Reversible())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusNew, StatusProcessing))
	assert.True(t, CanTransition(StatusShipped, StatusRefunded))
	assert.False(t, CanTransition(StatusNew, StatusShipped))
	assert.False(t, CanTransition(StatusCancelled, StatusProcessing))
	assert.False(t, Status("lost").Valid())
}

func TestTotalsAndInvoice(t *testing.T) {
	o := &Order{ID: "0f9a2d1c-7b44-4e8e-9b1f-1c2d3e4f5a6b"}
	o.ApplyItems([]OrderItem{
		item("p1", line("s1", 3, "2.50"), line("s2", 1, "10")),
	}, decimal.RequireFromString("1.75"))

	assert.Equal(t, "19.25", o.TotalAmount.StringFixed(2))

	inv := InvoiceFromOrder(o)
	assert.Equal(t, "INV-0F9A2D1C7B", inv.InvoiceNumber)
	assert.Equal(t, "17.50", inv.Subtotal.StringFixed(2))
	assert.True(t, inv.TotalAmount.Equal(o.TotalAmount))
	assert.Equal(t, o.Items, inv.Items)
}

func TestItemsCodecVersioned(t *testing.T) {
	in := []OrderItem{item("p1", line("s1", 2, "3.10"))}
	b, err := EncodeItems(in)
	require.NoError(t, err)
	out, err := DecodeItems(b)
	require.NoError(t, err)
	assert.Equal(t, "s1", out[0].Sizes[0].SizeID)

	_, err = DecodeItems([]byte(`{"schema_version":9,"items":[]}`))
	assert.Error(t, err)
	_, err = DecodeItems([]byte(`[{"product_id":"p1"}]`))
	assert.Error(t, err)
}

func TestMemStoreRevisionGuard(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	o := &Order{ID: "o1", CustomerID: "c1", Status: StatusNew}
	require.NoError(t, s.Create(ctx, o))
	assert.Equal(t, int64(1), o.Revision)

	o.Status = StatusProcessing
	require.NoError(t, s.UpdateStatus(ctx, o, 1))
	assert.Equal(t, int64(2), o.Revision)

	stale := &Order{ID: "o1", Status: StatusShipped}
	assert.ErrorIs(t, s.UpdateStatus(ctx, stale, 1), ErrConflict)
	assert.ErrorIs(t, s.UpdateStatus(ctx, &Order{ID: "nope"}, 1), ErrNotFound)

	got, err := s.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)
}

func TestMemStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	o := &Order{ID: "o1", Items: []OrderItem{item("p1", line("s1", 1, "1"))}}
	require.NoError(t, s.Create(ctx, o))

	o.Items[0].Sizes[0].Quantity = 99
	got, _ := s.Get(ctx, "o1")
	assert.Equal(t, 1, got.Items[0].Sizes[0].Quantity)
}

func TestActor(t *testing.T) {
	o := &Order{CustomerID: "c1"}
	assert.True(t, Actor{UserID: "a", Role: RoleAdmin}.CanAccess(o))
	assert.True(t, Actor{UserID: "c1", Role: RoleCustomer}.CanAccess(o))
	assert.False(t, Actor{UserID: "c2", Role: RoleCustomer}.CanAccess(o))
	assert.False(t, Actor{UserID: "v", Role: RoleVendor}.CanAccess(o))

	assert.ErrorIs(t, Actor{UserID: "x", Role: "root"}.Validate(), ErrForbidden)
	assert.ErrorIs(t, Actor{Role: RoleAdmin}.Validate(), ErrForbidden)
	assert.NoError(t, Actor{UserID: "x", Role: RoleStaff}.Validate())
}
