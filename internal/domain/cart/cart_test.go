package cart

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLine(id, price string, qty int) Line {
	return Line{
		ItemID:     id,
		Name:       "Item " + id,
		UnitPrice:  decimal.RequireFromString(price),
		Quantity:   qty,
		ImageRef:   id + ".jpg",
		SellerID:   "chef-1",
		SellerName: "Chef One",
	}
}

func TestAddItem_MergesSameItem(t *testing.T) {
	c := New()
	c.AddItem(newLine("m1", "10.99", 1))
	c.AddItem(newLine("m1", "10.99", 2))

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.True(t, decimal.RequireFromString("32.97").Equal(c.Total()),
		"expected 32.97, got %s", c.Total())
}

func TestAddItem_QuantitySumsAcrossCalls(t *testing.T) {
	quantities := []int{1, 4, 2, 7, 3}

	c := New()
	want := 0
	for _, q := range quantities {
		c.AddItem(newLine("x", "1.50", q))
		want += q
	}

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, want, lines[0].Quantity)
	assert.Equal(t, want, c.ItemCount())
}

func TestAddItem_ZeroQuantityCountsAsOne(t *testing.T) {
	c := New()
	c.AddItem(newLine("m1", "2.00", 0))

	assert.Equal(t, 1, c.ItemCount())
}

func TestAddItem_DistinctItemsKeepOrder(t *testing.T) {
	c := New()
	c.AddItem(newLine("a", "1.00", 1))
	c.AddItem(newLine("b", "2.00", 1))
	c.AddItem(newLine("a", "1.00", 1))

	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "a", lines[0].ItemID)
	assert.Equal(t, "b", lines[1].ItemID)
}

func TestSetQuantity(t *testing.T) {
	tests := []struct {
		name      string
		itemID    string
		quantity  int
		wantLines int
		wantCount int
	}{
		{name: "replace quantity", itemID: "a", quantity: 5, wantLines: 2, wantCount: 6},
		{name: "zero removes line", itemID: "a", quantity: 0, wantLines: 1, wantCount: 1},
		{name: "negative removes line", itemID: "a", quantity: -3, wantLines: 1, wantCount: 1},
		{name: "unknown item is a no-op", itemID: "zzz", quantity: 9, wantLines: 2, wantCount: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			c.AddItem(newLine("a", "3.00", 2))
			c.AddItem(newLine("b", "4.00", 1))

			c.SetQuantity(tt.itemID, tt.quantity)

			assert.Len(t, c.Lines(), tt.wantLines)
			assert.Equal(t, tt.wantCount, c.ItemCount())
		})
	}
}

func TestSetQuantityZeroEqualsRemove(t *testing.T) {
	a := New()
	b := New()
	for _, c := range []*Cart{a, b} {
		c.AddItem(newLine("a", "3.00", 2))
		c.AddItem(newLine("b", "4.00", 1))
	}

	a.SetQuantity("a", 0)
	b.RemoveItem("a")

	assert.Equal(t, b.Lines(), a.Lines())
	assert.True(t, b.Total().Equal(a.Total()))
}

func TestAddThenRemoveRestoresTotal(t *testing.T) {
	c := New()
	c.AddItem(newLine("a", "3.10", 2))
	before := c.Total()

	c.AddItem(newLine("b", "7.45", 3))
	c.RemoveItem("b")

	assert.True(t, before.Equal(c.Total()), "expected %s, got %s", before, c.Total())
}

func TestRemoveItem_Absent(t *testing.T) {
	c := New()
	c.AddItem(newLine("a", "1.00", 1))

	c.RemoveItem("missing")

	assert.Len(t, c.Lines(), 1)
}

func TestClear(t *testing.T) {
	c := New()
	c.AddItem(newLine("a", "1.00", 1))
	c.AddItem(newLine("b", "1.00", 1))

	c.Clear()

	assert.Empty(t, c.Lines())
	assert.True(t, decimal.Zero.Equal(c.Total()))
	assert.Zero(t, c.ItemCount())
}

func TestSnapshotIsolatedFromCart(t *testing.T) {
	c := New()
	c.AddItem(newLine("a", "5.00", 1))

	snap := c.Snapshot()
	c.AddItem(newLine("a", "5.00", 4))
	c.AddItem(newLine("b", "1.00", 1))

	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 1, snap.Lines[0].Quantity)
	assert.True(t, decimal.RequireFromString("5.00").Equal(snap.Subtotal()))
}

func TestDominantSeller(t *testing.T) {
	lines := []Line{
		{ItemID: "a", UnitPrice: decimal.NewFromInt(5), Quantity: 1, SellerID: "s1", SellerName: "One"},
		{ItemID: "b", UnitPrice: decimal.NewFromInt(4), Quantity: 2, SellerID: "s2", SellerName: "Two"},
		{ItemID: "c", UnitPrice: decimal.NewFromInt(2), Quantity: 1, SellerID: "s1", SellerName: "One"},
	}

	got := Snapshot{Lines: lines}.DominantSeller()
	assert.Equal(t, Seller{ID: "s2", Name: "Two"}, got)

	tie := Snapshot{Lines: lines[:2]}
	tie.Lines[1].Quantity = 1
	tie.Lines[1].UnitPrice = decimal.NewFromInt(5)
	assert.Equal(t, "s1", tie.DominantSeller().ID)

	assert.Equal(t, Seller{}, Snapshot{}.DominantSeller())
}

func TestCart_ConcurrentAdds(t *testing.T) {
	c := New()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.AddItem(newLine("m1", "1.00", 2))
		}()
	}
	wg.Wait()

	require.Len(t, c.Lines(), 1)
	assert.Equal(t, 100, c.ItemCount())
}

func TestCheckout(t *testing.T) {
	c := New()
	c.AddItem(newLine("a", "2.50", 2))

	var got Snapshot
	err := c.Checkout(func(s Snapshot) error {
		got = s
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, got.Lines, 1)
	assert.Empty(t, c.Lines())
}

func TestCheckout_FailureKeepsCart(t *testing.T) {
	c := New()
	c.AddItem(newLine("a", "2.50", 2))

	err := c.Checkout(func(Snapshot) error { return assert.AnError })
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 2, c.ItemCount())
}
