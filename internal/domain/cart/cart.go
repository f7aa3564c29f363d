// Package cart holds a customer's pre-checkout item selection.
package cart

import (
	"slices"
	"sync"

	"github.com/shopspring/decimal"
)

// Line is a single product line in the cart.
type Line struct {
	ItemID     string
	Name       string
	UnitPrice  decimal.Decimal
	Quantity   int
	ImageRef   string
	SellerID   string
	SellerName string
}

// Subtotal returns UnitPrice * Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the in-memory cart of one customer session. It keeps at most one
// line per item and is safe for concurrent use.
type Cart struct {
	mu    sync.Mutex
	lines []Line
}

// New returns an empty Cart.
func New() *Cart {
	return &Cart{}
}

// AddItem merges l into the cart. When a line with the same ItemID exists its
// quantity grows by l.Quantity, otherwise l is appended. Quantities below one
// are treated as one.
func (c *Cart) AddItem(l Line) {
	if l.Quantity < 1 {
		l.Quantity = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.index(l.ItemID); i >= 0 {
		c.lines[i].Quantity += l.Quantity
		return
	}
	c.lines = append(c.lines, l)
}

// SetQuantity replaces the quantity of the line for itemID. A quantity of
// zero or less removes the line. Unknown items are ignored.
func (c *Cart) SetQuantity(itemID string, quantity int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.index(itemID)
	if i < 0 {
		return
	}
	if quantity <= 0 {
		c.lines = slices.Delete(c.lines, i, i+1)
		return
	}
	c.lines[i].Quantity = quantity
}

// RemoveItem deletes the line for itemID if present.
func (c *Cart) RemoveItem(itemID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.index(itemID); i >= 0 {
		c.lines = slices.Delete(c.lines, i, i+1)
	}
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mu.Lock()
	c.lines = nil
	c.mu.Unlock()
}

// Total returns the sum of unit price times quantity across all lines.
func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return subtotal(c.lines)
}

// ItemCount returns the sum of quantities across all lines.
func (c *Cart) ItemCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.lines)
}

// Snapshot captures the current cart contents. Later cart mutations do not
// affect the returned value.
func (c *Cart) Snapshot() Snapshot {
	return Snapshot{Lines: c.Lines()}
}

// Checkout hands a snapshot of the cart to place and empties the cart when
// place succeeds. The cart stays locked for the duration of place, so no line
// added concurrently is lost by the clear. On error the cart is unchanged.
func (c *Cart) Checkout(place func(Snapshot) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := place(Snapshot{Lines: slices.Clone(c.lines)}); err != nil {
		return err
	}
	c.lines = nil
	return nil
}

func (c *Cart) index(itemID string) int {
	return slices.IndexFunc(c.lines, func(l Line) bool { return l.ItemID == itemID })
}

func subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}
