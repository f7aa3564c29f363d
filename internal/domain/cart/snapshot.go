package cart

import "github.com/shopspring/decimal"

// Snapshot is an immutable copy of cart lines taken at checkout.
type Snapshot struct {
	Lines []Line
}

// IsEmpty reports whether the snapshot has no lines.
func (s Snapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}

// Subtotal returns the sum of unit price times quantity across all lines.
func (s Snapshot) Subtotal() decimal.Decimal {
	return subtotal(s.Lines)
}

// Seller identifies the chef an order is addressed to.
type Seller struct {
	ID   string
	Name string
}

// DominantSeller returns the seller with the largest share of the subtotal.
// Ties go to the seller that appears first. An empty snapshot yields the zero
// Seller.
func (s Snapshot) DominantSeller() Seller {
	var (
		order  []Seller
		shares = make(map[string]decimal.Decimal)
	)
	for _, l := range s.Lines {
		if _, ok := shares[l.SellerID]; !ok {
			order = append(order, Seller{ID: l.SellerID, Name: l.SellerName})
			shares[l.SellerID] = decimal.Zero
		}
		shares[l.SellerID] = shares[l.SellerID].Add(l.Subtotal())
	}

	var best Seller
	bestShare := decimal.NewFromInt(-1)
	for _, seller := range order {
		if share := shares[seller.ID]; share.GreaterThan(bestShare) {
			best, bestShare = seller, share
		}
	}
	return best
}
