package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/easyeat/internal/domain/cart"
	"github.com/xenking/easyeat/internal/domain/order"
)

type lineJSON struct {
	ItemID     string          `json:"itemId"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	Image      string          `json:"image,omitempty"`
	SellerID   string          `json:"sellerId"`
	SellerName string          `json:"sellerName,omitempty"`
}

func toLineJSON(l cart.Line) lineJSON {
	return lineJSON{
		ItemID:     l.ItemID,
		Name:       l.Name,
		Price:      l.UnitPrice,
		Quantity:   l.Quantity,
		Image:      l.ImageRef,
		SellerID:   l.SellerID,
		SellerName: l.SellerName,
	}
}

func toLinesJSON(lines []cart.Line) []lineJSON {
	out := make([]lineJSON, 0, len(lines))
	for _, l := range lines {
		out = append(out, toLineJSON(l))
	}
	return out
}

func (l lineJSON) line() cart.Line {
	return cart.Line{
		ItemID:     l.ItemID,
		Name:       l.Name,
		UnitPrice:  l.Price,
		Quantity:   l.Quantity,
		ImageRef:   l.Image,
		SellerID:   l.SellerID,
		SellerName: l.SellerName,
	}
}

type cartJSON struct {
	Lines     []lineJSON      `json:"lines"`
	ItemCount int             `json:"itemCount"`
	Total     decimal.Decimal `json:"total"`
}

func toCartJSON(c *cart.Cart) cartJSON {
	return cartJSON{
		Lines:     toLinesJSON(c.Lines()),
		ItemCount: c.ItemCount(),
		Total:     c.Total(),
	}
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type checkoutRequest struct {
	Address string `json:"address"`
	Phone   string `json:"phone,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

type entryJSON struct {
	ID            string          `json:"id"`
	Lines         []lineJSON      `json:"items"`
	ItemsSubtotal decimal.Decimal `json:"itemsSubtotal"`
	DeliveryFee   decimal.Decimal `json:"deliveryFee"`
	Total         decimal.Decimal `json:"totalAmount"`
	Address       string          `json:"address"`
	Phone         string          `json:"phone,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	SellerName    string          `json:"chefName,omitempty"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"date"`
	Source        string          `json:"source"`
}

func toEntryJSON(e order.Entry) entryJSON {
	return entryJSON{
		ID:            e.ID,
		Lines:         toLinesJSON(e.Lines),
		ItemsSubtotal: e.ItemsSubtotal,
		DeliveryFee:   e.DeliveryFee,
		Total:         e.Total(),
		Address:       e.Address,
		SellerName:    e.SellerName,
		Status:        string(e.Status),
		CreatedAt:     e.CreatedAt,
		Source:        string(e.Source),
	}
}

func localEntryJSON(o order.LocalOrder) entryJSON {
	return entryJSON{
		ID:            o.ID,
		Lines:         toLinesJSON(o.Lines),
		ItemsSubtotal: o.ItemsSubtotal,
		DeliveryFee:   o.DeliveryFee,
		Total:         o.Total(),
		Address:       o.Address,
		Phone:         o.Phone,
		Notes:         o.Notes,
		SellerName:    o.SellerName,
		Status:        string(o.Status),
		CreatedAt:     o.CreatedAt,
		Source:        string(order.SourceLocal),
	}
}

type historyJSON struct {
	Orders  []entryJSON `json:"orders"`
	Loading bool        `json:"loading"`
	// Stale is set when the last refresh could not reach the order store.
	Stale bool `json:"stale,omitempty"`
}

type orderJSON struct {
	ID           string          `json:"id"`
	Lines        []lineJSON      `json:"items"`
	Total        decimal.Decimal `json:"totalAmount"`
	DeliveryFee  decimal.Decimal `json:"deliveryFee"`
	Address      string          `json:"address"`
	Phone        string          `json:"phone,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	Status       string          `json:"status"`
	Next         []string        `json:"next"`
	CustomerID   string          `json:"customerId"`
	CustomerName string          `json:"customerName,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func toOrderJSON(o *order.Order) orderJSON {
	next := make([]string, 0, 2)
	for _, s := range o.Status.Next() {
		next = append(next, string(s))
	}
	return orderJSON{
		ID:           o.ID,
		Lines:        toLinesJSON(o.Lines),
		Total:        o.Total(),
		DeliveryFee:  o.DeliveryFee,
		Address:      o.Address,
		Phone:        o.Phone,
		Notes:        o.Notes,
		Status:       string(o.Status),
		Next:         next,
		CustomerID:   o.CustomerID,
		CustomerName: o.CustomerName,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

type statusRequest struct {
	Status string `json:"status"`
}
