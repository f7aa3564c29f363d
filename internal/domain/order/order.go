package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/easyeat/internal/domain/cart"
)

// Order is a remotely persisted checkout record. Lines are snapshots owned
// exclusively by the order.
type Order struct {
	ID            string
	Lines         []cart.Line
	ItemsSubtotal decimal.Decimal
	DeliveryFee   decimal.Decimal
	Address       string
	Phone         string
	Notes         string
	Status        Status
	CustomerID    string
	CustomerName  string
	SellerID      string
	SellerName    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Total returns ItemsSubtotal + DeliveryFee.
func (o *Order) Total() decimal.Decimal {
	return o.ItemsSubtotal.Add(o.DeliveryFee)
}

// LocalOrder is the optimistic on-device copy of an order. It tracks only the
// coarse customer-facing status.
type LocalOrder struct {
	ID            string
	CustomerID    string
	SellerID      string
	SellerName    string
	Lines         []cart.Line
	ItemsSubtotal decimal.Decimal
	DeliveryFee   decimal.Decimal
	Address       string
	Phone         string
	Notes         string
	Status        CustomerStatus
	CreatedAt     time.Time
}

// Total returns ItemsSubtotal + DeliveryFee.
func (o *LocalOrder) Total() decimal.Decimal {
	return o.ItemsSubtotal.Add(o.DeliveryFee)
}

// Source tells where a history entry came from.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Entry is the normalized, customer-facing shape of an order in the history
// list regardless of its source.
type Entry struct {
	ID            string
	Lines         []cart.Line
	ItemsSubtotal decimal.Decimal
	DeliveryFee   decimal.Decimal
	Address       string
	SellerName    string
	Status        CustomerStatus
	CreatedAt     time.Time
	Source        Source
}

// Total returns ItemsSubtotal + DeliveryFee.
func (e *Entry) Total() decimal.Decimal {
	return e.ItemsSubtotal.Add(e.DeliveryFee)
}

// ListOptions tweaks remote order queries.
type ListOptions struct {
	// NewestFirst asks the store to sort by creation time, descending.
	NewestFirst bool
}

// Repository is the remote document store holding orders.
type Repository interface {
	// Create persists o. The store assigns CreatedAt and UpdatedAt.
	Create(ctx context.Context, o *Order) error
	// Get returns ErrOrderNotFound when id is unknown.
	Get(ctx context.Context, id string) (*Order, error)
	// UpdateStatus moves the order from status from to status to. It returns
	// ErrStatusChanged when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to Status) (time.Time, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	ListBySeller(ctx context.Context, sellerID string, opts ListOptions) ([]Order, error)
}

// LocalStorage is durable on-device string key-value storage.
type LocalStorage interface {
	// Get reports ok=false when key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
