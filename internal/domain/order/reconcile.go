package order

import (
	"cmp"
	"slices"

	"go.opentelemetry.io/otel/attribute"
)

// reconcile merges the two order lists into the customer-facing history.
// Signed-in customers see every remote order plus local orders that have not
// reached the store yet, limited to the ones they placed themselves or
// anonymously. A customer cancellation the store has not accepted yet shows
// over a remote copy that is still open. Anonymous users see the local list
// as is.
func reconcile(local []LocalOrder, remote []Order, customerID string, authenticated bool) []Entry {
	out := make([]Entry, 0, len(local)+len(remote))
	if !authenticated {
		for _, o := range local {
			out = append(out, localEntry(o))
		}
		sortEntriesNewestFirst(out)
		return out
	}

	cancelled := make(map[string]struct{})
	for _, o := range local {
		if o.Status == CustomerCancelled {
			cancelled[o.ID] = struct{}{}
		}
	}

	synced := make(map[string]struct{}, len(remote))
	for _, o := range remote {
		synced[o.ID] = struct{}{}
		e := remoteEntry(o)
		if _, ok := cancelled[o.ID]; ok && !o.Status.Terminal() {
			e.Status = CustomerCancelled
		}
		out = append(out, e)
	}
	for _, o := range local {
		if _, ok := synced[o.ID]; ok {
			continue
		}
		if o.CustomerID != "" && o.CustomerID != customerID {
			continue
		}
		out = append(out, localEntry(o))
	}
	sortEntriesNewestFirst(out)
	return out
}

func localEntry(o LocalOrder) Entry {
	return Entry{
		ID:            o.ID,
		Lines:         slices.Clone(o.Lines),
		ItemsSubtotal: o.ItemsSubtotal,
		DeliveryFee:   o.DeliveryFee,
		Address:       o.Address,
		SellerName:    o.SellerName,
		Status:        o.Status,
		CreatedAt:     o.CreatedAt,
		Source:        SourceLocal,
	}
}

func remoteEntry(o Order) Entry {
	return Entry{
		ID:            o.ID,
		Lines:         slices.Clone(o.Lines),
		ItemsSubtotal: o.ItemsSubtotal,
		DeliveryFee:   o.DeliveryFee,
		Address:       o.Address,
		SellerName:    o.SellerName,
		Status:        o.Status.Customer(),
		CreatedAt:     o.CreatedAt,
		Source:        SourceRemote,
	}
}

func sortEntriesNewestFirst(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

func sortOrdersNewestFirst(orders []Order) {
	slices.SortStableFunc(orders, func(a, b Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func attributeOrderID(id string) attribute.KeyValue {
	return attribute.String("order.id", id)
}
