package order

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const advanceAttempts = 3

// Queue is the chef-side view of orders addressed to one seller.
type Queue struct {
	orders  Repository
	lg      *zap.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// NewQueue creates a Queue over the document store.
func NewQueue(orders Repository, opts Options) *Queue {
	opts = opts.withDefaults()
	return &Queue{
		orders:  orders,
		lg:      opts.Logger.Named("queue"),
		metrics: opts.Metrics,
		tracer:  opts.TracerProvider.Tracer(instrumentationName),
	}
}

// List returns the orders addressed to sellerID, newest first. When the
// sorted query fails the unsorted one is tried and sorted in memory; only a
// failure of that fallback is returned.
func (q *Queue) List(ctx context.Context, sellerID string) ([]Order, error) {
	if sellerID == "" {
		q.lg.Warn("List orders without seller")
		return nil, nil
	}

	ctx, span := q.tracer.Start(ctx, "order.Queue.List")
	defer span.End()

	orders, err := q.orders.ListBySeller(ctx, sellerID, ListOptions{NewestFirst: true})
	if err == nil {
		return orders, nil
	}
	q.lg.Warn("Sorted seller query failed, falling back",
		zap.String("seller_id", sellerID),
		zap.Error(err),
	)

	orders, err = q.orders.ListBySeller(ctx, sellerID, ListOptions{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list orders")
		return nil, errors.Wrap(err, "list seller orders")
	}
	sortOrdersNewestFirst(orders)
	return orders, nil
}

// Get returns one order addressed to sellerID.
func (q *Queue) Get(ctx context.Context, sellerID, orderID string) (*Order, error) {
	o, err := q.orders.Get(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if o.SellerID != sellerID {
		return nil, ErrForeignOrder
	}
	return o, nil
}

// Advance moves an order of sellerID to target. The current status is read
// first and the write only lands if nobody changed it in between; a
// concurrent change is retried against the fresh status.
func (q *Queue) Advance(ctx context.Context, sellerID, orderID string, target Status) (*Order, error) {
	ctx, span := q.tracer.Start(ctx, "order.Queue.Advance",
		trace.WithAttributes(attributeOrderID(orderID)),
	)
	defer span.End()

	for attempt := 1; ; attempt++ {
		o, err := q.Get(ctx, sellerID, orderID)
		if err != nil {
			return nil, err
		}
		if err := Transition(o.Status, target); err != nil {
			q.metrics.transitionRejected(ctx)
			return nil, err
		}

		updatedAt, err := q.orders.UpdateStatus(ctx, orderID, o.Status, target)
		switch {
		case err == nil:
			q.metrics.transition(ctx, string(target))
			q.lg.Info("Order status changed",
				zap.String("order_id", orderID),
				zap.String("from", string(o.Status)),
				zap.String("to", string(target)),
			)
			o.Status = target
			o.UpdatedAt = updatedAt
			return o, nil
		case errors.Is(err, ErrStatusChanged) && attempt < advanceAttempts:
			continue
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "update status")
			return nil, errors.Wrap(err, "update order status")
		}
	}
}
