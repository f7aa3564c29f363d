package order

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/xenking/easyeat/internal/domain/order"

// Metrics counts order lifecycle events. A nil *Metrics records nothing.
type Metrics struct {
	placed         metric.Int64Counter
	remoteFailures metric.Int64Counter
	transitions    metric.Int64Counter
	rejected       metric.Int64Counter
	autoDelivered  metric.Int64Counter
}

// NewMetrics registers the order instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(instrumentationName)

	var (
		m   Metrics
		err error
	)
	if m.placed, err = meter.Int64Counter("easyeat.orders.placed",
		metric.WithDescription("Orders committed locally at checkout"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.placed")
	}
	if m.remoteFailures, err = meter.Int64Counter("easyeat.orders.remote_failures",
		metric.WithDescription("Best-effort document store operations that failed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.remote_failures")
	}
	if m.transitions, err = meter.Int64Counter("easyeat.orders.transitions",
		metric.WithDescription("Applied status transitions"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.transitions")
	}
	if m.rejected, err = meter.Int64Counter("easyeat.orders.transitions_rejected",
		metric.WithDescription("Status transitions rejected by the state machine"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.transitions_rejected")
	}
	if m.autoDelivered, err = meter.Int64Counter("easyeat.orders.auto_delivered",
		metric.WithDescription("Local orders moved to delivered by the delivery timer"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.auto_delivered")
	}
	return &m, nil
}

func (m *Metrics) orderPlaced(ctx context.Context) {
	if m == nil {
		return
	}
	m.placed.Add(ctx, 1)
}

func (m *Metrics) remoteFailure(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.remoteFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *Metrics) transition(ctx context.Context, to string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", to)))
}

func (m *Metrics) transitionRejected(ctx context.Context) {
	if m == nil {
		return
	}
	m.rejected.Add(ctx, 1)
}

func (m *Metrics) orderAutoDelivered(ctx context.Context) {
	if m == nil {
		return
	}
	m.autoDelivered.Add(ctx, 1)
}
