package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments are the marketplace business counters. The zero value is not
// usable; build one with NewInstruments.
type Instruments struct {
	ordersCreated     metric.Int64Counter
	ordersApproved    metric.Int64Counter
	ordersCancelled   metric.Int64Counter
	stockRejections   metric.Int64Counter
	sideEffectFailure metric.Int64Counter
	janitorDeleted    metric.Int64Counter
}

// NewInstruments registers the counters on the global meter provider. With
// no provider installed the counters are no-ops.
func NewInstruments() (*Instruments, error) {
	meter := otel.Meter("marketplace")
	var (
		in  Instruments
		err error
	)

	if in.ordersCreated, err = meter.Int64Counter("marketplace.orders.created",
		metric.WithDescription("Orders placed")); err != nil {
		return nil, err
	}
	if in.ordersApproved, err = meter.Int64Counter("marketplace.orders.approved",
		metric.WithDescription("Orders approved and stock deducted")); err != nil {
		return nil, err
	}
	if in.ordersCancelled, err = meter.Int64Counter("marketplace.orders.cancelled",
		metric.WithDescription("Orders cancelled by an admin")); err != nil {
		return nil, err
	}
	if in.stockRejections, err = meter.Int64Counter("marketplace.orders.stock_rejections",
		metric.WithDescription("Approvals rejected for insufficient stock")); err != nil {
		return nil, err
	}
	if in.sideEffectFailure, err = meter.Int64Counter("marketplace.side_effects.failures",
		metric.WithDescription("Post-commit side effects that failed")); err != nil {
		return nil, err
	}
	if in.janitorDeleted, err = meter.Int64Counter("marketplace.janitor.deleted_orders",
		metric.WithDescription("Stale pickup orders removed by the janitor")); err != nil {
		return nil, err
	}

	return &in, nil
}

func (in *Instruments) OrderCreated(ctx context.Context, method string) {
	in.ordersCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("pickup_method", method)))
}

func (in *Instruments) OrderApproved(ctx context.Context) {
	in.ordersApproved.Add(ctx, 1)
}

func (in *Instruments) OrderCancelled(ctx context.Context) {
	in.ordersCancelled.Add(ctx, 1)
}

func (in *Instruments) StockRejected(ctx context.Context) {
	in.stockRejections.Add(ctx, 1)
}

func (in *Instruments) SideEffectFailed(ctx context.Context, task string) {
	in.sideEffectFailure.Add(ctx, 1, metric.WithAttributes(attribute.String("task", task)))
}

func (in *Instruments) JanitorDeleted(ctx context.Context, n int64) {
	in.janitorDeleted.Add(ctx, n)
}
