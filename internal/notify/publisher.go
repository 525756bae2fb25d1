package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-pharma-stock/internal/kafka"
	"github.com/ariefcatur/go-pharma-stock/internal/orders"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

// Notifier announces completed transitions. Implementations must not block
// on downstream delivery.
type Notifier interface {
	OrderChanged(ctx context.Context, eventType string, p orders.OrderEventPayload) error
	PurchaseOrderChanged(ctx context.Context, eventType string, p orders.PurchaseOrderEventPayload) error
}

type Nop struct{}

func (Nop) OrderChanged(context.Context, string, orders.OrderEventPayload) error { return nil }
func (Nop) PurchaseOrderChanged(context.Context, string, orders.PurchaseOrderEventPayload) error {
	return nil
}

// eventSink is the part of kafka.Producer the publisher needs.
type eventSink interface {
	Publish(key, value []byte, headers ...kafkago.Header) error
}

// Publisher wraps events in the versioned envelope and hands them to kafka.
type Publisher struct {
	Orders         eventSink
	PurchaseOrders eventSink
	Service        string
}

var _ Notifier = (*Publisher)(nil)

func NewPublisher(ordersProducer, poProducer *kafka.Producer, service string) *Publisher {
	return &Publisher{Orders: ordersProducer, PurchaseOrders: poProducer, Service: service}
}

func (p *Publisher) OrderChanged(ctx context.Context, eventType string, payload orders.OrderEventPayload) error {
	return p.publish(ctx, p.Orders, eventType, payload.OrderID, payload)
}

func (p *Publisher) PurchaseOrderChanged(ctx context.Context, eventType string, payload orders.PurchaseOrderEventPayload) error {
	return p.publish(ctx, p.PurchaseOrders, eventType, payload.PurchaseOrderID, payload)
}

func (p *Publisher) publish(ctx context.Context, sink eventSink, eventType, id string, payload any) error {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      p.Service,
		CorrelationID: id,
		Payload:       kafka.MustMarshal(payload),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		ev.TraceID = sc.TraceID().String()
	}
	err := sink.Publish(orders.PartitionKey(id), kafka.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	if err != nil {
		return fmt.Errorf("publish %s for %s: %w", eventType, id, err)
	}
	return nil
}
