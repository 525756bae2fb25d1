package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/go-pharma-stock/internal/kafka"
	"github.com/ariefcatur/go-pharma-stock/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Notification struct {
	EventType string
	Recipient string
	Subject   string
	Body      string
}

type Mailer interface {
	Send(ctx context.Context, n Notification) error
}

// LogMailer writes notifications to the log; used until an email gateway is configured.
type LogMailer struct{ Log *zap.Logger }

func (m LogMailer) Send(_ context.Context, n Notification) error {
	m.Log.Info("notification",
		zap.String("event_type", n.EventType), zap.String("recipient", n.Recipient),
		zap.String("subject", n.Subject), zap.String("body", n.Body))
	return nil
}

// Deduper claims an event id so redelivered messages are handled once.
type Deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

type Dispatcher struct {
	Dedup  Deduper
	Mailer Mailer
	Log    *zap.Logger
}

func (d *Dispatcher) Handle(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message: log and let the offset move on
		d.Log.Error("undecodable event", zap.ByteString("key", m.Key), zap.Error(err))
		return nil
	}

	n, ok, err := render(env)
	if err != nil {
		d.Log.Error("bad event payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}

	claimed, err := d.Dedup.Claim(ctx, env.EventID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	if err := d.Mailer.Send(ctx, n); err != nil {
		_ = d.Dedup.Release(ctx, env.EventID)
		return fmt.Errorf("send %s: %w", env.EventType, err)
	}
	return nil
}

func render(env orders.Envelope) (Notification, bool, error) {
	switch env.EventType {
	case orders.EventOrderCreated, orders.EventOrderEdited, orders.EventOrderCancelled,
		orders.EventOrderVoided, orders.EventOrderStatusChanged:
		p, err := kafka.UnwrapPayload[orders.OrderEventPayload](env.Payload)
		if err != nil {
			return Notification{}, false, err
		}
		return Notification{
			EventType: env.EventType,
			Recipient: p.CustomerID,
			Subject:   orderSubject(env.EventType, p),
			Body:      fmt.Sprintf("Order %s is now %s (total %s).", p.OrderID, describe(p), p.TotalAmount.StringFixed(2)),
		}, true, nil
	case orders.EventPOAccepted, orders.EventPOApproved, orders.EventPORejected:
		p, err := kafka.UnwrapPayload[orders.PurchaseOrderEventPayload](env.Payload)
		if err != nil {
			return Notification{}, false, err
		}
		return Notification{
			EventType: env.EventType,
			Recipient: p.VendorID,
			Subject:   fmt.Sprintf("Purchase order %s %s", p.OrderNumber, p.Status),
			Body: fmt.Sprintf("Purchase order %s is %s. Handling %s, freight %s.",
				p.PurchaseOrderID, p.Status, p.HandlingCharges.StringFixed(2), p.FreightCharges.StringFixed(2)),
		}, true, nil
	}
	return Notification{}, false, nil
}

func orderSubject(eventType string, p orders.OrderEventPayload) string {
	switch eventType {
	case orders.EventOrderCreated:
		return "Order placed: " + p.OrderID
	case orders.EventOrderCancelled:
		return "Order cancelled: " + p.OrderID
	case orders.EventOrderVoided:
		return "Order voided: " + p.OrderID
	case orders.EventOrderEdited:
		return "Order updated: " + p.OrderID
	}
	return "Order status changed: " + p.OrderID
}

func describe(p orders.OrderEventPayload) string {
	if p.Void {
		return "void"
	}
	return string(p.Status)
}
