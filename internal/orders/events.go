package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderEdited        = "OrderEdited"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderVoided        = "OrderVoided"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventPOAccepted         = "PurchaseOrderAccepted"
	EventPOApproved         = "PurchaseOrderApproved"
	EventPORejected         = "PurchaseOrderRejected"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order or purchase order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderEventPayload struct {
	OrderID     string          `json:"order_id"`
	CustomerID  string          `json:"customer_id"`
	Status      Status          `json:"status"`
	Void        bool            `json:"void"`
	Revision    int64           `json:"revision"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ActorID     string          `json:"actor_id"`
	Reason      string          `json:"reason,omitempty"`
}

type PurchaseOrderEventPayload struct {
	PurchaseOrderID string          `json:"purchase_order_id"`
	VendorID        string          `json:"vendor_id"`
	OrderNumber     string          `json:"order_number,omitempty"`
	Status          string          `json:"status"`
	HandlingCharges decimal.Decimal `json:"handling_charges"`
	FreightCharges  decimal.Decimal `json:"freight_charges"`
	ActorID         string          `json:"actor_id"`
}

func OrderPayload(o *Order, actor Actor, reason string) OrderEventPayload {
	return OrderEventPayload{
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		Status:      o.Status,
		Void:        o.Void,
		Revision:    o.Revision,
		TotalAmount: o.TotalAmount,
		ActorID:     actor.UserID,
		Reason:      reason,
	}
}
