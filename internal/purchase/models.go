package purchase

import (
	"fmt"
	"time"

	"github.com/ariefcatur/go-pharma-stock/internal/orders"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// PurchaseOrder is a vendor supply order. Approval books its items into
// stock; StockReceived records that so a later rejection can take them back.
type PurchaseOrder struct {
	ID              string             `json:"id"`
	VendorID        string             `json:"vendor_id"`
	OrderNumber     string             `json:"order_number,omitempty"`
	Status          Status             `json:"status"`
	Items           []orders.OrderItem `json:"items"`
	HandlingCharges decimal.Decimal    `json:"handling_charges"`
	FreightCharges  decimal.Decimal    `json:"freight_charges"`
	StockReceived   bool               `json:"stock_received"`
	Revision        int64              `json:"revision"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func (po *PurchaseOrder) Clone() *PurchaseOrder {
	c := *po
	c.Items = orders.CloneItems(po.Items)
	return &c
}

func OrderNumber(n int64) string {
	return fmt.Sprintf("PO-%06d", n)
}

// InvoiceFromPurchaseOrder derives the linked invoice. Charges are added on
// top of the item subtotal; purchase orders carry no tax.
func InvoiceFromPurchaseOrder(po *PurchaseOrder) orders.Invoice {
	sub := orders.Subtotal(po.Items)
	return orders.Invoice{
		OrderID:         po.ID,
		InvoiceNumber:   "INV-" + po.OrderNumber,
		Items:           orders.CloneItems(po.Items),
		Subtotal:        sub,
		TaxAmount:       decimal.Zero,
		HandlingCharges: po.HandlingCharges,
		FreightCharges:  po.FreightCharges,
		TotalAmount:     sub.Add(po.HandlingCharges).Add(po.FreightCharges),
		UpdatedAt:       po.UpdatedAt,
	}
}

func payload(po *PurchaseOrder, actor orders.Actor) orders.PurchaseOrderEventPayload {
	return orders.PurchaseOrderEventPayload{
		PurchaseOrderID: po.ID,
		VendorID:        po.VendorID,
		OrderNumber:     po.OrderNumber,
		Status:          string(po.Status),
		HandlingCharges: po.HandlingCharges,
		FreightCharges:  po.FreightCharges,
		ActorID:         actor.UserID,
	}
}
