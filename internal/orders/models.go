package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// SizeLine is the unit of stock accounting: a quantity of one product size.
type SizeLine struct {
	SizeID    string          `json:"size_id" validate:"required,max=64"`
	Quantity  int             `json:"quantity" validate:"gt=0,lte=100000"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type OrderItem struct {
	ProductID string     `json:"product_id" validate:"required,max=64"`
	Name      string     `json:"name,omitempty" validate:"max=256"`
	Sizes     []SizeLine `json:"sizes" validate:"required,min=1,max=50,dive"`
}

type Order struct {
	ID           string          `json:"id"`
	CustomerID   string          `json:"customer_id"`
	Status       Status          `json:"status"`
	Void         bool            `json:"void"`
	VoidReason   string          `json:"void_reason,omitempty"`
	CancelReason string          `json:"cancel_reason,omitempty"`
	Items        []OrderItem     `json:"items"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Revision     int64           `json:"revision"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Invoice is a financial snapshot of an order or purchase order. It has no
// lifecycle of its own and is rebuilt whenever its source changes.
type Invoice struct {
	OrderID         string          `json:"order_id"`
	InvoiceNumber   string          `json:"invoice_number"`
	Items           []OrderItem     `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	HandlingCharges decimal.Decimal `json:"handling_charges"`
	FreightCharges  decimal.Decimal `json:"freight_charges"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Void            bool            `json:"void"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Lines flattens items into their size lines.
func Lines(items []OrderItem) []SizeLine {
	var out []SizeLine
	for _, it := range items {
		out = append(out, it.Sizes...)
	}
	return out
}

// CloneItems deep-copies an item list so stored orders never share slices.
func CloneItems(items []OrderItem) []OrderItem {
	if items == nil {
		return nil
	}
	out := make([]OrderItem, len(items))
	for i, it := range items {
		out[i] = it
		out[i].Sizes = append([]SizeLine(nil), it.Sizes...)
	}
	return out
}

func (o *Order) Clone() *Order {
	c := *o
	c.Items = CloneItems(o.Items)
	return &c
}
