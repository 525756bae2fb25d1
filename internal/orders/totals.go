package orders

import (
	"strings"

	"github.com/shopspring/decimal"
)

func Subtotal(items []OrderItem) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range Lines(items) {
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// ApplyItems replaces the order's items and recomputes its totals.
func (o *Order) ApplyItems(items []OrderItem, tax decimal.Decimal) {
	o.Items = CloneItems(items)
	o.TaxAmount = tax
	o.TotalAmount = Subtotal(items).Add(tax)
}

func InvoiceNumber(id string) string {
	s := strings.ReplaceAll(id, "-", "")
	if len(s) > 10 {
		s = s[:10]
	}
	return "INV-" + strings.ToUpper(s)
}

// InvoiceFromOrder derives the invoice snapshot of an order.
func InvoiceFromOrder(o *Order) Invoice {
	return Invoice{
		OrderID:         o.ID,
		InvoiceNumber:   InvoiceNumber(o.ID),
		Items:           CloneItems(o.Items),
		Subtotal:        Subtotal(o.Items),
		TaxAmount:       o.TaxAmount,
		HandlingCharges: decimal.Zero,
		FreightCharges:  decimal.Zero,
		TotalAmount:     o.TotalAmount,
		Void:            o.Void,
		UpdatedAt:       o.UpdatedAt,
	}
}
