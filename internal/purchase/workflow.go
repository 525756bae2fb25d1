// Package purchase runs the vendor purchase-order flow:
// pending -> accepted (vendor) -> approved (admin, stock in) -> rejected (admin, stock out).
package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-pharma-stock/internal/audit"
	"github.com/ariefcatur/go-pharma-stock/internal/notify"
	"github.com/ariefcatur/go-pharma-stock/internal/orders"
	"github.com/ariefcatur/go-pharma-stock/internal/reconcile"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pharma",
	Subsystem: "purchase_orders",
	Name:      "transitions_total",
	Help:      "Purchase order operations by action and result",
}, []string{"action", "result"})

func observe(action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	transitionsTotal.WithLabelValues(action, result).Inc()
}

type Workflow struct {
	Store    Store
	Invoices orders.InvoiceStore
	Engine   *reconcile.Engine
	Audit    audit.Recorder
	Notify   notify.Notifier
	Log      *zap.Logger
	NewID    func() string
}

func NewWorkflow(store Store, invoices orders.InvoiceStore, engine *reconcile.Engine, log *zap.Logger) *Workflow {
	if log == nil {
		log = zap.NewNop()
	}
	return &Workflow{
		Store:    store,
		Invoices: invoices,
		Engine:   engine,
		Audit:    audit.Nop{},
		Notify:   notify.Nop{},
		Log:      log,
		NewID:    uuid.NewString,
	}
}

type CreateRequest struct {
	VendorID string             `json:"vendor_id" validate:"required,max=64"`
	Items    []orders.OrderItem `json:"items"`
}

type Charges struct {
	HandlingCharges decimal.Decimal `json:"handling_charges"`
	FreightCharges  decimal.Decimal `json:"freight_charges"`
}

func (c Charges) validate() error {
	if c.HandlingCharges.IsNegative() || c.FreightCharges.IsNegative() {
		return fmt.Errorf("%w: charges must not be negative", orders.ErrValidation)
	}
	return nil
}

func batchKey(id, action string) string {
	return "po:" + id + ":" + action
}

func (w *Workflow) Create(ctx context.Context, actor orders.Actor, req CreateRequest) (po *PurchaseOrder, err error) {
	defer func() { observe("create", err) }()

	if err := backOffice(actor, false); err != nil {
		return nil, err
	}
	if err := orders.ValidateStruct(req); err != nil {
		return nil, err
	}
	if err := orders.ValidateItems(req.Items); err != nil {
		return nil, err
	}
	po = &PurchaseOrder{
		ID:              w.NewID(),
		VendorID:        req.VendorID,
		Status:          StatusPending,
		Items:           orders.CloneItems(req.Items),
		HandlingCharges: decimal.Zero,
		FreightCharges:  decimal.Zero,
	}
	if err := w.Store.Create(ctx, po); err != nil {
		return nil, err
	}
	w.Audit.Record(audit.Entry{UserID: actor.UserID, OrderID: po.ID, Action: "po.create", Details: "vendor=" + po.VendorID})
	return po, nil
}

// Accept is the vendor's confirmation. It numbers the purchase order and
// creates its invoice. Stock is untouched until approval.
func (w *Workflow) Accept(ctx context.Context, actor orders.Actor, id string) (po *PurchaseOrder, err error) {
	defer func() { observe("accept", err) }()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	po, err = w.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != orders.RoleVendor || !actor.ActingAsVendor || actor.UserID != po.VendorID {
		return nil, fmt.Errorf("%w: only the vendor of %s may accept it", orders.ErrForbidden, id)
	}
	switch po.Status {
	case StatusPending:
	case StatusAccepted:
		return nil, fmt.Errorf("%w: purchase order %s already accepted", orders.ErrDuplicateTransition, id)
	default:
		return nil, fmt.Errorf("%w: cannot accept %s purchase order", orders.ErrInvalidTransition, po.Status)
	}

	n, err := w.Store.NextNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate order number: %w", err)
	}
	rev := po.Revision
	po.Status, po.OrderNumber = StatusAccepted, OrderNumber(n)
	if err := w.Store.Update(ctx, po, rev); err != nil {
		return nil, err
	}
	w.syncInvoice(ctx, po)
	w.announce(ctx, actor, po, "po.accept", orders.EventPOAccepted)
	return po, nil
}

// Approve books the purchase order's items into stock and records charges.
func (w *Workflow) Approve(ctx context.Context, actor orders.Actor, id string, charges Charges) (po *PurchaseOrder, err error) {
	defer func() { observe("approve", err) }()

	if err := backOffice(actor, true); err != nil {
		return nil, err
	}
	if err := charges.validate(); err != nil {
		return nil, err
	}
	po, err = w.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch po.Status {
	case StatusAccepted:
	case StatusApproved, StatusRejected:
		return nil, fmt.Errorf("%w: purchase order %s is %s", orders.ErrDuplicateTransition, id, po.Status)
	default:
		return nil, fmt.Errorf("%w: purchase order %s is not accepted", orders.ErrInvalidTransition, id)
	}

	key := batchKey(id, "approve")
	if err := w.Engine.Receive(ctx, key, po.Items); err != nil {
		return nil, err
	}

	rev := po.Revision
	po.Status, po.StockReceived = StatusApproved, true
	po.HandlingCharges, po.FreightCharges = charges.HandlingCharges, charges.FreightCharges
	if err := w.Store.Update(ctx, po, rev); err != nil {
		po, err = w.compensate(ctx, key, err, id, rev, StatusApproved)
		if err != nil {
			return nil, err
		}
	}
	w.syncInvoice(ctx, po)
	w.announce(ctx, actor, po, "po.approve", orders.EventPOApproved)
	return po, nil
}

// Reject closes the purchase order. Received stock is taken back out, the
// charges are cleared and the linked invoice is deleted.
func (w *Workflow) Reject(ctx context.Context, actor orders.Actor, id string) (po *PurchaseOrder, err error) {
	defer func() { observe("reject", err) }()

	if err := backOffice(actor, true); err != nil {
		return nil, err
	}
	po, err = w.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch po.Status {
	case StatusAccepted, StatusApproved:
	case StatusRejected:
		return nil, fmt.Errorf("%w: purchase order %s already rejected", orders.ErrDuplicateTransition, id)
	default:
		return nil, fmt.Errorf("%w: purchase order %s is not accepted", orders.ErrInvalidTransition, id)
	}

	key := batchKey(id, "reject")
	received := po.StockReceived
	if received {
		if err := w.Engine.Return(ctx, key, po.Items); err != nil {
			return nil, err
		}
	}

	rev := po.Revision
	po.Status, po.StockReceived = StatusRejected, false
	po.HandlingCharges, po.FreightCharges = decimal.Zero, decimal.Zero
	if err := w.Store.Update(ctx, po, rev); err != nil {
		if !received {
			return nil, err
		}
		po, err = w.compensate(ctx, key, err, id, rev, StatusRejected)
		if err != nil {
			return nil, err
		}
	}
	if err := w.Invoices.Delete(ctx, po.ID); err != nil {
		w.Log.Error("invoice delete failed", zap.String("purchase_order_id", po.ID), zap.Error(err))
	}
	w.announce(ctx, actor, po, "po.reject", orders.EventPORejected)
	return po, nil
}

func (w *Workflow) Get(ctx context.Context, actor orders.Actor, id string) (*PurchaseOrder, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	po, err := w.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.BackOffice() && !(actor.Role == orders.RoleVendor && actor.UserID == po.VendorID) {
		return nil, fmt.Errorf("%w: purchase order %s", orders.ErrForbidden, id)
	}
	return po, nil
}

func backOffice(actor orders.Actor, adminOnly bool) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	if adminOnly && actor.Role != orders.RoleAdmin {
		return fmt.Errorf("%w: admin only", orders.ErrForbidden)
	}
	if !actor.BackOffice() {
		return fmt.Errorf("%w: back office only", orders.ErrForbidden)
	}
	return nil
}

// compensate settles a committed batch after the purchase order write
// failed. If the write landed anyway the stored order is returned; otherwise
// the batch is reverted and its key freed for a retry.
func (w *Workflow) compensate(ctx context.Context, key string, cause error, id string, rev int64, want Status) (*PurchaseOrder, error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if !errors.Is(cause, orders.ErrConflict) {
		if cur, err := w.Store.Get(cctx, id); err == nil && cur.Revision > rev && cur.Status == want {
			w.Log.Warn("purchase order write reported an error but committed",
				zap.String("batch_key", key), zap.NamedError("cause", cause))
			return cur, nil
		}
	}

	if err := w.Engine.Revert(cctx, key); err != nil {
		w.Log.Error("stock compensation failed",
			zap.String("batch_key", key), zap.NamedError("cause", cause), zap.Error(err))
		return nil, errors.Join(cause, fmt.Errorf("revert %s: %w", key, err))
	}
	w.Log.Warn("stock batch compensated", zap.String("batch_key", key), zap.NamedError("cause", cause))
	return nil, cause
}

func (w *Workflow) syncInvoice(ctx context.Context, po *PurchaseOrder) {
	if err := w.Invoices.Sync(ctx, InvoiceFromPurchaseOrder(po)); err != nil {
		w.Log.Error("invoice sync failed", zap.String("purchase_order_id", po.ID), zap.Error(err))
	}
}

func (w *Workflow) announce(ctx context.Context, actor orders.Actor, po *PurchaseOrder, action, event string) {
	w.Audit.Record(audit.Entry{
		UserID:  actor.UserID,
		OrderID: po.ID,
		Action:  action,
		Details: fmt.Sprintf("number=%s status=%s handling=%s freight=%s", po.OrderNumber, po.Status,
			po.HandlingCharges.StringFixed(2), po.FreightCharges.StringFixed(2)),
	})
	if err := w.Notify.PurchaseOrderChanged(ctx, event, payload(po, actor)); err != nil {
		w.Log.Warn("purchase order event dropped", zap.String("purchase_order_id", po.ID), zap.Error(err))
	}
	w.Log.Info("purchase order transition",
		zap.String("purchase_order_id", po.ID), zap.String("action", action), zap.String("actor", actor.UserID))
}
