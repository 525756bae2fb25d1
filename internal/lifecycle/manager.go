// Package lifecycle owns the order state machine. Every transition with a
// stock effect runs in the same order: guard, one stock batch, order write,
// invoice sync, then audit and notification.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ariefcatur/go-pharma-stock/internal/audit"
	"github.com/ariefcatur/go-pharma-stock/internal/notify"
	"github.com/ariefcatur/go-pharma-stock/internal/orders"
	"github.com/ariefcatur/go-pharma-stock/internal/reconcile"
	"github.com/ariefcatur/go-pharma-stock/internal/stock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StatusCache is invalidated after every committed transition, with the
// revision that transition produced.
type StatusCache interface {
	DropStatus(ctx context.Context, orderID string, revision int64) error
}

type Manager struct {
	Orders   orders.Store
	Invoices orders.InvoiceStore
	Engine   *reconcile.Engine
	Audit    audit.Recorder
	Notify   notify.Notifier
	Cache    StatusCache
	Log      *zap.Logger
	NewID    func() string

	// CompensateTimeout bounds the undo batch, which runs detached from the
	// request context.
	CompensateTimeout time.Duration
}

func New(store orders.Store, invoices orders.InvoiceStore, engine *reconcile.Engine, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		Orders:            store,
		Invoices:          invoices,
		Engine:            engine,
		Audit:             audit.Nop{},
		Notify:            notify.Nop{},
		Log:               log,
		NewID:             uuid.NewString,
		CompensateTimeout: 5 * time.Second,
	}
}

type CreateRequest struct {
	CustomerID string             `json:"customer_id" validate:"required,max=64"`
	ExternalID string             `json:"external_id,omitempty" validate:"max=128"`
	Items      []orders.OrderItem `json:"items"`
	TaxAmount  decimal.Decimal    `json:"tax_amount"`
}

type EditRequest struct {
	Items            []orders.OrderItem `json:"items"`
	TaxAmount        decimal.Decimal    `json:"tax_amount"`
	ExpectedRevision int64              `json:"expected_revision,omitempty"`
}

// OrderID derives a stable id from a caller-chosen external id, so a
// retried create lands on the same order.
func OrderID(customerID, externalID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("pharma-order:"+customerID+":"+externalID)).String()
}

// Create places a new order and deducts its stock. The bool reports whether
// the order already existed under the same external id.
func (m *Manager) Create(ctx context.Context, actor orders.Actor, req CreateRequest) (o *orders.Order, existed bool, err error) {
	defer func() { observe("create", err) }()

	if err := actor.Validate(); err != nil {
		return nil, false, err
	}
	if !actor.BackOffice() && !(actor.Role == orders.RoleCustomer && actor.UserID == req.CustomerID) {
		return nil, false, fmt.Errorf("%w: %s cannot order for %s", orders.ErrForbidden, actor.UserID, req.CustomerID)
	}
	if err := orders.ValidateStruct(req); err != nil {
		return nil, false, err
	}
	if req.TaxAmount.IsNegative() {
		return nil, false, fmt.Errorf("%w: negative tax amount", orders.ErrValidation)
	}
	if err := orders.ValidateItems(req.Items); err != nil {
		return nil, false, err
	}

	id := m.NewID()
	if req.ExternalID != "" {
		id = OrderID(req.CustomerID, req.ExternalID)
		if cur, err := m.Orders.Get(ctx, id); err == nil {
			return cur, true, nil
		} else if !errors.Is(err, orders.ErrNotFound) {
			return nil, false, err
		}
	}

	o = &orders.Order{ID: id, CustomerID: req.CustomerID, Status: orders.StatusNew}
	o.ApplyItems(req.Items, req.TaxAmount)

	key := reconcile.Key("order", id, "create", 0)
	if err := m.Engine.Create(ctx, key, o.Items); err != nil {
		if errors.Is(err, orders.ErrDuplicateTransition) {
			// a concurrent create with the same external id got there first
			if cur, gerr := m.Orders.Get(ctx, id); gerr == nil {
				return cur, true, nil
			}
		}
		return nil, false, err
	}

	if err := m.Orders.Create(ctx, o); err != nil {
		cur, err := m.compensate(ctx, key, err, m.committed(id, 0, func(*orders.Order) bool { return true }))
		if err != nil {
			return nil, false, err
		}
		o = cur
	}

	m.syncInvoice(ctx, o)
	m.announce(ctx, actor, o, "order.create", orders.EventOrderCreated, "")
	return o, false, nil
}

// Edit replaces the items of a new or processing order. The old items are
// given back and the new ones taken in a single batch.
func (m *Manager) Edit(ctx context.Context, actor orders.Actor, id string, req EditRequest) (o *orders.Order, err error) {
	defer func() { observe("edit", err) }()

	o, err = m.load(ctx, actor, id, req.ExpectedRevision)
	if err != nil {
		return nil, err
	}
	if !o.Editable() {
		return nil, fmt.Errorf("%w: cannot edit %s order", orders.ErrInvalidTransition, describe(o))
	}
	if req.TaxAmount.IsNegative() {
		return nil, fmt.Errorf("%w: negative tax amount", orders.ErrValidation)
	}
	if err := orders.ValidateItems(req.Items); err != nil {
		return nil, err
	}

	rev := o.Revision
	prev := orders.CloneItems(o.Items)
	key := reconcile.Key("order", id, "edit", rev)
	if err := m.Engine.Edit(ctx, key, prev, req.Items); err != nil {
		return nil, err
	}

	o.ApplyItems(req.Items, req.TaxAmount)
	if err := m.Orders.UpdateItems(ctx, o, rev); err != nil {
		o, err = m.compensate(ctx, key, err, m.committed(id, rev, func(cur *orders.Order) bool {
			return sameStock(cur.Items, req.Items)
		}))
		if err != nil {
			return nil, err
		}
	}

	m.syncInvoice(ctx, o)
	m.announce(ctx, actor, o, "order.edit", orders.EventOrderEdited, "")
	return o, nil
}

// Cancel gives the order's stock back. Cancelling a cancelled order returns
// it unchanged.
func (m *Manager) Cancel(ctx context.Context, actor orders.Actor, id, reason string, expected int64) (*orders.Order, error) {
	return m.reverse(ctx, actor, id, reason, expected, false)
}

// Void is the back-office reversal. It restores stock through the same path
// as Cancel and marks the invoice void.
func (m *Manager) Void(ctx context.Context, actor orders.Actor, id, reason string, expected int64) (*orders.Order, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !actor.BackOffice() {
		return nil, fmt.Errorf("%w: only admin or staff may void", orders.ErrForbidden)
	}
	return m.reverse(ctx, actor, id, reason, expected, true)
}

func (m *Manager) reverse(ctx context.Context, actor orders.Actor, id, reason string, expected int64, void bool) (o *orders.Order, err error) {
	action, event := "order.cancel", orders.EventOrderCancelled
	if void {
		action, event = "order.void", orders.EventOrderVoided
	}
	defer func() { observe(action, err) }()

	o, err = m.load(ctx, actor, id, 0)
	if err != nil {
		return nil, err
	}
	done, err := alreadyReversed(o, void)
	if err != nil {
		return nil, err
	}
	if done {
		return o, nil
	}
	if expected != 0 && expected != o.Revision {
		return nil, fmt.Errorf("%w: have %d, want %d", orders.ErrStaleRevision, o.Revision, expected)
	}
	if !o.Reversible() {
		return nil, fmt.Errorf("%w: cannot reverse %s order", orders.ErrInvalidTransition, describe(o))
	}

	rev := o.Revision
	key := reconcile.Key("order", id, verb(void), rev)
	if err := m.Engine.Restore(ctx, key, o.Items); err != nil {
		if errors.Is(err, orders.ErrDuplicateTransition) {
			// a concurrent identical request restored first
			if cur, gerr := m.Orders.Get(ctx, id); gerr == nil {
				if done, rerr := alreadyReversed(cur, void); done && rerr == nil {
					return cur, nil
				}
			}
		}
		return nil, err
	}

	if void {
		o.Void, o.VoidReason = true, reason
	} else {
		o.Status, o.CancelReason = orders.StatusCancelled, reason
	}
	if err := m.Orders.UpdateStatus(ctx, o, rev); err != nil {
		o, err = m.compensate(ctx, key, err, m.committed(id, rev, func(cur *orders.Order) bool {
			done, _ := alreadyReversed(cur, void)
			return done
		}))
		if err != nil {
			return nil, err
		}
	}

	m.syncInvoice(ctx, o)
	m.announce(ctx, actor, o, action, event, reason)
	return o, nil
}

// alreadyReversed: the same reversal again is a no-op, the other one is
// invalid because stock was already given back.
func alreadyReversed(o *orders.Order, void bool) (bool, error) {
	switch {
	case void && o.Void, !void && !o.Void && o.Status == orders.StatusCancelled:
		return true, nil
	case o.Reversed():
		return false, fmt.Errorf("%w: order is already %s", orders.ErrInvalidTransition, describe(o))
	}
	return false, nil
}

// Advance moves the order along the forward path. It has no stock effect.
func (m *Manager) Advance(ctx context.Context, actor orders.Actor, id string, to orders.Status, expected int64) (o *orders.Order, err error) {
	defer func() { observe("advance", err) }()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !actor.BackOffice() {
		return nil, fmt.Errorf("%w: only admin or staff may change status", orders.ErrForbidden)
	}
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", orders.ErrValidation, to)
	}
	o, err = m.load(ctx, actor, id, 0)
	if err != nil {
		return nil, err
	}
	if !o.Void && o.Status == to {
		return o, nil
	}
	if expected != 0 && expected != o.Revision {
		return nil, fmt.Errorf("%w: have %d, want %d", orders.ErrStaleRevision, o.Revision, expected)
	}
	if o.Void || !orders.CanTransition(o.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, describe(o), to)
	}

	rev := o.Revision
	o.Status = to
	if err := m.Orders.UpdateStatus(ctx, o, rev); err != nil {
		return nil, err
	}
	m.announce(ctx, actor, o, "order.status", orders.EventOrderStatusChanged, string(to))
	return o, nil
}

func (m *Manager) Get(ctx context.Context, actor orders.Actor, id string) (*orders.Order, error) {
	return m.load(ctx, actor, id, 0)
}

func (m *Manager) GetInvoice(ctx context.Context, actor orders.Actor, id string) (*orders.Invoice, error) {
	if _, err := m.load(ctx, actor, id, 0); err != nil {
		return nil, err
	}
	return m.Invoices.Get(ctx, id)
}

// SyncInvoice rebuilds the invoice from the stored order, repairing a sync
// that failed after a committed transition.
func (m *Manager) SyncInvoice(ctx context.Context, actor orders.Actor, id string) (*orders.Invoice, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !actor.BackOffice() {
		return nil, fmt.Errorf("%w: only admin or staff may resync invoices", orders.ErrForbidden)
	}
	o, err := m.load(ctx, actor, id, 0)
	if err != nil {
		return nil, err
	}
	inv := orders.InvoiceFromOrder(o)
	if err := m.Invoices.Sync(ctx, inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (m *Manager) load(ctx context.Context, actor orders.Actor, id string, expected int64) (*orders.Order, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	o, err := m.Orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(o) {
		return nil, fmt.Errorf("%w: order %s", orders.ErrForbidden, id)
	}
	if expected != 0 && expected != o.Revision {
		return nil, fmt.Errorf("%w: have %d, want %d", orders.ErrStaleRevision, o.Revision, expected)
	}
	return o, nil
}

// compensate settles a committed batch whose order write returned cause.
// A write that landed in spite of the error is kept and returned. Otherwise
// the batch is reverted, which also frees its key for a retry. Both steps
// run detached so a cancelled request still settles stock.
func (m *Manager) compensate(ctx context.Context, key string, cause error, landed func(context.Context) *orders.Order) (*orders.Order, error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.CompensateTimeout)
	defer cancel()

	// a revision or id clash means the write certainly did not happen
	if !errors.Is(cause, orders.ErrConflict) && !errors.Is(cause, orders.ErrAlreadyExists) {
		if o := landed(cctx); o != nil {
			compensationsTotal.WithLabelValues("landed").Inc()
			m.Log.Warn("order write reported an error but committed",
				zap.String("batch_key", key), zap.String("order_id", o.ID), zap.NamedError("cause", cause))
			return o, nil
		}
	}

	if err := m.Engine.Revert(cctx, key); err != nil {
		compensationsTotal.WithLabelValues("failed").Inc()
		m.Log.Error("stock compensation failed",
			zap.String("batch_key", key), zap.NamedError("cause", cause), zap.Error(err))
		return nil, fmt.Errorf("%w (revert %s failed: %v)", cause, key, err)
	}
	compensationsTotal.WithLabelValues("ok").Inc()
	m.Log.Warn("stock batch compensated", zap.String("batch_key", key), zap.NamedError("cause", cause))
	return nil, cause
}

// committed looks up a stored write past rev that match recognises.
func (m *Manager) committed(id string, rev int64, match func(*orders.Order) bool) func(context.Context) *orders.Order {
	return func(ctx context.Context) *orders.Order {
		cur, err := m.Orders.Get(ctx, id)
		if err != nil || cur.Revision <= rev || !match(cur) {
			return nil
		}
		return cur
	}
}

func sameStock(a, b []orders.OrderItem) bool {
	return slices.Equal(stock.Net(reconcile.CreateDeltas(a)), stock.Net(reconcile.CreateDeltas(b)))
}

func (m *Manager) syncInvoice(ctx context.Context, o *orders.Order) {
	if err := m.Invoices.Sync(ctx, orders.InvoiceFromOrder(o)); err != nil {
		m.Log.Error("invoice sync failed", zap.String("order_id", o.ID), zap.Int64("revision", o.Revision), zap.Error(err))
	}
}

func (m *Manager) announce(ctx context.Context, actor orders.Actor, o *orders.Order, action, event, reason string) {
	details := fmt.Sprintf("status=%s void=%t revision=%d total=%s", o.Status, o.Void, o.Revision, o.TotalAmount.StringFixed(2))
	if reason != "" {
		details += " reason=" + reason
	}
	m.Audit.Record(audit.Entry{UserID: actor.UserID, OrderID: o.ID, Action: action, Details: details})

	if err := m.Notify.OrderChanged(ctx, event, orders.OrderPayload(o, actor, reason)); err != nil {
		m.Log.Warn("order event dropped", zap.String("order_id", o.ID), zap.String("event", event), zap.Error(err))
	}
	if m.Cache != nil {
		if err := m.Cache.DropStatus(ctx, o.ID, o.Revision); err != nil {
			m.Log.Warn("status cache invalidation failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	m.Log.Info("order transition",
		zap.String("order_id", o.ID), zap.String("action", action),
		zap.String("actor", actor.UserID), zap.Int64("revision", o.Revision))
}

func describe(o *orders.Order) string {
	if o.Void {
		return "void"
	}
	return string(o.Status)
}

func verb(void bool) string {
	if void {
		return "void"
	}
	return "cancel"
}
