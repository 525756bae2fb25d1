package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ariefcatur/go-pharma-stock/internal/lifecycle"
	"github.com/ariefcatur/go-pharma-stock/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Cache is the fast path in front of the order store: create idempotency
// and the status cache. Misses and errors fall through to the database.
type Cache interface {
	LookupOrder(ctx context.Context, customerID, idemKey string) (string, bool, error)
	RememberOrder(ctx context.Context, customerID, idemKey, orderID string) error
	GetStatus(ctx context.Context, orderID string) ([]byte, bool, error)
	PutStatus(ctx context.Context, orderID string, revision int64, body []byte) error
}

type OrdersHandler struct {
	Orders  *lifecycle.Manager
	Cache   Cache
	Timeout time.Duration
	Log     *zap.Logger
}

type createOrderResp struct {
	Order      *orders.Order `json:"order"`
	Idempotent bool          `json:"idempotent"`
}

type reasonReq struct {
	Reason string `json:"reason"`
}

type advanceReq struct {
	Status orders.Status `json:"status"`
}

type editReq struct {
	Items     []orders.OrderItem `json:"items"`
	TaxAmount decimal.Decimal    `json:"tax_amount"`
}

type statusView struct {
	OrderID    string        `json:"order_id"`
	CustomerID string        `json:"customer_id"`
	Status     orders.Status `json:"status"`
	Void       bool          `json:"void"`
	Revision   int64         `json:"revision"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/{id}", h.getOrder)
		r.Get("/{id}/status", h.getStatus)
		r.Put("/{id}/items", h.editOrder)
		r.Post("/{id}/cancel", h.cancelOrder)
		r.Post("/{id}/void", h.voidOrder)
		r.Post("/{id}/status", h.advanceOrder)
		r.Get("/{id}/invoice", h.getInvoice)
		r.Post("/{id}/invoice/sync", h.syncInvoice)
	})
}

func (h *OrdersHandler) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	t := h.Timeout
	if t <= 0 {
		t = 5 * time.Second
	}
	return context.WithTimeout(r.Context(), t)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.CreateRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	actor := actorFrom(r)
	if req.CustomerID == "" && actor.Role == orders.RoleCustomer {
		req.CustomerID = actor.UserID
	}
	if req.ExternalID == "" {
		req.ExternalID = r.Header.Get("Idempotency-Key")
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	// Fast-path idempotency via Redis; the deterministic order id keeps the DB authoritative
	if h.Cache != nil && req.ExternalID != "" {
		if id, ok, err := h.Cache.LookupOrder(ctx, req.CustomerID, req.ExternalID); err == nil && ok {
			if o, err := h.Orders.Get(ctx, actor, id); err == nil {
				setETag(w, o.Revision)
				writeJSON(w, http.StatusOK, createOrderResp{Order: o, Idempotent: true})
				return
			}
		}
	}

	o, existed, err := h.Orders.Create(ctx, actor, req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if h.Cache != nil && req.ExternalID != "" {
		if err := h.Cache.RememberOrder(ctx, o.CustomerID, req.ExternalID, o.ID); err != nil {
			h.Log.Warn("idempotency cache write failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}

	code := http.StatusCreated
	if existed {
		code = http.StatusOK
	}
	setETag(w, o.Revision)
	writeJSON(w, code, createOrderResp{Order: o, Idempotent: existed})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()
	o, err := h.Orders.Get(ctx, actorFrom(r), chi.URLParam(r, "id"))
	h.respondOrder(w, o, err)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := actorFrom(r)
	if err := actor.Validate(); err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	// 1) coba cache
	if h.Cache != nil {
		if b, ok, err := h.Cache.GetStatus(ctx, id); err == nil && ok {
			var v statusView
			if json.Unmarshal(b, &v) == nil && (actor.BackOffice() || (actor.Role == orders.RoleCustomer && actor.UserID == v.CustomerID)) {
				writeJSON(w, http.StatusOK, v)
				return
			}
		}
	}

	// 2) fallback DB
	o, err := h.Orders.Get(ctx, actor, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	v := statusView{OrderID: o.ID, CustomerID: o.CustomerID, Status: o.Status, Void: o.Void, Revision: o.Revision}
	if h.Cache != nil {
		if b, err := json.Marshal(v); err == nil {
			_ = h.Cache.PutStatus(ctx, id, o.Revision, b)
		}
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *OrdersHandler) editOrder(w http.ResponseWriter, r *http.Request) {
	var req editReq
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	rev, err := ifMatch(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()
	o, err := h.Orders.Edit(ctx, actorFrom(r), chi.URLParam(r, "id"), lifecycle.EditRequest{
		Items: req.Items, TaxAmount: req.TaxAmount, ExpectedRevision: rev,
	})
	h.respondOrder(w, o, err)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.reverse(w, r, h.Orders.Cancel)
}

func (h *OrdersHandler) voidOrder(w http.ResponseWriter, r *http.Request) {
	h.reverse(w, r, h.Orders.Void)
}

type reverseFunc func(ctx context.Context, actor orders.Actor, id, reason string, expected int64) (*orders.Order, error)

func (h *OrdersHandler) reverse(w http.ResponseWriter, r *http.Request, fn reverseFunc) {
	var req reasonReq
	if r.ContentLength != 0 {
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, h.Log, err)
			return
		}
	}
	rev, err := ifMatch(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()
	o, err := fn(ctx, actorFrom(r), chi.URLParam(r, "id"), req.Reason, rev)
	h.respondOrder(w, o, err)
}

func (h *OrdersHandler) advanceOrder(w http.ResponseWriter, r *http.Request) {
	var req advanceReq
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	rev, err := ifMatch(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()
	o, err := h.Orders.Advance(ctx, actorFrom(r), chi.URLParam(r, "id"), req.Status, rev)
	h.respondOrder(w, o, err)
}

func (h *OrdersHandler) getInvoice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()
	inv, err := h.Orders.GetInvoice(ctx, actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *OrdersHandler) syncInvoice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()
	inv, err := h.Orders.SyncInvoice(ctx, actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *OrdersHandler) respondOrder(w http.ResponseWriter, o *orders.Order, err error) {
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	setETag(w, o.Revision)
	writeJSON(w, http.StatusOK, o)
}
