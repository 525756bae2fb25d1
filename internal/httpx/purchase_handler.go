package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-pharma-stock/internal/purchase"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type PurchaseHandler struct {
	Workflow *purchase.Workflow
	Timeout  time.Duration
	Log      *zap.Logger
}

func (h *PurchaseHandler) Register(r chi.Router) {
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Post("/{id}/accept", h.accept)
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/reject", h.reject)
	})
}

func (h *PurchaseHandler) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	t := h.Timeout
	if t <= 0 {
		t = 5 * time.Second
	}
	return context.WithTimeout(r.Context(), t)
}

func (h *PurchaseHandler) create(w http.ResponseWriter, r *http.Request) {
	var req purchase.CreateRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()
	po, err := h.Workflow.Create(ctx, actorFrom(r), req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	setETag(w, po.Revision)
	writeJSON(w, http.StatusCreated, po)
}

func (h *PurchaseHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()
	po, err := h.Workflow.Get(ctx, actorFrom(r), chi.URLParam(r, "id"))
	h.respond(w, po, err)
}

func (h *PurchaseHandler) accept(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()
	po, err := h.Workflow.Accept(ctx, actorFrom(r), chi.URLParam(r, "id"))
	h.respond(w, po, err)
}

func (h *PurchaseHandler) approve(w http.ResponseWriter, r *http.Request) {
	var req purchase.Charges
	if r.ContentLength != 0 {
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, h.Log, err)
			return
		}
	}
	ctx, cancel := h.ctx(r)
	defer cancel()
	po, err := h.Workflow.Approve(ctx, actorFrom(r), chi.URLParam(r, "id"), req)
	h.respond(w, po, err)
}

func (h *PurchaseHandler) reject(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()
	po, err := h.Workflow.Reject(ctx, actorFrom(r), chi.URLParam(r, "id"))
	h.respond(w, po, err)
}

func (h *PurchaseHandler) respond(w http.ResponseWriter, po *purchase.PurchaseOrder, err error) {
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	setETag(w, po.Revision)
	writeJSON(w, http.StatusOK, po)
}
