package httpx

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-pharma-stock/internal/audit"
	"github.com/ariefcatur/go-pharma-stock/internal/orders"
	"github.com/ariefcatur/go-pharma-stock/internal/stock"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxAdjust = 1_000_000

type StockHandler struct {
	Ledger  stock.Ledger
	Audit   audit.Recorder
	Timeout time.Duration
	Log     *zap.Logger
}

type adjustReq struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

type adjustResp struct {
	SizeID   string `json:"size_id"`
	Stock    int    `json:"stock"`
	BatchKey string `json:"batch_key,omitempty"`
}

func (h *StockHandler) Register(r chi.Router) {
	r.Route("/sizes/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Get("/movements", h.movements)
		r.Post("/adjust", h.adjust)
	})
}

func (h *StockHandler) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	t := h.Timeout
	if t <= 0 {
		t = 5 * time.Second
	}
	return context.WithTimeout(r.Context(), t)
}

func (h *StockHandler) get(w http.ResponseWriter, r *http.Request) {
	if err := backOffice(actorFrom(r)); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()
	s, err := h.Ledger.Stock(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *StockHandler) movements(w http.ResponseWriter, r *http.Request) {
	if err := backOffice(actorFrom(r)); err != nil {
		writeError(w, h.Log, err)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, h.Log, fmt.Errorf("%w: limit must be 1..500", orders.ErrValidation))
			return
		}
		limit = n
	}
	ctx, cancel := h.ctx(r)
	defer cancel()
	ms, err := h.Ledger.Movements(ctx, chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if ms == nil {
		ms = []stock.Movement{}
	}
	writeJSON(w, http.StatusOK, ms)
}

// adjust is the manual stock correction. With an Idempotency-Key header the
// correction is keyed so a retried request applies once.
func (h *StockHandler) adjust(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if err := backOffice(actor); err != nil {
		writeError(w, h.Log, err)
		return
	}
	var req adjustReq
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	if req.Delta == 0 || req.Delta > maxAdjust || req.Delta < -maxAdjust {
		writeError(w, h.Log, fmt.Errorf("%w: delta must be non-zero and within %d", orders.ErrValidation, maxAdjust))
		return
	}

	id := chi.URLParam(r, "id")
	ctx, cancel := h.ctx(r)
	defer cancel()

	resp := adjustResp{SizeID: id}
	if idem := r.Header.Get("Idempotency-Key"); idem != "" {
		resp.BatchKey = "adjust:" + id + ":" + idem
		err := h.Ledger.ApplyBatch(ctx, stock.Batch{Key: resp.BatchKey, Deltas: []stock.Delta{{SizeID: id, Delta: req.Delta}}})
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		s, err := h.Ledger.Stock(ctx, id)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		resp.Stock = s.Stock
	} else {
		after, err := h.Ledger.Adjust(ctx, id, req.Delta)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		resp.Stock = after
	}

	if h.Audit != nil {
		h.Audit.Record(audit.Entry{
			UserID:  actor.UserID,
			Action:  "stock.adjust",
			Details: fmt.Sprintf("size=%s delta=%d stock=%d reason=%s", id, req.Delta, resp.Stock, req.Reason),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func backOffice(actor orders.Actor) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	if !actor.BackOffice() {
		return fmt.Errorf("%w: back office only", orders.ErrForbidden)
	}
	return nil
}
