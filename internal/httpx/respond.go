package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-pharma-stock/internal/orders"
	"github.com/ariefcatur/go-pharma-stock/internal/stock"
	"go.uber.org/zap"
)

const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json: %v", orders.ErrValidation, err)
	}
	return nil
}

// actorFrom reads the caller identity set by the gateway in front of this service.
func actorFrom(r *http.Request) orders.Actor {
	return orders.Actor{
		UserID:         r.Header.Get("X-User-Id"),
		Role:           orders.Role(strings.ToLower(r.Header.Get("X-User-Role"))),
		ActingAsVendor: r.Header.Get("X-Acting-As-Vendor") == "true",
	}
}

// ifMatch parses an If-Match revision; absent means "any revision".
func ifMatch(r *http.Request) (int64, error) {
	h := strings.Trim(strings.TrimSpace(r.Header.Get("If-Match")), `"`)
	if h == "" {
		return 0, nil
	}
	rev, err := strconv.ParseInt(h, 10, 64)
	if err != nil || rev <= 0 {
		return 0, fmt.Errorf("%w: bad If-Match %q", orders.ErrValidation, h)
	}
	return rev, nil
}

func setETag(w http.ResponseWriter, rev int64) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(rev, 10)))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orders.ErrValidation), errors.Is(err, stock.ErrInvalidBatch):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, stock.ErrSizeNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrStaleRevision):
		return http.StatusPreconditionFailed
	case errors.Is(err, orders.ErrDuplicateTransition), errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, orders.ErrConflict), errors.Is(err, orders.ErrAlreadyExists), errors.Is(err, stock.ErrDuplicateBatch),
		errors.Is(err, stock.ErrNegativeStock), errors.Is(err, stock.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, code, map[string]string{"error": msg})
}
