package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/checkout"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeCheckoutError maps the checkout failure taxonomy onto HTTP statuses.
// Stock shortfalls carry the per-line availability so the client can show
// the buyer exactly what to fix.
func writeCheckoutError(w http.ResponseWriter, err error) {
	var (
		validation *checkout.ValidationFailure
		stock      *checkout.StockFailure
		promoFail  *checkout.PromoFailure
		transient  *checkout.TransientFailure
		integrity  *checkout.IntegrityViolation
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Reason)
	case errors.As(err, &stock):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "insufficient stock",
			"lines": stock.Lines,
		})
	case errors.As(err, &promoFail):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": promoFail.Reason,
			"code":  promoFail.Code,
		})
	case errors.As(err, &integrity):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":     integrity.Reason,
			"productId": integrity.ProductID,
		})
	case errors.As(err, &transient):
		writeError(w, http.StatusServiceUnavailable, "checkout could not be completed, please retry")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
