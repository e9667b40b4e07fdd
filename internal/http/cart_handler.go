package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/cart"
	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/order"
)

// CheckoutService is the slice of the checkout orchestrator the HTTP layer
// depends on.
type CheckoutService interface {
	Checkout(ctx context.Context, userID string, c *cart.Cart) (*order.Order, error)
	ValidatePromo(ctx context.Context, c *cart.Cart, code string) (*cart.PromoApplication, error)
	RemovePromo(c *cart.Cart)
}

type CartHandler struct {
	sessions *cart.SessionStore
	store    *cart.Store
	checkout CheckoutService
}

func NewCartHandler(sessions *cart.SessionStore, store *cart.Store, checkout CheckoutService) *CartHandler {
	return &CartHandler{sessions: sessions, store: store, checkout: checkout}
}

type cartView struct {
	Items    []cart.Line            `json:"items"`
	Promo    *cart.PromoApplication `json:"promo,omitempty"`
	Subtotal decimal.Decimal        `json:"subtotal"`
	Discount decimal.Decimal        `json:"discount"`
	Total    decimal.Decimal        `json:"total"`
}

func viewOf(c *cart.Cart) cartView {
	view := cartView{
		Items:    c.Lines,
		Promo:    c.Promo,
		Subtotal: c.Subtotal(),
		Discount: decimal.Zero,
	}
	if view.Items == nil {
		view.Items = []cart.Line{}
	}
	if c.Promo != nil {
		view.Discount = c.Promo.DiscountAmount
	}
	view.Total = view.Subtotal.Sub(view.Discount)
	return view
}

func (h *CartHandler) View(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	c := h.sessions.Snapshot(userID)
	writeJSON(w, http.StatusOK, viewOf(&c))
}

type lineRequest struct {
	ProductID string       `json:"productId"`
	Quantity  int          `json:"quantity"`
	Options   cart.Options `json:"options"`
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var req lineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "missing productId")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var view cartView
	err := h.sessions.With(userID, func(c *cart.Cart) error {
		if err := h.store.AddLine(ctx, c, req.ProductID, req.Quantity, req.Options); err != nil {
			return err
		}
		view = viewOf(c)
		return nil
	})
	if err != nil {
		writeCartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var req lineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "missing productId")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var view cartView
	err := h.sessions.With(userID, func(c *cart.Cart) error {
		if err := h.store.UpdateLine(ctx, c, req.ProductID, req.Quantity, req.Options); err != nil {
			return err
		}
		view = viewOf(c)
		return nil
	})
	if err != nil {
		writeCartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type removeRequest struct {
	ProductID string        `json:"productId"`
	Options   *cart.Options `json:"options,omitempty"`
}

// RemoveItem drops one variant, or every variant of the product when no
// options are given.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var req removeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "missing productId")
		return
	}

	var view cartView
	err := h.sessions.With(userID, func(c *cart.Cart) error {
		if err := h.store.RemoveLine(c, req.ProductID, req.Options); err != nil {
			return err
		}
		view = viewOf(c)
		return nil
	})
	if err != nil {
		writeCartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type promoRequest struct {
	Code string `json:"code"`
}

func (h *CartHandler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var req promoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "missing code")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var view cartView
	err := h.sessions.With(userID, func(c *cart.Cart) error {
		if _, err := h.checkout.ValidatePromo(ctx, c, req.Code); err != nil {
			return err
		}
		view = viewOf(c)
		return nil
	})
	if err != nil {
		writeCheckoutError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *CartHandler) RemovePromo(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var view cartView
	_ = h.sessions.With(userID, func(c *cart.Cart) error {
		h.checkout.RemovePromo(c)
		view = viewOf(c)
		return nil
	})
	writeJSON(w, http.StatusOK, view)
}

func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var placed *order.Order
	err := h.sessions.With(userID, func(c *cart.Cart) error {
		o, err := h.checkout.Checkout(ctx, userID, c)
		if err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		writeCheckoutError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, placed)
}

func writeCartError(w http.ResponseWriter, err error) {
	var stockErr *cart.InsufficientStockError
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, cart.ErrProductNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, cart.ErrLineNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     stockErr.Error(),
			"productId": stockErr.ProductID,
			"requested": stockErr.Requested,
			"available": stockErr.Available,
		})
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
