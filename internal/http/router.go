package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(carts *CartHandler, orders *OrderHandler, inv *InventoryHandler, cat *CatalogHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", health)

	r.Route("/api/cart/{userId}", func(r chi.Router) {
		r.Get("/", carts.View)
		r.Post("/items", carts.AddItem)
		r.Put("/items", carts.UpdateItem)
		r.Delete("/items", carts.RemoveItem)
		r.Post("/promo", carts.ApplyPromo)
		r.Delete("/promo", carts.RemovePromo)
		r.Post("/checkout", carts.Checkout)
	})

	r.Route("/api/orders", func(r chi.Router) {
		r.Get("/{orderId}", orders.Get)
	})
	r.Get("/api/users/{userId}/orders", orders.ListByUser)

	r.Route("/api/inventory", func(r chi.Router) {
		r.Get("/{productId}", inv.GetAvailability)
		r.Post("/adjust", inv.AdjustAvailability)
	})

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/{productId}", cat.Get)
		r.Put("/", cat.Upsert)
	})

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
