// Package handler exposes the customer and chef HTTP API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/easyeat/internal/domain/auth"
	"github.com/xenking/easyeat/internal/domain/order"
	"github.com/xenking/easyeat/internal/session"
	"github.com/xenking/easyeat/pkg/httpmiddleware"
)

// Handler serves the /api routes.
type Handler struct {
	sessions *session.Manager
	queue    *order.Queue
	security *SecurityHandler
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(sessions *session.Manager, queue *order.Queue, security *SecurityHandler) *Handler {
	return &Handler{
		sessions: sessions,
		queue:    queue,
		security: security,
	}
}

// Mount registers the API routes on r under /api.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(httpmiddleware.LogRequests())
		r.Use(h.security.Middleware)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(auth.RoleCustomer))

			r.Get("/cart", h.getCart)
			r.Post("/cart", h.addToCart)
			r.Delete("/cart", h.clearCart)
			r.Put("/cart/{itemID}", h.setQuantity)
			r.Delete("/cart/{itemID}", h.removeFromCart)

			r.Post("/checkout", h.checkout)

			r.Get("/orders", h.listOrders)
			r.Post("/orders/refresh", h.refreshOrders)
			r.Delete("/orders", h.clearOrders)
			r.Post("/orders/{orderID}/cancel", h.cancelOrder)

			r.Post("/logout", h.logout)
		})

		r.Route("/chef", func(r chi.Router) {
			r.Use(RequireRole(auth.RoleChef))

			r.Get("/orders", h.chefOrders)
			r.Get("/orders/{orderID}", h.chefOrder)
			r.Post("/orders/{orderID}/status", h.advanceOrder)
		})
	})
}

// Routes returns a router with only the API routes mounted.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

func (h *Handler) session(r *http.Request) (*session.Session, error) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		return nil, errUnauthorized
	}
	return h.sessions.Acquire(r.Context(), id)
}
