package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/easyeat/internal/domain/order"
)

func (h *Handler) chefOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	orders, err := h.queue.List(r.Context(), id.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]orderJSON, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderJSON(&orders[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) chefOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	o, err := h.queue.Get(r.Context(), id.ID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderJSON(o))
}

func (h *Handler) advanceOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	target, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, badRequest(err.Error()))
		return
	}

	o, err := h.queue.Advance(r.Context(), id.ID, chi.URLParam(r, "orderID"), target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderJSON(o))
}
