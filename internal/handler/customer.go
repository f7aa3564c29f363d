package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/easyeat/internal/domain/order"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartJSON(s.Cart))
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req lineJSON
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	switch {
	case req.ItemID == "":
		writeError(w, r, badRequest("itemId is required"))
		return
	case !req.Price.IsPositive():
		writeError(w, r, badRequest("price must be positive"))
		return
	}

	s.Cart.AddItem(req.line())
	writeJSON(w, http.StatusOK, toCartJSON(s.Cart))
}

func (h *Handler) setQuantity(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req setQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	s.Cart.SetQuantity(chi.URLParam(r, "itemID"), req.Quantity)
	writeJSON(w, http.StatusOK, toCartJSON(s.Cart))
}

func (h *Handler) removeFromCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.Cart.RemoveItem(chi.URLParam(r, "itemID"))
	writeJSON(w, http.StatusOK, toCartJSON(s.Cart))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.Cart.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	placed, err := s.History.Checkout(r.Context(), s.Cart, req.Address,
		order.WithPhone(req.Phone),
		order.WithNotes(req.Notes),
	)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, localEntryJSON(placed))
}

func (h *Handler) writeHistory(w http.ResponseWriter, s *order.HistoryStore, stale bool) {
	entries := s.DisplayList()
	resp := historyJSON{
		Orders:  make([]entryJSON, 0, len(entries)),
		Loading: s.Loading(),
		Stale:   stale,
	}
	for _, e := range entries {
		resp.Orders = append(resp.Orders, toEntryJSON(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeHistory(w, s.History, false)
}

func (h *Handler) refreshOrders(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// An unreachable store or a request that ended before the fetch did still
	// gets the last known history.
	var remoteErr *order.RemoteUnavailableError
	err = s.History.Refresh(r.Context())
	switch {
	case err == nil, errors.As(err, &remoteErr):
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		zctx.From(r.Context()).Debug("Refresh abandoned", zap.Error(err))
	default:
		writeError(w, r, err)
		return
	}
	h.writeHistory(w, s.History, err != nil)
}

func (h *Handler) clearOrders(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.History.ClearHistory(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.History.UpdateStatus(r.Context(), chi.URLParam(r, "orderID"), order.StatusCancelled); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeHistory(w, s.History, false)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, errUnauthorized)
		return
	}
	h.sessions.Release(id.ID)
	w.WriteHeader(http.StatusNoContent)
}
