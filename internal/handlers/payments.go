package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"validhub/internal/middleware"
	"validhub/internal/policy"
	"validhub/internal/processor"
	"validhub/internal/services"
)

type checkoutRequest struct {
	Credits  int64  `json:"credits"`
	Currency string `json:"currency"`
}

func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	checkout, err := h.payments.CreateCheckout(r.Context(), userID, req.Credits, req.Currency)
	if err != nil {
		switch {
		case errors.Is(err, policy.ErrInvalidPack):
			respondError(w, http.StatusBadRequest, "invalid_pack")
		case errors.Is(err, policy.ErrInvalidCurrency):
			respondError(w, http.StatusBadRequest, "invalid_currency")
		case errors.Is(err, processor.ErrUnavailable):
			respondError(w, http.StatusBadGateway, "processor_unavailable")
		default:
			respondError(w, http.StatusInternalServerError, "unable to create checkout")
		}
		return
	}
	respondJSON(w, http.StatusCreated, checkout)
}

type verifyRequest struct {
	SessionID string `json:"session_id"`
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	result, err := h.payments.Verify(r.Context(), userID, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOrderNotFound):
			respondError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, services.ErrOrderMismatch):
			respondError(w, http.StatusForbidden, "order_mismatch")
		case errors.Is(err, processor.ErrUnavailable):
			respondError(w, http.StatusBadGateway, "processor_unavailable")
		default:
			respondError(w, http.StatusInternalServerError, "unable to verify payment")
		}
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := pagination(r, 20)
	orders, err := h.orders.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load orders")
		return
	}
	respondJSON(w, http.StatusOK, orders)
}
