package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"validhub/internal/middleware"
	"validhub/internal/policy"
	"validhub/internal/services"
	"validhub/internal/validator"

	"github.com/go-chi/chi/v5"
)

type postTestRequest struct {
	Title        string `json:"title"`
	Type         string `json:"type"`
	Goals        string `json:"goals"`
	TimeRequired int    `json:"time_required"`
	Link         string `json:"link"`
	NDA          bool   `json:"nda"`
}

func (h *Handler) PostTest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req postTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validator.ValidateTitle(req.Title); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	tier, err := policy.TierForDuration(req.TimeRequired)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_duration")
		return
	}
	test, err := h.engine.PostTest(r.Context(), services.PostTestRequest{
		OwnerID:         userID,
		Title:           req.Title,
		Type:            req.Type,
		Goals:           req.Goals,
		TimeRequired:    req.TimeRequired,
		Link:            req.Link,
		NDA:             req.NDA,
		RewardPerTester: tier.RewardPerTester,
		MaxTesters:      tier.MaxTesters,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInsufficientCredits):
			respondError(w, http.StatusBadRequest, "insufficient_credits")
		case errors.Is(err, services.ErrInvalidReward):
			respondError(w, http.StatusBadRequest, "invalid_reward")
		default:
			respondError(w, http.StatusInternalServerError, "unable to post test")
		}
		return
	}
	respondJSON(w, http.StatusCreated, test)
}

func (h *Handler) ListTests(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 20)
	status := r.URL.Query().Get("status")
	tests, err := h.tests.List(r.Context(), status, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load tests")
		return
	}
	respondJSON(w, http.StatusOK, tests)
}

func (h *Handler) ListMyTests(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	tests, err := h.tests.ListByOwner(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load tests")
		return
	}
	respondJSON(w, http.StatusOK, tests)
}

func (h *Handler) GetTest(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "id")
	test, err := h.tests.GetByID(r.Context(), testID)
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "test not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load test")
		return
	}
	respondJSON(w, http.StatusOK, test)
}

func (h *Handler) CloseTest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	testID := chi.URLParam(r, "id")
	if err := h.engine.CloseTest(r.Context(), userID, testID); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			respondError(w, http.StatusNotFound, "test not found")
		case errors.Is(err, services.ErrNotOwner):
			respondError(w, http.StatusForbidden, "not_owner")
		case errors.Is(err, services.ErrTestClosed):
			respondError(w, http.StatusConflict, "test_closed")
		default:
			respondError(w, http.StatusInternalServerError, "unable to close test")
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}
