package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"validhub/internal/middleware"
	"validhub/internal/services"
	"validhub/internal/validator"

	"github.com/go-chi/chi/v5"
)

type submitFeedbackRequest struct {
	Content string `json:"content"`
	Rating  *int   `json:"rating"`
}

func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	testID := chi.URLParam(r, "id")
	var req submitFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validator.ValidateContent(req.Content); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validator.ValidateRating(req.Rating); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	submission, err := h.engine.SubmitFeedback(r.Context(), services.SubmitFeedbackRequest{
		TesterID: userID,
		TestID:   testID,
		Content:  req.Content,
		Rating:   req.Rating,
	})
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			respondError(w, http.StatusNotFound, "test not found")
		case errors.Is(err, services.ErrTestClosed):
			respondError(w, http.StatusConflict, "test_closed")
		case errors.Is(err, services.ErrOwnSubmission):
			respondError(w, http.StatusForbidden, "own_test")
		case errors.Is(err, services.ErrDuplicateSubmission):
			respondError(w, http.StatusConflict, "duplicate_submission")
		default:
			respondError(w, http.StatusInternalServerError, "unable to submit feedback")
		}
		return
	}
	respondJSON(w, http.StatusCreated, submission)
}

// ListTestFeedback is owner-only: testers see their own submissions through
// /feedback/mine instead.
func (h *Handler) ListTestFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
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
	if test.OwnerID != userID {
		respondError(w, http.StatusForbidden, "not_owner")
		return
	}
	submissions, err := h.submissions.ListByTest(r.Context(), testID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load feedback")
		return
	}
	respondJSON(w, http.StatusOK, submissions)
}

func (h *Handler) ListMyFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	submissions, err := h.submissions.ListByTester(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load feedback")
		return
	}
	respondJSON(w, http.StatusOK, submissions)
}

func (h *Handler) ApproveFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	feedbackID := chi.URLParam(r, "id")
	receipt, err := h.engine.ApproveFeedback(r.Context(), userID, feedbackID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			respondError(w, http.StatusNotFound, "feedback not found")
		case errors.Is(err, services.ErrNotOwner):
			respondError(w, http.StatusForbidden, "not_owner")
		case errors.Is(err, services.ErrAlreadyFinalized):
			respondError(w, http.StatusConflict, "already_finalized")
		case errors.Is(err, services.ErrExhausted):
			respondError(w, http.StatusConflict, "reward_pool_exhausted")
		default:
			respondError(w, http.StatusInternalServerError, "unable to approve feedback")
		}
		return
	}
	respondJSON(w, http.StatusOK, receipt)
}

func (h *Handler) RejectFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	feedbackID := chi.URLParam(r, "id")
	if err := h.engine.RejectFeedback(r.Context(), userID, feedbackID); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			respondError(w, http.StatusNotFound, "feedback not found")
		case errors.Is(err, services.ErrNotOwner):
			respondError(w, http.StatusForbidden, "not_owner")
		case errors.Is(err, services.ErrAlreadyFinalized):
			respondError(w, http.StatusConflict, "already_finalized")
		default:
			respondError(w, http.StatusInternalServerError, "unable to reject feedback")
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}
