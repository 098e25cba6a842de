package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"validhub/internal/auth"
	"validhub/internal/middleware"
	"validhub/internal/models"
	"validhub/internal/services"
	"validhub/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type adjustCreditsRequest struct {
	UserID string `json:"user_id"`
	Delta  int64  `json:"delta"`
	Note   string `json:"note"`
}

// AdjustCredits is the super-admin correction path. The delta lands on the
// available balance with an admin_adjust ledger row.
func (h *Handler) AdjustCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	_, isSuper, err := h.admin.IsAdmin(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	if !isSuper {
		respondError(w, http.StatusForbidden, "super_admin_required")
		return
	}
	var req adjustCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	metadata, _ := json.Marshal(map[string]string{"note": req.Note})
	err = h.engine.AdjustCredits(r.Context(), userID, req.UserID, req.Delta, models.ReasonAdminAdjust, string(metadata))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			respondError(w, http.StatusNotFound, "account not found")
		case errors.Is(err, services.ErrInvalidAdjustment):
			respondError(w, http.StatusBadRequest, "invalid_adjustment")
		case errors.Is(err, services.ErrInsufficientCredits):
			respondError(w, http.StatusBadRequest, "insufficient_credits")
		default:
			respondError(w, http.StatusInternalServerError, "unable to adjust credits")
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "adjusted"})
}

type promoteRequest struct {
	Identifier string `json:"identifier"`
}

// Roles every promoted admin starts with. Super admins bypass role checks
// entirely, so no row is needed for them.
var defaultAdminRoles = []string{"CanViewUsers", "CanViewTransactions"}

func (h *Handler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	_, isSuper, err := h.admin.IsAdmin(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	if !isSuper {
		respondError(w, http.StatusForbidden, "super_admin_required")
		return
	}
	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Identifier == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	targetUserID := req.Identifier
	if strings.Contains(req.Identifier, "@") {
		user, err := h.users.GetByEmail(r.Context(), req.Identifier)
		if err != nil {
			if err == sql.ErrNoRows {
				respondError(w, http.StatusNotFound, "user not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "unable to resolve user")
			return
		}
		targetUserID = user.ID
	} else if _, err := h.users.GetByID(r.Context(), targetUserID); err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to resolve user")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.CreateAdmin(r.Context(), tx, targetUserID, false, &userID); err != nil {
			return err
		}
		for _, role := range defaultAdminRoles {
			if err := h.admin.GrantRole(r.Context(), tx, targetUserID, role); err != nil {
				return err
			}
		}
		data, _ := json.Marshal(map[string]string{
			"target_user_id": targetUserID,
		})
		return h.audit.Log(r.Context(), tx, userID, "promote_admin", "admin", targetUserID, string(data))
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to promote admin")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "promoted"})
}

func (h *Handler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.accounts.ListAllWithUsers(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load users")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, map[string]any{
			"user_id":           row.UserID,
			"username":          row.Username,
			"email":             row.Email,
			"available_credits": row.AvailableCredits,
			"locked_credits":    row.LockedCredits,
			"created_at":        row.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) AdminListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 50)
	rows, err := h.ledger.ListAll(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 50)
	rows, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// Reconcile runs the global audit: for every account, the signed ledger sum
// must match available_credits and the open escrow pools must match
// locked_credits.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rows, err := h.accounts.Audit(r.Context(), "")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to reconcile balances")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, map[string]any{
			"user_id":              row.UserID,
			"available_credits":    row.AvailableCredits,
			"locked_credits":       row.LockedCredits,
			"ledger_sum":           row.LedgerSum,
			"open_escrow":          row.OpenEscrow,
			"available_difference": row.AvailableDifference,
			"locked_difference":    row.LockedDifference,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID)
}
