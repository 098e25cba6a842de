package handlers

import (
	"net/http"

	"validhub/internal/middleware"
	"validhub/internal/policy"
)

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	account, err := h.accounts.GetByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load balance")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":           account.UserID,
		"available_credits": account.AvailableCredits,
		"locked_credits":    account.LockedCredits,
	})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := pagination(r, 20)
	transactions, err := h.ledger.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	respondJSON(w, http.StatusOK, transactions)
}

func (h *Handler) ListPacks(w http.ResponseWriter, r *http.Request) {
	packs := policy.Packs()
	normalized := make([]map[string]any, 0, len(packs))
	for _, pack := range packs {
		prices := make(map[string]any, len(pack.Prices))
		for currency, minor := range pack.Prices {
			prices[currency] = map[string]any{
				"amount":    minor,
				"display":   policy.DisplayPrice(minor),
				"unit_rate": policy.UnitRate(minor, pack.Credits),
			}
		}
		normalized = append(normalized, map[string]any{
			"credits": pack.Credits,
			"prices":  prices,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

// SelfCheck reconciles the caller's materialized balances against the signed
// ledger sum and the open escrow pools.
func (h *Handler) SelfCheck(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	rows, err := h.accounts.Audit(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to self_check")
		return
	}
	response := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		response = append(response, map[string]any{
			"user_id":              row.UserID,
			"available_credits":    row.AvailableCredits,
			"locked_credits":       row.LockedCredits,
			"ledger_sum":           row.LedgerSum,
			"open_escrow":          row.OpenEscrow,
			"available_difference": row.AvailableDifference,
			"locked_difference":    row.LockedDifference,
		})
	}
	respondJSON(w, http.StatusOK, response)
}
