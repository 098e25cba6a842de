package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"validhub/internal/store"
)

func TestGetBalance(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubAccountStore{
		getByUserFn: func(_ context.Context, userID string) (store.Account, error) {
			return store.Account{UserID: userID, AvailableCredits: 14, LockedCredits: 6}, nil
		},
	}, stubTestStore{}, stubSubmissionStore{}, stubLedgerStore{}, stubOrderStore{}, stubAdminStore{}, stubAuditStore{}, stubEngine{}, stubPayments{})

	rr := serveWithAuth(t, http.HandlerFunc(handler.GetBalance), http.MethodGet, "/credits/balance", nil, "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["available_credits"] != float64(14) || payload["locked_credits"] != float64(6) {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestListPacksIsPublic(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubAccountStore{}, stubTestStore{}, stubSubmissionStore{}, stubLedgerStore{}, stubOrderStore{}, stubAdminStore{}, stubAuditStore{}, stubEngine{}, stubPayments{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/credits/packs", nil)
	handler.ListPacks(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload []map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(payload) != 3 {
		t.Fatalf("expected 3 packs, got %d", len(payload))
	}
	for _, pack := range payload {
		prices, ok := pack["prices"].(map[string]any)
		if !ok {
			t.Fatalf("missing prices: %#v", pack)
		}
		for _, currency := range []string{"inr", "usd"} {
			if _, ok := prices[currency]; !ok {
				t.Fatalf("pack missing %s price: %#v", currency, pack)
			}
		}
	}
}

func TestSelfCheckReturnsDifferences(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubAccountStore{
		auditFn: func(_ context.Context, userID string) ([]store.AccountAuditRow, error) {
			if userID != "user-1" {
				t.Fatalf("self check must be scoped to the caller, got %q", userID)
			}
			return []store.AccountAuditRow{{
				UserID:           userID,
				AvailableCredits: 14,
				LockedCredits:    6,
				LedgerSum:        14,
				OpenEscrow:       6,
			}}, nil
		},
	}, stubTestStore{}, stubSubmissionStore{}, stubLedgerStore{}, stubOrderStore{}, stubAdminStore{}, stubAuditStore{}, stubEngine{}, stubPayments{})

	rr := serveWithAuth(t, http.HandlerFunc(handler.SelfCheck), http.MethodGet, "/credits/self-check", nil, "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload []map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(payload) != 1 || payload[0]["available_difference"] != float64(0) {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}
