package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"validhub/internal/policy"
	"validhub/internal/processor"
	"validhub/internal/services"
)

func TestCreateCheckoutInvalidPack(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubAccountStore{}, stubTestStore{}, stubSubmissionStore{}, stubLedgerStore{}, stubOrderStore{}, stubAdminStore{}, stubAuditStore{}, stubEngine{}, stubPayments{
		createCheckoutFn: func(context.Context, string, int64, string) (services.Checkout, error) {
			return services.Checkout{}, policy.ErrInvalidPack
		},
	})
	body := strings.NewReader(`{"credits":7,"currency":"inr"}`)
	rr := serveWithAuth(t, http.HandlerFunc(handler.CreateCheckout), http.MethodPost, "/payments/checkout", body, "user-1")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "invalid_pack") {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestCreateCheckoutProcessorDown(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubAccountStore{}, stubTestStore{}, stubSubmissionStore{}, stubLedgerStore{}, stubOrderStore{}, stubAdminStore{}, stubAuditStore{}, stubEngine{}, stubPayments{
		createCheckoutFn: func(context.Context, string, int64, string) (services.Checkout, error) {
			return services.Checkout{}, processor.ErrUnavailable
		},
	})
	body := strings.NewReader(`{"credits":25,"currency":"inr"}`)
	rr := serveWithAuth(t, http.HandlerFunc(handler.CreateCheckout), http.MethodPost, "/payments/checkout", body, "user-1")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "processor_unavailable") {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestCreateCheckoutReturnsSession(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubAccountStore{}, stubTestStore{}, stubSubmissionStore{}, stubLedgerStore{}, stubOrderStore{}, stubAdminStore{}, stubAuditStore{}, stubEngine{}, stubPayments{
		createCheckoutFn: func(_ context.Context, userID string, credits int64, currency string) (services.Checkout, error) {
			if userID != "user-1" || credits != 25 || currency != "inr" {
				t.Fatalf("unexpected arguments: %q %d %q", userID, credits, currency)
			}
			return services.Checkout{SessionID: "cs_123", URL: "https://pay.example/cs_123", Credits: 25, Amount: 89900, Currency: "inr"}, nil
		},
	})
	body := strings.NewReader(`{"credits":25,"currency":"inr"}`)
	rr := serveWithAuth(t, http.HandlerFunc(handler.CreateCheckout), http.MethodPost, "/payments/checkout", body, "user-1")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload services.Checkout
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.SessionID != "cs_123" || payload.URL == "" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestVerifyPaymentStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", services.ErrOrderNotFound, http.StatusNotFound},
		{"mismatch", services.ErrOrderMismatch, http.StatusForbidden},
		{"processor down", processor.ErrUnavailable, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubAccountStore{}, stubTestStore{}, stubSubmissionStore{}, stubLedgerStore{}, stubOrderStore{}, stubAdminStore{}, stubAuditStore{}, stubEngine{}, stubPayments{
				verifyFn: func(context.Context, string, string) (services.VerifyResult, error) {
					return services.VerifyResult{}, tc.err
				},
			})
			body := strings.NewReader(`{"session_id":"cs_123"}`)
			rr := serveWithAuth(t, http.HandlerFunc(handler.VerifyPayment), http.MethodPost, "/payments/verify", body, "user-1")
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
		})
	}
}

func TestVerifyPaymentRequiresSessionID(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubAccountStore{}, stubTestStore{}, stubSubmissionStore{}, stubLedgerStore{}, stubOrderStore{}, stubAdminStore{}, stubAuditStore{}, stubEngine{}, stubPayments{
		verifyFn: func(context.Context, string, string) (services.VerifyResult, error) {
			t.Fatalf("empty session id must not reach the service")
			return services.VerifyResult{}, nil
		},
	})
	body := strings.NewReader(`{}`)
	rr := serveWithAuth(t, http.HandlerFunc(handler.VerifyPayment), http.MethodPost, "/payments/verify", body, "user-1")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestVerifyPaymentReportsIdempotentReplay(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubAccountStore{}, stubTestStore{}, stubSubmissionStore{}, stubLedgerStore{}, stubOrderStore{}, stubAdminStore{}, stubAuditStore{}, stubEngine{}, stubPayments{
		verifyFn: func(context.Context, string, string) (services.VerifyResult, error) {
			return services.VerifyResult{SessionID: "cs_123", Paid: true, AlreadyCredited: true}, nil
		},
	})
	body := strings.NewReader(`{"session_id":"cs_123"}`)
	rr := serveWithAuth(t, http.HandlerFunc(handler.VerifyPayment), http.MethodPost, "/payments/verify", body, "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload services.VerifyResult
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !payload.Paid || !payload.AlreadyCredited {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}
