package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrUnavailable marks transient processor failures (timeouts, 5xx). Callers
// may retry; no state has been mutated when it is returned.
var ErrUnavailable = errors.New("payment processor unavailable")

// Session is the processor's view of a hosted checkout.
type Session struct {
	ID          string
	URL         string
	Paid        bool
	AmountTotal int64
	Currency    string
	Credits     int64
}

// Client talks to a Stripe-compatible checkout sessions API. All requests are
// bounded by the configured timeout.
type Client struct {
	baseURL    string
	secretKey  string
	siteURL    string
	httpClient *http.Client
}

func New(baseURL, secretKey, siteURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		siteURL:    strings.TrimRight(siteURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sessionResponse struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

// CreateSession opens a hosted checkout for one credit pack. The pack
// parameters are attached as session metadata so verification can recover
// them from the processor alone.
func (c *Client) CreateSession(ctx context.Context, userID string, credits int64, currency string, amountMinor int64) (Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][price_data][currency]", currency)
	form.Set("line_items[0][price_data][product_data][name]", fmt.Sprintf("Credits Pack - %d", credits))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(amountMinor, 10))
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", c.siteURL+"/payment-success?session_id={CHECKOUT_SESSION_ID}")
	form.Set("cancel_url", c.siteURL+"/payment-canceled")
	form.Set("metadata[user_id]", userID)
	form.Set("metadata[credits]", strconv.FormatInt(credits, 10))
	form.Set("metadata[currency]", currency)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parsed, err := c.do(req)
	if err != nil {
		return Session{}, err
	}
	return toSession(parsed), nil
}

// GetSessionStatus reports whether the session is paid, plus the metadata
// attached at creation.
func (c *Client) GetSessionStatus(ctx context.Context, sessionID string) (Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/checkout/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	parsed, err := c.do(req)
	if err != nil {
		return Session{}, err
	}
	return toSession(parsed), nil
}

func (c *Client) do(req *http.Request) (sessionResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return sessionResponse{}, ErrUnavailable
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return sessionResponse{}, ErrUnavailable
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return sessionResponse{}, fmt.Errorf("processor request failed: %s", resp.Status)
	}
	var parsed sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return sessionResponse{}, fmt.Errorf("failed to decode processor response: %w", err)
	}
	return parsed, nil
}

func toSession(resp sessionResponse) Session {
	credits, _ := strconv.ParseInt(resp.Metadata["credits"], 10, 64)
	currency := resp.Metadata["currency"]
	if currency == "" {
		currency = resp.Currency
	}
	return Session{
		ID:          resp.ID,
		URL:         resp.URL,
		Paid:        resp.PaymentStatus == "paid",
		AmountTotal: resp.AmountTotal,
		Currency:    currency,
		Credits:     credits,
	}
}
