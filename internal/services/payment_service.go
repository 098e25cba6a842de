package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"validhub/internal/db"
	"validhub/internal/models"
	"validhub/internal/policy"
	"validhub/internal/processor"
	"validhub/internal/store"
	"validhub/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrOrderMismatch = errors.New("payment session belongs to a different user")
	ErrOrderNotFound = errors.New("payment session not found")
)

type OrderStore interface {
	Create(ctx context.Context, tx store.Execer, input store.PaymentSessionInput) error
	GetBySessionID(ctx context.Context, sessionID string) (models.PaymentSession, error)
	GetBySessionIDForUpdate(ctx context.Context, tx store.Getter, sessionID string) (models.PaymentSession, error)
	MarkPaid(ctx context.Context, tx store.Execer, id string) (int64, error)
}

type PurchaseLedger interface {
	PurchaseExists(ctx context.Context, tx store.Getter, sessionID string) (bool, error)
}

type CheckoutProcessor interface {
	CreateSession(ctx context.Context, userID string, credits int64, currency string, amountMinor int64) (processor.Session, error)
	GetSessionStatus(ctx context.Context, sessionID string) (processor.Session, error)
}

// LedgerEngine is the slice of LedgerService the payment flow needs: the
// single write path for purchase crediting.
type LedgerEngine interface {
	ApplyAdjustment(ctx context.Context, tx store.Tx, input AdjustmentInput) (store.Account, error)
}

// PaymentService reconciles external checkout sessions into credit balances.
// The processor is the source of truth for whether money moved; the ledger's
// partial unique index on session_id is the source of truth for whether the
// credits were already granted.
type PaymentService struct {
	txRunner  db.TxRunner
	orders    OrderStore
	purchases PurchaseLedger
	engine    LedgerEngine
	processor CheckoutProcessor
	audit     AuditStore
	hub       CreditHub
}

func NewPaymentService(txRunner db.TxRunner, orders OrderStore, purchases PurchaseLedger, engine LedgerEngine, checkout CheckoutProcessor, audit AuditStore, hub CreditHub) *PaymentService {
	return &PaymentService{
		txRunner:  txRunner,
		orders:    orders,
		purchases: purchases,
		engine:    engine,
		processor: checkout,
		audit:     audit,
		hub:       hub,
	}
}

// Checkout is the hosted payment page handed back to the client.
type Checkout struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	Credits   int64  `json:"credits"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

// CreateCheckout validates the requested pack, opens a processor session and
// records it as pending. Nothing is credited here.
func (s *PaymentService) CreateCheckout(ctx context.Context, userID string, credits int64, currency string) (Checkout, error) {
	amount, err := policy.PriceFor(credits, currency)
	if err != nil {
		return Checkout{}, err
	}
	session, err := s.processor.CreateSession(ctx, userID, credits, currency, amount)
	if err != nil {
		return Checkout{}, err
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.orders.Create(ctx, tx, store.PaymentSessionInput{
			ID:        uuid.NewString(),
			UserID:    userID,
			SessionID: session.ID,
			Credits:   credits,
			Amount:    amount,
			Currency:  currency,
		}); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{"credits": credits, "amount": amount, "currency": currency})
		return s.audit.Log(ctx, tx, userID, "create_checkout", "payment_session", session.ID, string(data))
	})
	if err != nil {
		return Checkout{}, err
	}
	return Checkout{
		SessionID: session.ID,
		URL:       session.URL,
		Credits:   credits,
		Amount:    amount,
		Currency:  currency,
	}, nil
}

// VerifyResult reports the outcome of a reconciliation attempt.
type VerifyResult struct {
	SessionID       string `json:"session_id"`
	Paid            bool   `json:"paid"`
	CreditedCredits int64  `json:"credited_credits"`
	AlreadyCredited bool   `json:"already_credited"`
}

// Verify reconciles one checkout session. Safe to call any number of times
// with any interleaving: at most one verification ever credits, all others
// observe the settled state. A transient processor failure leaves the session
// pending so a later call or the sweeper can finish the job.
func (s *PaymentService) Verify(ctx context.Context, userID, sessionID string) (VerifyResult, error) {
	order, err := s.orders.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VerifyResult{}, ErrOrderNotFound
		}
		return VerifyResult{}, err
	}
	if order.UserID != userID {
		return VerifyResult{}, ErrOrderMismatch
	}
	if order.Status == models.OrderPaid {
		return VerifyResult{SessionID: sessionID, Paid: true, AlreadyCredited: true}, nil
	}

	session, err := s.processor.GetSessionStatus(ctx, sessionID)
	if err != nil {
		return VerifyResult{}, err
	}
	if !session.Paid {
		return VerifyResult{SessionID: sessionID, Paid: false}, nil
	}

	var after store.Account
	credited := false
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		after = store.Account{}
		credited = false
		locked, err := s.orders.GetBySessionIDForUpdate(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if locked.Status == models.OrderPaid {
			return nil
		}
		exists, err := s.purchases.PurchaseExists(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if !exists {
			metadata, _ := json.Marshal(map[string]any{"amount": locked.Amount, "currency": locked.Currency})
			account, err := s.engine.ApplyAdjustment(ctx, tx, AdjustmentInput{
				UserID:    locked.UserID,
				Delta:     locked.Credits,
				Reason:    models.ReasonPurchase,
				SessionID: &sessionID,
				Metadata:  string(metadata),
			})
			if err != nil {
				return err
			}
			after = account
			credited = true
		}
		if _, err := s.orders.MarkPaid(ctx, tx, locked.ID); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{"credits": locked.Credits, "credited": credited})
		return s.audit.Log(ctx, tx, locked.UserID, "verify_payment", "payment_session", sessionID, string(data))
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			// Another verification inserted the purchase row first.
			return VerifyResult{SessionID: sessionID, Paid: true, AlreadyCredited: true}, nil
		}
		return VerifyResult{}, err
	}
	if !credited {
		return VerifyResult{SessionID: sessionID, Paid: true, AlreadyCredited: true}, nil
	}
	s.hub.BroadcastCredits(order.UserID, websocket.CreditUpdate{
		AvailableCredits: after.AvailableCredits,
		LockedCredits:    after.LockedCredits,
	})
	return VerifyResult{SessionID: sessionID, Paid: true, CreditedCredits: order.Credits}, nil
}
