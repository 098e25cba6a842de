package store

import (
	"context"
	"time"

	"validhub/internal/models"
)

// OrderStore persists payment_sessions, the pending/paid record of each
// checkout. The external session id is the idempotency key for crediting.
type OrderStore struct {
	db DB
}

func NewOrderStore(db DB) *OrderStore {
	return &OrderStore{db: db}
}

type PaymentSessionInput struct {
	ID        string
	UserID    string
	SessionID string
	Credits   int64
	Amount    int64
	Currency  string
}

func (s *OrderStore) Create(ctx context.Context, tx Execer, input PaymentSessionInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payment_sessions (id, user_id, session_id, credits, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
	`, input.ID, input.UserID, input.SessionID, input.Credits, input.Amount, input.Currency)
	return err
}

func (s *OrderStore) GetBySessionID(ctx context.Context, sessionID string) (models.PaymentSession, error) {
	var row models.PaymentSession
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, session_id, credits, amount, currency, status, created_at
		FROM payment_sessions
		WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return models.PaymentSession{}, err
	}
	return row, nil
}

func (s *OrderStore) GetBySessionIDForUpdate(ctx context.Context, tx Getter, sessionID string) (models.PaymentSession, error) {
	var row models.PaymentSession
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, session_id, credits, amount, currency, status, created_at
		FROM payment_sessions
		WHERE session_id = $1
		FOR UPDATE
	`, sessionID)
	if err != nil {
		return models.PaymentSession{}, err
	}
	return row, nil
}

// MarkPaid transitions pending -> paid exactly once; zero rows affected means
// another verification already settled the session.
func (s *OrderStore) MarkPaid(ctx context.Context, tx Execer, id string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE payment_sessions
		SET status = 'paid', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *OrderStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.PaymentSession, error) {
	var rows []models.PaymentSession
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, session_id, credits, amount, currency, status, created_at
		FROM payment_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListStalePending returns pending sessions older than the cutoff, for the
// background sweeper to re-verify.
func (s *OrderStore) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]models.PaymentSession, error) {
	var rows []models.PaymentSession
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, session_id, credits, amount, currency, status, created_at
		FROM payment_sessions
		WHERE status = 'pending' AND created_at < NOW() - ($1 * INTERVAL '1 second')
		ORDER BY created_at ASC
		LIMIT $2
	`, int64(olderThan.Seconds()), limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
