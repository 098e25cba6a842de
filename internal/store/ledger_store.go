package store

import (
	"context"

	"validhub/internal/models"
)

// LedgerStore writes and reads credit_transactions, the append-only record of
// every credit movement. Rows are never updated or deleted.
type LedgerStore struct {
	db DB
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

type CreditTransactionInput struct {
	ID         string
	UserID     string
	Amount     int64
	Direction  models.Direction
	Reason     models.Reason
	TestID     *string
	FeedbackID *string
	SessionID  *string
	Metadata   string
}

func (s *LedgerStore) Append(ctx context.Context, tx Execer, input CreditTransactionInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_transactions
			(id, user_id, amount, direction, reason, test_id, feedback_id, session_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, input.ID, input.UserID, input.Amount, string(input.Direction), string(input.Reason),
		input.TestID, input.FeedbackID, input.SessionID, input.Metadata)
	return err
}

func (s *LedgerStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.CreditTransaction, error) {
	var rows []models.CreditTransaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, amount, direction, reason, test_id, feedback_id, session_id, metadata, created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *LedgerStore) ListAll(ctx context.Context, limit, offset int) ([]models.CreditTransaction, error) {
	var rows []models.CreditTransaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, amount, direction, reason, test_id, feedback_id, session_id, metadata, created_at
		FROM credit_transactions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SumByUser returns the signed transaction sum, which must equal the user's
// available balance at all times.
func (s *LedgerStore) SumByUser(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE -amount END), 0)
		FROM credit_transactions
		WHERE user_id = $1
	`, userID)
	return sum, err
}

// PurchaseExists reports whether a purchase row was already recorded for the
// payment session. It is the idempotency guard re-checked inside the verify
// transaction, alongside the partial unique index on session_id.
func (s *LedgerStore) PurchaseExists(ctx context.Context, tx Getter, sessionID string) (bool, error) {
	var count int
	err := tx.GetContext(ctx, &count, `
		SELECT COUNT(1)
		FROM credit_transactions
		WHERE reason = 'purchase' AND session_id = $1
	`, sessionID)
	return count > 0, err
}
