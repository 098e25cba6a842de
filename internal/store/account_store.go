package store

import "context"

type AccountStore struct {
	db DB
}

type Account struct {
	UserID           string `db:"user_id"`
	AvailableCredits int64  `db:"available_credits"`
	LockedCredits    int64  `db:"locked_credits"`
	CreatedAt        any    `db:"created_at"`
}

// AccountAuditRow compares the materialized balance columns against the ledger
// (signed transaction sum) and the open escrow pools.
type AccountAuditRow struct {
	UserID              string `db:"user_id"`
	AvailableCredits    int64  `db:"available_credits"`
	LockedCredits       int64  `db:"locked_credits"`
	LedgerSum           int64  `db:"ledger_sum"`
	OpenEscrow          int64  `db:"open_escrow"`
	AvailableDifference int64  `db:"available_difference"`
	LockedDifference    int64  `db:"locked_difference"`
}

type AccountWithUser struct {
	UserID           string `db:"user_id"`
	Username         string `db:"username"`
	Email            string `db:"email"`
	AvailableCredits int64  `db:"available_credits"`
	LockedCredits    int64  `db:"locked_credits"`
	CreatedAt        any    `db:"created_at"`
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, tx Execer, userID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (user_id, available_credits, locked_credits)
		VALUES ($1, 0, 0)
	`, userID)
	return err
}

func (s *AccountStore) GetByUser(ctx context.Context, userID string) (Account, error) {
	var row Account
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, available_credits, locked_credits, created_at
		FROM accounts
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, userID string) (Account, error) {
	var row Account
	err := tx.GetContext(ctx, &row, `
		SELECT user_id, available_credits, locked_credits
		FROM accounts
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

// MoveAvailableToLocked escrows amount: decrement-if-sufficient, so two
// concurrent postings cannot jointly overdraw a stale balance. Returns rows
// affected; zero means insufficient available credits.
func (s *AccountStore) MoveAvailableToLocked(ctx context.Context, tx Execer, userID string, amount int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET available_credits = available_credits - $1,
		    locked_credits = locked_credits + $1,
		    updated_at = NOW()
		WHERE user_id = $2 AND available_credits >= $1
	`, amount, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MoveLockedToAvailable releases escrow back to the owner (refund on close).
func (s *AccountStore) MoveLockedToAvailable(ctx context.Context, tx Execer, userID string, amount int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET locked_credits = locked_credits - $1,
		    available_credits = available_credits + $1,
		    updated_at = NOW()
		WHERE user_id = $2 AND locked_credits >= $1
	`, amount, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeductLocked removes paid-out escrow from the owner side of an approval.
func (s *AccountStore) DeductLocked(ctx context.Context, tx Execer, userID string, amount int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET locked_credits = locked_credits - $1, updated_at = NOW()
		WHERE user_id = $2 AND locked_credits >= $1
	`, amount, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AdjustAvailable adds delta to the spendable balance. Negative deltas are
// guarded so the balance can never go below zero.
func (s *AccountStore) AdjustAvailable(ctx context.Context, tx Execer, userID string, delta int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET available_credits = available_credits + $1, updated_at = NOW()
		WHERE user_id = $2 AND available_credits + $1 >= 0
	`, delta, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *AccountStore) Audit(ctx context.Context, userID string) ([]AccountAuditRow, error) {
	query := `
		SELECT a.user_id,
		       a.available_credits,
		       a.locked_credits,
		       COALESCE(l.ledger_sum, 0) AS ledger_sum,
		       COALESCE(t.open_escrow, 0) AS open_escrow,
		       (a.available_credits - COALESCE(l.ledger_sum, 0)) AS available_difference,
		       (a.locked_credits - COALESCE(t.open_escrow, 0)) AS locked_difference
		FROM accounts a
		LEFT JOIN (
			SELECT user_id,
			       SUM(CASE WHEN direction = 'credit' THEN amount ELSE -amount END) AS ledger_sum
			FROM credit_transactions
			GROUP BY user_id
		) l ON l.user_id = a.user_id
		LEFT JOIN (
			SELECT owner_id, SUM(locked_remaining) AS open_escrow
			FROM test_requests
			WHERE status = 'active'
			GROUP BY owner_id
		) t ON t.owner_id = a.user_id
	`
	var rows []AccountAuditRow
	if userID != "" {
		query += ` WHERE a.user_id = $1`
		err := s.db.SelectContext(ctx, &rows, query, userID)
		return rows, err
	}
	err := s.db.SelectContext(ctx, &rows, query)
	return rows, err
}

func (s *AccountStore) ListAllWithUsers(ctx context.Context) ([]AccountWithUser, error) {
	var rows []AccountWithUser
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.user_id, u.username, u.email, a.available_credits, a.locked_credits, a.created_at
		FROM accounts a
		JOIN users u ON u.id = a.user_id
		ORDER BY a.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
