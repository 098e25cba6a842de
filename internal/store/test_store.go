package store

import (
	"context"

	"validhub/internal/models"
)

type TestRequestStore struct {
	db DB
}

func NewTestRequestStore(db DB) *TestRequestStore {
	return &TestRequestStore{db: db}
}

type TestRequestInput struct {
	ID              string
	OwnerID         string
	Title           string
	Type            string
	Goals           string
	TimeRequired    int
	Link            string
	NDA             bool
	RewardPerTester int64
	MaxTesters      int
	LockedRemaining int64
}

func (s *TestRequestStore) Create(ctx context.Context, tx Execer, input TestRequestInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO test_requests
			(id, owner_id, title, type, goals, time_required, link, nda,
			 reward_per_tester, max_testers, locked_remaining, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'active')
	`, input.ID, input.OwnerID, input.Title, input.Type, input.Goals, input.TimeRequired,
		input.Link, input.NDA, input.RewardPerTester, input.MaxTesters, input.LockedRemaining)
	return err
}

func (s *TestRequestStore) GetByID(ctx context.Context, testID string) (models.TestRequest, error) {
	var row models.TestRequest
	err := s.db.GetContext(ctx, &row, `
		SELECT id, owner_id, title, type, goals, time_required, link, nda,
		       reward_per_tester, max_testers, locked_remaining, status, created_at
		FROM test_requests
		WHERE id = $1
	`, testID)
	if err != nil {
		return models.TestRequest{}, err
	}
	return row, nil
}

func (s *TestRequestStore) GetForUpdate(ctx context.Context, tx Getter, testID string) (models.TestRequest, error) {
	var row models.TestRequest
	err := tx.GetContext(ctx, &row, `
		SELECT id, owner_id, title, type, goals, time_required, link, nda,
		       reward_per_tester, max_testers, locked_remaining, status, created_at
		FROM test_requests
		WHERE id = $1
		FOR UPDATE
	`, testID)
	if err != nil {
		return models.TestRequest{}, err
	}
	return row, nil
}

func (s *TestRequestStore) List(ctx context.Context, status string, limit, offset int) ([]models.TestRequest, error) {
	var rows []models.TestRequest
	query := `
		SELECT id, owner_id, title, type, goals, time_required, link, nda,
		       reward_per_tester, max_testers, locked_remaining, status, created_at
		FROM test_requests
	`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, status, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}
	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TestRequestStore) ListByOwner(ctx context.Context, ownerID string) ([]models.TestRequest, error) {
	var rows []models.TestRequest
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, owner_id, title, type, goals, time_required, link, nda,
		       reward_per_tester, max_testers, locked_remaining, status, created_at
		FROM test_requests
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// DecrementLocked takes one reward unit out of the escrow pool. The WHERE
// guard makes the decrement conditional: zero rows affected means the pool is
// exhausted or the test already closed.
func (s *TestRequestStore) DecrementLocked(ctx context.Context, tx Execer, testID string, amount int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE test_requests
		SET locked_remaining = locked_remaining - $1, updated_at = NOW()
		WHERE id = $2 AND status = 'active' AND locked_remaining >= $1
	`, amount, testID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CloseIfExhausted transitions a drained test to closed.
func (s *TestRequestStore) CloseIfExhausted(ctx context.Context, tx Execer, testID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE test_requests
		SET status = 'closed', updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND locked_remaining = 0
	`, testID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close zeroes the pool and closes the test; zero rows affected means it was
// already closed.
func (s *TestRequestStore) Close(ctx context.Context, tx Execer, testID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE test_requests
		SET locked_remaining = 0, status = 'closed', updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`, testID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
