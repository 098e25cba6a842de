package store

import (
	"context"

	"validhub/internal/models"
)

type SubmissionStore struct {
	db DB
}

func NewSubmissionStore(db DB) *SubmissionStore {
	return &SubmissionStore{db: db}
}

type SubmissionInput struct {
	ID       string
	TestID   string
	TesterID string
	Content  string
	Rating   *int
}

func (s *SubmissionStore) Create(ctx context.Context, tx Execer, input SubmissionInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO submissions (id, test_id, tester_id, content, rating, status)
		VALUES ($1, $2, $3, $4, $5, 'submitted')
	`, input.ID, input.TestID, input.TesterID, input.Content, input.Rating)
	return err
}

func (s *SubmissionStore) GetByID(ctx context.Context, submissionID string) (models.Submission, error) {
	var row models.Submission
	err := s.db.GetContext(ctx, &row, `
		SELECT id, test_id, tester_id, content, rating, status, created_at
		FROM submissions
		WHERE id = $1
	`, submissionID)
	if err != nil {
		return models.Submission{}, err
	}
	return row, nil
}

func (s *SubmissionStore) GetForUpdate(ctx context.Context, tx Getter, submissionID string) (models.Submission, error) {
	var row models.Submission
	err := tx.GetContext(ctx, &row, `
		SELECT id, test_id, tester_id, content, rating, status, created_at
		FROM submissions
		WHERE id = $1
		FOR UPDATE
	`, submissionID)
	if err != nil {
		return models.Submission{}, err
	}
	return row, nil
}

func (s *SubmissionStore) ListByTest(ctx context.Context, testID string) ([]models.Submission, error) {
	var rows []models.Submission
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, test_id, tester_id, content, rating, status, created_at
		FROM submissions
		WHERE test_id = $1
		ORDER BY created_at ASC
	`, testID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *SubmissionStore) ListByTester(ctx context.Context, testerID string) ([]models.Submission, error) {
	var rows []models.Submission
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, test_id, tester_id, content, rating, status, created_at
		FROM submissions
		WHERE tester_id = $1
		ORDER BY created_at DESC
	`, testerID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// HasOpenSubmission reports whether the tester already holds a non-terminal
// submission for the test.
func (s *SubmissionStore) HasOpenSubmission(ctx context.Context, tx Getter, testID, testerID string) (bool, error) {
	var count int
	err := tx.GetContext(ctx, &count, `
		SELECT COUNT(1)
		FROM submissions
		WHERE test_id = $1 AND tester_id = $2 AND status = 'submitted'
	`, testID, testerID)
	return count > 0, err
}

// Finalize flips a submission to its terminal status. The WHERE guard allows
// exactly one terminal transition; zero rows affected means it was already
// finalized.
func (s *SubmissionStore) Finalize(ctx context.Context, tx Execer, submissionID string, status models.SubmissionStatus) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE submissions
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'submitted'
	`, string(status), submissionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
