package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"validhub/internal/db"
	"validhub/internal/models"
	"validhub/internal/store"
	"validhub/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrNotOwner            = errors.New("caller does not own this test request")
	ErrAlreadyFinalized    = errors.New("submission already finalized")
	ErrExhausted           = errors.New("reward pool exhausted")
	ErrTestClosed          = errors.New("test request is closed")
	ErrDuplicateSubmission = errors.New("an open submission already exists for this test")
	ErrOwnSubmission       = errors.New("cannot submit feedback on an own test")
	ErrInvalidReward       = errors.New("invalid reward parameters")
	ErrInvalidAdjustment   = errors.New("invalid adjustment")
)

// LedgerService is the single authority for mutating balances. Every credit
// movement happens inside one serializable transaction together with its
// ledger row, so no partial settlement is ever visible.
type LedgerService struct {
	txRunner    db.TxRunner
	accounts    AccountStore
	tests       TestRequestStore
	submissions SubmissionStore
	ledger      LedgerStore
	audit       AuditStore
	hub         CreditHub
}

type AccountStore interface {
	GetByUser(ctx context.Context, userID string) (store.Account, error)
	GetForUpdate(ctx context.Context, tx store.Getter, userID string) (store.Account, error)
	MoveAvailableToLocked(ctx context.Context, tx store.Execer, userID string, amount int64) (int64, error)
	MoveLockedToAvailable(ctx context.Context, tx store.Execer, userID string, amount int64) (int64, error)
	DeductLocked(ctx context.Context, tx store.Execer, userID string, amount int64) (int64, error)
	AdjustAvailable(ctx context.Context, tx store.Execer, userID string, delta int64) (int64, error)
}

type TestRequestStore interface {
	Create(ctx context.Context, tx store.Execer, input store.TestRequestInput) error
	GetForUpdate(ctx context.Context, tx store.Getter, testID string) (models.TestRequest, error)
	DecrementLocked(ctx context.Context, tx store.Execer, testID string, amount int64) (int64, error)
	CloseIfExhausted(ctx context.Context, tx store.Execer, testID string) (int64, error)
	Close(ctx context.Context, tx store.Execer, testID string) (int64, error)
}

type SubmissionStore interface {
	Create(ctx context.Context, tx store.Execer, input store.SubmissionInput) error
	GetForUpdate(ctx context.Context, tx store.Getter, submissionID string) (models.Submission, error)
	HasOpenSubmission(ctx context.Context, tx store.Getter, testID, testerID string) (bool, error)
	Finalize(ctx context.Context, tx store.Execer, submissionID string, status models.SubmissionStatus) (int64, error)
}

type LedgerStore interface {
	Append(ctx context.Context, tx store.Execer, input store.CreditTransactionInput) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type CreditHub interface {
	BroadcastCredits(userID string, update websocket.CreditUpdate)
}

func NewLedgerService(txRunner db.TxRunner, accounts AccountStore, tests TestRequestStore, submissions SubmissionStore, ledger LedgerStore, audit AuditStore, hub CreditHub) *LedgerService {
	return &LedgerService{
		txRunner:    txRunner,
		accounts:    accounts,
		tests:       tests,
		submissions: submissions,
		ledger:      ledger,
		audit:       audit,
		hub:         hub,
	}
}

type PostTestRequest struct {
	OwnerID         string
	Title           string
	Type            string
	Goals           string
	TimeRequired    int
	Link            string
	NDA             bool
	RewardPerTester int64
	MaxTesters      int
}

// PostTest escrows rewardPerTester*maxTesters from the owner's available
// balance and creates the test request, atomically. The posting is never
// visible unless the debit succeeded.
func (s *LedgerService) PostTest(ctx context.Context, req PostTestRequest) (models.TestRequest, error) {
	if req.RewardPerTester <= 0 || req.MaxTesters <= 0 {
		return models.TestRequest{}, ErrInvalidReward
	}
	escrow := req.RewardPerTester * int64(req.MaxTesters)
	testID := uuid.NewString()
	var ownerAfter store.Account
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		owner, err := s.accounts.GetForUpdate(ctx, tx, req.OwnerID)
		if err != nil {
			return err
		}
		if owner.AvailableCredits < escrow {
			return ErrInsufficientCredits
		}
		moved, err := s.accounts.MoveAvailableToLocked(ctx, tx, req.OwnerID, escrow)
		if err != nil {
			return err
		}
		if moved == 0 {
			return ErrInsufficientCredits
		}
		ownerAfter = owner
		ownerAfter.AvailableCredits -= escrow
		ownerAfter.LockedCredits += escrow
		if err := s.tests.Create(ctx, tx, store.TestRequestInput{
			ID:              testID,
			OwnerID:         req.OwnerID,
			Title:           req.Title,
			Type:            req.Type,
			Goals:           req.Goals,
			TimeRequired:    req.TimeRequired,
			Link:            req.Link,
			NDA:             req.NDA,
			RewardPerTester: req.RewardPerTester,
			MaxTesters:      req.MaxTesters,
			LockedRemaining: escrow,
		}); err != nil {
			return err
		}
		if err := s.ledger.Append(ctx, tx, store.CreditTransactionInput{
			ID:        uuid.NewString(),
			UserID:    req.OwnerID,
			Amount:    escrow,
			Direction: models.DirectionDebit,
			Reason:    models.ReasonPostTest,
			TestID:    &testID,
			Metadata:  "{}",
		}); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{"escrow": escrow, "reward_per_tester": req.RewardPerTester, "max_testers": req.MaxTesters})
		return s.audit.Log(ctx, tx, req.OwnerID, "post_test", "test_request", testID, string(data))
	})
	if err != nil {
		return models.TestRequest{}, err
	}
	s.broadcast(req.OwnerID, ownerAfter)
	return models.TestRequest{
		ID:              testID,
		OwnerID:         req.OwnerID,
		Title:           req.Title,
		Type:            req.Type,
		Goals:           req.Goals,
		TimeRequired:    req.TimeRequired,
		Link:            req.Link,
		NDA:             req.NDA,
		RewardPerTester: req.RewardPerTester,
		MaxTesters:      req.MaxTesters,
		LockedRemaining: escrow,
		Status:          models.TestActive,
	}, nil
}

// Receipt describes a settled approval.
type Receipt struct {
	FeedbackID      string `json:"feedback_id"`
	TestID          string `json:"test_id"`
	TesterID        string `json:"tester_id"`
	Reward          int64  `json:"reward"`
	LockedRemaining int64  `json:"locked_remaining"`
	TestClosed      bool   `json:"test_closed"`
}

// ApproveFeedback pays one reward unit out of the test's escrow pool to the
// tester. The pool decrement and the submission flip are both conditional
// updates, so two concurrent approvals racing for the last reward unit cannot
// both win.
func (s *LedgerService) ApproveFeedback(ctx context.Context, ownerID, feedbackID string) (Receipt, error) {
	var receipt Receipt
	var ownerAfter, testerAfter store.Account
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		submission, err := s.submissions.GetForUpdate(ctx, tx, feedbackID)
		if err != nil {
			return err
		}
		test, err := s.tests.GetForUpdate(ctx, tx, submission.TestID)
		if err != nil {
			return err
		}
		if test.OwnerID != ownerID {
			return ErrNotOwner
		}
		if submission.Status != models.SubmissionSubmitted {
			return ErrAlreadyFinalized
		}
		if test.Status != models.TestActive || test.LockedRemaining < test.RewardPerTester {
			return ErrExhausted
		}
		reward := test.RewardPerTester

		decremented, err := s.tests.DecrementLocked(ctx, tx, test.ID, reward)
		if err != nil {
			return err
		}
		if decremented == 0 {
			return ErrExhausted
		}
		flipped, err := s.submissions.Finalize(ctx, tx, feedbackID, models.SubmissionApproved)
		if err != nil {
			return err
		}
		if flipped == 0 {
			return ErrAlreadyFinalized
		}

		owner, tester, err := s.lockTwoAccounts(ctx, tx, test.OwnerID, submission.TesterID)
		if err != nil {
			return err
		}
		deducted, err := s.accounts.DeductLocked(ctx, tx, test.OwnerID, reward)
		if err != nil {
			return err
		}
		if deducted == 0 {
			return fmt.Errorf("locked balance of %s inconsistent with escrow pool", test.OwnerID)
		}
		credited, err := s.accounts.AdjustAvailable(ctx, tx, submission.TesterID, reward)
		if err != nil {
			return err
		}
		if credited == 0 {
			return fmt.Errorf("account %s missing during payout", submission.TesterID)
		}
		if err := s.ledger.Append(ctx, tx, store.CreditTransactionInput{
			ID:         uuid.NewString(),
			UserID:     submission.TesterID,
			Amount:     reward,
			Direction:  models.DirectionCredit,
			Reason:     models.ReasonFeedbackApproved,
			TestID:     &submission.TestID,
			FeedbackID: &feedbackID,
			Metadata:   "{}",
		}); err != nil {
			return err
		}

		remaining := test.LockedRemaining - reward
		closed := false
		if remaining == 0 {
			if _, err := s.tests.CloseIfExhausted(ctx, tx, test.ID); err != nil {
				return err
			}
			closed = true
		}

		ownerAfter = owner
		ownerAfter.LockedCredits -= reward
		testerAfter = tester
		testerAfter.AvailableCredits += reward
		receipt = Receipt{
			FeedbackID:      feedbackID,
			TestID:          test.ID,
			TesterID:        submission.TesterID,
			Reward:          reward,
			LockedRemaining: remaining,
			TestClosed:      closed,
		}
		data, _ := json.Marshal(map[string]any{"reward": reward, "tester_id": submission.TesterID})
		return s.audit.Log(ctx, tx, ownerID, "approve_feedback", "submission", feedbackID, string(data))
	})
	if err != nil {
		return Receipt{}, err
	}
	s.broadcast(ownerID, ownerAfter)
	s.broadcast(receipt.TesterID, testerAfter)
	return receipt, nil
}

// RejectFeedback finalizes a submission without touching any balance or
// escrow pool.
func (s *LedgerService) RejectFeedback(ctx context.Context, ownerID, feedbackID string) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		submission, err := s.submissions.GetForUpdate(ctx, tx, feedbackID)
		if err != nil {
			return err
		}
		test, err := s.tests.GetForUpdate(ctx, tx, submission.TestID)
		if err != nil {
			return err
		}
		if test.OwnerID != ownerID {
			return ErrNotOwner
		}
		flipped, err := s.submissions.Finalize(ctx, tx, feedbackID, models.SubmissionRejected)
		if err != nil {
			return err
		}
		if flipped == 0 {
			return ErrAlreadyFinalized
		}
		return s.audit.Log(ctx, tx, ownerID, "reject_feedback", "submission", feedbackID, "{}")
	})
}

// CloseTest refunds whatever is left in the escrow pool to the owner and
// closes the test.
func (s *LedgerService) CloseTest(ctx context.Context, ownerID, testID string) error {
	var ownerAfter store.Account
	var refunded int64
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		test, err := s.tests.GetForUpdate(ctx, tx, testID)
		if err != nil {
			return err
		}
		if test.OwnerID != ownerID {
			return ErrNotOwner
		}
		if test.Status != models.TestActive {
			return ErrTestClosed
		}
		closed, err := s.tests.Close(ctx, tx, testID)
		if err != nil {
			return err
		}
		if closed == 0 {
			return ErrTestClosed
		}
		refunded = test.LockedRemaining
		if refunded > 0 {
			owner, err := s.accounts.GetForUpdate(ctx, tx, ownerID)
			if err != nil {
				return err
			}
			released, err := s.accounts.MoveLockedToAvailable(ctx, tx, ownerID, refunded)
			if err != nil {
				return err
			}
			if released == 0 {
				return fmt.Errorf("locked balance of %s inconsistent with escrow pool", ownerID)
			}
			if err := s.ledger.Append(ctx, tx, store.CreditTransactionInput{
				ID:        uuid.NewString(),
				UserID:    ownerID,
				Amount:    refunded,
				Direction: models.DirectionCredit,
				Reason:    models.ReasonRefund,
				TestID:    &testID,
				Metadata:  "{}",
			}); err != nil {
				return err
			}
			ownerAfter = owner
			ownerAfter.LockedCredits -= refunded
			ownerAfter.AvailableCredits += refunded
		}
		data, _ := json.Marshal(map[string]any{"refunded": refunded})
		return s.audit.Log(ctx, tx, ownerID, "close_test", "test_request", testID, string(data))
	})
	if err != nil {
		return err
	}
	if refunded > 0 {
		s.broadcast(ownerID, ownerAfter)
	}
	return nil
}

type SubmitFeedbackRequest struct {
	TesterID string
	TestID   string
	Content  string
	Rating   *int
}

// SubmitFeedback records a tester's feedback. A tester holds at most one
// non-terminal submission per test; the partial unique index backs the same
// rule at the schema level.
func (s *LedgerService) SubmitFeedback(ctx context.Context, req SubmitFeedbackRequest) (models.Submission, error) {
	submissionID := uuid.NewString()
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		test, err := s.tests.GetForUpdate(ctx, tx, req.TestID)
		if err != nil {
			return err
		}
		if test.Status != models.TestActive {
			return ErrTestClosed
		}
		if test.OwnerID == req.TesterID {
			return ErrOwnSubmission
		}
		open, err := s.submissions.HasOpenSubmission(ctx, tx, req.TestID, req.TesterID)
		if err != nil {
			return err
		}
		if open {
			return ErrDuplicateSubmission
		}
		if err := s.submissions.Create(ctx, tx, store.SubmissionInput{
			ID:       submissionID,
			TestID:   req.TestID,
			TesterID: req.TesterID,
			Content:  req.Content,
			Rating:   req.Rating,
		}); err != nil {
			if db.IsUniqueViolation(err) {
				return ErrDuplicateSubmission
			}
			return err
		}
		return s.audit.Log(ctx, tx, req.TesterID, "submit_feedback", "submission", submissionID, "{}")
	})
	if err != nil {
		return models.Submission{}, err
	}
	return models.Submission{
		ID:       submissionID,
		TestID:   req.TestID,
		TesterID: req.TesterID,
		Content:  req.Content,
		Rating:   req.Rating,
		Status:   models.SubmissionSubmitted,
	}, nil
}

// AdjustmentInput is a non-settlement credit movement: purchase crediting,
// signup grants, manual corrections.
type AdjustmentInput struct {
	UserID    string
	Delta     int64
	Reason    models.Reason
	SessionID *string
	Metadata  string
}

// ApplyAdjustment appends the ledger row and moves the available balance
// inside the caller's transaction. Negative deltas that would take the
// balance below zero fail without writing anything.
func (s *LedgerService) ApplyAdjustment(ctx context.Context, tx store.Tx, input AdjustmentInput) (store.Account, error) {
	if input.Delta == 0 || !input.Reason.Valid() {
		return store.Account{}, ErrInvalidAdjustment
	}
	account, err := s.accounts.GetForUpdate(ctx, tx, input.UserID)
	if err != nil {
		return store.Account{}, err
	}
	adjusted, err := s.accounts.AdjustAvailable(ctx, tx, input.UserID, input.Delta)
	if err != nil {
		return store.Account{}, err
	}
	if adjusted == 0 {
		return store.Account{}, ErrInsufficientCredits
	}
	direction := models.DirectionCredit
	amount := input.Delta
	if amount < 0 {
		direction = models.DirectionDebit
		amount = -amount
	}
	metadata := input.Metadata
	if metadata == "" {
		metadata = "{}"
	}
	if err := s.ledger.Append(ctx, tx, store.CreditTransactionInput{
		ID:        uuid.NewString(),
		UserID:    input.UserID,
		Amount:    amount,
		Direction: direction,
		Reason:    input.Reason,
		SessionID: input.SessionID,
		Metadata:  metadata,
	}); err != nil {
		return store.Account{}, err
	}
	account.AvailableCredits += input.Delta
	return account, nil
}

// AdjustCredits is the administrative escape hatch. It always leaves a ledger
// row behind.
func (s *LedgerService) AdjustCredits(ctx context.Context, actorID, userID string, delta int64, reason models.Reason, metadata string) error {
	var after store.Account
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		account, err := s.ApplyAdjustment(ctx, tx, AdjustmentInput{
			UserID:   userID,
			Delta:    delta,
			Reason:   reason,
			Metadata: metadata,
		})
		if err != nil {
			return err
		}
		after = account
		data, _ := json.Marshal(map[string]any{"delta": delta, "reason": reason})
		return s.audit.Log(ctx, tx, actorID, "adjust_credits", "account", userID, string(data))
	})
	if err != nil {
		return err
	}
	s.broadcast(userID, after)
	return nil
}

func (s *LedgerService) broadcast(userID string, account store.Account) {
	s.hub.BroadcastCredits(userID, websocket.CreditUpdate{
		AvailableCredits: account.AvailableCredits,
		LockedCredits:    account.LockedCredits,
	})
}

// lockTwoAccounts locks both accounts in deterministic order to avoid
// deadlocks between concurrent settlements.
func (s *LedgerService) lockTwoAccounts(ctx context.Context, tx store.Tx, firstID, secondID string) (store.Account, store.Account, error) {
	leftID, rightID := orderedIDs(firstID, secondID)
	left, err := s.accounts.GetForUpdate(ctx, tx, leftID)
	if err != nil {
		return store.Account{}, store.Account{}, err
	}
	right, err := s.accounts.GetForUpdate(ctx, tx, rightID)
	if err != nil {
		return store.Account{}, store.Account{}, err
	}
	if firstID == leftID {
		return left, right, nil
	}
	return right, left, nil
}

func orderedIDs(firstID, secondID string) (string, string) {
	if firstID <= secondID {
		return firstID, secondID
	}
	return secondID, firstID
}
