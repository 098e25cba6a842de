package services

import (
	"context"

	"validhub/internal/models"
	"validhub/internal/store"
	"validhub/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type stubAccountStore struct {
	getByUserFn             func(ctx context.Context, userID string) (store.Account, error)
	getForUpdateFn          func(ctx context.Context, tx store.Getter, userID string) (store.Account, error)
	moveAvailableToLockedFn func(ctx context.Context, tx store.Execer, userID string, amount int64) (int64, error)
	moveLockedToAvailableFn func(ctx context.Context, tx store.Execer, userID string, amount int64) (int64, error)
	deductLockedFn          func(ctx context.Context, tx store.Execer, userID string, amount int64) (int64, error)
	adjustAvailableFn       func(ctx context.Context, tx store.Execer, userID string, delta int64) (int64, error)
}

func (s stubAccountStore) GetByUser(ctx context.Context, userID string) (store.Account, error) {
	if s.getByUserFn == nil {
		return store.Account{}, nil
	}
	return s.getByUserFn(ctx, userID)
}

func (s stubAccountStore) GetForUpdate(ctx context.Context, tx store.Getter, userID string) (store.Account, error) {
	if s.getForUpdateFn == nil {
		return store.Account{UserID: userID}, nil
	}
	return s.getForUpdateFn(ctx, tx, userID)
}

func (s stubAccountStore) MoveAvailableToLocked(ctx context.Context, tx store.Execer, userID string, amount int64) (int64, error) {
	if s.moveAvailableToLockedFn == nil {
		return 1, nil
	}
	return s.moveAvailableToLockedFn(ctx, tx, userID, amount)
}

func (s stubAccountStore) MoveLockedToAvailable(ctx context.Context, tx store.Execer, userID string, amount int64) (int64, error) {
	if s.moveLockedToAvailableFn == nil {
		return 1, nil
	}
	return s.moveLockedToAvailableFn(ctx, tx, userID, amount)
}

func (s stubAccountStore) DeductLocked(ctx context.Context, tx store.Execer, userID string, amount int64) (int64, error) {
	if s.deductLockedFn == nil {
		return 1, nil
	}
	return s.deductLockedFn(ctx, tx, userID, amount)
}

func (s stubAccountStore) AdjustAvailable(ctx context.Context, tx store.Execer, userID string, delta int64) (int64, error) {
	if s.adjustAvailableFn == nil {
		return 1, nil
	}
	return s.adjustAvailableFn(ctx, tx, userID, delta)
}

type stubTestStore struct {
	createFn           func(ctx context.Context, tx store.Execer, input store.TestRequestInput) error
	getForUpdateFn     func(ctx context.Context, tx store.Getter, testID string) (models.TestRequest, error)
	decrementLockedFn  func(ctx context.Context, tx store.Execer, testID string, amount int64) (int64, error)
	closeIfExhaustedFn func(ctx context.Context, tx store.Execer, testID string) (int64, error)
	closeFn            func(ctx context.Context, tx store.Execer, testID string) (int64, error)
}

func (s stubTestStore) Create(ctx context.Context, tx store.Execer, input store.TestRequestInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubTestStore) GetForUpdate(ctx context.Context, tx store.Getter, testID string) (models.TestRequest, error) {
	if s.getForUpdateFn == nil {
		return models.TestRequest{ID: testID, Status: models.TestActive}, nil
	}
	return s.getForUpdateFn(ctx, tx, testID)
}

func (s stubTestStore) DecrementLocked(ctx context.Context, tx store.Execer, testID string, amount int64) (int64, error) {
	if s.decrementLockedFn == nil {
		return 1, nil
	}
	return s.decrementLockedFn(ctx, tx, testID, amount)
}

func (s stubTestStore) CloseIfExhausted(ctx context.Context, tx store.Execer, testID string) (int64, error) {
	if s.closeIfExhaustedFn == nil {
		return 1, nil
	}
	return s.closeIfExhaustedFn(ctx, tx, testID)
}

func (s stubTestStore) Close(ctx context.Context, tx store.Execer, testID string) (int64, error) {
	if s.closeFn == nil {
		return 1, nil
	}
	return s.closeFn(ctx, tx, testID)
}

type stubSubmissionStore struct {
	createFn            func(ctx context.Context, tx store.Execer, input store.SubmissionInput) error
	getForUpdateFn      func(ctx context.Context, tx store.Getter, submissionID string) (models.Submission, error)
	hasOpenSubmissionFn func(ctx context.Context, tx store.Getter, testID, testerID string) (bool, error)
	finalizeFn          func(ctx context.Context, tx store.Execer, submissionID string, status models.SubmissionStatus) (int64, error)
}

func (s stubSubmissionStore) Create(ctx context.Context, tx store.Execer, input store.SubmissionInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubSubmissionStore) GetForUpdate(ctx context.Context, tx store.Getter, submissionID string) (models.Submission, error) {
	if s.getForUpdateFn == nil {
		return models.Submission{ID: submissionID, Status: models.SubmissionSubmitted}, nil
	}
	return s.getForUpdateFn(ctx, tx, submissionID)
}

func (s stubSubmissionStore) HasOpenSubmission(ctx context.Context, tx store.Getter, testID, testerID string) (bool, error) {
	if s.hasOpenSubmissionFn == nil {
		return false, nil
	}
	return s.hasOpenSubmissionFn(ctx, tx, testID, testerID)
}

func (s stubSubmissionStore) Finalize(ctx context.Context, tx store.Execer, submissionID string, status models.SubmissionStatus) (int64, error) {
	if s.finalizeFn == nil {
		return 1, nil
	}
	return s.finalizeFn(ctx, tx, submissionID, status)
}

type stubLedgerStore struct {
	appendFn func(ctx context.Context, tx store.Execer, input store.CreditTransactionInput) error
	appended []store.CreditTransactionInput
}

func (s *stubLedgerStore) Append(ctx context.Context, tx store.Execer, input store.CreditTransactionInput) error {
	s.appended = append(s.appended, input)
	if s.appendFn == nil {
		return nil
	}
	return s.appendFn(ctx, tx, input)
}

type stubAuditStore struct {
	logFn func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

type stubHub struct {
	calls map[string][]websocket.CreditUpdate
}

func (s *stubHub) BroadcastCredits(userID string, update websocket.CreditUpdate) {
	if s.calls == nil {
		s.calls = make(map[string][]websocket.CreditUpdate)
	}
	s.calls[userID] = append(s.calls[userID], update)
}

type stubOrderStore struct {
	createFn                  func(ctx context.Context, tx store.Execer, input store.PaymentSessionInput) error
	getBySessionIDFn          func(ctx context.Context, sessionID string) (models.PaymentSession, error)
	getBySessionIDForUpdateFn func(ctx context.Context, tx store.Getter, sessionID string) (models.PaymentSession, error)
	markPaidFn                func(ctx context.Context, tx store.Execer, id string) (int64, error)
}

func (s stubOrderStore) Create(ctx context.Context, tx store.Execer, input store.PaymentSessionInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubOrderStore) GetBySessionID(ctx context.Context, sessionID string) (models.PaymentSession, error) {
	if s.getBySessionIDFn == nil {
		return models.PaymentSession{SessionID: sessionID, Status: models.OrderPending}, nil
	}
	return s.getBySessionIDFn(ctx, sessionID)
}

func (s stubOrderStore) GetBySessionIDForUpdate(ctx context.Context, tx store.Getter, sessionID string) (models.PaymentSession, error) {
	if s.getBySessionIDForUpdateFn == nil {
		return models.PaymentSession{SessionID: sessionID, Status: models.OrderPending}, nil
	}
	return s.getBySessionIDForUpdateFn(ctx, tx, sessionID)
}

func (s stubOrderStore) MarkPaid(ctx context.Context, tx store.Execer, id string) (int64, error) {
	if s.markPaidFn == nil {
		return 1, nil
	}
	return s.markPaidFn(ctx, tx, id)
}
