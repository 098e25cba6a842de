package handlers

import (
	"context"

	"validhub/internal/models"
	"validhub/internal/services"
	"validhub/internal/store"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, userID string) (models.User, error)
}

type AccountStore interface {
	Create(ctx context.Context, tx store.Execer, userID string) error
	GetByUser(ctx context.Context, userID string) (store.Account, error)
	Audit(ctx context.Context, userID string) ([]store.AccountAuditRow, error)
	ListAllWithUsers(ctx context.Context) ([]store.AccountWithUser, error)
}

type TestStore interface {
	GetByID(ctx context.Context, testID string) (models.TestRequest, error)
	List(ctx context.Context, status string, limit, offset int) ([]models.TestRequest, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.TestRequest, error)
}

type SubmissionStore interface {
	GetByID(ctx context.Context, submissionID string) (models.Submission, error)
	ListByTest(ctx context.Context, testID string) ([]models.Submission, error)
	ListByTester(ctx context.Context, testerID string) ([]models.Submission, error)
}

type LedgerStore interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.CreditTransaction, error)
	ListAll(ctx context.Context, limit, offset int) ([]models.CreditTransaction, error)
}

type OrderStore interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.PaymentSession, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	GrantRole(ctx context.Context, tx store.Execer, userID, role string) error
	HasAnyAdmin(ctx context.Context) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, limit, offset int) ([]store.AuditLog, error)
}

// LedgerEngine is the settlement surface the HTTP layer drives. All balance
// mutation goes through it.
type LedgerEngine interface {
	PostTest(ctx context.Context, req services.PostTestRequest) (models.TestRequest, error)
	SubmitFeedback(ctx context.Context, req services.SubmitFeedbackRequest) (models.Submission, error)
	ApproveFeedback(ctx context.Context, ownerID, feedbackID string) (services.Receipt, error)
	RejectFeedback(ctx context.Context, ownerID, feedbackID string) error
	CloseTest(ctx context.Context, ownerID, testID string) error
	AdjustCredits(ctx context.Context, actorID, userID string, delta int64, reason models.Reason, metadata string) error
	ApplyAdjustment(ctx context.Context, tx store.Tx, input services.AdjustmentInput) (store.Account, error)
}

type PaymentService interface {
	CreateCheckout(ctx context.Context, userID string, credits int64, currency string) (services.Checkout, error)
	Verify(ctx context.Context, userID, sessionID string) (services.VerifyResult, error)
}
