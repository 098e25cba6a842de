package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"validhub/internal/auth"
	"validhub/internal/config"
	"validhub/internal/middleware"
	"validhub/internal/models"
	"validhub/internal/services"
	"validhub/internal/store"
	"validhub/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubUserStore struct {
	createFn     func(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	getByEmailFn func(ctx context.Context, email string) (models.User, error)
	getByIDFn    func(ctx context.Context, userID string) (models.User, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, username, email, passwordHash)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	if s.getByEmailFn == nil {
		return models.User{}, nil
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	if s.getByIDFn == nil {
		return models.User{ID: userID}, nil
	}
	return s.getByIDFn(ctx, userID)
}

type stubAccountStore struct {
	createFn           func(ctx context.Context, tx store.Execer, userID string) error
	getByUserFn        func(ctx context.Context, userID string) (store.Account, error)
	auditFn            func(ctx context.Context, userID string) ([]store.AccountAuditRow, error)
	listAllWithUsersFn func(ctx context.Context) ([]store.AccountWithUser, error)
}

func (s stubAccountStore) Create(ctx context.Context, tx store.Execer, userID string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, userID)
}

func (s stubAccountStore) GetByUser(ctx context.Context, userID string) (store.Account, error) {
	if s.getByUserFn == nil {
		return store.Account{UserID: userID}, nil
	}
	return s.getByUserFn(ctx, userID)
}

func (s stubAccountStore) Audit(ctx context.Context, userID string) ([]store.AccountAuditRow, error) {
	if s.auditFn == nil {
		return nil, nil
	}
	return s.auditFn(ctx, userID)
}

func (s stubAccountStore) ListAllWithUsers(ctx context.Context) ([]store.AccountWithUser, error) {
	if s.listAllWithUsersFn == nil {
		return nil, nil
	}
	return s.listAllWithUsersFn(ctx)
}

type stubTestStore struct {
	getByIDFn     func(ctx context.Context, testID string) (models.TestRequest, error)
	listFn        func(ctx context.Context, status string, limit, offset int) ([]models.TestRequest, error)
	listByOwnerFn func(ctx context.Context, ownerID string) ([]models.TestRequest, error)
}

func (s stubTestStore) GetByID(ctx context.Context, testID string) (models.TestRequest, error) {
	if s.getByIDFn == nil {
		return models.TestRequest{ID: testID}, nil
	}
	return s.getByIDFn(ctx, testID)
}

func (s stubTestStore) List(ctx context.Context, status string, limit, offset int) ([]models.TestRequest, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, status, limit, offset)
}

func (s stubTestStore) ListByOwner(ctx context.Context, ownerID string) ([]models.TestRequest, error) {
	if s.listByOwnerFn == nil {
		return nil, nil
	}
	return s.listByOwnerFn(ctx, ownerID)
}

type stubSubmissionStore struct {
	getByIDFn      func(ctx context.Context, submissionID string) (models.Submission, error)
	listByTestFn   func(ctx context.Context, testID string) ([]models.Submission, error)
	listByTesterFn func(ctx context.Context, testerID string) ([]models.Submission, error)
}

func (s stubSubmissionStore) GetByID(ctx context.Context, submissionID string) (models.Submission, error) {
	if s.getByIDFn == nil {
		return models.Submission{ID: submissionID}, nil
	}
	return s.getByIDFn(ctx, submissionID)
}

func (s stubSubmissionStore) ListByTest(ctx context.Context, testID string) ([]models.Submission, error) {
	if s.listByTestFn == nil {
		return nil, nil
	}
	return s.listByTestFn(ctx, testID)
}

func (s stubSubmissionStore) ListByTester(ctx context.Context, testerID string) ([]models.Submission, error) {
	if s.listByTesterFn == nil {
		return nil, nil
	}
	return s.listByTesterFn(ctx, testerID)
}

type stubLedgerStore struct {
	listByUserFn func(ctx context.Context, userID string, limit, offset int) ([]models.CreditTransaction, error)
	listAllFn    func(ctx context.Context, limit, offset int) ([]models.CreditTransaction, error)
	sumByUserFn  func(ctx context.Context, userID string) (int64, error)
}

func (s stubLedgerStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.CreditTransaction, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID, limit, offset)
}

func (s stubLedgerStore) ListAll(ctx context.Context, limit, offset int) ([]models.CreditTransaction, error) {
	if s.listAllFn == nil {
		return nil, nil
	}
	return s.listAllFn(ctx, limit, offset)
}

func (s stubLedgerStore) SumByUser(ctx context.Context, userID string) (int64, error) {
	if s.sumByUserFn == nil {
		return 0, nil
	}
	return s.sumByUserFn(ctx, userID)
}

type stubOrderStore struct {
	listByUserFn func(ctx context.Context, userID string, limit, offset int) ([]models.PaymentSession, error)
}

func (s stubOrderStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.PaymentSession, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID, limit, offset)
}

type stubAdminStore struct {
	isAdminFn     func(ctx context.Context, userID string) (bool, bool, error)
	hasRoleFn     func(ctx context.Context, userID, role string) (bool, error)
	createAdminFn func(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	grantRoleFn   func(ctx context.Context, tx store.Execer, userID, role string) error
	hasAnyAdminFn func(ctx context.Context) (bool, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	if s.isAdminFn == nil {
		return false, false, nil
	}
	return s.isAdminFn(ctx, userID)
}

func (s stubAdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	if s.hasRoleFn == nil {
		return false, nil
	}
	return s.hasRoleFn(ctx, userID, role)
}

func (s stubAdminStore) CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error {
	if s.createAdminFn == nil {
		return nil
	}
	return s.createAdminFn(ctx, tx, userID, isSuper, createdBy)
}

func (s stubAdminStore) GrantRole(ctx context.Context, tx store.Execer, userID, role string) error {
	if s.grantRoleFn == nil {
		return nil
	}
	return s.grantRoleFn(ctx, tx, userID, role)
}

func (s stubAdminStore) HasAnyAdmin(ctx context.Context) (bool, error) {
	if s.hasAnyAdminFn == nil {
		return true, nil
	}
	return s.hasAnyAdminFn(ctx)
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	listFn func(ctx context.Context, limit, offset int) ([]store.AuditLog, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]store.AuditLog, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubEngine struct {
	postTestFn        func(ctx context.Context, req services.PostTestRequest) (models.TestRequest, error)
	submitFeedbackFn  func(ctx context.Context, req services.SubmitFeedbackRequest) (models.Submission, error)
	approveFeedbackFn func(ctx context.Context, ownerID, feedbackID string) (services.Receipt, error)
	rejectFeedbackFn  func(ctx context.Context, ownerID, feedbackID string) error
	closeTestFn       func(ctx context.Context, ownerID, testID string) error
	adjustCreditsFn   func(ctx context.Context, actorID, userID string, delta int64, reason models.Reason, metadata string) error
	applyAdjustmentFn func(ctx context.Context, tx store.Tx, input services.AdjustmentInput) (store.Account, error)
}

func (s stubEngine) PostTest(ctx context.Context, req services.PostTestRequest) (models.TestRequest, error) {
	if s.postTestFn == nil {
		return models.TestRequest{}, nil
	}
	return s.postTestFn(ctx, req)
}

func (s stubEngine) SubmitFeedback(ctx context.Context, req services.SubmitFeedbackRequest) (models.Submission, error) {
	if s.submitFeedbackFn == nil {
		return models.Submission{}, nil
	}
	return s.submitFeedbackFn(ctx, req)
}

func (s stubEngine) ApproveFeedback(ctx context.Context, ownerID, feedbackID string) (services.Receipt, error) {
	if s.approveFeedbackFn == nil {
		return services.Receipt{}, nil
	}
	return s.approveFeedbackFn(ctx, ownerID, feedbackID)
}

func (s stubEngine) RejectFeedback(ctx context.Context, ownerID, feedbackID string) error {
	if s.rejectFeedbackFn == nil {
		return nil
	}
	return s.rejectFeedbackFn(ctx, ownerID, feedbackID)
}

func (s stubEngine) CloseTest(ctx context.Context, ownerID, testID string) error {
	if s.closeTestFn == nil {
		return nil
	}
	return s.closeTestFn(ctx, ownerID, testID)
}

func (s stubEngine) AdjustCredits(ctx context.Context, actorID, userID string, delta int64, reason models.Reason, metadata string) error {
	if s.adjustCreditsFn == nil {
		return nil
	}
	return s.adjustCreditsFn(ctx, actorID, userID, delta, reason, metadata)
}

func (s stubEngine) ApplyAdjustment(ctx context.Context, tx store.Tx, input services.AdjustmentInput) (store.Account, error) {
	if s.applyAdjustmentFn == nil {
		return store.Account{UserID: input.UserID}, nil
	}
	return s.applyAdjustmentFn(ctx, tx, input)
}

type stubPayments struct {
	createCheckoutFn func(ctx context.Context, userID string, credits int64, currency string) (services.Checkout, error)
	verifyFn         func(ctx context.Context, userID, sessionID string) (services.VerifyResult, error)
}

func (s stubPayments) CreateCheckout(ctx context.Context, userID string, credits int64, currency string) (services.Checkout, error) {
	if s.createCheckoutFn == nil {
		return services.Checkout{}, nil
	}
	return s.createCheckoutFn(ctx, userID, credits, currency)
}

func (s stubPayments) Verify(ctx context.Context, userID, sessionID string) (services.VerifyResult, error) {
	if s.verifyFn == nil {
		return services.VerifyResult{}, nil
	}
	return s.verifyFn(ctx, userID, sessionID)
}

func newTestHandler(txRunner fakeTxRunner, users stubUserStore, accounts stubAccountStore, tests stubTestStore, submissions stubSubmissionStore, ledger stubLedgerStore, orders stubOrderStore, admin stubAdminStore, audit stubAuditStore, engine stubEngine, payments stubPayments) *Handler {
	cfg := config.Config{
		AppEnv:             "test",
		Port:               "0",
		JWTSecret:          "secret",
		TokenTTL:           time.Minute,
		AllowedOrigins:     "*",
		SignupBonusCredits: 25,
	}
	return New(txRunner, cfg, users, accounts, tests, submissions, ledger, orders, admin, audit, engine, payments, websocket.NewHub())
}

func serveWithAuth(t *testing.T, handler http.Handler, method, target string, body io.Reader, userID string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.GenerateToken("secret", userID, time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+token)
	middleware.Auth("secret")(handler).ServeHTTP(rr, req)
	return rr
}
