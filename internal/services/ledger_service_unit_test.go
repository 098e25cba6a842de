package services

import (
	"context"
	"errors"
	"testing"

	"validhub/internal/models"
	"validhub/internal/store"
)

func TestPostTestInvalidReward(t *testing.T) {
	service := NewLedgerService(fakeTxRunner{}, stubAccountStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.Account, error) {
			t.Fatalf("unexpected store call")
			return store.Account{}, nil
		},
	}, stubTestStore{}, stubSubmissionStore{}, &stubLedgerStore{}, stubAuditStore{}, &stubHub{})
	_, err := service.PostTest(context.Background(), PostTestRequest{
		OwnerID: "owner-1", RewardPerTester: 0, MaxTesters: 3,
	})
	if err != ErrInvalidReward {
		t.Fatalf("expected ErrInvalidReward, got %v", err)
	}
}

func TestPostTestInsufficientCredits(t *testing.T) {
	service := NewLedgerService(fakeTxRunner{}, stubAccountStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, userID string) (store.Account, error) {
			return store.Account{UserID: userID, AvailableCredits: 5}, nil
		},
		moveAvailableToLockedFn: func(context.Context, store.Execer, string, int64) (int64, error) {
			t.Fatalf("escrow must not be attempted on an insufficient balance")
			return 0, nil
		},
	}, stubTestStore{}, stubSubmissionStore{}, &stubLedgerStore{}, stubAuditStore{}, &stubHub{})
	_, err := service.PostTest(context.Background(), PostTestRequest{
		OwnerID: "owner-1", Title: "Try checkout", RewardPerTester: 2, MaxTesters: 3,
	})
	if err != ErrInsufficientCredits {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
}

func TestPostTestGuardLosesRace(t *testing.T) {
	service := NewLedgerService(fakeTxRunner{}, stubAccountStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, userID string) (store.Account, error) {
			return store.Account{UserID: userID, AvailableCredits: 20}, nil
		},
		moveAvailableToLockedFn: func(context.Context, store.Execer, string, int64) (int64, error) {
			return 0, nil
		},
	}, stubTestStore{}, stubSubmissionStore{}, &stubLedgerStore{}, stubAuditStore{}, &stubHub{})
	_, err := service.PostTest(context.Background(), PostTestRequest{
		OwnerID: "owner-1", Title: "Try checkout", RewardPerTester: 2, MaxTesters: 3,
	})
	if err != ErrInsufficientCredits {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
}

func TestPostTestEscrowsAndRecords(t *testing.T) {
	ledger := &stubLedgerStore{}
	hub := &stubHub{}
	var escrowed int64
	var created store.TestRequestInput
	service := NewLedgerService(fakeTxRunner{}, stubAccountStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, userID string) (store.Account, error) {
			return store.Account{UserID: userID, AvailableCredits: 20}, nil
		},
		moveAvailableToLockedFn: func(_ context.Context, _ store.Execer, _ string, amount int64) (int64, error) {
			escrowed = amount
			return 1, nil
		},
	}, stubTestStore{
		createFn: func(_ context.Context, _ store.Execer, input store.TestRequestInput) error {
			created = input
			return nil
		},
	}, stubSubmissionStore{}, ledger, stubAuditStore{}, hub)

	test, err := service.PostTest(context.Background(), PostTestRequest{
		OwnerID: "owner-1", Title: "Try checkout", TimeRequired: 15, RewardPerTester: 2, MaxTesters: 3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if escrowed != 6 {
		t.Fatalf("expected 6 credits escrowed, got %d", escrowed)
	}
	if created.LockedRemaining != 6 || created.RewardPerTester != 2 {
		t.Fatalf("unexpected test input: %#v", created)
	}
	if test.Status != models.TestActive || test.LockedRemaining != 6 {
		t.Fatalf("unexpected test: %#v", test)
	}
	if len(ledger.appended) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(ledger.appended))
	}
	row := ledger.appended[0]
	if row.Direction != models.DirectionDebit || row.Reason != models.ReasonPostTest || row.Amount != 6 {
		t.Fatalf("unexpected ledger row: %#v", row)
	}
	if row.TestID == nil || *row.TestID != test.ID {
		t.Fatalf("ledger row must reference the test")
	}
	updates := hub.calls["owner-1"]
	if len(updates) != 1 || updates[0].AvailableCredits != 14 || updates[0].LockedCredits != 6 {
		t.Fatalf("unexpected broadcast: %#v", updates)
	}
}

func approvalFixtureTest() models.TestRequest {
	return models.TestRequest{
		ID:              "test-1",
		OwnerID:         "owner-1",
		RewardPerTester: 2,
		MaxTesters:      3,
		LockedRemaining: 6,
		Status:          models.TestActive,
	}
}

func approvalFixtureSubmission() models.Submission {
	return models.Submission{
		ID:       "sub-1",
		TestID:   "test-1",
		TesterID: "tester-1",
		Status:   models.SubmissionSubmitted,
	}
}

func TestApproveFeedbackNotOwner(t *testing.T) {
	service := NewLedgerService(fakeTxRunner{}, stubAccountStore{}, stubTestStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.TestRequest, error) {
			return approvalFixtureTest(), nil
		},
	}, stubSubmissionStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.Submission, error) {
			return approvalFixtureSubmission(), nil
		},
	}, &stubLedgerStore{}, stubAuditStore{}, &stubHub{})
	_, err := service.ApproveFeedback(context.Background(), "someone-else", "sub-1")
	if err != ErrNotOwner {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestApproveFeedbackAlreadyFinalized(t *testing.T) {
	submission := approvalFixtureSubmission()
	submission.Status = models.SubmissionApproved
	service := NewLedgerService(fakeTxRunner{}, stubAccountStore{}, stubTestStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.TestRequest, error) {
			return approvalFixtureTest(), nil
		},
	}, stubSubmissionStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.Submission, error) {
			return submission, nil
		},
	}, &stubLedgerStore{}, stubAuditStore{}, &stubHub{})
	_, err := service.ApproveFeedback(context.Background(), "owner-1", "sub-1")
	if err != ErrAlreadyFinalized {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
}

func TestApproveFeedbackExhaustedPool(t *testing.T) {
	test := approvalFixtureTest()
	test.LockedRemaining = 1
	service := NewLedgerService(fakeTxRunner{}, stubAccountStore{}, stubTestStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.TestRequest, error) {
			return test, nil
		},
	}, stubSubmissionStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.Submission, error) {
			return approvalFixtureSubmission(), nil
		},
	}, &stubLedgerStore{}, stubAuditStore{}, &stubHub{})
	_, err := service.ApproveFeedback(context.Background(), "owner-1", "sub-1")
	if err != ErrExhausted {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestApproveFeedbackLosesDecrementRace(t *testing.T) {
	service := NewLedgerService(fakeTxRunner{}, stubAccountStore{
		deductLockedFn: func(context.Context, store.Execer, string, int64) (int64, error) {
			t.Fatalf("payout must not proceed after a lost pool decrement")
			return 0, nil
		},
	}, stubTestStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.TestRequest, error) {
			return approvalFixtureTest(), nil
		},
		decrementLockedFn: func(context.Context, store.Execer, string, int64) (int64, error) {
			return 0, nil
		},
	}, stubSubmissionStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.Submission, error) {
			return approvalFixtureSubmission(), nil
		},
	}, &stubLedgerStore{}, stubAuditStore{}, &stubHub{})
	_, err := service.ApproveFeedback(context.Background(), "owner-1", "sub-1")
	if err != ErrExhausted {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestApproveFeedbackPaysTesterAndCloses(t *testing.T) {
	test := approvalFixtureTest()
	test.LockedRemaining = 2
	ledger := &stubLedgerStore{}
	hub := &stubHub{}
	closed := false
	service := NewLedgerService(fakeTxRunner{}, stubAccountStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, userID string) (store.Account, error) {
			if userID == "owner-1" {
				return store.Account{UserID: userID, AvailableCredits: 14, LockedCredits: 2}, nil
			}
			return store.Account{UserID: userID, AvailableCredits: 25}, nil
		},
	}, stubTestStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.TestRequest, error) {
			return test, nil
		},
		closeIfExhaustedFn: func(context.Context, store.Execer, string) (int64, error) {
			closed = true
			return 1, nil
		},
	}, stubSubmissionStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.Submission, error) {
			return approvalFixtureSubmission(), nil
		},
	}, ledger, stubAuditStore{}, hub)

	receipt, err := service.ApproveFeedback(context.Background(), "owner-1", "sub-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.Reward != 2 || receipt.TesterID != "tester-1" || receipt.LockedRemaining != 0 || !receipt.TestClosed {
		t.Fatalf("unexpected receipt: %#v", receipt)
	}
	if !closed {
		t.Fatalf("drained test must be closed")
	}
	if len(ledger.appended) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(ledger.appended))
	}
	row := ledger.appended[0]
	if row.UserID != "tester-1" || row.Direction != models.DirectionCredit || row.Reason != models.ReasonFeedbackApproved || row.Amount != 2 {
		t.Fatalf("unexpected ledger row: %#v", row)
	}
	if row.FeedbackID == nil || *row.FeedbackID != "sub-1" {
		t.Fatalf("ledger row must reference the submission")
	}
	ownerUpdates := hub.calls["owner-1"]
	if len(ownerUpdates) != 1 || ownerUpdates[0].LockedCredits != 0 {
		t.Fatalf("unexpected owner broadcast: %#v", ownerUpdates)
	}
	testerUpdates := hub.calls["tester-1"]
	if len(testerUpdates) != 1 || testerUpdates[0].AvailableCredits != 27 {
		t.Fatalf("unexpected tester broadcast: %#v", testerUpdates)
	}
}

func TestRejectFeedbackLeavesBalances(t *testing.T) {
	ledger := &stubLedgerStore{}
	service := NewLedgerService(fakeTxRunner{}, stubAccountStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (store.Account, error) {
			t.Fatalf("reject must not touch accounts")
			return store.Account{}, nil
		},
	}, stubTestStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.TestRequest, error) {
			return approvalFixtureTest(), nil
		},
	}, stubSubmissionStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.Submission, error) {
			return approvalFixtureSubmission(), nil
		},
	}, ledger, stubAuditStore{}, &stubHub{})
	if err := service.RejectFeedback(context.Background(), "owner-1", "sub-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ledger.appended) != 0 {
		t.Fatalf("reject must not write ledger rows: %#v", ledger.appended)
	}
}

func TestRejectFeedbackAlreadyFinalized(t *testing.T) {
	service := NewLedgerService(fakeTxRunner{}, stubAccountStore{}, stubTestStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.TestRequest, error) {
			return approvalFixtureTest(), nil
		},
	}, stubSubmissionStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.Submission, error) {
			return approvalFixtureSubmission(), nil
		},
		finalizeFn: func(context.Context, store.Execer, string, models.SubmissionStatus) (int64, error) {
			return 0, nil
		},
	}, &stubLedgerStore{}, stubAuditStore{}, &stubHub{})
	err := service.RejectFeedback(context.Background(), "owner-1", "sub-1")
	if err != ErrAlreadyFinalized {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
}

func TestCloseTestRefundsRemaining(t *testing.T) {
	test := approvalFixtureTest()
	test.LockedRemaining = 4
	ledger := &stubLedgerStore{}
	hub := &stubHub{}
	var released int64
	service := NewLedgerService(fakeTxRunner{}, stubAccountStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, userID string) (store.Account, error) {
			return store.Account{UserID: userID, AvailableCredits: 14, LockedCredits: 4}, nil
		},
		moveLockedToAvailableFn: func(_ context.Context, _ store.Execer, _ string, amount int64) (int64, error) {
			released = amount
			return 1, nil
		},
	}, stubTestStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.TestRequest, error) {
			return test, nil
		},
	}, stubSubmissionStore{}, ledger, stubAuditStore{}, hub)

	if err := service.CloseTest(context.Background(), "owner-1", "test-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if released != 4 {
		t.Fatalf("expected 4 credits released, got %d", released)
	}
	if len(ledger.appended) != 1 {
		t.Fatalf("expected one refund row, got %d", len(ledger.appended))
	}
	row := ledger.appended[0]
	if row.Direction != models.DirectionCredit || row.Reason != models.ReasonRefund || row.Amount != 4 {
		t.Fatalf("unexpected refund row: %#v", row)
	}
	updates := hub.calls["owner-1"]
	if len(updates) != 1 || updates[0].AvailableCredits != 18 || updates[0].LockedCredits != 0 {
		t.Fatalf("unexpected broadcast: %#v", updates)
	}
}

func TestCloseTestAlreadyClosed(t *testing.T) {
	test := approvalFixtureTest()
	test.Status = models.TestClosed
	service := NewLedgerService(fakeTxRunner{}, stubAccountStore{}, stubTestStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.TestRequest, error) {
			return test, nil
		},
	}, stubSubmissionStore{}, &stubLedgerStore{}, stubAuditStore{}, &stubHub{})
	err := service.CloseTest(context.Background(), "owner-1", "test-1")
	if err != ErrTestClosed {
		t.Fatalf("expected ErrTestClosed, got %v", err)
	}
}

func TestCloseTestDrainedPoolNoRefundRow(t *testing.T) {
	test := approvalFixtureTest()
	test.LockedRemaining = 0
	ledger := &stubLedgerStore{}
	service := NewLedgerService(fakeTxRunner{}, stubAccountStore{
		moveLockedToAvailableFn: func(context.Context, store.Execer, string, int64) (int64, error) {
			t.Fatalf("nothing to release on a drained pool")
			return 0, nil
		},
	}, stubTestStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.TestRequest, error) {
			return test, nil
		},
	}, stubSubmissionStore{}, ledger, stubAuditStore{}, &stubHub{})
	if err := service.CloseTest(context.Background(), "owner-1", "test-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ledger.appended) != 0 {
		t.Fatalf("drained close must not write ledger rows")
	}
}

func TestSubmitFeedbackOnClosedTest(t *testing.T) {
	test := approvalFixtureTest()
	test.Status = models.TestClosed
	service := NewLedgerService(fakeTxRunner{}, stubAccountStore{}, stubTestStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.TestRequest, error) {
			return test, nil
		},
	}, stubSubmissionStore{}, &stubLedgerStore{}, stubAuditStore{}, &stubHub{})
	_, err := service.SubmitFeedback(context.Background(), SubmitFeedbackRequest{
		TesterID: "tester-1", TestID: "test-1", Content: "works",
	})
	if err != ErrTestClosed {
		t.Fatalf("expected ErrTestClosed, got %v", err)
	}
}

func TestSubmitFeedbackOwnTest(t *testing.T) {
	service := NewLedgerService(fakeTxRunner{}, stubAccountStore{}, stubTestStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.TestRequest, error) {
			return approvalFixtureTest(), nil
		},
	}, stubSubmissionStore{}, &stubLedgerStore{}, stubAuditStore{}, &stubHub{})
	_, err := service.SubmitFeedback(context.Background(), SubmitFeedbackRequest{
		TesterID: "owner-1", TestID: "test-1", Content: "looks great",
	})
	if err != ErrOwnSubmission {
		t.Fatalf("expected ErrOwnSubmission, got %v", err)
	}
}

func TestSubmitFeedbackDuplicate(t *testing.T) {
	service := NewLedgerService(fakeTxRunner{}, stubAccountStore{}, stubTestStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.TestRequest, error) {
			return approvalFixtureTest(), nil
		},
	}, stubSubmissionStore{
		hasOpenSubmissionFn: func(context.Context, store.Getter, string, string) (bool, error) {
			return true, nil
		},
	}, &stubLedgerStore{}, stubAuditStore{}, &stubHub{})
	_, err := service.SubmitFeedback(context.Background(), SubmitFeedbackRequest{
		TesterID: "tester-1", TestID: "test-1", Content: "crashes on submit",
	})
	if err != ErrDuplicateSubmission {
		t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}
}

func TestAdjustCreditsOverdraft(t *testing.T) {
	service := NewLedgerService(fakeTxRunner{}, stubAccountStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, userID string) (store.Account, error) {
			return store.Account{UserID: userID, AvailableCredits: 3}, nil
		},
		adjustAvailableFn: func(context.Context, store.Execer, string, int64) (int64, error) {
			return 0, nil
		},
	}, stubTestStore{}, stubSubmissionStore{}, &stubLedgerStore{}, stubAuditStore{}, &stubHub{})
	err := service.AdjustCredits(context.Background(), "admin-1", "user-1", -10, models.ReasonAdminAdjust, "{}")
	if err != ErrInsufficientCredits {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
}

func TestAdjustCreditsZeroDelta(t *testing.T) {
	service := NewLedgerService(fakeTxRunner{}, stubAccountStore{}, stubTestStore{}, stubSubmissionStore{}, &stubLedgerStore{}, stubAuditStore{}, &stubHub{})
	err := service.AdjustCredits(context.Background(), "admin-1", "user-1", 0, models.ReasonAdminAdjust, "{}")
	if err != ErrInvalidAdjustment {
		t.Fatalf("expected ErrInvalidAdjustment, got %v", err)
	}
}

func TestApplyAdjustmentDebitDirection(t *testing.T) {
	ledger := &stubLedgerStore{}
	service := NewLedgerService(fakeTxRunner{}, stubAccountStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, userID string) (store.Account, error) {
			return store.Account{UserID: userID, AvailableCredits: 10}, nil
		},
	}, stubTestStore{}, stubSubmissionStore{}, ledger, stubAuditStore{}, &stubHub{})
	account, err := service.ApplyAdjustment(context.Background(), nil, AdjustmentInput{
		UserID: "user-1", Delta: -4, Reason: models.ReasonAdminAdjust,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.AvailableCredits != 6 {
		t.Fatalf("unexpected balance: %#v", account)
	}
	if len(ledger.appended) != 1 {
		t.Fatalf("expected one ledger row")
	}
	row := ledger.appended[0]
	if row.Direction != models.DirectionDebit || row.Amount != 4 {
		t.Fatalf("unexpected ledger row: %#v", row)
	}
}

func TestPostTestPropagatesTxError(t *testing.T) {
	boom := errors.New("transaction retry limit exceeded")
	service := NewLedgerService(fakeTxRunner{err: boom}, stubAccountStore{}, stubTestStore{}, stubSubmissionStore{}, &stubLedgerStore{}, stubAuditStore{}, &stubHub{})
	_, err := service.PostTest(context.Background(), PostTestRequest{
		OwnerID: "owner-1", RewardPerTester: 2, MaxTesters: 3,
	})
	if err != boom {
		t.Fatalf("expected tx error, got %v", err)
	}
}
