package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"validhub/internal/models"
)

func TestTestRequestStoreCreate(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO test_requests") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 11 {
				t.Fatalf("expected 11 args, got %d", len(args))
			}
			if args[0] != "test-1" || args[8] != int64(2) || args[9] != 5 || args[10] != int64(10) {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewTestRequestStore(stubDB{})
	err := store.Create(ctx, execer, TestRequestInput{
		ID:              "test-1",
		OwnerID:         "owner-1",
		Title:           "Try the onboarding flow",
		TimeRequired:    15,
		RewardPerTester: 2,
		MaxTesters:      5,
		LockedRemaining: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTestRequestStoreDecrementLockedGuard(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "status = 'active'") || !strings.Contains(query, "locked_remaining >= $1") {
				t.Fatalf("expected pool guard, got: %s", query)
			}
			return stubResult{rows: 0}, nil
		},
	}
	store := NewTestRequestStore(stubDB{})
	rows, err := store.DecrementLocked(ctx, execer, "test-1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected zero rows for exhausted pool, got %d", rows)
	}
}

func TestTestRequestStoreCloseZeroesPool(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "locked_remaining = 0") || !strings.Contains(query, "status = 'closed'") {
				t.Fatalf("unexpected query: %s", query)
			}
			if !strings.Contains(query, "WHERE id = $1 AND status = 'active'") {
				t.Fatalf("expected active guard, got: %s", query)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewTestRequestStore(stubDB{})
	rows, err := store.Close(ctx, execer, "test-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows != 1 {
		t.Fatalf("unexpected rows: %d", rows)
	}
}

func TestTestRequestStoreListFiltersStatus(t *testing.T) {
	ctx := context.Background()
	store := NewTestRequestStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "WHERE status = $1") {
				t.Fatalf("expected status filter, got: %s", query)
			}
			if args[0] != "active" || args[1] != 20 || args[2] != 0 {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*[]models.TestRequest) = []models.TestRequest{{ID: "test-1"}}
			return nil
		},
	})
	rows, err := store.List(ctx, "active", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "test-1" {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}
