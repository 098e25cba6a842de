package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"validhub/internal/models"
)

func TestSubmissionStoreFinalizeGuard(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "WHERE id = $2 AND status = 'submitted'") {
				t.Fatalf("expected terminal-once guard, got: %s", query)
			}
			if args[0] != "approved" || args[1] != "sub-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewSubmissionStore(stubDB{})
	rows, err := store.Finalize(ctx, execer, "sub-1", models.SubmissionApproved)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows != 1 {
		t.Fatalf("unexpected rows: %d", rows)
	}
}

func TestSubmissionStoreHasOpenSubmission(t *testing.T) {
	ctx := context.Background()
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "status = 'submitted'") {
				t.Fatalf("unexpected query: %s", query)
			}
			if args[0] != "test-1" || args[1] != "tester-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*int) = 1
			return nil
		},
	}
	store := NewSubmissionStore(stubDB{})
	open, err := store.HasOpenSubmission(ctx, getter, "test-1", "tester-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !open {
		t.Fatalf("expected open submission")
	}
}

func TestSubmissionStoreCreate(t *testing.T) {
	ctx := context.Background()
	rating := 4
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO submissions") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 5 {
				t.Fatalf("expected 5 args, got %d", len(args))
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewSubmissionStore(stubDB{})
	err := store.Create(ctx, execer, SubmissionInput{
		ID:       "sub-1",
		TestID:   "test-1",
		TesterID: "tester-1",
		Content:  "signup button hard to find",
		Rating:   &rating,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
