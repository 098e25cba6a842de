package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
)

func TestIsAdminNoRowMeansNotAdmin(t *testing.T) {
	adminStore := NewAdminStore(stubDB{
		getFn: func(context.Context, any, string, ...any) error {
			return sql.ErrNoRows
		},
	})
	isAdmin, isSuper, err := adminStore.IsAdmin(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isAdmin || isSuper {
		t.Fatalf("missing row must mean no privileges, got %v %v", isAdmin, isSuper)
	}
}

func TestGrantRoleIsIdempotent(t *testing.T) {
	var gotQuery string
	var gotArgs []any
	adminStore := NewAdminStore(stubDB{})
	err := adminStore.GrantRole(context.Background(), stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			gotQuery = query
			gotArgs = args
			return stubResult{rows: 1}, nil
		},
	}, "user-9", "CanViewUsers")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(gotQuery, "INSERT INTO admin_roles") {
		t.Fatalf("unexpected query: %s", gotQuery)
	}
	if !strings.Contains(gotQuery, "ON CONFLICT (admin_user_id, role) DO NOTHING") {
		t.Fatalf("re-grant must be a no-op: %s", gotQuery)
	}
	if len(gotArgs) != 2 || gotArgs[0] != "user-9" || gotArgs[1] != "CanViewUsers" {
		t.Fatalf("unexpected args: %v", gotArgs)
	}
}

func TestHasRoleCountsMatchingRows(t *testing.T) {
	adminStore := NewAdminStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FROM admin_roles") {
				t.Fatalf("unexpected query: %s", query)
			}
			if args[0] != "user-9" || args[1] != "CanViewTransactions" {
				t.Fatalf("unexpected args: %v", args)
			}
			*dest.(*int) = 1
			return nil
		},
	})
	hasRole, err := adminStore.HasRole(context.Background(), "user-9", "CanViewTransactions")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasRole {
		t.Fatalf("expected the role to be present")
	}
}
