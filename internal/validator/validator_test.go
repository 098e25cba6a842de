package validator

import "testing"

func TestValidateEmail(t *testing.T) {
	if err := ValidateEmail("founder@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, email := range []string{"", "no-at-sign", "a@b", "spaces in@example.com"} {
		if err := ValidateEmail(email); err != ErrInvalidEmail {
			t.Fatalf("%q: expected ErrInvalidEmail, got %v", email, err)
		}
	}
}

func TestValidateUsername(t *testing.T) {
	if err := ValidateUsername("founder_01"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, username := range []string{"ab", "has space", "dash-name", ""} {
		if err := ValidateUsername(username); err != ErrInvalidUsername {
			t.Fatalf("%q: expected ErrInvalidUsername, got %v", username, err)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("longenough"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidatePassword("short"); err != ErrInvalidPassword {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestValidateTitle(t *testing.T) {
	if err := ValidateTitle("  Try the checkout flow  "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateTitle(" a "); err != ErrInvalidTitle {
		t.Fatalf("expected ErrInvalidTitle, got %v", err)
	}
}

func TestValidateContent(t *testing.T) {
	if err := ValidateContent("the signup form loses state on back navigation"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, content := range []string{"", "   ", "ok", " a \n"} {
		if err := ValidateContent(content); err != ErrInvalidContent {
			t.Fatalf("%q: expected ErrInvalidContent, got %v", content, err)
		}
	}
}

func TestValidateRating(t *testing.T) {
	if err := ValidateRating(nil); err != nil {
		t.Fatalf("nil rating is optional: %v", err)
	}
	ok := 4
	if err := ValidateRating(&ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := 6
	if err := ValidateRating(&bad); err != ErrInvalidRating {
		t.Fatalf("expected ErrInvalidRating, got %v", err)
	}
}
