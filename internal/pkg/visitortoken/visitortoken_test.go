package visitortoken

import (
	"testing"
	"time"
)

func TestGenerateParseRoundTrip(t *testing.T) {
	token, err := Generate("secret", time.Hour, "visitor-123")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	claims, err := Parse("secret", token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if claims.VisitorID != "visitor-123" {
		t.Fatalf("visitor id = %q", claims.VisitorID)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := Generate("secret", time.Hour, "visitor-123")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if _, err := Parse("other-secret", token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	token, err := Generate("secret", -time.Minute, "visitor-123")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if _, err := Parse("secret", token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("secret", "not-a-token"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
