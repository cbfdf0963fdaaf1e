package auth

import (
	"testing"
	"time"

	"github.com/senderpro/senderpro/pkg/errx"
)

func TestJWTService_IssueAndVerify(t *testing.T) {
	svc := NewJWTService("test-secret", 180*time.Minute, "senderpro")

	token, expiresIn, err := svc.IssueAccessToken("user@example.com")
	if err != nil {
		t.Fatalf("IssueAccessToken failed: %v", err)
	}
	if expiresIn != int((180 * time.Minute).Seconds()) {
		t.Fatalf("expires_in = %d, want %d", expiresIn, int((180 * time.Minute).Seconds()))
	}

	claims, err := svc.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("VerifyAccessToken failed: %v", err)
	}
	if claims.Subject != "user@example.com" {
		t.Fatalf("subject = %s, want user@example.com", claims.Subject)
	}
	if !claims.ExpiresAt.After(claims.IssuedAt) {
		t.Fatal("expiry not after issuance")
	}
}

func TestJWTService_ExpiredToken(t *testing.T) {
	issuedAt := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	svc := NewJWTService("test-secret", 180*time.Minute, "senderpro")
	svc.now = func() time.Time { return issuedAt }

	token, _, err := svc.IssueAccessToken("user@example.com")
	if err != nil {
		t.Fatalf("IssueAccessToken failed: %v", err)
	}

	// One minute short of the lifetime: still good.
	svc.now = func() time.Time { return issuedAt.Add(179 * time.Minute) }
	if _, err := svc.VerifyAccessToken(token); err != nil {
		t.Fatalf("token rejected before expiry: %v", err)
	}

	// One minute past: expired, and distinguishable from a malformed token.
	svc.now = func() time.Time { return issuedAt.Add(181 * time.Minute) }
	_, err = svc.VerifyAccessToken(token)
	if !errx.Is(err, ErrExpiredCredential()) {
		t.Fatalf("expected expired credential, got %v", err)
	}
}

func TestJWTService_TamperedToken(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour, "senderpro")

	token, _, err := svc.IssueAccessToken("user@example.com")
	if err != nil {
		t.Fatalf("IssueAccessToken failed: %v", err)
	}

	tampered := token[:len(token)-4] + "AAAA"
	_, err = svc.VerifyAccessToken(tampered)
	if !errx.Is(err, ErrInvalidCredential()) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
}

func TestJWTService_WrongSecret(t *testing.T) {
	issuer := NewJWTService("secret-one", time.Hour, "senderpro")
	verifier := NewJWTService("secret-two", time.Hour, "senderpro")

	token, _, err := issuer.IssueAccessToken("user@example.com")
	if err != nil {
		t.Fatalf("IssueAccessToken failed: %v", err)
	}

	if _, err := verifier.VerifyAccessToken(token); !errx.Is(err, ErrInvalidCredential()) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
}

func TestJWTService_GarbageInput(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour, "senderpro")

	for _, raw := range []string{"", "not.a.jwt", "aaaa.bbbb.cccc"} {
		if _, err := svc.VerifyAccessToken(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestJWTService_IndependentIssuance(t *testing.T) {
	issuedAt := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	svc := NewJWTService("test-secret", time.Hour, "senderpro")

	svc.now = func() time.Time { return issuedAt }
	first, _, err := svc.IssueAccessToken("user@example.com")
	if err != nil {
		t.Fatalf("first issuance failed: %v", err)
	}

	svc.now = func() time.Time { return issuedAt.Add(time.Minute) }
	second, _, err := svc.IssueAccessToken("user@example.com")
	if err != nil {
		t.Fatalf("second issuance failed: %v", err)
	}

	if first == second {
		t.Fatal("tokens issued at different instants must differ")
	}

	// Both remain independently verifiable.
	if _, err := svc.VerifyAccessToken(first); err != nil {
		t.Fatalf("first token rejected: %v", err)
	}
	if _, err := svc.VerifyAccessToken(second); err != nil {
		t.Fatalf("second token rejected: %v", err)
	}
}
