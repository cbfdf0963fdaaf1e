package apikey_test

import (
	"strings"
	"testing"
	"time"

	"github.com/senderpro/senderpro/pkg/errx"
	"github.com/senderpro/senderpro/pkg/iam/apikey"
	"github.com/senderpro/senderpro/pkg/kernel"
)

// --- Key codec tests ---

func TestEncodeKey_RoundTrip(t *testing.T) {
	userID := kernel.NewUserID("64f1a2b3c4d5e6f708192a3b")
	issuedAt := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	secret, err := apikey.NewSecret()
	if err != nil {
		t.Fatalf("NewSecret failed: %v", err)
	}

	raw := apikey.EncodeKey(userID, "email_marketing", issuedAt, secret)

	parsed, err := apikey.ParseKey(raw)
	if err != nil {
		t.Fatalf("ParseKey failed: %v", err)
	}
	if parsed.UserID != userID {
		t.Fatalf("user id mismatch: got %s", parsed.UserID)
	}
	if parsed.Scope != "email_marketing" {
		t.Fatalf("scope mismatch: got %s", parsed.Scope)
	}
	if !parsed.IssuedAt.Equal(issuedAt) {
		t.Fatalf("issued at mismatch: got %s", parsed.IssuedAt)
	}
	if parsed.Secret != secret {
		t.Fatalf("secret mismatch: got %s", parsed.Secret)
	}
}

func TestEncodeKey_ScopeUnderscoresBecomeHyphens(t *testing.T) {
	raw := apikey.EncodeKey(kernel.NewUserID("u1"), "whatsapp_marketing", time.Now(), "secret")

	if !strings.Contains(raw, "whatsapp-marketing") {
		t.Fatalf("expected hyphenated scope in key, got %s", raw)
	}
	if strings.Contains(raw, "whatsapp_marketing") {
		t.Fatalf("raw scope leaked into key: %s", raw)
	}
}

func TestParseKey_SecretMayContainUnderscores(t *testing.T) {
	raw := apikey.EncodeKey(kernel.NewUserID("u1"), "sms_marketing", time.Unix(1700000000, 0), "part_one_part_two")

	parsed, err := apikey.ParseKey(raw)
	if err != nil {
		t.Fatalf("ParseKey failed: %v", err)
	}
	if parsed.Secret != "part_one_part_two" {
		t.Fatalf("secret mangled: got %s", parsed.Secret)
	}
}

func TestParseKey_Malformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"garbage", "not-a-key"},
		{"too few segments", "user_u1_scope"},
		{"wrong tag", "svc_u1_email-marketing_1700000000_secret"},
		{"empty user id", "user__email-marketing_1700000000_secret"},
		{"empty secret", "user_u1_email-marketing_1700000000_"},
		{"bad timestamp", "user_u1_email-marketing_notanumber_secret"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := apikey.ParseKey(tc.raw)
			if err == nil {
				t.Fatalf("expected error for %q", tc.raw)
			}
			if !errx.Is(err, apikey.ErrMalformedKey()) {
				t.Fatalf("expected malformed key error, got %v", err)
			}
		})
	}
}

// --- Bundle tests ---

func TestBundle_ActiveKeys(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	live, err := apikey.NewKeyEntry("live-key", now.Add(-time.Hour), now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("NewKeyEntry failed: %v", err)
	}
	dead, err := apikey.NewKeyEntry("dead-key", now.Add(-4*time.Hour), now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("NewKeyEntry failed: %v", err)
	}

	bundle := apikey.Bundle{
		UserID:      kernel.NewUserID("u1"),
		Keys:        map[string]apikey.KeyEntry{"email_marketing": live, "sms_marketing": dead},
		LastRotated: now.Add(-4 * time.Hour),
	}

	active := bundle.ActiveKeys(now)
	if len(active) != 1 {
		t.Fatalf("expected 1 active key, got %d", len(active))
	}
	if _, ok := active["email_marketing"]; !ok {
		t.Fatal("live key missing from active set")
	}
}

func TestNewKeyEntry_RejectsInvertedWindow(t *testing.T) {
	now := time.Now()
	if _, err := apikey.NewKeyEntry("k", now, now.Add(-time.Minute)); err == nil {
		t.Fatal("expected error for expiry before generation")
	}
	if _, err := apikey.NewKeyEntry("", now, now.Add(time.Minute)); err == nil {
		t.Fatal("expected error for empty key")
	}
}
