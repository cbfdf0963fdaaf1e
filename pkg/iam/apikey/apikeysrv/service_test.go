package apikeysrv

import (
	"context"
	"testing"
	"time"

	"github.com/senderpro/senderpro/pkg/config"
	"github.com/senderpro/senderpro/pkg/errx"
	"github.com/senderpro/senderpro/pkg/iam/apikey"
	"github.com/senderpro/senderpro/pkg/iam/scopes"
	"github.com/senderpro/senderpro/pkg/kernel"
)

// fakeBundleRepo is an in-memory BundleRepository with the same conditional
// replace semantics as the real stores.
type fakeBundleRepo struct {
	bundles      map[kernel.UserID]apikey.Bundle
	replaceCalls int
	failWith     error
}

func newFakeBundleRepo() *fakeBundleRepo {
	return &fakeBundleRepo{bundles: make(map[kernel.UserID]apikey.Bundle)}
}

func (r *fakeBundleRepo) Find(_ context.Context, userID kernel.UserID) (*apikey.Bundle, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	bundle, ok := r.bundles[userID]
	if !ok {
		return nil, apikey.ErrBundleNotFound()
	}
	return &bundle, nil
}

func (r *fakeBundleRepo) Replace(_ context.Context, bundle apikey.Bundle, expectedLastRotated *time.Time) (bool, error) {
	if r.failWith != nil {
		return false, r.failWith
	}
	r.replaceCalls++

	stored, exists := r.bundles[bundle.UserID]
	if expectedLastRotated == nil {
		if exists {
			return false, nil
		}
	} else {
		if !exists || !stored.LastRotated.Equal(*expectedLastRotated) {
			return false, nil
		}
	}

	r.bundles[bundle.UserID] = bundle
	return true, nil
}

func newTestManager(repo apikey.BundleRepository, at time.Time) *Manager {
	m := NewManager(repo, &config.APIKeyConfig{
		ExpiryWindow:      3 * time.Hour,
		RotationThreshold: 30 * time.Minute,
	})
	m.now = func() time.Time { return at }
	return m
}

// --- Generation tests ---

func TestGenerateScopedKey_UnknownScope(t *testing.T) {
	m := newTestManager(newFakeBundleRepo(), time.Now())

	_, err := m.GenerateScopedKey(kernel.NewUserID("u1"), "file_storage")
	if err == nil {
		t.Fatal("expected error for unrecognized scope")
	}
	if !errx.Is(err, apikey.ErrUnknownScope("file_storage")) {
		t.Fatalf("expected unknown scope error, got %v", err)
	}
}

func TestGenerateAllKeys_CoversEveryScope(t *testing.T) {
	repo := newFakeBundleRepo()
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	m := newTestManager(repo, at)

	bundle, err := m.GenerateAllKeys(context.Background(), kernel.NewUserID("u1"))
	if err != nil {
		t.Fatalf("GenerateAllKeys failed: %v", err)
	}

	if len(bundle.Keys) != len(scopes.All()) {
		t.Fatalf("expected %d keys, got %d", len(scopes.All()), len(bundle.Keys))
	}
	for _, scope := range scopes.All() {
		entry, ok := bundle.Keys[scope]
		if !ok {
			t.Fatalf("missing key for scope %s", scope)
		}
		if !entry.ExpiresAt.Equal(at.Add(3 * time.Hour)) {
			t.Fatalf("scope %s expiry = %s, want %s", scope, entry.ExpiresAt, at.Add(3*time.Hour))
		}
	}
	if !bundle.LastRotated.Equal(at) {
		t.Fatalf("last rotated = %s, want %s", bundle.LastRotated, at)
	}
}

func TestGenerateAllKeys_ReplacesExistingBundle(t *testing.T) {
	repo := newFakeBundleRepo()
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	m := newTestManager(repo, at)
	userID := kernel.NewUserID("u1")

	first, err := m.GenerateAllKeys(context.Background(), userID)
	if err != nil {
		t.Fatalf("initial GenerateAllKeys failed: %v", err)
	}

	later := at.Add(10 * time.Minute)
	m.now = func() time.Time { return later }

	second, err := m.GenerateAllKeys(context.Background(), userID)
	if err != nil {
		t.Fatalf("second GenerateAllKeys failed: %v", err)
	}

	if !second.LastRotated.Equal(later) {
		t.Fatalf("last rotated = %s, want %s", second.LastRotated, later)
	}
	for scope, entry := range first.Keys {
		fresh, ok := second.Keys[scope]
		if !ok {
			t.Fatalf("missing key for scope %s after regeneration", scope)
		}
		if fresh.Key == entry.Key {
			t.Fatalf("scope %s still carries the previous key after regeneration", scope)
		}
	}

	stored, err := repo.Find(context.Background(), userID)
	if err != nil {
		t.Fatalf("Find after regeneration failed: %v", err)
	}
	if !stored.LastRotated.Equal(later) {
		t.Fatalf("stored last rotated = %s, want %s", stored.LastRotated, later)
	}
}

// --- Validation tests ---

func TestValidateKey_RoundTripPerScope(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	m := newTestManager(newFakeBundleRepo(), at)
	userID := kernel.NewUserID("64f1a2b3c4d5e6f708192a3b")

	for _, scope := range scopes.All() {
		entry, err := m.GenerateScopedKey(userID, scope)
		if err != nil {
			t.Fatalf("GenerateScopedKey(%s) failed: %v", scope, err)
		}

		got, err := m.ValidateKey(entry.Key, scope)
		if err != nil {
			t.Fatalf("ValidateKey(%s) failed: %v", scope, err)
		}
		if got != userID {
			t.Fatalf("ValidateKey(%s) user = %s, want %s", scope, got, userID)
		}
	}
}

func TestValidateKey_ExpiryBoundary(t *testing.T) {
	issued := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	m := newTestManager(newFakeBundleRepo(), issued)

	entry, err := m.GenerateScopedKey(kernel.NewUserID("u1"), scopes.EmailMarketing)
	if err != nil {
		t.Fatalf("GenerateScopedKey failed: %v", err)
	}

	// One second inside the window: valid.
	m.now = func() time.Time { return issued.Add(3*time.Hour - time.Second) }
	if _, err := m.ValidateKey(entry.Key, scopes.EmailMarketing); err != nil {
		t.Fatalf("key rejected inside expiry window: %v", err)
	}

	// Exactly at the window edge: still valid.
	m.now = func() time.Time { return issued.Add(3 * time.Hour) }
	if _, err := m.ValidateKey(entry.Key, scopes.EmailMarketing); err != nil {
		t.Fatalf("key rejected at expiry boundary: %v", err)
	}

	// One second past: expired.
	m.now = func() time.Time { return issued.Add(3*time.Hour + time.Second) }
	_, err = m.ValidateKey(entry.Key, scopes.EmailMarketing)
	if !errx.Is(err, apikey.ErrExpiredKey()) {
		t.Fatalf("expected expired key error, got %v", err)
	}
}

func TestValidateKey_ScopeMismatch(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	m := newTestManager(newFakeBundleRepo(), at)

	entry, err := m.GenerateScopedKey(kernel.NewUserID("u1"), scopes.SMSMarketing)
	if err != nil {
		t.Fatalf("GenerateScopedKey failed: %v", err)
	}

	_, err = m.ValidateKey(entry.Key, scopes.DeviceManagement)
	if !errx.Is(err, apikey.ErrInsufficientScope(scopes.DeviceManagement, scopes.SMSMarketing)) {
		t.Fatalf("expected insufficient scope error, got %v", err)
	}
}

func TestValidateKey_Malformed(t *testing.T) {
	m := newTestManager(newFakeBundleRepo(), time.Now())

	_, err := m.ValidateKey("user_u1_not-enough", scopes.EmailMarketing)
	if !errx.Is(err, apikey.ErrMalformedKey()) {
		t.Fatalf("expected malformed key error, got %v", err)
	}
}

// --- Auto-rotation tests ---

func TestGetBundleWithAutoRotate_CreatesMissingBundle(t *testing.T) {
	repo := newFakeBundleRepo()
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	m := newTestManager(repo, at)
	userID := kernel.NewUserID("u1")

	keys, err := m.GetBundleWithAutoRotate(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetBundleWithAutoRotate failed: %v", err)
	}
	if len(keys) != len(scopes.All()) {
		t.Fatalf("expected %d keys, got %d", len(scopes.All()), len(keys))
	}
	if _, ok := repo.bundles[userID]; !ok {
		t.Fatal("bundle was not persisted")
	}
}

func TestGetBundleWithAutoRotate_StableWithinThreshold(t *testing.T) {
	repo := newFakeBundleRepo()
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	m := newTestManager(repo, at)
	userID := kernel.NewUserID("u1")

	first, err := m.GetBundleWithAutoRotate(context.Background(), userID)
	if err != nil {
		t.Fatalf("first read failed: %v", err)
	}

	// Two hours later every key still has 1h left, well over the 30m threshold.
	m.now = func() time.Time { return at.Add(2 * time.Hour) }
	second, err := m.GetBundleWithAutoRotate(context.Background(), userID)
	if err != nil {
		t.Fatalf("second read failed: %v", err)
	}

	for scope, entry := range first {
		if second[scope].Key != entry.Key {
			t.Fatalf("scope %s rotated inside the stable window", scope)
		}
	}
	if repo.replaceCalls != 1 {
		t.Fatalf("expected 1 replace call, got %d", repo.replaceCalls)
	}
}

func TestGetBundleWithAutoRotate_RotatesNearExpiry(t *testing.T) {
	repo := newFakeBundleRepo()
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	m := newTestManager(repo, at)
	userID := kernel.NewUserID("u1")

	first, err := m.GetBundleWithAutoRotate(context.Background(), userID)
	if err != nil {
		t.Fatalf("first read failed: %v", err)
	}

	// 2h31m in: 29m of life left, under the 30m threshold, so the whole
	// bundle regenerates.
	rotateAt := at.Add(2*time.Hour + 31*time.Minute)
	m.now = func() time.Time { return rotateAt }
	second, err := m.GetBundleWithAutoRotate(context.Background(), userID)
	if err != nil {
		t.Fatalf("rotating read failed: %v", err)
	}

	for scope, entry := range first {
		if second[scope].Key == entry.Key {
			t.Fatalf("scope %s key survived rotation", scope)
		}
		if !second[scope].ExpiresAt.Equal(rotateAt.Add(3 * time.Hour)) {
			t.Fatalf("scope %s expiry not renewed", scope)
		}
	}
	if !repo.bundles[userID].LastRotated.Equal(rotateAt) {
		t.Fatal("last rotated not advanced")
	}
}

func TestGetBundleWithAutoRotate_RotatesStaleBundle(t *testing.T) {
	repo := newFakeBundleRepo()
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	m := newTestManager(repo, at)
	userID := kernel.NewUserID("u1")

	if _, err := m.GetBundleWithAutoRotate(context.Background(), userID); err != nil {
		t.Fatalf("first read failed: %v", err)
	}

	// Long past the expiry window: every stored key is dead, the read must
	// come back with a fresh, fully active bundle.
	m.now = func() time.Time { return at.Add(24 * time.Hour) }
	keys, err := m.GetBundleWithAutoRotate(context.Background(), userID)
	if err != nil {
		t.Fatalf("stale read failed: %v", err)
	}
	if len(keys) != len(scopes.All()) {
		t.Fatalf("expected %d active keys after rotation, got %d", len(scopes.All()), len(keys))
	}
}

func TestGetBundleWithAutoRotate_LostRaceReturnsWinner(t *testing.T) {
	repo := newFakeBundleRepo()
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	m := newTestManager(repo, at)
	userID := kernel.NewUserID("u1")

	if _, err := m.GetBundleWithAutoRotate(context.Background(), userID); err != nil {
		t.Fatalf("seed read failed: %v", err)
	}
	stale := repo.bundles[userID].LastRotated

	// A concurrent rotation wins between our read and our write.
	winnerAt := at.Add(2*time.Hour + 40*time.Minute)
	winner := newTestManager(repo, winnerAt)
	winnerBundle, err := winner.regenerate(context.Background(), userID, &stale)
	if err != nil {
		t.Fatalf("winner rotation failed: %v", err)
	}

	// Our rotation now carries a stale expected timestamp and must fall back
	// to the winner's bundle instead of clobbering it.
	m.now = func() time.Time { return winnerAt.Add(time.Second) }
	loserBundle, err := m.regenerate(context.Background(), userID, &stale)
	if err != nil {
		t.Fatalf("losing rotation failed: %v", err)
	}

	if !loserBundle.LastRotated.Equal(winnerBundle.LastRotated) {
		t.Fatal("loser did not adopt the winner's bundle")
	}
	for scope, entry := range winnerBundle.Keys {
		if loserBundle.Keys[scope].Key != entry.Key {
			t.Fatalf("scope %s differs from the winner's bundle", scope)
		}
	}
}
