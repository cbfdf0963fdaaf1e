// Package apikeysrv implements the scoped key manager: bulk generation,
// stateless validation, and rotation-on-read of per-user key bundles.
package apikeysrv

import (
	"context"
	"time"

	"github.com/senderpro/senderpro/pkg/config"
	"github.com/senderpro/senderpro/pkg/errx"
	"github.com/senderpro/senderpro/pkg/iam/apikey"
	"github.com/senderpro/senderpro/pkg/iam/scopes"
	"github.com/senderpro/senderpro/pkg/kernel"
	"github.com/senderpro/senderpro/pkg/logx"
)

// Manager owns key bundles. Validation is stateless; reads of the stored
// bundle may rotate it, which is why the read operation is named the way it
// is. Rotation is all-or-nothing per user: one generation timestamp governs
// the whole bundle, so a single near-expiry entry regenerates every scope.
type Manager struct {
	repo              apikey.BundleRepository
	expiryWindow      time.Duration
	rotationThreshold time.Duration
	scopeSet          []string
	now               func() time.Time
}

// NewManager builds the key manager from configuration.
func NewManager(repo apikey.BundleRepository, cfg *config.APIKeyConfig) *Manager {
	expiry := cfg.ExpiryWindow
	if expiry <= 0 {
		expiry = 3 * time.Hour
	}
	threshold := cfg.RotationThreshold
	if threshold <= 0 {
		threshold = 30 * time.Minute
	}
	scopeSet := cfg.Scopes
	if len(scopeSet) == 0 {
		scopeSet = scopes.All()
	}
	for _, scope := range scopeSet {
		if !scopes.IsRecognized(scope) {
			logx.WithField("scope", scope).Warn("Configured API key scope is not recognized")
		}
	}

	return &Manager{
		repo:              repo,
		expiryWindow:      expiry,
		rotationThreshold: threshold,
		scopeSet:          scopeSet,
		now:               time.Now,
	}
}

// GenerateScopedKey constructs one key entry for a scope. Pure construction:
// embeds the current instant and a fresh random secret, no I/O.
func (m *Manager) GenerateScopedKey(userID kernel.UserID, scope string) (apikey.KeyEntry, error) {
	if !m.recognizes(scope) {
		return apikey.KeyEntry{}, apikey.ErrUnknownScope(scope)
	}

	secret, err := apikey.NewSecret()
	if err != nil {
		return apikey.KeyEntry{}, apikey.ErrStoreUnavailable(err)
	}

	now := m.now().UTC().Truncate(time.Second)
	return apikey.NewKeyEntry(
		apikey.EncodeKey(userID, scope, now, secret),
		now,
		now.Add(m.expiryWindow),
	)
}

// GenerateAllKeys builds one entry per recognized scope and atomically
// replaces the stored bundle, whether or not one exists yet. The write is
// conditional on the rotation timestamp read here, so a regeneration racing
// a concurrent rotation collapses to the newest generation; either way the
// caller gets back a bundle that was just written, never stale keys. There
// is no grace period: holders of the previous stored keys must re-fetch.
func (m *Manager) GenerateAllKeys(ctx context.Context, userID kernel.UserID) (*apikey.Bundle, error) {
	current, err := m.repo.Find(ctx, userID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	var expected *time.Time
	if current != nil {
		expected = &current.LastRotated
	}
	return m.regenerate(ctx, userID, expected)
}

// ValidateKey checks a presented key against a required scope without
// touching storage: structure, embedded issue time against the expiry
// window, then scope. Because nothing is looked up, a key stays accepted
// until its timestamp ages out even if the stored bundle has been replaced.
func (m *Manager) ValidateKey(rawKey, requiredScope string) (kernel.UserID, error) {
	parsed, err := apikey.ParseKey(rawKey)
	if err != nil {
		return "", err
	}

	if m.now().UTC().Sub(parsed.IssuedAt) > m.expiryWindow {
		return "", apikey.ErrExpiredKey()
	}

	if parsed.Scope != requiredScope {
		return "", apikey.ErrInsufficientScope(requiredScope, parsed.Scope)
	}

	return parsed.UserID, nil
}

// GetBundleWithAutoRotate returns the user's active keys, generating or
// rotating the stored bundle first when needed. This read can write: a
// missing bundle is created, and a bundle whose generation is older than the
// expiry window — or with any entry within the rotation threshold of expiry —
// is wholesale regenerated.
func (m *Manager) GetBundleWithAutoRotate(ctx context.Context, userID kernel.UserID) (map[string]apikey.KeyEntry, error) {
	bundle, err := m.repo.Find(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			fresh, genErr := m.regenerate(ctx, userID, nil)
			if genErr != nil {
				return nil, genErr
			}
			return fresh.ActiveKeys(m.now().UTC()), nil
		}
		return nil, err
	}

	now := m.now().UTC()
	if m.needsRotation(bundle, now) {
		logx.WithField("user_id", userID).Info("auto-rotating API key bundle")
		rotated, rotErr := m.regenerate(ctx, userID, &bundle.LastRotated)
		if rotErr != nil {
			return nil, rotErr
		}
		return rotated.ActiveKeys(m.now().UTC()), nil
	}

	return bundle.ActiveKeys(now), nil
}

// needsRotation computes the rotation decision for a stored bundle.
func (m *Manager) needsRotation(bundle *apikey.Bundle, now time.Time) bool {
	if now.Sub(bundle.LastRotated) > m.expiryWindow {
		return true
	}
	for _, entry := range bundle.Keys {
		if entry.ExpiresAt.Sub(now) < m.rotationThreshold {
			return true
		}
	}
	return false
}

// regenerate builds a complete bundle and writes it conditionally. A lost
// race is not an error: the winner's bundle is re-read and returned, so the
// caller always sees some fully generated, internally consistent generation.
func (m *Manager) regenerate(ctx context.Context, userID kernel.UserID, expectedLastRotated *time.Time) (*apikey.Bundle, error) {
	now := m.now().UTC().Truncate(time.Second)

	keys := make(map[string]apikey.KeyEntry, len(m.scopeSet))
	for _, scope := range m.scopeSet {
		entry, err := m.GenerateScopedKey(userID, scope)
		if err != nil {
			return nil, err
		}
		keys[scope] = entry
	}

	bundle := apikey.Bundle{
		UserID:      userID,
		Keys:        keys,
		LastRotated: now,
	}

	replaced, err := m.repo.Replace(ctx, bundle, expectedLastRotated)
	if err != nil {
		return nil, err
	}
	if !replaced {
		logx.WithField("user_id", userID).Debug("lost bundle rotation race, re-reading winner")
		return m.repo.Find(ctx, userID)
	}

	return &bundle, nil
}

func (m *Manager) recognizes(scope string) bool {
	for _, s := range m.scopeSet {
		if s == scope {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	return errx.Is(err, apikey.ErrBundleNotFound())
}
