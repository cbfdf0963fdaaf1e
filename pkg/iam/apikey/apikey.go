package apikey

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/senderpro/senderpro/pkg/errx"
	"github.com/senderpro/senderpro/pkg/kernel"
)

// ============================================================================
// Domain Types
// ============================================================================

// KeyEntry is one scoped key inside a user's bundle.
type KeyEntry struct {
	Key         string    `json:"key"`
	GeneratedAt time.Time `json:"generated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewKeyEntry builds an entry and rejects inverted time windows.
func NewKeyEntry(key string, generatedAt, expiresAt time.Time) (KeyEntry, error) {
	if key == "" {
		return KeyEntry{}, errx.Validation("key entry requires a key")
	}
	if !expiresAt.After(generatedAt) {
		return KeyEntry{}, errx.Validation("key entry expiry must be after generation")
	}
	return KeyEntry{Key: key, GeneratedAt: generatedAt, ExpiresAt: expiresAt}, nil
}

// IsExpired reports whether the stored entry has aged out.
func (e KeyEntry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Bundle is the single per-user document holding exactly one KeyEntry per
// recognized scope. Generation replaces the whole document atomically; one
// last_rotated timestamp governs every entry.
type Bundle struct {
	UserID      kernel.UserID       `json:"user_id"`
	Keys        map[string]KeyEntry `json:"keys"`
	LastRotated time.Time           `json:"last_rotated"`
}

// ActiveKeys returns the entries that have not yet expired.
func (b *Bundle) ActiveKeys(now time.Time) map[string]KeyEntry {
	out := make(map[string]KeyEntry, len(b.Keys))
	for scope, entry := range b.Keys {
		if !entry.IsExpired(now) {
			out[scope] = entry
		}
	}
	return out
}

// ============================================================================
// Opaque Key Codec
// ============================================================================

// Key wire format: user_<user-id>_<scope-with-hyphens>_<unix-ts>_<secret>.
// The scope's underscores become hyphens inside the key so the delimiter
// stays unambiguous; user IDs are opaque hex/uuid values that never contain
// an underscore. The secret may itself contain underscores — it is always
// the final segment and parsed greedily.
const keyTag = "user"

// keyParts is tag, user id, scope, timestamp, secret.
const keyParts = 5

// ParsedKey is the structural decomposition of a presented key.
type ParsedKey struct {
	UserID   kernel.UserID
	Scope    string
	IssuedAt time.Time
	Secret   string
}

// EncodeKey renders a key string for the wire.
func EncodeKey(userID kernel.UserID, scope string, issuedAt time.Time, secret string) string {
	return fmt.Sprintf("%s_%s_%s_%d_%s", keyTag, userID, sanitizeScope(scope), issuedAt.Unix(), secret)
}

// ParseKey decomposes a key string. Structural problems all come back as
// CodeMalformedKey; a partially parsed key is never trusted.
func ParseKey(raw string) (*ParsedKey, error) {
	if raw == "" {
		return nil, ErrMalformedKey().WithDetail("reason", "empty key")
	}

	parts := strings.SplitN(raw, "_", keyParts)
	if len(parts) < keyParts {
		return nil, ErrMalformedKey().WithDetail("reason", fmt.Sprintf("expected %d segments, got %d", keyParts, len(parts)))
	}

	if parts[0] != keyTag {
		return nil, ErrMalformedKey().WithDetail("reason", "invalid key type")
	}

	if parts[1] == "" || parts[4] == "" {
		return nil, ErrMalformedKey().WithDetail("reason", "empty segment")
	}

	ts, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return nil, ErrMalformedKey().WithDetail("reason", "invalid timestamp")
	}

	return &ParsedKey{
		UserID:   kernel.NewUserID(parts[1]),
		Scope:    restoreScope(parts[2]),
		IssuedAt: time.Unix(ts, 0).UTC(),
		Secret:   parts[4],
	}, nil
}

// NewSecret produces the random tail of a key.
func NewSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func sanitizeScope(scope string) string {
	return strings.ReplaceAll(scope, "_", "-")
}

func restoreScope(s string) string {
	return strings.ReplaceAll(s, "-", "_")
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("APIKEY")

var (
	CodeMalformedKey      = ErrRegistry.Register("MALFORMED_KEY", errx.TypeAuthorization, http.StatusUnauthorized, "Malformed API key")
	CodeExpiredKey        = ErrRegistry.Register("EXPIRED_KEY", errx.TypeAuthorization, http.StatusUnauthorized, "Expired API key")
	CodeInsufficientScope = ErrRegistry.Register("INSUFFICIENT_SCOPE", errx.TypeForbidden, http.StatusForbidden, "Insufficient scope for this operation")
	CodeUnknownScope      = ErrRegistry.Register("UNKNOWN_SCOPE", errx.TypeValidation, http.StatusBadRequest, "Unrecognized scope")
	CodeBundleNotFound    = ErrRegistry.Register("BUNDLE_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "No key bundle for user")
	CodeStoreUnavailable  = ErrRegistry.Register("STORE_UNAVAILABLE", errx.TypeUnavailable, http.StatusServiceUnavailable, "Key store unavailable, retry later")
)

// Helper functions
func ErrMalformedKey() *errx.Error {
	return ErrRegistry.New(CodeMalformedKey)
}

func ErrExpiredKey() *errx.Error {
	return ErrRegistry.New(CodeExpiredKey)
}

func ErrInsufficientScope(required, got string) *errx.Error {
	return ErrRegistry.New(CodeInsufficientScope).
		WithDetail("required_scope", required).
		WithDetail("key_scope", got)
}

func ErrUnknownScope(scope string) *errx.Error {
	return ErrRegistry.New(CodeUnknownScope).WithDetail("scope", scope)
}

func ErrBundleNotFound() *errx.Error {
	return ErrRegistry.New(CodeBundleNotFound)
}

func ErrStoreUnavailable(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeStoreUnavailable, cause)
}
