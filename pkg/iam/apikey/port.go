package apikey

import (
	"context"
	"time"

	"github.com/senderpro/senderpro/pkg/kernel"
)

// BundleRepository persists one key bundle per user. Implementations may
// block on store I/O; callers bound every call with a context deadline and
// must not hold in-process locks across one.
type BundleRepository interface {
	// Find returns the stored bundle, or CodeBundleNotFound.
	Find(ctx context.Context, userID kernel.UserID) (*Bundle, error)

	// Replace upserts the whole bundle in one atomic write. When
	// expectedLastRotated is non-nil the write only succeeds if the stored
	// bundle still carries that rotation timestamp; nil means "only create,
	// never overwrite". A false return with nil error reports a lost race —
	// the caller re-reads and uses the winner's bundle.
	Replace(ctx context.Context, bundle Bundle, expectedLastRotated *time.Time) (bool, error)
}

// KeyValidator is the stateless check integrations run on every request.
// Implemented by the manager; consumed by the scope guard middleware.
type KeyValidator interface {
	ValidateKey(rawKey, requiredScope string) (kernel.UserID, error)
}
