package apikeyinfra

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/senderpro/senderpro/pkg/errx"
	"github.com/senderpro/senderpro/pkg/iam/apikey"
	"github.com/senderpro/senderpro/pkg/kernel"
)

// PostgresBundleRepository stores one api_key_bundles row per user with the
// keys map serialized as JSONB. The bundle is always written whole; the
// last_rotated column doubles as the optimistic-concurrency token for
// Replace, so racing rotations collapse to one winner without row locks.
type PostgresBundleRepository struct {
	db *sqlx.DB
}

// NewPostgresBundleRepository creates the repository.
func NewPostgresBundleRepository(db *sqlx.DB) apikey.BundleRepository {
	return &PostgresBundleRepository{db: db}
}

type bundleRow struct {
	UserID      string    `db:"user_id"`
	Keys        []byte    `db:"keys"`
	LastRotated time.Time `db:"last_rotated"`
}

// Find returns the stored bundle for a user.
func (r *PostgresBundleRepository) Find(ctx context.Context, userID kernel.UserID) (*apikey.Bundle, error) {
	var row bundleRow
	query := `SELECT user_id, keys, last_rotated FROM api_key_bundles WHERE user_id = $1`
	err := r.db.GetContext(ctx, &row, query, userID.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apikey.ErrBundleNotFound()
		}
		return nil, bundleStoreError(err, "failed to find key bundle")
	}

	keys := make(map[string]apikey.KeyEntry)
	if err := json.Unmarshal(row.Keys, &keys); err != nil {
		return nil, errx.Wrap(err, "corrupt key bundle payload", errx.TypeInternal)
	}

	return &apikey.Bundle{
		UserID:      kernel.NewUserID(row.UserID),
		Keys:        keys,
		LastRotated: row.LastRotated.UTC(),
	}, nil
}

// Replace upserts the whole bundle in one statement. With a nil expected
// timestamp the insert backs off if a row already exists; with a non-nil one
// the overwrite only lands while the stored last_rotated still matches. Zero
// rows affected reports a lost race, not an error.
func (r *PostgresBundleRepository) Replace(ctx context.Context, bundle apikey.Bundle, expectedLastRotated *time.Time) (bool, error) {
	payload, err := json.Marshal(bundle.Keys)
	if err != nil {
		return false, errx.Wrap(err, "failed to encode key bundle", errx.TypeInternal)
	}

	var result sql.Result
	if expectedLastRotated == nil {
		query := `
			INSERT INTO api_key_bundles (user_id, keys, last_rotated)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO NOTHING`
		result, err = r.db.ExecContext(ctx, query, bundle.UserID.String(), payload, bundle.LastRotated)
	} else {
		query := `
			INSERT INTO api_key_bundles (user_id, keys, last_rotated)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE
			SET keys = EXCLUDED.keys, last_rotated = EXCLUDED.last_rotated
			WHERE api_key_bundles.last_rotated = $4`
		result, err = r.db.ExecContext(ctx, query, bundle.UserID.String(), payload, bundle.LastRotated, *expectedLastRotated)
	}
	if err != nil {
		return false, bundleStoreError(err, "failed to replace key bundle")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, bundleStoreError(err, "failed to read replace result")
	}
	return affected > 0, nil
}

func bundleStoreError(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apikey.ErrStoreUnavailable(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apikey.ErrStoreUnavailable(err)
	}
	return errx.Wrap(err, message, errx.TypeInternal)
}
