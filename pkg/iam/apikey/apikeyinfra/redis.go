package apikeyinfra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/senderpro/senderpro/pkg/errx"
	"github.com/senderpro/senderpro/pkg/iam/apikey"
	"github.com/senderpro/senderpro/pkg/kernel"
)

// RedisBundleRepository stores each bundle as a hash with a payload field
// (the JSON bundle) and a rotated field (last_rotated as unix nanos). The
// hash carries a TTL so stale bundles fall out of Redis on their own; a
// dropped bundle just regenerates on the next read.
type RedisBundleRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisBundleRepository creates the repository. ttl should cover the key
// expiry window so a live bundle never evicts mid-lifetime.
func NewRedisBundleRepository(rdb *redis.Client, ttl time.Duration) *RedisBundleRepository {
	if ttl <= 0 {
		ttl = 3 * time.Hour
	}
	return &RedisBundleRepository{rdb: rdb, ttl: ttl}
}

func bundleKey(userID kernel.UserID) string {
	return fmt.Sprintf("apikey:bundle:%s", userID)
}

// replaceScript does the compare-and-swap on the rotated field. An empty
// expected value means create-only. Returns 1 on a landed write, 0 on a
// lost race.
var replaceScript = redis.NewScript(`
local rotated = redis.call('HGET', KEYS[1], 'rotated')
if ARGV[1] == '' then
    if rotated then return 0 end
else
    if not rotated or rotated ~= ARGV[1] then return 0 end
end
redis.call('HSET', KEYS[1], 'payload', ARGV[2], 'rotated', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// Find returns the stored bundle for a user.
func (r *RedisBundleRepository) Find(ctx context.Context, userID kernel.UserID) (*apikey.Bundle, error) {
	data, err := r.rdb.HGet(ctx, bundleKey(userID), "payload").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apikey.ErrBundleNotFound()
		}
		return nil, bundleStoreError(err, "failed to find key bundle")
	}

	var bundle apikey.Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, errx.Wrap(err, "corrupt key bundle payload", errx.TypeInternal)
	}
	return &bundle, nil
}

// Replace swaps the whole bundle atomically via the compare-and-swap script.
func (r *RedisBundleRepository) Replace(ctx context.Context, bundle apikey.Bundle, expectedLastRotated *time.Time) (bool, error) {
	payload, err := json.Marshal(bundle)
	if err != nil {
		return false, errx.Wrap(err, "failed to encode key bundle", errx.TypeInternal)
	}

	expected := ""
	if expectedLastRotated != nil {
		expected = strconv.FormatInt(expectedLastRotated.UnixNano(), 10)
	}
	rotated := strconv.FormatInt(bundle.LastRotated.UnixNano(), 10)

	landed, err := replaceScript.Run(ctx, r.rdb,
		[]string{bundleKey(bundle.UserID)},
		expected, payload, rotated, r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, bundleStoreError(err, "failed to replace key bundle")
	}
	return landed == 1, nil
}
