package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/onnwee/beaconads/internal/cache"
)

// keyPrefix namespaces idempotency entries in a shared cache store.
const keyPrefix = "idempotency:"

// CacheRepository implements Repository on a cache.Store, so records live in
// Redis when it is configured and in process memory otherwise. Records expire
// after the configured TTL instead of being swept by a cleanup job.
type CacheRepository struct {
	store cache.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewCacheRepository creates a repository whose records expire after ttl.
// A ttl <= 0 uses DefaultExpiry.
func NewCacheRepository(store cache.Store, ttl time.Duration) *CacheRepository {
	if ttl <= 0 {
		ttl = DefaultExpiry
	}
	return &CacheRepository{store: store, ttl: ttl, now: time.Now}
}

func storageKey(scope Scope, key string) string {
	return keyPrefix + strings.Join([]string{scope.UserID, scope.Method, scope.Route, key}, "|")
}

// Get retrieves the record stored for key.
func (r *CacheRepository) Get(ctx context.Context, scope Scope, key string) (*Record, error) {
	raw, ok, err := r.store.Get(ctx, storageKey(scope, key))
	if err != nil {
		return nil, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	if !ok {
		return nil, ErrKeyNotFound
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode idempotency record: %w", err)
	}
	return &rec, nil
}

// Store saves a record unless one already exists for its key. The check and
// the write are not atomic; two concurrent first requests both run.
func (r *CacheRepository) Store(ctx context.Context, scope Scope, record *Record) error {
	if err := ValidateKey(record.Key); err != nil {
		return err
	}
	if _, err := r.Get(ctx, scope, record.Key); err == nil {
		return ErrKeyExists
	}

	stored := *record
	stored.UserID = scope.UserID
	stored.Method = scope.Method
	stored.Route = scope.Route
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.now().UTC()
	}
	if stored.ResponseHash == "" {
		stored.ResponseHash = ComputeResponseHash(stored.ResponseBody)
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}
	if err := r.store.Set(ctx, storageKey(scope, record.Key), raw, r.ttl); err != nil {
		return fmt.Errorf("failed to store idempotency key: %w", err)
	}
	return nil
}
