// Package pricingstore persists per-tenant cartridge pricing in a NATS JetStream
// key-value bucket.
package pricingstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/ink-coverage-service/internal/pricing"
)

// DefaultBucket is the key-value bucket used when none is configured.
const DefaultBucket = "INK_PRICING"

const keyPrefix = "pricing."

// ErrInvalidTenant is returned for a tenant ID that cannot be used as a key token.
var ErrInvalidTenant = errors.New("invalid tenant id")

var tenantPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// keyValue is the subset of jetstream.KeyValue the store needs.
type keyValue interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
}

// Store loads and saves tenant pricing.
type Store struct {
	kv       keyValue
	fallback pricing.CartridgePricing
}

// New returns a store over kv. Tenants without saved pricing get fallback.
func New(kv jetstream.KeyValue, fallback pricing.CartridgePricing) *Store {
	return newStore(kv, fallback)
}

func newStore(kv keyValue, fallback pricing.CartridgePricing) *Store {
	return &Store{kv: kv, fallback: fallback}
}

// Open creates the bucket if needed and returns a store over it.
func Open(
	ctx context.Context,
	js jetstream.JetStream,
	bucket string,
	fallback pricing.CartridgePricing,
) (*Store, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}

	kv, kvErr := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Cartridge pricing per tenant",
		History:     5,
	})
	if kvErr != nil {
		return nil, fmt.Errorf("failed to create or update pricing bucket '%s': %w", bucket, kvErr)
	}

	return New(kv, fallback), nil
}

// Key returns the bucket key holding a tenant's pricing.
func Key(tenant string) (string, error) {
	if !tenantPattern.MatchString(tenant) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTenant, tenant)
	}

	return keyPrefix + tenant, nil
}

// Load returns the tenant's saved pricing, or the fallback when nothing was saved or
// no tenant is given.
func (store *Store) Load(ctx context.Context, tenant string) (pricing.CartridgePricing, error) {
	if tenant == "" {
		return store.fallback, nil
	}

	key, keyErr := Key(tenant)
	if keyErr != nil {
		return pricing.CartridgePricing{}, keyErr
	}

	entry, getErr := store.kv.Get(ctx, key)
	if errors.Is(getErr, jetstream.ErrKeyNotFound) {
		return store.fallback, nil
	}

	if getErr != nil {
		return pricing.CartridgePricing{}, fmt.Errorf("failed to read pricing for %s: %w", tenant, getErr)
	}

	var saved pricing.CartridgePricing

	unmarshalErr := json.Unmarshal(entry.Value(), &saved)
	if unmarshalErr != nil {
		return pricing.CartridgePricing{}, fmt.Errorf(
			"failed to decode pricing for %s: %w",
			tenant,
			unmarshalErr,
		)
	}

	return saved, nil
}

// Save validates p and stores it for the tenant, returning the new revision.
func (store *Store) Save(
	ctx context.Context,
	tenant string,
	p pricing.CartridgePricing,
) (uint64, error) {
	key, keyErr := Key(tenant)
	if keyErr != nil {
		return 0, keyErr
	}

	validateErr := p.Validate()
	if validateErr != nil {
		return 0, validateErr
	}

	data, marshalErr := json.Marshal(p)
	if marshalErr != nil {
		return 0, fmt.Errorf("failed to encode pricing: %w", marshalErr)
	}

	revision, putErr := store.kv.Put(ctx, key, data)
	if putErr != nil {
		return 0, fmt.Errorf("failed to save pricing for %s: %w", tenant, putErr)
	}

	return revision, nil
}
