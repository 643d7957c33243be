package pricingstore

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/ink-coverage-service/internal/pricing"
)

// KeyValueForTest mirrors the unexported keyValue interface.
type KeyValueForTest interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
}

// NewForTest builds a store over a fake bucket.
func NewForTest(kv KeyValueForTest, fallback pricing.CartridgePricing) *Store {
	return newStore(kv, fallback)
}
