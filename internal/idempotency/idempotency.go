// Package idempotency guards externally-delivered events (KYC webhooks, AI
// verdicts) against redelivery. Keys are claimed with set-if-absent semantics;
// a second claim for the same key reports already-seen.
package idempotency

import (
	"context"
	"time"
)

// Store claims idempotency keys. Claim returns true when the key was fresh
// (the caller should proceed) and false when it was already claimed. Release
// frees a claimed key; a caller that failed to apply the event releases its
// claim so the redelivery is processed instead of dropped.
type Store interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
