package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	idempotencyCachePrefix = "idem:"
	idempotencyCacheTTL    = 24 * time.Hour
)

// ScopedIdempotencyKey namespaces a caller-supplied token by the initiating
// user (a transfer's sender), so two callers reusing the same literal token
// cannot collide.
func ScopedIdempotencyKey(userID int64, key string) string {
	return fmt.Sprintf("user_%d:%s", userID, key)
}

// IdempotencyLedger maps a scoped idempotency key to a previously committed
// transaction id. It has no write path of its own: keys are written as part
// of the transaction row, and the storage-level uniqueness constraint is the
// authoritative guard. The Redis layer here, like the lookup itself, is a
// latency optimization only.
type IdempotencyLedger struct {
	db    *sql.DB
	redis *redis.Client
}

func NewIdempotencyLedger(db *sql.DB, redisClient *redis.Client) *IdempotencyLedger {
	return &IdempotencyLedger{db: db, redis: redisClient}
}

// Lookup returns the transaction id previously committed under scopedKey, if
// any. Tries the cache first, then the ledger table.
func (l *IdempotencyLedger) Lookup(ctx context.Context, scopedKey string) (string, bool, error) {
	if l.redis != nil {
		cached, err := l.redis.Get(ctx, idempotencyCachePrefix+scopedKey).Result()
		if err == nil && cached != "" {
			return cached, true, nil
		}
		if err != nil && err != redis.Nil {
			log.Printf("[IDEMPOTENCY] Cache lookup failed, falling back to database: %v", err)
		}
	}

	var transactionID string
	err := l.db.QueryRow(
		`SELECT id FROM ledger_transactions WHERE idempotency_key = $1`,
		scopedKey,
	).Scan(&transactionID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return transactionID, true, nil
}

// Remember caches a committed key -> transaction id mapping. Best effort; a
// cache failure never fails the movement.
func (l *IdempotencyLedger) Remember(ctx context.Context, scopedKey, transactionID string) {
	if l.redis == nil {
		return
	}
	if err := l.redis.Set(ctx, idempotencyCachePrefix+scopedKey, transactionID, idempotencyCacheTTL).Err(); err != nil {
		log.Printf("[IDEMPOTENCY] Failed to cache key %s: %v", scopedKey, err)
	}
}
