package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/estore-backend/pkg/redis"
)

// ReplayGuard remembers webhook deliveries by body digest so a gateway retry of
// an already processed notification short-circuits.
type ReplayGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewReplayGuard(store redis.IdempotencyStore, ttl time.Duration) (*ReplayGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &ReplayGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark reports whether body was already seen for the gateway scope and
// marks it otherwise.
func (g *ReplayGuard) CheckAndMark(ctx context.Context, scope string, body []byte) (bool, error) {
	set, err := g.store.SetNX(ctx, g.key(scope, body), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set replay key: %w", err)
	}
	return !set, nil
}

// Forget releases the mark so a failed delivery can be retried.
func (g *ReplayGuard) Forget(ctx context.Context, scope string, body []byte) error {
	return g.store.Del(ctx, g.key(scope, body))
}

func (g *ReplayGuard) key(scope string, body []byte) string {
	sum := sha256.Sum256(body)
	return g.store.IdempotencyKey("webhook:"+scope, hex.EncodeToString(sum[:]))
}
