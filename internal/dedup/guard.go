// Package dedup guards against re-dispatching envelopes whose processing
// already finished. The queueing transport is at-least-once, so a message
// can arrive again after its delivery completed; the guard remembers ids
// that reached a terminal status and lets the worker skip those. Ids are
// marked only after the terminal status write: a redelivery caused by a
// crash mid-attempt is never suppressed, it is processed again. The guard
// is best effort in the other direction too: when redis is unavailable it
// fails open and the envelope is processed again, which the status store
// tolerates as a last-writer-wins overwrite.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultSeenTTL = 24 * time.Hour

// Guard remembers message ids whose dispatch reached a terminal status.
// AlreadyDelivered must never report true for an id that was not marked,
// so an attempt that died before its terminal write is retried in full.
type Guard interface {
	AlreadyDelivered(ctx context.Context, messageID string) (bool, error)
	MarkDelivered(ctx context.Context, messageID string) error
}

var _ Guard = (*RedisGuard)(nil)

// RedisGuard stores delivered ids under a TTL.
type RedisGuard struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewRedisGuard(client *goredis.Client) (*RedisGuard, error) {
	return newRedisGuard(client, defaultSeenTTL)
}

func newRedisGuard(client *goredis.Client, ttl time.Duration) (*RedisGuard, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultSeenTTL
	}

	return &RedisGuard{
		client: client,
		ttl:    ttl,
	}, nil
}

func (g *RedisGuard) AlreadyDelivered(ctx context.Context, messageID string) (bool, error) {
	if g == nil || g.client == nil {
		return false, fmt.Errorf("dedup guard is not initialized")
	}

	id := strings.TrimSpace(messageID)
	if id == "" {
		return false, fmt.Errorf("message id is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	n, err := g.client.Exists(ctx, seenKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check delivery mark: %w", err)
	}

	return n > 0, nil
}

// MarkDelivered is idempotent: re-marking an id refreshes its TTL.
func (g *RedisGuard) MarkDelivered(ctx context.Context, messageID string) error {
	if g == nil || g.client == nil {
		return fmt.Errorf("dedup guard is not initialized")
	}

	id := strings.TrimSpace(messageID)
	if id == "" {
		return fmt.Errorf("message id is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if err := g.client.Set(ctx, seenKey(id), 1, g.ttl).Err(); err != nil {
		return fmt.Errorf("failed to mark delivery: %w", err)
	}
	return nil
}

func seenKey(id string) string {
	return fmt.Sprintf("dedup:%s", id)
}
