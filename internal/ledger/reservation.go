package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReservationStore maps an idempotency key to the submission id already in
// flight for it, so a retried certification reuses the prior submission
// instead of writing the ledger twice.
type ReservationStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, submissionID string) error
	Delete(ctx context.Context, key string) error
}

type MemoryReservations struct {
	mu   sync.Mutex
	keys map[string]string
}

func NewMemoryReservations() *MemoryReservations {
	return &MemoryReservations{keys: make(map[string]string)}
}

func (r *MemoryReservations) Get(_ context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.keys[key]
	return id, ok, nil
}

func (r *MemoryReservations) Put(_ context.Context, key, submissionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[key] = submissionID
	return nil
}

func (r *MemoryReservations) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, key)
	return nil
}

// RedisReservations shares idempotency keys across instances. Keys expire
// after the TTL so an abandoned in-flight submission cannot block a property
// forever.
type RedisReservations struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisReservations(client *redis.Client, ttl time.Duration) *RedisReservations {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisReservations{client: client, ttl: ttl}
}

func redisKey(key string) string {
	return "terrier:ledger:reservation:" + key
}

func (r *RedisReservations) Get(ctx context.Context, key string) (string, bool, error) {
	id, err := r.client.Get(ctx, redisKey(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get reservation: %w", err)
	}
	return id, true, nil
}

func (r *RedisReservations) Put(ctx context.Context, key, submissionID string) error {
	if err := r.client.Set(ctx, redisKey(key), submissionID, r.ttl).Err(); err != nil {
		return fmt.Errorf("put reservation: %w", err)
	}
	return nil
}

func (r *RedisReservations) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return nil
}
