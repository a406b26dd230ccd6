package session

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV is the durable key-value store selection sessions are persisted
// in so a visitor's selection and countdown anchor survive reloads.
// Get returns (nil, nil) when the key is absent.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryKV is the in-process KV used by tests and dev mode without Redis.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryKV returns an empty in-memory KV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, val []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(val))
	copy(cp, val)
	m.data[key] = cp
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// RedisKV persists sessions in Redis under a fixed prefix. Entries get
// a generous TTL as a safety net; session lifecycle (submission,
// cancellation, expiry) is what actually clears them.
type RedisKV struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisKV wraps an existing Redis client.
func NewRedisKV(client *redis.Client, ttl time.Duration) *RedisKV {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisKV{client: client, ttl: ttl}
}

func (r *RedisKV) key(k string) string { return "session:" + k }

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return v, err
}

func (r *RedisKV) Set(ctx context.Context, key string, val []byte) error {
	return r.client.Set(ctx, r.key(key), val, r.ttl).Err()
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}
