package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by a Store when no record exists for an ID.
var ErrNotFound = errors.New("session not found")

// Store persists session records keyed by the opaque session ID.
// Implementations must tolerate last-writer-wins on concurrent Set calls.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Set(ctx context.Context, id string, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// redisKeyPrefix is the Redis key prefix for session records.
const redisKeyPrefix = "hrsession:"

// redisStore keeps sessions as JSON values with a TTL equal to the absolute
// lifetime, so abandoned records age out on their own.
type redisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a session store backed by the given Redis client.
func NewRedisStore(rdb *redis.Client) Store {
	return &redisStore{redis: rdb}
}

// Get reads and decodes a session record.
func (s *redisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.redis.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session from Redis: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	sess.ID = id
	return &sess, nil
}

// Set encodes and writes a session record.
func (s *redisStore) Set(ctx context.Context, id string, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := s.redis.Set(ctx, redisKeyPrefix+id, data, ttl).Err(); err != nil {
		return fmt.Errorf("storing session in Redis: %w", err)
	}
	return nil
}

// Delete removes a session record. Deleting a missing key is not an error.
func (s *redisStore) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("deleting session from Redis: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store for tests and single-node development.
// TTLs are ignored; the lifecycle timers decide expiry.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]byte
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

// Get returns a copy of the stored record.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	data, ok := m.records[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	sess.ID = id
	return &sess, nil
}

// Set stores a snapshot of the record.
func (m *MemoryStore) Set(_ context.Context, id string, sess *Session, _ time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	m.mu.Lock()
	m.records[id] = data
	m.mu.Unlock()
	return nil
}

// Delete removes a record if present.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.records, id)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
