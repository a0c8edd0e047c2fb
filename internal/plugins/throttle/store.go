package throttle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists failure windows. Update must be an atomic read-modify-write
// per key: concurrent updates to the same key never lose an attempt.
type Store interface {
	// Load returns the window for key, or an empty window if none exists.
	Load(ctx context.Context, key string) (*Window, error)

	// Update applies fn to the current window and saves the result. An empty
	// window after fn removes the record. ttl bounds how long the record may
	// outlive its last write.
	Update(ctx context.Context, key string, ttl time.Duration, fn func(*Window)) error

	// Delete removes the window. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Appender is implemented by stores that can record one failure in a single
// atomic step without a read-modify-write round trip. The service prefers it
// over Update when recording failures.
type Appender interface {
	Append(ctx context.Context, key string, ts, cutoff int64, keep int, ttl time.Duration) error
}

// --- Redis ---

const redisKeyPrefix = "hrthrottle:"

// Backoff bounds between optimistic transaction retries.
const (
	redisRetryBase = time.Millisecond
	redisRetryMax  = 50 * time.Millisecond
)

// appendScript appends ARGV[1] to the window at KEYS[1], drops entries at or
// before ARGV[2], keeps the newest ARGV[3] and resets the TTL to ARGV[4]
// milliseconds. It runs as one server-side step, so concurrent failures for
// the same identifier are all counted. The value stays the JSON shape
// decodeWindow reads.
var appendScript = redis.NewScript(`
local attempts = {}
local raw = redis.call('GET', KEYS[1])
if raw then
  local decoded = cjson.decode(raw)
  if type(decoded) == 'table' and type(decoded.attempts) == 'table' then
    attempts = decoded.attempts
  end
end

local now = tonumber(ARGV[1])
local cutoff = tonumber(ARGV[2])
local keep = tonumber(ARGV[3])

local kept = {}
for _, ts in ipairs(attempts) do
  if tonumber(ts) > cutoff then
    kept[#kept + 1] = tonumber(ts)
  end
end
kept[#kept + 1] = now

local first = 1
if keep > 0 and #kept > keep then
  first = #kept - keep + 1
end
local out = {}
for i = first, #kept do
  out[#out + 1] = kept[i]
end

redis.call('SET', KEYS[1], cjson.encode({attempts = out}), 'PX', ARGV[4])
return #out
`)

// RedisStore keeps each window as a JSON string with a TTL of one window
// length. Appends run as a Lua script; generic updates use WATCH/MULTI and
// retry until they commit or the context ends.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a throttle store backed by Redis.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{redis: rdb}
}

// Load reads the window for key.
func (s *RedisStore) Load(ctx context.Context, key string) (*Window, error) {
	data, err := s.redis.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return &Window{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading throttle window: %w", err)
	}
	return decodeWindow(data)
}

// Append records one failure atomically on the server.
func (s *RedisStore) Append(ctx context.Context, key string, ts, cutoff int64, keep int, ttl time.Duration) error {
	err := appendScript.Run(ctx, s.redis, []string{redisKeyPrefix + key},
		ts, cutoff, keep, ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("appending throttle attempt: %w", err)
	}
	return nil
}

// Update performs an optimistic read-modify-write. When another client
// touches the key between WATCH and EXEC the transaction is retried with a
// jittered backoff; it only gives up when ctx is done.
func (s *RedisStore) Update(ctx context.Context, key string, ttl time.Duration, fn func(*Window)) error {
	rkey := redisKeyPrefix + key

	for attempt := 0; ; attempt++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			w := &Window{}
			data, err := tx.Get(ctx, rkey).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				if w, err = decodeWindow(data); err != nil {
					return err
				}
			}

			fn(w)

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if len(w.Attempts) == 0 {
					pipe.Del(ctx, rkey)
					return nil
				}
				encoded, err := json.Marshal(w)
				if err != nil {
					return err
				}
				pipe.Set(ctx, rkey, encoded, ttl)
				return nil
			})
			return err
		}, rkey)

		if !errors.Is(err, redis.TxFailedErr) {
			if err != nil {
				return fmt.Errorf("updating throttle window: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("updating throttle window: %w", ctx.Err())
		case <-time.After(retryDelay(attempt)):
		}
	}
}

// retryDelay grows linearly with attempt up to redisRetryMax, plus up to
// the same amount of jitter so racing writers spread out.
func retryDelay(attempt int) time.Duration {
	d := redisRetryBase * time.Duration(attempt+1)
	if d > redisRetryMax {
		d = redisRetryMax
	}
	return d + rand.N(d)
}

// Delete removes the window for key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("deleting throttle window: %w", err)
	}
	return nil
}

// --- Memory ---

// MemoryStore keeps windows in process memory. Used in tests and
// single-instance development.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string][]int64
}

// NewMemoryStore creates an empty in-memory throttle store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string][]int64)}
}

// Load returns a copy of the window for key.
func (s *MemoryStore) Load(_ context.Context, key string) (*Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Window{Attempts: append([]int64(nil), s.windows[key]...)}, nil
}

// Update applies fn under the store lock.
func (s *MemoryStore) Update(_ context.Context, key string, _ time.Duration, fn func(*Window)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := &Window{Attempts: append([]int64(nil), s.windows[key]...)}
	fn(w)
	if len(w.Attempts) == 0 {
		delete(s.windows, key)
		return nil
	}
	s.windows[key] = w.Attempts
	return nil
}

// Delete removes the window for key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

func decodeWindow(data []byte) (*Window, error) {
	var w Window
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding throttle window: %w", err)
	}
	return &w, nil
}
