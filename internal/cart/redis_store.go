package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultSessionTTL = 30 * 24 * time.Hour

// RedisStore keeps guest carts as JSON strings with a sliding TTL.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// RedisOption customises a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the "cart:" key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL overrides how long an idle cart survives.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewRedisStore builds a store over client.
func NewRedisStore(client redis.Cmdable, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("cart: redis client is required")
	}
	s := &RedisStore{client: client, prefix: "cart:", ttl: defaultSessionTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + key
}

func (s *RedisStore) Load(ctx context.Context, key string) (State, error) {
	key, err := normaliseKey(key)
	if err != nil {
		return State{}, err
	}
	raw, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("cart: redis get %s: %w", key, err)
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, fmt.Errorf("cart: decode %s: %w", key, err)
	}
	return state, nil
}

// Save writes state and refreshes the TTL. An empty state deletes the key.
func (s *RedisStore) Save(ctx context.Context, key string, state State) error {
	key, err := normaliseKey(key)
	if err != nil {
		return err
	}
	if state.IsEmpty() {
		return s.Delete(ctx, key)
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("cart: encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.redisKey(key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("cart: redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	key, err := normaliseKey(key)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("cart: redis del %s: %w", key, err)
	}
	return nil
}
