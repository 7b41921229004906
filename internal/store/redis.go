package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/freedomchat/backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// Redis wraps the go-redis client. It is the only persistence layer in the
// system; every entity lives here as a string, list, set, sorted set or hash.
type Redis struct {
	Client *redis.Client
}

// New initializes the Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func New(cfg *config.Config) *Redis {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &Redis{Client: redis.NewClient(opts)}
}

// NewFromClient wraps an existing client. Used by tests with miniredis.
func NewFromClient(client *redis.Client) *Redis {
	return &Redis{Client: client}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

func (r *Redis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return r.Client.Set(ctx, key, value, ttl).Err()
}

// Get returns the value for key, or ok=false when the key does not exist.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *Redis) Del(ctx context.Context, keys ...string) error {
	return r.Client.Del(ctx, keys...).Err()
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.Client.Exists(ctx, key).Result()
	return n > 0, err
}

// SetJSON stores v as a JSON string under key. A zero ttl means no expiry.
func (r *Redis) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return r.Client.Set(ctx, key, b, ttl).Err()
}

// GetJSON decodes the JSON record at key into dest. Returns ok=false when the
// key is absent; a record that exists but does not decode is an error, not a
// miss (deserialize-or-reject at the store boundary).
func (r *Redis) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	val, err := r.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// GetDelJSON atomically takes the JSON record at key: it is decoded into dest
// and removed in one GETDEL. Of any number of concurrent callers exactly one
// sees ok=true; the rest see a miss.
func (r *Redis) GetDelJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	val, err := r.Client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
