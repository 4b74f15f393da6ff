package store

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements Store on a shared Redis instance so multiple gateway
// workers can share one logical admission capacity and one session space.
// Leases live in a sorted set scored by their expiry (unix nanos); the
// acquire path is a Lua script so reap-count-add happens atomically.
type Redis struct {
	client *redis.Client
}

// acquireScript reaps expired members, then admits the new lease iff the
// live cardinality is below capacity.
// KEYS[1] lease set; ARGV: now, capacity, deadline, leaseID.
var acquireScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) < tonumber(ARGV[2]) then
  redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
  return 1
end
return 0
`)

// NewRedis connects to the Redis instance described by url
// (e.g. redis://localhost:6379/0).
func NewRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Redis{client: redis.NewClient(opts)}, nil
}

func (r *Redis) GetSession(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *Redis) PutSession(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, val, ttl).Err()
}

func (r *Redis) AcquireLease(ctx context.Context, key, leaseID string, capacity int, ttl time.Duration) (bool, error) {
	now := time.Now()
	res, err := acquireScript.Run(ctx, r.client, []string{key},
		now.UnixNano(), capacity, now.Add(ttl).UnixNano(), leaseID).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (r *Redis) ReleaseLease(ctx context.Context, key, leaseID string) (bool, error) {
	n, err := r.client.ZRem(ctx, key, leaseID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) ReapExpired(ctx context.Context, key string) (int, error) {
	n, err := r.client.ZRemRangeByScore(ctx, key, "-inf", nowScore()).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *Redis) CountLeases(ctx context.Context, key string) (int, error) {
	// Count only live leases; expired members may linger until reaped.
	n, err := r.client.ZCount(ctx, key, nowScore(), "+inf").Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func nowScore() string {
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error { return r.client.Close() }
