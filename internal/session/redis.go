package session

import (
	"context"
	"errors"

	redis "github.com/redis/go-redis/v9"
)

// compare-and-delete so that only one of several concurrent 401 handlers
// observes the clear.
var invalidateScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis shares the token between dashboard replicas.
type Redis struct {
	rdb *redis.Client
	key string
}

// NewRedis parses a redis:// URL. prefix namespaces the key, e.g. a
// dashboard user id; empty means the bare TokenKey.
func NewRedis(url, prefix string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisClient(redis.NewClient(opt), prefix), nil
}

func NewRedisClient(rdb *redis.Client, prefix string) *Redis {
	key := TokenKey
	if prefix != "" {
		key = prefix + ":" + TokenKey
	}
	return &Redis{rdb: rdb, key: key}
}

func (r *Redis) Token(ctx context.Context) (string, error) {
	tok, err := r.rdb.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return tok, err
}

func (r *Redis) SetToken(ctx context.Context, token string) error {
	return r.rdb.Set(ctx, r.key, token, 0).Err()
}

func (r *Redis) Clear(ctx context.Context) error {
	return r.rdb.Del(ctx, r.key).Err()
}

func (r *Redis) Invalidate(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	n, err := invalidateScript.Run(ctx, r.rdb, []string{r.key}, token).Int()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) Close() error { return r.rdb.Close() }
