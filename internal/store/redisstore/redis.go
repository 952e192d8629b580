package redisstore

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/redis/go-redis/v9"

	"sphexbot/internal/store"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// Store implements store.Store on Redis. The go-redis client pools
// connections, so one Store serves concurrent dispatches.
type Store struct {
	client *redis.Client
}

// New connects and pings the server.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return &Store{client: client}, nil
}

// NewFromClient wraps an existing client; the Store takes ownership.
func NewFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) ListAppend(ctx context.Context, key string, value string) error {
	return store.Wrap("rpush", key, s.client.RPush(ctx, key, value).Err())
}

func (s *Store) ListDropFront(ctx context.Context, key string, n int) error {
	return store.Wrap("ltrim", key, s.client.LTrim(ctx, key, int64(n), -1).Err())
}

func (s *Store) ListRange(ctx context.Context, key string) ([]string, error) {
	values, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, store.Wrap("lrange", key, err)
	}
	return values, nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return store.Wrap("del", "", s.client.Del(ctx, keys...).Err())
}

func (s *Store) SetAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return store.Wrap("sadd", key, s.client.SAdd(ctx, key, toAny(members)...).Err())
}

func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, store.Wrap("smembers", key, err)
	}
	return members, nil
}

func (s *Store) HashSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	pairs := make([]any, 0, len(fields)*2)
	for field, value := range fields {
		pairs = append(pairs, field, value)
	}
	return store.Wrap("hset", key, s.client.HSet(ctx, key, pairs...).Err())
}

func (s *Store) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, store.Wrap("hgetall", key, err)
	}
	return fields, nil
}

func (s *Store) SortedAdd(ctx context.Context, key string, member string, score float64) error {
	return store.Wrap("zadd", key, s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err())
}

func (s *Store) SortedRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	members, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}).Result()
	if err != nil {
		return nil, store.Wrap("zrangebyscore", key, err)
	}
	return members, nil
}

func (s *Store) SortedRemove(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return store.Wrap("zrem", key, s.client.ZRem(ctx, key, toAny(members)...).Err())
}

func (s *Store) Close() error {
	return s.client.Close()
}

func formatScore(score float64) string {
	switch {
	case math.IsInf(score, 1):
		return "+inf"
	case math.IsInf(score, -1):
		return "-inf"
	}
	return strconv.FormatFloat(score, 'f', -1, 64)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
