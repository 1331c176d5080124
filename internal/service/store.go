package service

import (
	baseredis "Beacon/internal/pkg/redis"
	"context"
	"time"
)

// EphemeralStore 易失状态与广播总线的最小抽象。
// 生产实现落在 Redis 上；测试注入内存实现。
type EphemeralStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	SAdd(ctx context.Context, key, member string) error
	SRem(ctx context.Context, key, member string) error
	SIsMember(ctx context.Context, key, member string) (bool, error)
	Publish(ctx context.Context, channel string, payload []byte) error
}

type redisStore struct{}

// NewRedisStore 基于全局 Redis 客户端的 EphemeralStore 实现
func NewRedisStore() EphemeralStore {
	return &redisStore{}
}

func (s *redisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return baseredis.SetWithExpiration(ctx, key, value, ttl)
}

func (s *redisStore) Get(ctx context.Context, key string) (string, error) {
	return baseredis.GetValue(ctx, key)
}

func (s *redisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return baseredis.Expire(ctx, key, ttl)
}

func (s *redisStore) Del(ctx context.Context, key string) error {
	return baseredis.DeleteKey(ctx, key)
}

func (s *redisStore) SAdd(ctx context.Context, key, member string) error {
	return baseredis.SAdd(ctx, key, member)
}

func (s *redisStore) SRem(ctx context.Context, key, member string) error {
	return baseredis.SRem(ctx, key, member)
}

func (s *redisStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return baseredis.SIsMember(ctx, key, member)
}

func (s *redisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	return baseredis.Publish(ctx, channel, payload)
}
