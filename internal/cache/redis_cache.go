package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tokopos/internal/domain"
)

type RedisSessionCache struct {
	client *redis.Client
}

func NewRedisSessionCache(addr string, password string, db int) *RedisSessionCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSessionCache{client: client}
}

func (c *RedisSessionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSessionCache) Close() error {
	return c.client.Close()
}

func sessionKey(cashierID string, key string) string {
	return "pos:session:" + cashierID + ":" + key
}

func (c *RedisSessionCache) Get(ctx context.Context, cashierID string, key string) (*domain.Session, bool, error) {
	val, err := c.client.Get(ctx, sessionKey(cashierID, key)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, false, err
	}
	return &session, true, nil
}

func (c *RedisSessionCache) Set(ctx context.Context, session domain.Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sessionKey(session.CashierID, session.Key), payload, ttl).Err()
}

func (c *RedisSessionCache) Delete(ctx context.Context, cashierID string, key string) error {
	return c.client.Del(ctx, sessionKey(cashierID, key)).Err()
}
