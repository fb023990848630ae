package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache 可选的 Redis 响应缓存
// 地址未配置时整个缓存关闭；所有方法对 nil 接收者安全，按未命中处理
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New 建立 Redis 连接并做一次连通性检查
// addr 为空表示不启用缓存，返回 (nil, nil)
func New(addr, password string, ttl time.Duration) (*Cache, error) {
	if addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

// GetJSON 读取 key，命中时把 JSON 反序列化到 dest
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil {
		return false, nil
	}

	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON 把 value 序列化为 JSON 写入 Redis
func (c *Cache) SetJSON(ctx context.Context, key string, value any) error {
	if c == nil {
		return nil
	}

	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, b, c.ttl).Err()
}

// Close 关闭底层连接
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
