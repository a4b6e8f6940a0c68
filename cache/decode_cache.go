package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ncmc/model"

	"github.com/go-redis/redis/v8"
)

const decodeResultKey = "ncmc:decode:%s" // Hash: meta / image / url / object

// Result 一个容器文件的解码结果，按内容哈希缓存
type Result struct {
	Meta   *model.Meta
	Image  string
	URL    string
	Object string // 媒体存储中的 key，用于校验对象仍然存在
}

// ResultCache 解码结果缓存，未命中时返回 (nil, nil)
type ResultCache interface {
	Get(ctx context.Context, hash string) (*Result, error)
	Set(ctx context.Context, hash string, res *Result) error
}

// RedisResultCache 基于 Redis Hash 的实现
type RedisResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisResultCache 创建解码结果缓存
func NewRedisResultCache(client *redis.Client, ttl time.Duration) *RedisResultCache {
	return &RedisResultCache{client: client, ttl: ttl}
}

// Get 读取缓存
func (c *RedisResultCache) Get(ctx context.Context, hash string) (*Result, error) {
	if c.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	fields, err := c.client.HGetAll(ctx, fmt.Sprintf(decodeResultKey, hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get decode result: %w", err)
	}
	if len(fields) == 0 || fields["url"] == "" {
		return nil, nil
	}

	res := &Result{
		Image:  fields["image"],
		URL:    fields["url"],
		Object: fields["object"],
	}
	if raw := fields["meta"]; raw != "" {
		var meta model.Meta
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cached meta: %w", err)
		}
		res.Meta = &meta
	}
	return res, nil
}

// Set 写入缓存并设置过期时间
func (c *RedisResultCache) Set(ctx context.Context, hash string, res *Result) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	values := map[string]interface{}{
		"image":  res.Image,
		"url":    res.URL,
		"object": res.Object,
	}
	if res.Meta != nil {
		data, err := json.Marshal(res.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal meta: %w", err)
		}
		values["meta"] = data
	}

	key := fmt.Sprintf(decodeResultKey, hash)
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, values)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set decode result: %w", err)
	}
	return nil
}
