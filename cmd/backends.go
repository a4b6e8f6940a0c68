package cmd

import (
	"context"

	"ncmc/cache"
	"ncmc/logger"
	"ncmc/storage"
)

// openBackends 按配置创建媒体存储和可选的 Redis 结果缓存
func openBackends(ctx context.Context) (storage.Sink, cache.ResultCache, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sink, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := func() {}
	if !cfg.RedisEnabled {
		return sink, nil, cleanup, nil
	}

	client, err := cache.ConnectRedis(ctx, cfg)
	if err != nil {
		// 缓存只是加速，连不上就不用
		logger.Warn("Redis 不可用，禁用解码缓存", logger.ErrorField(err))
		return sink, nil, cleanup, nil
	}
	logger.Info("解码结果缓存已启用",
		logger.String("redis", cfg.RedisHost+":"+cfg.RedisPort),
		logger.Duration("ttl", cfg.CacheTTL))
	return sink, cache.NewRedisResultCache(client, cfg.CacheTTL), func() { client.Close() }, nil
}
