package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述共享限流计数器所在的 Redis。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// RedisLimiter 使用 Redis 固定窗口计数，使多个实例共享同一限额。
// 每秒窗口内允许 limit 次请求。
type RedisLimiter struct {
	client redis.Cmdable
	closer func() error
	prefix string
	limit  int64
	now    func() time.Time
}

// NewRedisLimiter 创建 Redis 限流器并检查连通性。
func NewRedisLimiter(ctx context.Context, cfg RedisConfig, rps float64, burst int) (*RedisLimiter, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	l := newRedisLimiter(client, cfg.Prefix, rps, burst)
	l.closer = client.Close
	return l, nil
}

func newRedisLimiter(client redis.Cmdable, prefix string, rps float64, burst int) *RedisLimiter {
	if prefix == "" {
		prefix = "aegis:ratelimit"
	}
	limit := int64(math.Ceil(rps))
	if int64(burst) > limit {
		limit = int64(burst)
	}
	if limit <= 0 {
		limit = 1
	}
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, now: time.Now}
}

// Allow 实现 Limiter。
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	window := l.now().Unix()
	redisKey := l.prefix + ":" + key + ":" + strconv.FormatInt(window, 10)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, 2*time.Second)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("Redis 限流计数失败: %w", err)
	}
	return incr.Val() <= l.limit, nil
}

// Close 关闭 Redis 连接。
func (l *RedisLimiter) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer()
}
