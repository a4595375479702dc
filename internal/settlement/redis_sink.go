package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSinkConfig 描述 Redis 投递目标。
type RedisSinkConfig struct {
	Address  string
	Password string
	DB       int
	Key      string
}

// RedisSink 将结算报文以 JSON 形式 LPUSH 到 Redis list，下游通过 BRPOP 消费。
type RedisSink struct {
	client *redis.Client
	key    string
}

// NewRedisSink 创建 Redis 投递实例并检查连通性。
func NewRedisSink(ctx context.Context, cfg RedisSinkConfig) (*RedisSink, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	key := cfg.Key
	if key == "" {
		key = "aegis:settlement:pacs008"
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
	return &RedisSink{client: client, key: key}, nil
}

// Publish 实现 Sink。
func (s *RedisSink) Publish(ctx context.Context, advice Advice) error {
	payload, err := json.Marshal(advice)
	if err != nil {
		return fmt.Errorf("编码结算报文失败: %w", err)
	}
	if err := s.client.LPush(ctx, s.key, payload).Err(); err != nil {
		return fmt.Errorf("Redis 投递结算报文失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (s *RedisSink) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
