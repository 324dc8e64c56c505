package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPersister はクレデンシャルをRedisに保存する。
// キーは "session:<name>" 形式で、TTLが0より大きい場合は有効期限を設定する。
type RedisPersister struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisPersister はRedis URL（例: "redis://localhost:6379/0"）に接続するRedisPersisterを生成する。
func NewRedisPersister(ctx context.Context, redisURL, name string, ttl time.Duration) (*RedisPersister, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("Redis URLの解析に失敗: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redisへの接続に失敗: %w", err)
	}

	return &RedisPersister{
		client: client,
		key:    fmt.Sprintf("session:%s", name),
		ttl:    ttl,
	}, nil
}

// Load はRedisからクレデンシャルを読み込む。
func (p *RedisPersister) Load(ctx context.Context) (string, error) {
	token, err := p.client.Get(ctx, p.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotPersisted
		}
		return "", fmt.Errorf("Redisからの読み込みに失敗: %w", err)
	}
	return token, nil
}

// Save はクレデンシャルをRedisに書き込む。
func (p *RedisPersister) Save(ctx context.Context, token string) error {
	if err := p.client.Set(ctx, p.key, token, p.ttl).Err(); err != nil {
		return fmt.Errorf("Redisへの書き込みに失敗: %w", err)
	}
	return nil
}

// Delete はRedisからクレデンシャルを削除する。
func (p *RedisPersister) Delete(ctx context.Context) error {
	if err := p.client.Del(ctx, p.key).Err(); err != nil {
		return fmt.Errorf("Redisからの削除に失敗: %w", err)
	}
	return nil
}

// Close はRedis接続を閉じる。
func (p *RedisPersister) Close() error {
	return p.client.Close()
}
