package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore はRedisの文字列キーに保存するStore。
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore は既存のクライアントからRedisStoreを生成する。
// prefixは全キーの先頭に付与される。
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisStoreWithURL はredis://形式のURLからRedisStoreを生成する。
func NewRedisStoreWithURL(url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URLの解析に失敗: %w", err)
	}
	return NewRedisStore(redis.NewClient(opts), prefix), nil
}

// Close はRedis接続を閉じる。
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Get はキーに対応する値を返す。
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis GET %s: %w", key, err)
	}
	return value, true, nil
}

// Set はキーに値を保存する。有効期限は設定しない。
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", key, err)
	}
	return nil
}
