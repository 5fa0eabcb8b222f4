package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript は自分が保持しているロックだけを削除する。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker はRedisのSET NX PXによるロック。複数インスタンス構成で使う。
type RedisLocker struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
	prefix string
}

// NewRedisLocker はRedisLockerを生成する。
func NewRedisLocker(client *redis.Client, logger *slog.Logger, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client: client,
		logger: logger,
		ttl:    ttl,
		prefix: "alluna:lock:",
	}
}

// NewRedisClient はアドレスからRedisクライアントを生成し、疎通を確認する。
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redisサーバーへの接続に失敗しました: %w", err)
	}
	return client, nil
}

// TryLock はロックの取得を試みる。値には保持者ごとのトークンを設定する。
func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("ロックの取得に失敗しました: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func() {
		// リクエストのコンテキストがキャンセル済みでも解放できるよう独立したコンテキストを使う
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil && err != redis.Nil {
			l.logger.Warn("ロックの解放に失敗しました",
				slog.String("key", redisKey),
				slog.String("error", err.Error()),
			)
		}
	}
	return unlock, true, nil
}
