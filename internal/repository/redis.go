package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"frontdesk/internal/config"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLockRepository holds per-room locks shared by every process talking to the same Redis.
type RedisLockRepository struct {
	client *redis.Client
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	client := redis.NewClient(options)

	return client
}

func NewRedisLockRepository(client *redis.Client) *RedisLockRepository {
	return &RedisLockRepository{client: client}
}

func (r *RedisLockRepository) AcquireRoomLock(ctx context.Context, roomID int64, token string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return false, errors.New("redis client is nil")
	}
	ok, err := r.client.SetNX(ctx, roomLockKey(roomID), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire room lock: %w", err)
	}
	return ok, nil
}

func (r *RedisLockRepository) ReleaseRoomLock(ctx context.Context, roomID int64, token string) error {
	if r.client == nil {
		return errors.New("redis client is nil")
	}
	if err := releaseScript.Run(ctx, r.client, []string{roomLockKey(roomID)}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release room lock: %w", err)
	}
	return nil
}

func roomLockKey(roomID int64) string {
	return fmt.Sprintf("lock:room:%d", roomID)
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
