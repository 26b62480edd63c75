// cache предоставляет эфемерный TTL key-value кэш поверх Redis.
//
// Кэш используется сервисным слоем для троттлинга повторных попыток
// register/login и для мемоизации результатов проверки access-токенов.
// Гарантий долговечности нет: семантика last-writer-wins, межключевая
// атомарность не требуется.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache — минимальный контракт эфемерного кэша.
type Cache interface {
	// Get возвращает значение и признак его наличия в кэше.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set сохраняет значение с TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete удаляет ключ; отсутствие ключа ошибкой не считается.
	Delete(ctx context.Context, key string) error
	// Close закрывает клиент.
	Close() error
}

type redisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется "auth:".
func NewRedisCache(redisURL, prefix string) (Cache, error) {
	if prefix == "" {
		prefix = "auth:"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return &redisCache{rdb: rdb, prefix: prefix}, nil
}

// NewRedisCacheFromClient оборачивает уже созданный клиент (для тестов с miniredis).
func NewRedisCacheFromClient(rdb *redis.Client, prefix string) Cache {
	if prefix == "" {
		prefix = "auth:"
	}

	return &redisCache{rdb: rdb, prefix: prefix}
}

func (c *redisCache) key(k string) string { return c.prefix + k }

func (c *redisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, c.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}

		return "", false, err
	}

	return val, true, nil
}

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.key(key)).Err()
}

func (c *redisCache) Close() error { return c.rdb.Close() }
