package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisBackend implementa Backend usando Redis.
// Pensado para correr el engine como daemon compartido por varios procesos
// de UI; para un cliente embebido preferir bolt o fs.
type redisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedis crea un backend Redis según cfg.Redis.
func NewRedis(cfg Config) (*redisBackend, error) {
	addr := cfg.Redis.Addr
	if addr == "" {
		addr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Verificar conexión
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("storage: redis ping failed: %w", err)
	}

	return &redisBackend{client: rdb, prefix: cfg.Redis.Prefix}, nil
}

func (b *redisBackend) key(k string) string {
	if b.prefix == "" {
		return k
	}
	return b.prefix + ":" + k
}

func (b *redisBackend) strip(k string) string {
	if b.prefix == "" {
		return k
	}
	return strings.TrimPrefix(k, b.prefix+":")
}

func (b *redisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := b.client.Get(ctx, b.key(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (b *redisBackend) Set(ctx context.Context, key string, value []byte) error {
	// Sin TTL de Redis: la expiración la maneja la capa de cache, que
	// necesita poder leer entries vencidas (stale fallback).
	return b.client.Set(ctx, b.key(key), value, 0).Err()
}

func (b *redisBackend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, b.key(key)).Err()
}

func (b *redisBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, b.key(prefix)+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, b.strip(iter.Val()))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *redisBackend) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = b.key(k)
	}
	return b.client.Del(ctx, full...).Err()
}

func (b *redisBackend) Close() error { return b.client.Close() }
