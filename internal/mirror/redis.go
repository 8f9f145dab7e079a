package mirror

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures a remote slot.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisSlot keeps the mirror blob under one Redis key.
type RedisSlot struct {
	client redis.UniversalClient
	key    string
}

// NewRedisSlot connects to cfg.Addr and verifies the connection.
func NewRedisSlot(ctx context.Context, cfg RedisConfig) (*RedisSlot, error) {
	if cfg.Key == "" {
		return nil, errors.New("mirror key is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect mirror redis %s: %w", cfg.Addr, err)
	}
	return &RedisSlot{client: client, key: cfg.Key}, nil
}

func (s *RedisSlot) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSlotEmpty
	}
	return data, err
}

func (s *RedisSlot) Store(ctx context.Context, data []byte) error {
	return s.client.Set(ctx, s.key, data, 0).Err()
}

func (s *RedisSlot) Discard(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

func (s *RedisSlot) Close() error {
	return s.client.Close()
}
