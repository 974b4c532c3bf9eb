package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTimeout bounds each redis command.
const redisTimeout = 5 * time.Second

// Redis is a Store backed by a redis server.
type Redis struct {
	client *redis.Client // client is the redis connection pool
}

// NewRedis connects to the redis server at addr and pings it.
func NewRedis(addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s:\n%w", addr, err)
	}

	return &Redis{client: client}, nil
}

// Get retrieves the value for key.
func (s *Redis) Get(key []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	value, err := s.client.Get(ctx, string(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get:\n%w", err)
	}

	return value, nil
}

// Put stores a key-value pair without expiry.
func (s *Redis) Put(key, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := s.client.Set(ctx, string(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set:\n%w", err)
	}

	return nil
}

// Delete removes key.
func (s *Redis) Delete(key []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := s.client.Del(ctx, string(key)).Err(); err != nil {
		return fmt.Errorf("redis del:\n%w", err)
	}

	return nil
}

// Close closes the connection pool.
func (s *Redis) Close() error {
	return s.client.Close()
}
