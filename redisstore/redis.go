package redisstore

import (
	"context"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"
)

// Connect opens a client for addr and pings it before handing it back.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	log.Printf("connected to redis at %s", addr)
	return client, nil
}
