package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// Connect parses redisURL, opens a client and checks it with PING.
// An empty URL means Redis is not configured: it returns a nil client.
func Connect(ctx context.Context, redisURL string, log *zap.Logger) (*redis.Client, error) {
	if redisURL == "" {
		return nil, nil
	}
	if log == nil {
		log = zap.NewNop()
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test the connection
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	log.Info("connected to redis", zap.String("addr", opts.Addr))
	return client, nil
}

// Close closes the client if there is one.
func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
