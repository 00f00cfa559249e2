// Package relay mirrors slide commands to Redis so observers outside this
// process can follow the presentation.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/voiceforth/config"
)

// Publisher is the subset of *redis.Client the mirror uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisMirror publishes each slide command on a Pub/Sub channel.
type RedisMirror struct {
	client  Publisher
	channel string
	timeout time.Duration
}

func NewRedisMirror(client Publisher, channel string, timeout time.Duration) *RedisMirror {
	return &RedisMirror{client: client, channel: channel, timeout: timeout}
}

// Mirror publishes cmd. Having no subscribers is not an error.
func (r *RedisMirror) Mirror(ctx context.Context, cmd string) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	if err := r.client.Publish(ctx, r.channel, cmd).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", r.channel, err)
	}
	return nil
}

// Conn dials Redis and checks it answers PING.
func Conn(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		DialTimeout: cfg.Timeout,
		Password:    cfg.Password,
		DB:          cfg.DB,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Host, cfg.Port, err)
	}
	if pong != "PONG" {
		client.Close()
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}
	return client, nil
}
