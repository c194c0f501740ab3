package event

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix is prepended to the event type to form the pub/sub channel
const DefaultChannelPrefix = "ledger.events."

// RedisConfig holds connection parameters for the Redis publisher
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	TLSEnabled    bool
	ChannelPrefix string
}

// RedisPublisher publishes events as JSON on Redis pub/sub, one channel per event type
type RedisPublisher struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisPublisher connects to Redis and verifies connectivity
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return newRedisPublisher(rdb, cfg.ChannelPrefix), nil
}

func newRedisPublisher(rdb *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher{rdb: rdb, prefix: prefix}
}

// Channel returns the pub/sub channel for an event type
func (p *RedisPublisher) Channel(t Type) string {
	return p.prefix + string(t)
}

// Publish implements Publisher
func (p *RedisPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", evt.Type, err)
	}
	channel := p.Channel(evt.Type)
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Close closes the underlying client
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
