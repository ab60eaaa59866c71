package redisbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/redis/go-redis/v9"
)

var ErrNoSubscribers = errors.New("no subscriber received the notification")

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Messenger publishes notifications on the recipient's pub/sub channel.
// Pub/sub is fire-and-forget, so a publish nobody received counts as failed.
type Messenger struct {
	rdb    publisher
	prefix string
}

// Open initializes a Redis client and validates connectivity via PING.
func Open(ctx context.Context, addr string, pingTimeout time.Duration) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if pingTimeout <= 0 {
		pingTimeout = 2 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

func New(rdb publisher, prefix string) *Messenger {
	if prefix == "" {
		prefix = "yacall:calls"
	}
	return &Messenger{rdb: rdb, prefix: prefix}
}

func (m *Messenger) Send(ctx context.Context, msg domain.Notification, recipient domain.UserID) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	channel := m.Channel(recipient)
	n, err := m.rdb.Publish(ctx, channel, data).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNoSubscribers, channel)
	}
	return nil
}

func (m *Messenger) Channel(recipient domain.UserID) string {
	return m.prefix + ":" + recipient.String()
}
