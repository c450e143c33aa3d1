// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

const DefaultRedisChannel = "ontograph.events"

// RedisConfig configures the Redis publisher.
type RedisConfig struct {
	Addr    string `mapstructure:"redis_addr"`
	Channel string `mapstructure:"redis_channel"`
}

type redisClient interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *goredis.PubSub
	Close() error
}

// RedisPublisher publishes messages as JSON on a Redis pub/sub channel.
type RedisPublisher struct {
	rdb     redisClient
	channel string
	logger  *slog.Logger
}

// NewRedisPublisher connects to cfg.Addr and verifies it with a PING.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisPublisher, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, sigilerr.New(sigilerr.CodeConfigValidateInvalidValue, "broadcast: redis address is required")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, sigilerr.Wrapf(err, sigilerr.CodeBroadcastPublishFailure, "broadcast: redis ping %s", addr)
	}
	return newRedisPublisher(rdb, cfg.Channel, logger), nil
}

func newRedisPublisher(rdb redisClient, channel string, logger *slog.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{rdb: rdb, channel: channel, logger: logger.With("component", "redis_broadcast")}
}

func (p *RedisPublisher) Channel() string { return p.channel }

func (p *RedisPublisher) Publish(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeBroadcastPublishFailure, "broadcast: encoding message")
	}
	if err := p.rdb.Publish(ctx, p.channel, raw).Err(); err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeBroadcastPublishFailure, "broadcast: redis publish",
			sigilerr.FieldWorkspaceID(msg.WorkspaceID), sigilerr.FieldSystemID(msg.SystemID))
	}
	return nil
}

// Forward subscribes to the channel and passes every decoded message to
// onMsg until ctx is cancelled. Malformed payloads are logged and skipped.
func (p *RedisPublisher) Forward(ctx context.Context, onMsg func(Message)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return sigilerr.Wrap(err, sigilerr.CodeBroadcastPublishFailure, "broadcast: redis subscribe")
	}

	go func() {
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				msg, err := DecodeMessage(m.Payload)
				if err != nil {
					p.logger.Warn("bad redis broadcast payload", "error", err)
					continue
				}
				onMsg(msg)
			}
		}
	}()
	return nil
}

func (p *RedisPublisher) Close() error { return p.rdb.Close() }

// DecodeMessage parses a JSON payload produced by Publish.
func DecodeMessage(payload string) (Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return Message{}, sigilerr.Wrap(err, sigilerr.CodeBroadcastPublishFailure, "broadcast: decoding message")
	}
	return msg, nil
}
