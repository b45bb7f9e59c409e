// Package events publishes tracking events on Redis pub/sub for the gateway
// to forward over SSE.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	ChannelApplicationAutoUpdated = "EVENT_APPLICATION_AUTO_UPDATED"
	ChannelEmailSyncCompleted     = "EVENT_EMAIL_SYNC_COMPLETED"
)

// Publisher delivers an event payload on a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// NewRedisClient creates and verifies a Redis client connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return rdb, nil
}

type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", channel, err)
	}
	if err := p.rdb.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// NopPublisher drops every event. Used when no Redis URL is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

// ApplicationAutoUpdated is published when reconciliation moves an application.
type ApplicationAutoUpdated struct {
	Type          string `json:"type"`
	ApplicationID string `json:"applicationId"`
	UserID        string `json:"userId"`
	From          string `json:"from"`
	To            string `json:"to"`
	Company       string `json:"company"`
	Source        string `json:"source"`
}

// EmailSyncCompleted is published after a user's sync pipeline finishes.
type EmailSyncCompleted struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	Scanned int    `json:"scanned"`
	Stored  int    `json:"stored"`
}
