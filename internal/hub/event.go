// Package hub delivers message status events to connected websocket clients.
// Workers publish events to a Redis channel; every API instance subscribes
// and forwards each event to the sockets of the user it belongs to.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chatmind/backend/internal/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventsChannel is the Redis Pub/Sub channel carrying status events.
const EventsChannel = "chat:events"

// Event types.
const (
	EventMessageCompleted = "message.completed"
	EventMessageFailed    = "message.failed"
)

// Event is one status notification for a submitted message.
type Event struct {
	Type       string     `json:"type"`
	UserID     uuid.UUID  `json:"user_id"`
	ChatroomID uuid.UUID  `json:"chatroom_id"`
	MessageID  uuid.UUID  `json:"message_id"`
	ReplyID    *uuid.UUID `json:"reply_id,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	At         time.Time  `json:"at"`
}

// Publisher pushes events onto the Redis channel. It is the only piece of
// this package the worker process uses.
type Publisher struct {
	rdb *redis.Client
	log *logger.Logger
}

// NewPublisher Constructor
func NewPublisher(rdb *redis.Client, log *logger.Logger) *Publisher {
	return &Publisher{rdb: rdb, log: log}
}

// Publish sends one event. Delivery is fire-and-forget: a missed event only
// delays the client until its next status poll.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, EventsChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
