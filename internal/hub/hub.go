package hub

import (
	"context"
	"encoding/json"

	"chatmind/backend/internal/logger"
	"chatmind/backend/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// Client is the interface for one delivery target, usually a websocket
// connection. It abstracts the underlying transport so the hub can manage
// every connection type uniformly.
type Client interface {
	// GetUserID returns the identifier of the user this connection belongs to.
	GetUserID() string

	// GetSendChannel returns the channel the hub pushes events into. It is a
	// send-only channel.
	GetSendChannel() chan<- Event

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the client's connection and associated channels.
	Close()
}

// Hub routes incoming events to the connections of the user they belong to.
// A user may hold several connections at once (multiple tabs or devices).
type Hub struct {
	Clients map[string]map[Client]bool

	RegisterCh   chan Client
	UnregisterCh chan Client
	EventCh      chan Event

	rdb *redis.Client
	log *logger.Logger
}

// NewHub Constructor
func NewHub(rdb *redis.Client, log *logger.Logger) *Hub {
	return &Hub{
		Clients:      make(map[string]map[Client]bool),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		EventCh:      make(chan Event),
		rdb:          rdb,
		log:          log,
	}
}

// startSubscriber feeds events from the Redis channel into EventCh until ctx
// is cancelled.
func (h *Hub) startSubscriber(ctx context.Context) {
	go func() {
		pubsub := h.rdb.Subscribe(ctx, EventsChannel)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					h.log.Warn("dropping undecodable event", "error", err)
					continue
				}
				select {
				case h.EventCh <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

// Run owns the client registry. All map access happens on this goroutine, so
// no locking is needed.
func (h *Hub) Run(ctx context.Context) {
	h.startSubscriber(ctx)

	for {
		select {
		case <-ctx.Done():
			for _, conns := range h.Clients {
				for client := range conns {
					client.Close()
				}
			}
			return

		case client := <-h.RegisterCh:
			userID := client.GetUserID()
			if h.Clients[userID] == nil {
				h.Clients[userID] = make(map[Client]bool)
			}
			h.Clients[userID][client] = true
			metrics.WSConnections.Inc()
			h.log.Debug("websocket client registered", "user_id", userID)

		case client := <-h.UnregisterCh:
			userID := client.GetUserID()
			if conns, ok := h.Clients[userID]; ok && conns[client] {
				delete(conns, client)
				if len(conns) == 0 {
					delete(h.Clients, userID)
				}
				client.Close()
				metrics.WSConnections.Dec()
				h.log.Debug("websocket client unregistered", "user_id", userID)
			}

		case ev := <-h.EventCh:
			for client := range h.Clients[ev.UserID.String()] {
				select {
				case client.GetSendChannel() <- ev:
				default:
					// The client stopped draining its channel; drop it rather
					// than let one slow socket stall the hub.
					h.log.Warn("evicting slow websocket client", "user_id", ev.UserID)
					go func(c Client) { h.UnregisterCh <- c }(client)
				}
			}
		}
	}
}
