// Package realtime fans ledger events out to connected clients. The hub
// lives for the life of the process and is never persisted: after a
// restart every client has to join its room again.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"

	"chuckafile/metrics"
	"chuckafile/models"
)

// Event names sent to clients
const (
	EventNewMessage     = "new-message"
	EventRefreshFriends = "refresh-friends"
	EventMessageError   = "message-error"
)

// Event names received from clients
const (
	EventJoinRoom    = "join-room"
	EventSendMessage = "send-message"
)

// Subscriber is one live connection. Deliver must not block; returning
// false means the frame could not be queued.
type Subscriber interface {
	Deliver(frame []byte) bool
	Close()
}

// Hub maps a user id to that user's live subscribers
type Hub struct {
	mu      sync.RWMutex
	rooms   map[int64]map[Subscriber]struct{}
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		rooms:   make(map[int64]map[Subscriber]struct{}),
		logger:  logger.With("component", "realtime.hub"),
		metrics: m,
	}
}

// Subscribe adds sub to the user's room. Subscribing twice is a no-op.
func (h *Hub) Subscribe(userID int64, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[userID]
	if !ok {
		room = make(map[Subscriber]struct{})
		h.rooms[userID] = room
	}
	if _, ok := room[sub]; ok {
		return
	}
	room[sub] = struct{}{}
	h.logger.Debug("subscriber joined", "user", userID, "subscribers", len(room))
}

// Unsubscribe removes sub from the user's room, if present.
func (h *Hub) Unsubscribe(userID int64, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(userID, sub)
}

func (h *Hub) remove(userID int64, sub Subscriber) {
	room, ok := h.rooms[userID]
	if !ok {
		return
	}
	delete(room, sub)
	if len(room) == 0 {
		delete(h.rooms, userID)
	}
}

// Publish sends the event to every subscriber of userID and returns how
// many received it. Nobody listening is not an error. A subscriber whose
// queue is full is evicted and closed.
func (h *Hub) Publish(userID int64, event string, payload interface{}) int {
	frame, err := json.Marshal(models.WebSocketMessage{Type: event, Payload: payload})
	if err != nil {
		h.logger.Error("failed to marshal event", "event", event, "error", err)
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for sub := range h.rooms[userID] {
		if sub.Deliver(frame) {
			delivered++
			continue
		}
		h.remove(userID, sub)
		sub.Close()
		h.logger.Warn("evicted slow subscriber", "user", userID, "event", event)
		if h.metrics != nil {
			h.metrics.SubscribersEvicted.Inc()
		}
	}

	if h.metrics != nil {
		if delivered > 0 {
			h.metrics.EventsDelivered.WithLabelValues(event).Add(float64(delivered))
		} else {
			h.metrics.EventsDropped.WithLabelValues(event).Inc()
		}
	}
	return delivered
}

// PublishAll publishes the same event to each user in turn.
func (h *Hub) PublishAll(event string, payload interface{}, userIDs ...int64) {
	for _, id := range userIDs {
		h.Publish(id, event, payload)
	}
}

// IsOnline reports whether the user has at least one live subscriber
func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID]) > 0
}

// Subscribers returns how many subscribers the user currently has
func (h *Hub) Subscribers(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// Close drops every subscription and closes the subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, room := range h.rooms {
		for sub := range room {
			sub.Close()
		}
		delete(h.rooms, userID)
	}
}
