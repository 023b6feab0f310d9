package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"chuckafile/apperr"
	"chuckafile/middleware"
	"chuckafile/models"
	"chuckafile/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 << 10
	sendBufferSize = 256
)

// Client is one websocket connection. It is the hub subscriber for its
// user's room once the client joins.
type Client struct {
	Conn   *websocket.Conn
	UserID int64

	send    chan []byte
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool
}

// Deliver queues a frame without blocking.
func (c *Client) Deliver(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which then closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

type inboundFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinRoomPayload struct {
	UserID int64 `json:"userId"`
}

type sendMessagePayload struct {
	RecipientID int64              `json:"recipientId" validate:"required,gt=0"`
	SenderID    int64              `json:"senderId"`
	Message     string             `json:"message" validate:"required"`
	MessageType models.MessageType `json:"messageType" validate:"omitempty,oneof=text file"`
}

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || middleware.OriginAllowed(origin, h.origins)
		},
	}
}

// HandleWebSocket authenticates the token and runs the connection
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Authenticate(r)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "user", user.ID, "error", err)
		return
	}

	client := &Client{
		Conn:    conn,
		UserID:  user.ID,
		send:    make(chan []byte, sendBufferSize),
		limiter: rate.NewLimiter(rate.Limit(h.opts.WSRatePerSec), h.opts.WSRateBurst),
	}

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
	}
	h.logger.Info("client connected", "user", user.ID)

	// Start goroutines for reading and writing
	go client.writePump()
	go h.readPump(client)
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unsubscribe(c.UserID, c)
		c.Close()
		c.Conn.Close()
		if h.metrics != nil {
			h.metrics.WSConnections.Dec()
		}
		h.logger.Info("client disconnected", "user", c.UserID)
	}()

	c.Conn.SetReadLimit(maxFrameSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed", "user", c.UserID, "error", err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			h.sendError(c, apperr.BadRequest("Malformed event"))
			continue
		}

		switch frame.Type {
		case realtime.EventJoinRoom:
			h.joinRoom(c, frame.Payload)
		case realtime.EventSendMessage:
			h.sendMessage(c, frame.Payload)
		default:
			h.sendError(c, apperr.BadRequest("Unknown event"))
		}
	}
}

// joinRoom subscribes the connection to its own user's room. Joining any
// other room is refused.
func (h *Handler) joinRoom(c *Client, raw json.RawMessage) {
	var payload joinRoomPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.sendError(c, apperr.BadRequest("Malformed event"))
		return
	}
	if payload.UserID != c.UserID {
		h.sendError(c, apperr.Forbidden("Cannot join another user's room"))
		return
	}

	h.hub.Subscribe(c.UserID, c)
	h.logger.Debug("user joined room", "user", c.UserID)
}

// sendMessage posts through the conversation ledger and fans the stored
// message out to both participants.
func (h *Handler) sendMessage(c *Client, raw json.RawMessage) {
	if !c.limiter.Allow() {
		h.sendError(c, apperr.BadRequest("Too many messages"))
		return
	}

	var payload sendMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.sendError(c, apperr.BadRequest("Malformed event"))
		return
	}
	if err := h.check(&payload); err != nil {
		h.sendError(c, err)
		return
	}
	if payload.SenderID != 0 && payload.SenderID != c.UserID {
		h.sendError(c, apperr.Forbidden("Sender does not match the connection"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	msg, err := h.convs.PostMessage(ctx, c.UserID, payload.RecipientID, payload.Message, payload.MessageType)
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.hub.Publish(payload.RecipientID, realtime.EventNewMessage, msg)
	h.hub.Publish(c.UserID, realtime.EventNewMessage, msg)
}

// sendError reports a failure to this connection only.
func (h *Handler) sendError(c *Client, err error) {
	message := "Failed to send message"
	var appErr *apperr.AppError
	if errors.As(err, &appErr) && appErr.Code != apperr.CodeInternal {
		message = appErr.Message
	} else {
		h.logger.Error("real-time request failed", "user", c.UserID, "error", err)
	}

	frame, _ := json.Marshal(models.WebSocketMessage{
		Type:    realtime.EventMessageError,
		Payload: map[string]string{"error": message},
	})
	c.Deliver(frame)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
