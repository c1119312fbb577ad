package websocket

import (
	"encoding/json"
	"time"

	"ohmguard/pkg/api/watchman"
	"ohmguard/pkg/logging"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Outbound frame buffer per client
	sendQueueSize = 256
)

// Client represents a WebSocket client connection
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	id     string
	logger logging.Logger
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		id:     uuid.New().String(),
		logger: h.logger,
	}
}

// ID returns the connection identifier
func (c *Client) ID() string {
	return c.id
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			break
		}

		c.hub.countInbound()

		var msg watchman.ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.WithError(err).Warn("Invalid client message")
			continue
		}

		c.handleRoomRequest(&msg)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush queued frames into the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleRoomRequest processes join/leave requests from the client
func (c *Client) handleRoomRequest(msg *watchman.ClientMessage) {
	switch msg.Action {
	case watchman.ActionJoinTenant:
		if err := c.hub.JoinTenant(c, msg.TenantID); err != nil {
			c.sendJSON(watchman.Ack{
				Type:    watchman.TypeJoinAck,
				Success: false,
				Error:   err.Error(),
			})
			return
		}

		room := RoomName(msg.TenantID)
		c.sendJSON(watchman.Ack{
			Type:    watchman.TypeJoinAck,
			Success: true,
			Room:    room,
		})
		c.sendJSON(watchman.JoinedNotice{
			Type:     watchman.TypeJoined,
			TenantID: msg.TenantID,
			Room:     room,
			Message:  "Successfully joined tenant room",
		})

	case watchman.ActionLeaveTenant:
		if msg.TenantID != "" {
			c.hub.LeaveTenant(c, msg.TenantID)
		}
		c.sendJSON(watchman.Ack{
			Type:    watchman.TypeLeaveAck,
			Success: true,
		})

	default:
		c.logger.WithField("action", msg.Action).Warn("Unknown client action")
	}
}

// sendJSON marshals and queues a message for this client
func (c *Client) sendJSON(data interface{}) {
	message, err := json.Marshal(data)
	if err != nil {
		c.logger.WithError(err).Error("Failed to marshal client message")
		return
	}

	select {
	case c.send <- message:
	default:
		c.hub.countDrop("send_queue_full")
	}
}
