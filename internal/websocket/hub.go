// Package websocket implements the realtime hub: connection lifecycle,
// tenant room membership, and tenant-scoped event fan-out.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"ohmguard/internal/metrics"
	"ohmguard/internal/rooms"
	"ohmguard/pkg/api/watchman"
	"ohmguard/pkg/logging"

	"github.com/gorilla/websocket"
)

// Hub maintains the set of active clients and broadcasts events to the
// members of each tenant room. Room membership is owned by the registry; the
// hub owns the transport lifecycle.
type Hub struct {
	rooms      *rooms.Registry
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	logger     logging.Logger
	metrics    *metrics.Metrics
	mutex      sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates a new WebSocket hub over the given room registry
func NewHub(registry *rooms.Registry, logger logging.Logger, serviceMetrics *metrics.Metrics) *Hub {
	return &Hub{
		rooms:      registry,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		metrics:    serviceMetrics,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			h.updateConnectionGauges()
			h.logger.WithFields(logging.Fields{
				"client_id":    client.ID(),
				"client_count": clientCount,
			}).Info("Client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			clientCount := len(h.clients)
			h.mutex.Unlock()
			// Transport disconnect is the only cancellation trigger;
			// propagate it to the membership index.
			h.rooms.RemoveConn(client)
			h.updateConnectionGauges()
			h.logger.WithFields(logging.Fields{
				"client_id":    client.ID(),
				"client_count": clientCount,
			}).Info("Client disconnected")
		}
	}
}

// JoinTenant places the client in the tenant's room. A client in a different
// room is moved; the registry enforces at most one room per connection.
func (h *Hub) JoinTenant(client *Client, tenantID string) error {
	if err := h.rooms.Join(client, tenantID); err != nil {
		h.logger.WithFields(logging.Fields{
			"client_id": client.ID(),
		}).Warn("Client tried to join without tenant_id")
		return err
	}

	h.updateConnectionGauges()
	h.logger.WithFields(logging.Fields{
		"client_id": client.ID(),
		"room":      RoomName(tenantID),
	}).Info("Client joined room")
	return nil
}

// LeaveTenant removes the client from the tenant's room; no-op when absent
func (h *Hub) LeaveTenant(client *Client, tenantID string) {
	h.rooms.Leave(client, tenantID)
	h.updateConnectionGauges()
	h.logger.WithFields(logging.Fields{
		"client_id": client.ID(),
		"room":      RoomName(tenantID),
	}).Info("Client left room")
}

// RoomName returns the room identifier for a tenant
func RoomName(tenantID string) string {
	return "tenant_" + tenantID
}

// BroadcastNewEvent broadcasts a normalized radar event to the tenant room
func (h *Hub) BroadcastNewEvent(tenantID string, event interface{}) {
	h.broadcastToTenant(tenantID, watchman.Envelope{
		Type:      watchman.TypeNewEvent,
		Event:     Sanitize(event),
		Timestamp: time.Now().UTC(),
	})
}

// BroadcastPresenceUpdate broadcasts a presence state change to the tenant room
func (h *Hub) BroadcastPresenceUpdate(tenantID string, data map[string]interface{}) {
	h.broadcastToTenant(tenantID, watchman.Envelope{
		Type:      watchman.TypePresenceUpdate,
		Data:      SanitizeMap(data),
		Timestamp: time.Now().UTC(),
	})
}

// BroadcastSensorStatus broadcasts a sensor online/offline change to the tenant room
func (h *Hub) BroadcastSensorStatus(tenantID, sensorID, status, lastSeen string) {
	h.broadcastToTenant(tenantID, watchman.Envelope{
		Type: watchman.TypeSensorStatus,
		Data: map[string]interface{}{
			"sensor_id": sensorID,
			"status":    status,
			"last_seen": lastSeen,
		},
		Timestamp: time.Now().UTC(),
	})
}

// BroadcastSensorRegistered broadcasts a newly auto-registered sensor to the tenant room
func (h *Hub) BroadcastSensorRegistered(tenantID string, sensor map[string]interface{}) {
	h.broadcastToTenant(tenantID, watchman.Envelope{
		Type:      watchman.TypeSensorRegistered,
		Sensor:    SanitizeMap(sensor),
		Timestamp: time.Now().UTC(),
	})
}

// BroadcastToTenant broadcasts an arbitrary named event to the tenant room
func (h *Hub) BroadcastToTenant(tenantID, eventName string, data map[string]interface{}) {
	h.broadcastToTenant(tenantID, watchman.Envelope{
		Type:      eventName,
		Data:      SanitizeMap(data),
		Timestamp: time.Now().UTC(),
	})
}

// BroadcastToAll broadcasts to every connected client across every tenant,
// bypassing room scoping. Reserved for cross-tenant administrative notices.
func (h *Hub) BroadcastToAll(eventName string, data map[string]interface{}) {
	envelope := watchman.Envelope{
		Type:      eventName,
		Data:      SanitizeMap(data),
		Timestamp: time.Now().UTC(),
	}

	h.mutex.RLock()
	snapshot := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		snapshot = append(snapshot, client)
	}
	h.mutex.RUnlock()

	h.deliver(snapshot, envelope, "all")
}

func (h *Hub) broadcastToTenant(tenantID string, envelope watchman.Envelope) {
	if tenantID == "" {
		h.logger.WithField("event_type", envelope.Type).Warn("Dropping broadcast without tenant_id")
		return
	}

	// Snapshot semantics: membership is read once at dispatch time.
	members := h.rooms.MembersOf(tenantID)
	clients := make([]*Client, 0, len(members))
	for _, conn := range members {
		if client, ok := conn.(*Client); ok {
			clients = append(clients, client)
		}
	}

	h.deliver(clients, envelope, "tenant")

	h.logger.WithFields(logging.Fields{
		"event_type": envelope.Type,
		"room":       RoomName(tenantID),
		"members":    len(clients),
	}).Debug("Broadcast dispatched")
}

// deliver fans a frame out to the snapshot. Sends never block: a client with
// a full queue loses the frame rather than stalling the hub.
func (h *Hub) deliver(clients []*Client, envelope watchman.Envelope, scope string) {
	frame, err := json.Marshal(envelope)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal broadcast envelope")
		return
	}

	start := time.Now()
	for _, client := range clients {
		select {
		case client.send <- frame:
			h.countOutbound(envelope.Type, scope)
		default:
			h.countDrop("send_queue_full")
			h.logger.WithFields(logging.Fields{
				"client_id":  client.ID(),
				"event_type": envelope.Type,
			}).Warn("Client send queue full, dropping frame")
		}
	}
	h.observeDeliveryLag(envelope.Type, time.Since(start))
}

// Stats returns hub statistics
func (h *Hub) Stats() *watchman.HubStats {
	h.mutex.RLock()
	connections := len(h.clients)
	h.mutex.RUnlock()

	roomCounts := h.rooms.RoomCounts()
	return &watchman.HubStats{
		Connections: connections,
		Rooms:       len(roomCounts),
		RoomMembers: roomCounts,
	}
}

// ServeWS handles WebSocket requests from clients
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := newClient(h, conn)
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (h *Hub) updateConnectionGauges() {
	if h.metrics == nil {
		return
	}
	h.mutex.RLock()
	connected := len(h.clients)
	h.mutex.RUnlock()
	h.metrics.HubConnections.WithLabelValues("connected").Set(float64(connected))
	h.metrics.HubConnections.WithLabelValues("joined").Set(float64(h.rooms.CountAll()))
}

func (h *Hub) countOutbound(eventType, scope string) {
	if h.metrics == nil {
		return
	}
	h.metrics.HubMessages.WithLabelValues("outbound").Inc()
	h.metrics.EventsBroadcast.WithLabelValues(eventType, scope).Inc()
}

func (h *Hub) countInbound() {
	if h.metrics == nil {
		return
	}
	h.metrics.HubMessages.WithLabelValues("inbound").Inc()
}

func (h *Hub) countDrop(reason string) {
	if h.metrics == nil {
		return
	}
	h.metrics.DroppedFrames.WithLabelValues(reason).Inc()
}

func (h *Hub) observeDeliveryLag(eventType string, d time.Duration) {
	if h.metrics == nil {
		return
	}
	h.metrics.MessageDeliveryLag.WithLabelValues(eventType).Observe(d.Seconds())
}
