package watchman

import (
	"time"

	"ohmguard/pkg/api/common"
)

// Envelope represents a real-time message sent to clients. Every outbound
// frame carries its event name in Type; tenant-scoped frames also carry the
// payload described by the event type.
type Envelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Event     interface{}            `json:"event,omitempty"`
	Sensor    interface{}            `json:"sensor,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ClientMessage represents a room request from a connected client
type ClientMessage struct {
	Action   string `json:"action"`    // "join_tenant" or "leave_tenant"
	TenantID string `json:"tenant_id"` // Required for join_tenant
}

// Ack represents the synchronous response to a client room request
type Ack struct {
	Type    string `json:"type"` // "join_ack" or "leave_ack"
	Success bool   `json:"success"`
	Room    string `json:"room,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JoinedNotice confirms room entry, mirroring the ack for older clients
type JoinedNotice struct {
	Type     string `json:"type"` // always "joined"
	TenantID string `json:"tenant_id"`
	Room     string `json:"room"`
	Message  string `json:"message"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string    `json:"status"`
	Service    string    `json:"service"`
	Version    string    `json:"version"`
	Timestamp  time.Time `json:"timestamp"`
	Uptime     string    `json:"uptime"`
	Kafka      string    `json:"kafka,omitempty"`
	KafkaError string    `json:"kafka_error,omitempty"`
	WebSocket  *HubStats `json:"websocket,omitempty"`
}

// HubStats represents WebSocket hub statistics
type HubStats struct {
	Connections int            `json:"connections"`
	Rooms       int            `json:"rooms"`
	RoomMembers map[string]int `json:"room_members,omitempty"`
}

// BroadcastRequest is the admin request for a cross-tenant broadcast
type BroadcastRequest struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// Outbound event names (tenant-scoped unless noted)
const (
	TypeNewEvent         = "new_event"
	TypePresenceUpdate   = "presence_update"
	TypeSensorStatus     = "sensor_status"
	TypeSensorRegistered = "sensor_registered"

	TypeJoined   = "joined"
	TypeJoinAck  = "join_ack"
	TypeLeaveAck = "leave_ack"
)

// Client room actions
const (
	ActionJoinTenant  = "join_tenant"
	ActionLeaveTenant = "leave_tenant"
)

// ErrorResponse represents an enhanced error response for real-time operations
type ErrorResponse struct {
	common.ErrorResponse
	Message string `json:"message"`
}
