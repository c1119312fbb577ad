// Package handlers wires the ingest surface: HTTP sensor reports, Kafka
// fan-in, and the admin endpoints. Every inbound report flows through the
// same pipeline regardless of transport.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ohmguard/internal/metrics"
	"ohmguard/internal/push"
	"ohmguard/internal/radar"
	"ohmguard/internal/websocket"
	"ohmguard/pkg/api/common"
	"ohmguard/pkg/api/watchman"
	"ohmguard/pkg/clients/registry"
	"ohmguard/pkg/kafka"
	"ohmguard/pkg/logging"

	"github.com/gin-gonic/gin"
)

// Kafka event types handled by the fan-in consumer
const (
	eventRadarReport      = "radar_report"
	eventPresenceUpdate   = "presence_update"
	eventSensorStatus     = "sensor_status"
	eventSensorRegistered = "sensor_registered"
)

// Resolver resolves device identity and caregiver push tokens
type Resolver interface {
	Resolve(ctx context.Context, deviceID string) (*registry.DeviceIdentity, error)
	AlertTokens(ctx context.Context, tenantID string) ([]string, error)
}

// Producer publishes normalized events downstream
type Producer interface {
	PublishEvent(topic string, event kafka.Event) error
}

// Notifier delivers fall alerts to caregiver devices
type Notifier interface {
	SendFallAlert(ctx context.Context, tokens []string, residentName, location string) []push.FallAlertResult
}

// Config holds handler configuration
type Config struct {
	ServiceName string
	EventsTopic string
}

// Handlers contains all HTTP and Kafka handlers for the service
type Handlers struct {
	logger   logging.Logger
	hub      *websocket.Hub
	resolver Resolver
	producer Producer
	notifier Notifier
	metrics  *metrics.Metrics
	config   Config
}

// NewHandlers creates the handler set. Resolver, producer, and notifier are
// optional collaborators: a nil dependency disables that step of the pipeline
// without affecting the others.
func NewHandlers(logger logging.Logger, hub *websocket.Hub, resolver Resolver, producer Producer, notifier Notifier, serviceMetrics *metrics.Metrics, config Config) *Handlers {
	if config.EventsTopic == "" {
		config.EventsTopic = "radar-events"
	}
	return &Handlers{
		logger:   logger,
		hub:      hub,
		resolver: resolver,
		producer: producer,
		notifier: notifier,
		metrics:  serviceMetrics,
		config:   config,
	}
}

// HandleWebSocket upgrades the connection and hands it to the hub
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}

// HandleIngest accepts a raw sensor report, normalizes it, and fans it out
func (h *Handlers) HandleIngest(c *gin.Context) {
	var req radar.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.ErrorResponse{
			Error:   "invalid request body",
			Code:    "INVALID_BODY",
			Service: h.config.ServiceName,
		})
		return
	}

	if req.DeviceID == "" {
		c.JSON(http.StatusBadRequest, common.ErrorResponse{
			Error:   "deviceId is required",
			Code:    "MISSING_DEVICE_ID",
			Service: h.config.ServiceName,
		})
		return
	}

	event := h.processReport(c.Request.Context(), req)
	c.JSON(http.StatusCreated, event)
}

// processReport runs the full pipeline for one raw report: identity
// resolution, normalization, publish, broadcast, and alerting. Normalization
// itself never fails; collaborator failures degrade that step only.
func (h *Handlers) processReport(ctx context.Context, req radar.IngestRequest) radar.Event {
	var identity radar.Identity
	if h.resolver != nil {
		resolved, err := h.resolver.Resolve(ctx, req.DeviceID)
		if err != nil {
			h.logger.WithError(err).WithField("device_id", req.DeviceID).Warn("Device identity resolution failed")
		} else if resolved != nil {
			identity = radar.Identity{
				SensorID: resolved.SensorID,
				SiteID:   resolved.SiteID,
				ZoneID:   resolved.ZoneID,
				TenantID: resolved.TenantID,
			}
		}
	}

	event := radar.Normalize(req, identity)
	h.countNormalized(event)

	h.logger.WithFields(logging.Fields{
		"event_id":   event.ID,
		"device_id":  event.DeviceID,
		"event_type": event.EventType,
		"severity":   event.Severity,
		"tenant_id":  event.Tenant(),
	}).Info("Radar event normalized")

	if h.producer != nil {
		if err := h.producer.PublishEvent(h.config.EventsTopic, kafka.Event{
			ID:        event.ID,
			Type:      string(event.EventType),
			Source:    h.config.ServiceName,
			TenantID:  event.Tenant(),
			Data:      eventToMap(event),
			Timestamp: event.OccurredAt,
		}); err != nil {
			h.logger.WithError(err).WithField("event_id", event.ID).Error("Failed to publish event")
		}
	}

	if tenantID := event.Tenant(); tenantID != "" {
		h.hub.BroadcastNewEvent(tenantID, event)
	} else {
		h.logger.WithField("event_id", event.ID).Debug("Event has no tenant, skipping broadcast")
	}

	if event.EventType == radar.EventFall && event.Severity == radar.SeverityHigh {
		h.dispatchFallAlert(event)
	}

	return event
}

// dispatchFallAlert fans the alert out asynchronously so push latency never
// delays the ingest response
func (h *Handlers) dispatchFallAlert(event radar.Event) {
	tenantID := event.Tenant()
	if h.notifier == nil || h.resolver == nil || tenantID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		tokens, err := h.resolver.AlertTokens(ctx, tenantID)
		if err != nil {
			h.logger.WithError(err).WithField("tenant_id", tenantID).Error("Failed to fetch push tokens")
			return
		}
		if len(tokens) == 0 {
			h.logger.WithField("tenant_id", tenantID).Warn("No push tokens registered for tenant")
			return
		}

		resident := "Capteur " + event.DeviceID
		if event.SensorID != nil {
			resident = "Capteur " + *event.SensorID
		}
		location := "Zones: " + radar.FormatActiveRegions(event.ActiveRegions)
		if event.ZoneID != nil {
			location = *event.ZoneID + " - " + location
		}

		results := h.notifier.SendFallAlert(ctx, tokens, resident, location)
		for _, result := range results {
			h.countPush(result.Success)
		}
	}()
}

// HandleEvent routes consumed Kafka events. Raw radar reports re-enter the
// ingest pipeline; pre-normalized updates are broadcast to their tenant room.
// Tenant-scoped events without a tenant are dropped, not errored, so the
// consumer keeps committing.
func (h *Handlers) HandleEvent(event kafka.Event) error {
	switch event.Type {
	case eventRadarReport:
		var req radar.IngestRequest
		if err := remarshal(event.Data, &req); err != nil {
			h.logger.WithError(err).WithField("event_id", event.ID).Warn("Undecodable radar report")
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h.processReport(ctx, req)

	case eventPresenceUpdate:
		if event.TenantID == "" {
			h.dropTenantless(event)
			return nil
		}
		h.hub.BroadcastPresenceUpdate(event.TenantID, event.Data)

	case eventSensorStatus:
		if event.TenantID == "" {
			h.dropTenantless(event)
			return nil
		}
		h.hub.BroadcastSensorStatus(
			event.TenantID,
			stringField(event.Data, "sensor_id"),
			stringField(event.Data, "status"),
			stringField(event.Data, "last_seen"),
		)

	case eventSensorRegistered:
		if event.TenantID == "" {
			h.dropTenantless(event)
			return nil
		}
		h.hub.BroadcastSensorRegistered(event.TenantID, event.Data)

	default:
		h.logger.WithFields(logging.Fields{
			"event_id":   event.ID,
			"event_type": event.Type,
		}).Debug("Ignoring unhandled event type")
	}

	return nil
}

// HandleAdminBroadcast broadcasts an administrative notice to every connected
// client across all tenants
func (h *Handlers) HandleAdminBroadcast(c *gin.Context) {
	var req watchman.BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Event == "" {
		c.JSON(http.StatusBadRequest, common.ErrorResponse{
			Error:   "event name is required",
			Code:    "INVALID_BODY",
			Service: h.config.ServiceName,
		})
		return
	}

	h.hub.BroadcastToAll(req.Event, req.Data)
	h.logger.WithField("event", req.Event).Info("Admin broadcast dispatched")

	c.JSON(http.StatusOK, common.SuccessResponse{
		Success: true,
		Message: "broadcast dispatched",
	})
}

// HandleStats returns hub connection and room statistics
func (h *Handlers) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Stats())
}

// HandleNotFound handles 404 responses
func (h *Handlers) HandleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, common.ErrorResponse{
		Error:   "endpoint not found",
		Code:    "NOT_FOUND",
		Service: h.config.ServiceName,
	})
}

func (h *Handlers) dropTenantless(event kafka.Event) {
	h.logger.WithFields(logging.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
	}).Warn("Dropping tenant-scoped event without tenant_id")
	if h.metrics != nil {
		h.metrics.DroppedFrames.WithLabelValues("missing_tenant").Inc()
	}
}

func (h *Handlers) countNormalized(event radar.Event) {
	if h.metrics == nil {
		return
	}
	h.metrics.EventsNormalized.WithLabelValues(string(event.EventType), string(event.Severity)).Inc()
}

func (h *Handlers) countPush(success bool) {
	if h.metrics == nil {
		return
	}
	status := "sent"
	if !success {
		status = "failed"
	}
	h.metrics.PushNotifications.WithLabelValues(status).Inc()
}

// eventToMap converts a normalized event to the generic wire payload
func eventToMap(event radar.Event) map[string]interface{} {
	var out map[string]interface{}
	if err := remarshal(event, &out); err != nil {
		return map[string]interface{}{"id": event.ID}
	}
	return out
}

func remarshal(in interface{}, out interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func stringField(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}
