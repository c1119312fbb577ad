// Package metrics defines the service's Prometheus metrics, registered
// through the shared collector so names carry the service prefix.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"ohmguard/pkg/monitoring"
)

// Metrics holds all Prometheus metrics for the Watchman service
type Metrics struct {
	// WebSocket Hub metrics
	HubConnections     *prometheus.GaugeVec   // labels: state (connected|joined)
	HubMessages        *prometheus.CounterVec // labels: direction (inbound|outbound)
	EventsBroadcast    *prometheus.CounterVec // labels: event_type, scope (tenant|all)
	DroppedFrames      *prometheus.CounterVec // labels: reason
	EventsNormalized   *prometheus.CounterVec // labels: event_type, severity
	PushNotifications  *prometheus.CounterVec // labels: status
	MessageDeliveryLag *prometheus.HistogramVec

	// Kafka metrics
	KafkaMessages *prometheus.CounterVec
	KafkaDuration *prometheus.HistogramVec
	KafkaLag      *prometheus.GaugeVec
}

// New registers the service metrics on the collector
func New(mc *monitoring.MetricsCollector) *Metrics {
	m := &Metrics{
		HubConnections:     mc.NewGauge("hub_connections", "WebSocket hub connections", []string{"state"}),
		HubMessages:        mc.NewCounter("hub_messages_total", "WebSocket hub messages", []string{"direction"}),
		EventsBroadcast:    mc.NewCounter("events_broadcast_total", "Events broadcast to clients", []string{"event_type", "scope"}),
		DroppedFrames:      mc.NewCounter("dropped_frames_total", "Frames dropped before delivery", []string{"reason"}),
		EventsNormalized:   mc.NewCounter("events_normalized_total", "Radar events normalized", []string{"event_type", "severity"}),
		PushNotifications:  mc.NewCounter("push_notifications_total", "Push notifications by outcome", []string{"status"}),
		MessageDeliveryLag: mc.NewHistogram("message_delivery_lag_seconds", "Broadcast fan-out duration", []string{"event_type"}, nil),
	}
	m.KafkaMessages, m.KafkaDuration, m.KafkaLag = mc.CreateKafkaMetrics()
	return m
}
