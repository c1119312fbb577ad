package kafka

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Event represents a generic platform event on the wire
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	TenantID  string                 `json:"tenant_id,omitempty"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHandler interface for handling consumed events
type EventHandler interface {
	HandleEvent(event Event) error
}

// ConsumerInterface defines the interface for Kafka consumers
type ConsumerInterface interface {
	Subscribe(topics []string) error
	Start(ctx context.Context) error
	Close() error
	HealthCheck() error
}

// ProducerInterface defines the interface for Kafka producers
type ProducerInterface interface {
	ProduceMessage(topic string, key []byte, value []byte, headers map[string]string) error
	Close() error
	HealthCheck() error
}

// Metrics holds the vecs observed by the producer and consumer. Optional;
// a nil Metrics disables observation.
type Metrics struct {
	Messages *prometheus.CounterVec   // labels: topic, operation, status
	Duration *prometheus.HistogramVec // labels: operation
	Lag      *prometheus.GaugeVec     // labels: topic, partition
}
