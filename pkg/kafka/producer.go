package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer implements ProducerInterface on franz-go
type Producer struct {
	client    *kgo.Client
	logger    *logrus.Logger
	clusterID string
	metrics   *Metrics
}

// SetMetrics attaches metric vecs observed on every produce
func (p *Producer) SetMetrics(m *Metrics) {
	p.metrics = m
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, clusterID string, clientID string, logger *logrus.Logger) (*Producer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.ProducerBatchMaxBytes(1000000),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Producer{
		client:    client,
		logger:    logger,
		clusterID: clusterID,
	}, nil
}

func (p *Producer) Close() error {
	p.client.Close()
	return nil
}

func (p *Producer) ProduceMessage(topic string, key []byte, value []byte, headers map[string]string) error {
	record := &kgo.Record{
		Topic: topic,
		Key:   key,
		Value: value,
	}

	for k, v := range headers {
		record.Headers = append(record.Headers, kgo.RecordHeader{
			Key:   k,
			Value: []byte(v),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	result := p.client.ProduceSync(ctx, record)
	err := result.FirstErr()
	p.observe(topic, start, err)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	return nil
}

func (p *Producer) observe(topic string, start time.Time, err error) {
	if p.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.Messages.WithLabelValues(topic, "produce", status).Inc()
	p.metrics.Duration.WithLabelValues("produce").Observe(time.Since(start).Seconds())
}

// PublishEvent publishes a single event envelope keyed by its ID
func (p *Producer) PublishEvent(topic string, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := map[string]string{
		"source":     event.Source,
		"event_type": event.Type,
	}
	if event.TenantID != "" {
		headers["tenant_id"] = event.TenantID
	}

	return p.ProduceMessage(topic, []byte(event.ID), value, headers)
}

func (p *Producer) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka health check failed: %w", err)
	}
	return nil
}

// GetClient returns the underlying kgo.Client for health checks
func (p *Producer) GetClient() *kgo.Client {
	return p.client
}
