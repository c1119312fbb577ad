package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Consumer implements a Kafka consumer that decodes event envelopes and routes
// them to a single EventHandler
type Consumer struct {
	client    *kgo.Client
	logger    *logrus.Logger
	clusterID string
	groupID   string
	handler   EventHandler
	metrics   *Metrics
}

// SetMetrics attaches metric vecs observed on every consumed record
func (c *Consumer) SetMetrics(m *Metrics) {
	c.metrics = m
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, groupID string, clusterID string, clientID string, logger *logrus.Logger, handler EventHandler) (*Consumer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ClientID(clientID),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Consumer{
		client:    client,
		logger:    logger,
		clusterID: clusterID,
		groupID:   groupID,
		handler:   handler,
	}, nil
}

// Subscribe adds topics to the consumer
func (c *Consumer) Subscribe(topics []string) error {
	if len(topics) == 0 {
		return fmt.Errorf("no topics to subscribe to")
	}
	c.client.AddConsumeTopics(topics...)
	return nil
}

// Close closes the underlying client
func (c *Consumer) Close() error {
	c.client.Close()
	return nil
}

// Start starts polling for messages
func (c *Consumer) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			fetches := c.client.PollFetches(ctx)
			if errs := fetches.Errors(); len(errs) > 0 {
				// Don't log context cancelled errors as errors
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Errorf("errors while polling: %v", errs)
				continue
			}

			iter := fetches.RecordIter()
			var commitRecords []*kgo.Record
			for !iter.Done() {
				record := iter.Next()
				c.handleRecord(record)
				// Delivery is best-effort fan-out; a record that cannot be
				// handled is logged and committed, never replayed.
				commitRecords = append(commitRecords, record)
			}

			if len(commitRecords) > 0 {
				if err := c.client.CommitRecords(ctx, commitRecords...); err != nil {
					c.logger.WithError(err).Error("failed to commit records")
				}
			}
		}
	}
}

func (c *Consumer) handleRecord(record *kgo.Record) {
	start := time.Now()

	event, err := DecodeEvent(record)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"topic":     record.Topic,
			"partition": record.Partition,
			"offset":    record.Offset,
		}).Warn("Skipping undecodable event")
		c.observe(record, start, "decode_error")
		return
	}

	if err := c.handler.HandleEvent(event); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"topic":      record.Topic,
			"event_type": event.Type,
		}).Error("Failed to handle event")
		c.observe(record, start, "error")
		return
	}

	c.observe(record, start, "success")
}

func (c *Consumer) observe(record *kgo.Record, start time.Time, status string) {
	if c.metrics == nil {
		return
	}
	c.metrics.Messages.WithLabelValues(record.Topic, "consume", status).Inc()
	c.metrics.Duration.WithLabelValues("consume").Observe(time.Since(start).Seconds())
	if !record.Timestamp.IsZero() {
		c.metrics.Lag.WithLabelValues(record.Topic, strconv.FormatInt(int64(record.Partition), 10)).
			Set(time.Since(record.Timestamp).Seconds())
	}
}

// DecodeEvent unmarshals a record into an Event, preferring header metadata
// over payload fields for tenant and type.
func DecodeEvent(record *kgo.Record) (Event, error) {
	var event Event
	if err := json.Unmarshal(record.Value, &event); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	for _, h := range record.Headers {
		switch h.Key {
		case "tenant_id":
			if v := string(h.Value); v != "" {
				event.TenantID = v
			}
		case "event_type":
			if v := string(h.Value); v != "" {
				event.Type = v
			}
		}
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = record.Timestamp
	}
	return event, nil
}

// HealthCheck pings the broker
func (c *Consumer) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka health check failed: %w", err)
	}
	return nil
}

// GetClient returns the underlying kgo.Client for health checks
func (c *Consumer) GetClient() *kgo.Client {
	return c.client
}
