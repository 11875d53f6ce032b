// Package events provides the Kafka publisher for run lifecycle events.
//
// Purpose:
//   Downstream consumers (dashboards, alerting, usage accounting) learn
//   about finished harvest runs from a compact run-completed event rather
//   than by polling the metrics table.
//
// Key Responsibilities:
//   - Publish run-completed events to a Kafka topic
//   - Keep publishing best effort: a run never fails because Kafka is down
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// RunCompleted is the event emitted after a harvest run finishes.
type RunCompleted struct {
	RunID            string    `json:"run_id"`
	Date             string    `json:"date"`
	ThreadCount      int       `json:"thread_count"`
	OSCount          int       `json:"os_count"`
	RegionCount      int       `json:"region_count"`
	RowsCollected    int64     `json:"rows_collected"`
	RowsStored       int64     `json:"rows_stored"`
	RowsDuplicate    int64     `json:"rows_duplicate"`
	JobsSucceeded    int64     `json:"jobs_succeeded"`
	JobsFailed       int64     `json:"jobs_failed"`
	ErrorCount       int64     `json:"error_count"`
	InitSeconds      float64   `json:"init_seconds"`
	RunSeconds       float64   `json:"run_seconds"`
	ArchiveObjectKey string    `json:"archive_object_key,omitempty"`
	CompletedAt      time.Time `json:"completed_at"`
}

// Publisher publishes run events to Kafka.
type Publisher struct {
	writer *kafka.Writer
	logger *zap.Logger
	mu     sync.RWMutex
	topic  string
}

// PublisherConfig configures the Kafka publisher.
type PublisherConfig struct {
	Brokers      []string
	Topic        string
	ClientID     string
	WriteTimeout time.Duration
}

// NewPublisher creates a Kafka publisher for run events.
func NewPublisher(cfg PublisherConfig, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false, // Synchronous writes for reliability
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  5 * time.Second,
	}

	if cfg.ClientID != "" {
		writer.Transport = &kafka.Transport{
			ClientID: cfg.ClientID,
		}
	}

	return &Publisher{
		writer: writer,
		logger: logger.With(zap.String("component", "run-event-publisher")),
		topic:  cfg.Topic,
	}
}

// PublishRunCompleted publishes one run-completed event, keyed by run ID.
func (p *Publisher) PublishRunCompleted(ctx context.Context, event RunCompleted) error {
	p.mu.RLock()
	writer := p.writer
	p.mu.RUnlock()

	if writer == nil {
		return fmt.Errorf("kafka writer is closed")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serialize run event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.RunID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "run_id", Value: []byte(event.RunID)},
			{Key: "date", Value: []byte(event.Date)},
		},
		Time: event.CompletedAt,
	}

	if err := writer.WriteMessages(ctx, message); err != nil {
		p.logger.Error("failed to publish run event to Kafka",
			zap.String("run_id", event.RunID),
			zap.String("date", event.Date),
			zap.Error(err),
		)
		return fmt.Errorf("publish run event to Kafka: %w", err)
	}

	p.logger.Debug("run event published to Kafka",
		zap.String("run_id", event.RunID),
		zap.String("topic", p.topic),
	)

	return nil
}

// Close closes the Kafka writer connection.
// Safe to call multiple times.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer == nil {
		return nil
	}

	err := p.writer.Close()
	p.writer = nil
	p.logger.Info("Kafka publisher closed")
	return err
}
