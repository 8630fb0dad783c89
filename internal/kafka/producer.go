package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/trogers1052/nextworth-marketdata/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes refresh events to Kafka
type Producer struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
		now:    time.Now,
	}
}

// PublishHistoryRefreshed publishes a history refreshed event
func (p *Producer) PublishHistoryRefreshed(ctx context.Context, resp *models.HistoryResponse) error {
	event := models.RefreshEvent{
		EventType:   models.EventHistoryRefreshed,
		Symbol:      resp.Symbol,
		Range:       resp.Range,
		Granularity: resp.Granularity,
		PointCount:  resp.PointCount,
		Timestamp:   p.now().UTC(),
	}
	return p.publish(ctx, resp.Symbol, event)
}

// PublishPredictionRefreshed publishes a prediction refreshed event
func (p *Producer) PublishPredictionRefreshed(ctx context.Context, resp *models.PredictionResponse) error {
	event := models.RefreshEvent{
		EventType:  models.EventPredictionRefreshed,
		Symbol:     resp.Symbol,
		Horizon:    resp.Horizon,
		PointCount: len(resp.Predictions),
		Timestamp:  p.now().UTC(),
	}
	return p.publish(ctx, resp.Symbol, event)
}

// publish keys messages by symbol so one symbol's events stay ordered
func (p *Producer) publish(ctx context.Context, key string, event models.RefreshEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
