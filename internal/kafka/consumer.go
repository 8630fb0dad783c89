package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/trogers1052/nextworth-marketdata/internal/marketcache"
	"github.com/trogers1052/nextworth-marketdata/internal/models"
)

// Warmer loads data into the cache. *marketcache.Service satisfies it.
type Warmer interface {
	GetHistory(ctx context.Context, req marketcache.HistoryRequest) (*models.HistoryResponse, error)
	GetPrediction(ctx context.Context, symbol string, horizon models.Horizon) (*models.PredictionResponse, error)
}

// Consumer handles refresh requests from Kafka by warming the cache
type Consumer struct {
	reader *kafka.Reader
	warmer Warmer
	logger logrus.FieldLogger
}

// NewConsumer creates a new Kafka consumer for refresh requests
func NewConsumer(brokers []string, topic, groupID string, warmer Warmer, logger logrus.FieldLogger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Consumer{
		reader: reader,
		warmer: warmer,
		logger: logger,
	}
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.WithField("topic", c.reader.Config().Topic).Info("Starting Kafka consumer")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Kafka consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil // Context cancelled, normal shutdown
				}
				c.logger.WithError(err).Warn("Error reading message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.logger.WithError(err).WithField("offset", msg.Offset).Warn("Error processing message")
				// Continue processing other messages
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var req models.RefreshRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return fmt.Errorf("failed to unmarshal refresh request: %w", err)
	}

	// Only process REFRESH_REQUESTED events
	if req.EventType != models.EventRefreshRequested {
		c.logger.WithField("event_type", req.EventType).Debug("Ignoring event type")
		return nil
	}
	if req.Symbol == "" {
		return errors.New("refresh request without symbol")
	}

	log := c.logger.WithField("symbol", req.Symbol)

	if req.Horizon != "" {
		horizon, err := models.ParseHorizon(req.Horizon)
		if err != nil {
			return fmt.Errorf("invalid refresh request: %w", err)
		}
		resp, err := c.warmer.GetPrediction(ctx, req.Symbol, horizon)
		if err != nil {
			return fmt.Errorf("failed to warm predictions for %s: %w", req.Symbol, err)
		}
		log.WithFields(logrus.Fields{"horizon": horizon, "source": resp.Source}).Info("Warmed predictions")
		return nil
	}

	months := req.Months
	if months == 0 {
		months = 12
	}
	granularity := models.GranularityMonthly
	if req.Interval != "" {
		g, err := models.ParseGranularity(req.Interval)
		if err != nil {
			return fmt.Errorf("invalid refresh request: %w", err)
		}
		granularity = g
	}

	resp, err := c.warmer.GetHistory(ctx, marketcache.HistoryRequest{
		Symbol:      req.Symbol,
		Months:      months,
		Granularity: granularity,
	})
	if err != nil {
		return fmt.Errorf("failed to warm history for %s: %w", req.Symbol, err)
	}
	log.WithFields(logrus.Fields{"range": resp.Range, "source": resp.Source, "points": resp.PointCount}).Info("Warmed history")
	return nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
