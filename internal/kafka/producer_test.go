package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/nextworth-marketdata/internal/models"
)

type capturingWriter struct {
	messages []kafka.Message
	err      error
}

func (w *capturingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *capturingWriter) Close() error { return nil }

func TestProducer(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("history refresh event", func(t *testing.T) {
		writer := &capturingWriter{}
		producer := &Producer{writer: writer, topic: "market-data", now: func() time.Time { return now }}

		err := producer.PublishHistoryRefreshed(context.Background(), &models.HistoryResponse{
			Symbol: "AAPL", Range: "2y", Granularity: "1mo", PointCount: 24,
		})
		require.NoError(t, err)
		require.Len(t, writer.messages, 1)
		assert.Equal(t, "AAPL", string(writer.messages[0].Key))

		var event models.RefreshEvent
		require.NoError(t, json.Unmarshal(writer.messages[0].Value, &event))
		assert.Equal(t, models.RefreshEvent{
			EventType:   models.EventHistoryRefreshed,
			Symbol:      "AAPL",
			Range:       "2y",
			Granularity: "1mo",
			PointCount:  24,
			Timestamp:   now,
		}, event)
	})

	t.Run("prediction refresh event", func(t *testing.T) {
		writer := &capturingWriter{}
		producer := &Producer{writer: writer, topic: "market-data", now: func() time.Time { return now }}

		err := producer.PublishPredictionRefreshed(context.Background(), &models.PredictionResponse{
			Symbol: "AAPL", Horizon: "1y", Predictions: make([]models.ForecastPoint, 12),
		})
		require.NoError(t, err)

		var event models.RefreshEvent
		require.NoError(t, json.Unmarshal(writer.messages[0].Value, &event))
		assert.Equal(t, models.EventPredictionRefreshed, event.EventType)
		assert.Equal(t, "1y", event.Horizon)
		assert.Equal(t, 12, event.PointCount)
	})

	t.Run("write failure is wrapped", func(t *testing.T) {
		producer := &Producer{writer: &capturingWriter{err: errors.New("broker down")}, now: time.Now}

		err := producer.PublishHistoryRefreshed(context.Background(), &models.HistoryResponse{Symbol: "AAPL"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker down")
	})
}
