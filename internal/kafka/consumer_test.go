package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/nextworth-marketdata/internal/marketcache"
	"github.com/trogers1052/nextworth-marketdata/internal/models"
)

// MockWarmer records the warm-up calls made by the consumer
type MockWarmer struct {
	HistoryRequests []marketcache.HistoryRequest
	Predictions     []string
	Err             error
}

func (m *MockWarmer) GetHistory(ctx context.Context, req marketcache.HistoryRequest) (*models.HistoryResponse, error) {
	m.HistoryRequests = append(m.HistoryRequests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	return &models.HistoryResponse{Symbol: req.Symbol, Source: models.SourceUpstream}, nil
}

func (m *MockWarmer) GetPrediction(ctx context.Context, symbol string, horizon models.Horizon) (*models.PredictionResponse, error) {
	m.Predictions = append(m.Predictions, symbol+"/"+string(horizon))
	if m.Err != nil {
		return nil, m.Err
	}
	return &models.PredictionResponse{Symbol: symbol, Horizon: string(horizon), Source: models.SourceModel}, nil
}

func newTestConsumer(warmer Warmer) *Consumer {
	logger, _ := test.NewNullLogger()
	return &Consumer{warmer: warmer, logger: logger}
}

func message(t *testing.T, req models.RefreshRequest) kafka.Message {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(req.Symbol), Value: data}
}

func TestProcessHistoryRefresh(t *testing.T) {
	warmer := &MockWarmer{}
	consumer := newTestConsumer(warmer)

	err := consumer.processMessage(context.Background(), message(t, models.RefreshRequest{
		EventType: models.EventRefreshRequested,
		Symbol:    "AAPL",
		Months:    1,
		Interval:  "1d",
	}))
	require.NoError(t, err)

	require.Len(t, warmer.HistoryRequests, 1)
	assert.Equal(t, marketcache.HistoryRequest{Symbol: "AAPL", Months: 1, Granularity: models.GranularityDaily}, warmer.HistoryRequests[0])
	assert.Empty(t, warmer.Predictions)
}

func TestProcessHistoryRefreshDefaults(t *testing.T) {
	warmer := &MockWarmer{}
	consumer := newTestConsumer(warmer)

	require.NoError(t, consumer.processMessage(context.Background(), message(t, models.RefreshRequest{
		EventType: models.EventRefreshRequested,
		Symbol:    "MSFT",
	})))

	require.Len(t, warmer.HistoryRequests, 1)
	assert.Equal(t, 12, warmer.HistoryRequests[0].Months)
	assert.Equal(t, models.GranularityMonthly, warmer.HistoryRequests[0].Granularity)
}

func TestProcessPredictionRefresh(t *testing.T) {
	warmer := &MockWarmer{}
	consumer := newTestConsumer(warmer)

	require.NoError(t, consumer.processMessage(context.Background(), message(t, models.RefreshRequest{
		EventType: models.EventRefreshRequested,
		Symbol:    "BTC-USD",
		Horizon:   "5y",
	})))

	assert.Equal(t, []string{"BTC-USD/5y"}, warmer.Predictions)
	assert.Empty(t, warmer.HistoryRequests)
}

func TestOtherEventsAreIgnored(t *testing.T) {
	warmer := &MockWarmer{}
	consumer := newTestConsumer(warmer)

	require.NoError(t, consumer.processMessage(context.Background(), message(t, models.RefreshRequest{
		EventType: models.EventHistoryRefreshed,
		Symbol:    "AAPL",
	})))
	assert.Empty(t, warmer.HistoryRequests)
	assert.Empty(t, warmer.Predictions)
}

func TestInvalidRefreshRequests(t *testing.T) {
	consumer := newTestConsumer(&MockWarmer{})

	assert.Error(t, consumer.processMessage(context.Background(), kafka.Message{Value: []byte("not json")}))
	assert.Error(t, consumer.processMessage(context.Background(), message(t, models.RefreshRequest{EventType: models.EventRefreshRequested})))
	assert.Error(t, consumer.processMessage(context.Background(), message(t, models.RefreshRequest{
		EventType: models.EventRefreshRequested, Symbol: "AAPL", Horizon: "10y",
	})))
	assert.Error(t, consumer.processMessage(context.Background(), message(t, models.RefreshRequest{
		EventType: models.EventRefreshRequested, Symbol: "AAPL", Interval: "1h",
	})))
}

func TestWarmFailureIsReported(t *testing.T) {
	warmer := &MockWarmer{Err: marketcache.ErrUnavailable}
	consumer := newTestConsumer(warmer)

	err := consumer.processMessage(context.Background(), message(t, models.RefreshRequest{
		EventType: models.EventRefreshRequested, Symbol: "AAPL", Months: 24,
	}))
	assert.True(t, errors.Is(err, marketcache.ErrUnavailable))
}
