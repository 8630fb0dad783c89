// Package mlservice calls the forecasting service over HTTP.
package mlservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/nextworth-marketdata/internal/models"
	"github.com/trogers1052/nextworth-marketdata/internal/upstream"
)

const (
	providerName   = "ml-service"
	defaultTimeout = 30 * time.Second
	dateLayout     = "2006-01-02"
)

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client posts histories to the forecasting service
type Client struct {
	baseURL    string
	httpClient HTTPClient
	timeout    time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the HTTP client
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the hard bound on a single prediction call
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a client for the service at baseURL
func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		timeout:    defaultTimeout,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) Name() string { return providerName }

type historyPoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

type predictRequest struct {
	Symbol   string         `json:"symbol"`
	History  []historyPoint `json:"history"`
	Horizon  string         `json:"horizon"`
	Currency string         `json:"currency"`
}

type predictResponse struct {
	Symbol      string `json:"symbol"`
	Horizon     string `json:"horizon"`
	Predictions []struct {
		Date           string   `json:"date"`
		PredictedClose *float64 `json:"predicted_close"`
		LowerBound     *float64 `json:"lower_bound"`
		UpperBound     *float64 `json:"upper_bound"`
	} `json:"predictions"`
	ModelVersion    string `json:"model_version"`
	InferenceTimeMS int64  `json:"inference_time_ms"`
	InputDataPoints int    `json:"input_data_points"`
	Currency        string `json:"currency"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Predict sends req to POST /api/predict. The call is abandoned after the
// configured timeout.
func (c *Client) Predict(ctx context.Context, req upstream.PredictionRequest) upstream.PredictionResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := predictRequest{
		Symbol:   req.Symbol,
		Horizon:  string(req.Horizon),
		Currency: models.NormalizeCurrency(req.Currency),
		History:  make([]historyPoint, 0, len(req.History)),
	}
	for _, o := range req.History {
		payload.History = append(payload.History, historyPoint{
			Date:  o.Date.UTC().Format(dateLayout),
			Close: o.Close.InexactFloat64(),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return upstream.Failed(upstream.ReasonRejected, fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/predict", bytes.NewReader(body))
	if err != nil {
		return upstream.Failed(upstream.ReasonUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if upstream.IsTimeout(err) {
			return upstream.Failed(upstream.ReasonTimeout, err)
		}
		return upstream.Failed(upstream.ReasonUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if upstream.IsTimeout(err) {
			return upstream.Failed(upstream.ReasonTimeout, err)
		}
		return upstream.Failed(upstream.ReasonUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return upstream.Failed(upstream.ReasonUnavailable, fmt.Errorf("ml-service: status %d: %s", resp.StatusCode, errorMessage(raw)))
	case resp.StatusCode >= 400:
		return upstream.Failed(upstream.ReasonRejected, fmt.Errorf("ml-service: status %d: %s", resp.StatusCode, errorMessage(raw)))
	case resp.StatusCode != http.StatusOK:
		return upstream.Failed(upstream.ReasonMalformed, fmt.Errorf("ml-service: unexpected status %d", resp.StatusCode))
	}

	var out predictResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return upstream.Failed(upstream.ReasonMalformed, fmt.Errorf("ml-service decode: %w", err))
	}

	forecast, err := toForecast(out, payload.Currency, len(req.History))
	if err != nil {
		return upstream.Failed(upstream.ReasonMalformed, err)
	}
	return upstream.Ok(forecast)
}

func toForecast(out predictResponse, currency string, sent int) (*upstream.Forecast, error) {
	if len(out.Predictions) == 0 {
		return nil, errors.New("ml-service: empty predictions")
	}
	if out.Currency != "" {
		currency = models.NormalizeCurrency(out.Currency)
	}
	places := models.MinorUnits(currency)

	f := &upstream.Forecast{
		ModelVersion:  out.ModelVersion,
		InferenceTime: time.Duration(out.InferenceTimeMS) * time.Millisecond,
		InputPoints:   out.InputDataPoints,
		Steps:         make([]upstream.ForecastStep, 0, len(out.Predictions)),
	}
	if f.InputPoints == 0 {
		f.InputPoints = sent
	}

	for i, p := range out.Predictions {
		date, err := parseDate(p.Date)
		if err != nil {
			return nil, fmt.Errorf("ml-service: prediction %d: %w", i, err)
		}
		if p.PredictedClose == nil {
			return nil, fmt.Errorf("ml-service: prediction %d has no predicted_close", i)
		}
		f.Steps = append(f.Steps, upstream.ForecastStep{
			Date:       date,
			Close:      clampPrice(*p.PredictedClose, places),
			LowerBound: optionalPrice(p.LowerBound, places),
			UpperBound: optionalPrice(p.UpperBound, places),
		})
	}
	return f, nil
}

func parseDate(s string) (time.Time, error) {
	if len(s) >= len(dateLayout) {
		if t, err := time.Parse(dateLayout, s[:len(dateLayout)]); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// clampPrice floors forecasts at zero and rounds to the currency's minor units
func clampPrice(v float64, places int32) decimal.Decimal {
	d := decimal.NewFromFloat(v).Round(places)
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func optionalPrice(v *float64, places int32) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := clampPrice(*v, places)
	return &d
}

func errorMessage(raw []byte) string {
	var e errorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.Error != "" {
		return e.Error
	}
	if len(raw) > 200 {
		return string(raw[:200])
	}
	return string(raw)
}
