// Package yahoo adapts the Yahoo Finance chart API to upstream.SeriesProvider.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/nextworth-marketdata/internal/models"
	"github.com/trogers1052/nextworth-marketdata/internal/upstream"
)

const (
	providerName   = "yahoo"
	defaultBaseURL = "https://query1.finance.yahoo.com"
	defaultTimeout = 15 * time.Second
	pricePlaces    = 6
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=yahoo_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches chart history from Yahoo Finance
type Client struct {
	baseURL    string
	httpClient HTTPClient
	timeout    time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL overrides the API host
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds every chart request
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a Yahoo chart client
func New(options ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		timeout:    defaultTimeout,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) Name() string { return providerName }

// chartResponse is the response structure from the chart API
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency  string `json:"currency"`
				Symbol    string `json:"symbol"`
				LongName  string `json:"longName"`
				ShortName string `json:"shortName"`
				GMTOffset int    `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchSeries downloads months of history at granularity g
func (c *Client) FetchSeries(ctx context.Context, symbol string, months int, g models.Granularity) (*upstream.Series, error) {
	symbol = upstream.NormalizeSymbol(symbol)
	rng, ok := models.RangeLabel(months)
	if !ok {
		rng, _ = models.RangeLabel(models.RoundUpMonths(months))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s&includePrePost=false",
		c.baseURL, url.PathEscape(symbol), url.QueryEscape(string(g)), url.QueryEscape(rng))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, upstream.Unavailable(providerName, symbol, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, upstream.FromTransport(providerName, symbol, fmt.Errorf("yahoo fetch: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, upstream.FromTransport(providerName, symbol, fmt.Errorf("yahoo read body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, upstream.NotFound(providerName, symbol, errors.New("yahoo: symbol not found"))
	case resp.StatusCode != http.StatusOK:
		return nil, upstream.Unavailable(providerName, symbol, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, truncate(body, 200)))
	}

	var chart chartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, upstream.Unavailable(providerName, symbol, fmt.Errorf("yahoo decode: %w", err))
	}
	if chart.Chart.Error != nil {
		if strings.EqualFold(chart.Chart.Error.Code, "Not Found") {
			return nil, upstream.NotFound(providerName, symbol, errors.New(chart.Chart.Error.Description))
		}
		return nil, upstream.Unavailable(providerName, symbol, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description))
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, upstream.NotFound(providerName, symbol, errors.New("yahoo: no data returned"))
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	offset := time.Duration(result.Meta.GMTOffset) * time.Second
	currency := models.NormalizeCurrency(result.Meta.Currency)

	bars := make([]upstream.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		cl := at(quote.Close, i)
		if cl == nil {
			continue // holidays and halted sessions come back as null bars
		}
		closeD := price(cl)
		bars = append(bars, upstream.Bar{
			// shift to exchange-local wall time so buckets match the trading day
			Period:   time.Unix(ts, 0).UTC().Add(offset),
			Open:     priceOr(at(quote.Open, i), closeD),
			High:     priceOr(at(quote.High, i), closeD),
			Low:      priceOr(at(quote.Low, i), closeD),
			Close:    closeD,
			Volume:   volume(at(quote.Volume, i)),
			Currency: currency,
		})
	}
	if len(bars) == 0 {
		return nil, upstream.NotFound(providerName, symbol, errors.New("yahoo: only empty bars returned"))
	}

	name := result.Meta.LongName
	if name == "" {
		name = result.Meta.ShortName
	}

	return &upstream.Series{
		Symbol:      symbol,
		Name:        name,
		Currency:    currency,
		Granularity: g,
		Bars:        upstream.NormalizeBars(bars, g, currency),
	}, nil
}

func at(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}

func price(v *float64) decimal.Decimal {
	return decimal.NewFromFloat(*v).Round(pricePlaces)
}

func priceOr(v *float64, fallback decimal.Decimal) decimal.Decimal {
	if v == nil {
		return fallback
	}
	return price(v)
}

func volume(v *float64) int64 {
	if v == nil || *v < 0 {
		return 0
	}
	return int64(*v)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
