package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trogers1052/nextworth-marketdata/internal/models"
)

// UpsertPricePoint inserts a price point or updates the existing row for the
// same (asset, granularity, period)
func (db *DB) UpsertPricePoint(ctx context.Context, p *models.PricePoint) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid price point: %w", err)
	}
	if p.FetchedAt.IsZero() {
		p.FetchedAt = time.Now()
	}

	query := `
		INSERT INTO price_points (asset_id, granularity, period, open, high, low, close, volume, currency, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (asset_id, granularity, period) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			currency = EXCLUDED.currency,
			fetched_at = EXCLUDED.fetched_at
		RETURNING id
	`
	err := db.conn.QueryRowContext(ctx, db.rebind(query),
		p.AssetID, string(p.Granularity), p.Period.UTC(), p.Open, p.High, p.Low, p.Close, p.Volume, p.Currency, p.FetchedAt.UTC(),
	).Scan(&p.ID)

	if err != nil {
		return fmt.Errorf("failed to upsert price point: %w", err)
	}
	return nil
}

// GetPricePointsRange retrieves one asset's series within [start, end], oldest first
func (db *DB) GetPricePointsRange(ctx context.Context, assetID uuid.UUID, g models.Granularity, start, end time.Time) ([]*models.PricePoint, error) {
	query := `
		SELECT id, asset_id, granularity, period, open, high, low, close, volume, currency, fetched_at
		FROM price_points
		WHERE asset_id = $1 AND granularity = $2 AND period >= $3 AND period <= $4
		ORDER BY period ASC
	`
	rows, err := db.conn.QueryContext(ctx, db.rebind(query), assetID, string(g), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get price points range: %w", err)
	}
	defer rows.Close()

	var points []*models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		var granularity string

		err := rows.Scan(
			&p.ID, &p.AssetID, &granularity, &p.Period, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume, &p.Currency, &p.FetchedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		p.Granularity = models.Granularity(granularity)
		p.Period = p.Period.UTC()
		p.FetchedAt = p.FetchedAt.UTC()
		points = append(points, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate price points: %w", err)
	}

	return points, nil
}

// StaleSeries identifies a persisted series whose newest write is older than
// a cutoff
type StaleSeries struct {
	Symbol      string
	Granularity models.Granularity
	Points      int
}

// ListStaleSeries returns series whose most recent fetched_at is before the
// cutoff, least recently refreshed first
func (db *DB) ListStaleSeries(ctx context.Context, before time.Time, limit int) ([]StaleSeries, error) {
	query := `
		SELECT a.symbol, p.granularity, COUNT(*)
		FROM price_points p
		JOIN assets a ON a.id = p.asset_id
		GROUP BY a.symbol, p.granularity
		HAVING MAX(p.fetched_at) < $1
		ORDER BY MAX(p.fetched_at) ASC
		LIMIT $2
	`
	rows, err := db.conn.QueryContext(ctx, db.rebind(query), before.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale series: %w", err)
	}
	defer rows.Close()

	var series []StaleSeries
	for rows.Next() {
		var s StaleSeries
		var granularity string
		if err := rows.Scan(&s.Symbol, &granularity, &s.Points); err != nil {
			return nil, fmt.Errorf("failed to scan stale series: %w", err)
		}
		s.Granularity = models.Granularity(granularity)
		series = append(series, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stale series: %w", err)
	}
	return series, nil
}
