package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/nextworth-marketdata/internal/models"
)

// UpsertPredictionPoint inserts a forecast or updates the existing row for
// the same (asset, horizon, period)
func (db *DB) UpsertPredictionPoint(ctx context.Context, p *models.PredictionPoint) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid prediction point: %w", err)
	}
	if p.FetchedAt.IsZero() {
		p.FetchedAt = time.Now()
	}

	query := `
		INSERT INTO prediction_points (asset_id, horizon, period, predicted_close, lower_bound, upper_bound, model_version, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (asset_id, horizon, period) DO UPDATE SET
			predicted_close = EXCLUDED.predicted_close,
			lower_bound = EXCLUDED.lower_bound,
			upper_bound = EXCLUDED.upper_bound,
			model_version = EXCLUDED.model_version,
			fetched_at = EXCLUDED.fetched_at
		RETURNING id
	`
	err := db.conn.QueryRowContext(ctx, db.rebind(query),
		p.AssetID, string(p.Horizon), p.Period.UTC(), p.PredictedClose,
		nullDecimal(p.LowerBound), nullDecimal(p.UpperBound), p.ModelVersion, p.FetchedAt.UTC(),
	).Scan(&p.ID)

	if err != nil {
		return fmt.Errorf("failed to upsert prediction point: %w", err)
	}
	return nil
}

// GetPredictionPoints retrieves every persisted forecast of one asset and
// horizon, ordered by period
func (db *DB) GetPredictionPoints(ctx context.Context, assetID uuid.UUID, h models.Horizon) ([]*models.PredictionPoint, error) {
	query := `
		SELECT id, asset_id, horizon, period, predicted_close, lower_bound, upper_bound, model_version, fetched_at
		FROM prediction_points
		WHERE asset_id = $1 AND horizon = $2
		ORDER BY period ASC
	`
	rows, err := db.conn.QueryContext(ctx, db.rebind(query), assetID, string(h))
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction points: %w", err)
	}
	defer rows.Close()

	var points []*models.PredictionPoint
	for rows.Next() {
		var p models.PredictionPoint
		var horizon string
		var lower, upper decimal.NullDecimal

		err := rows.Scan(
			&p.ID, &p.AssetID, &horizon, &p.Period, &p.PredictedClose, &lower, &upper, &p.ModelVersion, &p.FetchedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction point: %w", err)
		}
		p.Horizon = models.Horizon(horizon)
		p.Period = p.Period.UTC()
		p.FetchedAt = p.FetchedAt.UTC()
		if lower.Valid {
			p.LowerBound = &lower.Decimal
		}
		if upper.Valid {
			p.UpperBound = &upper.Decimal
		}
		points = append(points, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate prediction points: %w", err)
	}

	return points, nil
}

// CountPredictionsFetchedBefore counts forecast rows last written before t
func (db *DB) CountPredictionsFetchedBefore(ctx context.Context, t time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM prediction_points WHERE fetched_at < $1`
	var count int64
	if err := db.conn.QueryRowContext(ctx, db.rebind(query), t.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count stale predictions: %w", err)
	}
	return count, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
