package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trogers1052/nextworth-marketdata/internal/models"
)

// ErrAssetNotFound is returned when no catalog record exists for a symbol
var ErrAssetNotFound = errors.New("asset not found")

// EnsureAsset returns the catalog record for a.Symbol, creating it from a
// when absent. Existing records are returned unchanged.
func (db *DB) EnsureAsset(ctx context.Context, a *models.Asset) (*models.Asset, error) {
	symbol := strings.ToUpper(a.Symbol)
	if symbol == "" {
		return nil, errors.New("asset symbol is required")
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO assets (id, symbol, name, category, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol) DO NOTHING
	`
	_, err := db.conn.ExecContext(ctx, db.rebind(query),
		uuid.New(), symbol, a.Name, a.Category, models.NormalizeCurrency(a.Currency), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create asset %s: %w", symbol, err)
	}

	return db.GetAssetBySymbol(ctx, symbol)
}

// GetAssetBySymbol retrieves a catalog record
func (db *DB) GetAssetBySymbol(ctx context.Context, symbol string) (*models.Asset, error) {
	query := `
		SELECT id, symbol, name, category, currency, created_at, updated_at
		FROM assets
		WHERE symbol = $1
	`
	var a models.Asset
	err := db.conn.QueryRowContext(ctx, db.rebind(query), strings.ToUpper(symbol)).Scan(
		&a.ID, &a.Symbol, &a.Name, &a.Category, &a.Currency, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return &a, nil
}

// UpdateAssetMetadata records the display name and quote currency reported
// by an upstream
func (db *DB) UpdateAssetMetadata(ctx context.Context, id uuid.UUID, name, currency string) error {
	query := `
		UPDATE assets
		SET name = $1, currency = $2, updated_at = $3
		WHERE id = $4
	`
	result, err := db.conn.ExecContext(ctx, db.rebind(query), name, models.NormalizeCurrency(currency), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update asset: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	return nil
}
