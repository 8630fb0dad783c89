package models

import (
	"time"

	"github.com/google/uuid"
)

// Asset categories
const (
	CategoryStock     = "stock"
	CategoryCrypto    = "crypto"
	CategoryIndex     = "index"
	CategoryCurrency  = "currency"
	CategoryCommodity = "commodity"
)

// Asset is the catalog record for a priced entity
type Asset struct {
	ID        uuid.UUID `json:"id"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
