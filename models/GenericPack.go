package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GenericPack is a pack size of a GenericProduct (VMPP), the level at which
// the official tariff price is published.
type GenericPack struct {
	ID          int64           `gorm:"primaryKey;autoIncrement:false" json:"pack_id"`
	ProductID   int64           `gorm:"not null;index" json:"product_id"`
	Name        string          `gorm:"not null" json:"name"`
	Quantity    decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"quantity"`
	UnitCode    int64           `gorm:"not null;index" json:"unit_code"`
	TariffPrice *int64          `json:"tariff_price,omitempty"`
	TariffDate  *time.Time      `json:"tariff_date,omitempty"`
	Invalid     bool            `gorm:"not null;default:false" json:"invalid"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
