package models

import "time"

// BrandedProduct is a supplier-specific realisation of a GenericProduct (AMP).
type BrandedProduct struct {
	ID                     int64     `gorm:"primaryKey;autoIncrement:false" json:"brand_id"`
	ProductID              int64     `gorm:"not null;index" json:"product_id"`
	Name                   string    `gorm:"not null" json:"name"`
	Description            string    `json:"description"`
	SupplierCode           int64     `gorm:"not null;index" json:"supplier_code"`
	LicensingAuthorityCode int       `gorm:"not null;default:0" json:"licensing_authority_code"`
	AvailabilityCode       *int      `json:"availability_code,omitempty"`
	ParallelImport         bool      `gorm:"not null;default:false" json:"parallel_import"`
	EMA                    bool      `gorm:"not null;default:false" json:"ema"`
	Invalid                bool      `gorm:"not null;default:false" json:"invalid"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}
