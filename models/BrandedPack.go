package models

import "time"

// BrandedPack is a supplier-specific, priced pack (AMPP). ListPrice is the
// price carried by the source data; Price and the fields after it are owned by
// the classifier and the price engine.
type BrandedPack struct {
	ID                int64      `gorm:"primaryKey;autoIncrement:false" json:"brand_pack_id"`
	BrandID           int64      `gorm:"not null;index" json:"brand_id"`
	PackID            int64      `gorm:"not null;index" json:"pack_id"`
	Name              string     `gorm:"not null" json:"name"`
	LegalCategoryCode int        `gorm:"not null;default:0" json:"legal_category_code"`
	DiscontinuedCode  *int       `json:"discontinued_code,omitempty"`
	DiscontinuedOn    *time.Time `json:"discontinued_on,omitempty"`
	Invalid           bool       `gorm:"not null;default:false" json:"invalid"`
	HospitalOnly      bool       `gorm:"not null;default:false" json:"hospital_only"`
	ReimbursementCode *int       `json:"reimbursement_code,omitempty"`
	ListPrice         *int64     `json:"list_price,omitempty"`
	ListPriceDate     *time.Time `json:"list_price_date,omitempty"`

	Price             *int64             `json:"price,omitempty"`
	PriceSource       *PriceSource       `gorm:"type:varchar(16)" json:"price_source,omitempty"`
	CalculationMethod *CalculationMethod `gorm:"type:varchar(24);index" json:"calculation_method,omitempty"`
	PriceStatus       PriceStatus        `gorm:"type:varchar(24);not null;default:unknown;index" json:"price_status"`
	MissingReason     *MissingReason     `gorm:"type:varchar(24)" json:"missing_reason,omitempty"`
	ConfidenceScore   *float64           `json:"confidence_score,omitempty"`
	CalculationDate   *time.Time         `json:"calculation_date,omitempty"`
	NeedsReview       bool               `gorm:"not null;default:false" json:"needs_review"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TradeCode is a scannable product identifier (GTIN) attached to a
// BrandedPack for a validity interval.
type TradeCode struct {
	ID          int64      `gorm:"primaryKey" json:"trade_code_id"`
	BrandPackID int64      `gorm:"not null;uniqueIndex:idx_trade_codes_pack_code" json:"brand_pack_id"`
	Code        string     `gorm:"not null;uniqueIndex:idx_trade_codes_pack_code;index" json:"code"`
	StartDate   time.Time  `gorm:"not null" json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ActiveOn reports whether the code is valid on the given day.
func (c TradeCode) ActiveOn(day time.Time) bool {
	if c.StartDate.After(day) {
		return false
	}
	return c.EndDate == nil || !c.EndDate.Before(day)
}
