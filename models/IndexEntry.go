package models

// IndexEntry is one row of the denormalised search projection. There is
// exactly one row per BrandedPack.
type IndexEntry struct {
	ID                 int64              `gorm:"primaryKey" json:"id"`
	MoietyID           *int64             `gorm:"index" json:"moiety_id,omitempty"`
	ProductID          int64              `gorm:"not null;index" json:"product_id"`
	PackID             int64              `gorm:"not null;index" json:"pack_id"`
	BrandID            int64              `gorm:"not null" json:"brand_id"`
	BrandPackID        int64              `gorm:"not null;uniqueIndex" json:"brand_pack_id"`
	TradeCode          *string            `gorm:"index" json:"trade_code,omitempty"`
	Name               string             `gorm:"not null;index" json:"name"`
	GenericName        string             `gorm:"not null" json:"generic_name"`
	IsBrand            bool               `gorm:"not null" json:"is_brand"`
	IngredientList     string             `gorm:"index:idx_unified_index_ingredient_form" json:"ingredient_list"`
	Form               string             `gorm:"index:idx_unified_index_ingredient_form" json:"form"`
	PackSize           string             `json:"pack_size"`
	TariffPrice        *int64             `json:"tariff_price,omitempty"`
	TariffPriceDisplay string             `json:"tariff_price_display"`
	Price              *int64             `json:"price,omitempty"`
	PriceDisplay       string             `json:"price_display"`
	PriceSource        *PriceSource       `gorm:"type:varchar(16)" json:"price_source,omitempty"`
	PriceStatus        PriceStatus        `gorm:"type:varchar(24);not null" json:"price_status"`
	MissingReason      *MissingReason     `gorm:"type:varchar(24)" json:"missing_reason,omitempty"`
	CalculationMethod  *CalculationMethod `gorm:"type:varchar(24);index" json:"calculation_method,omitempty"`
	ConfidenceScore    *float64           `json:"confidence_score,omitempty"`
	NeedsReview        bool               `gorm:"not null;default:false" json:"needs_review"`
}

// TableName keeps the projection under its historical name.
func (IndexEntry) TableName() string {
	return "unified_index"
}
