package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GenericProduct is a conceptual product (VMP): ingredient, form and strength
// without a named supplier.
type GenericProduct struct {
	ID               int64               `gorm:"primaryKey;autoIncrement:false" json:"product_id"`
	MoietyID         *int64              `gorm:"index" json:"moiety_id,omitempty"`
	Name             string              `gorm:"not null" json:"name"`
	BasisCode        int                 `gorm:"not null;default:0" json:"basis_code"`
	Invalid          bool                `gorm:"not null;default:false" json:"invalid"`
	SugarFree        bool                `gorm:"not null;default:false" json:"sugar_free"`
	GlutenFree       bool                `gorm:"not null;default:false" json:"gluten_free"`
	PreservativeFree bool                `gorm:"not null;default:false" json:"preservative_free"`
	CFCFree          bool                `gorm:"not null;default:false" json:"cfc_free"`
	PreviousID       *int64              `json:"previous_id,omitempty"`
	Ingredients      []ProductIngredient `gorm:"foreignKey:ProductID" json:"ingredients,omitempty"`
	Forms            []ProductForm       `gorm:"foreignKey:ProductID" json:"forms,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// Ingredient is an active substance referenced by product ingredient rows.
type Ingredient struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"ingredient_id"`
	Name      string    `gorm:"not null" json:"name"`
	Invalid   bool      `gorm:"not null;default:false" json:"invalid"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductIngredient links a GenericProduct to one of its active ingredients
// together with the strength numerator and denominator.
type ProductIngredient struct {
	ProductID           int64               `gorm:"primaryKey;autoIncrement:false" json:"product_id"`
	IngredientID        int64               `gorm:"primaryKey;autoIncrement:false;index" json:"ingredient_id"`
	BasisCode           *int                `json:"basis_code,omitempty"`
	StrengthValue       decimal.NullDecimal `gorm:"type:decimal(18,6)" json:"strength_value"`
	StrengthUnitCode    *int64              `json:"strength_unit_code,omitempty"`
	DenominatorValue    decimal.NullDecimal `gorm:"type:decimal(18,6)" json:"denominator_value"`
	DenominatorUnitCode *int64              `json:"denominator_unit_code,omitempty"`
	Ingredient          *Ingredient         `gorm:"foreignKey:IngredientID" json:"ingredient,omitempty"`
}

// ProductForm records a dose form code of a GenericProduct.
type ProductForm struct {
	ProductID int64 `gorm:"primaryKey;autoIncrement:false" json:"product_id"`
	FormCode  int64 `gorm:"primaryKey;autoIncrement:false;index" json:"form_code"`
}
