package models

// Lookup categories loaded from the lookup source.
const (
	LookupUnitOfMeasure = "UNIT_OF_MEASURE"
	LookupForm          = "FORM"
	LookupSupplier      = "SUPPLIER"
)

// Lookup maps a coded attribute to its description.
type Lookup struct {
	Category    string `gorm:"primaryKey;type:varchar(64)" json:"category"`
	Code        int64  `gorm:"primaryKey;autoIncrement:false" json:"code"`
	Description string `gorm:"not null" json:"description"`
}
