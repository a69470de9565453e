package source

import "strings"

// Record is one decoded input row. Every kind yields a small closed set of
// variants: the main entity plus the attachments carried in the same file.
type Record interface {
	Kind() Kind
	// Identity is the source identifier used when reporting the record.
	Identity() string
}

// Reference names a record that another record depends on.
type Reference struct {
	Kind Kind
	ID   string
}

// Dependent is implemented by records that cannot be stored without the
// records they reference.
type Dependent interface {
	References() []Reference
}

// Section is implemented by records that attach to a main entity carried in
// the same file, such as the PRICE_INFO of an AMPP.
type Section interface {
	Record
	// Owner is the identity of the main entity the section belongs to.
	Owner() string
}

// LookupRecord is one coded description from a lookup section such as
// UNIT_OF_MEASURE or FORM.
type LookupRecord struct {
	Category    string `xml:"-" validate:"required"`
	Code        string `xml:"CD" validate:"required,numeric"`
	Description string `xml:"DESC" validate:"required"`
}

func (LookupRecord) Kind() Kind         { return KindLookup }
func (r LookupRecord) Identity() string { return r.Category + ":" + r.Code }

type IngredientRecord struct {
	ID      string `xml:"ISID" validate:"required,numeric"`
	Name    string `xml:"NM" validate:"required"`
	Invalid string `xml:"INVALID" validate:"omitempty,oneof=0 1"`
}

func (IngredientRecord) Kind() Kind         { return KindIngredient }
func (r IngredientRecord) Identity() string { return r.ID }

type MoietyRecord struct {
	ID         string `xml:"VTMID" validate:"required,numeric"`
	Name       string `xml:"NM" validate:"required"`
	Invalid    string `xml:"INVALID" validate:"omitempty,oneof=0 1"`
	PreviousID string `xml:"VTMIDPREV" validate:"omitempty,numeric"`
	ChangedOn  string `xml:"VTMIDDT" validate:"omitempty,datetime=2006-01-02"`
}

func (MoietyRecord) Kind() Kind         { return KindMoiety }
func (r MoietyRecord) Identity() string { return r.ID }

type GenericProductRecord struct {
	ID               string `xml:"VPID" validate:"required,numeric"`
	MoietyID         string `xml:"VTMID" validate:"omitempty,numeric"`
	Name             string `xml:"NM" validate:"required"`
	BasisCode        string `xml:"BASISCD" validate:"omitempty,numeric"`
	Invalid          string `xml:"INVALID" validate:"omitempty,oneof=0 1"`
	SugarFree        string `xml:"SUG_F" validate:"omitempty,oneof=0 1"`
	GlutenFree       string `xml:"GLU_F" validate:"omitempty,oneof=0 1"`
	PreservativeFree string `xml:"PRES_F" validate:"omitempty,oneof=0 1"`
	CFCFree          string `xml:"CFC_F" validate:"omitempty,oneof=0 1"`
	PreviousID       string `xml:"VPIDPREV" validate:"omitempty,numeric"`
}

func (GenericProductRecord) Kind() Kind         { return KindGenericProduct }
func (r GenericProductRecord) Identity() string { return r.ID }

// ProductIngredientRecord links a generic product to one ingredient with its
// strength.
type ProductIngredientRecord struct {
	ProductID           string `xml:"VPID" validate:"required,numeric"`
	IngredientID        string `xml:"ISID" validate:"required,numeric"`
	BasisCode           string `xml:"BASIS_STRNTCD" validate:"omitempty,numeric"`
	StrengthValue       string `xml:"STRNT_NMRTR_VAL" validate:"omitempty,numeric"`
	StrengthUnitCode    string `xml:"STRNT_NMRTR_UOMCD" validate:"omitempty,numeric"`
	DenominatorValue    string `xml:"STRNT_DNMTR_VAL" validate:"omitempty,numeric"`
	DenominatorUnitCode string `xml:"STRNT_DNMTR_UOMCD" validate:"omitempty,numeric"`
}

func (ProductIngredientRecord) Kind() Kind         { return KindGenericProduct }
func (r ProductIngredientRecord) Identity() string { return r.ProductID + "/" + r.IngredientID }

type ProductFormRecord struct {
	ProductID string `xml:"VPID" validate:"required,numeric"`
	FormCode  string `xml:"FORMCD" validate:"required,numeric"`
}

func (ProductFormRecord) Kind() Kind         { return KindGenericProduct }
func (r ProductFormRecord) Identity() string { return r.ProductID + "/" + r.FormCode }

type GenericPackRecord struct {
	ID        string `xml:"VPPID" validate:"required,numeric"`
	ProductID string `xml:"VPID" validate:"required,numeric"`
	Name      string `xml:"NM" validate:"required"`
	Quantity  string `xml:"QTYVAL" validate:"required,numeric"`
	UnitCode  string `xml:"QTY_UOMCD" validate:"required,numeric"`
	Invalid   string `xml:"INVALID" validate:"omitempty,oneof=0 1"`
}

func (GenericPackRecord) Kind() Kind         { return KindGenericPack }
func (r GenericPackRecord) Identity() string { return r.ID }

// TariffRecord carries the Drug Tariff price of a generic pack in minor
// currency units.
type TariffRecord struct {
	PackID          string `xml:"VPPID" validate:"required,numeric"`
	PaymentCategory string `xml:"PAY_CATCD" validate:"omitempty,numeric"`
	Price           string `xml:"PRICE" validate:"omitempty,numeric"`
	Date            string `xml:"DT" validate:"omitempty,datetime=2006-01-02"`
}

func (TariffRecord) Kind() Kind         { return KindGenericPack }
func (r TariffRecord) Identity() string { return r.PackID }

type BrandedProductRecord struct {
	ID                     string `xml:"APID" validate:"required,numeric"`
	ProductID              string `xml:"VPID" validate:"required,numeric"`
	Name                   string `xml:"NM" validate:"required"`
	Description            string `xml:"DESC"`
	SupplierCode           string `xml:"SUPPCD" validate:"required,numeric"`
	LicensingAuthorityCode string `xml:"LIC_AUTHCD" validate:"omitempty,numeric"`
	AvailabilityCode       string `xml:"AVAIL_RESTRICTCD" validate:"omitempty,numeric"`
	Invalid                string `xml:"INVALID" validate:"omitempty,oneof=0 1"`
	ParallelImport         string `xml:"PARALLEL_IMPORT" validate:"omitempty,oneof=0 1"`
	EMA                    string `xml:"EMA" validate:"omitempty,oneof=0 1"`
}

func (BrandedProductRecord) Kind() Kind         { return KindBrandedProduct }
func (r BrandedProductRecord) Identity() string { return r.ID }

type BrandedPackRecord struct {
	ID                string `xml:"APPID" validate:"required,numeric"`
	BrandID           string `xml:"APID" validate:"required,numeric"`
	PackID            string `xml:"VPPID" validate:"required,numeric"`
	Name              string `xml:"NM" validate:"required"`
	LegalCategoryCode string `xml:"LEGAL_CATCD" validate:"omitempty,numeric"`
	DiscontinuedCode  string `xml:"DISCCD" validate:"omitempty,numeric"`
	DiscontinuedOn    string `xml:"DISCDT" validate:"omitempty,datetime=2006-01-02"`
	Invalid           string `xml:"INVALID" validate:"omitempty,oneof=0 1"`
}

func (BrandedPackRecord) Kind() Kind         { return KindBrandedPack }
func (r BrandedPackRecord) Identity() string { return r.ID }

// PriceInfoRecord carries the supplier list price of a branded pack.
type PriceInfoRecord struct {
	PackID string `xml:"APPID" validate:"required,numeric"`
	Price  string `xml:"PRICE" validate:"omitempty,numeric"`
	Date   string `xml:"PRICEDT" validate:"omitempty,datetime=2006-01-02"`
}

func (PriceInfoRecord) Kind() Kind         { return KindBrandedPack }
func (r PriceInfoRecord) Identity() string { return r.PackID }

type PrescribingInfoRecord struct {
	PackID       string `xml:"APPID" validate:"required,numeric"`
	HospitalOnly string `xml:"HOSP" validate:"omitempty,oneof=0 1"`
}

func (PrescribingInfoRecord) Kind() Kind         { return KindBrandedPack }
func (r PrescribingInfoRecord) Identity() string { return r.PackID }

// PackInfoRecord carries the reimbursement status of a branded pack.
type PackInfoRecord struct {
	PackID            string `xml:"APPID" validate:"required,numeric"`
	ReimbursementCode string `xml:"REIMB_STATCD" validate:"required,numeric"`
}

func (PackInfoRecord) Kind() Kind         { return KindBrandedPack }
func (r PackInfoRecord) Identity() string { return r.PackID }

// TradeCodeRecord is one GTIN of a branded pack.
type TradeCodeRecord struct {
	PackID    string `xml:"-" validate:"required,numeric"`
	Code      string `xml:"GTIN" validate:"required,numeric,max=14"`
	StartDate string `xml:"STARTDT" validate:"required,datetime=2006-01-02"`
	EndDate   string `xml:"ENDDT" validate:"omitempty,datetime=2006-01-02"`
}

func (TradeCodeRecord) Kind() Kind         { return KindTradeCode }
func (r TradeCodeRecord) Identity() string { return r.PackID + "/" + r.Code }

func ref(kind Kind, id string) Reference {
	return Reference{Kind: kind, ID: strings.TrimSpace(id)}
}

func (r GenericProductRecord) References() []Reference {
	if strings.TrimSpace(r.MoietyID) == "" {
		return nil
	}
	return []Reference{ref(KindMoiety, r.MoietyID)}
}

func (r ProductIngredientRecord) Owner() string { return strings.TrimSpace(r.ProductID) }

func (r ProductIngredientRecord) References() []Reference {
	return []Reference{ref(KindGenericProduct, r.ProductID), ref(KindIngredient, r.IngredientID)}
}

func (r ProductFormRecord) Owner() string { return strings.TrimSpace(r.ProductID) }

func (r ProductFormRecord) References() []Reference {
	return []Reference{ref(KindGenericProduct, r.ProductID)}
}

func (r GenericPackRecord) References() []Reference {
	return []Reference{ref(KindGenericProduct, r.ProductID)}
}

func (r TariffRecord) Owner() string { return strings.TrimSpace(r.PackID) }

func (r TariffRecord) References() []Reference {
	return []Reference{ref(KindGenericPack, r.PackID)}
}

func (r BrandedProductRecord) References() []Reference {
	return []Reference{ref(KindGenericProduct, r.ProductID)}
}

func (r BrandedPackRecord) References() []Reference {
	return []Reference{ref(KindBrandedProduct, r.BrandID), ref(KindGenericPack, r.PackID)}
}

func (r PriceInfoRecord) Owner() string       { return strings.TrimSpace(r.PackID) }
func (r PrescribingInfoRecord) Owner() string { return strings.TrimSpace(r.PackID) }
func (r PackInfoRecord) Owner() string        { return strings.TrimSpace(r.PackID) }

func (r PriceInfoRecord) References() []Reference {
	return []Reference{ref(KindBrandedPack, r.PackID)}
}

func (r PrescribingInfoRecord) References() []Reference {
	return []Reference{ref(KindBrandedPack, r.PackID)}
}

func (r PackInfoRecord) References() []Reference {
	return []Reference{ref(KindBrandedPack, r.PackID)}
}

func (r TradeCodeRecord) References() []Reference {
	return []Reference{ref(KindBrandedPack, r.PackID)}
}
