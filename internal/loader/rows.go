package loader

import (
	"fmt"
	"strconv"
	"time"

	"tariffmaster/internal/source"
	"tariffmaster/models"

	"github.com/shopspring/decimal"
)

// Records are validated before they get here, so parse failures only happen
// on values that overflow their column.

func parseID(field, value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return id, nil
}

func parseOptionalID(field, value string) (*int64, error) {
	if value == "" {
		return nil, nil
	}
	id, err := parseID(field, value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseCode(field, value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	code, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return code, nil
}

func parseOptionalCode(field, value string) (*int, error) {
	if value == "" {
		return nil, nil
	}
	code, err := parseCode(field, value)
	if err != nil {
		return nil, err
	}
	return &code, nil
}

func parseDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	day, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &day, nil
}

func parseDecimal(field, value string) (decimal.NullDecimal, error) {
	if value == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%s: %w", field, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func flag(value string) bool {
	return value == "1"
}

// rowBuilder collects the first conversion error so row functions read as a
// plain field list.
type rowBuilder struct {
	err error
}

func (b *rowBuilder) id(field, value string) int64 {
	if b.err != nil {
		return 0
	}
	v, err := parseID(field, value)
	b.err = err
	return v
}

func (b *rowBuilder) optionalID(field, value string) *int64 {
	if b.err != nil {
		return nil
	}
	v, err := parseOptionalID(field, value)
	b.err = err
	return v
}

func (b *rowBuilder) code(field, value string) int {
	if b.err != nil {
		return 0
	}
	v, err := parseCode(field, value)
	b.err = err
	return v
}

func (b *rowBuilder) optionalCode(field, value string) *int {
	if b.err != nil {
		return nil
	}
	v, err := parseOptionalCode(field, value)
	b.err = err
	return v
}

func (b *rowBuilder) date(field, value string) *time.Time {
	if b.err != nil {
		return nil
	}
	v, err := parseDate(field, value)
	b.err = err
	return v
}

func (b *rowBuilder) decimal(field, value string) decimal.NullDecimal {
	if b.err != nil {
		return decimal.NullDecimal{}
	}
	v, err := parseDecimal(field, value)
	b.err = err
	return v
}

func lookupRow(r source.LookupRecord) (models.Lookup, error) {
	var b rowBuilder
	row := models.Lookup{
		Category:    r.Category,
		Code:        b.id("CD", r.Code),
		Description: r.Description,
	}
	return row, b.err
}

func ingredientRow(r source.IngredientRecord) (models.Ingredient, error) {
	var b rowBuilder
	row := models.Ingredient{
		ID:      b.id("ISID", r.ID),
		Name:    r.Name,
		Invalid: flag(r.Invalid),
	}
	return row, b.err
}

func moietyRow(r source.MoietyRecord) (models.Moiety, error) {
	var b rowBuilder
	row := models.Moiety{
		ID:         b.id("VTMID", r.ID),
		Name:       r.Name,
		Invalid:    flag(r.Invalid),
		PreviousID: b.optionalID("VTMIDPREV", r.PreviousID),
		ChangedOn:  b.date("VTMIDDT", r.ChangedOn),
	}
	return row, b.err
}

func productRow(r source.GenericProductRecord) (models.GenericProduct, error) {
	var b rowBuilder
	row := models.GenericProduct{
		ID:               b.id("VPID", r.ID),
		MoietyID:         b.optionalID("VTMID", r.MoietyID),
		Name:             r.Name,
		BasisCode:        b.code("BASISCD", r.BasisCode),
		Invalid:          flag(r.Invalid),
		SugarFree:        flag(r.SugarFree),
		GlutenFree:       flag(r.GlutenFree),
		PreservativeFree: flag(r.PreservativeFree),
		CFCFree:          flag(r.CFCFree),
		PreviousID:       b.optionalID("VPIDPREV", r.PreviousID),
	}
	return row, b.err
}

func productIngredientRow(r source.ProductIngredientRecord) (models.ProductIngredient, error) {
	var b rowBuilder
	row := models.ProductIngredient{
		ProductID:           b.id("VPID", r.ProductID),
		IngredientID:        b.id("ISID", r.IngredientID),
		BasisCode:           b.optionalCode("BASIS_STRNTCD", r.BasisCode),
		StrengthValue:       b.decimal("STRNT_NMRTR_VAL", r.StrengthValue),
		StrengthUnitCode:    b.optionalID("STRNT_NMRTR_UOMCD", r.StrengthUnitCode),
		DenominatorValue:    b.decimal("STRNT_DNMTR_VAL", r.DenominatorValue),
		DenominatorUnitCode: b.optionalID("STRNT_DNMTR_UOMCD", r.DenominatorUnitCode),
	}
	return row, b.err
}

func productFormRow(r source.ProductFormRecord) (models.ProductForm, error) {
	var b rowBuilder
	row := models.ProductForm{
		ProductID: b.id("VPID", r.ProductID),
		FormCode:  b.id("FORMCD", r.FormCode),
	}
	return row, b.err
}

func genericPackRow(r source.GenericPackRecord) (models.GenericPack, error) {
	var b rowBuilder
	quantity := b.decimal("QTYVAL", r.Quantity)
	row := models.GenericPack{
		ID:        b.id("VPPID", r.ID),
		ProductID: b.id("VPID", r.ProductID),
		Name:      r.Name,
		Quantity:  quantity.Decimal,
		UnitCode:  b.id("QTY_UOMCD", r.UnitCode),
		Invalid:   flag(r.Invalid),
	}
	return row, b.err
}

// tariff is the price attachment of a generic pack.
type tariff struct {
	PackID int64
	Price  *int64
	Date   *time.Time
}

func tariffRow(r source.TariffRecord) (tariff, error) {
	var b rowBuilder
	row := tariff{
		PackID: b.id("VPPID", r.PackID),
		Price:  b.optionalID("PRICE", r.Price),
		Date:   b.date("DT", r.Date),
	}
	return row, b.err
}

func brandedProductRow(r source.BrandedProductRecord) (models.BrandedProduct, error) {
	var b rowBuilder
	row := models.BrandedProduct{
		ID:                     b.id("APID", r.ID),
		ProductID:              b.id("VPID", r.ProductID),
		Name:                   r.Name,
		Description:            r.Description,
		SupplierCode:           b.id("SUPPCD", r.SupplierCode),
		LicensingAuthorityCode: b.code("LIC_AUTHCD", r.LicensingAuthorityCode),
		AvailabilityCode:       b.optionalCode("AVAIL_RESTRICTCD", r.AvailabilityCode),
		ParallelImport:         flag(r.ParallelImport),
		EMA:                    flag(r.EMA),
		Invalid:                flag(r.Invalid),
	}
	return row, b.err
}

func brandedPackRow(r source.BrandedPackRecord) (models.BrandedPack, error) {
	var b rowBuilder
	row := models.BrandedPack{
		ID:                b.id("APPID", r.ID),
		BrandID:           b.id("APID", r.BrandID),
		PackID:            b.id("VPPID", r.PackID),
		Name:              r.Name,
		LegalCategoryCode: b.code("LEGAL_CATCD", r.LegalCategoryCode),
		DiscontinuedCode:  b.optionalCode("DISCCD", r.DiscontinuedCode),
		DiscontinuedOn:    b.date("DISCDT", r.DiscontinuedOn),
		Invalid:           flag(r.Invalid),
		PriceStatus:       models.PriceStatusUnknown,
	}
	return row, b.err
}

// packAttachment is one column update on a branded pack carried by the
// PRICE_INFO, PRESCRIB_INFO and PACK_INFO sections.
type packAttachment struct {
	PackID  int64
	Columns map[string]any
}

func priceInfoRow(r source.PriceInfoRecord) (packAttachment, error) {
	var b rowBuilder
	row := packAttachment{
		PackID: b.id("APPID", r.PackID),
		Columns: map[string]any{
			"list_price":      b.optionalID("PRICE", r.Price),
			"list_price_date": b.date("PRICEDT", r.Date),
		},
	}
	return row, b.err
}

func prescribingInfoRow(r source.PrescribingInfoRecord) (packAttachment, error) {
	var b rowBuilder
	row := packAttachment{
		PackID:  b.id("APPID", r.PackID),
		Columns: map[string]any{"hospital_only": flag(r.HospitalOnly)},
	}
	return row, b.err
}

func packInfoRow(r source.PackInfoRecord) (packAttachment, error) {
	var b rowBuilder
	row := packAttachment{
		PackID:  b.id("APPID", r.PackID),
		Columns: map[string]any{"reimbursement_code": b.optionalCode("REIMB_STATCD", r.ReimbursementCode)},
	}
	return row, b.err
}

func tradeCodeRow(r source.TradeCodeRecord) (models.TradeCode, error) {
	var b rowBuilder
	row := models.TradeCode{
		BrandPackID: b.id("AMPPID", r.PackID),
		Code:        r.Code,
		EndDate:     b.date("ENDDT", r.EndDate),
	}
	if start := b.date("STARTDT", r.StartDate); start != nil {
		row.StartDate = *start
	}
	return row, b.err
}
