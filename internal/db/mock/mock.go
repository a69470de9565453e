package mock

import (
	"context"
	"fmt"
	"time"

	"tariffmaster/internal/db"
	applog "tariffmaster/internal/log"
	"tariffmaster/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Unit, form and supplier codes used by the seeded release.
const (
	UnitTablet     int64 = 428673006
	UnitMillilitre int64 = 258773002
	UnitMilligram  int64 = 258684004

	FormSolubleTablet int64 = 385060002
	FormTablet        int64 = 385055001
	FormOralSolution  int64 = 385023001
)

// Open returns an empty, migrated in-memory sqlite database. Every call gets
// its own database so parallel tests never share rows.
func Open(ctx context.Context) (*gorm.DB, error) {
	applog.Debug(ctx, "initialising mock database")

	dsn := fmt.Sprintf("file:tariff-%s?mode=memory&cache=shared", uuid.NewString())
	database, err := gorm.Open(sqlite.Open(dsn), db.GormConfig(logger.Default.LogMode(logger.Silent)))
	if err != nil {
		return nil, err
	}

	// Shared-cache memory databases vanish with their last connection.
	sqlDB, err := database.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(database); err != nil {
		return nil, err
	}
	return database, nil
}

// New returns an in-memory sqlite database seeded with a small dm+d release.
// Every branded pack exercises a different path through classification and
// price inference.
func New(ctx context.Context) (*gorm.DB, error) {
	database, err := Open(ctx)
	if err != nil {
		return nil, err
	}

	if err := seed(ctx, database); err != nil {
		return nil, err
	}

	applog.Debug(ctx, "mock database ready")
	return database, nil
}

func date(value string) *time.Time {
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		panic(err)
	}
	return &t
}

func seed(ctx context.Context, database *gorm.DB) error {
	applog.Debug(ctx, "seeding mock database")

	tx := database.WithContext(ctx)

	lookups := []models.Lookup{
		{Category: models.LookupUnitOfMeasure, Code: UnitTablet, Description: "tablet"},
		{Category: models.LookupUnitOfMeasure, Code: UnitMillilitre, Description: "ml"},
		{Category: models.LookupUnitOfMeasure, Code: UnitMilligram, Description: "mg"},
		{Category: models.LookupForm, Code: FormSolubleTablet, Description: "Soluble tablet"},
		{Category: models.LookupForm, Code: FormTablet, Description: "Tablet"},
		{Category: models.LookupForm, Code: FormOralSolution, Description: "Oral solution"},
		{Category: models.LookupSupplier, Code: 2001, Description: "Acme Ltd"},
		{Category: models.LookupSupplier, Code: 2002, Description: "Zeta Pharma"},
		{Category: models.LookupSupplier, Code: 2003, Description: "Hosp Supplies"},
	}
	if err := tx.Create(&lookups).Error; err != nil {
		return err
	}

	ingredients := []models.Ingredient{
		{ID: 387517004, Name: "Paracetamol"},
		{ID: 387207008, Name: "Ibuprofen"},
	}
	if err := tx.Create(&ingredients).Error; err != nil {
		return err
	}

	moieties := []models.Moiety{
		{ID: 90332006, Name: "Paracetamol"},
		{ID: 108979001, Name: "Ibuprofen"},
	}
	if err := tx.Create(&moieties).Error; err != nil {
		return err
	}

	products := []models.GenericProduct{
		{ID: 10001, MoietyID: models.Ptr[int64](90332006), Name: "Paracetamol 500mg soluble tablets", BasisCode: 1},
		{ID: 10002, MoietyID: models.Ptr[int64](108979001), Name: "Ibuprofen 200mg tablets", BasisCode: 1},
		{ID: 10003, MoietyID: models.Ptr[int64](108979001), Name: "Ibuprofen 400mg tablets", BasisCode: 1},
		{ID: 10004, MoietyID: models.Ptr[int64](90332006), Name: "Paracetamol 250mg/5ml oral solution", BasisCode: 1, SugarFree: true},
	}
	if err := tx.Create(&products).Error; err != nil {
		return err
	}

	strength := func(product, ingredient int64, value int64) models.ProductIngredient {
		return models.ProductIngredient{
			ProductID:        product,
			IngredientID:     ingredient,
			BasisCode:        models.Ptr(1),
			StrengthValue:    decimal.NewNullDecimal(decimal.NewFromInt(value)),
			StrengthUnitCode: models.Ptr(UnitMilligram),
		}
	}
	solution := strength(10004, 387517004, 50)
	solution.DenominatorValue = decimal.NewNullDecimal(decimal.NewFromInt(1))
	solution.DenominatorUnitCode = models.Ptr(UnitMillilitre)
	productIngredients := []models.ProductIngredient{
		strength(10001, 387517004, 500),
		strength(10002, 387207008, 200),
		strength(10003, 387207008, 400),
		solution,
	}
	if err := tx.Create(&productIngredients).Error; err != nil {
		return err
	}

	forms := []models.ProductForm{
		{ProductID: 10001, FormCode: FormSolubleTablet},
		{ProductID: 10002, FormCode: FormTablet},
		{ProductID: 10003, FormCode: FormTablet},
		{ProductID: 10004, FormCode: FormOralSolution},
	}
	if err := tx.Create(&forms).Error; err != nil {
		return err
	}

	packs := []models.GenericPack{
		{ID: 20001, ProductID: 10001, Name: "Paracetamol 500mg soluble tablets 16 tablet", Quantity: decimal.NewFromInt(16), UnitCode: UnitTablet, TariffPrice: models.Ptr[int64](80), TariffDate: date("2024-01-01")},
		{ID: 20002, ProductID: 10001, Name: "Paracetamol 500mg soluble tablets 32 tablet", Quantity: decimal.NewFromInt(32), UnitCode: UnitTablet},
		{ID: 20004, ProductID: 10002, Name: "Ibuprofen 200mg tablets 24 tablet", Quantity: decimal.NewFromInt(24), UnitCode: UnitTablet},
		{ID: 20005, ProductID: 10003, Name: "Ibuprofen 400mg tablets 48 tablet", Quantity: decimal.NewFromInt(48), UnitCode: UnitTablet},
		{ID: 20006, ProductID: 10004, Name: "Paracetamol 250mg/5ml oral solution 100 ml", Quantity: decimal.NewFromInt(100), UnitCode: UnitMillilitre},
	}
	if err := tx.Create(&packs).Error; err != nil {
		return err
	}

	available := models.Ptr(1)
	brands := []models.BrandedProduct{
		{ID: 30001, ProductID: 10001, Name: "Paracetamol 500mg soluble tablets", SupplierCode: 2001, AvailabilityCode: available},
		{ID: 30002, ProductID: 10001, Name: "Panadol Soluble", Description: "Panadol Soluble 500mg tablets (Acme Ltd)", SupplierCode: 2001, AvailabilityCode: available},
		{ID: 30003, ProductID: 10001, Name: "Paracetamol 500mg soluble tablets", SupplierCode: 2003, AvailabilityCode: available},
		{ID: 30004, ProductID: 10002, Name: "Ibuprofen 200mg tablets", SupplierCode: 2002, AvailabilityCode: available},
		{ID: 30005, ProductID: 10002, Name: "Nurofen 200mg tablets", SupplierCode: 2001, AvailabilityCode: available},
		{ID: 30006, ProductID: 10003, Name: "Ibuprofen 400mg tablets", SupplierCode: 2002, AvailabilityCode: available},
		{ID: 30007, ProductID: 10004, Name: "Paracetamol 250mg/5ml oral solution", SupplierCode: 2001, AvailabilityCode: available},
		{ID: 30008, ProductID: 10002, Name: "Ibuprofen 200mg tablets", SupplierCode: 2003, AvailabilityCode: models.Ptr(9)},
		{ID: 30009, ProductID: 10002, Name: "Ibuprofen 200mg tablets", SupplierCode: 2001, AvailabilityCode: available},
	}
	if err := tx.Create(&brands).Error; err != nil {
		return err
	}

	priceDate := date("2024-02-01")
	brandedPacks := []models.BrandedPack{
		{ID: 40001, BrandID: 30001, PackID: 20001, Name: "Paracetamol 500mg soluble tablets (Acme Ltd) 16 tablet", LegalCategoryCode: 1, ReimbursementCode: models.Ptr(1)},
		{ID: 40002, BrandID: 30002, PackID: 20001, Name: "Panadol Soluble (Acme Ltd) 16 tablet", LegalCategoryCode: 1, ListPrice: models.Ptr[int64](95), ListPriceDate: priceDate},
		{ID: 40003, BrandID: 30003, PackID: 20002, Name: "Paracetamol 500mg soluble tablets (Hosp Supplies) 32 tablet", LegalCategoryCode: 3, HospitalOnly: true},
		{ID: 40004, BrandID: 30001, PackID: 20002, Name: "Paracetamol 500mg soluble tablets (Acme Ltd) 32 tablet", LegalCategoryCode: 3},
		{ID: 40005, BrandID: 30004, PackID: 20004, Name: "Ibuprofen 200mg tablets (Zeta Pharma) 24 tablet", LegalCategoryCode: 3, ListPrice: models.Ptr[int64](60), ListPriceDate: priceDate},
		{ID: 40006, BrandID: 30005, PackID: 20004, Name: "Nurofen 200mg tablets (Acme Ltd) 24 tablet", LegalCategoryCode: 3, ListPrice: models.Ptr[int64](180), ListPriceDate: priceDate},
		{ID: 40007, BrandID: 30008, PackID: 20004, Name: "Ibuprofen 200mg tablets (Hosp Supplies) 24 tablet", LegalCategoryCode: 3},
		{ID: 40008, BrandID: 30009, PackID: 20004, Name: "Ibuprofen 200mg tablets (Acme Ltd) 24 tablet", LegalCategoryCode: 3},
		{ID: 40009, BrandID: 30006, PackID: 20005, Name: "Ibuprofen 400mg tablets (Zeta Pharma) 48 tablet", LegalCategoryCode: 1},
		{ID: 40010, BrandID: 30007, PackID: 20006, Name: "Paracetamol 250mg/5ml oral solution (Acme Ltd) 100 ml", LegalCategoryCode: 3},
		{ID: 40011, BrandID: 30007, PackID: 20006, Name: "Paracetamol 250mg/5ml oral solution (Acme Ltd) 100 ml", LegalCategoryCode: 3, DiscontinuedCode: models.Ptr(1), DiscontinuedOn: date("2023-06-01")},
		{ID: 40012, BrandID: 30006, PackID: 20005, Name: "Ibuprofen 400mg tablets (Zeta Pharma) 48 tablet", LegalCategoryCode: 1, ReimbursementCode: models.Ptr(2)},
	}
	for i := range brandedPacks {
		brandedPacks[i].PriceStatus = models.PriceStatusUnknown
	}
	if err := tx.Create(&brandedPacks).Error; err != nil {
		return err
	}

	tradeCodes := []models.TradeCode{
		{BrandPackID: 40001, Code: "5012345678900", StartDate: *date("2020-01-01")},
		{BrandPackID: 40002, Code: "5000000000001", StartDate: *date("2015-01-01"), EndDate: date("2019-12-31")},
		{BrandPackID: 40002, Code: "5000000000002", StartDate: *date("2020-01-01")},
	}
	if err := tx.Create(&tradeCodes).Error; err != nil {
		return err
	}

	applog.Debug(ctx, "mock database seeded")
	return nil
}
