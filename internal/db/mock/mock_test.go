package mock

import (
	"context"
	"testing"

	"tariffmaster/models"
)

func TestNewSeedsExpectedRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := New(ctx)
	if err != nil {
		t.Fatalf("mock database initialization failed: %v", err)
	}

	counts := []struct {
		model any
		want  int64
	}{
		{&models.GenericProduct{}, 4},
		{&models.GenericPack{}, 5},
		{&models.BrandedProduct{}, 9},
		{&models.BrandedPack{}, 12},
		{&models.TradeCode{}, 3},
		{&models.ProductIngredient{}, 4},
	}
	for _, tt := range counts {
		var got int64
		if err := db.WithContext(ctx).Model(tt.model).Count(&got).Error; err != nil {
			t.Fatalf("count %T: %v", tt.model, err)
		}
		if got != tt.want {
			t.Fatalf("count %T = %d, want %d", tt.model, got, tt.want)
		}
	}

	var pack models.GenericPack
	if err := db.WithContext(ctx).First(&pack, 20001).Error; err != nil {
		t.Fatalf("query generic pack: %v", err)
	}
	if pack.TariffPrice == nil || *pack.TariffPrice != 80 {
		t.Fatalf("tariff price = %v, want 80", pack.TariffPrice)
	}

	var unknown int64
	if err := db.WithContext(ctx).Model(&models.BrandedPack{}).
		Where("price_status = ?", models.PriceStatusUnknown).Count(&unknown).Error; err != nil {
		t.Fatalf("count unknown: %v", err)
	}
	if unknown != 12 {
		t.Fatalf("unknown branded packs = %d, want 12", unknown)
	}
}

func TestOpenIsolatesDatabases(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	seeded, err := New(ctx)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	empty, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	var seededCount, emptyCount int64
	if err := seeded.Model(&models.BrandedPack{}).Count(&seededCount).Error; err != nil {
		t.Fatalf("count seeded: %v", err)
	}
	if err := empty.Model(&models.BrandedPack{}).Count(&emptyCount).Error; err != nil {
		t.Fatalf("count empty: %v", err)
	}
	if seededCount == 0 || emptyCount != 0 {
		t.Fatalf("seeded = %d empty = %d, want seeded rows and an empty database", seededCount, emptyCount)
	}
}
