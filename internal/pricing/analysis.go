package pricing

import (
	"context"
	"fmt"

	"tariffmaster/internal/store"
	"tariffmaster/models"
)

// MethodStats describes the estimates produced by one tier.
type MethodStats struct {
	Method        models.CalculationMethod `json:"method"`
	Count         int64                    `json:"count"`
	AvgConfidence float64                  `json:"avg_confidence"`
	MinConfidence float64                  `json:"min_confidence"`
	MaxConfidence float64                  `json:"max_confidence"`
	// AvgPrice is in minor currency units.
	AvgPrice float64 `json:"avg_price"`
}

// Analysis is the price resolution state of the whole store.
type Analysis struct {
	Total       int64                          `json:"total"`
	ByStatus    map[models.PriceStatus]int64   `json:"by_status"`
	Initial     int64                          `json:"initial"`
	ByReason    map[models.MissingReason]int64 `json:"by_reason"`
	Methods     []MethodStats                  `json:"methods"`
	NeedsReview int64                          `json:"needs_review"`
}

// Analyze summarises the price resolution columns of every branded pack.
func Analyze(ctx context.Context, s *store.Store) (Analysis, error) {
	db := s.DB(ctx)
	analysis := Analysis{
		ByStatus: map[models.PriceStatus]int64{},
		ByReason: map[models.MissingReason]int64{},
	}

	var statuses []struct {
		PriceStatus models.PriceStatus
		N           int64
	}
	if err := db.Model(&models.BrandedPack{}).Select("price_status, COUNT(*) AS n").
		Group("price_status").Scan(&statuses).Error; err != nil {
		return analysis, fmt.Errorf("count statuses: %w", err)
	}
	for _, row := range statuses {
		analysis.ByStatus[row.PriceStatus] = row.N
		analysis.Total += row.N
	}

	var reasons []struct {
		MissingReason models.MissingReason
		N             int64
	}
	if err := db.Model(&models.BrandedPack{}).Select("missing_reason, COUNT(*) AS n").
		Where("price_status = ?", models.PriceStatusIntentionallyMissing).
		Group("missing_reason").Scan(&reasons).Error; err != nil {
		return analysis, fmt.Errorf("count missing reasons: %w", err)
	}
	for _, row := range reasons {
		analysis.ByReason[row.MissingReason] = row.N
	}

	if err := db.Model(&models.BrandedPack{}).
		Where("price_source = ?", models.PriceSourceInitial).
		Count(&analysis.Initial).Error; err != nil {
		return analysis, fmt.Errorf("count initial prices: %w", err)
	}

	if err := db.Model(&models.BrandedPack{}).
		Where("needs_review = ?", true).
		Count(&analysis.NeedsReview).Error; err != nil {
		return analysis, fmt.Errorf("count reviews: %w", err)
	}

	var methods []struct {
		CalculationMethod models.CalculationMethod
		Count             int64
		AvgConfidence     float64
		MinConfidence     float64
		MaxConfidence     float64
		AvgPrice          float64
	}
	err := db.Model(&models.BrandedPack{}).
		Select(`calculation_method, COUNT(*) AS count,
			AVG(confidence_score) AS avg_confidence,
			MIN(confidence_score) AS min_confidence,
			MAX(confidence_score) AS max_confidence,
			AVG(price) AS avg_price`).
		Where("price_source = ? AND needs_review = ?", models.PriceSourceCalculated, false).
		Group("calculation_method").Scan(&methods).Error
	if err != nil {
		return analysis, fmt.Errorf("summarise methods: %w", err)
	}
	byMethod := map[models.CalculationMethod]MethodStats{}
	for _, row := range methods {
		byMethod[row.CalculationMethod] = MethodStats{
			Method:        row.CalculationMethod,
			Count:         row.Count,
			AvgConfidence: round4(row.AvgConfidence),
			MinConfidence: round4(row.MinConfidence),
			MaxConfidence: round4(row.MaxConfidence),
			AvgPrice:      round4(row.AvgPrice),
		}
	}
	for _, method := range models.CalculationMethods {
		if stats, ok := byMethod[method]; ok {
			analysis.Methods = append(analysis.Methods, stats)
		}
	}
	return analysis, nil
}
