// Package pricing classifies unpriced branded packs and infers estimates for
// the ones that should carry a price.
package pricing

import (
	"context"
	"fmt"

	applog "tariffmaster/internal/log"
	"tariffmaster/internal/store"
	"tariffmaster/models"

	"gorm.io/gorm"
)

const defaultBatchSize = 1000

// reimbursable lists the reimbursement status codes that allow a price.
var reimbursable = map[int]struct{}{1: {}, 11: {}}

// available is the availability restriction code of an unrestricted product.
const available = 1

// ClassificationReport summarises one classification pass.
type ClassificationReport struct {
	Examined             int                          `json:"examined"`
	NeedsCalculation     int                          `json:"needs_calculation"`
	IntentionallyMissing map[models.MissingReason]int `json:"intentionally_missing"`
	// Requeued counts packs whose earlier label or sourced price no longer
	// applies and that went back to the calculation queue.
	Requeued int `json:"requeued"`
}

// MissingReasonFor returns why pack may legitimately lack a price. Rules are
// checked in a fixed order and the first match wins.
func MissingReasonFor(pack models.BrandedPack, brand models.BrandedProduct) (models.MissingReason, bool) {
	if pack.ReimbursementCode != nil {
		if _, ok := reimbursable[*pack.ReimbursementCode]; !ok {
			return models.ReasonNonReimbursable, true
		}
	}
	if pack.DiscontinuedCode != nil || pack.Invalid {
		return models.ReasonDiscontinued, true
	}
	if pack.HospitalOnly {
		return models.ReasonHospitalOnly, true
	}
	if brand.Invalid || (brand.AvailabilityCode != nil && *brand.AvailabilityCode != available) {
		return models.ReasonNotAvailable, true
	}
	return "", false
}

// SourcedPrice is the price a pack carries from the source data: its own list
// price, else its generic pack's tariff. Zero is not a price.
func SourcedPrice(listPrice, tariffPrice *int64) (int64, bool) {
	if listPrice != nil && *listPrice > 0 {
		return *listPrice, true
	}
	if tariffPrice != nil && *tariffPrice > 0 {
		return *tariffPrice, true
	}
	return 0, false
}

// Classifier labels branded packs that lack a sourced price.
type Classifier struct {
	store     *store.Store
	batchSize int
}

// NewClassifier returns a Classifier over s.
func NewClassifier(s *store.Store, batchSize int) *Classifier {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Classifier{store: s, batchSize: batchSize}
}

// Classify labels every branded pack without a sourced price either as
// intentionally missing, with a reason, or leaves it queued for calculation
// with status unknown. Packs that already carry an estimate stay as they are
// unless a missing-price reason now applies. The pass is idempotent.
func (c *Classifier) Classify(ctx context.Context) (ClassificationReport, error) {
	report := ClassificationReport{IntentionallyMissing: map[models.MissingReason]int{}}
	logger := applog.With("phase", "classify")

	err := c.store.Transaction(ctx, func(tx *gorm.DB) error {
		var packs []models.BrandedPack
		return tx.Order("id").FindInBatches(&packs, c.batchSize, func(_ *gorm.DB, _ int) error {
			brands, tariffs, err := parentsOf(tx, packs)
			if err != nil {
				return err
			}

			for _, pack := range packs {
				report.Examined++
				_, priced := SourcedPrice(pack.ListPrice, tariffs[pack.PackID])
				change, requeued := classify(pack, brands[pack.BrandID], tariffs[pack.PackID])

				status, reason := pack.PriceStatus, pack.MissingReason
				if change != nil {
					status, reason = change.status, change.reason
					if err := tx.Model(&models.BrandedPack{}).Where("id = ?", pack.ID).Updates(change.columns()).Error; err != nil {
						return fmt.Errorf("classify branded pack %d: %w", pack.ID, err)
					}
				}
				if requeued {
					report.Requeued++
				}

				switch {
				case status == models.PriceStatusIntentionallyMissing && reason != nil:
					report.IntentionallyMissing[*reason]++
				case status == models.PriceStatusUnknown && !priced:
					report.NeedsCalculation++
				}
			}
			return nil
		}).Error
	})
	if err != nil {
		logger.ErrorContext(ctx, "classification failed", "error", err)
		return report, err
	}

	logger.InfoContext(ctx, "classification finished",
		"examined", report.Examined,
		"needs_calculation", report.NeedsCalculation,
		"requeued", report.Requeued,
	)
	for _, reason := range models.MissingReasons {
		if n := report.IntentionallyMissing[reason]; n > 0 {
			logger.InfoContext(ctx, "intentionally missing", "reason", reason, "count", n)
		}
	}
	return report, nil
}

// resolution is the target state of the price resolution columns.
type resolution struct {
	status models.PriceStatus
	reason *models.MissingReason
}

func (r resolution) columns() map[string]any {
	return map[string]any{
		"price":              nil,
		"price_source":       nil,
		"calculation_method": nil,
		"confidence_score":   nil,
		"calculation_date":   nil,
		"needs_review":       false,
		"price_status":       r.status,
		"missing_reason":     r.reason,
	}
}

// classify decides whether pack needs a new resolution state. It returns nil
// when the stored state is already right.
func classify(pack models.BrandedPack, brand models.BrandedProduct, tariffPrice *int64) (*resolution, bool) {
	_, priced := SourcedPrice(pack.ListPrice, tariffPrice)
	reason, excluded := MissingReasonFor(pack, brand)

	switch {
	case !priced && excluded:
		if pack.PriceStatus == models.PriceStatusIntentionallyMissing &&
			pack.MissingReason != nil && *pack.MissingReason == reason {
			return nil, false
		}
		return &resolution{status: models.PriceStatusIntentionallyMissing, reason: models.Ptr(reason)}, false

	case pack.PriceStatus == models.PriceStatusIntentionallyMissing:
		// Either a sourced price arrived or the reason no longer holds.
		return &resolution{status: models.PriceStatusUnknown}, true

	case !priced && pack.PriceSource != nil && *pack.PriceSource == models.PriceSourceInitial:
		// The sourced price this row was resolved from is gone.
		return &resolution{status: models.PriceStatusUnknown}, true
	}
	return nil, false
}

// parentsOf loads the branded products and generic pack tariffs referenced by
// packs.
func parentsOf(tx *gorm.DB, packs []models.BrandedPack) (map[int64]models.BrandedProduct, map[int64]*int64, error) {
	brandIDs := make([]int64, 0, len(packs))
	packIDs := make([]int64, 0, len(packs))
	for _, pack := range packs {
		brandIDs = append(brandIDs, pack.BrandID)
		packIDs = append(packIDs, pack.PackID)
	}

	var brandRows []models.BrandedProduct
	if err := tx.Where("id IN ?", brandIDs).Find(&brandRows).Error; err != nil {
		return nil, nil, fmt.Errorf("load branded products: %w", err)
	}
	brands := make(map[int64]models.BrandedProduct, len(brandRows))
	for _, brand := range brandRows {
		brands[brand.ID] = brand
	}

	var packRows []models.GenericPack
	if err := tx.Select("id", "tariff_price").Where("id IN ?", packIDs).Find(&packRows).Error; err != nil {
		return nil, nil, fmt.Errorf("load generic packs: %w", err)
	}
	tariffs := make(map[int64]*int64, len(packRows))
	for _, pack := range packRows {
		tariffs[pack.ID] = pack.TariffPrice
	}
	return brands, tariffs, nil
}
