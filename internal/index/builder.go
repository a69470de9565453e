// Package index builds the denormalised search projection of the resolved
// reference data.
package index

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	applog "tariffmaster/internal/log"
	"tariffmaster/internal/store"
	"tariffmaster/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultBatchSize = 500

// Report summarises one rebuild.
type Report struct {
	Rows          int `json:"row_count"`
	Brands        int `json:"brands"`
	WithTradeCode int `json:"with_trade_code"`
	Unpriced      int `json:"unpriced"`
}

// Option configures a Builder.
type Option func(*Builder)

// WithBatchSize sets the number of rows inserted per statement.
func WithBatchSize(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithClock replaces the clock that decides which trade codes are active.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// Builder rebuilds the unified index.
type Builder struct {
	store     *store.Store
	batchSize int
	now       func() time.Time
}

// NewBuilder returns a Builder over s.
func NewBuilder(s *store.Store, opts ...Option) *Builder {
	b := &Builder{store: s, batchSize: defaultBatchSize, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Rebuild replaces the whole index with one row per branded pack. The old
// rows stay visible until the new ones commit.
func (b *Builder) Rebuild(ctx context.Context) (Report, error) {
	var report Report
	logger := applog.With("phase", "index")
	day := b.now().UTC()

	err := b.store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.IndexEntry{}).Error; err != nil {
			return fmt.Errorf("clear index: %w", err)
		}

		refs, err := loadReferences(tx, day)
		if err != nil {
			return err
		}

		var packs []models.BrandedPack
		if err := tx.Order("id").Find(&packs).Error; err != nil {
			return fmt.Errorf("load branded packs: %w", err)
		}

		entries := make([]models.IndexEntry, 0, len(packs))
		for i, pack := range packs {
			entry, err := refs.entry(pack)
			if err != nil {
				return err
			}
			entry.ID = int64(i + 1)
			entries = append(entries, entry)

			if entry.IsBrand {
				report.Brands++
			}
			if entry.TradeCode != nil {
				report.WithTradeCode++
			}
			if entry.Price == nil {
				report.Unpriced++
			}
		}

		if len(entries) > 0 {
			if err := tx.CreateInBatches(&entries, b.batchSize).Error; err != nil {
				return fmt.Errorf("insert index rows: %w", err)
			}
		}
		report.Rows = len(entries)
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "index rebuild failed", "error", err)
		return Report{}, err
	}

	logger.InfoContext(ctx, "index rebuilt",
		"rows", report.Rows,
		"brands", report.Brands,
		"with_trade_code", report.WithTradeCode,
		"unpriced", report.Unpriced,
	)
	return report, nil
}

// references holds everything an index row is joined from, keyed by id.
type references struct {
	units       map[int64]string
	forms       map[int64]string
	products    map[int64]models.GenericProduct
	packs       map[int64]models.GenericPack
	ingredients map[int64]string
	formsOf     map[int64]string
	tradeCodes  map[int64]string
}

func loadReferences(tx *gorm.DB, day time.Time) (*references, error) {
	refs := &references{
		units:       map[int64]string{},
		forms:       map[int64]string{},
		products:    map[int64]models.GenericProduct{},
		packs:       map[int64]models.GenericPack{},
		ingredients: map[int64]string{},
		formsOf:     map[int64]string{},
		tradeCodes:  map[int64]string{},
	}

	var lookups []models.Lookup
	if err := tx.Where("category IN ?", []string{models.LookupUnitOfMeasure, models.LookupForm}).Find(&lookups).Error; err != nil {
		return nil, fmt.Errorf("load lookups: %w", err)
	}
	for _, row := range lookups {
		switch row.Category {
		case models.LookupUnitOfMeasure:
			refs.units[row.Code] = row.Description
		case models.LookupForm:
			refs.forms[row.Code] = row.Description
		}
	}

	var products []models.GenericProduct
	if err := tx.Preload("Ingredients.Ingredient").Preload("Forms").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("load generic products: %w", err)
	}
	for _, p := range products {
		refs.products[p.ID] = p

		var names []string
		for _, pi := range p.Ingredients {
			if pi.Ingredient != nil {
				names = append(names, pi.Ingredient.Name)
			}
		}
		sort.Strings(names)
		refs.ingredients[p.ID] = strings.Join(names, ", ")

		var forms []string
		for _, f := range p.Forms {
			if desc, ok := refs.forms[f.FormCode]; ok {
				forms = append(forms, desc)
			}
		}
		sort.Strings(forms)
		refs.formsOf[p.ID] = strings.Join(forms, ", ")
	}

	var packs []models.GenericPack
	if err := tx.Find(&packs).Error; err != nil {
		return nil, fmt.Errorf("load generic packs: %w", err)
	}
	for _, p := range packs {
		refs.packs[p.ID] = p
	}

	var codes []models.TradeCode
	if err := tx.Order("brand_pack_id").Order("code").Find(&codes).Error; err != nil {
		return nil, fmt.Errorf("load trade codes: %w", err)
	}
	refs.tradeCodes = primaryTradeCodes(codes, day)
	return refs, nil
}

// primaryTradeCodes picks, per branded pack, the active code with the latest
// start date. Ties go to the lowest code.
func primaryTradeCodes(codes []models.TradeCode, day time.Time) map[int64]string {
	best := map[int64]models.TradeCode{}
	for _, code := range codes {
		if !code.ActiveOn(day) {
			continue
		}
		current, ok := best[code.BrandPackID]
		if !ok || code.StartDate.After(current.StartDate) ||
			(code.StartDate.Equal(current.StartDate) && code.Code < current.Code) {
			best[code.BrandPackID] = code
		}
	}

	out := make(map[int64]string, len(best))
	for id, code := range best {
		out[id] = code.Code
	}
	return out
}

func (r *references) entry(pack models.BrandedPack) (models.IndexEntry, error) {
	gp, ok := r.packs[pack.PackID]
	if !ok {
		return models.IndexEntry{}, fmt.Errorf("branded pack %d: generic pack %d not found", pack.ID, pack.PackID)
	}
	product, ok := r.products[gp.ProductID]
	if !ok {
		return models.IndexEntry{}, fmt.Errorf("generic pack %d: generic product %d not found", gp.ID, gp.ProductID)
	}

	entry := models.IndexEntry{
		MoietyID:           product.MoietyID,
		ProductID:          product.ID,
		PackID:             gp.ID,
		BrandID:            pack.BrandID,
		BrandPackID:        pack.ID,
		Name:               pack.Name,
		GenericName:        gp.Name,
		IsBrand:            IsBrand(pack.Name, gp.Name),
		IngredientList:     r.ingredients[product.ID],
		Form:               r.formsOf[product.ID],
		PackSize:           r.packSize(gp),
		TariffPrice:        gp.TariffPrice,
		TariffPriceDisplay: DisplayPrice(gp.TariffPrice),
		Price:              pack.Price,
		PriceDisplay:       DisplayPrice(pack.Price),
		PriceSource:        pack.PriceSource,
		PriceStatus:        pack.PriceStatus,
		MissingReason:      pack.MissingReason,
		CalculationMethod:  pack.CalculationMethod,
		ConfidenceScore:    pack.ConfidenceScore,
		NeedsReview:        pack.NeedsReview,
	}
	if code, ok := r.tradeCodes[pack.ID]; ok {
		entry.TradeCode = &code
	}
	return entry, nil
}

func (r *references) packSize(gp models.GenericPack) string {
	unit, ok := r.units[gp.UnitCode]
	if !ok {
		unit = fmt.Sprint(gp.UnitCode)
	}
	return gp.Quantity.String() + " " + unit
}

// DisplayPrice formats a price in pence as pounds, e.g. 160 as "£1.60". A
// missing price displays as the empty string.
func DisplayPrice(pence *int64) string {
	if pence == nil {
		return ""
	}
	return "£" + decimal.New(*pence, -2).StringFixed(2)
}
