package pricing

import (
	"context"
	"fmt"
	"time"

	applog "tariffmaster/internal/log"
	"tariffmaster/internal/store"
	"tariffmaster/models"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Mode selects which packs the engine prices.
type Mode string

const (
	// ModeFillMissing prices packs that have no price yet, and retries the
	// default prices still flagged for review.
	ModeFillMissing Mode = "fill_missing"
	// ModeRecalculateAll discards every estimate and infers them again.
	// Sourced prices are kept.
	ModeRecalculateAll Mode = "recalculate_all"
)

// ValidMode reports whether value names an engine mode.
func ValidMode(value string) bool {
	switch Mode(value) {
	case ModeFillMissing, ModeRecalculateAll:
		return true
	default:
		return false
	}
}

// PriceReport summarises one engine run.
type PriceReport struct {
	Mode      Mode                             `json:"mode"`
	Reset     int                              `json:"reset,omitempty"`
	Initial   int                              `json:"initial"`
	Estimated map[models.CalculationMethod]int `json:"estimated"`
	Defaulted int                              `json:"defaulted"`
	// Review lists the packs that got the default price and need a human.
	Review []int64 `json:"review,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds the goroutines computing estimates within a tier.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithClock replaces the clock used for calculation dates.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine infers prices for branded packs the source data leaves unpriced.
type Engine struct {
	store   *store.Store
	workers int
	now     func() time.Time
}

// NewEngine returns an Engine over s.
func NewEngine(s *store.Store, opts ...Option) *Engine {
	e := &Engine{store: s, workers: 1, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// update is one write to the price resolution columns of a branded pack.
type update struct {
	id      int64
	columns map[string]any
}

// Calculate adopts sourced prices, then runs the inference tiers in order
// over the packs still pending, then gives the remainder the default price.
// Each tier commits as a unit inside the run's transaction and sees the
// results of the tiers before it.
func (e *Engine) Calculate(ctx context.Context, mode Mode) (PriceReport, error) {
	if !ValidMode(string(mode)) {
		return PriceReport{}, fmt.Errorf("unknown pricing mode %q", mode)
	}

	report := PriceReport{Mode: mode, Estimated: map[models.CalculationMethod]int{}}
	logger := applog.With("phase", "price", "mode", mode)
	day := e.today()

	err := e.store.Transaction(ctx, func(tx *gorm.DB) error {
		// Recalculation discards every estimate. Filling discards only the
		// defaults still awaiting review, since comparables may have arrived.
		reset := tx.Model(&models.BrandedPack{}).Where("price_source = ?", models.PriceSourceCalculated)
		if mode == ModeFillMissing {
			reset = reset.Where("needs_review = ?", true)
		}
		reset = reset.Updates(map[string]any{
			"price":              nil,
			"price_source":       nil,
			"calculation_method": nil,
			"confidence_score":   nil,
			"calculation_date":   nil,
			"needs_review":       false,
			"price_status":       models.PriceStatusUnknown,
		})
		if reset.Error != nil {
			return fmt.Errorf("reset estimates: %w", reset.Error)
		}
		report.Reset = int(reset.RowsAffected)

		snap, err := loadSnapshot(tx)
		if err != nil {
			return err
		}

		initial := adoptSourcedPrices(snap)
		if err := e.apply(tx, snap, initial); err != nil {
			return fmt.Errorf("adopt sourced prices: %w", err)
		}
		report.Initial = len(initial)
		logger.InfoContext(ctx, "sourced prices adopted", "count", len(initial))

		for _, t := range tiers {
			pending := snap.pending()
			if len(pending) == 0 {
				break
			}
			estimates, err := e.estimateAll(ctx, snap, pending, t)
			if err != nil {
				return err
			}

			var updates []update
			for i, est := range estimates {
				if est == nil {
					continue
				}
				updates = append(updates, update{id: pending[i].id, columns: estimateColumns(*est, day)})
			}
			if err := e.apply(tx, snap, updates); err != nil {
				return fmt.Errorf("%s tier: %w", t.method, err)
			}
			report.Estimated[t.method] = len(updates)
			logger.InfoContext(ctx, "tier finished", "method", t.method, "pending", len(pending), "priced", len(updates))
		}

		var defaults []update
		for _, b := range snap.pending() {
			defaults = append(defaults, update{id: b.id, columns: defaultColumns(day)})
			report.Review = append(report.Review, b.id)
			logger.WarnContext(ctx, "no comparable prices, manual review required", "brand_pack_id", b.id)
		}
		if err := e.apply(tx, snap, defaults); err != nil {
			return fmt.Errorf("default prices: %w", err)
		}
		report.Defaulted = len(defaults)
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "price calculation failed", "error", err)
		return report, err
	}

	logger.InfoContext(ctx, "price calculation finished",
		"initial", report.Initial,
		"same_pack", report.Estimated[models.MethodSamePack],
		"same_product", report.Estimated[models.MethodSameProduct],
		"similar_product", report.Estimated[models.MethodSimilarProduct],
		"defaulted", report.Defaulted,
	)
	return report, nil
}

func (e *Engine) today() time.Time {
	now := e.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// estimateAll runs t over pending concurrently. The result slice is indexed
// like pending, so the outcome does not depend on scheduling.
func (e *Engine) estimateAll(ctx context.Context, snap *snapshot, pending []*brandedPack, t tier) ([]*estimate, error) {
	results := make([]*estimate, len(pending))
	chunk := (len(pending) + e.workers - 1) / e.workers

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for start := 0; start < len(pending); start += chunk {
		end := min(start+chunk, len(pending))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if est, ok := t.estimate(snap, pending[i]); ok {
					results[i] = &est
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// apply writes updates in a nested transaction and then folds them into the
// snapshot for the next pass.
func (e *Engine) apply(tx *gorm.DB, snap *snapshot, updates []update) error {
	if len(updates) == 0 {
		return nil
	}
	err := tx.Transaction(func(nested *gorm.DB) error {
		for _, u := range updates {
			if err := nested.Model(&models.BrandedPack{}).Where("id = ?", u.id).Updates(u.columns).Error; err != nil {
				return fmt.Errorf("update branded pack %d: %w", u.id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, u := range updates {
		b := snap.branded[u.id]
		b.status = models.PriceStatusCalculated
		b.price = u.columns["price"].(*int64)
		b.source = u.columns["price_source"].(*models.PriceSource)
		b.method = u.columns["calculation_method"].(*models.CalculationMethod)
		b.review = u.columns["needs_review"].(bool)
	}
	return nil
}

// adoptSourcedPrices returns the writes that make every pack with a sourced
// price carry it as an initial price. Packs already in that state are left
// alone so repeated runs write nothing.
func adoptSourcedPrices(snap *snapshot) []update {
	var updates []update
	for _, b := range snap.resolvable() {
		price, ok := snap.sourcedPrice(b)
		if !ok {
			continue
		}
		if b.status == models.PriceStatusCalculated && b.source != nil && *b.source == models.PriceSourceInitial &&
			b.price != nil && *b.price == price {
			continue
		}
		updates = append(updates, update{id: b.id, columns: initialColumns(price)})
	}
	return updates
}

func initialColumns(price int64) map[string]any {
	return map[string]any{
		"price":              models.Ptr(price),
		"price_source":       models.Ptr(models.PriceSourceInitial),
		"calculation_method": (*models.CalculationMethod)(nil),
		"confidence_score":   nil,
		"calculation_date":   nil,
		"needs_review":       false,
		"price_status":       models.PriceStatusCalculated,
		"missing_reason":     nil,
	}
}

func estimateColumns(est estimate, day time.Time) map[string]any {
	return map[string]any{
		"price":              models.Ptr(est.price),
		"price_source":       models.Ptr(models.PriceSourceCalculated),
		"calculation_method": models.Ptr(est.method),
		"confidence_score":   models.Ptr(est.confidence),
		"calculation_date":   models.Ptr(day),
		"needs_review":       false,
		"price_status":       models.PriceStatusCalculated,
		"missing_reason":     nil,
	}
}

// defaultColumns is the last-resort price: zero, lowest confidence and
// flagged for manual review.
func defaultColumns(day time.Time) map[string]any {
	return map[string]any{
		"price":              models.Ptr[int64](0),
		"price_source":       models.Ptr(models.PriceSourceCalculated),
		"calculation_method": models.Ptr(models.MethodSimilarProduct),
		"confidence_score":   models.Ptr(0.0),
		"calculation_date":   models.Ptr(day),
		"needs_review":       true,
		"price_status":       models.PriceStatusCalculated,
		"missing_reason":     nil,
	}
}
