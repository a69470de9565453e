package pricing

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"tariffmaster/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// strength is an ingredient strength normalised per denominator unit.
type strength struct {
	value       decimal.Decimal
	unit        int64
	denominator int64
}

// product holds what the similar-product tier compares. Products sharing a
// key have the same ingredient set.
type product struct {
	id         int64
	key        string
	strengths  map[int64]*strength
	forms      map[int64]struct{}
	packs      []int64
	incomplete bool
}

type genericPack struct {
	id        int64
	productID int64
	quantity  decimal.Decimal
	unit      int64
	tariff    *int64
	branded   []int64
}

type brandedPack struct {
	id        int64
	packID    int64
	listPrice *int64
	price     *int64
	status    models.PriceStatus
	source    *models.PriceSource
	method    *models.CalculationMethod
	review    bool
}

// snapshot is the read-only view one inference pass works on. Results of a
// pass are applied between passes, never during one.
type snapshot struct {
	products      map[int64]*product
	packs         map[int64]*genericPack
	branded       map[int64]*brandedPack
	byIngredients map[string][]int64
}

func loadSnapshot(tx *gorm.DB) (*snapshot, error) {
	s := &snapshot{
		products:      map[int64]*product{},
		packs:         map[int64]*genericPack{},
		branded:       map[int64]*brandedPack{},
		byIngredients: map[string][]int64{},
	}

	var products []models.GenericProduct
	if err := tx.Select("id").Order("id").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("load generic products: %w", err)
	}
	for _, row := range products {
		s.products[row.ID] = &product{id: row.ID, strengths: map[int64]*strength{}, forms: map[int64]struct{}{}}
	}

	var ingredients []models.ProductIngredient
	if err := tx.Order("product_id").Order("ingredient_id").Find(&ingredients).Error; err != nil {
		return nil, fmt.Errorf("load product ingredients: %w", err)
	}
	for _, row := range ingredients {
		p, ok := s.products[row.ProductID]
		if !ok {
			continue
		}
		st, ok := normalisedStrength(row)
		if !ok {
			p.incomplete = true
		}
		p.strengths[row.IngredientID] = st
	}

	var forms []models.ProductForm
	if err := tx.Find(&forms).Error; err != nil {
		return nil, fmt.Errorf("load product forms: %w", err)
	}
	for _, row := range forms {
		if p, ok := s.products[row.ProductID]; ok {
			p.forms[row.FormCode] = struct{}{}
		}
	}

	for _, p := range s.products {
		if len(p.strengths) == 0 {
			continue
		}
		ids := make([]string, 0, len(p.strengths))
		for id := range p.strengths {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		sort.Strings(ids)
		p.key = strings.Join(ids, ",")
		s.byIngredients[p.key] = append(s.byIngredients[p.key], p.id)
	}
	for key := range s.byIngredients {
		ids := s.byIngredients[key]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}

	var packs []models.GenericPack
	if err := tx.Select("id", "product_id", "quantity", "unit_code", "tariff_price").Order("id").Find(&packs).Error; err != nil {
		return nil, fmt.Errorf("load generic packs: %w", err)
	}
	for _, row := range packs {
		s.packs[row.ID] = &genericPack{
			id:        row.ID,
			productID: row.ProductID,
			quantity:  row.Quantity,
			unit:      row.UnitCode,
			tariff:    row.TariffPrice,
		}
		if p, ok := s.products[row.ProductID]; ok {
			p.packs = append(p.packs, row.ID)
		}
	}

	var branded []models.BrandedPack
	err := tx.Select("id", "pack_id", "list_price", "price", "price_status", "price_source", "calculation_method", "needs_review").
		Order("id").Find(&branded).Error
	if err != nil {
		return nil, fmt.Errorf("load branded packs: %w", err)
	}
	for _, row := range branded {
		s.branded[row.ID] = &brandedPack{
			id:        row.ID,
			packID:    row.PackID,
			listPrice: row.ListPrice,
			price:     row.Price,
			status:    row.PriceStatus,
			source:    row.PriceSource,
			method:    row.CalculationMethod,
			review:    row.NeedsReview,
		}
		if gp, ok := s.packs[row.PackID]; ok {
			gp.branded = append(gp.branded, row.ID)
		}
	}
	return s, nil
}

func normalisedStrength(row models.ProductIngredient) (*strength, bool) {
	if !row.StrengthValue.Valid || row.StrengthUnitCode == nil || !row.StrengthValue.Decimal.IsPositive() {
		return nil, false
	}
	st := &strength{value: row.StrengthValue.Decimal, unit: *row.StrengthUnitCode}
	if row.DenominatorValue.Valid {
		if !row.DenominatorValue.Decimal.IsPositive() || row.DenominatorUnitCode == nil {
			return nil, false
		}
		st.value = st.value.Div(row.DenominatorValue.Decimal)
		st.denominator = *row.DenominatorUnitCode
	}
	return st, true
}

// knownPrice is the price of a branded pack that may serve as a comparable.
// Estimates flagged for review never do.
func (b *brandedPack) knownPrice() (decimal.Decimal, bool) {
	if b.status != models.PriceStatusCalculated || b.price == nil || b.review {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromInt(*b.price), true
}

// packPrice is the known price of a generic pack: its tariff, else the
// rounded mean of its known branded pack prices.
func (s *snapshot) packPrice(gp *genericPack) (decimal.Decimal, bool) {
	if gp.tariff != nil && *gp.tariff > 0 {
		return decimal.NewFromInt(*gp.tariff), true
	}
	var prices []decimal.Decimal
	for _, id := range gp.branded {
		if price, ok := s.branded[id].knownPrice(); ok {
			prices = append(prices, price)
		}
	}
	if len(prices) == 0 {
		return decimal.Decimal{}, false
	}
	return mean(prices).Round(0), true
}

// sourcedPrice is the price a branded pack carries from the source data.
func (s *snapshot) sourcedPrice(b *brandedPack) (int64, bool) {
	var tariff *int64
	if gp, ok := s.packs[b.packID]; ok {
		tariff = gp.tariff
	}
	return SourcedPrice(b.listPrice, tariff)
}

// pending lists the packs still waiting for a price, in id order.
func (s *snapshot) pending() []*brandedPack {
	var out []*brandedPack
	for _, b := range s.branded {
		if b.status == models.PriceStatusUnknown {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// resolvable lists every pack not intentionally left unpriced, in id order.
func (s *snapshot) resolvable() []*brandedPack {
	var out []*brandedPack
	for _, b := range s.branded {
		if b.status != models.PriceStatusIntentionallyMissing {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func mean(values []decimal.Decimal) decimal.Decimal {
	return decimal.Sum(values[0], values[1:]...).Div(decimal.NewFromInt(int64(len(values))))
}
