package pricing

import (
	"sort"

	"tariffmaster/models"

	"github.com/shopspring/decimal"
)

const maxSimilarCandidates = 5

// maxStrengthDifference is the largest relative strength difference of a
// similar product.
var maxStrengthDifference = decimal.RequireFromString("0.5")

// estimate is one inferred price.
type estimate struct {
	price       int64
	method      models.CalculationMethod
	confidence  float64
	comparables int
}

// tier infers a price for one pending pack from a snapshot.
type tier struct {
	method   models.CalculationMethod
	estimate func(s *snapshot, target *brandedPack) (estimate, bool)
}

var tiers = []tier{
	{method: models.MethodSamePack, estimate: samePack},
	{method: models.MethodSameProduct, estimate: sameProduct},
	{method: models.MethodSimilarProduct, estimate: similarProduct},
}

func minorUnits(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// samePack averages the known prices of the other branded packs of the same
// generic pack.
func samePack(s *snapshot, target *brandedPack) (estimate, bool) {
	gp, ok := s.packs[target.packID]
	if !ok {
		return estimate{}, false
	}

	var prices []decimal.Decimal
	for _, id := range gp.branded {
		if id == target.id {
			continue
		}
		if price, ok := s.branded[id].knownPrice(); ok {
			prices = append(prices, price)
		}
	}
	if len(prices) == 0 {
		return estimate{}, false
	}

	confidence := singleSiblingConfidence
	if len(prices) > 1 {
		confidence = samePackBand.score(sampleQuality(prices))
	}
	return estimate{
		price:       minorUnits(mean(prices)),
		method:      models.MethodSamePack,
		confidence:  confidence,
		comparables: len(prices),
	}, true
}

// sameProduct scales the mean per-unit price of the other priced pack sizes
// of the same generic product to the target quantity.
func sameProduct(s *snapshot, target *brandedPack) (estimate, bool) {
	gp, ok := s.packs[target.packID]
	if !ok || !gp.quantity.IsPositive() {
		return estimate{}, false
	}
	p, ok := s.products[gp.productID]
	if !ok {
		return estimate{}, false
	}

	var perUnit []decimal.Decimal
	for _, id := range p.packs {
		other := s.packs[id]
		if other.id == gp.id || other.unit != gp.unit || !other.quantity.IsPositive() {
			continue
		}
		price, ok := s.packPrice(other)
		if !ok {
			continue
		}
		perUnit = append(perUnit, price.Div(other.quantity))
	}
	if len(perUnit) == 0 {
		return estimate{}, false
	}

	return estimate{
		price:       minorUnits(mean(perUnit).Mul(gp.quantity)),
		method:      models.MethodSameProduct,
		confidence:  sameProductBand.score(sampleQuality(perUnit)),
		comparables: len(perUnit),
	}, true
}

type similarCandidate struct {
	diff     decimal.Decimal
	qtyDelta decimal.Decimal
	packID   int64
	perUnit  decimal.Decimal
}

// similarProduct takes a weighted per-unit mean over packs of products with
// the same ingredients, a shared dose form and a close strength. Closer
// strengths weigh more.
func similarProduct(s *snapshot, target *brandedPack) (estimate, bool) {
	gp, ok := s.packs[target.packID]
	if !ok || !gp.quantity.IsPositive() {
		return estimate{}, false
	}
	p, ok := s.products[gp.productID]
	if !ok || p.key == "" || p.incomplete || len(p.forms) == 0 {
		return estimate{}, false
	}

	var candidates []similarCandidate
	for _, id := range s.byIngredients[p.key] {
		other := s.products[id]
		if other.id == p.id || other.incomplete || !sharesForm(p, other) {
			continue
		}
		diff, ok := strengthDifference(p, other)
		if !ok || diff.GreaterThan(maxStrengthDifference) {
			continue
		}
		for _, packID := range other.packs {
			pack := s.packs[packID]
			if pack.unit != gp.unit || !pack.quantity.IsPositive() {
				continue
			}
			price, ok := s.packPrice(pack)
			if !ok {
				continue
			}
			candidates = append(candidates, similarCandidate{
				diff:     diff,
				qtyDelta: pack.quantity.Sub(gp.quantity).Abs(),
				packID:   pack.id,
				perUnit:  price.Div(pack.quantity),
			})
		}
	}
	if len(candidates) == 0 {
		return estimate{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if c := a.diff.Cmp(b.diff); c != 0 {
			return c < 0
		}
		if c := a.qtyDelta.Cmp(b.qtyDelta); c != 0 {
			return c < 0
		}
		return a.packID < b.packID
	})
	if len(candidates) > maxSimilarCandidates {
		candidates = candidates[:maxSimilarCandidates]
	}

	one := decimal.NewFromInt(1)
	var weighted, totalWeight decimal.Decimal
	perUnit := make([]decimal.Decimal, len(candidates))
	for i, c := range candidates {
		weight := one.Div(one.Add(c.diff))
		weighted = weighted.Add(c.perUnit.Mul(weight))
		totalWeight = totalWeight.Add(weight)
		perUnit[i] = c.perUnit
	}
	meanWeight := totalWeight.Div(decimal.NewFromInt(int64(len(candidates)))).InexactFloat64()

	return estimate{
		price:       minorUnits(weighted.Div(totalWeight).Mul(gp.quantity)),
		method:      models.MethodSimilarProduct,
		confidence:  similarProductBand.score(sampleQuality(perUnit) * meanWeight),
		comparables: len(candidates),
	}, true
}

func sharesForm(a, b *product) bool {
	for code := range a.forms {
		if _, ok := b.forms[code]; ok {
			return true
		}
	}
	return false
}

// strengthDifference is the largest relative difference between the
// strengths of matching ingredients, measured against the target.
func strengthDifference(target, other *product) (decimal.Decimal, bool) {
	var worst decimal.Decimal
	for id, want := range target.strengths {
		got, ok := other.strengths[id]
		if !ok || want == nil || got == nil || got.unit != want.unit || got.denominator != want.denominator {
			return decimal.Decimal{}, false
		}
		diff := got.value.Sub(want.value).Abs().Div(want.value)
		if diff.GreaterThan(worst) {
			worst = diff
		}
	}
	return worst, true
}
