package loader

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tariffmaster/internal/db/mock"
	"tariffmaster/internal/source"
	"tariffmaster/internal/source/sourcetest"
	"tariffmaster/internal/store"
	"tariffmaster/models"

	"github.com/shopspring/decimal"
)

func emptyStore(t *testing.T) *store.Store {
	t.Helper()

	database, err := mock.Open(context.Background())
	if err != nil {
		t.Fatalf("mock.Open() error = %v", err)
	}
	s, err := store.New(database)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	return s
}

func seededStore(t *testing.T) *store.Store {
	t.Helper()

	database, err := mock.New(context.Background())
	if err != nil {
		t.Fatalf("mock.New() error = %v", err)
	}
	s, err := store.New(database)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	return s
}

func count(t *testing.T, s *store.Store, model any) int64 {
	t.Helper()

	var n int64
	if err := s.DB(context.Background()).Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}

func brandedPack(t *testing.T, s *store.Store, id int64) models.BrandedPack {
	t.Helper()

	var pack models.BrandedPack
	if err := s.DB(context.Background()).First(&pack, id).Error; err != nil {
		t.Fatalf("load branded pack %d: %v", id, err)
	}
	return pack
}

func TestLoadFullRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := emptyStore(t)

	report, err := New(s, Options{Mode: ModeFullRebuild, Workers: 3, BatchSize: 2}).Load(ctx, sourcetest.WriteRelease(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if report.RejectedCount() != 0 {
		t.Fatalf("rejected = %+v, want none", report.Rejected)
	}

	loaded := map[source.Kind]int{
		source.KindLookup:         9,
		source.KindIngredient:     2,
		source.KindMoiety:         2,
		source.KindGenericProduct: 4,
		source.KindGenericPack:    5,
		source.KindBrandedProduct: 9,
		source.KindBrandedPack:    12,
		source.KindTradeCode:      3,
	}
	for kind, want := range loaded {
		if got := report.Loaded[kind]; got != want {
			t.Fatalf("Loaded[%s] = %d, want %d", kind, got, want)
		}
	}
	attached := map[string]int{"product_ingredient": 4, "product_form": 4, "tariff": 1, "pack_detail": 6}
	for name, want := range attached {
		if got := report.Attached[name]; got != want {
			t.Fatalf("Attached[%s] = %d, want %d", name, got, want)
		}
	}

	if got := count(t, s, &models.BrandedPack{}); got != 12 {
		t.Fatalf("branded packs = %d, want 12", got)
	}
	if got := count(t, s, &models.SourceFile{}); got != 8 {
		t.Fatalf("source files = %d, want 8", got)
	}

	var pack models.GenericPack
	if err := s.DB(ctx).First(&pack, 20001).Error; err != nil {
		t.Fatalf("load generic pack: %v", err)
	}
	if pack.TariffPrice == nil || *pack.TariffPrice != 80 {
		t.Fatalf("tariff price = %v, want 80", pack.TariffPrice)
	}
	if !pack.Quantity.Equal(decimal.NewFromInt(16)) {
		t.Fatalf("quantity = %s, want 16", pack.Quantity)
	}

	if p := brandedPack(t, s, 40002); p.ListPrice == nil || *p.ListPrice != 95 {
		t.Fatalf("40002 list price = %v, want 95", p.ListPrice)
	}
	if p := brandedPack(t, s, 40003); !p.HospitalOnly {
		t.Fatal("40003 not marked hospital only")
	}
	if p := brandedPack(t, s, 40011); p.DiscontinuedCode == nil || *p.DiscontinuedCode != 1 {
		t.Fatalf("40011 discontinued code = %v, want 1", p.DiscontinuedCode)
	}
	if p := brandedPack(t, s, 40012); p.ReimbursementCode == nil || *p.ReimbursementCode != 2 {
		t.Fatalf("40012 reimbursement code = %v, want 2", p.ReimbursementCode)
	}
	if p := brandedPack(t, s, 40004); p.PriceStatus != models.PriceStatusUnknown || p.Price != nil {
		t.Fatalf("40004 = status %q price %v, want unknown and unpriced", p.PriceStatus, p.Price)
	}

	var ingredient models.ProductIngredient
	if err := s.DB(ctx).Where("product_id = ?", 10004).Take(&ingredient).Error; err != nil {
		t.Fatalf("load product ingredient: %v", err)
	}
	if !ingredient.StrengthValue.Valid || ingredient.StrengthValue.Decimal.IntPart() != 50 {
		t.Fatalf("strength = %+v, want 50", ingredient.StrengthValue)
	}
	if !ingredient.DenominatorValue.Valid || ingredient.DenominatorValue.Decimal.IntPart() != 1 {
		t.Fatalf("denominator = %+v, want 1", ingredient.DenominatorValue)
	}
}

func TestLoadFullRebuildIsRepeatable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := emptyStore(t)
	sources := sourcetest.WriteRelease(t)
	loader := New(s, Options{Mode: ModeFullRebuild})

	first, err := loader.Load(ctx, sources)
	if err != nil {
		t.Fatalf("first Load() error = %v", err)
	}
	second, err := loader.Load(ctx, sources)
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	for kind, n := range first.Loaded {
		if second.Loaded[kind] != n {
			t.Fatalf("Loaded[%s] = %d then %d", kind, n, second.Loaded[kind])
		}
	}
	if got := count(t, s, &models.TradeCode{}); got != 3 {
		t.Fatalf("trade codes = %d, want 3", got)
	}
}

func TestLoadSkipsMalformedRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := emptyStore(t)

	packs := strings.Replace(sourcetest.Release[source.KindGenericPack], "</VMPPS>",
		`<VMPP><VPPID>20099</VPPID><VPID>10001</VPID><NM>Broken</NM><QTYVAL>many</QTYVAL><QTY_UOMCD>428673006</QTY_UOMCD></VMPP>
  </VMPPS>`, 1)
	files := sourcetest.With(map[source.Kind]string{source.KindGenericPack: packs})

	report, err := New(s, Options{Mode: ModeFullRebuild}).Load(ctx, sourcetest.Write(t, t.TempDir(), files))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(report.Rejected) != 1 {
		t.Fatalf("rejected = %+v, want 1", report.Rejected)
	}
	rej := report.Rejected[0]
	if rej.Kind != source.KindGenericPack || rej.ID != "20099" || rej.Field != "Quantity" {
		t.Fatalf("rejection = %+v", rej)
	}
	if got := report.Loaded[source.KindGenericPack]; got != 5 {
		t.Fatalf("Loaded[generic_pack] = %d, want 5", got)
	}
}

func TestLoadUnresolvedParentAbortsAndRollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := seededStore(t)

	if err := s.DB(ctx).Model(&models.BrandedPack{}).Where("id = ?", 40001).
		Updates(map[string]any{"price": 80, "price_status": models.PriceStatusCalculated}).Error; err != nil {
		t.Fatalf("price 40001: %v", err)
	}

	packs := strings.Replace(sourcetest.Release[source.KindBrandedPack], "</AMPPS>",
		`<AMPP><APPID>49999</APPID><APID>30001</APID><VPPID>29999</VPPID><NM>Orphan</NM></AMPP>
  </AMPPS>`, 1)
	files := sourcetest.With(map[source.Kind]string{source.KindBrandedPack: packs})

	_, err := New(s, Options{Mode: ModeFullRebuild}).Load(ctx, sourcetest.Write(t, t.TempDir(), files))
	if !errors.Is(err, ErrUnresolvedParent) {
		t.Fatalf("Load() error = %v, want %v", err, ErrUnresolvedParent)
	}
	var refErr *ReferenceError
	if !errors.As(err, &refErr) {
		t.Fatalf("Load() error = %T, want *ReferenceError", err)
	}
	want := ReferenceError{Kind: source.KindBrandedPack, ID: "49999", ParentKind: source.KindGenericPack, ParentID: 29999}
	if *refErr != want {
		t.Fatalf("ReferenceError = %+v, want %+v", *refErr, want)
	}

	if got := count(t, s, &models.BrandedPack{}); got != 12 {
		t.Fatalf("branded packs = %d, want the 12 seeded rows", got)
	}
	if p := brandedPack(t, s, 40001); p.Price == nil || *p.Price != 80 {
		t.Fatalf("40001 price = %v, want untouched 80", p.Price)
	}
	if got := count(t, s, &models.SourceFile{}); got != 0 {
		t.Fatalf("source files = %d, want 0", got)
	}
}

func TestLoadFullRebuildRequiresEverySource(t *testing.T) {
	t.Parallel()

	files := sourcetest.With(nil)
	delete(files, source.KindTradeCode)

	_, err := New(emptyStore(t), Options{Mode: ModeFullRebuild}).Load(context.Background(), sourcetest.Write(t, t.TempDir(), files))
	if !errors.Is(err, ErrMissingSource) {
		t.Fatalf("Load() error = %v, want %v", err, ErrMissingSource)
	}
}

func TestLoadIncrementalPreservesPriceResolution(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := emptyStore(t)

	if _, err := New(s, Options{Mode: ModeFullRebuild}).Load(ctx, sourcetest.WriteRelease(t)); err != nil {
		t.Fatalf("full Load() error = %v", err)
	}
	if err := s.DB(ctx).Model(&models.BrandedPack{}).Where("id = ?", 40001).Updates(map[string]any{
		"price":        80,
		"price_source": models.PriceSourceInitial,
		"price_status": models.PriceStatusCalculated,
	}).Error; err != nil {
		t.Fatalf("price 40001: %v", err)
	}

	packs := strings.Replace(sourcetest.Release[source.KindBrandedPack],
		"<APPID>40005</APPID><PRICE>60</PRICE>", "<APPID>40005</APPID><PRICE>70</PRICE>", 1)
	codes := `<GTIN_DETAILS><AMPPS>
  <AMPP><AMPPID>40002</AMPPID><GTINDATA><GTIN>5000000000009</GTIN><STARTDT>2024-01-01</STARTDT></GTINDATA></AMPP>
</AMPPS></GTIN_DETAILS>`
	sources := sourcetest.Write(t, t.TempDir(), map[source.Kind]string{
		source.KindBrandedPack: packs,
		source.KindTradeCode:   codes,
	})

	report, err := New(s, Options{Mode: ModeIncremental}).Load(ctx, sources)
	if err != nil {
		t.Fatalf("incremental Load() error = %v", err)
	}
	if got := report.Loaded[source.KindBrandedPack]; got != 12 {
		t.Fatalf("Loaded[branded_pack] = %d, want 12", got)
	}

	if p := brandedPack(t, s, 40005); p.ListPrice == nil || *p.ListPrice != 70 {
		t.Fatalf("40005 list price = %v, want 70", p.ListPrice)
	}
	p := brandedPack(t, s, 40001)
	if p.Price == nil || *p.Price != 80 || p.PriceStatus != models.PriceStatusCalculated {
		t.Fatalf("40001 = price %v status %q, want resolution kept", p.Price, p.PriceStatus)
	}
	if p.ReimbursementCode == nil || *p.ReimbursementCode != 1 {
		t.Fatalf("40001 reimbursement code = %v, want 1", p.ReimbursementCode)
	}

	var codesFor40002 []models.TradeCode
	if err := s.DB(ctx).Where("brand_pack_id = ?", 40002).Find(&codesFor40002).Error; err != nil {
		t.Fatalf("load codes: %v", err)
	}
	if len(codesFor40002) != 1 || codesFor40002[0].Code != "5000000000009" {
		t.Fatalf("codes for 40002 = %+v, want only the new code", codesFor40002)
	}
	if got := count(t, s, &models.TradeCode{}); got != 2 {
		t.Fatalf("trade codes = %d, want 2", got)
	}
}

func TestLoadIncrementalSkipsUnchangedSources(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := emptyStore(t)
	sources := sourcetest.WriteRelease(t)

	if _, err := New(s, Options{Mode: ModeFullRebuild}).Load(ctx, sources); err != nil {
		t.Fatalf("full Load() error = %v", err)
	}

	report, err := New(s, Options{Mode: ModeIncremental, SkipUnchanged: true}).Load(ctx, sources)
	if err != nil {
		t.Fatalf("incremental Load() error = %v", err)
	}
	if len(report.Skipped) != len(source.Kinds()) {
		t.Fatalf("Skipped = %v, want every kind", report.Skipped)
	}
	if report.Skipped[0] != source.KindLookup {
		t.Fatalf("Skipped[0] = %q, want %q", report.Skipped[0], source.KindLookup)
	}
	if len(report.Loaded) != 0 {
		t.Fatalf("Loaded = %v, want nothing", report.Loaded)
	}
}

func TestLoadRejectsSectionsOfMalformedRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := emptyStore(t)

	packs := strings.Replace(sourcetest.Release[source.KindBrandedPack],
		"<NM>Panadol Soluble (Acme Ltd) 16 tablet</NM>", "", 1)
	files := sourcetest.With(map[source.Kind]string{source.KindBrandedPack: packs})

	report, err := New(s, Options{Mode: ModeFullRebuild, BatchSize: 2}).Load(ctx, sourcetest.Write(t, t.TempDir(), files))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []Rejection{
		{Kind: source.KindBrandedPack, ID: "40002", Field: "Name", Reason: "missing required value"},
		{Kind: source.KindBrandedPack, ID: "40002", Reason: "owner record rejected"},
		{Kind: source.KindTradeCode, ID: "40002/5000000000001", Reason: "references rejected branded_pack 40002"},
		{Kind: source.KindTradeCode, ID: "40002/5000000000002", Reason: "references rejected branded_pack 40002"},
	}
	if len(report.Rejected) != len(want) {
		t.Fatalf("rejected = %+v, want %+v", report.Rejected, want)
	}
	for i := range want {
		if report.Rejected[i] != want[i] {
			t.Fatalf("Rejected[%d] = %+v, want %+v", i, report.Rejected[i], want[i])
		}
	}

	if got := report.Loaded[source.KindBrandedPack]; got != 11 {
		t.Fatalf("Loaded[branded_pack] = %d, want 11", got)
	}
	if got := report.Attached["pack_detail"]; got != 5 {
		t.Fatalf("Attached[pack_detail] = %d, want 5", got)
	}
	if got := count(t, s, &models.TradeCode{}); got != 1 {
		t.Fatalf("trade codes = %d, want 1", got)
	}
	if p := brandedPack(t, s, 40005); p.ListPrice == nil || *p.ListPrice != 60 {
		t.Fatalf("40005 list price = %v, want 60", p.ListPrice)
	}
}

func TestLoadRejectsDependantsAcrossKinds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := emptyStore(t)

	packs := strings.Replace(sourcetest.Release[source.KindGenericPack],
		"<VPPID>20005</VPPID><VPID>10003</VPID>", "<VPPID>20005</VPPID><VPID>not-a-product</VPID>", 1)
	files := sourcetest.With(map[source.Kind]string{source.KindGenericPack: packs})

	report, err := New(s, Options{Mode: ModeFullRebuild}).Load(ctx, sourcetest.Write(t, t.TempDir(), files))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	rejectedPacks := map[string]string{}
	for _, rej := range report.Rejected {
		if rej.Kind == source.KindBrandedPack {
			rejectedPacks[rej.ID] = rej.Reason
		}
	}
	for _, id := range []string{"40009", "40012"} {
		if got := rejectedPacks[id]; got != "references rejected generic_pack 20005" {
			t.Fatalf("branded pack %s rejection = %q", id, got)
		}
	}
	if got := report.Loaded[source.KindBrandedPack]; got != 10 {
		t.Fatalf("Loaded[branded_pack] = %d, want 10", got)
	}
}

func TestLoadIncrementalKeepsTradeCodeRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := emptyStore(t)
	sources := sourcetest.WriteRelease(t)

	if _, err := New(s, Options{Mode: ModeFullRebuild}).Load(ctx, sources); err != nil {
		t.Fatalf("full Load() error = %v", err)
	}
	ids := func() map[string]int64 {
		var codes []models.TradeCode
		if err := s.DB(ctx).Find(&codes).Error; err != nil {
			t.Fatalf("load codes: %v", err)
		}
		out := make(map[string]int64, len(codes))
		for _, code := range codes {
			out[code.Code] = code.ID
		}
		return out
	}
	before := ids()

	if _, err := New(s, Options{Mode: ModeIncremental, BatchSize: 1}).Load(ctx, sources); err != nil {
		t.Fatalf("incremental Load() error = %v", err)
	}
	after := ids()
	if len(after) != len(before) {
		t.Fatalf("codes = %v, want %v", after, before)
	}
	for code, id := range before {
		if after[code] != id {
			t.Fatalf("code %s id = %d, want %d", code, after[code], id)
		}
	}

	codes := strings.Replace(sourcetest.Release[source.KindTradeCode],
		"<GTINDATA><GTIN>5000000000001</GTIN><STARTDT>2015-01-01</STARTDT><ENDDT>2019-12-31</ENDDT></GTINDATA>", "", 1)
	trimmed := sourcetest.Write(t, t.TempDir(), map[source.Kind]string{source.KindTradeCode: codes})
	if _, err := New(s, Options{Mode: ModeIncremental}).Load(ctx, trimmed); err != nil {
		t.Fatalf("second incremental Load() error = %v", err)
	}
	final := ids()
	if _, ok := final["5000000000001"]; ok {
		t.Fatal("code 5000000000001 kept after the file dropped it")
	}
	if final["5000000000002"] != before["5000000000002"] || final["5012345678900"] != before["5012345678900"] {
		t.Fatalf("codes = %v, want the remaining ids unchanged from %v", final, before)
	}
}
