package source

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func readAll(t *testing.T, kind Kind, doc string) ([]Record, []*RecordError) {
	t.Helper()

	rd, err := NewReader(kind, strings.NewReader(doc))
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}

	var (
		records []Record
		rejects []*RecordError
	)
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return records, rejects
		}
		var recErr *RecordError
		if errors.As(err, &recErr) {
			rejects = append(rejects, recErr)
			continue
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		records = append(records, rec)
	}
}

func TestReaderLookupUsesSectionAsCategory(t *testing.T) {
	t.Parallel()

	records, rejects := readAll(t, KindLookup, `<LOOKUP>
  <UNIT_OF_MEASURE><INFO><CD>428673006</CD><DESC> tablet </DESC></INFO></UNIT_OF_MEASURE>
  <FORM><INFO><CD>385055001</CD><DESC>Tablet</DESC></INFO></FORM>
</LOOKUP>`)

	if len(rejects) != 0 {
		t.Fatalf("rejects = %v, want none", rejects)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	first := records[0].(LookupRecord)
	if first.Category != "UNIT_OF_MEASURE" || first.Code != "428673006" || first.Description != "tablet" {
		t.Fatalf("first = %+v", first)
	}
	if got := records[1].(LookupRecord).Category; got != "FORM" {
		t.Fatalf("second category = %q, want %q", got, "FORM")
	}
}

func TestReaderYieldsEveryVariantOfAKind(t *testing.T) {
	t.Parallel()

	records, rejects := readAll(t, KindBrandedPack, `<ACTUAL_MEDICINAL_PROD_PACKS>
  <AMPPS><AMPP><APPID>1</APPID><APID>2</APID><VPPID>3</VPPID><NM>Pack</NM></AMPP></AMPPS>
  <MEDICINAL_PRODUCT_PRICE><PRICE_INFO><APPID>1</APPID><PRICE>150</PRICE></PRICE_INFO></MEDICINAL_PRODUCT_PRICE>
  <PRESCRIBING_INFO><PRESCRIB_INFO><APPID>1</APPID><HOSP>1</HOSP></PRESCRIB_INFO></PRESCRIBING_INFO>
  <APPLIANCE_PACK_INFO><PACK_INFO><APPID>1</APPID><REIMB_STATCD>1</REIMB_STATCD></PACK_INFO></APPLIANCE_PACK_INFO>
  <REIMBURSEMENT_INFO><REIMB_INFO><APPID>1</APPID></REIMB_INFO></REIMBURSEMENT_INFO>
</ACTUAL_MEDICINAL_PROD_PACKS>`)

	if len(rejects) != 0 {
		t.Fatalf("rejects = %v, want none", rejects)
	}
	if len(records) != 4 {
		t.Fatalf("len(records) = %d, want 4", len(records))
	}
	if _, ok := records[0].(BrandedPackRecord); !ok {
		t.Fatalf("records[0] = %T, want BrandedPackRecord", records[0])
	}
	if price, ok := records[1].(PriceInfoRecord); !ok || price.Price != "150" {
		t.Fatalf("records[1] = %+v, want price 150", records[1])
	}
	if _, ok := records[2].(PrescribingInfoRecord); !ok {
		t.Fatalf("records[2] = %T, want PrescribingInfoRecord", records[2])
	}
	if _, ok := records[3].(PackInfoRecord); !ok {
		t.Fatalf("records[3] = %T, want PackInfoRecord", records[3])
	}
}

func TestReaderRejectsMalformedRecordsAndContinues(t *testing.T) {
	t.Parallel()

	records, rejects := readAll(t, KindGenericPack, `<VIRTUAL_MED_PRODUCT_PACK><VMPPS>
  <VMPP><VPPID>1</VPPID><VPID>10</VPID><NM>Good</NM><QTYVAL>28.00</QTYVAL><QTY_UOMCD>428673006</QTY_UOMCD></VMPP>
  <VMPP><VPPID>2</VPPID><VPID>10</VPID><NM>Bad quantity</NM><QTYVAL>lots</QTYVAL><QTY_UOMCD>428673006</QTY_UOMCD></VMPP>
  <VMPP><VPPID>3</VPPID><VPID>10</VPID><QTYVAL>1</QTYVAL><QTY_UOMCD>428673006</QTY_UOMCD></VMPP>
  <VMPP><VPPID>4</VPPID><VPID>10</VPID><NM>Also good</NM><QTYVAL>56</QTYVAL><QTY_UOMCD>428673006</QTY_UOMCD></VMPP>
</VMPPS></VIRTUAL_MED_PRODUCT_PACK>`)

	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if len(rejects) != 2 {
		t.Fatalf("len(rejects) = %d, want 2", len(rejects))
	}

	tests := []struct {
		id    string
		field string
	}{
		{id: "2", field: "Quantity"},
		{id: "3", field: "Name"},
	}
	for i, tt := range tests {
		if rejects[i].ID != tt.id || rejects[i].Field != tt.field {
			t.Fatalf("rejects[%d] = %+v, want id %s field %s", i, rejects[i], tt.id, tt.field)
		}
		if rejects[i].Kind != KindGenericPack {
			t.Fatalf("rejects[%d].Kind = %q, want %q", i, rejects[i].Kind, KindGenericPack)
		}
	}
}

func TestReaderMarksSectionErrors(t *testing.T) {
	t.Parallel()

	_, rejects := readAll(t, KindBrandedPack, `<ACTUAL_MEDICINAL_PROD_PACKS>
  <AMPPS><AMPP><APPID>40002</APPID><APID>30002</APID><VPPID>20001</VPPID></AMPP></AMPPS>
  <MEDICINAL_PRODUCT_PRICE><PRICE_INFO><APPID>40005</APPID><PRICE>cheap</PRICE></PRICE_INFO></MEDICINAL_PRODUCT_PRICE>
</ACTUAL_MEDICINAL_PROD_PACKS>`)

	if len(rejects) != 2 {
		t.Fatalf("rejects = %v, want 2", rejects)
	}
	if rejects[0].ID != "40002" || rejects[0].Section {
		t.Fatalf("AMPP reject = %+v, want 40002 as a main entity", rejects[0])
	}
	if rejects[1].ID != "40005" || !rejects[1].Section {
		t.Fatalf("PRICE_INFO reject = %+v, want 40005 as a section", rejects[1])
	}
}

func TestRecordReferences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rec   Record
		want  []Reference
		owner string
	}{
		{rec: GenericProductRecord{ID: "10001"}},
		{rec: GenericProductRecord{ID: "10001", MoietyID: "90332006"}, want: []Reference{{KindMoiety, "90332006"}}},
		{rec: ProductIngredientRecord{ProductID: "10001", IngredientID: "387517004"}, want: []Reference{{KindGenericProduct, "10001"}, {KindIngredient, "387517004"}}, owner: "10001"},
		{rec: TariffRecord{PackID: "20001"}, want: []Reference{{KindGenericPack, "20001"}}, owner: "20001"},
		{rec: BrandedPackRecord{ID: "40001", BrandID: "30001", PackID: "20001"}, want: []Reference{{KindBrandedProduct, "30001"}, {KindGenericPack, "20001"}}},
		{rec: PackInfoRecord{PackID: " 40001 "}, want: []Reference{{KindBrandedPack, "40001"}}, owner: "40001"},
		{rec: TradeCodeRecord{PackID: "40002", Code: "5000000000002"}, want: []Reference{{KindBrandedPack, "40002"}}},
	}
	for _, tt := range tests {
		var got []Reference
		if dep, ok := tt.rec.(Dependent); ok {
			got = dep.References()
		}
		if !slices.Equal(got, tt.want) {
			t.Fatalf("%T.References() = %v, want %v", tt.rec, got, tt.want)
		}
		section, ok := tt.rec.(Section)
		if ok != (tt.owner != "") {
			t.Fatalf("%T is section = %v, want %v", tt.rec, ok, tt.owner != "")
		}
		if ok && section.Owner() != tt.owner {
			t.Fatalf("%T.Owner() = %q, want %q", tt.rec, section.Owner(), tt.owner)
		}
	}
}

func TestReaderTradeCodesFanOutPerPack(t *testing.T) {
	t.Parallel()

	records, rejects := readAll(t, KindTradeCode, `<GTIN_DETAILS><AMPPS>
  <AMPP><AMPPID>40002</AMPPID>
    <GTINDATA><GTIN>5000000000001</GTIN><STARTDT>2015-01-01</STARTDT><ENDDT>2019-12-31</ENDDT></GTINDATA>
    <GTINDATA><GTIN>5000000000002</GTIN><STARTDT>2020-01-01</STARTDT></GTINDATA>
    <GTINDATA><GTIN>5000000000003</GTIN><STARTDT>someday</STARTDT></GTINDATA>
  </AMPP>
</AMPPS></GTIN_DETAILS>`)

	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	for _, rec := range records {
		if got := rec.(TradeCodeRecord).PackID; got != "40002" {
			t.Fatalf("PackID = %q, want %q", got, "40002")
		}
	}
	if len(rejects) != 1 || rejects[0].Field != "StartDate" {
		t.Fatalf("rejects = %+v, want one StartDate rejection", rejects)
	}
}

func TestReaderBrokenDocumentIsFatal(t *testing.T) {
	t.Parallel()

	rd, err := NewReader(KindIngredient, strings.NewReader(`<INGREDIENT_SUBSTANCES><ING><ISID>1</ISID>`))
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	_, err = rd.Next()
	var recErr *RecordError
	if err == nil || errors.Is(err, io.EOF) || errors.As(err, &recErr) {
		t.Fatalf("Next() error = %v, want document error", err)
	}
}

func TestReaderDecodesLatin1Documents(t *testing.T) {
	t.Parallel()

	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n<INGREDIENT_SUBSTANCES><ING><ISID>1</ISID><NM>Caf\xe9ine</NM></ING></INGREDIENT_SUBSTANCES>"
	records, rejects := readAll(t, KindIngredient, doc)
	if len(rejects) != 0 || len(records) != 1 {
		t.Fatalf("records = %v rejects = %v", records, rejects)
	}
	if got := records[0].(IngredientRecord).Name; got != "Caféine" {
		t.Fatalf("Name = %q, want %q", got, "Caféine")
	}
}

func TestNewReaderUnknownKind(t *testing.T) {
	t.Parallel()

	if _, err := NewReader(Kind("bogus"), strings.NewReader("")); err == nil {
		t.Fatal("NewReader() error = nil, want error")
	}
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{
		"f_vmpp2_3110224.xml",
		"f_vmpp2_3100224.xml",
		"F_AMP2.XML",
		"f_vmp2.xml",
		"f_bnf2.xml",
		"readme.txt",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("<x/>"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	sources, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	want := []Source{
		{Kind: KindGenericProduct, Path: filepath.Join(dir, "f_vmp2.xml")},
		{Kind: KindGenericPack, Path: filepath.Join(dir, "f_vmpp2_3110224.xml")},
		{Kind: KindBrandedProduct, Path: filepath.Join(dir, "F_AMP2.XML")},
	}
	if len(sources) != len(want) {
		t.Fatalf("Discover() = %+v, want %+v", sources, want)
	}
	for i := range want {
		if sources[i] != want[i] {
			t.Fatalf("sources[%d] = %+v, want %+v", i, sources[i], want[i])
		}
	}
}

func TestDiscoverMissingDir(t *testing.T) {
	t.Parallel()

	if _, err := Discover(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("Discover() error = nil, want error")
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "f_vtm2.xml")
	if err := os.WriteFile(path, []byte("<VIRTUAL_THERAPEUTIC_MOIETIES/>"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	src := Source{Kind: KindMoiety, Path: path}

	first, err := src.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if len(first.Digest) != 64 || first.Size != 31 {
		t.Fatalf("Fingerprint() = %+v, want 64 hex chars and size 31", first)
	}

	again, err := src.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if again != first {
		t.Fatalf("Fingerprint() not stable: %+v vs %+v", again, first)
	}

	if err := os.WriteFile(path, []byte("<VIRTUAL_THERAPEUTIC_MOIETIES></VIRTUAL_THERAPEUTIC_MOIETIES>"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	changed, err := src.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if changed.Digest == first.Digest {
		t.Fatal("Fingerprint() digest unchanged after rewrite")
	}
}

func TestKindFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		want string
	}{
		{KindLookup, "f_lookup2.xml"},
		{KindMoiety, "f_vtm2.xml"},
		{KindBrandedPack, "f_ampp2.xml"},
		{KindTradeCode, "f_gtin2.xml"},
	}
	for _, tt := range tests {
		if got := tt.kind.FileName(); got != tt.want {
			t.Fatalf("%s.FileName() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
