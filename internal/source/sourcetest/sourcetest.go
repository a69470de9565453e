// Package sourcetest provides a small but complete dm+d release for tests.
//
// The release mirrors the rows seeded by internal/db/mock so the same
// expectations hold whether a test loads files or starts from a seeded
// database.
package sourcetest

import (
	"os"
	"path/filepath"
	"testing"

	"tariffmaster/internal/source"
)

// Release holds the file content of every kind.
var Release = map[source.Kind]string{
	source.KindLookup: `<?xml version="1.0" encoding="utf-8"?>
<LOOKUP>
  <UNIT_OF_MEASURE>
    <INFO><CD>428673006</CD><DESC>tablet</DESC></INFO>
    <INFO><CD>258773002</CD><DESC>ml</DESC></INFO>
    <INFO><CD>258684004</CD><DESC>mg</DESC></INFO>
  </UNIT_OF_MEASURE>
  <FORM>
    <INFO><CD>385060002</CD><DESC>Soluble tablet</DESC></INFO>
    <INFO><CD>385055001</CD><DESC>Tablet</DESC></INFO>
    <INFO><CD>385023001</CD><DESC>Oral solution</DESC></INFO>
  </FORM>
  <SUPPLIER>
    <INFO><CD>2001</CD><DESC>Acme Ltd</DESC></INFO>
    <INFO><CD>2002</CD><DESC>Zeta Pharma</DESC></INFO>
    <INFO><CD>2003</CD><DESC>Hosp Supplies</DESC></INFO>
  </SUPPLIER>
</LOOKUP>
`,
	source.KindIngredient: `<?xml version="1.0" encoding="utf-8"?>
<INGREDIENT_SUBSTANCES>
  <ING><ISID>387517004</ISID><NM>Paracetamol</NM></ING>
  <ING><ISID>387207008</ISID><NM>Ibuprofen</NM></ING>
</INGREDIENT_SUBSTANCES>
`,
	source.KindMoiety: `<?xml version="1.0" encoding="utf-8"?>
<VIRTUAL_THERAPEUTIC_MOIETIES>
  <VTM><VTMID>90332006</VTMID><NM>Paracetamol</NM></VTM>
  <VTM><VTMID>108979001</VTMID><NM>Ibuprofen</NM></VTM>
</VIRTUAL_THERAPEUTIC_MOIETIES>
`,
	source.KindGenericProduct: `<?xml version="1.0" encoding="utf-8"?>
<VIRTUAL_MED_PRODUCTS>
  <VMPS>
    <VMP><VPID>10001</VPID><VTMID>90332006</VTMID><NM>Paracetamol 500mg soluble tablets</NM><BASISCD>1</BASISCD></VMP>
    <VMP><VPID>10002</VPID><VTMID>108979001</VTMID><NM>Ibuprofen 200mg tablets</NM><BASISCD>1</BASISCD></VMP>
    <VMP><VPID>10003</VPID><VTMID>108979001</VTMID><NM>Ibuprofen 400mg tablets</NM><BASISCD>1</BASISCD></VMP>
    <VMP><VPID>10004</VPID><VTMID>90332006</VTMID><NM>Paracetamol 250mg/5ml oral solution</NM><BASISCD>1</BASISCD><SUG_F>1</SUG_F></VMP>
  </VMPS>
  <VIRTUAL_PRODUCT_INGREDIENT>
    <VPI><VPID>10001</VPID><ISID>387517004</ISID><BASIS_STRNTCD>1</BASIS_STRNTCD><STRNT_NMRTR_VAL>500</STRNT_NMRTR_VAL><STRNT_NMRTR_UOMCD>258684004</STRNT_NMRTR_UOMCD></VPI>
    <VPI><VPID>10002</VPID><ISID>387207008</ISID><BASIS_STRNTCD>1</BASIS_STRNTCD><STRNT_NMRTR_VAL>200</STRNT_NMRTR_VAL><STRNT_NMRTR_UOMCD>258684004</STRNT_NMRTR_UOMCD></VPI>
    <VPI><VPID>10003</VPID><ISID>387207008</ISID><BASIS_STRNTCD>1</BASIS_STRNTCD><STRNT_NMRTR_VAL>400</STRNT_NMRTR_VAL><STRNT_NMRTR_UOMCD>258684004</STRNT_NMRTR_UOMCD></VPI>
    <VPI><VPID>10004</VPID><ISID>387517004</ISID><BASIS_STRNTCD>1</BASIS_STRNTCD><STRNT_NMRTR_VAL>50</STRNT_NMRTR_VAL><STRNT_NMRTR_UOMCD>258684004</STRNT_NMRTR_UOMCD><STRNT_DNMTR_VAL>1</STRNT_DNMTR_VAL><STRNT_DNMTR_UOMCD>258773002</STRNT_DNMTR_UOMCD></VPI>
  </VIRTUAL_PRODUCT_INGREDIENT>
  <DRUG_FORM>
    <DFORM><VPID>10001</VPID><FORMCD>385060002</FORMCD></DFORM>
    <DFORM><VPID>10002</VPID><FORMCD>385055001</FORMCD></DFORM>
    <DFORM><VPID>10003</VPID><FORMCD>385055001</FORMCD></DFORM>
    <DFORM><VPID>10004</VPID><FORMCD>385023001</FORMCD></DFORM>
  </DRUG_FORM>
</VIRTUAL_MED_PRODUCTS>
`,
	source.KindGenericPack: `<?xml version="1.0" encoding="utf-8"?>
<VIRTUAL_MED_PRODUCT_PACK>
  <VMPPS>
    <VMPP><VPPID>20001</VPPID><VPID>10001</VPID><NM>Paracetamol 500mg soluble tablets 16 tablet</NM><QTYVAL>16.00</QTYVAL><QTY_UOMCD>428673006</QTY_UOMCD></VMPP>
    <VMPP><VPPID>20002</VPPID><VPID>10001</VPID><NM>Paracetamol 500mg soluble tablets 32 tablet</NM><QTYVAL>32.00</QTYVAL><QTY_UOMCD>428673006</QTY_UOMCD></VMPP>
    <VMPP><VPPID>20004</VPPID><VPID>10002</VPID><NM>Ibuprofen 200mg tablets 24 tablet</NM><QTYVAL>24.00</QTYVAL><QTY_UOMCD>428673006</QTY_UOMCD></VMPP>
    <VMPP><VPPID>20005</VPPID><VPID>10003</VPID><NM>Ibuprofen 400mg tablets 48 tablet</NM><QTYVAL>48.00</QTYVAL><QTY_UOMCD>428673006</QTY_UOMCD></VMPP>
    <VMPP><VPPID>20006</VPPID><VPID>10004</VPID><NM>Paracetamol 250mg/5ml oral solution 100 ml</NM><QTYVAL>100.00</QTYVAL><QTY_UOMCD>258773002</QTY_UOMCD></VMPP>
  </VMPPS>
  <DRUG_TARIFF_INFO>
    <DTINFO><VPPID>20001</VPPID><PAY_CATCD>1</PAY_CATCD><PRICE>80</PRICE><DT>2024-01-01</DT></DTINFO>
  </DRUG_TARIFF_INFO>
</VIRTUAL_MED_PRODUCT_PACK>
`,
	source.KindBrandedProduct: `<?xml version="1.0" encoding="utf-8"?>
<ACTUAL_MEDICINAL_PRODUCTS>
  <AMPS>
    <AMP><APID>30001</APID><VPID>10001</VPID><NM>Paracetamol 500mg soluble tablets</NM><SUPPCD>2001</SUPPCD><AVAIL_RESTRICTCD>1</AVAIL_RESTRICTCD></AMP>
    <AMP><APID>30002</APID><VPID>10001</VPID><NM>Panadol Soluble</NM><DESC>Panadol Soluble 500mg tablets (Acme Ltd)</DESC><SUPPCD>2001</SUPPCD><AVAIL_RESTRICTCD>1</AVAIL_RESTRICTCD></AMP>
    <AMP><APID>30003</APID><VPID>10001</VPID><NM>Paracetamol 500mg soluble tablets</NM><SUPPCD>2003</SUPPCD><AVAIL_RESTRICTCD>1</AVAIL_RESTRICTCD></AMP>
    <AMP><APID>30004</APID><VPID>10002</VPID><NM>Ibuprofen 200mg tablets</NM><SUPPCD>2002</SUPPCD><AVAIL_RESTRICTCD>1</AVAIL_RESTRICTCD></AMP>
    <AMP><APID>30005</APID><VPID>10002</VPID><NM>Nurofen 200mg tablets</NM><SUPPCD>2001</SUPPCD><AVAIL_RESTRICTCD>1</AVAIL_RESTRICTCD></AMP>
    <AMP><APID>30006</APID><VPID>10003</VPID><NM>Ibuprofen 400mg tablets</NM><SUPPCD>2002</SUPPCD><AVAIL_RESTRICTCD>1</AVAIL_RESTRICTCD></AMP>
    <AMP><APID>30007</APID><VPID>10004</VPID><NM>Paracetamol 250mg/5ml oral solution</NM><SUPPCD>2001</SUPPCD><AVAIL_RESTRICTCD>1</AVAIL_RESTRICTCD></AMP>
    <AMP><APID>30008</APID><VPID>10002</VPID><NM>Ibuprofen 200mg tablets</NM><SUPPCD>2003</SUPPCD><AVAIL_RESTRICTCD>9</AVAIL_RESTRICTCD></AMP>
    <AMP><APID>30009</APID><VPID>10002</VPID><NM>Ibuprofen 200mg tablets</NM><SUPPCD>2001</SUPPCD><AVAIL_RESTRICTCD>1</AVAIL_RESTRICTCD></AMP>
  </AMPS>
</ACTUAL_MEDICINAL_PRODUCTS>
`,
	source.KindBrandedPack: `<?xml version="1.0" encoding="utf-8"?>
<ACTUAL_MEDICINAL_PROD_PACKS>
  <AMPPS>
    <AMPP><APPID>40001</APPID><APID>30001</APID><VPPID>20001</VPPID><NM>Paracetamol 500mg soluble tablets (Acme Ltd) 16 tablet</NM><LEGAL_CATCD>1</LEGAL_CATCD></AMPP>
    <AMPP><APPID>40002</APPID><APID>30002</APID><VPPID>20001</VPPID><NM>Panadol Soluble (Acme Ltd) 16 tablet</NM><LEGAL_CATCD>1</LEGAL_CATCD></AMPP>
    <AMPP><APPID>40003</APPID><APID>30003</APID><VPPID>20002</VPPID><NM>Paracetamol 500mg soluble tablets (Hosp Supplies) 32 tablet</NM><LEGAL_CATCD>3</LEGAL_CATCD></AMPP>
    <AMPP><APPID>40004</APPID><APID>30001</APID><VPPID>20002</VPPID><NM>Paracetamol 500mg soluble tablets (Acme Ltd) 32 tablet</NM><LEGAL_CATCD>3</LEGAL_CATCD></AMPP>
    <AMPP><APPID>40005</APPID><APID>30004</APID><VPPID>20004</VPPID><NM>Ibuprofen 200mg tablets (Zeta Pharma) 24 tablet</NM><LEGAL_CATCD>3</LEGAL_CATCD></AMPP>
    <AMPP><APPID>40006</APPID><APID>30005</APID><VPPID>20004</VPPID><NM>Nurofen 200mg tablets (Acme Ltd) 24 tablet</NM><LEGAL_CATCD>3</LEGAL_CATCD></AMPP>
    <AMPP><APPID>40007</APPID><APID>30008</APID><VPPID>20004</VPPID><NM>Ibuprofen 200mg tablets (Hosp Supplies) 24 tablet</NM><LEGAL_CATCD>3</LEGAL_CATCD></AMPP>
    <AMPP><APPID>40008</APPID><APID>30009</APID><VPPID>20004</VPPID><NM>Ibuprofen 200mg tablets (Acme Ltd) 24 tablet</NM><LEGAL_CATCD>3</LEGAL_CATCD></AMPP>
    <AMPP><APPID>40009</APPID><APID>30006</APID><VPPID>20005</VPPID><NM>Ibuprofen 400mg tablets (Zeta Pharma) 48 tablet</NM><LEGAL_CATCD>1</LEGAL_CATCD></AMPP>
    <AMPP><APPID>40010</APPID><APID>30007</APID><VPPID>20006</VPPID><NM>Paracetamol 250mg/5ml oral solution (Acme Ltd) 100 ml</NM><LEGAL_CATCD>3</LEGAL_CATCD></AMPP>
    <AMPP><APPID>40011</APPID><APID>30007</APID><VPPID>20006</VPPID><NM>Paracetamol 250mg/5ml oral solution (Acme Ltd) 100 ml</NM><LEGAL_CATCD>3</LEGAL_CATCD><DISCCD>1</DISCCD><DISCDT>2023-06-01</DISCDT></AMPP>
    <AMPP><APPID>40012</APPID><APID>30006</APID><VPPID>20005</VPPID><NM>Ibuprofen 400mg tablets (Zeta Pharma) 48 tablet</NM><LEGAL_CATCD>1</LEGAL_CATCD></AMPP>
  </AMPPS>
  <MEDICINAL_PRODUCT_PRICE>
    <PRICE_INFO><APPID>40002</APPID><PRICE>95</PRICE><PRICEDT>2024-02-01</PRICEDT></PRICE_INFO>
    <PRICE_INFO><APPID>40005</APPID><PRICE>60</PRICE><PRICEDT>2024-02-01</PRICEDT></PRICE_INFO>
    <PRICE_INFO><APPID>40006</APPID><PRICE>180</PRICE><PRICEDT>2024-02-01</PRICEDT></PRICE_INFO>
  </MEDICINAL_PRODUCT_PRICE>
  <PRESCRIBING_INFO>
    <PRESCRIB_INFO><APPID>40003</APPID><HOSP>1</HOSP></PRESCRIB_INFO>
  </PRESCRIBING_INFO>
  <APPLIANCE_PACK_INFO>
    <PACK_INFO><APPID>40001</APPID><REIMB_STATCD>1</REIMB_STATCD></PACK_INFO>
    <PACK_INFO><APPID>40012</APPID><REIMB_STATCD>2</REIMB_STATCD></PACK_INFO>
  </APPLIANCE_PACK_INFO>
</ACTUAL_MEDICINAL_PROD_PACKS>
`,
	source.KindTradeCode: `<?xml version="1.0" encoding="utf-8"?>
<GTIN_DETAILS>
  <AMPPS>
    <AMPP>
      <AMPPID>40001</AMPPID>
      <GTINDATA><GTIN>5012345678900</GTIN><STARTDT>2020-01-01</STARTDT></GTINDATA>
    </AMPP>
    <AMPP>
      <AMPPID>40002</AMPPID>
      <GTINDATA><GTIN>5000000000001</GTIN><STARTDT>2015-01-01</STARTDT><ENDDT>2019-12-31</ENDDT></GTINDATA>
      <GTINDATA><GTIN>5000000000002</GTIN><STARTDT>2020-01-01</STARTDT></GTINDATA>
    </AMPP>
  </AMPPS>
</GTIN_DETAILS>
`,
}

// Write stores content for each kind under its canonical file name in dir
// and returns the sources in load order. Kinds missing from files are not
// written.
func Write(tb testing.TB, dir string, files map[source.Kind]string) []source.Source {
	tb.Helper()

	var sources []source.Source
	for _, kind := range source.Kinds() {
		content, ok := files[kind]
		if !ok {
			continue
		}
		path := filepath.Join(dir, kind.FileName())
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			tb.Fatalf("write %s: %v", path, err)
		}
		sources = append(sources, source.Source{Kind: kind, Path: path})
	}
	return sources
}

// WriteRelease writes the full release to a fresh temporary directory.
func WriteRelease(tb testing.TB) []source.Source {
	tb.Helper()
	return Write(tb, tb.TempDir(), Release)
}

// With returns a copy of the release with the given kinds replaced.
func With(overrides map[source.Kind]string) map[source.Kind]string {
	files := make(map[source.Kind]string, len(Release))
	for kind, content := range Release {
		files[kind] = content
	}
	for kind, content := range overrides {
		files[kind] = content
	}
	return files
}
