package source

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/encoding/ianaindex"
)

// RecordError describes one malformed input record. Readers return it for a
// record that could not be decoded or validated; the stream stays usable.
// Section is set when the record attaches to a main entity, in which case ID
// names that entity and not a record of its own.
type RecordError struct {
	Kind    Kind
	ID      string
	Field   string
	Reason  string
	Section bool
}

func (e *RecordError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s record %q: field %s: %s", e.Kind, e.ID, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s record %q: %s", e.Kind, e.ID, e.Reason)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type elementDecoder func(r *Reader, start xml.StartElement) ([]Record, error)

// Reader streams the records of one release file without holding the
// document in memory.
type Reader struct {
	kind     Kind
	dec      *xml.Decoder
	elements map[string]elementDecoder
	path     []string
	pending  []Record
}

// NewReader returns a Reader that decodes records of kind from in.
func NewReader(kind Kind, in io.Reader) (*Reader, error) {
	elements, ok := elementsByKind[kind]
	if !ok {
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
	dec := xml.NewDecoder(in)
	dec.CharsetReader = charsetReader
	return &Reader{kind: kind, dec: dec, elements: elements}, nil
}

func charsetReader(label string, in io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return enc.NewDecoder().Reader(in), nil
}

// Next returns the next record. It returns io.EOF when the stream is
// exhausted and a *RecordError for a malformed record; any other error means
// the document itself is unreadable.
func (r *Reader) Next() (Record, error) {
	for {
		if len(r.pending) > 0 {
			rec := r.pending[0]
			r.pending = r.pending[1:]
			return rec, nil
		}

		tok, err := r.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read %s document: %w", r.kind, err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			decode, ok := r.elements[el.Name.Local]
			if !ok {
				r.path = append(r.path, el.Name.Local)
				continue
			}
			records, err := decode(r, el)
			if err != nil {
				return nil, err
			}
			r.pending = append(r.pending, records...)
		case xml.EndElement:
			if len(r.path) > 0 {
				r.path = r.path[:len(r.path)-1]
			}
		}
	}
}

// parent is the name of the element enclosing the current record.
func (r *Reader) parent() string {
	if len(r.path) == 0 {
		return ""
	}
	return r.path[len(r.path)-1]
}

// decodeRecord decodes one element into a T and validates it.
func decodeRecord[T Record](r *Reader, start xml.StartElement, prepare func(*T)) ([]Record, error) {
	var rec T
	_, section := any(rec).(Section)
	if err := r.dec.DecodeElement(&rec, &start); err != nil {
		var syntaxErr *xml.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, fmt.Errorf("read %s document: %w", r.kind, err)
		}
		return nil, &RecordError{Kind: r.kind, Reason: err.Error(), Section: section}
	}
	if prepare != nil {
		prepare(&rec)
	}
	if err := check(rec); err != nil {
		var recErr *RecordError
		if errors.As(err, &recErr) {
			recErr.Section = section
		}
		return nil, err
	}
	return []Record{rec}, nil
}

func check(rec Record) error {
	if err := validate.Struct(rec); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			return &RecordError{
				Kind:   rec.Kind(),
				ID:     rec.Identity(),
				Field:  first.Field(),
				Reason: describe(first),
			}
		}
		return &RecordError{Kind: rec.Kind(), ID: rec.Identity(), Reason: err.Error()}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "missing required value"
	case "numeric":
		return fmt.Sprintf("%q is not numeric", fe.Value())
	case "datetime":
		return fmt.Sprintf("%q is not a date in %s form", fe.Value(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%q is not one of %s", fe.Value(), fe.Param())
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}

func trimSpace(fields ...*string) {
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
}

// gtinPack is the AMPP wrapper of the trade code file; one pack carries any
// number of GTINDATA children.
type gtinPack struct {
	PackID string `xml:"AMPPID"`
	Codes  []struct {
		Code      string `xml:"GTIN"`
		StartDate string `xml:"STARTDT"`
		EndDate   string `xml:"ENDDT"`
	} `xml:"GTINDATA"`
}

func decodeTradeCodes(r *Reader, start xml.StartElement) ([]Record, error) {
	var pack gtinPack
	if err := r.dec.DecodeElement(&pack, &start); err != nil {
		var syntaxErr *xml.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, fmt.Errorf("read %s document: %w", r.kind, err)
		}
		return nil, &RecordError{Kind: r.kind, Reason: err.Error()}
	}

	packID := strings.TrimSpace(pack.PackID)
	records := make([]Record, 0, len(pack.Codes))
	var firstErr error
	for _, code := range pack.Codes {
		rec := TradeCodeRecord{
			PackID:    packID,
			Code:      strings.TrimSpace(code.Code),
			StartDate: strings.TrimSpace(code.StartDate),
			EndDate:   strings.TrimSpace(code.EndDate),
		}
		if err := check(rec); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		records = append(records, rec)
	}
	if firstErr != nil {
		// Keep the valid siblings and report the bad one after them.
		r.pending = append(r.pending, records...)
		return nil, firstErr
	}
	if len(pack.Codes) == 0 {
		return nil, &RecordError{Kind: r.kind, ID: packID, Field: "GTINDATA", Reason: "missing required value"}
	}
	return records, nil
}

func element[T Record]() elementDecoder {
	return func(r *Reader, start xml.StartElement) ([]Record, error) {
		return decodeRecord[T](r, start, nil)
	}
}

var elementsByKind = map[Kind]map[string]elementDecoder{
	KindLookup: {
		"INFO": func(r *Reader, start xml.StartElement) ([]Record, error) {
			category := r.parent()
			return decodeRecord(r, start, func(rec *LookupRecord) {
				rec.Category = category
				trimSpace(&rec.Code, &rec.Description)
			})
		},
	},
	KindIngredient: {"ING": element[IngredientRecord]()},
	KindMoiety:     {"VTM": element[MoietyRecord]()},
	KindGenericProduct: {
		"VMP":   element[GenericProductRecord](),
		"VPI":   element[ProductIngredientRecord](),
		"DFORM": element[ProductFormRecord](),
	},
	KindGenericPack: {
		"VMPP":   element[GenericPackRecord](),
		"DTINFO": element[TariffRecord](),
	},
	KindBrandedProduct: {"AMP": element[BrandedProductRecord]()},
	KindBrandedPack: {
		"AMPP":          element[BrandedPackRecord](),
		"PRICE_INFO":    element[PriceInfoRecord](),
		"PRESCRIB_INFO": element[PrescribingInfoRecord](),
		"PACK_INFO":     element[PackInfoRecord](),
	},
	KindTradeCode: {"AMPP": decodeTradeCodes},
}
