package models

// PriceStatus records how far a BrandedPack got through price resolution.
type PriceStatus string

const (
	PriceStatusUnknown              PriceStatus = "unknown"
	PriceStatusCalculated           PriceStatus = "calculated"
	PriceStatusIntentionallyMissing PriceStatus = "intentionally_missing"
)

// PriceSource distinguishes sourced prices from estimates.
type PriceSource string

const (
	PriceSourceInitial    PriceSource = "initial"
	PriceSourceCalculated PriceSource = "calculated"
)

// CalculationMethod names the inference tier that produced an estimate. It is
// nil on the row exactly when the price source is initial.
type CalculationMethod string

const (
	MethodSamePack       CalculationMethod = "same_pack"
	MethodSameProduct    CalculationMethod = "same_product"
	MethodSimilarProduct CalculationMethod = "similar_product"
)

// MissingReason explains why a BrandedPack is intentionally left unpriced.
type MissingReason string

const (
	ReasonNonReimbursable MissingReason = "non_reimbursable"
	ReasonDiscontinued    MissingReason = "discontinued"
	ReasonHospitalOnly    MissingReason = "hospital_only"
	ReasonNotAvailable    MissingReason = "not_available"
)

// CalculationMethods lists the methods in tier order.
var CalculationMethods = []CalculationMethod{MethodSamePack, MethodSameProduct, MethodSimilarProduct}

// MissingReasons lists the reasons in the order the classifier checks them.
var MissingReasons = []MissingReason{ReasonNonReimbursable, ReasonDiscontinued, ReasonHospitalOnly, ReasonNotAvailable}

// ValidPriceStatus reports whether value is a known price status.
func ValidPriceStatus(value string) bool {
	switch PriceStatus(value) {
	case PriceStatusUnknown, PriceStatusCalculated, PriceStatusIntentionallyMissing:
		return true
	default:
		return false
	}
}

// ValidCalculationMethod reports whether value names an inference tier.
func ValidCalculationMethod(value string) bool {
	for _, method := range CalculationMethods {
		if string(method) == value {
			return true
		}
	}
	return false
}

// ValidMissingReason reports whether value is a known missing-price reason.
func ValidMissingReason(value string) bool {
	for _, reason := range MissingReasons {
		if string(reason) == value {
			return true
		}
	}
	return false
}

// Ptr returns a pointer to v. It keeps nullable column assignments short.
func Ptr[T any](v T) *T {
	return &v
}
