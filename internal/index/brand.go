package index

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var parenthesized = regexp.MustCompile(`\([^()]*\)`)

// IsBrand reports whether a branded pack name differs from its generic pack
// name once the supplier suffix is removed. The supplier is the last
// parenthesized group of the branded name.
func IsBrand(brandedName, genericName string) bool {
	if groups := parenthesized.FindAllStringIndex(brandedName, -1); len(groups) > 0 {
		last := groups[len(groups)-1]
		brandedName = brandedName[:last[0]] + " " + brandedName[last[1]:]
	}
	return normaliseName(brandedName) != normaliseName(genericName)
}

func normaliseName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	return cases.Fold().String(norm.NFC.String(name))
}
