package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Kind names one logical input stream.
type Kind string

const (
	KindLookup         Kind = "lookup"
	KindIngredient     Kind = "ingredient"
	KindMoiety         Kind = "moiety"
	KindGenericProduct Kind = "generic_product"
	KindGenericPack    Kind = "generic_pack"
	KindBrandedProduct Kind = "branded_product"
	KindBrandedPack    Kind = "branded_pack"
	KindTradeCode      Kind = "trade_code"
)

// Levels groups the kinds into load levels. Kinds inside a level have no
// dependency on each other; every level depends only on earlier ones.
var Levels = [][]Kind{
	{KindLookup, KindIngredient, KindMoiety},
	{KindGenericProduct},
	{KindGenericPack, KindBrandedProduct},
	{KindBrandedPack},
	{KindTradeCode},
}

// Kinds lists every kind in load order.
func Kinds() []Kind {
	var kinds []Kind
	for _, level := range Levels {
		kinds = append(kinds, level...)
	}
	return kinds
}

var fileStems = map[Kind]string{
	KindLookup:         "lookup",
	KindIngredient:     "ingredient",
	KindMoiety:         "vtm",
	KindGenericProduct: "vmp",
	KindGenericPack:    "vmpp",
	KindBrandedProduct: "amp",
	KindBrandedPack:    "ampp",
	KindTradeCode:      "gtin",
}

// FileName is the canonical release file name of a kind, e.g. f_vmpp2.xml.
func (k Kind) FileName() string {
	return fmt.Sprintf("f_%s2.xml", fileStems[k])
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := fileStems[k]
	return ok
}

var releaseFilePattern = regexp.MustCompile(`(?i)^f_([a-z]+)2(?:_\d+)?\.xml$`)

// Source is one per-kind input file.
type Source struct {
	Kind Kind
	Path string
}

// Open opens the underlying file.
func (s Source) Open() (io.ReadCloser, error) {
	return os.Open(s.Path)
}

// Discover finds the release files inside dir. Names are matched
// case-insensitively with or without the release suffix. When several files
// map to one kind the lexically greatest name wins, which picks the newest
// release.
func Discover(dir string) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source dir: %w", err)
	}

	byStem := make(map[string]Kind, len(fileStems))
	for kind, stem := range fileStems {
		byStem[stem] = kind
	}

	found := map[Kind]string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := releaseFilePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		kind, ok := byStem[strings.ToLower(match[1])]
		if !ok {
			continue
		}
		if current, exists := found[kind]; !exists || entry.Name() > current {
			found[kind] = entry.Name()
		}
	}

	sources := make([]Source, 0, len(found))
	for _, kind := range Kinds() {
		if name, ok := found[kind]; ok {
			sources = append(sources, Source{Kind: kind, Path: filepath.Join(dir, name)})
		}
	}
	return sources, nil
}
