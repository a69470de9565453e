package loader

import (
	"fmt"

	"tariffmaster/internal/source"
	"tariffmaster/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// batch buffers converted rows of one variant until the sink flushes them.
type batch[T any] struct {
	rows  []T
	key   func(T) string
	write func(tx *gorm.DB, rows []T) error
}

func (b *batch[T]) add(row T) {
	b.rows = append(b.rows, row)
}

func (b *batch[T]) size() int {
	return len(b.rows)
}

// flush writes the buffered rows, keeping only the last row per key so one
// statement never touches a row twice.
func (b *batch[T]) flush(tx *gorm.DB) (int, error) {
	if len(b.rows) == 0 {
		return 0, nil
	}
	rows := dedupe(b.rows, b.key)
	if err := b.write(tx, rows); err != nil {
		return 0, err
	}
	b.rows = b.rows[:0]
	return len(rows), nil
}

func dedupe[T any](rows []T, key func(T) string) []T {
	if key == nil {
		return rows
	}
	last := make(map[string]int, len(rows))
	for i, row := range rows {
		last[key(row)] = i
	}
	if len(last) == len(rows) {
		return rows
	}
	out := make([]T, 0, len(last))
	for i, row := range rows {
		if last[key(row)] == i {
			out = append(out, row)
		}
	}
	return out
}

// flusher is the type-erased view of a batch.
type flusher interface {
	size() int
	flush(tx *gorm.DB) (int, error)
}

func upsert[T any](tx *gorm.DB, rows []T, batchSize int, keys []string, updates []string) error {
	conflict := clause.OnConflict{}
	for _, key := range keys {
		conflict.Columns = append(conflict.Columns, clause.Column{Name: key})
	}
	if len(updates) == 0 {
		conflict.DoNothing = true
	} else {
		conflict.DoUpdates = clause.AssignmentColumns(updates)
	}
	return tx.Clauses(conflict).CreateInBatches(&rows, batchSize).Error
}

// reference ties a child record to the parent it requires.
type reference struct {
	child  string
	parent int64
}

// requireParents fails with a *ReferenceError on the first reference whose
// parent row does not exist.
func requireParents(tx *gorm.DB, kind, parentKind source.Kind, parent any, refs []reference) error {
	if len(refs) == 0 {
		return nil
	}

	seen := make(map[int64]struct{}, len(refs))
	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref.parent]; ok {
			continue
		}
		seen[ref.parent] = struct{}{}
		ids = append(ids, ref.parent)
	}

	var found []int64
	if err := tx.Model(parent).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return fmt.Errorf("check %s parents: %w", parentKind, err)
	}
	present := make(map[int64]struct{}, len(found))
	for _, id := range found {
		present[id] = struct{}{}
	}

	for _, ref := range refs {
		if _, ok := present[ref.parent]; !ok {
			return &ReferenceError{Kind: kind, ID: ref.child, ParentKind: parentKind, ParentID: ref.parent}
		}
	}
	return nil
}

func idKey(id int64) string {
	return fmt.Sprint(id)
}

func childRef(id, parent int64) reference {
	return reference{child: idKey(id), parent: parent}
}

// sink routes the records of one source file into batches. Batches are
// flushed together in dependency order: a section always follows the rows it
// refers to in the file, so parents reach the database first.
type sink struct {
	kind    source.Kind
	limit   int
	order   []flusher
	counts  map[flusher]string
	records func(rec source.Record) error
	// finish runs once after the last flush of the file.
	finish func(tx *gorm.DB) error
}

func (s *sink) full() bool {
	for _, f := range s.order {
		if f.size() >= s.limit {
			return true
		}
	}
	return false
}

// flush writes every buffered batch and returns the rows written per batch
// name.
func (s *sink) flush(tx *gorm.DB) (map[string]int, error) {
	written := map[string]int{}
	for _, f := range s.order {
		n, err := f.flush(tx)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			written[s.counts[f]] += n
		}
	}
	return written, nil
}

// close flushes what is left and completes the file.
func (s *sink) close(tx *gorm.DB) (map[string]int, error) {
	written, err := s.flush(tx)
	if err != nil {
		return nil, err
	}
	if s.finish != nil {
		if err := s.finish(tx); err != nil {
			return nil, err
		}
	}
	return written, nil
}

func (s *sink) register(name string, f flusher) {
	s.order = append(s.order, f)
	s.counts[f] = name
}

func newSink(kind source.Kind, batchSize int) (*sink, error) {
	s := &sink{kind: kind, limit: batchSize, counts: map[flusher]string{}}

	switch kind {
	case source.KindLookup:
		lookups := &batch[models.Lookup]{
			key: func(r models.Lookup) string { return r.Category + ":" + idKey(r.Code) },
			write: func(tx *gorm.DB, rows []models.Lookup) error {
				return upsert(tx, rows, batchSize, []string{"category", "code"}, []string{"description"})
			},
		}
		s.register(string(kind), lookups)
		s.records = func(rec source.Record) error {
			return convert(rec, lookupRow, lookups)
		}

	case source.KindIngredient:
		ingredients := &batch[models.Ingredient]{
			key: func(r models.Ingredient) string { return idKey(r.ID) },
			write: func(tx *gorm.DB, rows []models.Ingredient) error {
				return upsert(tx, rows, batchSize, []string{"id"}, []string{"name", "invalid", "updated_at"})
			},
		}
		s.register(string(kind), ingredients)
		s.records = func(rec source.Record) error {
			return convert(rec, ingredientRow, ingredients)
		}

	case source.KindMoiety:
		moieties := &batch[models.Moiety]{
			key: func(r models.Moiety) string { return idKey(r.ID) },
			write: func(tx *gorm.DB, rows []models.Moiety) error {
				return upsert(tx, rows, batchSize, []string{"id"}, []string{"name", "invalid", "previous_id", "changed_on", "updated_at"})
			},
		}
		s.register(string(kind), moieties)
		s.records = func(rec source.Record) error {
			return convert(rec, moietyRow, moieties)
		}

	case source.KindGenericProduct:
		products := &batch[models.GenericProduct]{
			key:   func(r models.GenericProduct) string { return idKey(r.ID) },
			write: writeProducts(batchSize),
		}
		ingredients := &batch[models.ProductIngredient]{
			key:   func(r models.ProductIngredient) string { return idKey(r.ProductID) + "/" + idKey(r.IngredientID) },
			write: writeProductIngredients(batchSize),
		}
		forms := &batch[models.ProductForm]{
			key:   func(r models.ProductForm) string { return idKey(r.ProductID) + "/" + idKey(r.FormCode) },
			write: writeProductForms(batchSize),
		}
		s.register(string(kind), products)
		s.register("product_ingredient", ingredients)
		s.register("product_form", forms)
		s.records = func(rec source.Record) error {
			switch r := rec.(type) {
			case source.GenericProductRecord:
				return convert(r, productRow, products)
			case source.ProductIngredientRecord:
				return convert(r, productIngredientRow, ingredients)
			case source.ProductFormRecord:
				return convert(r, productFormRow, forms)
			}
			return unexpected(kind, rec)
		}

	case source.KindGenericPack:
		packs := &batch[models.GenericPack]{
			key:   func(r models.GenericPack) string { return idKey(r.ID) },
			write: writeGenericPacks(batchSize),
		}
		tariffs := &batch[tariff]{
			key:   func(r tariff) string { return idKey(r.PackID) },
			write: writeTariffs,
		}
		s.register(string(kind), packs)
		s.register("tariff", tariffs)
		s.records = func(rec source.Record) error {
			switch r := rec.(type) {
			case source.GenericPackRecord:
				return convert(r, genericPackRow, packs)
			case source.TariffRecord:
				return convert(r, tariffRow, tariffs)
			}
			return unexpected(kind, rec)
		}

	case source.KindBrandedProduct:
		brands := &batch[models.BrandedProduct]{
			key:   func(r models.BrandedProduct) string { return idKey(r.ID) },
			write: writeBrandedProducts(batchSize),
		}
		s.register(string(kind), brands)
		s.records = func(rec source.Record) error {
			return convert(rec, brandedProductRow, brands)
		}

	case source.KindBrandedPack:
		packs := &batch[models.BrandedPack]{
			key:   func(r models.BrandedPack) string { return idKey(r.ID) },
			write: writeBrandedPacks(batchSize),
		}
		attachments := &batch[packAttachment]{write: writePackAttachments}
		s.register(string(kind), packs)
		s.register("pack_detail", attachments)
		s.records = func(rec source.Record) error {
			switch r := rec.(type) {
			case source.BrandedPackRecord:
				return convert(r, brandedPackRow, packs)
			case source.PriceInfoRecord:
				return convert(r, priceInfoRow, attachments)
			case source.PrescribingInfoRecord:
				return convert(r, prescribingInfoRow, attachments)
			case source.PackInfoRecord:
				return convert(r, packInfoRow, attachments)
			}
			return unexpected(kind, rec)
		}

	case source.KindTradeCode:
		listed := map[int64]map[string]struct{}{}
		codes := &batch[models.TradeCode]{
			key:   func(r models.TradeCode) string { return idKey(r.BrandPackID) + "/" + r.Code },
			write: writeTradeCodes(batchSize, listed),
		}
		s.register(string(kind), codes)
		s.finish = pruneTradeCodes(batchSize, listed)
		s.records = func(rec source.Record) error {
			return convert(rec, tradeCodeRow, codes)
		}

	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
	return s, nil
}

// convert turns rec into a row and buffers it. rec must be an R.
func convert[R source.Record, T any](rec source.Record, row func(R) (T, error), into *batch[T]) error {
	typed, ok := rec.(R)
	if !ok {
		return unexpected(rec.Kind(), rec)
	}
	value, err := row(typed)
	if err != nil {
		return err
	}
	into.add(value)
	return nil
}

func unexpected(kind source.Kind, rec source.Record) error {
	return fmt.Errorf("unexpected %T in %s source", rec, kind)
}
