package loader

import (
	"fmt"
	"maps"
	"slices"

	"tariffmaster/internal/source"
	"tariffmaster/models"

	"gorm.io/gorm"
)

func writeProducts(batchSize int) func(*gorm.DB, []models.GenericProduct) error {
	return func(tx *gorm.DB, rows []models.GenericProduct) error {
		ids := make([]int64, len(rows))
		for i, row := range rows {
			ids[i] = row.ID
		}
		// A reloaded product brings its full ingredient and form lists in the
		// sections that follow.
		if err := tx.Where("product_id IN ?", ids).Delete(&models.ProductIngredient{}).Error; err != nil {
			return fmt.Errorf("replace product ingredients: %w", err)
		}
		if err := tx.Where("product_id IN ?", ids).Delete(&models.ProductForm{}).Error; err != nil {
			return fmt.Errorf("replace product forms: %w", err)
		}
		return upsert(tx, rows, batchSize, []string{"id"}, []string{
			"moiety_id", "name", "basis_code", "invalid", "sugar_free", "gluten_free",
			"preservative_free", "cfc_free", "previous_id", "updated_at",
		})
	}
}

func writeProductIngredients(batchSize int) func(*gorm.DB, []models.ProductIngredient) error {
	return func(tx *gorm.DB, rows []models.ProductIngredient) error {
		products := make([]reference, len(rows))
		ingredients := make([]reference, len(rows))
		for i, row := range rows {
			id := idKey(row.ProductID) + "/" + idKey(row.IngredientID)
			products[i] = reference{child: id, parent: row.ProductID}
			ingredients[i] = reference{child: id, parent: row.IngredientID}
		}
		if err := requireParents(tx, source.KindGenericProduct, source.KindGenericProduct, &models.GenericProduct{}, products); err != nil {
			return err
		}
		if err := requireParents(tx, source.KindGenericProduct, source.KindIngredient, &models.Ingredient{}, ingredients); err != nil {
			return err
		}
		return upsert(tx, rows, batchSize, []string{"product_id", "ingredient_id"}, []string{
			"basis_code", "strength_value", "strength_unit_code", "denominator_value", "denominator_unit_code",
		})
	}
}

func writeProductForms(batchSize int) func(*gorm.DB, []models.ProductForm) error {
	return func(tx *gorm.DB, rows []models.ProductForm) error {
		refs := make([]reference, len(rows))
		for i, row := range rows {
			refs[i] = reference{child: idKey(row.ProductID) + "/" + idKey(row.FormCode), parent: row.ProductID}
		}
		if err := requireParents(tx, source.KindGenericProduct, source.KindGenericProduct, &models.GenericProduct{}, refs); err != nil {
			return err
		}
		return upsert(tx, rows, batchSize, []string{"product_id", "form_code"}, nil)
	}
}

func writeGenericPacks(batchSize int) func(*gorm.DB, []models.GenericPack) error {
	return func(tx *gorm.DB, rows []models.GenericPack) error {
		refs := make([]reference, len(rows))
		for i, row := range rows {
			refs[i] = childRef(row.ID, row.ProductID)
		}
		if err := requireParents(tx, source.KindGenericPack, source.KindGenericProduct, &models.GenericProduct{}, refs); err != nil {
			return err
		}
		// The tariff columns are reset here and set again by the DTINFO
		// section of the same file.
		return upsert(tx, rows, batchSize, []string{"id"}, []string{
			"product_id", "name", "quantity", "unit_code", "tariff_price", "tariff_date", "invalid", "updated_at",
		})
	}
}

func writeTariffs(tx *gorm.DB, rows []tariff) error {
	refs := make([]reference, len(rows))
	for i, row := range rows {
		refs[i] = childRef(row.PackID, row.PackID)
	}
	if err := requireParents(tx, source.KindGenericPack, source.KindGenericPack, &models.GenericPack{}, refs); err != nil {
		return err
	}
	for _, row := range rows {
		err := tx.Model(&models.GenericPack{}).Where("id = ?", row.PackID).Updates(map[string]any{
			"tariff_price": row.Price,
			"tariff_date":  row.Date,
		}).Error
		if err != nil {
			return fmt.Errorf("set tariff of pack %d: %w", row.PackID, err)
		}
	}
	return nil
}

func writeBrandedProducts(batchSize int) func(*gorm.DB, []models.BrandedProduct) error {
	return func(tx *gorm.DB, rows []models.BrandedProduct) error {
		refs := make([]reference, len(rows))
		for i, row := range rows {
			refs[i] = childRef(row.ID, row.ProductID)
		}
		if err := requireParents(tx, source.KindBrandedProduct, source.KindGenericProduct, &models.GenericProduct{}, refs); err != nil {
			return err
		}
		return upsert(tx, rows, batchSize, []string{"id"}, []string{
			"product_id", "name", "description", "supplier_code", "licensing_authority_code",
			"availability_code", "parallel_import", "ema", "invalid", "updated_at",
		})
	}
}

func writeBrandedPacks(batchSize int) func(*gorm.DB, []models.BrandedPack) error {
	return func(tx *gorm.DB, rows []models.BrandedPack) error {
		brands := make([]reference, len(rows))
		packs := make([]reference, len(rows))
		for i, row := range rows {
			brands[i] = childRef(row.ID, row.BrandID)
			packs[i] = childRef(row.ID, row.PackID)
		}
		if err := requireParents(tx, source.KindBrandedPack, source.KindBrandedProduct, &models.BrandedProduct{}, brands); err != nil {
			return err
		}
		if err := requireParents(tx, source.KindBrandedPack, source.KindGenericPack, &models.GenericPack{}, packs); err != nil {
			return err
		}
		// Price resolution columns belong to the classifier and the engine and
		// survive a reload. The detail columns are reset and then set again by
		// the sections that follow in the file.
		return upsert(tx, rows, batchSize, []string{"id"}, []string{
			"brand_id", "pack_id", "name", "legal_category_code", "discontinued_code", "discontinued_on",
			"invalid", "hospital_only", "reimbursement_code", "list_price", "list_price_date", "updated_at",
		})
	}
}

func writePackAttachments(tx *gorm.DB, rows []packAttachment) error {
	refs := make([]reference, len(rows))
	for i, row := range rows {
		refs[i] = childRef(row.PackID, row.PackID)
	}
	if err := requireParents(tx, source.KindBrandedPack, source.KindBrandedPack, &models.BrandedPack{}, refs); err != nil {
		return err
	}
	for _, row := range rows {
		if err := tx.Model(&models.BrandedPack{}).Where("id = ?", row.PackID).Updates(row.Columns).Error; err != nil {
			return fmt.Errorf("set details of branded pack %d: %w", row.PackID, err)
		}
	}
	return nil
}

// writeTradeCodes upserts codes by pack and code, so an unchanged code keeps
// its row. listed collects every code seen per pack for pruneTradeCodes.
func writeTradeCodes(batchSize int, listed map[int64]map[string]struct{}) func(*gorm.DB, []models.TradeCode) error {
	return func(tx *gorm.DB, rows []models.TradeCode) error {
		refs := make([]reference, len(rows))
		for i, row := range rows {
			refs[i] = reference{child: idKey(row.BrandPackID) + "/" + row.Code, parent: row.BrandPackID}
		}
		if err := requireParents(tx, source.KindTradeCode, source.KindBrandedPack, &models.BrandedPack{}, refs); err != nil {
			return err
		}
		for _, row := range rows {
			if listed[row.BrandPackID] == nil {
				listed[row.BrandPackID] = map[string]struct{}{}
			}
			listed[row.BrandPackID][row.Code] = struct{}{}
		}
		return upsert(tx, rows, batchSize, []string{"brand_pack_id", "code"}, []string{"start_date", "end_date", "updated_at"})
	}
}

// pruneTradeCodes deletes the stored codes of every pack in listed that the
// file no longer carries. Packs the file does not mention keep their codes.
func pruneTradeCodes(batchSize int, listed map[int64]map[string]struct{}) func(*gorm.DB) error {
	return func(tx *gorm.DB) error {
		packs := slices.Sorted(maps.Keys(listed))
		for chunk := range slices.Chunk(packs, batchSize) {
			var stored []models.TradeCode
			if err := tx.Select("id", "brand_pack_id", "code").Where("brand_pack_id IN ?", chunk).Find(&stored).Error; err != nil {
				return fmt.Errorf("load trade codes: %w", err)
			}
			var stale []int64
			for _, code := range stored {
				if _, ok := listed[code.BrandPackID][code.Code]; !ok {
					stale = append(stale, code.ID)
				}
			}
			if len(stale) == 0 {
				continue
			}
			if err := tx.Where("id IN ?", stale).Delete(&models.TradeCode{}).Error; err != nil {
				return fmt.Errorf("prune trade codes: %w", err)
			}
		}
		return nil
	}
}
