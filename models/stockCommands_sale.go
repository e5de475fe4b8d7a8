package models

import (
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ApplySaleInventoryUsage posts component usage and stamps COGS for a recipe-linked sale.
//
// This is the explicit, command-style replacement for implicit model-hook side-effects.
// It must run inside the same DB transaction as the sale write so the ledger rows,
// balance updates and COGS stamp are one atomic unit. The caller must hold the
// venue posting lock through that transaction's commit; the balance
// read-modify-write here is only safe while the lock covers the commit.
//
// Per component: required qty = component.quantity x sale.quantity, posted as one
// strictly-negative usage transaction per (venue, item). A component item with no
// balance row contributes zero cost and no deduction; the others still post.
//
// oldRecipeId is the reference the sale carried before a relink (nil on create).
// By default prior deductions are NOT reversed on relink; SALE_RELINK_REVERSAL=true
// posts compensating rows for them first. Clearing the reference reverses prior
// usage and clears COGS under the same flag; with the flag off it is a no-op.
func ApplySaleInventoryUsage(tx *gorm.DB, sale *Sale, oldRecipeId *int) error {
	if tx == nil {
		return fmt.Errorf("tx is nil")
	}
	if sale == nil {
		return fmt.Errorf("sale is nil")
	}
	if sale.RecipeId == nil {
		if oldRecipeId == nil || !config.RelinkReversalEnabled() {
			// No recipe reference: no inventory or COGS side effect.
			return nil
		}
		if err := reverseSaleUsage(tx, sale); err != nil {
			return err
		}
		if err := tx.Model(&Sale{}).Where("id = ?", sale.ID).
			Update("cogs", nil).Error; err != nil {
			return err
		}
		sale.Cogs = nil
		return nil
	}

	if oldRecipeId != nil && config.RelinkReversalEnabled() {
		if err := reverseSaleUsage(tx, sale); err != nil {
			return err
		}
	}

	var recipe Recipe
	if err := tx.Preload("Components").
		Where("tenant_id = ?", sale.TenantId).
		First(&recipe, *sale.RecipeId).Error; err != nil {
		return fmt.Errorf("load recipe %d: %w", *sale.RecipeId, err)
	}

	cogs := decimal.Zero
	partial := false

	for _, component := range recipe.Components {
		required := component.Quantity.Mul(sale.Quantity)

		var balance InventoryBalance
		err := tx.Where("tenant_id = ? AND venue_id = ? AND item_id = ?",
			sale.TenantId, sale.VenueId, component.ItemId).
			First(&balance).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			// No balance row: zero cost contribution, no deduction for this item only.
			partial = true
			continue
		}

		unitCost := balance.LastCost
		txn := InventoryTransaction{
			TenantId:        sale.TenantId,
			VenueId:         sale.VenueId,
			ItemId:          component.ItemId,
			Type:            InventoryTransactionTypeUsage,
			Qty:             required.Neg(),
			UnitCost:        unitCost,
			ReferenceType:   LedgerReferenceTypeSale,
			ReferenceId:     sale.ID,
			TransactionTime: sale.SaleTime,
		}
		if _, err := ApplyInventoryTransaction(tx, &txn, nil); err != nil {
			return err
		}

		cogs = cogs.Add(required.Mul(unitCost))
	}

	if partial {
		logger := config.GetLogger()
		config.LogError(logger, "models", "ApplySaleInventoryUsage",
			"component(s) without balance row contributed zero cost",
			map[string]interface{}{"sale_id": sale.ID, "recipe_id": recipe.ID},
			errors.New("partial cost data"))
	}

	if err := tx.Model(&Sale{}).Where("id = ?", sale.ID).
		Update("cogs", cogs).Error; err != nil {
		return err
	}
	sale.Cogs = &cogs
	return nil
}

// reverseSaleUsage posts compensating rows for every non-reversed usage row this
// sale has on the ledger. Original rows are never touched.
func reverseSaleUsage(tx *gorm.DB, sale *Sale) error {
	var priorRows []InventoryTransaction
	err := tx.Where(
		"tenant_id = ? AND reference_type = ? AND reference_id = ? AND is_reversal = ? AND type = ?",
		sale.TenantId, LedgerReferenceTypeSale, sale.ID, false, InventoryTransactionTypeUsage,
	).Order("id").Find(&priorRows).Error
	if err != nil {
		return err
	}

	// Skip rows already compensated by an earlier relink.
	reversedIds := map[int]bool{}
	var reversals []InventoryTransaction
	err = tx.Where(
		"tenant_id = ? AND reference_type = ? AND reference_id = ? AND is_reversal = ?",
		sale.TenantId, LedgerReferenceTypeSale, sale.ID, true,
	).Find(&reversals).Error
	if err != nil {
		return err
	}
	for _, r := range reversals {
		if r.ReversesTransactionId != nil {
			reversedIds[*r.ReversesTransactionId] = true
		}
	}

	for _, prior := range priorRows {
		if reversedIds[prior.ID] {
			continue
		}
		priorId := prior.ID
		rev := InventoryTransaction{
			TenantId:              prior.TenantId,
			VenueId:               prior.VenueId,
			ItemId:                prior.ItemId,
			Type:                  InventoryTransactionTypeAdjustment,
			Qty:                   prior.Qty.Neg(),
			UnitCost:              prior.UnitCost,
			ReferenceType:         LedgerReferenceTypeSale,
			ReferenceId:           sale.ID,
			IsReversal:            true,
			ReversesTransactionId: &priorId,
			TransactionTime:       sale.SaleTime,
		}
		if _, err := ApplyInventoryTransaction(tx, &rev, nil); err != nil {
			return err
		}
	}
	return nil
}
