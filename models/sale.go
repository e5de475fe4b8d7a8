package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/shopspring/decimal"
)

// Sale is one POS check line rolled up to a sellable recipe (or a bare amount when
// the POS item has no recipe mapping yet). Cogs stays nil until a recipe-linked
// posting stamps it.
type Sale struct {
	ID       int              `gorm:"primary_key" json:"id"`
	TenantId string           `gorm:"index;size:64;not null" json:"tenant_id"`
	VenueId  int              `gorm:"index;not null" json:"venue_id"`
	RecipeId *int             `gorm:"index" json:"recipe_id"`
	Quantity decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Amount   decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"amount"`
	Cogs     *decimal.Decimal `gorm:"type:decimal(20,4)" json:"cogs"`
	SaleTime time.Time        `gorm:"not null;index" json:"sale_time"`
	// ExternalId carries the POS-side identifier for idempotent imports.
	ExternalId string    `gorm:"size:100;index" json:"external_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSale struct {
	VenueId    int             `json:"venue_id" binding:"required"`
	RecipeId   *int            `json:"recipe_id"`
	Quantity   decimal.Decimal `json:"quantity" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
	SaleTime   time.Time       `json:"sale_time"`
	ExternalId string          `json:"external_id"`
}

func (input *NewSale) validate(ctx context.Context, tenantId string) error {
	if !input.Quantity.IsPositive() {
		return utils.ValidationError("sale quantity must be greater than zero")
	}
	if input.Amount.IsNegative() {
		return utils.ValidationError("sale amount cannot be negative")
	}
	if input.RecipeId != nil {
		if err := utils.ValidateResourceId[Recipe](ctx, tenantId, *input.RecipeId); err != nil {
			return utils.NewAppError(utils.CodeRecipeMissing, "recipe not found", "create the recipe before linking sales to it")
		}
	}
	return nil
}

// CreateSale persists the sale and, when a recipe is linked, runs the deduction +
// COGS pipeline synchronously in the same transaction (ledger write, balance update
// and COGS stamp commit together or not at all).
func CreateSale(ctx context.Context, input *NewSale) (*Sale, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	if err := input.validate(ctx, tenantId); err != nil {
		return nil, err
	}

	saleTime := input.SaleTime
	if saleTime.IsZero() {
		saleTime = time.Now().UTC()
	}

	sale := Sale{
		TenantId:   tenantId,
		VenueId:    input.VenueId,
		RecipeId:   input.RecipeId,
		Quantity:   input.Quantity,
		Amount:     input.Amount,
		SaleTime:   saleTime,
		ExternalId: input.ExternalId,
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}

	// The lock must cover the commit: the balance read-modify-write in the
	// usage posting is only serialized while no other poster can start.
	if sale.RecipeId != nil {
		if err := AcquireVenuePostingLock(tx, tenantId, sale.VenueId); err != nil {
			tx.Rollback()
			return nil, err
		}
		defer ReleaseVenuePostingLock(tx, tenantId, sale.VenueId)
	}

	if err := tx.Create(&sale).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if sale.RecipeId != nil {
		if err := ApplySaleInventoryUsage(tx, &sale, nil); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &sale, nil
}

// UpdateSale re-runs deduction and COGS stamping when the update sets, changes
// or clears the recipe reference. An unchanged reference leaves inventory
// untouched; clearing it reverses prior usage only under SALE_RELINK_REVERSAL.
func UpdateSale(ctx context.Context, id int, input *NewSale) (*Sale, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	sale, err := utils.FetchModel[Sale](ctx, tenantId, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, tenantId); err != nil {
		return nil, err
	}

	oldRecipeId := sale.RecipeId
	recipeChanged := !intPtrEqual(oldRecipeId, input.RecipeId)

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}

	if recipeChanged {
		if err := AcquireVenuePostingLock(tx, tenantId, input.VenueId); err != nil {
			tx.Rollback()
			return nil, err
		}
		defer ReleaseVenuePostingLock(tx, tenantId, input.VenueId)
	}

	if err := tx.Model(sale).Updates(map[string]interface{}{
		"VenueId":  input.VenueId,
		"RecipeId": input.RecipeId,
		"Quantity": input.Quantity,
		"Amount":   input.Amount,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	sale.VenueId = input.VenueId
	sale.RecipeId = input.RecipeId
	sale.Quantity = input.Quantity
	sale.Amount = input.Amount

	if recipeChanged {
		if err := ApplySaleInventoryUsage(tx, sale, oldRecipeId); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return sale, nil
}

func GetSale(ctx context.Context, id int) (*Sale, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	return utils.FetchModel[Sale](ctx, tenantId, id)
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
