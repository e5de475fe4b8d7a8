package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RecipeCost is an append-only audit snapshot; one row per successful calculation.
type RecipeCost struct {
	ID           int             `gorm:"primary_key" json:"id"`
	TenantId     string          `gorm:"index;size:64;not null" json:"tenant_id"`
	RecipeId     int             `gorm:"index;not null" json:"recipe_id"`
	VenueId      *int            `gorm:"index" json:"venue_id"`
	TotalCost    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_cost"`
	IsPartial    bool            `gorm:"not null;default:false" json:"is_partial"`
	CalculatedAt time.Time       `gorm:"not null;index" json:"calculated_at"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type RecipeCostResult struct {
	RecipeId       int             `json:"recipe_id"`
	VenueId        *int            `json:"venue_id"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	IsPartial      bool            `json:"is_partial"`
	MissingItemIds []int           `json:"missing_item_ids,omitempty"`
	CalculatedAt   time.Time       `json:"calculated_at"`
}

// CalculateRecipeCost sums component quantity x unit cost from the venue's balance
// rows. A nil venueId falls back to a deterministic any-venue source: the most
// recently updated balance for the item, tie-break lowest venue id.
//
// Missing cost data contributes zero, never aborts; the result is flagged partial.
// Every successful call appends one RecipeCost audit row.
func CalculateRecipeCost(ctx context.Context, recipeId int, venueId *int) (*RecipeCostResult, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	recipe, err := utils.FetchModel[Recipe](ctx, tenantId, recipeId, "Components")
	if err != nil {
		return nil, utils.NewAppError(utils.CodeRecipeMissing, "recipe not found", "check the recipe id")
	}

	db := config.GetDB()
	unitCosts := make(map[int]decimal.Decimal, len(recipe.Components))
	for _, component := range recipe.Components {
		cost, found, err := lookupUnitCost(ctx, db, tenantId, component.ItemId, venueId)
		if err != nil {
			return nil, err
		}
		if found {
			unitCosts[component.ItemId] = cost
		}
	}
	total, missing := SumComponentCosts(recipe.Components, unitCosts)

	result := &RecipeCostResult{
		RecipeId:       recipe.ID,
		VenueId:        venueId,
		TotalCost:      total,
		IsPartial:      len(missing) > 0,
		MissingItemIds: missing,
		CalculatedAt:   time.Now().UTC(),
	}

	snapshot := RecipeCost{
		TenantId:     tenantId,
		RecipeId:     recipe.ID,
		VenueId:      venueId,
		TotalCost:    result.TotalCost,
		IsPartial:    result.IsPartial,
		CalculatedAt: result.CalculatedAt,
	}
	if err := db.WithContext(ctx).Create(&snapshot).Error; err != nil {
		return nil, err
	}

	return result, nil
}

// SumComponentCosts totals quantity x unit cost over a recipe's components.
// Components without a unit cost contribute zero and are reported as missing,
// in component order.
func SumComponentCosts(components []RecipeComponent, unitCosts map[int]decimal.Decimal) (decimal.Decimal, []int) {
	total := decimal.Zero
	var missing []int
	for _, component := range components {
		cost, found := unitCosts[component.ItemId]
		if !found {
			missing = append(missing, component.ItemId)
			continue
		}
		total = total.Add(component.Quantity.Mul(cost))
	}
	return total, missing
}

func lookupUnitCost(ctx context.Context, db *gorm.DB, tenantId string, itemId int, venueId *int) (decimal.Decimal, bool, error) {
	var balance InventoryBalance
	query := db.WithContext(ctx).Where("tenant_id = ? AND item_id = ?", tenantId, itemId)
	if venueId != nil {
		query = query.Where("venue_id = ?", *venueId)
	} else {
		// Deterministic any-venue fallback: freshest cost wins, lowest venue id breaks ties.
		query = query.Order("updated_at DESC, venue_id ASC")
	}
	err := query.First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	return balance.LastCost, true, nil
}
