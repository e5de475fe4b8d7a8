package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/shopspring/decimal"
)

type Recipe struct {
	ID         int               `gorm:"primary_key" json:"id"`
	TenantId   string            `gorm:"index;size:64;not null" json:"tenant_id"`
	VenueId    int               `gorm:"index;not null" json:"venue_id"`
	Name       string            `gorm:"size:255;not null" json:"name"`
	Yield      decimal.Decimal   `gorm:"type:decimal(20,4);default:1" json:"yield"`
	Components []RecipeComponent `gorm:"foreignKey:RecipeId" json:"components"`
	CreatedAt  time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// RecipeComponent is unique per (recipe, item); quantity is per one unit of yield.
type RecipeComponent struct {
	ID        int             `gorm:"primary_key" json:"id"`
	RecipeId  int             `gorm:"index:uniq_recipe_item,unique;not null" json:"recipe_id"`
	ItemId    int             `gorm:"index:uniq_recipe_item,unique;not null" json:"item_id"`
	Quantity  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Unit      string          `gorm:"size:20;not null" json:"unit"`
	SortOrder int             `gorm:"default:0" json:"sort_order"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewRecipeComponent struct {
	ItemId   int             `json:"item_id" binding:"required"`
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
	Unit     string          `json:"unit" binding:"required"`
}

type NewRecipe struct {
	VenueId    int                  `json:"venue_id" binding:"required"`
	Name       string               `json:"name" binding:"required"`
	Yield      decimal.Decimal      `json:"yield"`
	Components []NewRecipeComponent `json:"components" binding:"required,min=1"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewRecipe) validate(ctx context.Context, tenantId string, id int) error {
	if err := utils.ValidateUnique[Recipe](ctx, tenantId, "name", input.Name, id); err != nil {
		return err
	}

	itemIds := make([]int, 0, len(input.Components))
	seen := map[int]bool{}
	for _, c := range input.Components {
		if !c.Quantity.IsPositive() {
			return utils.ValidationError("component quantity must be greater than zero")
		}
		if seen[c.ItemId] {
			return utils.ValidationError("duplicate component item")
		}
		seen[c.ItemId] = true
		itemIds = append(itemIds, c.ItemId)
	}
	if err := utils.ValidateResourcesId[Item](ctx, tenantId, itemIds); err != nil {
		return errors.New("component item not found")
	}
	return nil
}

func CreateRecipe(ctx context.Context, input *NewRecipe) (*Recipe, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	if err := input.validate(ctx, tenantId, 0); err != nil {
		return nil, err
	}

	yield := input.Yield
	if yield.IsZero() {
		yield = decimal.NewFromInt(1)
	}

	recipe := Recipe{
		TenantId: tenantId,
		VenueId:  input.VenueId,
		Name:     input.Name,
		Yield:    yield,
	}
	for i, c := range input.Components {
		recipe.Components = append(recipe.Components, RecipeComponent{
			ItemId:    c.ItemId,
			Quantity:  c.Quantity,
			Unit:      c.Unit,
			SortOrder: i,
		})
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&recipe).Error; err != nil {
		return nil, err
	}
	return &recipe, nil
}

func UpdateRecipe(ctx context.Context, id int, input *NewRecipe) (*Recipe, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	recipe, err := utils.FetchModel[Recipe](ctx, tenantId, id, "Components")
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, tenantId, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if err := tx.Model(&recipe).Updates(map[string]interface{}{
		"VenueId": input.VenueId,
		"Name":    input.Name,
		"Yield":   input.Yield,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Where("recipe_id = ?", recipe.ID).Delete(&RecipeComponent{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	components := make([]RecipeComponent, 0, len(input.Components))
	for i, c := range input.Components {
		components = append(components, RecipeComponent{
			RecipeId:  recipe.ID,
			ItemId:    c.ItemId,
			Quantity:  c.Quantity,
			Unit:      c.Unit,
			SortOrder: i,
		})
	}
	if err := tx.Create(&components).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	recipe.Components = components
	return recipe, nil
}

func GetRecipe(ctx context.Context, id int) (*Recipe, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	recipe, err := utils.FetchModel[Recipe](ctx, tenantId, id, "Components")
	if err != nil {
		return nil, utils.NewAppError(utils.CodeRecipeMissing, "recipe not found", "create the recipe before linking sales to it")
	}
	return recipe, nil
}

func ListRecipes(ctx context.Context) ([]*Recipe, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	return utils.FetchAllModels[Recipe](ctx, tenantId, "Components")
}
