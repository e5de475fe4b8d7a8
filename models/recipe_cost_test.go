package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/boh_backend/models"
	"github.com/shopspring/decimal"
)

func TestSumComponentCosts(t *testing.T) {
	components := []models.RecipeComponent{
		{ItemId: 1, Quantity: decimal.RequireFromString("0.5")},
		{ItemId: 2, Quantity: decimal.RequireFromString("0.02")},
	}
	unitCosts := map[int]decimal.Decimal{
		1: decimal.RequireFromString("5.50"),
		2: decimal.RequireFromString("15.00"),
	}

	total, missing := models.SumComponentCosts(components, unitCosts)
	if want := decimal.RequireFromString("3.05"); !total.Equal(want) {
		t.Errorf("total = %s, want %s", total, want)
	}
	if len(missing) != 0 {
		t.Errorf("missing = %v, want none", missing)
	}
}

func TestSumComponentCostsMissingItemContributesZero(t *testing.T) {
	components := []models.RecipeComponent{
		{ItemId: 1, Quantity: decimal.RequireFromString("0.5")},
		{ItemId: 7, Quantity: decimal.RequireFromString("2")},
	}
	unitCosts := map[int]decimal.Decimal{
		1: decimal.RequireFromString("5.50"),
	}

	total, missing := models.SumComponentCosts(components, unitCosts)
	if want := decimal.RequireFromString("2.75"); !total.Equal(want) {
		t.Errorf("total = %s, want %s", total, want)
	}
	if len(missing) != 1 || missing[0] != 7 {
		t.Errorf("missing = %v, want [7]", missing)
	}
}

func TestSumComponentCostsEmptyRecipe(t *testing.T) {
	total, missing := models.SumComponentCosts(nil, nil)
	if !total.IsZero() {
		t.Errorf("total = %s, want 0", total)
	}
	if missing != nil {
		t.Errorf("missing = %v, want nil", missing)
	}
}
