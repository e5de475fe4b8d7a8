package models_test

import (
	"os"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/models"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/shopspring/decimal"
)

// Overselling drives the balance below zero. Posting is never blocked, but
// crossing zero must leave a negative_stock alert in the same transaction.
func TestOversellRaisesNegativeStockAlert(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := bootIntegrationEnv(t)
	db := config.GetDB()
	tenantId, _ := utils.GetTenantIdFromContext(ctx)

	venue := models.Venue{TenantId: tenantId, Name: "Main Venue", Timezone: "UTC"}
	vendor := models.Vendor{TenantId: tenantId, Name: "Farm Supply Co"}
	butter := models.Item{TenantId: tenantId, Name: "Butter", BaseUnit: "kg"}
	for _, m := range []interface{}{&venue, &vendor, &butter} {
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if _, err := models.UpdateSettings(ctx, &models.UpdateSettingsInput{
		Payload: models.DefaultSettingsSnapshot(),
	}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	order, err := models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		VenueId:      venue.ID,
		VendorId:     vendor.ID,
		OrderNo:      "PO-1",
		ExpectedDate: time.Now().UTC(),
		Lines: []models.NewPurchaseOrderLine{
			{ItemId: butter.ID, Quantity: decimal.NewFromInt(1), UnitCost: decimal.RequireFromString("5.50")},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseOrder: %v", err)
	}
	if _, err := models.PostPurchaseReceipt(ctx, &models.NewPurchaseReceipt{
		PurchaseOrderId: order.ID,
		Lines: []models.NewPurchaseReceiptLine{
			{ItemId: butter.ID, Quantity: decimal.NewFromInt(1), UnitCost: decimal.RequireFromString("5.50")},
		},
	}); err != nil {
		t.Fatalf("PostPurchaseReceipt: %v", err)
	}

	recipe, err := models.CreateRecipe(ctx, &models.NewRecipe{
		VenueId: venue.ID,
		Name:    "Butter Plate",
		Components: []models.NewRecipeComponent{
			{ItemId: butter.ID, Quantity: decimal.NewFromInt(1), Unit: "kg"},
		},
	})
	if err != nil {
		t.Fatalf("CreateRecipe: %v", err)
	}

	// On hand 1, sale needs 5: the posting succeeds and drives the balance to -4.
	if _, err := models.CreateSale(ctx, &models.NewSale{
		VenueId:  venue.ID,
		RecipeId: &recipe.ID,
		Quantity: decimal.NewFromInt(5),
		Amount:   decimal.RequireFromString("60.00"),
	}); err != nil {
		t.Fatalf("CreateSale: %v", err)
	}

	var balance models.InventoryBalance
	if err := db.Where("tenant_id = ? AND venue_id = ? AND item_id = ?", tenantId, venue.ID, butter.ID).
		First(&balance).Error; err != nil {
		t.Fatalf("fetch balance: %v", err)
	}
	if !balance.QtyOnHand.Equal(decimal.NewFromInt(-4)) {
		t.Fatalf("on hand: expected -4, got %s", balance.QtyOnHand)
	}

	alerts, err := models.ListOpenAlerts(ctx, venue.ID, models.AlertTypeNegativeStock, "")
	if err != nil {
		t.Fatalf("ListOpenAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 negative_stock alert, got %d", len(alerts))
	}
	if alerts[0].Severity != models.AlertSeverityWarning {
		t.Fatalf("expected warning severity, got %s", alerts[0].Severity)
	}

	// Sinking further below zero is not a new crossing; no duplicate alert.
	if _, err := models.CreateSale(ctx, &models.NewSale{
		VenueId:  venue.ID,
		RecipeId: &recipe.ID,
		Quantity: decimal.NewFromInt(1),
		Amount:   decimal.RequireFromString("12.00"),
	}); err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	alerts, err = models.ListOpenAlerts(ctx, venue.ID, models.AlertTypeNegativeStock, "")
	if err != nil {
		t.Fatalf("ListOpenAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected no duplicate alert, got %d", len(alerts))
	}
}
