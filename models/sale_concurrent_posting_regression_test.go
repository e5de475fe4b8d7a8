package models_test

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/models"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/shopspring/decimal"
)

// Concurrent recipe-linked sales against the same venue must serialize their
// balance read-modify-write. Each poster holds the venue posting lock through
// its commit, so no deduction can be lost to an interleaved snapshot.
func TestConcurrentSalePostingKeepsBalanceConsistent(t *testing.T) {
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
			{ItemId: butter.ID, Quantity: decimal.NewFromInt(100), UnitCost: decimal.RequireFromString("5.50")},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseOrder: %v", err)
	}
	if _, err := models.PostPurchaseReceipt(ctx, &models.NewPurchaseReceipt{
		PurchaseOrderId: order.ID,
		Lines: []models.NewPurchaseReceiptLine{
			{ItemId: butter.ID, Quantity: decimal.NewFromInt(100), UnitCost: decimal.RequireFromString("5.50")},
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

	const posters = 8
	var wg sync.WaitGroup
	errCh := make(chan error, posters)
	for i := 0; i < posters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := models.CreateSale(ctx, &models.NewSale{
				VenueId:  venue.ID,
				RecipeId: &recipe.ID,
				Quantity: decimal.NewFromInt(1),
				Amount:   decimal.RequireFromString("12.00"),
			})
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("CreateSale: %v", err)
		}
	}

	var balance models.InventoryBalance
	if err := db.Where("tenant_id = ? AND venue_id = ? AND item_id = ?", tenantId, venue.ID, butter.ID).
		First(&balance).Error; err != nil {
		t.Fatalf("fetch balance: %v", err)
	}
	if want := decimal.NewFromInt(100 - posters); !balance.QtyOnHand.Equal(want) {
		t.Fatalf("on hand after %d concurrent sales: expected %s, got %s", posters, want, balance.QtyOnHand)
	}

	var usageRows int64
	if err := db.Model(&models.InventoryTransaction{}).
		Where("tenant_id = ? AND venue_id = ? AND item_id = ? AND type = ?",
			tenantId, venue.ID, butter.ID, models.InventoryTransactionTypeUsage).
		Count(&usageRows).Error; err != nil {
		t.Fatalf("count usage rows: %v", err)
	}
	if usageRows != posters {
		t.Fatalf("expected %d usage rows, got %d", posters, usageRows)
	}
}
