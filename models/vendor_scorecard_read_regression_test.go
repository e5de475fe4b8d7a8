package models_test

import (
	"os"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/models"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"bitbucket.org/mmdatafocus/boh_backend/workflow"
	"github.com/shopspring/decimal"
)

// A scorecard read resolves the cursor and the row in one transaction, and the
// redis entry for a vendor is dropped when a refresh supersedes its build, so
// back-to-back refreshes never serve a pruned or stale snapshot.
func TestScorecardReadSurvivesRefreshAndCacheInvalidation(t *testing.T) {
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
			{ItemId: butter.ID, Quantity: decimal.NewFromInt(10), UnitCost: decimal.RequireFromString("5.50")},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseOrder: %v", err)
	}
	if _, err := models.PostPurchaseReceipt(ctx, &models.NewPurchaseReceipt{
		PurchaseOrderId: order.ID,
		Lines: []models.NewPurchaseReceiptLine{
			{ItemId: butter.ID, Quantity: decimal.NewFromInt(10), UnitCost: decimal.RequireFromString("5.50")},
		},
	}); err != nil {
		t.Fatalf("PostPurchaseReceipt: %v", err)
	}

	if _, err := workflow.RefreshVendorScorecards(ctx, tenantId); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	card, err := models.GetVendorScorecard(ctx, vendor.ID)
	if err != nil {
		t.Fatalf("GetVendorScorecard after first refresh: %v", err)
	}
	if card.BuildVersion != 1 {
		t.Fatalf("expected build 1, got %d", card.BuildVersion)
	}

	// The first read cached the vendor's row. A second refresh prunes build 1
	// and must also evict that cache entry, or readers would keep seeing it.
	if _, err := workflow.RefreshVendorScorecards(ctx, tenantId); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	card, err = models.GetVendorScorecard(ctx, vendor.ID)
	if err != nil {
		t.Fatalf("GetVendorScorecard after second refresh: %v", err)
	}
	if card.BuildVersion != 2 {
		t.Fatalf("expected build 2, got %d", card.BuildVersion)
	}

	cards, err := models.ListVendorScorecards(ctx)
	if err != nil {
		t.Fatalf("ListVendorScorecards: %v", err)
	}
	if len(cards) != 1 || cards[0].BuildVersion != 2 {
		t.Fatalf("expected one build-2 card, got %+v", cards)
	}
}
