package models

import (
	"log"

	"bitbucket.org/mmdatafocus/boh_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Item{}, &Vendor{}, &Venue{},
		&Recipe{}, &RecipeComponent{}, &RecipeCost{},
		&InventoryBalance{}, &InventoryTransaction{},
		&Sale{}, &LaborEntry{},
		&PurchaseOrder{}, &PurchaseOrderLine{}, &PurchaseReceipt{}, &PurchaseReceiptLine{},
		&CostHistory{},
		&Budget{},
		&Alert{}, &AlertRule{},
		&VersionedSetting{},
		&VendorScorecard{}, &VendorScorecardCursor{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
