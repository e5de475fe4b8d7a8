package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/models"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"bitbucket.org/mmdatafocus/boh_backend/workflow"
	"github.com/shopspring/decimal"
)

func TestSalePostingStampsCogsAndDeductsInventory(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := bootIntegrationEnv(t)
	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}
	tenantId, _ := utils.GetTenantIdFromContext(ctx)

	// Master data is synced in by external services; seed it directly.
	venue := models.Venue{TenantId: tenantId, Name: "Main Venue", Timezone: "UTC"}
	if err := db.Create(&venue).Error; err != nil {
		t.Fatalf("seed venue: %v", err)
	}
	vendor := models.Vendor{TenantId: tenantId, Name: "Farm Supply Co"}
	if err := db.Create(&vendor).Error; err != nil {
		t.Fatalf("seed vendor: %v", err)
	}
	butter := models.Item{TenantId: tenantId, Name: "Butter", BaseUnit: "kg"}
	oil := models.Item{TenantId: tenantId, Name: "Truffle Oil", BaseUnit: "l"}
	if err := db.Create(&butter).Error; err != nil {
		t.Fatalf("seed butter: %v", err)
	}
	if err := db.Create(&oil).Error; err != nil {
		t.Fatalf("seed oil: %v", err)
	}

	if _, err := models.UpdateSettings(ctx, &models.UpdateSettingsInput{
		Payload: models.DefaultSettingsSnapshot(),
	}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	// Receive stock so balances carry last costs: butter 5.50, oil 15.00.
	order, err := models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		VenueId:      venue.ID,
		VendorId:     vendor.ID,
		OrderNo:      "PO-1",
		ExpectedDate: time.Now().UTC(),
		Lines: []models.NewPurchaseOrderLine{
			{ItemId: butter.ID, Quantity: decimal.NewFromInt(10), UnitCost: decimal.RequireFromString("5.50")},
			{ItemId: oil.ID, Quantity: decimal.NewFromInt(2), UnitCost: decimal.RequireFromString("15.00")},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseOrder: %v", err)
	}
	receipt, err := models.PostPurchaseReceipt(ctx, &models.NewPurchaseReceipt{
		PurchaseOrderId: order.ID,
		Lines: []models.NewPurchaseReceiptLine{
			{ItemId: butter.ID, Quantity: decimal.NewFromInt(10), UnitCost: decimal.RequireFromString("5.50")},
			{ItemId: oil.ID, Quantity: decimal.NewFromInt(2), UnitCost: decimal.RequireFromString("15.00")},
		},
	})
	if err != nil {
		t.Fatalf("PostPurchaseReceipt: %v", err)
	}
	if len(receipt.Lines) != 2 {
		t.Fatalf("expected 2 receipt lines, got %d", len(receipt.Lines))
	}

	// Scrambled eggs: 0.5 butter + 0.02 oil per unit of yield.
	recipe, err := models.CreateRecipe(ctx, &models.NewRecipe{
		VenueId: venue.ID,
		Name:    "Scrambled Eggs",
		Components: []models.NewRecipeComponent{
			{ItemId: butter.ID, Quantity: decimal.RequireFromString("0.5"), Unit: "kg"},
			{ItemId: oil.ID, Quantity: decimal.RequireFromString("0.02"), Unit: "l"},
		},
	})
	if err != nil {
		t.Fatalf("CreateRecipe: %v", err)
	}

	// Per-unit cost: 0.5*5.50 + 0.02*15.00 = 3.05.
	costResult, err := models.CalculateRecipeCost(ctx, recipe.ID, &venue.ID)
	if err != nil {
		t.Fatalf("CalculateRecipeCost: %v", err)
	}
	if !costResult.TotalCost.Equal(decimal.RequireFromString("3.05")) {
		t.Fatalf("recipe cost: expected 3.05, got %s", costResult.TotalCost)
	}
	if costResult.IsPartial {
		t.Fatalf("unexpected partial flag: %+v", costResult)
	}

	// Sale of 3 units: COGS 9.15, butter down 1.5, oil down 0.06.
	sale, err := models.CreateSale(ctx, &models.NewSale{
		VenueId:    venue.ID,
		RecipeId:   &recipe.ID,
		Quantity:   decimal.NewFromInt(3),
		Amount:     decimal.RequireFromString("36.00"),
		ExternalId: "pos-chk-1",
	})
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	if sale.Cogs == nil || !sale.Cogs.Equal(decimal.RequireFromString("9.15")) {
		t.Fatalf("sale cogs: expected 9.15, got %v", sale.Cogs)
	}

	var butterBalance models.InventoryBalance
	if err := db.Where("tenant_id = ? AND venue_id = ? AND item_id = ?", tenantId, venue.ID, butter.ID).
		First(&butterBalance).Error; err != nil {
		t.Fatalf("fetch butter balance: %v", err)
	}
	if !butterBalance.QtyOnHand.Equal(decimal.RequireFromString("8.5")) {
		t.Fatalf("butter on hand: expected 8.5, got %s", butterBalance.QtyOnHand)
	}

	// Ledger rows are immutable once posted.
	var usageRow models.InventoryTransaction
	if err := db.Where("tenant_id = ? AND reference_type = ? AND reference_id = ?",
		tenantId, models.LedgerReferenceTypeSale, sale.ID).First(&usageRow).Error; err != nil {
		t.Fatalf("fetch usage row: %v", err)
	}
	if err := db.Model(&usageRow).Update("qty", decimal.Zero).Error; err == nil {
		t.Fatal("expected update on a posted ledger row to be rejected")
	}
}

func TestCostSpikeAndAlertAcknowledgeFlow(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := bootIntegrationEnv(t)
	db := config.GetDB()
	tenantId, _ := utils.GetTenantIdFromContext(ctx)

	venue := models.Venue{TenantId: tenantId, Name: "Main Venue", Timezone: "UTC"}
	vendor := models.Vendor{TenantId: tenantId, Name: "Farm Supply Co"}
	item := models.Item{TenantId: tenantId, Name: "Butter", BaseUnit: "kg"}
	for _, m := range []interface{}{&venue, &vendor, &item} {
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if _, err := models.UpdateSettings(ctx, &models.UpdateSettingsInput{
		Payload: models.DefaultSettingsSnapshot(),
	}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	asOf := time.Now().UTC()
	for i, cost := range []string{"48", "49", "51", "50", "49.5"} {
		if _, err := models.RecordCost(ctx, &models.NewCostObservation{
			ItemId:        item.ID,
			VendorId:      vendor.ID,
			VenueId:       venue.ID,
			Cost:          decimal.RequireFromString(cost),
			EffectiveDate: asOf.Add(time.Duration(i-10) * time.Hour),
		}); err != nil {
			t.Fatalf("RecordCost %s: %v", cost, err)
		}
	}

	spike, err := workflow.CheckCostSpike(ctx, item.ID, vendor.ID, venue.ID, decimal.RequireFromString("62.0"), asOf)
	if err != nil {
		t.Fatalf("CheckCostSpike: %v", err)
	}
	if spike == nil {
		t.Fatal("expected 62.0 to be flagged as a spike")
	}
	if spike.WindowSize != 5 {
		t.Fatalf("expected window of 5, got %d", spike.WindowSize)
	}

	noSpike, err := workflow.CheckCostSpike(ctx, item.ID, vendor.ID, venue.ID, decimal.RequireFromString("50.2"), asOf)
	if err != nil {
		t.Fatalf("CheckCostSpike: %v", err)
	}
	if noSpike != nil {
		t.Fatalf("expected 50.2 to be unremarkable, got %+v", noSpike)
	}

	// Ack is terminal: the duplicate attempt must not win the CAS.
	alert, err := models.CreateAlert(ctx, &models.NewAlert{
		VenueId:  venue.ID,
		Type:     models.AlertTypeCostSpike,
		Severity: models.AlertSeverityWarning,
		Title:    "Butter cost spike",
		Message:  "observed 62.0 against mean 49.5",
	})
	if err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	acked, err := models.AcknowledgeAlert(ctx, alert.ID, 1)
	if err != nil || !acked {
		t.Fatalf("first acknowledge: acked=%v err=%v", acked, err)
	}
	acked, err = models.AcknowledgeAlert(ctx, alert.ID, 2)
	if err != nil {
		t.Fatalf("second acknowledge: %v", err)
	}
	if acked {
		t.Fatal("second acknowledge must lose the CAS")
	}
}

func bootIntegrationEnv(t *testing.T) context.Context {
	t.Helper()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "boh_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetTenantIdInContext(ctx, fmt.Sprintf("tenant-itest-%d", time.Now().UnixNano()))
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	return ctx
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("boh-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("boh-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=boh_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}
