package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/models"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"bitbucket.org/mmdatafocus/boh_backend/workflow"
	"github.com/sirupsen/logrus"
)

// Scheduler entrypoint: rebuilds vendor scorecards for one tenant, or for every
// tenant that has purchase orders when --tenant-id is omitted.
func main() {
	tenantID := flag.String("tenant-id", "", "Optional: refresh a single tenant")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	tenants := []string{strings.TrimSpace(*tenantID)}
	if tenants[0] == "" {
		tenants = nil
		if err := db.Model(&models.PurchaseOrder{}).
			Distinct("tenant_id").Pluck("tenant_id", &tenants).Error; err != nil {
			fmt.Fprintf(os.Stderr, "list tenants: %v\n", err)
			os.Exit(1)
		}
	}

	failed := 0
	for _, tenant := range tenants {
		ctx := utils.SetTenantIdInContext(context.Background(), tenant)
		built, err := workflow.RefreshVendorScorecards(ctx, tenant)
		if err != nil {
			failed++
			logger.WithFields(logrus.Fields{
				"field":     "scorecard-refresher",
				"tenant_id": tenant,
			}).Error("refresh failed: " + err.Error())
			continue
		}
		logger.WithFields(logrus.Fields{
			"field":     "scorecard-refresher",
			"tenant_id": tenant,
			"built":     built,
		}).Info("scorecards refreshed")
	}
	if failed > 0 {
		os.Exit(1)
	}
}
