package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/models"
	"gorm.io/gorm"
)

// errDryRun forces a rollback after computing the rebuild.
var errDryRun = errors.New("dry run rollback")

// Recovery tool: recomputes every InventoryBalance projection for a tenant from
// the append-only transaction ledger. Safe to re-run; the ledger is the truth.
func main() {
	tenantID := flag.String("tenant-id", "", "Required: tenant id")
	dryRun := flag.Bool("dry-run", false, "Compute and report without writing")
	flag.Parse()

	if strings.TrimSpace(*tenantID) == "" {
		fmt.Fprintln(os.Stderr, "--tenant-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	var rebuilt int
	err := db.Transaction(func(tx *gorm.DB) error {
		n, err := models.RebuildInventoryBalances(tx, strings.TrimSpace(*tenantID))
		if err != nil {
			return err
		}
		rebuilt = n
		if *dryRun {
			return errDryRun
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errDryRun) {
			fmt.Printf("dry-run: %d balance rows would be rebuilt\n", rebuilt)
			return
		}
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("rebuilt %d balance rows\n", rebuilt)
}
