package config

import (
	"os"
	"strings"
)

// RelinkReversalEnabled controls what happens when a sale's recipe reference changes
// after usage was already posted. When enabled, the processor posts compensating
// reversal rows for the prior recipe before deducting for the new one. When disabled
// (default), prior deductions stand and the relink only posts for the new recipe.
//
// Set via env:
// - SALE_RELINK_REVERSAL=true
func RelinkReversalEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("SALE_RELINK_REVERSAL")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// ReadStalenessBoundSeconds bounds how stale a cached read-side aggregate
// (vendor scorecards, settings snapshots) may be before callers must go to the DB.
//
// Set via env:
// - READ_STALENESS_BOUND_SECONDS (default 300)
func ReadStalenessBoundSeconds() int {
	return intFromEnv("READ_STALENESS_BOUND_SECONDS", 300)
}
