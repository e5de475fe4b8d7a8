package workflow

import (
	"context"
	"math"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/models"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/shopspring/decimal"
)

// CostSpike describes one anomalous cost observation relative to its trailing window.
type CostSpike struct {
	ItemId      int             `json:"item_id"`
	VendorId    int             `json:"vendor_id"`
	VenueId     int             `json:"venue_id"`
	ZScore      float64         `json:"z_score"`
	OldMean     float64         `json:"old_mean"`
	NewCost     decimal.Decimal `json:"new_cost"`
	VariancePct float64         `json:"variance_pct"`
	WindowSize  int             `json:"window_size"`
}

// spikeStats computes mean and population standard deviation over the window.
// Pure; kept separate so the z-score math is testable without a database.
func spikeStats(window []float64) (mean, stddev float64) {
	n := len(window)
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range window {
		sum += v
	}
	mean = sum / float64(n)
	var sq float64
	for _, v := range window {
		d := v - mean
		sq += d * d
	}
	stddev = math.Sqrt(sq / float64(n))
	return mean, stddev
}

// DetectSpike applies the z-score rule to an in-memory window. It signals only
// when the window has at least minWindow points, the window has nonzero spread,
// and |z| exceeds sigmaThreshold. A flat window never signals: the first moved
// price after a constant run is a trend question, not a statistical outlier.
func DetectSpike(window []float64, observed float64, minWindow int, sigmaThreshold float64) (z float64, spike bool) {
	if len(window) < minWindow {
		return 0, false
	}
	mean, stddev := spikeStats(window)
	if stddev == 0 {
		return 0, false
	}
	z = (observed - mean) / stddev
	return z, math.Abs(z) > sigmaThreshold
}

// CheckCostSpike evaluates one observed cost against the tenant's trailing cost
// window for the (item, vendor, venue) triple. Window bounds and the sigma
// threshold come from the settings version effective at asOf, so re-running a
// historical check reproduces the original verdict.
//
// Returns nil when the observation is unremarkable.
func CheckCostSpike(ctx context.Context, itemId, vendorId, venueId int, observedCost decimal.Decimal, asOf time.Time) (*CostSpike, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, utils.ValidationError("tenant id is required")
	}

	_, settings, err := models.GetSettingsAt(ctx, tenantId, asOf)
	if err != nil {
		return nil, err
	}

	maxAge := time.Duration(settings.AnomalyMaxAgeDays) * 24 * time.Hour
	history, err := models.TrailingCostWindow(ctx, tenantId, itemId, vendorId, venueId,
		asOf, settings.AnomalyWindowSize, maxAge)
	if err != nil {
		return nil, err
	}

	window := make([]float64, 0, len(history))
	for _, h := range history {
		window = append(window, h.Cost.InexactFloat64())
	}

	observed := observedCost.InexactFloat64()
	threshold := settings.AnomalySigmaThreshold.InexactFloat64()
	z, spike := DetectSpike(window, observed, settings.AnomalyMinWindow, threshold)
	if !spike {
		return nil, nil
	}

	mean, _ := spikeStats(window)
	variancePct := 0.0
	if mean != 0 {
		variancePct = (observed - mean) / mean * 100
	}
	return &CostSpike{
		ItemId:      itemId,
		VendorId:    vendorId,
		VenueId:     venueId,
		ZScore:      z,
		OldMean:     mean,
		NewCost:     observedCost,
		VariancePct: variancePct,
		WindowSize:  len(window),
	}, nil
}
