package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/models"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VarianceRecord reports one budget dimension for a venue and business date.
type VarianceRecord struct {
	Metric      models.VarianceMetric `json:"metric"`
	Budgeted    decimal.Decimal       `json:"budgeted"`
	Actual      decimal.Decimal       `json:"actual"`
	VariancePct decimal.Decimal       `json:"variance_pct"`
	Band        models.SeverityBand   `json:"band"`
}

// VarianceReport is one evaluation: per-metric records plus the day's derived
// prime cost and sales-per-labor-hour figures.
type VarianceReport struct {
	Records           []VarianceRecord `json:"records"`
	PrimeCostPct      decimal.Decimal  `json:"prime_cost_pct"`
	SalesPerLaborHour decimal.Decimal  `json:"sales_per_labor_hour"`
}

// costMetric reports whether overspend (positive variance) is the adverse
// direction for a metric. Sales is the inverse: falling short is adverse.
func costMetric(metric models.VarianceMetric) bool {
	return metric != models.VarianceMetricSales
}

// ClassifyVariance bands one variance percentage. Adverse direction only:
// a venue under its cost budget, or over its sales budget, is always ok.
func ClassifyVariance(metric models.VarianceMetric, variancePct, warningPct, criticalPct decimal.Decimal) models.SeverityBand {
	adverse := variancePct
	if !costMetric(metric) {
		adverse = variancePct.Neg()
	}
	if adverse.LessThan(warningPct) {
		return models.SeverityBandOk
	}
	if adverse.LessThan(criticalPct) {
		return models.SeverityBandWarning
	}
	return models.SeverityBandCritical
}

func variancePct(budgeted, actual decimal.Decimal) decimal.Decimal {
	if budgeted.IsZero() {
		return decimal.Zero
	}
	return actual.Sub(budgeted).Div(budgeted).Mul(decimal.NewFromInt(100))
}

// EvaluateBudgetVariance compares the day's actuals against the stored budget
// for each metric. The budget row and a settings version effective on the
// business date are both required; absence is an error, never a silent zero.
// Records in an adverse band raise budget_variance alerts, and a day with no
// sale rows at all raises a no_data alert instead of treating sales as zero.
func EvaluateBudgetVariance(ctx context.Context, venueId int, businessDate time.Time) (*VarianceReport, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, utils.ValidationError("tenant id is required")
	}

	budget, err := models.GetBudget(ctx, venueId, businessDate)
	if err != nil {
		return nil, err
	}
	_, settings, err := models.GetSettingsAt(ctx, tenantId, businessDate)
	if err != nil {
		return nil, err
	}
	venue, err := utils.FetchModel[models.Venue](ctx, tenantId, venueId)
	if err != nil {
		return nil, err
	}

	salesActual, cogsActual, saleCount, err := salesAndCogsForDate(ctx, tenantId, venueId, businessDate, venue.Timezone)
	if err != nil {
		return nil, err
	}
	laborHours, laborActual, err := models.LaborTotalsForDate(ctx, tenantId, venueId, businessDate)
	if err != nil {
		return nil, err
	}

	records := make([]VarianceRecord, 0, 3)
	for _, dim := range []struct {
		metric   models.VarianceMetric
		budgeted decimal.Decimal
		actual   decimal.Decimal
	}{
		{models.VarianceMetricSales, budget.SalesBudget, salesActual},
		{models.VarianceMetricCogs, budget.CogsBudget, cogsActual},
		{models.VarianceMetricLabor, budget.LaborBudget, laborActual},
	} {
		pct := variancePct(dim.budgeted, dim.actual)
		records = append(records, VarianceRecord{
			Metric:      dim.metric,
			Budgeted:    dim.budgeted,
			Actual:      dim.actual,
			VariancePct: pct,
			Band:        ClassifyVariance(dim.metric, pct, settings.VarianceWarningPct, settings.VarianceCriticalPct),
		})
	}

	if err := raiseVarianceAlerts(ctx, tenantId, venueId, businessDate, saleCount, records); err != nil {
		return nil, err
	}

	return &VarianceReport{
		Records:           records,
		PrimeCostPct:      PrimeCostPct(cogsActual, laborActual, salesActual),
		SalesPerLaborHour: SalesPerLaborHour(salesActual, laborHours),
	}, nil
}

// PrimeCostPct is COGS plus labor cost as a percentage of sales. A zero-sales
// day reports zero rather than dividing.
func PrimeCostPct(cogs, labor, sales decimal.Decimal) decimal.Decimal {
	if sales.IsZero() {
		return decimal.Zero
	}
	return cogs.Add(labor).Div(sales).Mul(decimal.NewFromInt(100))
}

// SalesPerLaborHour guards the zero-hours day the same way.
func SalesPerLaborHour(sales, laborHours decimal.Decimal) decimal.Decimal {
	if laborHours.IsZero() {
		return decimal.Zero
	}
	return sales.Div(laborHours)
}

// AlertSeverityForBand maps a variance band to the alert severity it raises.
// The ok band raises nothing.
func AlertSeverityForBand(band models.SeverityBand) (models.AlertSeverity, bool) {
	switch band {
	case models.SeverityBandWarning:
		return models.AlertSeverityWarning, true
	case models.SeverityBandCritical:
		return models.AlertSeverityCritical, true
	}
	return "", false
}

func raiseVarianceAlerts(ctx context.Context, tenantId string, venueId int, businessDate time.Time, saleCount int64, records []VarianceRecord) error {
	db := config.GetDB().WithContext(ctx)
	date := businessDate.Format("2006-01-02")

	if saleCount == 0 {
		title := fmt.Sprintf("No POS data for %s", date)
		message := "no sales were recorded for this business date; variance against budget is not meaningful"
		if err := createAlertIfAbsent(db, tenantId, venueId, models.AlertTypeNoData, models.AlertSeverityInfo, title, message); err != nil {
			return err
		}
	}

	for _, rec := range records {
		severity, adverse := AlertSeverityForBand(rec.Band)
		if !adverse {
			continue
		}
		title := fmt.Sprintf("Budget variance for %s on %s", rec.Metric, date)
		message := fmt.Sprintf("%s actual %s against budget %s (%s%%)",
			rec.Metric, rec.Actual.String(), rec.Budgeted.String(), rec.VariancePct.StringFixed(2))
		if err := createAlertIfAbsent(db, tenantId, venueId, models.AlertTypeBudgetVariance, severity, title, message); err != nil {
			return err
		}
	}
	return nil
}

// createAlertIfAbsent skips creation while an unacknowledged alert with the
// same title is already open, so re-evaluating a day does not pile up rows.
func createAlertIfAbsent(db *gorm.DB, tenantId string, venueId int, alertType models.AlertType, severity models.AlertSeverity, title, message string) error {
	var count int64
	err := db.Model(&models.Alert{}).
		Where("tenant_id = ? AND venue_id = ? AND type = ? AND title = ? AND acknowledged = ?",
			tenantId, venueId, alertType, title, false).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return models.CreateAlertInTx(db, &models.Alert{
		TenantId: tenantId,
		VenueId:  venueId,
		Type:     alertType,
		Severity: severity,
		Title:    title,
		Message:  message,
	})
}

// salesAndCogsForDate sums sale amounts and stamped COGS over the business date
// in the venue's timezone, and counts the rows so callers can tell an empty day
// from a zero-revenue one. Unstamped COGS (recipe-less sales) contributes zero,
// matching the partial-data rule from sale posting.
func salesAndCogsForDate(ctx context.Context, tenantId string, venueId int, businessDate time.Time, timezone string) (decimal.Decimal, decimal.Decimal, int64, error) {
	// The noon anchor keeps the calendar date stable for any venue offset.
	dayStart, err := utils.ConvertToDate(businessDate.Add(12*time.Hour), timezone)
	if err != nil {
		return decimal.Zero, decimal.Zero, 0, err
	}
	dayEnd := dayStart.AddDate(0, 0, 1)

	type totals struct {
		Sales     decimal.Decimal
		Cogs      decimal.Decimal
		SaleCount int64
	}
	var t totals
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&models.Sale{}).
		Select("COALESCE(SUM(amount), 0) AS sales, COALESCE(SUM(cogs), 0) AS cogs, COUNT(*) AS sale_count").
		Where("tenant_id = ? AND venue_id = ? AND sale_time >= ? AND sale_time < ?",
			tenantId, venueId, dayStart, dayEnd).
		Scan(&t).Error
	if err != nil {
		return decimal.Zero, decimal.Zero, 0, err
	}
	return t.Sales, t.Cogs, t.SaleCount, nil
}
