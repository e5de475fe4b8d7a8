package workflow

import (
	"context"
	"fmt"
	"math"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/models"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RefreshVendorScorecards rebuilds every vendor's scorecard for one tenant.
//
// Build-then-swap: a complete set of rows is written under a fresh build
// version while readers keep seeing the published one; the cursor repoints
// only after the batch is done, and superseded rows are pruned. A redis lock
// keeps overlapping scheduler runs from building duplicate versions.
func RefreshVendorScorecards(ctx context.Context, tenantId string) (int, error) {
	locker := config.GetRedisLock()
	if locker != nil {
		lock, err := locker.Obtain(ctx, fmt.Sprintf("scorecard-refresh:%s", tenantId), 5*time.Minute, nil)
		if err == redislock.ErrNotObtained {
			// Another refresher owns this tenant right now.
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		defer lock.Release(ctx)
	}

	lookbackDays := 90
	if _, settings, err := models.GetSettingsAt(ctx, tenantId, time.Now().UTC()); err == nil && settings.ScorecardLookbackDays > 0 {
		lookbackDays = settings.ScorecardLookbackDays
	}

	windowEnd := time.Now().UTC()
	windowStart := windowEnd.AddDate(0, 0, -lookbackDays)

	var built []*models.VendorScorecard
	err := RunInTxWithRetry(ctx, func(tx *gorm.DB) error {
		current, err := models.CurrentScorecardVersion(tx, tenantId)
		if err != nil {
			return err
		}
		version := current + 1

		cards, err := aggregateVendorStats(tx, tenantId, windowStart, windowEnd)
		if err != nil {
			return err
		}
		for _, card := range cards {
			card.BuildVersion = version
			card.GeneratedAt = windowEnd
			if err := tx.Create(card).Error; err != nil {
				return err
			}
		}
		built = cards
		return models.PublishScorecardVersion(tx, tenantId, version, windowEnd)
	})
	if err != nil {
		return 0, err
	}

	// Cached reads must not outlive the build they came from.
	for _, card := range built {
		if err := utils.RemoveRedis[models.VendorScorecard](card.VendorId); err != nil {
			config.LogError(config.GetLogger(), "workflow", "RefreshVendorScorecards",
				"failed to drop cached vendor scorecard",
				map[string]interface{}{"vendor_id": card.VendorId}, err)
		}
	}
	return len(built), nil
}

// aggregateVendorStats rolls purchase orders and their receipts up per vendor.
//
// On-time rate: fraction of orders whose first receipt arrived on or before the
// expected date. Fill rate: received qty over ordered qty, capped at 1.
// Auto-approval rate: fraction of receipts the exception path waved through.
// Cost volatility: population stddev of the vendor's cost history in the window.
func aggregateVendorStats(tx *gorm.DB, tenantId string, windowStart, windowEnd time.Time) ([]*models.VendorScorecard, error) {
	var orders []models.PurchaseOrder
	err := tx.Preload("Lines").
		Where("tenant_id = ? AND created_at >= ? AND created_at < ?", tenantId, windowStart, windowEnd).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	var receipts []models.PurchaseReceipt
	err = tx.Preload("Lines").
		Where("tenant_id = ? AND received_at >= ? AND received_at < ?", tenantId, windowStart, windowEnd).
		Find(&receipts).Error
	if err != nil {
		return nil, err
	}

	receiptsByOrder := map[int][]models.PurchaseReceipt{}
	for _, r := range receipts {
		receiptsByOrder[r.PurchaseOrderId] = append(receiptsByOrder[r.PurchaseOrderId], r)
	}

	type vendorAgg struct {
		orderCount   int
		receiptCount int
		onTime       int
		autoApproved int
		orderedQty   decimal.Decimal
		receivedQty  decimal.Decimal
		totalSpend   decimal.Decimal
	}
	aggs := map[int]*vendorAgg{}
	vendorIds := []int{}

	for _, order := range orders {
		agg := aggs[order.VendorId]
		if agg == nil {
			agg = &vendorAgg{}
			aggs[order.VendorId] = agg
			vendorIds = append(vendorIds, order.VendorId)
		}
		agg.orderCount++
		for _, line := range order.Lines {
			agg.orderedQty = agg.orderedQty.Add(line.Quantity)
		}

		orderReceipts := receiptsByOrder[order.ID]
		agg.receiptCount += len(orderReceipts)
		for i, r := range orderReceipts {
			if i == 0 && !r.ReceivedAt.After(endOfDay(order.ExpectedDate)) {
				agg.onTime++
			}
			if r.AutoApproved != nil && *r.AutoApproved {
				agg.autoApproved++
			}
			for _, line := range r.Lines {
				agg.receivedQty = agg.receivedQty.Add(line.Quantity)
				agg.totalSpend = agg.totalSpend.Add(line.Quantity.Mul(line.UnitCost))
			}
		}
	}

	cards := make([]*models.VendorScorecard, 0, len(vendorIds))
	for _, vendorId := range vendorIds {
		agg := aggs[vendorId]

		onTimeRate := decimal.Zero
		if agg.orderCount > 0 {
			onTimeRate = decimal.NewFromInt(int64(agg.onTime)).
				Div(decimal.NewFromInt(int64(agg.orderCount)))
		}
		fillRate := decimal.Zero
		if agg.orderedQty.IsPositive() {
			fillRate = agg.receivedQty.Div(agg.orderedQty)
			if fillRate.GreaterThan(decimal.NewFromInt(1)) {
				fillRate = decimal.NewFromInt(1)
			}
		}
		autoApprovalRate := decimal.Zero
		if agg.receiptCount > 0 {
			autoApprovalRate = decimal.NewFromInt(int64(agg.autoApproved)).
				Div(decimal.NewFromInt(int64(agg.receiptCount)))
		}

		volatility, err := vendorCostVolatility(tx, tenantId, vendorId, windowStart, windowEnd)
		if err != nil {
			return nil, err
		}

		cards = append(cards, &models.VendorScorecard{
			TenantId:         tenantId,
			VendorId:         vendorId,
			WindowStart:      windowStart,
			WindowEnd:        windowEnd,
			OrderCount:       agg.orderCount,
			ReceiptCount:     agg.receiptCount,
			TotalSpend:       agg.totalSpend,
			OnTimeRate:       onTimeRate,
			FillRate:         fillRate,
			AutoApprovalRate: autoApprovalRate,
			CostVolatility:   volatility,
		})
	}
	return cards, nil
}

func vendorCostVolatility(tx *gorm.DB, tenantId string, vendorId int, windowStart, windowEnd time.Time) (decimal.Decimal, error) {
	var costs []decimal.Decimal
	err := tx.Model(&models.CostHistory{}).
		Where("tenant_id = ? AND vendor_id = ? AND effective_date >= ? AND effective_date < ?",
			tenantId, vendorId, windowStart, windowEnd).
		Pluck("cost", &costs).Error
	if err != nil {
		return decimal.Zero, err
	}
	if len(costs) < 2 {
		return decimal.Zero, nil
	}
	window := make([]float64, 0, len(costs))
	for _, c := range costs {
		window = append(window, c.InexactFloat64())
	}
	_, stddev := spikeStats(window)
	if math.IsNaN(stddev) || math.IsInf(stddev, 0) {
		return decimal.Zero, nil
	}
	return decimal.NewFromFloat(stddev), nil
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
