package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/shopspring/decimal"
)

// CostHistory is the append-only record of observed vendor costs per item.
// Receipt postings feed it; the anomaly detector reads it.
type CostHistory struct {
	ID            int             `gorm:"primary_key" json:"id"`
	TenantId      string          `gorm:"size:64;not null;index:idx_ch_lookup,priority:1" json:"tenant_id"`
	ItemId        int             `gorm:"not null;index:idx_ch_lookup,priority:2" json:"item_id"`
	VendorId      int             `gorm:"not null;index:idx_ch_lookup,priority:3" json:"vendor_id"`
	VenueId       int             `gorm:"not null;index:idx_ch_lookup,priority:4" json:"venue_id"`
	Cost          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"cost"`
	EffectiveDate time.Time       `gorm:"not null;index:idx_ch_lookup,priority:5" json:"effective_date"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewCostObservation struct {
	ItemId        int             `json:"item_id" binding:"required"`
	VendorId      int             `json:"vendor_id" binding:"required"`
	VenueId       int             `json:"venue_id" binding:"required"`
	Cost          decimal.Decimal `json:"cost" binding:"required"`
	EffectiveDate time.Time       `json:"effective_date"`
}

func RecordCost(ctx context.Context, input *NewCostObservation) (*CostHistory, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	if input.Cost.IsNegative() {
		return nil, utils.ValidationError("cost cannot be negative")
	}

	effective := input.EffectiveDate
	if effective.IsZero() {
		effective = time.Now().UTC()
	}

	entry := CostHistory{
		TenantId:      tenantId,
		ItemId:        input.ItemId,
		VendorId:      input.VendorId,
		VenueId:       input.VenueId,
		Cost:          input.Cost,
		EffectiveDate: effective,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// TrailingCostWindow returns up to maxCount observations strictly before asOf and no
// older than asOf minus maxAge, newest first. Both bounds keep per-call cost constant.
func TrailingCostWindow(ctx context.Context, tenantId string, itemId, vendorId, venueId int, asOf time.Time, maxCount int, maxAge time.Duration) ([]CostHistory, error) {
	db := config.GetDB()
	var entries []CostHistory
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND item_id = ? AND vendor_id = ? AND venue_id = ?", tenantId, itemId, vendorId, venueId).
		Where("effective_date < ? AND effective_date >= ?", asOf, asOf.Add(-maxAge)).
		Order("effective_date DESC, id DESC").
		Limit(maxCount).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
