package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/shopspring/decimal"
)

// LaborEntry is one shift's worth of hours and fully-loaded cost for a venue
// and business date. Variance actuals for the labor dimension sum these rows.
type LaborEntry struct {
	ID           int             `gorm:"primary_key" json:"id"`
	TenantId     string          `gorm:"index;size:64;not null" json:"tenant_id"`
	VenueId      int             `gorm:"index;not null" json:"venue_id"`
	BusinessDate time.Time       `gorm:"type:date;not null;index" json:"business_date"`
	Role         string          `gorm:"size:100" json:"role"`
	Hours        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"hours"`
	Cost         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"cost"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLaborEntry struct {
	VenueId      int             `json:"venue_id" binding:"required"`
	BusinessDate time.Time       `json:"business_date" binding:"required"`
	Role         string          `json:"role"`
	Hours        decimal.Decimal `json:"hours" binding:"required"`
	Cost         decimal.Decimal `json:"cost" binding:"required"`
}

func (input *NewLaborEntry) validate() error {
	if !input.Hours.IsPositive() {
		return utils.ValidationError("labor hours must be greater than zero")
	}
	if input.Cost.IsNegative() {
		return utils.ValidationError("labor cost cannot be negative")
	}
	return nil
}

func CreateLaborEntry(ctx context.Context, input *NewLaborEntry) (*LaborEntry, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	entry := LaborEntry{
		TenantId:     tenantId,
		VenueId:      input.VenueId,
		BusinessDate: input.BusinessDate,
		Role:         input.Role,
		Hours:        input.Hours,
		Cost:         input.Cost,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// LaborTotalsForDate sums hours and cost for one venue and business date.
func LaborTotalsForDate(ctx context.Context, tenantId string, venueId int, businessDate time.Time) (decimal.Decimal, decimal.Decimal, error) {
	type totals struct {
		Hours decimal.Decimal
		Cost  decimal.Decimal
	}
	var t totals
	db := config.GetDB()
	err := db.WithContext(ctx).Model(&LaborEntry{}).
		Select("COALESCE(SUM(hours), 0) AS hours, COALESCE(SUM(cost), 0) AS cost").
		Where("tenant_id = ? AND venue_id = ? AND business_date = ?", tenantId, venueId, businessDate.Format("2006-01-02")).
		Scan(&t).Error
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return t.Hours, t.Cost, nil
}
