package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// Budget holds the planned figures for one (venue, business_date).
// Percentages express targets as a share of sales (prime cost style).
type Budget struct {
	ID             int             `gorm:"primary_key" json:"id"`
	TenantId       string          `gorm:"size:64;not null;index:uniq_budget,unique" json:"tenant_id"`
	VenueId        int             `gorm:"not null;index:uniq_budget,unique" json:"venue_id"`
	BusinessDate   time.Time       `gorm:"not null;index:uniq_budget,unique" json:"business_date"`
	SalesBudget    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sales_budget"`
	LaborBudget    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"labor_budget"`
	CogsBudget     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cogs_budget"`
	LaborTargetPct decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"labor_target_pct"`
	CogsTargetPct  decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"cogs_target_pct"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBudget struct {
	VenueId        int             `json:"venue_id" binding:"required"`
	BusinessDate   time.Time       `json:"business_date" binding:"required"`
	SalesBudget    decimal.Decimal `json:"sales_budget"`
	LaborBudget    decimal.Decimal `json:"labor_budget"`
	CogsBudget     decimal.Decimal `json:"cogs_budget"`
	LaborTargetPct decimal.Decimal `json:"labor_target_pct"`
	CogsTargetPct  decimal.Decimal `json:"cogs_target_pct"`
}

var oneHundred = decimal.NewFromInt(100)

func (input *NewBudget) validate() error {
	if input.SalesBudget.IsNegative() || input.LaborBudget.IsNegative() || input.CogsBudget.IsNegative() {
		return utils.ValidationError("budget amounts cannot be negative")
	}
	for _, pct := range []decimal.Decimal{input.LaborTargetPct, input.CogsTargetPct} {
		if pct.IsNegative() || pct.GreaterThan(oneHundred) {
			return utils.ValidationError("target percentages must be between 0 and 100")
		}
	}
	return nil
}

// UpsertBudget creates or replaces the budget for (venue, business_date).
// Variance evaluation never mutates these rows; upsert is the only write path.
func UpsertBudget(ctx context.Context, input *NewBudget) (*Budget, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	businessDate := input.BusinessDate.Truncate(24 * time.Hour)
	budget := Budget{
		TenantId:       tenantId,
		VenueId:        input.VenueId,
		BusinessDate:   businessDate,
		SalesBudget:    input.SalesBudget,
		LaborBudget:    input.LaborBudget,
		CogsBudget:     input.CogsBudget,
		LaborTargetPct: input.LaborTargetPct,
		CogsTargetPct:  input.CogsTargetPct,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "venue_id"}, {Name: "business_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"sales_budget", "labor_budget", "cogs_budget", "labor_target_pct", "cogs_target_pct",
		}),
	}).Create(&budget).Error
	if err != nil {
		return nil, err
	}
	return &budget, nil
}

// GetBudget is a hard lookup: a missing row surfaces BUDGET_MISSING, never defaults.
func GetBudget(ctx context.Context, venueId int, businessDate time.Time) (*Budget, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	db := config.GetDB()
	var budget Budget
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND venue_id = ? AND business_date = ?",
			tenantId, venueId, businessDate.Truncate(24*time.Hour)).
		First(&budget).Error
	if err != nil {
		return nil, utils.NewAppError(utils.CodeBudgetMissing,
			"no budget for venue/date",
			"upsert a budget row for this venue and business date before evaluating variance")
	}
	return &budget, nil
}
