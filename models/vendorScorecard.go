package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VendorScorecard is one precomputed snapshot row per vendor and build version.
// Refreshes build a complete new version and then swap the tenant's cursor, so
// readers never see a half-built scorecard set.
type VendorScorecard struct {
	ID               int             `gorm:"primary_key" json:"id"`
	TenantId         string          `gorm:"size:64;not null;index:idx_sc_lookup,priority:1" json:"tenant_id"`
	VendorId         int             `gorm:"not null;index:idx_sc_lookup,priority:3" json:"vendor_id"`
	BuildVersion     int             `gorm:"not null;index:idx_sc_lookup,priority:2" json:"build_version"`
	WindowStart      time.Time       `gorm:"not null" json:"window_start"`
	WindowEnd        time.Time       `gorm:"not null" json:"window_end"`
	OrderCount       int             `gorm:"not null;default:0" json:"order_count"`
	ReceiptCount     int             `gorm:"not null;default:0" json:"receipt_count"`
	TotalSpend       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_spend"`
	OnTimeRate       decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"on_time_rate"`
	FillRate         decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"fill_rate"`
	AutoApprovalRate decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"auto_approval_rate"`
	CostVolatility   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost_volatility"`
	GeneratedAt      time.Time       `gorm:"not null" json:"generated_at"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// VendorScorecardCursor points at the tenant's currently published build version.
type VendorScorecardCursor struct {
	ID             int       `gorm:"primary_key" json:"id"`
	TenantId       string    `gorm:"size:64;not null;uniqueIndex" json:"tenant_id"`
	CurrentVersion int       `gorm:"not null;default:0" json:"current_version"`
	BuiltAt        time.Time `json:"built_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CurrentScorecardVersion returns 0 when no build has ever been published.
func CurrentScorecardVersion(tx *gorm.DB, tenantId string) (int, error) {
	var cursor VendorScorecardCursor
	err := tx.Where("tenant_id = ?", tenantId).First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return cursor.CurrentVersion, nil
}

// publishedScorecardVersion resolves the cursor for a read and flags builds
// older than the tenant's staleness bound so operators can see a stuck
// refresher before the numbers mislead anyone. Stale data is still served.
func publishedScorecardVersion(ctx context.Context, tx *gorm.DB, tenantId string) (int, error) {
	var cursor VendorScorecardCursor
	err := tx.Where("tenant_id = ?", tenantId).First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	bound := config.ReadStalenessBoundSeconds()
	if _, settings, err := GetSettingsAt(ctx, tenantId, time.Now().UTC()); err == nil && settings.StalenessBoundSeconds > 0 {
		bound = settings.StalenessBoundSeconds
	}
	if bound > 0 && !cursor.BuiltAt.IsZero() {
		age := time.Since(cursor.BuiltAt)
		if age > time.Duration(bound)*time.Second {
			config.GetLogger().WithFields(map[string]interface{}{
				"tenant_id":     tenantId,
				"build_version": cursor.CurrentVersion,
				"built_at":      cursor.BuiltAt,
				"age_seconds":   int(age.Seconds()),
			}).Warn("vendor scorecard snapshot is past the staleness bound")
		}
	}
	return cursor.CurrentVersion, nil
}

// PublishScorecardVersion swaps the cursor to a freshly built version and prunes
// rows from superseded builds.
func PublishScorecardVersion(tx *gorm.DB, tenantId string, version int, builtAt time.Time) error {
	var cursor VendorScorecardCursor
	err := tx.Where("tenant_id = ?", tenantId).First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cursor = VendorScorecardCursor{TenantId: tenantId, CurrentVersion: version, BuiltAt: builtAt}
		if err := tx.Create(&cursor).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	} else {
		err := tx.Model(&VendorScorecardCursor{}).Where("id = ?", cursor.ID).
			Updates(map[string]interface{}{"CurrentVersion": version, "BuiltAt": builtAt}).Error
		if err != nil {
			return err
		}
	}
	return tx.Where("tenant_id = ? AND build_version < ?", tenantId, version).
		Delete(&VendorScorecard{}).Error
}

func GetVendorScorecard(ctx context.Context, vendorId int) (*VendorScorecard, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	// Cache keys carry no tenant, so a hit is only usable after the tenant check.
	var cached VendorScorecard
	if found, err := utils.RetrieveRedis[VendorScorecard](vendorId, &cached); err == nil && found && cached.TenantId == tenantId {
		return &cached, nil
	}

	var card VendorScorecard
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Cursor and rows resolve in one transaction so a concurrent refresh
		// cannot prune the published version between the two reads.
		version, err := publishedScorecardVersion(ctx, tx, tenantId)
		if err != nil {
			return err
		}
		if version == 0 {
			return utils.NotFoundError("no vendor scorecards have been built yet")
		}
		err = tx.Where("tenant_id = ? AND build_version = ? AND vendor_id = ?", tenantId, version, vendorId).
			First(&card).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NotFoundError("no scorecard for this vendor in the current build")
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := utils.StoreRedis[VendorScorecard](&card, vendorId); err != nil {
		config.LogError(config.GetLogger(), "models", "GetVendorScorecard",
			"failed to cache vendor scorecard",
			map[string]interface{}{"vendor_id": vendorId}, err)
	}
	return &card, nil
}

func ListVendorScorecards(ctx context.Context) ([]*VendorScorecard, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	cards := []*VendorScorecard{}
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		version, err := publishedScorecardVersion(ctx, tx, tenantId)
		if err != nil || version == 0 {
			return err
		}
		return tx.Where("tenant_id = ? AND build_version = ?", tenantId, version).
			Order("vendor_id").
			Find(&cards).Error
	})
	if err != nil {
		return nil, err
	}
	return cards, nil
}
