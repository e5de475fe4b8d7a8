package models

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireVenuePostingLock serializes inventory posting per (tenant, venue) across
// instances using MySQL advisory locks. Distinct venues post in parallel.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same *gorm.DB
// that will do the posting transaction.
func AcquireVenuePostingLock(tx *gorm.DB, tenantId string, venueId int) error {
	lockName := fmt.Sprintf("posting:%s:%d", tenantId, venueId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock for tenant_id=%s venue_id=%d", tenantId, venueId)
	}
	return nil
}

func ReleaseVenuePostingLock(tx *gorm.DB, tenantId string, venueId int) {
	lockName := fmt.Sprintf("posting:%s:%d", tenantId, venueId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// AcquireTenantSettingsLock serializes settings version creation per tenant.
func AcquireTenantSettingsLock(tx *gorm.DB, tenantId string) error {
	lockName := fmt.Sprintf("settings:%s", tenantId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire settings lock for tenant_id=%s", tenantId)
	}
	return nil
}

func ReleaseTenantSettingsLock(tx *gorm.DB, tenantId string) {
	lockName := fmt.Sprintf("settings:%s", tenantId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
