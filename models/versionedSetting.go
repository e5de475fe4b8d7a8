package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SettingsSnapshot is the versioned operational tuning payload. Every evaluation
// resolves the snapshot effective at its own reference time, so historical
// re-runs reproduce the numbers produced at the time.
type SettingsSnapshot struct {
	AnomalyWindowSize      int             `json:"anomaly_window_size"`
	AnomalyMinWindow       int             `json:"anomaly_min_window"`
	AnomalyMaxAgeDays      int             `json:"anomaly_max_age_days"`
	AnomalySigmaThreshold  decimal.Decimal `json:"anomaly_sigma_threshold"`
	VarianceWarningPct     decimal.Decimal `json:"variance_warning_pct"`
	VarianceCriticalPct    decimal.Decimal `json:"variance_critical_pct"`
	StalenessBoundSeconds  int             `json:"staleness_bound_seconds"`
	ScorecardLookbackDays  int             `json:"scorecard_lookback_days"`
	LaborAlertThresholdHrs decimal.Decimal `json:"labor_alert_threshold_hrs"`
}

// DefaultSettingsSnapshot seeds version 1 for a tenant that has never written
// settings. Values follow the shipped defaults.
func DefaultSettingsSnapshot() SettingsSnapshot {
	return SettingsSnapshot{
		AnomalyWindowSize:      30,
		AnomalyMinWindow:       5,
		AnomalyMaxAgeDays:      90,
		AnomalySigmaThreshold:  decimal.NewFromInt(3),
		VarianceWarningPct:     decimal.NewFromInt(5),
		VarianceCriticalPct:    decimal.NewFromInt(15),
		StalenessBoundSeconds:  config.ReadStalenessBoundSeconds(),
		ScorecardLookbackDays:  90,
		LaborAlertThresholdHrs: decimal.NewFromInt(12),
	}
}

// VersionedSetting stores one immutable settings version. Versions form
// half-open intervals: [EffectiveFrom, EffectiveTo), with EffectiveTo nil on
// the current version only.
type VersionedSetting struct {
	ID            int        `gorm:"primary_key" json:"id"`
	TenantId      string     `gorm:"uniqueIndex:uniq_setting_version,priority:1;size:64;not null" json:"tenant_id"`
	Version       int        `gorm:"uniqueIndex:uniq_setting_version,priority:2;not null" json:"version"`
	Payload       []byte     `gorm:"type:json;not null" json:"payload"`
	EffectiveFrom time.Time  `gorm:"not null;index" json:"effective_from"`
	EffectiveTo   *time.Time `gorm:"index" json:"effective_to"`
	CreatedBy     *int       `json:"created_by"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	// Computed on list responses; not a column.
	IsActive bool `gorm:"-" json:"is_active"`
}

// EffectiveAt reports interval containment for the half-open range
// [EffectiveFrom, EffectiveTo); a nil EffectiveTo is open-ended.
func (v *VersionedSetting) EffectiveAt(at time.Time) bool {
	if at.Before(v.EffectiveFrom) {
		return false
	}
	return v.EffectiveTo == nil || at.Before(*v.EffectiveTo)
}

func (v *VersionedSetting) Snapshot() (SettingsSnapshot, error) {
	var snap SettingsSnapshot
	if err := json.Unmarshal(v.Payload, &snap); err != nil {
		return SettingsSnapshot{}, err
	}
	return snap, nil
}

// GetSettingsAt resolves the settings version effective at the given instant.
// A tenant with no version covering that instant gets SETTINGS_MISSING, never
// silent defaults.
func GetSettingsAt(ctx context.Context, tenantId string, at time.Time) (*VersionedSetting, SettingsSnapshot, error) {
	db := config.GetDB()
	var setting VersionedSetting
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND effective_from <= ? AND (effective_to IS NULL OR effective_to > ?)",
			tenantId, at, at).
		Order("version DESC").
		First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, SettingsSnapshot{}, utils.NewAppError(utils.CodeSettingsMissing,
			"no settings version is effective at the requested time",
			"create a settings version for the tenant before running evaluations")
	}
	if err != nil {
		return nil, SettingsSnapshot{}, err
	}
	snap, err := setting.Snapshot()
	if err != nil {
		return nil, SettingsSnapshot{}, err
	}
	return &setting, snap, nil
}

func CurrentSettings(ctx context.Context, tenantId string) (*VersionedSetting, SettingsSnapshot, error) {
	return GetSettingsAt(ctx, tenantId, time.Now().UTC())
}

type UpdateSettingsInput struct {
	Payload SettingsSnapshot `json:"payload" binding:"required"`
}

func (input *UpdateSettingsInput) validate() error {
	p := input.Payload
	if p.AnomalyWindowSize <= 0 || p.AnomalyMinWindow <= 0 {
		return utils.ValidationError("anomaly window sizes must be positive")
	}
	if p.AnomalyMinWindow > p.AnomalyWindowSize {
		return utils.ValidationError("anomaly min window cannot exceed window size")
	}
	if p.AnomalySigmaThreshold.LessThanOrEqual(decimal.Zero) {
		return utils.ValidationError("anomaly sigma threshold must be positive")
	}
	if p.VarianceWarningPct.LessThan(decimal.Zero) || p.VarianceCriticalPct.LessThan(decimal.Zero) {
		return utils.ValidationError("variance thresholds cannot be negative")
	}
	if p.VarianceCriticalPct.LessThanOrEqual(p.VarianceWarningPct) {
		return utils.ValidationError("variance critical threshold must exceed the warning threshold")
	}
	if p.StalenessBoundSeconds <= 0 {
		return utils.ValidationError("staleness bound must be positive")
	}
	return nil
}

// UpdateSettings closes the current version at now and opens version N+1.
// Serialized per tenant with an advisory lock so concurrent writers cannot both
// produce the same next version.
func UpdateSettings(ctx context.Context, input *UpdateSettingsInput) (*VersionedSetting, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(input.Payload)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var created VersionedSetting
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireTenantSettingsLock(tx, tenantId); err != nil {
			return err
		}
		defer ReleaseTenantSettingsLock(tx, tenantId)

		now := time.Now().UTC()
		var current VersionedSetting
		err := tx.Where("tenant_id = ? AND effective_to IS NULL", tenantId).
			Order("version DESC").
			First(&current).Error
		nextVersion := 1
		if err == nil {
			nextVersion = current.Version + 1
			if err := tx.Model(&VersionedSetting{}).
				Where("id = ? AND effective_to IS NULL", current.ID).
				Update("effective_to", now).Error; err != nil {
				return err
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var userId *int
		if uid, ok := utils.GetUserIdFromContext(ctx); ok {
			userId = &uid
		}
		created = VersionedSetting{
			TenantId:      tenantId,
			Version:       nextVersion,
			Payload:       payload,
			EffectiveFrom: now,
			CreatedBy:     userId,
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func ListSettingVersions(ctx context.Context) ([]*VersionedSetting, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	db := config.GetDB()
	var versions []*VersionedSetting
	err := db.WithContext(ctx).
		Where("tenant_id = ?", tenantId).
		Order("effective_from DESC").
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, v := range versions {
		v.IsActive = v.EffectiveAt(now)
	}
	return versions, nil
}
