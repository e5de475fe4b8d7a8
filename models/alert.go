package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"gorm.io/gorm"
)

// Alert is an operational exception raised by the engines. Acknowledgment is
// terminal: once acknowledged a row never reverts and never re-acknowledges.
type Alert struct {
	ID             int           `gorm:"primary_key" json:"id"`
	TenantId       string        `gorm:"index;size:64;not null" json:"tenant_id"`
	VenueId        int           `gorm:"index;not null" json:"venue_id"`
	Type           AlertType     `gorm:"type:enum('cost_spike','budget_variance','negative_stock','vendor_performance','no_data');not null" json:"type"`
	Severity       AlertSeverity `gorm:"type:enum('info','warning','critical');not null" json:"severity"`
	Title          string        `gorm:"size:255;not null" json:"title"`
	Message        string        `gorm:"type:text" json:"message"`
	Metadata       []byte        `gorm:"type:json" json:"metadata"`
	Acknowledged   *bool         `gorm:"not null;default:false;index" json:"acknowledged"`
	AcknowledgedBy *int          `json:"acknowledged_by"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at"`
	CreatedAt      time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAlert struct {
	VenueId  int            `json:"venue_id" binding:"required"`
	Type     AlertType      `json:"type" binding:"required"`
	Severity AlertSeverity  `json:"severity" binding:"required"`
	Title    string         `json:"title" binding:"required"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata"`
}

func (input *NewAlert) validate() error {
	if !input.Type.Valid() {
		return utils.NewAppError(utils.CodeInvalidEnum, "invalid alert type", "use one of the closed alert type values")
	}
	if !input.Severity.Valid() {
		return utils.NewAppError(utils.CodeInvalidEnum, "invalid alert severity", "use info, warning or critical")
	}
	if input.Title == "" {
		return utils.ValidationError("alert title is required")
	}
	return nil
}

func CreateAlert(ctx context.Context, input *NewAlert) (*Alert, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	alert := Alert{
		TenantId:     tenantId,
		VenueId:      input.VenueId,
		Type:         input.Type,
		Severity:     input.Severity,
		Title:        input.Title,
		Message:      input.Message,
		Acknowledged: utils.NewFalse(),
	}
	if input.Metadata != nil {
		meta, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, err
		}
		alert.Metadata = meta
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&alert).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// CreateAlertInTx posts an alert inside the caller's transaction (rule engine path).
func CreateAlertInTx(tx *gorm.DB, alert *Alert) error {
	if alert.Acknowledged == nil {
		alert.Acknowledged = utils.NewFalse()
	}
	if !alert.Type.Valid() || !alert.Severity.Valid() {
		return utils.NewAppError(utils.CodeInvalidEnum, "invalid alert enum value", "use the closed type/severity values")
	}
	return tx.Create(alert).Error
}

// AcknowledgeAlert transitions unacknowledged -> acknowledged exactly once.
// The transition is a single compare-and-set UPDATE; a second call on the same
// alert matches zero rows, mutates nothing and returns false.
func AcknowledgeAlert(ctx context.Context, id int, userId int) (bool, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return false, errors.New("tenant id is required")
	}

	db := config.GetDB()
	now := time.Now().UTC()
	res := db.WithContext(ctx).Model(&Alert{}).
		Where("id = ? AND tenant_id = ? AND acknowledged = ?", id, tenantId, false).
		Updates(map[string]interface{}{
			"Acknowledged":   true,
			"AcknowledgedBy": userId,
			"AcknowledgedAt": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	// Distinguish "already acknowledged" from "no such alert".
	var count int64
	if err := db.WithContext(ctx).Model(&Alert{}).
		Where("id = ? AND tenant_id = ?", id, tenantId).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, utils.NotFoundError("alert not found")
	}
	return false, nil
}

func GetAlert(ctx context.Context, id int) (*Alert, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	return utils.FetchModel[Alert](ctx, tenantId, id)
}

// ListOpenAlerts returns unacknowledged alerts for a venue, newest first
// (exception-first display order: critical before warning before info).
// Zero-valued type and severity mean no filter.
func ListOpenAlerts(ctx context.Context, venueId int, alertType AlertType, severity AlertSeverity) ([]*Alert, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	db := config.GetDB()
	query := db.WithContext(ctx).
		Where("tenant_id = ? AND venue_id = ? AND acknowledged = ?", tenantId, venueId, false)
	if alertType != "" {
		query = query.Where("type = ?", alertType)
	}
	if severity != "" {
		query = query.Where("severity = ?", severity)
	}

	var alerts []*Alert
	err := query.
		Order("FIELD(severity,'critical','warning','info'), created_at DESC").
		Find(&alerts).Error
	if err != nil {
		return nil, err
	}
	return alerts, nil
}
