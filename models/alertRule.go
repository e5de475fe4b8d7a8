package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/shopspring/decimal"
)

// AlertRule is one priority-ordered condition -> action row for the exception engine.
// Inactive rules are excluded from evaluation but retained for audit.
type AlertRule struct {
	ID        int                   `gorm:"primary_key" json:"id"`
	TenantId  string                `gorm:"index;size:64;not null" json:"tenant_id"`
	Name      string                `gorm:"size:255;not null" json:"name"`
	Type      AlertType             `gorm:"type:enum('cost_spike','budget_variance','negative_stock','vendor_performance','no_data');not null" json:"type"`
	Metric    string                `gorm:"size:100;not null;index" json:"metric"`
	Operator  RuleConditionOperator `gorm:"type:enum('gt','gte','lt','lte','eq');not null" json:"operator"`
	Threshold decimal.Decimal       `gorm:"type:decimal(20,4);not null" json:"threshold"`
	Action    RuleAction            `gorm:"type:enum('auto_approve','alert');not null" json:"action"`
	Severity  AlertSeverity         `gorm:"type:enum('info','warning','critical');not null" json:"severity"`
	Priority  int                   `gorm:"not null;default:100;index" json:"priority"`
	IsActive  *bool                 `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAlertRule struct {
	Name      string                `json:"name" binding:"required"`
	Type      AlertType             `json:"type" binding:"required"`
	Metric    string                `json:"metric" binding:"required"`
	Operator  RuleConditionOperator `json:"operator" binding:"required"`
	Threshold decimal.Decimal       `json:"threshold"`
	Action    RuleAction            `json:"action" binding:"required"`
	Severity  AlertSeverity         `json:"severity" binding:"required"`
	Priority  int                   `json:"priority"`
}

func (input *NewAlertRule) validate(ctx context.Context, tenantId string, id int) error {
	if !input.Type.Valid() {
		return utils.NewAppError(utils.CodeInvalidEnum, "invalid rule type", "use one of the closed alert type values")
	}
	if !input.Operator.Valid() {
		return utils.NewAppError(utils.CodeInvalidEnum, "invalid rule operator", "use gt, gte, lt, lte or eq")
	}
	if !input.Action.Valid() {
		return utils.NewAppError(utils.CodeInvalidEnum, "invalid rule action", "use auto_approve or alert")
	}
	if !input.Severity.Valid() {
		return utils.NewAppError(utils.CodeInvalidEnum, "invalid rule severity", "use info, warning or critical")
	}
	if err := utils.ValidateUnique[AlertRule](ctx, tenantId, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func CreateAlertRule(ctx context.Context, input *NewAlertRule) (*AlertRule, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	if err := input.validate(ctx, tenantId, 0); err != nil {
		return nil, err
	}

	priority := input.Priority
	if priority == 0 {
		priority = 100
	}

	rule := AlertRule{
		TenantId:  tenantId,
		Name:      input.Name,
		Type:      input.Type,
		Metric:    input.Metric,
		Operator:  input.Operator,
		Threshold: input.Threshold,
		Action:    input.Action,
		Severity:  input.Severity,
		Priority:  priority,
		IsActive:  utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

// ToggleActiveAlertRule deactivates or reactivates a rule. Rows are never deleted;
// inactive rules stay for audit.
func ToggleActiveAlertRule(ctx context.Context, id int, isActive bool) (*AlertRule, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	rule, err := utils.FetchModel[AlertRule](ctx, tenantId, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&rule).Update("IsActive", isActive).Error; err != nil {
		return nil, err
	}
	rule.IsActive = &isActive
	return rule, nil
}

// ActiveRulesForMetric returns evaluation order: priority ascending, id ascending.
func ActiveRulesForMetric(ctx context.Context, tenantId string, metric string) ([]*AlertRule, error) {
	db := config.GetDB()
	var rules []*AlertRule
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND metric = ? AND is_active = ?", tenantId, metric, true).
		Order("priority ASC, id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}
