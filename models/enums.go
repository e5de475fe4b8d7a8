package models

import (
	"errors"
)

type InventoryTransactionType string

const (
	InventoryTransactionTypeUsage      InventoryTransactionType = "usage"
	InventoryTransactionTypeReceipt    InventoryTransactionType = "receipt"
	InventoryTransactionTypeAdjustment InventoryTransactionType = "adjustment"
)

func (t InventoryTransactionType) Valid() bool {
	switch t {
	case InventoryTransactionTypeUsage, InventoryTransactionTypeReceipt, InventoryTransactionTypeAdjustment:
		return true
	}
	return false
}

// LedgerReferenceType links an inventory transaction back to its origin event.
type LedgerReferenceType string

const (
	LedgerReferenceTypeSale       LedgerReferenceType = "SALE"
	LedgerReferenceTypeReceipt    LedgerReferenceType = "RCPT"
	LedgerReferenceTypeAdjustment LedgerReferenceType = "ADJ"
	LedgerReferenceTypeReversal   LedgerReferenceType = "REV"
	LedgerReferenceTypeRebuild    LedgerReferenceType = "RB"
)

type AlertType string

const (
	AlertTypeCostSpike         AlertType = "cost_spike"
	AlertTypeBudgetVariance    AlertType = "budget_variance"
	AlertTypeNegativeStock     AlertType = "negative_stock"
	AlertTypeVendorPerformance AlertType = "vendor_performance"
	AlertTypeNoData            AlertType = "no_data"
)

func (t AlertType) Valid() bool {
	switch t {
	case AlertTypeCostSpike, AlertTypeBudgetVariance, AlertTypeNegativeStock,
		AlertTypeVendorPerformance, AlertTypeNoData:
		return true
	}
	return false
}

func ParseAlertType(s string) (AlertType, error) {
	t := AlertType(s)
	if !t.Valid() {
		return "", errors.New("invalid alert type")
	}
	return t, nil
}

type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "info"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

func (s AlertSeverity) Valid() bool {
	switch s {
	case AlertSeverityInfo, AlertSeverityWarning, AlertSeverityCritical:
		return true
	}
	return false
}

func ParseAlertSeverity(s string) (AlertSeverity, error) {
	v := AlertSeverity(s)
	if !v.Valid() {
		return "", errors.New("invalid alert severity")
	}
	return v, nil
}

// RuleConditionOperator compares an observed metric value against a rule threshold.
type RuleConditionOperator string

const (
	RuleOperatorGreaterThan  RuleConditionOperator = "gt"
	RuleOperatorGreaterEqual RuleConditionOperator = "gte"
	RuleOperatorLessThan     RuleConditionOperator = "lt"
	RuleOperatorLessEqual    RuleConditionOperator = "lte"
	RuleOperatorEqual        RuleConditionOperator = "eq"
)

func (op RuleConditionOperator) Valid() bool {
	switch op {
	case RuleOperatorGreaterThan, RuleOperatorGreaterEqual,
		RuleOperatorLessThan, RuleOperatorLessEqual, RuleOperatorEqual:
		return true
	}
	return false
}

type RuleAction string

const (
	RuleActionAutoApprove RuleAction = "auto_approve"
	RuleActionRaiseAlert  RuleAction = "alert"
)

func (a RuleAction) Valid() bool {
	switch a {
	case RuleActionAutoApprove, RuleActionRaiseAlert:
		return true
	}
	return false
}

// VarianceMetric names the budget dimensions the variance engine reports on.
type VarianceMetric string

const (
	VarianceMetricSales VarianceMetric = "sales"
	VarianceMetricCogs  VarianceMetric = "cogs"
	VarianceMetricLabor VarianceMetric = "labor"
)

// SeverityBand classifies a variance percentage against the configured thresholds.
type SeverityBand string

const (
	SeverityBandOk       SeverityBand = "ok"
	SeverityBandWarning  SeverityBand = "warning"
	SeverityBandCritical SeverityBand = "critical"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusOpen     PurchaseOrderStatus = "open"
	PurchaseOrderStatusReceived PurchaseOrderStatus = "received"
	PurchaseOrderStatusClosed   PurchaseOrderStatus = "closed"
)
