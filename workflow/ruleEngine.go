package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/models"
	"github.com/shopspring/decimal"
)

// ApprovalPublisher emits the auto-approve signal for a matched rule.
// The production implementation publishes to Pub/Sub; tests swap in a recorder.
type ApprovalPublisher interface {
	PublishApproval(ctx context.Context, tenantId string, ruleId int, metric string, value decimal.Decimal, evalCtx map[string]interface{}) error
}

type pubSubApprovalPublisher struct {
	topicName string
}

func NewPubSubApprovalPublisher(topicName string) ApprovalPublisher {
	return &pubSubApprovalPublisher{topicName: topicName}
}

func (p *pubSubApprovalPublisher) PublishApproval(ctx context.Context, tenantId string, ruleId int, metric string, value decimal.Decimal, evalCtx map[string]interface{}) error {
	payload := map[string]interface{}{
		"tenant_id": tenantId,
		"rule_id":   ruleId,
		"metric":    metric,
		"value":     value.String(),
		"context":   evalCtx,
	}
	_, err := config.PublishToTopic(ctx, p.topicName, payload)
	return err
}

// RuleOutcome records what the engine did for one evaluation.
type RuleOutcome struct {
	MatchedRuleId int               `json:"matched_rule_id"`
	Action        models.RuleAction `json:"action"`
	AlertId       *int              `json:"alert_id"`
}

// conditionMatches applies the rule's operator to the observed value.
func conditionMatches(op models.RuleConditionOperator, value, threshold decimal.Decimal) bool {
	switch op {
	case models.RuleOperatorGreaterThan:
		return value.GreaterThan(threshold)
	case models.RuleOperatorGreaterEqual:
		return value.GreaterThanOrEqual(threshold)
	case models.RuleOperatorLessThan:
		return value.LessThan(threshold)
	case models.RuleOperatorLessEqual:
		return value.LessThanOrEqual(threshold)
	case models.RuleOperatorEqual:
		return value.Equal(threshold)
	}
	return false
}

// FirstMatchingRule walks rules already in evaluation order and returns the
// first whose condition holds, or nil. Pure; the DB ordering comes from
// models.ActiveRulesForMetric.
func FirstMatchingRule(rules []*models.AlertRule, value decimal.Decimal) *models.AlertRule {
	for _, rule := range rules {
		if conditionMatches(rule.Operator, value, rule.Threshold) {
			return rule
		}
	}
	return nil
}

// VenueFromEvalContext pulls the venue id out of an evaluation context. The
// map crosses a JSON boundary in the Pub/Sub path, so the id may arrive as a
// float64 rather than an int; anything else means no venue.
func VenueFromEvalContext(evalCtx map[string]interface{}) int {
	switch v := evalCtx["venue_id"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// EvaluateRules runs the tenant's active rules for one metric observation.
// First match wins: lower priority number evaluates first, id breaks ties.
// No matching rule means no action, which is a normal outcome.
func EvaluateRules(ctx context.Context, tenantId string, metric string, value decimal.Decimal, evalCtx map[string]interface{}, publisher ApprovalPublisher) (*RuleOutcome, error) {
	rules, err := models.ActiveRulesForMetric(ctx, tenantId, metric)
	if err != nil {
		return nil, err
	}
	rule := FirstMatchingRule(rules, value)
	if rule == nil {
		return nil, nil
	}

	outcome := &RuleOutcome{MatchedRuleId: rule.ID, Action: rule.Action}
	switch rule.Action {
	case models.RuleActionAutoApprove:
		if publisher == nil {
			return nil, fmt.Errorf("rule %d requires an approval publisher", rule.ID)
		}
		if err := publisher.PublishApproval(ctx, tenantId, rule.ID, metric, value, evalCtx); err != nil {
			return nil, err
		}
	case models.RuleActionRaiseAlert:
		metadata, err := json.Marshal(map[string]interface{}{
			"rule_id": rule.ID,
			"metric":  metric,
			"value":   value.String(),
			"context": evalCtx,
		})
		if err != nil {
			return nil, err
		}
		alert := models.Alert{
			TenantId: tenantId,
			VenueId:  VenueFromEvalContext(evalCtx),
			Type:     rule.Type,
			Severity: rule.Severity,
			Title:    rule.Name,
			Message:  fmt.Sprintf("%s observed %s against threshold %s", metric, value.String(), rule.Threshold.String()),
			Metadata: metadata,
		}
		db := config.GetDB()
		if err := models.CreateAlertInTx(db.WithContext(ctx), &alert); err != nil {
			return nil, err
		}
		outcome.AlertId = &alert.ID
	}
	return outcome, nil
}
