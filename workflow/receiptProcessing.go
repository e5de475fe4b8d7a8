package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/models"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/shopspring/decimal"
)

// CostSpikeMetric is the rule-engine metric name fed with |z| after a spike.
const CostSpikeMetric = "cost_spike_z"

// ReceiptResult is the receipt posting plus whatever the exception path decided.
type ReceiptResult struct {
	Receipt  *models.PurchaseReceipt `json:"receipt"`
	Spikes   []*CostSpike            `json:"spikes"`
	Outcomes []*RuleOutcome          `json:"outcomes"`
}

// PostReceiptWithChecks is the exception-first receiving pipeline: post the
// receipt, then run every line's unit cost through the anomaly detector and
// feed any spike to the rule engine. The posting itself is already committed
// when checks run; a failing check never rolls back received stock, it raises.
func PostReceiptWithChecks(ctx context.Context, input *models.NewPurchaseReceipt, publisher ApprovalPublisher) (*ReceiptResult, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, utils.ValidationError("tenant id is required")
	}

	receipt, err := models.PostPurchaseReceipt(ctx, input)
	if err != nil {
		return nil, err
	}

	result := &ReceiptResult{Receipt: receipt}
	logger := config.GetLogger()

	for _, line := range receipt.Lines {
		spike, err := CheckCostSpike(ctx, line.ItemId, receipt.VendorId, receipt.VenueId, line.UnitCost, receipt.ReceivedAt)
		if err != nil {
			// Missing settings or window errors must not strand received stock.
			config.LogError(logger, "workflow", "PostReceiptWithChecks",
				"cost spike check failed after receipt was posted",
				map[string]interface{}{"receipt_id": receipt.ID, "item_id": line.ItemId}, err)
			continue
		}
		if spike == nil {
			continue
		}
		result.Spikes = append(result.Spikes, spike)

		z := decimal.NewFromFloat(spike.ZScore).Abs()
		outcome, err := EvaluateRules(ctx, tenantId, CostSpikeMetric, z, map[string]interface{}{
			"receipt_id":   receipt.ID,
			"item_id":      spike.ItemId,
			"vendor_id":    spike.VendorId,
			"venue_id":     spike.VenueId,
			"old_mean":     spike.OldMean,
			"new_cost":     spike.NewCost.String(),
			"variance_pct": spike.VariancePct,
		}, publisher)
		if err != nil {
			config.LogError(logger, "workflow", "PostReceiptWithChecks",
				"rule evaluation failed for cost spike",
				map[string]interface{}{"receipt_id": receipt.ID, "item_id": spike.ItemId}, err)
			continue
		}
		if outcome != nil {
			result.Outcomes = append(result.Outcomes, outcome)
			if outcome.Action == models.RuleActionAutoApprove {
				if err := models.MarkReceiptAutoApproved(ctx, receipt.ID); err != nil {
					config.LogError(logger, "workflow", "PostReceiptWithChecks",
						"failed to flag receipt as auto-approved",
						map[string]interface{}{"receipt_id": receipt.ID}, err)
				}
			}
		}
	}
	return result, nil
}
