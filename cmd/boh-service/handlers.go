package main

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/models"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"bitbucket.org/mmdatafocus/boh_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func resolveTenantID(c *gin.Context) (string, bool) {
	tenantId, ok := utils.GetTenantIdFromContext(c.Request.Context())
	if !ok || tenantId == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return tenantId, true
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case utils.IsCode(err, utils.CodeValidationFailed), utils.IsCode(err, utils.CodeInvalidEnum):
		status = http.StatusBadRequest
	case errors.Is(err, utils.ErrorRecordNotFound),
		utils.IsCode(err, utils.CodeNotFound),
		utils.IsCode(err, utils.CodeSettingsMissing),
		utils.IsCode(err, utils.CodeBudgetMissing),
		utils.IsCode(err, utils.CodeRecipeMissing):
		status = http.StatusNotFound
	case utils.IsCode(err, utils.CodeImmutable), utils.IsCode(err, utils.CodeConcurrencyConflict):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// bindJSON decodes the request body. Validator failures report the offending
// fields by name instead of a blanket message.
func bindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}
	if fields := utils.ProcessValidationErrors(err); len(fields) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": fields})
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	return false
}

// --- alerts ---

func createAlertHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		var req models.NewAlert
		if !bindJSON(c, &req) {
			return
		}
		alert, err := models.CreateAlert(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, alert)
	}
}

func acknowledgeAlertHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		userId, _ := utils.GetUserIdFromContext(c.Request.Context())
		acked, err := models.AcknowledgeAlert(c.Request.Context(), id, userId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"acknowledged": acked})
	}
}

func listOpenAlertsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		venueId, _ := strconv.Atoi(c.Query("venue_id"))

		var alertType models.AlertType
		if v := strings.TrimSpace(c.Query("type")); v != "" {
			parsed, err := models.ParseAlertType(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type"})
				return
			}
			alertType = parsed
		}
		var severity models.AlertSeverity
		if v := strings.TrimSpace(c.Query("severity")); v != "" {
			parsed, err := models.ParseAlertSeverity(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid severity"})
				return
			}
			severity = parsed
		}

		alerts, err := models.ListOpenAlerts(c.Request.Context(), venueId, alertType, severity)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, alerts)
	}
}

func getAlertHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		alert, err := models.GetAlert(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, alert)
	}
}

func createAlertRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		var req models.NewAlertRule
		if !bindJSON(c, &req) {
			return
		}
		rule, err := models.CreateAlertRule(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, rule)
	}
}

func toggleAlertRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req struct {
			IsActive *bool `json:"is_active" binding:"required"`
		}
		if !bindJSON(c, &req) {
			return
		}
		rule, err := models.ToggleActiveAlertRule(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rule)
	}
}

// --- recipes ---

func createRecipeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		var req models.NewRecipe
		if !bindJSON(c, &req) {
			return
		}
		recipe, err := models.CreateRecipe(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, recipe)
	}
}

func updateRecipeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req models.NewRecipe
		if !bindJSON(c, &req) {
			return
		}
		recipe, err := models.UpdateRecipe(c.Request.Context(), id, &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, recipe)
	}
}

func getRecipeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		recipe, err := models.GetRecipe(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, recipe)
	}
}

func listRecipesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		recipes, err := models.ListRecipes(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, recipes)
	}
}

func recipeCostHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var venueId *int
		if v := strings.TrimSpace(c.Query("venue_id")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid venue_id"})
				return
			}
			venueId = &n
		}
		result, err := models.CalculateRecipeCost(c.Request.Context(), id, venueId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// --- settings ---

func getSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := resolveTenantID(c)
		if !ok {
			return
		}
		var (
			version  *models.VersionedSetting
			snapshot models.SettingsSnapshot
			err      error
		)
		if v := strings.TrimSpace(c.Query("at")); v != "" {
			at, parseErr := time.Parse(time.RFC3339, v)
			if parseErr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid at timestamp"})
				return
			}
			version, snapshot, err = models.GetSettingsAt(c.Request.Context(), tenantId, at)
		} else {
			version, snapshot, err = models.CurrentSettings(c.Request.Context(), tenantId)
		}
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"version": version.Version, "effective_from": version.EffectiveFrom,
			"effective_to": version.EffectiveTo, "payload": snapshot})
	}
}

func updateSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		var req models.UpdateSettingsInput
		if !bindJSON(c, &req) {
			return
		}
		version, err := models.UpdateSettings(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, version)
	}
}

func listSettingVersionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		versions, err := models.ListSettingVersions(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, versions)
	}
}

// --- cost anomaly ---

func checkCostSpikeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		var req struct {
			ItemId   int             `json:"item_id" binding:"required"`
			VendorId int             `json:"vendor_id" binding:"required"`
			VenueId  int             `json:"venue_id" binding:"required"`
			Cost     decimal.Decimal `json:"cost" binding:"required"`
			AsOf     time.Time       `json:"as_of"`
		}
		if !bindJSON(c, &req) {
			return
		}
		asOf := req.AsOf
		if asOf.IsZero() {
			asOf = time.Now().UTC()
		}
		spike, err := workflow.CheckCostSpike(c.Request.Context(), req.ItemId, req.VendorId, req.VenueId, req.Cost, asOf)
		if err != nil {
			writeError(c, err)
			return
		}
		if spike == nil {
			c.JSON(http.StatusOK, gin.H{"spike": nil})
			return
		}
		c.JSON(http.StatusOK, gin.H{"spike": spike})
	}
}

func recordCostHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		var req models.NewCostObservation
		if !bindJSON(c, &req) {
			return
		}
		entry, err := models.RecordCost(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

// --- budgets / variance ---

func upsertBudgetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		var req models.NewBudget
		if !bindJSON(c, &req) {
			return
		}
		budget, err := models.UpsertBudget(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, budget)
	}
}

func budgetVarianceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		venueId, err := strconv.Atoi(c.Query("venue_id"))
		if err != nil || venueId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid venue_id"})
			return
		}
		businessDate, err := time.Parse("2006-01-02", c.Query("business_date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid business_date"})
			return
		}
		report, err := workflow.EvaluateBudgetVariance(c.Request.Context(), venueId, businessDate)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// --- purchasing ---

func createPurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		var req models.NewPurchaseOrder
		if !bindJSON(c, &req) {
			return
		}
		order, err := models.CreatePurchaseOrder(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, order)
	}
}

func postReceiptHandler() gin.HandlerFunc {
	topicName := strings.TrimSpace(os.Getenv("AUTO_APPROVE_TOPIC"))
	if topicName == "" {
		topicName = "purchasing-auto-approve"
	}
	publisher := workflow.NewPubSubApprovalPublisher(topicName)
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		var req models.NewPurchaseReceipt
		if !bindJSON(c, &req) {
			return
		}
		result, err := workflow.PostReceiptWithChecks(c.Request.Context(), &req, publisher)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func getPurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		order, err := models.GetPurchaseOrder(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

// --- items ---

func getItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		item, err := models.GetItem(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func listItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		items, err := models.ListItems(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

// --- sales / labor ---

func createSaleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		var req models.NewSale
		if !bindJSON(c, &req) {
			return
		}
		sale, err := models.CreateSale(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sale)
	}
}

func updateSaleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req models.NewSale
		if !bindJSON(c, &req) {
			return
		}
		sale, err := models.UpdateSale(c.Request.Context(), id, &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sale)
	}
}

func getSaleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		sale, err := models.GetSale(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sale)
	}
}

func createLaborEntryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		var req models.NewLaborEntry
		if !bindJSON(c, &req) {
			return
		}
		entry, err := models.CreateLaborEntry(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

// --- vendor scorecards ---

func getVendorScorecardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		vendorId, ok := pathID(c, "vendorId")
		if !ok {
			return
		}
		card, err := models.GetVendorScorecard(c.Request.Context(), vendorId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, card)
	}
}

func listVendorScorecardsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveTenantID(c); !ok {
			return
		}
		cards, err := models.ListVendorScorecards(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, cards)
	}
}

func refreshScorecardsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := resolveTenantID(c)
		if !ok {
			return
		}
		built, err := workflow.RefreshVendorScorecards(c.Request.Context(), tenantId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"built": built})
	}
}
